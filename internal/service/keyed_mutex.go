package service

import (
	"sort"
	"sync"

	"github.com/spec-kit/support-router/internal/domain"
)

// keyedMutex serializes work per identity. Entries are reference counted and
// removed when the last holder releases them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[domain.Identity]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[domain.Identity]*refLock)}
}

// Lock acquires the locks of ids in ascending order and returns the release func.
func (k *keyedMutex) Lock(ids ...domain.Identity) func() {
	ordered := uniqueSorted(ids)
	held := make([]*refLock, 0, len(ordered))
	for _, id := range ordered {
		k.mu.Lock()
		l, ok := k.locks[id]
		if !ok {
			l = &refLock{}
			k.locks[id] = l
		}
		l.refs++
		k.mu.Unlock()

		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
			k.mu.Lock()
			held[i].refs--
			if held[i].refs == 0 {
				delete(k.locks, ordered[i])
			}
			k.mu.Unlock()
		}
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func uniqueSorted(ids []domain.Identity) []domain.Identity {
	out := append([]domain.Identity(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	n := 0
	for i, id := range out {
		if i > 0 && id == out[n-1] {
			continue
		}
		out[n] = id
		n++
	}
	return out[:n]
}
