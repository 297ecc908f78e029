package service

import (
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/support-router/internal/domain"
)

const (
	// TicketLength is the number of symbols in a ticket.
	TicketLength = 7
	// TicketAlphabet has 32 symbols (5 bits each) without look-alikes I, O, 0, 1.
	TicketAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// TicketGenerator produces ticket candidates. Candidates may collide.
type TicketGenerator func() string

// RandomTicket draws TicketLength symbols from the random bytes of a v4 UUID.
func RandomTicket() string {
	id := uuid.New()
	buf := make([]byte, TicketLength)
	// bytes 0..5 of a v4 UUID are fully random; 7 symbols use 35 of their 48 bits
	var acc uint64
	for i := 0; i < 6; i++ {
		acc = acc<<8 | uint64(id[i])
	}
	for i := range buf {
		buf[i] = TicketAlphabet[acc&31]
		acc >>= 5
	}
	return string(buf)
}

// TicketRegistry maps tickets to requester identities in both directions.
type TicketRegistry struct {
	mu        sync.RWMutex
	index     map[string]domain.Identity // ticket -> requester
	byRequest map[domain.Identity]string // requester -> ticket
	retired   map[string]struct{}        // nil when the session table owns uniqueness
	generate  TicketGenerator
}

// RegistryOption configures a TicketRegistry.
type RegistryOption func(*TicketRegistry)

// WithDurableTickets stops remembering retired tickets. Use it when a session
// table with a unique ticket column rejects reuse with ErrDuplicateTicket.
func WithDurableTickets() RegistryOption {
	return func(r *TicketRegistry) {
		r.retired = nil
	}
}

// NewTicketRegistry builds a registry. A nil generator means RandomTicket.
func NewTicketRegistry(generate TicketGenerator, opts ...RegistryOption) *TicketRegistry {
	if generate == nil {
		generate = RandomTicket
	}
	r := &TicketRegistry{
		index:     make(map[string]domain.Identity),
		byRequest: make(map[domain.Identity]string),
		retired:   make(map[string]struct{}),
		generate:  generate,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *TicketRegistry) retire(ticket string) {
	if r.retired != nil {
		r.retired[ticket] = struct{}{}
	}
}

// Issue returns a fresh ticket for requester, unlinking the previous one first.
func (r *TicketRegistry) Issue(requester domain.Identity) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byRequest[requester]; ok {
		delete(r.index, old)
		r.retire(old)
	}

	ticket := r.generate()
	for r.taken(ticket) {
		ticket = r.generate()
	}
	r.index[ticket] = requester
	r.byRequest[requester] = ticket
	return ticket
}

func (r *TicketRegistry) taken(ticket string) bool {
	if _, ok := r.index[ticket]; ok {
		return true
	}
	_, ok := r.retired[ticket]
	return ok
}

// Lookup resolves a ticket to its requester.
func (r *TicketRegistry) Lookup(ticket string) (domain.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.index[ticket]
	if !ok {
		return 0, domain.ErrNotFound
	}
	return id, nil
}

// TicketOf returns the current ticket of requester.
func (r *TicketRegistry) TicketOf(requester domain.Identity) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byRequest[requester]
	return t, ok
}

// Link points requester at ticket, replacing whatever the requester held.
// Used to restore the mapping of a session that is already open.
func (r *TicketRegistry) Link(ticket string, requester domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byRequest[requester]; ok && old != ticket {
		delete(r.index, old)
		r.retire(old)
	}
	if prev, ok := r.index[ticket]; ok && prev != requester {
		delete(r.byRequest, prev)
	}
	delete(r.retired, ticket)
	r.index[ticket] = requester
	r.byRequest[requester] = ticket
}

// Unlink drops ticket from both maps.
func (r *TicketRegistry) Unlink(ticket string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.index[ticket]
	if !ok {
		return
	}
	delete(r.index, ticket)
	if r.byRequest[id] == ticket {
		delete(r.byRequest, id)
	}
	r.retire(ticket)
}

// Export copies the requester -> ticket map.
func (r *TicketRegistry) Export() map[domain.Identity]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.Identity]string, len(r.byRequest))
	for id, t := range r.byRequest {
		out[id] = t
	}
	return out
}

// Import replaces the maps with the given requester -> ticket map.
// Duplicate tickets keep the first requester seen in map order; the session
// table reconciliation relinks the authoritative owner afterwards.
func (r *TicketRegistry) Import(ticketOf map[domain.Identity]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.index = make(map[string]domain.Identity, len(ticketOf))
	r.byRequest = make(map[domain.Identity]string, len(ticketOf))
	for id, t := range ticketOf {
		if t == "" {
			continue
		}
		if _, dup := r.index[t]; dup {
			continue
		}
		r.index[t] = id
		r.byRequest[id] = t
	}
}

// Len returns the number of linked tickets.
func (r *TicketRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}
