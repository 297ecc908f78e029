package service

import (
	"sync"

	"github.com/spec-kit/support-router/internal/domain"
)

// StateStore keeps the per-identity mode and self-help conversation buffers.
type StateStore struct {
	mu           sync.RWMutex
	mode         map[domain.Identity]domain.Mode
	conversation map[domain.Identity][]domain.Turn
	historySize  int
}

// NewStateStore creates an empty store. historySize caps the non-system turns kept
// per buffer; zero keeps everything.
func NewStateStore(historySize int) *StateStore {
	return &StateStore{
		mode:         make(map[domain.Identity]domain.Mode),
		conversation: make(map[domain.Identity][]domain.Turn),
		historySize:  historySize,
	}
}

// Mode returns the mode of id, idle when unset.
func (s *StateStore) Mode(id domain.Identity) domain.Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode[id]
}

// SetMode records mode for id. Setting idle removes the entry.
func (s *StateStore) SetMode(id domain.Identity, mode domain.Mode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == domain.ModeIdle {
		delete(s.mode, id)
		return
	}
	s.mode[id] = mode
}

// HasMode reports whether id has an explicit mode entry.
func (s *StateStore) HasMode(id domain.Identity) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.mode[id]
	return ok
}

// Conversation returns a copy of the buffer of id.
func (s *StateStore) Conversation(id domain.Identity) []domain.Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Turn(nil), s.conversation[id]...)
}

// EnsurePreamble inserts the system turn at the head of an empty buffer.
func (s *StateStore) EnsurePreamble(id domain.Identity, prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := s.conversation[id]
	if len(buf) > 0 && buf[0].Role == domain.TurnRoleSystem {
		return
	}
	s.conversation[id] = append([]domain.Turn{{Role: domain.TurnRoleSystem, Text: prompt}}, buf...)
}

// AppendTurn adds a turn to the buffer of id and returns a copy of the result.
func (s *StateStore) AppendTurn(id domain.Identity, turn domain.Turn) []domain.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := append(s.conversation[id], turn)
	buf = s.trim(buf)
	s.conversation[id] = buf
	return append([]domain.Turn(nil), buf...)
}

// ClearConversation drops the buffer of id.
func (s *StateStore) ClearConversation(id domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversation, id)
}

// Reset removes both mode and buffer of id.
func (s *StateStore) Reset(id domain.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mode, id)
	delete(s.conversation, id)
}

// trim keeps the leading system turn and the newest historySize other turns.
func (s *StateStore) trim(buf []domain.Turn) []domain.Turn {
	if s.historySize <= 0 {
		return buf
	}
	head := 0
	if len(buf) > 0 && buf[0].Role == domain.TurnRoleSystem {
		head = 1
	}
	if len(buf)-head <= s.historySize {
		return buf
	}
	out := make([]domain.Turn, 0, head+s.historySize)
	out = append(out, buf[:head]...)
	out = append(out, buf[len(buf)-s.historySize:]...)
	return out
}

// Export copies the mode map and the buffers.
func (s *StateStore) Export() (map[domain.Identity]domain.Mode, map[domain.Identity][]domain.Turn) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	modes := make(map[domain.Identity]domain.Mode, len(s.mode))
	for id, m := range s.mode {
		modes[id] = m
	}
	conv := make(map[domain.Identity][]domain.Turn, len(s.conversation))
	for id, turns := range s.conversation {
		conv[id] = append([]domain.Turn(nil), turns...)
	}
	return modes, conv
}

// Import replaces the maps. Unknown modes are dropped.
func (s *StateStore) Import(modes map[domain.Identity]domain.Mode, conv map[domain.Identity][]domain.Turn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = make(map[domain.Identity]domain.Mode, len(modes))
	for id, m := range modes {
		if m == domain.ModeIdle || !m.Valid() {
			continue
		}
		s.mode[id] = m
	}
	s.conversation = make(map[domain.Identity][]domain.Turn, len(conv))
	for id, turns := range conv {
		if len(turns) == 0 {
			continue
		}
		s.conversation[id] = append([]domain.Turn(nil), turns...)
	}
}
