// Package appstate holds the dashboard context that lives outside the
// conversation: the focal asset, a free-text chat context and the single
// pending-prompt slot filled by other views.
package appstate

import (
	"sync"

	"cortexchat/internal/prompt"
)

// State is safe for concurrent use. Readers get copies.
type State struct {
	mu          sync.RWMutex
	focal       *prompt.FocalEntity
	chatContext string
	pending     string

	subMu sync.Mutex
	subs  map[int]chan struct{}
	next  int
}

// New returns an empty state.
func New() *State {
	return &State{subs: make(map[int]chan struct{})}
}

// SetFocal sets the focal asset, nil to clear it.
func (s *State) SetFocal(f *prompt.FocalEntity) {
	s.mu.Lock()
	if f == nil || f.IsZero() {
		s.focal = nil
	} else {
		cp := *f
		s.focal = &cp
	}
	s.mu.Unlock()
	s.notify()
}

// Focal returns a copy of the focal asset, nil when none.
func (s *State) Focal() *prompt.FocalEntity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.focal == nil {
		return nil
	}
	cp := *s.focal
	return &cp
}

// SetChatContext sets the free-text context used when no asset is focal.
func (s *State) SetChatContext(c string) {
	s.mu.Lock()
	s.chatContext = c
	s.mu.Unlock()
	s.notify()
}

// ChatContext returns the free-text context.
func (s *State) ChatContext() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatContext
}

// SetPendingPrompt fills the pending slot. An empty string clears it.
func (s *State) SetPendingPrompt(p string) {
	s.mu.Lock()
	s.pending = p
	s.mu.Unlock()
	s.notify()
}

// PendingPrompt returns the pending slot, empty when unset.
func (s *State) PendingPrompt() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending
}

// ClearPendingIf empties the slot only if it still holds p, so a prompt set
// while p was being dispatched is not lost.
func (s *State) ClearPendingIf(p string) bool {
	s.mu.Lock()
	if s.pending != p {
		s.mu.Unlock()
		return false
	}
	s.pending = ""
	s.mu.Unlock()
	s.notify()
	return true
}

// Compose enriches raw with the current context and returns the text to send
// along with the focal asset id for the request context.
func (s *State) Compose(raw string) (text, focalID string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.focal != nil {
		focalID = s.focal.ID
	}
	return prompt.Enrich(raw, s.focal, s.chatContext), focalID
}

// FocalID returns the focal asset id, empty when none.
func (s *State) FocalID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.focal == nil {
		return ""
	}
	return s.focal.ID
}

// Subscribe returns a coalescing change signal and its cancel func.
func (s *State) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan struct{}, 1)
	id := s.next
	s.next++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

func (s *State) notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
