package conversation

import (
	"errors"
	"sync"

	"cortexchat/internal/logging"

	"github.com/google/uuid"
)

var (
	// ErrClosed is returned by mutations after Close.
	ErrClosed = errors.New("conversation closed")
	// ErrTurnOpen is returned when an operation needs the open turn to be finished first.
	ErrTurnOpen = errors.New("a turn is still open")
	// ErrNoOpenMessage is returned when mutating while no turn is open.
	ErrNoOpenMessage = errors.New("no open assistant message")
)

// Store is the single source of truth for one open conversation.
//
// Messages are kept in chronological order and are never reordered. At most
// one assistant message is open (mutable) at a time; every other message is
// frozen. Each mutation is applied under the write lock, so readers never
// observe a half-applied update, and readers always receive deep copies.
type Store struct {
	id string

	mu       sync.RWMutex
	messages []Message
	openIdx  int // index of the open assistant message, -1 when none
	version  uint64
	closed   bool

	subMu sync.Mutex
	subs  map[int]chan struct{}
	next  int
}

// New creates an empty conversation with a fresh id.
func New() *Store {
	return &Store{
		id:      uuid.NewString(),
		openIdx: -1,
		subs:    make(map[int]chan struct{}),
	}
}

// ID returns the conversation id.
func (s *Store) ID() string { return s.id }

// BeginTurn appends a frozen user message followed by an assistant message
// that becomes the open message.
func (s *Store) BeginTurn(user, assistant Message) error {
	if user.Role != RoleUser || assistant.Role != RoleAssistant {
		return errors.New("BeginTurn: expected user then assistant message")
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.openIdx >= 0 {
		s.mu.Unlock()
		return ErrTurnOpen
	}
	s.messages = append(s.messages, user.Clone(), assistant.Clone())
	s.openIdx = len(s.messages) - 1
	s.version++
	s.mu.Unlock()

	logging.StoreDebug("turn opened: conversation=%s assistant=%s", s.id, assistant.ID)
	s.Notify()
	return nil
}

// UpdateOpen applies fn to the open assistant message atomically.
func (s *Store) UpdateOpen(fn func(m *Message)) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.openIdx < 0 {
		s.mu.Unlock()
		return ErrNoOpenMessage
	}
	msg := &s.messages[s.openIdx]
	id, role, ts := msg.ID, msg.Role, msg.Timestamp
	fn(msg)
	// identity and creation time are immutable
	msg.ID, msg.Role, msg.Timestamp = id, role, ts
	s.version++
	s.mu.Unlock()

	s.Notify()
	return nil
}

// FinishTurn freezes the open message. No-op when no turn is open.
func (s *Store) FinishTurn() {
	s.mu.Lock()
	if s.openIdx < 0 {
		s.mu.Unlock()
		return
	}
	id := s.messages[s.openIdx].ID
	s.openIdx = -1
	s.version++
	s.mu.Unlock()

	logging.StoreDebug("turn closed: conversation=%s assistant=%s", s.id, id)
	s.Notify()
}

// Clear empties the conversation. Refused while a turn is open.
func (s *Store) Clear() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.openIdx >= 0 {
		s.mu.Unlock()
		return ErrTurnOpen
	}
	n := len(s.messages)
	s.messages = nil
	s.version++
	s.mu.Unlock()

	logging.StoreDebug("conversation %s cleared (%d messages)", s.id, n)
	s.Notify()
	return nil
}

// Messages returns a deep copy of the transcript.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.Clone()
	}
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Open returns a copy of the open assistant message, if any.
func (s *Store) Open() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.openIdx < 0 {
		return Message{}, false
	}
	return s.messages[s.openIdx].Clone(), true
}

// Version increases on every mutation.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe returns a channel that receives a value after state changes.
// Notifications coalesce: a slow reader sees one pending signal, then
// re-reads the whole state. The channel is closed by Close or cancel.
func (s *Store) Subscribe() (<-chan struct{}, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan struct{}, 1)
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		close(ch)
		return ch, func() {}
	}

	id := s.next
	s.next++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if c, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(c)
			}
		})
	}
}

// Notify wakes all subscribers. Called after every mutation; also used by
// owners of related state (session status) that readers render together.
func (s *Store) Notify() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Close tears the conversation down: subscribers are released and further
// mutations fail with ErrClosed. Reads keep returning the final transcript.
func (s *Store) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.openIdx = -1
	s.mu.Unlock()

	s.subMu.Lock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
	s.subMu.Unlock()
}
