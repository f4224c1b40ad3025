package conversation

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shreyanshjain05/sparkthon/internal/observability"
)

// State holds the message history and shopping context of one conversation.
// Owned by a single connection; guarded for the handoff between transport
// and turn execution.
type State struct {
	mu         sync.RWMutex
	key        string
	messages   []Message
	context    Context
	lastActive time.Time
}

// Key returns the conversation key.
func (s *State) Key() string {
	return s.key
}

// Append adds messages to the history.
func (s *State) Append(msgs ...Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msgs...)
	s.lastActive = time.Now()
}

// LastActive returns when the conversation last saw traffic.
func (s *State) LastActive() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActive
}

func (s *State) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = time.Now()
}

// Messages returns a copy of the current history.
func (s *State) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages in the history.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Reset clears the full history, system prompt included, and zeroes the
// context apart from the user id.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
	s.context = Context{UserID: s.context.UserID}
}

// Context returns the current shopping context.
func (s *State) Context() Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.context
}

// SetCartSession records the cart session id established by tool execution.
func (s *State) SetCartSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context.CartSessionID = sessionID
}

// SetUserID records the user the conversation belongs to.
func (s *State) SetUserID(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context.UserID = userID
}

// IncrementTurn bumps the turn counter and returns the new value.
func (s *State) IncrementTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.context.TurnCount++
	return s.context.TurnCount
}

// Store tracks conversation state per connection key. Each connection gets
// its own isolated State; nothing is shared across keys.
type Store struct {
	mu     sync.RWMutex
	states map[string]*State
	logger zerolog.Logger
}

// NewStore creates a conversation store.
func NewStore(logger zerolog.Logger) *Store {
	observability.EnsureRegistered()
	return &Store{
		states: make(map[string]*State),
		logger: logger,
	}
}

// Get returns the state for the key, creating it if absent.
func (st *Store) Get(key string) *State {
	st.mu.RLock()
	s, ok := st.states[key]
	st.mu.RUnlock()
	if ok {
		s.touch()
		return s
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	if s, ok := st.states[key]; ok {
		s.touch()
		return s
	}

	s = &State{key: key, lastActive: time.Now()}
	st.states[key] = s
	observability.SetActiveConversations(len(st.states))
	st.logger.Debug().Str("key", key).Msg("Conversation created")
	return s
}

// Remove drops the state for the key.
func (st *Store) Remove(key string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.states, key)
	observability.SetActiveConversations(len(st.states))
	st.logger.Debug().Str("key", key).Msg("Conversation removed")
}

// Count returns the number of live conversations.
func (st *Store) Count() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.states)
}

// EvictIdle removes conversations with no activity for at least idleFor and
// returns the number evicted. Websocket conversations are removed on
// disconnect; HTTP conversations have no disconnect event, so this is their
// only cleanup path.
func (st *Store) EvictIdle(idleFor time.Duration) int {
	cutoff := time.Now().Add(-idleFor)

	st.mu.Lock()
	defer st.mu.Unlock()

	evicted := 0
	for key, s := range st.states {
		if s.LastActive().Before(cutoff) {
			delete(st.states, key)
			evicted++
		}
	}

	if evicted > 0 {
		observability.SetActiveConversations(len(st.states))
		st.logger.Debug().Int("evicted", evicted).Msg("Idle conversations evicted")
	}
	return evicted
}
