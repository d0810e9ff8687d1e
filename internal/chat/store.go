package chat

import "sync"

// Store is the authoritative in-memory model of the active conversation
// and its messages. The Coordinator is its only writer; everything else
// reads derived views. Message ordering is append-only except for the
// single-pop rollback.
type Store struct {
	mu        sync.RWMutex
	active    *Conversation
	messages  []Message
	streaming string
	errMsg    string
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{}
}

// SetActiveConversation replaces the active conversation.
func (s *Store) SetActiveConversation(conv *Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = conv
}

// ActiveConversation returns a copy of the active conversation, or nil.
func (s *Store) ActiveConversation() *Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return nil
	}
	conv := *s.active
	return &conv
}

// HasActiveConversation reports whether a conversation is selected.
func (s *Store) HasActiveConversation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active != nil
}

// UpdateConversation applies fn to the active conversation, if any.
func (s *Store) UpdateConversation(fn func(c *Conversation)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		fn(s.active)
	}
}

// PushMessage appends msg to the message list.
func (s *Store) PushMessage(msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// PopLastMessage removes and returns the most recent message.
func (s *Store) PopLastMessage() (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.messages) == 0 {
		return Message{}, false
	}
	msg := s.messages[len(s.messages)-1]
	s.messages = s.messages[:len(s.messages)-1]
	return msg, true
}

// LastMessage returns the most recent message without removing it.
func (s *Store) LastMessage() (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return Message{}, false
	}
	return s.messages[len(s.messages)-1], true
}

// ReplaceMessage applies patch to the message with the given id.
func (s *Store) ReplaceMessage(id string, patch func(m *Message)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if s.messages[i].ID == id {
			patch(&s.messages[i])
			return true
		}
	}
	return false
}

// SetMessages replaces the whole message list (history load).
func (s *Store) SetMessages(msgs []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append([]Message(nil), msgs...)
}

// Messages returns a copy of the message list.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// MessageCount returns the number of messages.
func (s *Store) MessageCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// SetStreaming replaces the streaming accumulation shown while a
// response is in flight.
func (s *Store) SetStreaming(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = content
}

// ClearStreaming empties the streaming buffer.
func (s *Store) ClearStreaming() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streaming = ""
}

// StreamingContent returns the current streaming accumulation.
func (s *Store) StreamingContent() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming
}

// IsStreaming reports whether a response is currently streaming.
func (s *Store) IsStreaming() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streaming != ""
}

// SetError records a human-readable error for display.
func (s *Store) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = msg
}

// ClearError clears the recorded error.
func (s *Store) ClearError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errMsg = ""
}

// Err returns the recorded error message, empty when none.
func (s *Store) Err() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.errMsg
}

// Clear resets the store: active conversation, messages, streaming
// buffer and error.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
	s.messages = nil
	s.streaming = ""
	s.errMsg = ""
}

// ClearMessages empties the message list, keeping the active
// conversation.
func (s *Store) ClearMessages() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = nil
}
