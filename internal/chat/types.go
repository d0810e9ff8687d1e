// Package chat holds the conversation domain model, the state store and
// the stream session coordinator.
package chat

import (
	"errors"
	"time"
)

// Role identifies the author of a message.
type Role string

// Message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Attachment is a file reference carried by a message. It is produced
// either by a local upload or by server-generated content arriving in a
// stream event.
type Attachment struct {
	ID         string `json:"id"`
	FileID     string `json:"file_id"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Type       string `json:"type"`
	URL        string `json:"url,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
	Width      int    `json:"width,omitempty"`
	Height     int    `json:"height,omitempty"`
}

// Message is a single conversation entry. Once appended it is never
// reordered; it may be mutated in place while streaming, or removed as
// the most recent entry during rollback.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	CreatedAt   time.Time    `json:"created_at"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Conversation is the active chat context. One conversation per
// assistant: the conversation id is the assistant's directory id.
type Conversation struct {
	ID           string    `json:"id"`
	AssistantID  string    `json:"assistant_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	ThreadID     string    `json:"thread_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// SendResult is the outcome of SendMessage. Failures are reported here,
// never as panics or thrown errors.
type SendResult struct {
	Success    bool
	MessageID  string
	Content    string
	ResponseID string
	Err        error
}

// Session-level errors surfaced to callers.
var (
	ErrNoActiveSession = errors.New("no active conversation")
	ErrBusy            = errors.New("a send is already in flight for this conversation")
	ErrTimeout         = errors.New("message timeout")
	ErrServerRejected  = errors.New("server rejected message")
	ErrStreamSend      = errors.New("failed to send message over stream")
)
