// Package protocol defines the chat stream wire format: outbound frames
// sent by the client and the closed set of inbound stream events.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventKind discriminates inbound stream events.
type EventKind string

// Inbound event kinds. The set is closed: anything else is a protocol error.
const (
	KindConnection       EventKind = "connection"
	KindTextDelta        EventKind = "text_delta"
	KindImageOutput      EventKind = "image_output"
	KindComplete         EventKind = "complete"
	KindError            EventKind = "error"
	KindToolCallStart    EventKind = "tool_call_start"
	KindToolCallDelta    EventKind = "tool_call_delta"
	KindToolCallComplete EventKind = "tool_call_complete"
	KindPong             EventKind = "pong"
)

// Outbound frame types.
const (
	TypeMessage = "message"
	TypePing    = "ping"
)

// ErrUnknownEventType reports an inbound frame whose type is outside the
// closed event set.
var ErrUnknownEventType = errors.New("unknown event type")

var knownKinds = map[EventKind]bool{
	KindConnection:       true,
	KindTextDelta:        true,
	KindImageOutput:      true,
	KindComplete:         true,
	KindError:            true,
	KindToolCallStart:    true,
	KindToolCallDelta:    true,
	KindToolCallComplete: true,
	KindPong:             true,
}

// Known reports whether kind belongs to the closed inbound event set.
func Known(kind EventKind) bool {
	return knownKinds[kind]
}

// MessageFrame is the outbound chat message frame.
type MessageFrame struct {
	Type        string   `json:"type"`
	Content     string   `json:"content"`
	AssistantID string   `json:"assistant_id"`
	FileIDs     []string `json:"file_ids,omitempty"`
}

// NewMessageFrame builds an outbound message frame.
func NewMessageFrame(content, assistantID string, fileIDs []string) MessageFrame {
	return MessageFrame{
		Type:        TypeMessage,
		Content:     content,
		AssistantID: assistantID,
		FileIDs:     fileIDs,
	}
}

// PingFrame is the outbound heartbeat frame.
type PingFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewPingFrame builds an outbound heartbeat frame.
func NewPingFrame(message string) PingFrame {
	return PingFrame{Type: TypePing, Message: message}
}

// ImageRef identifies a server-generated file inside an image_output event.
type ImageRef struct {
	FileID string `json:"file_id"`
}

// Event is a parsed inbound stream event. Only the fields relevant to
// Kind are populated.
type Event struct {
	Kind EventKind

	// Content carries delta text for text_delta/tool_call_delta and the
	// authoritative final text for complete.
	Content string

	// Message carries the human-readable error for error events.
	Message string

	// ToolName is set on tool_call_start and tool_call_complete.
	ToolName string

	// Images is set on image_output.
	Images []ImageRef

	// ResponseID is set on complete.
	ResponseID string

	// MessageCount and ThreadID are set on the connection ack.
	MessageCount int
	ThreadID     string
}

// wireEvent is the raw inbound frame shape.
type wireEvent struct {
	Type         string     `json:"type"`
	Content      string     `json:"content,omitempty"`
	Message      string     `json:"message,omitempty"`
	ToolName     string     `json:"tool_name,omitempty"`
	Images       []ImageRef `json:"images,omitempty"`
	ResponseID   string     `json:"response_id,omitempty"`
	MessageCount int        `json:"message_count,omitempty"`
	ThreadID     string     `json:"thread_id,omitempty"`
	Status       string     `json:"status,omitempty"`
}

// ParseEvent decodes an inbound frame. Malformed JSON and unknown types
// are rejected; callers are expected to drop (not surface) such frames.
func ParseEvent(data []byte) (*Event, error) {
	var raw wireEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}

	kind := EventKind(raw.Type)
	if !Known(kind) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, raw.Type)
	}

	return &Event{
		Kind:         kind,
		Content:      raw.Content,
		Message:      raw.Message,
		ToolName:     raw.ToolName,
		Images:       raw.Images,
		ResponseID:   raw.ResponseID,
		MessageCount: raw.MessageCount,
		ThreadID:     raw.ThreadID,
	}, nil
}

// Terminal reports whether the event ends an exchange.
func (e *Event) Terminal() bool {
	return e.Kind == KindComplete || e.Kind == KindError
}
