package chat

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatwire/internal/protocol"
	"chatwire/internal/transport"
)

// streamKinds are the inbound event kinds one exchange subscribes to.
var streamKinds = []transport.EventKind{
	protocol.KindConnection,
	protocol.KindTextDelta,
	protocol.KindImageOutput,
	protocol.KindComplete,
	protocol.KindError,
	protocol.KindToolCallStart,
	protocol.KindToolCallDelta,
	protocol.KindToolCallComplete,
}

// exchange tracks one in-flight streamed send: the optimistic user
// message, the assistant message being accumulated, the registered
// handler ids and the response timeout. All events funnel through the
// single handle dispatcher, so cleanup cannot miss a handler.
type exchange struct {
	store   *Store
	stream  Stream
	fileURL func(fileID string) string

	userMsgID string
	timeout   time.Duration

	mu          sync.Mutex
	assistantID string
	buf         strings.Builder
	timer       *time.Timer
	handlerIDs  map[transport.EventKind]int

	once sync.Once
	done chan SendResult
}

func newExchange(store *Store, stream Stream, fileURL func(string) string, userMsgID string, timeout time.Duration) *exchange {
	return &exchange{
		store:      store,
		stream:     stream,
		fileURL:    fileURL,
		userMsgID:  userMsgID,
		timeout:    timeout,
		handlerIDs: make(map[transport.EventKind]int, len(streamKinds)),
		done:       make(chan SendResult, 1),
	}
}

// register subscribes the dispatcher to every stream event kind.
func (ex *exchange) register() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	for _, kind := range streamKinds {
		ex.handlerIDs[kind] = ex.stream.On(kind, ex.handle)
	}
}

// arm starts the wall-clock response timeout.
func (ex *exchange) arm() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.timer = time.AfterFunc(ex.timeout, func() {
		ex.fail(ErrTimeout, "Message timeout")
	})
}

// handle dispatches one inbound event.
func (ex *exchange) handle(ev *protocol.Event) {
	switch ev.Kind {
	case protocol.KindConnection:
		ex.store.UpdateConversation(func(c *Conversation) {
			c.MessageCount = ev.MessageCount
			if ev.ThreadID != "" {
				c.ThreadID = ev.ThreadID
			}
		})

	case protocol.KindTextDelta:
		ex.appendDelta(ev.Content)

	case protocol.KindImageOutput:
		ex.appendImages(ev.Images)

	case protocol.KindToolCallStart:
		ex.appendToolText(fmt.Sprintf("\n[Using %s...]", ev.ToolName))

	case protocol.KindToolCallDelta:
		if ev.Content != "" {
			ex.appendToolText(ev.Content)
		}

	case protocol.KindToolCallComplete:
		ex.appendToolText(fmt.Sprintf("\n[%s completed]", ev.ToolName))

	case protocol.KindComplete:
		ex.complete(ev)

	case protocol.KindError:
		ex.fail(fmt.Errorf("%w: %s", ErrServerRejected, ev.Message), ev.Message)
	}
}

// appendDelta accumulates streamed text, creating the assistant message
// on the first delta.
func (ex *exchange) appendDelta(text string) {
	ex.mu.Lock()
	if ex.assistantID == "" {
		ex.assistantID = uuid.NewString()
		ex.store.PushMessage(Message{
			ID:        ex.assistantID,
			Role:      RoleAssistant,
			CreatedAt: time.Now(),
		})
	}
	ex.buf.WriteString(text)
	accumulated := ex.buf.String()
	id := ex.assistantID
	ex.mu.Unlock()

	ex.store.ReplaceMessage(id, func(m *Message) {
		m.Content += text
	})
	ex.store.SetStreaming(accumulated)
}

// appendImages attaches server-generated files to the assistant message.
func (ex *exchange) appendImages(images []protocol.ImageRef) {
	ex.mu.Lock()
	id := ex.assistantID
	ex.mu.Unlock()
	if id == "" || len(images) == 0 {
		return
	}

	atts := make([]Attachment, 0, len(images))
	for _, img := range images {
		atts = append(atts, Attachment{
			ID:         img.FileID,
			FileID:     img.FileID,
			Name:       fmt.Sprintf("image_%s.png", shortID(img.FileID)),
			Type:       "image_file",
			URL:        ex.fileURL(img.FileID),
			PreviewURL: ex.fileURL(img.FileID),
		})
	}

	ex.store.ReplaceMessage(id, func(m *Message) {
		m.Attachments = append(m.Attachments, atts...)
	})
}

// appendToolText appends tool-call markers to the assistant message.
// Tool text never enters the streaming buffer.
func (ex *exchange) appendToolText(text string) {
	ex.mu.Lock()
	id := ex.assistantID
	ex.mu.Unlock()
	if id == "" {
		return
	}
	ex.store.ReplaceMessage(id, func(m *Message) {
		m.Content += text
	})
}

// complete applies the terminal payload. The terminal content is
// authoritative: it replaces the delta accumulation.
func (ex *exchange) complete(ev *protocol.Event) {
	ex.mu.Lock()
	id := ex.assistantID
	if id == "" {
		// No deltas arrived before the terminal event.
		id = uuid.NewString()
		ex.assistantID = id
		ex.store.PushMessage(Message{ID: id, Role: RoleAssistant, CreatedAt: time.Now()})
	}
	ex.mu.Unlock()

	ex.store.ReplaceMessage(id, func(m *Message) {
		m.Content = ev.Content
	})
	ex.store.ClearStreaming()

	ex.resolve(SendResult{
		Success:    true,
		MessageID:  id,
		Content:    ev.Content,
		ResponseID: ev.ResponseID,
	})
}

// fail rolls back the optimistic mutations, records the error and
// resolves the exchange.
func (ex *exchange) fail(err error, display string) {
	ex.once.Do(func() {
		ex.cleanup()
		ex.store.ClearStreaming()
		ex.rollback()
		ex.store.SetError(display)
		ex.done <- SendResult{Err: err}
	})
}

// resolve finishes the exchange successfully.
func (ex *exchange) resolve(res SendResult) {
	ex.once.Do(func() {
		ex.cleanup()
		ex.done <- res
	})
}

// rollback removes the speculative messages, most recent first, so the
// list returns to its pre-send shape. Only trailing entries are ever
// removed.
func (ex *exchange) rollback() {
	ex.mu.Lock()
	assistantID := ex.assistantID
	ex.mu.Unlock()

	if assistantID != "" {
		if last, ok := ex.store.LastMessage(); ok && last.ID == assistantID {
			ex.store.PopLastMessage()
		}
	}
	if last, ok := ex.store.LastMessage(); ok && last.ID == ex.userMsgID {
		ex.store.PopLastMessage()
	}
}

// cleanup deregisters every handler and cancels the timeout.
func (ex *exchange) cleanup() {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	for kind, id := range ex.handlerIDs {
		ex.stream.Off(kind, id)
	}
	ex.handlerIDs = make(map[transport.EventKind]int)
	if ex.timer != nil {
		ex.timer.Stop()
		ex.timer = nil
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
