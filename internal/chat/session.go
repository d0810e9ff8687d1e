package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatwire/internal/api"
	"chatwire/internal/protocol"
	"chatwire/internal/transport"
	"chatwire/pkg/logger"
)

// Stream is the supervisor surface the coordinator drives. Satisfied by
// *transport.Conn.
type Stream interface {
	Connect() error
	Disconnect()
	Send(v any) bool
	On(kind transport.EventKind, h transport.Handler) int
	Off(kind transport.EventKind, id int)
	IsConnected() bool
}

// Backend is the HTTP side of the chat service: fallback sends, history
// and URL construction. Satisfied by *api.Client.
type Backend interface {
	SendChatMessage(ctx context.Context, req api.ChatRequest) (*api.ChatResponse, error)
	History(ctx context.Context, assistantID string) ([]api.HistoryMessage, error)
	StreamURL(token string) (string, error)
	FileURL(fileID string) string
}

// Directory looks up assistant records. Satisfied by *api.Client.
type Directory interface {
	GetAssistant(ctx context.Context, id string) (*api.Assistant, error)
}

// TranscriptCache persists completed exchanges for offline history.
type TranscriptCache interface {
	SaveExchange(conversationID string, msgs []Message) error
	ListMessages(conversationID string) ([]Message, error)
}

// StreamFactory builds a Stream for a WebSocket URL.
type StreamFactory func(url string) Stream

// Config carries the coordinator's timing knobs.
type Config struct {
	Reconnect         bool
	ReconnectDelay    time.Duration
	ReconnectAttempts int
	Heartbeat         bool
	HeartbeatInterval time.Duration
	ConnectTimeout    time.Duration
	ResponseTimeout   time.Duration
}

func (c *Config) withDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = 30 * time.Second
	}
}

// Options wires a Coordinator's collaborators. Everything is explicit:
// no ambient singletons.
type Options struct {
	Store         *Store
	Backend       Backend
	Tokens        api.TokenSource
	Directory     Directory
	Cache         TranscriptCache
	StreamFactory StreamFactory
	Config        Config
}

// Coordinator owns the per-conversation connections and turns the
// inbound event sequence into state-store mutations. One logical
// conversation per assistant; connections are keyed by assistant id.
type Coordinator struct {
	store     *Store
	backend   Backend
	tokens    api.TokenSource
	directory Directory
	cache     TranscriptCache
	newStream StreamFactory
	cfg       Config

	mu       sync.Mutex
	conns    map[string]Stream
	inFlight map[string]bool
}

// NewCoordinator creates a Coordinator from its collaborators.
func NewCoordinator(opts Options) *Coordinator {
	cfg := opts.Config
	cfg.withDefaults()

	store := opts.Store
	if store == nil {
		store = NewStore()
	}

	c := &Coordinator{
		store:     store,
		backend:   opts.Backend,
		tokens:    opts.Tokens,
		directory: opts.Directory,
		cache:     opts.Cache,
		newStream: opts.StreamFactory,
		cfg:       cfg,
		conns:     make(map[string]Stream),
		inFlight:  make(map[string]bool),
	}
	if c.newStream == nil {
		c.newStream = func(url string) Stream {
			return transport.New(transport.Options{
				URL:               url,
				Reconnect:         cfg.Reconnect,
				ReconnectDelay:    cfg.ReconnectDelay,
				ReconnectAttempts: cfg.ReconnectAttempts,
				Heartbeat:         cfg.Heartbeat,
				HeartbeatInterval: cfg.HeartbeatInterval,
				HandshakeTimeout:  cfg.ConnectTimeout,
			})
		}
	}
	return c
}

// Store returns the coordinator's state store.
func (c *Coordinator) Store() *Store {
	return c.store
}

// SelectConversation makes the assistant's conversation active. Selecting
// the already-active assistant is a no-op, preserving in-flight state.
// History is loaded afterwards; a history failure records the error but
// never blocks future sends.
func (c *Coordinator) SelectConversation(ctx context.Context, assistantID string) error {
	if active := c.store.ActiveConversation(); active != nil && active.ID == assistantID {
		return nil
	}

	assistant, err := c.directory.GetAssistant(ctx, assistantID)
	if err != nil {
		c.store.SetError("Assistant not found")
		return fmt.Errorf("lookup assistant %s: %w", assistantID, err)
	}

	now := time.Now()
	c.store.SetActiveConversation(&Conversation{
		ID:          assistant.ID,
		AssistantID: assistant.AssistantID,
		Title:       "Chat with " + assistant.Name,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	c.store.ClearMessages()
	c.store.ClearStreaming()
	c.store.ClearError()

	c.loadHistory(ctx, assistant.ID)
	return nil
}

func (c *Coordinator) loadHistory(ctx context.Context, conversationID string) {
	msgs, err := c.backend.History(ctx, conversationID)
	if err != nil {
		logger.Warn().Err(err).Str("conversation", conversationID).Msg("history load failed")
		c.store.SetError(displayError(err))
		if c.cache != nil {
			if cached, cerr := c.cache.ListMessages(conversationID); cerr == nil && len(cached) > 0 {
				c.store.SetMessages(cached)
			}
		}
		return
	}

	converted := make([]Message, 0, len(msgs))
	for _, m := range msgs {
		converted = append(converted, Message{
			ID:          m.ID,
			Role:        Role(m.Role),
			Content:     m.Content,
			CreatedAt:   m.CreatedAt,
			Attachments: attachmentsFromRefs(m.Attachments, c.backend.FileURL),
		})
	}
	c.store.SetMessages(converted)
}

// SendMessage delivers content (plus any attachments) to the active
// conversation, streaming when a connection can be established and
// falling back to the synchronous request path otherwise. Both paths
// produce the same store contract: append on success, rollback on
// failure. Failures come back in the result, never as panics.
func (c *Coordinator) SendMessage(ctx context.Context, content string, attachments ...Attachment) SendResult {
	conv := c.store.ActiveConversation()
	if conv == nil {
		c.store.SetError("No active conversation")
		return SendResult{Err: ErrNoActiveSession}
	}

	// Overlapping sends on one conversation would corrupt the
	// rollback-most-recent rule; reject instead.
	if !c.beginSend(conv.ID) {
		return SendResult{Err: ErrBusy}
	}
	defer c.endSend(conv.ID)

	c.store.ClearError()
	c.store.ClearStreaming()

	userMsg := Message{
		ID:          uuid.NewString(),
		Role:        RoleUser,
		Content:     content,
		CreatedAt:   time.Now(),
		Attachments: attachments,
	}
	c.store.PushMessage(userMsg)

	var fileIDs []string
	for _, att := range attachments {
		fileIDs = append(fileIDs, att.FileID)
	}

	var res SendResult
	if stream := c.streamFor(conv.ID); stream != nil {
		res = c.streamExchange(ctx, conv, stream, content, fileIDs, userMsg.ID)
	} else {
		res = c.fallbackExchange(ctx, conv, content, fileIDs, userMsg.ID)
	}

	if res.Success {
		c.saveTranscript(conv.ID)
	}
	return res
}

func (c *Coordinator) beginSend(conversationID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inFlight[conversationID] {
		return false
	}
	c.inFlight[conversationID] = true
	return true
}

func (c *Coordinator) endSend(conversationID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inFlight, conversationID)
}

// streamFor returns an open connection for the conversation, dialing
// lazily. Returns nil when no stream can be established within the
// bounded wait; the caller then takes the fallback path.
func (c *Coordinator) streamFor(conversationID string) Stream {
	c.mu.Lock()
	existing := c.conns[conversationID]
	c.mu.Unlock()

	if existing != nil && existing.IsConnected() {
		return existing
	}

	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token()
	if err != nil || token == "" {
		logger.Debug().Err(err).Msg("no auth token, using fallback path")
		return nil
	}

	url, err := c.backend.StreamURL(token)
	if err != nil {
		logger.Error().Err(err).Msg("bad stream URL")
		return nil
	}

	s := c.newStream(url)
	if err := s.Connect(); err != nil {
		// Cancel any reconnect the failed dial may have scheduled.
		s.Disconnect()
		logger.Debug().Err(err).Msg("stream connect failed, using fallback path")
		return nil
	}

	c.mu.Lock()
	if existing != nil {
		existing.Disconnect()
	}
	c.conns[conversationID] = s
	c.mu.Unlock()
	return s
}

func (c *Coordinator) streamExchange(ctx context.Context, conv *Conversation, stream Stream, content string, fileIDs []string, userMsgID string) SendResult {
	ex := newExchange(c.store, stream, c.backend.FileURL, userMsgID, c.cfg.ResponseTimeout)
	ex.register()

	if !stream.Send(protocol.NewMessageFrame(content, conv.AssistantID, fileIDs)) {
		ex.fail(ErrStreamSend, "Failed to send message over stream")
		return <-ex.done
	}
	ex.arm()

	select {
	case res := <-ex.done:
		return res
	case <-ctx.Done():
		ex.fail(ctx.Err(), "Request cancelled")
		return <-ex.done
	}
}

func (c *Coordinator) fallbackExchange(ctx context.Context, conv *Conversation, content string, fileIDs []string, userMsgID string) SendResult {
	resp, err := c.backend.SendChatMessage(ctx, api.ChatRequest{
		Content:     content,
		AssistantID: conv.AssistantID,
		FileIDs:     fileIDs,
	})
	if err != nil {
		c.rollbackUser(userMsgID)
		c.store.SetError(displayError(err))
		return SendResult{Err: err}
	}

	now := time.Now()
	c.store.PushMessage(Message{
		ID:          resp.MessageID,
		Role:        RoleAssistant,
		Content:     resp.Content,
		CreatedAt:   now,
		Attachments: attachmentsFromRefs(resp.Attachments, c.backend.FileURL),
	})
	c.store.UpdateConversation(func(cv *Conversation) {
		cv.MessageCount += 2
		cv.UpdatedAt = now
	})

	return SendResult{
		Success:    true,
		MessageID:  resp.MessageID,
		Content:    resp.Content,
		ResponseID: resp.ResponseID,
	}
}

// rollbackUser removes the optimistic user message, but only when it is
// still the most recent entry.
func (c *Coordinator) rollbackUser(userMsgID string) {
	if last, ok := c.store.LastMessage(); ok && last.ID == userMsgID {
		c.store.PopLastMessage()
	}
}

func (c *Coordinator) saveTranscript(conversationID string) {
	if c.cache == nil {
		return
	}
	msgs := c.store.Messages()
	if len(msgs) < 2 {
		return
	}
	if err := c.cache.SaveExchange(conversationID, msgs[len(msgs)-2:]); err != nil {
		logger.Warn().Err(err).Str("conversation", conversationID).Msg("transcript save failed")
	}
}

// DisconnectConversation tears down the conversation's connection, if
// any. Applied message mutations are never undone.
func (c *Coordinator) DisconnectConversation(conversationID string) {
	c.mu.Lock()
	s := c.conns[conversationID]
	delete(c.conns, conversationID)
	c.mu.Unlock()

	if s != nil {
		s.Disconnect()
	}
}

// DisconnectAll tears down every connection.
func (c *Coordinator) DisconnectAll() {
	c.mu.Lock()
	conns := c.conns
	c.conns = make(map[string]Stream)
	c.mu.Unlock()

	for _, s := range conns {
		s.Disconnect()
	}
}

// displayError turns an error into the human-readable string recorded
// in the store. Unexpected failures get a stable generic message.
func displayError(err error) string {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return "An unexpected error occurred"
}

func attachmentsFromRefs(refs []api.AttachmentRef, fileURL func(string) string) []Attachment {
	if len(refs) == 0 {
		return nil
	}
	atts := make([]Attachment, 0, len(refs))
	for _, ref := range refs {
		atts = append(atts, Attachment{
			ID:         ref.FileID,
			FileID:     ref.FileID,
			Name:       fmt.Sprintf("image_%s.png", shortID(ref.FileID)),
			Type:       ref.Type,
			URL:        fileURL(ref.FileID),
			PreviewURL: fileURL(ref.FileID),
		})
	}
	return atts
}
