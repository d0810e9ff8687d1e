package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chatwire/internal/api"
	"chatwire/internal/protocol"
	"chatwire/internal/transport"
)

type fakeStream struct {
	mu        sync.Mutex
	handlers  map[transport.EventKind]map[int]transport.Handler
	nextID    int
	connected bool
	sendOK    bool
	sent      []any

	// script runs in its own goroutine after each successful Send.
	script func(fs *fakeStream)
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		handlers:  make(map[transport.EventKind]map[int]transport.Handler),
		connected: true,
		sendOK:    true,
	}
}

func (fs *fakeStream) Connect() error { return nil }

func (fs *fakeStream) Disconnect() {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.connected = false
}

func (fs *fakeStream) Send(v any) bool {
	fs.mu.Lock()
	fs.sent = append(fs.sent, v)
	ok := fs.sendOK
	script := fs.script
	fs.mu.Unlock()
	if ok && script != nil {
		go script(fs)
	}
	return ok
}

func (fs *fakeStream) On(kind transport.EventKind, h transport.Handler) int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.nextID++
	if fs.handlers[kind] == nil {
		fs.handlers[kind] = make(map[int]transport.Handler)
	}
	fs.handlers[kind][fs.nextID] = h
	return fs.nextID
}

func (fs *fakeStream) Off(kind transport.EventKind, id int) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.handlers[kind], id)
}

func (fs *fakeStream) IsConnected() bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.connected
}

func (fs *fakeStream) emit(ev *protocol.Event) {
	fs.mu.Lock()
	var hs []transport.Handler
	for _, h := range fs.handlers[transport.EventKind(ev.Kind)] {
		hs = append(hs, h)
	}
	fs.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

type fakeBackend struct {
	mu           sync.Mutex
	historyCalls int
	history      []api.HistoryMessage
	historyErr   error
	chatResp     *api.ChatResponse
	chatErr      error
}

func (fb *fakeBackend) SendChatMessage(_ context.Context, req api.ChatRequest) (*api.ChatResponse, error) {
	if fb.chatErr != nil {
		return nil, fb.chatErr
	}
	return fb.chatResp, nil
}

func (fb *fakeBackend) History(_ context.Context, assistantID string) ([]api.HistoryMessage, error) {
	fb.mu.Lock()
	fb.historyCalls++
	fb.mu.Unlock()
	if fb.historyErr != nil {
		return nil, fb.historyErr
	}
	return fb.history, nil
}

func (fb *fakeBackend) StreamURL(token string) (string, error) {
	return "ws://test/api/chat/ws/" + token, nil
}

func (fb *fakeBackend) FileURL(fileID string) string {
	return "http://test/api/files/" + fileID + "/content"
}

func (fb *fakeBackend) calls() int {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	return fb.historyCalls
}

type fakeDirectory struct {
	assistants map[string]*api.Assistant
}

func (fd *fakeDirectory) GetAssistant(_ context.Context, id string) (*api.Assistant, error) {
	if a, ok := fd.assistants[id]; ok {
		return a, nil
	}
	return nil, &api.APIError{Code: "HTTP_404", Message: "Assistant not found", Status: 404}
}

type fakeCache struct {
	mu     sync.Mutex
	saved  map[string][]Message
	cached map[string][]Message
}

func newFakeCache() *fakeCache {
	return &fakeCache{saved: make(map[string][]Message), cached: make(map[string][]Message)}
}

func (fc *fakeCache) SaveExchange(conversationID string, msgs []Message) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	fc.saved[conversationID] = append(fc.saved[conversationID], msgs...)
	return nil
}

func (fc *fakeCache) ListMessages(conversationID string) ([]Message, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.cached[conversationID], nil
}

func testDirectory() *fakeDirectory {
	return &fakeDirectory{assistants: map[string]*api.Assistant{
		"a1": {ID: "a1", AssistantID: "asst_1", Name: "Helper"},
	}}
}

func newTestCoordinator(t *testing.T, backend *fakeBackend, stream *fakeStream, cache TranscriptCache) *Coordinator {
	t.Helper()
	opts := Options{
		Backend:   backend,
		Directory: testDirectory(),
		Cache:     cache,
		Config:    Config{ResponseTimeout: 2 * time.Second},
	}
	if stream != nil {
		opts.Tokens = api.StaticToken("tok")
		opts.StreamFactory = func(url string) Stream { return stream }
	}
	return NewCoordinator(opts)
}

func TestSelectConversation(t *testing.T) {
	backend := &fakeBackend{history: []api.HistoryMessage{
		{ID: "h1", Role: "user", Content: "earlier"},
		{ID: "h2", Role: "assistant", Content: "reply"},
	}}
	c := newTestCoordinator(t, backend, nil, nil)

	require.NoError(t, c.SelectConversation(context.Background(), "a1"))

	conv := c.Store().ActiveConversation()
	require.NotNil(t, conv)
	assert.Equal(t, "a1", conv.ID)
	assert.Equal(t, "asst_1", conv.AssistantID)
	assert.Equal(t, "Chat with Helper", conv.Title)

	msgs := c.Store().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "reply", msgs[1].Content)
}

func TestSelectConversationIdempotent(t *testing.T) {
	backend := &fakeBackend{}
	c := newTestCoordinator(t, backend, nil, nil)

	require.NoError(t, c.SelectConversation(context.Background(), "a1"))
	c.Store().PushMessage(Message{ID: "m1", Role: RoleUser, Content: "kept"})

	require.NoError(t, c.SelectConversation(context.Background(), "a1"))

	assert.Equal(t, 1, backend.calls(), "re-selecting must not refetch history")
	assert.Equal(t, 1, c.Store().MessageCount(), "re-selecting must not clear messages")
}

func TestSelectConversationUnknownAssistant(t *testing.T) {
	c := newTestCoordinator(t, &fakeBackend{}, nil, nil)

	err := c.SelectConversation(context.Background(), "nope")
	require.Error(t, err)
	assert.Equal(t, "Assistant not found", c.Store().Err())
	assert.False(t, c.Store().HasActiveConversation())
}

func TestSelectConversationHistoryFromCache(t *testing.T) {
	backend := &fakeBackend{historyErr: errors.New("offline")}
	cache := newFakeCache()
	cache.cached["a1"] = []Message{{ID: "c1", Role: RoleUser, Content: "cached"}}
	c := newTestCoordinator(t, backend, nil, cache)

	require.NoError(t, c.SelectConversation(context.Background(), "a1"))

	msgs := c.Store().Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "cached", msgs[0].Content)
	assert.NotEmpty(t, c.Store().Err())
}

func TestSendMessageStreamed(t *testing.T) {
	stream := newFakeStream()
	stream.script = func(fs *fakeStream) {
		fs.emit(&protocol.Event{Kind: protocol.KindTextDelta, Content: "Hi "})
		fs.emit(&protocol.Event{Kind: protocol.KindTextDelta, Content: "there"})
		fs.emit(&protocol.Event{Kind: protocol.KindComplete, Content: "Hi there", ResponseID: "r1"})
	}
	cache := newFakeCache()
	c := newTestCoordinator(t, &fakeBackend{}, stream, cache)
	require.NoError(t, c.SelectConversation(context.Background(), "a1"))

	res := c.SendMessage(context.Background(), "Hello")

	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, "Hi there", res.Content)
	assert.Equal(t, "r1", res.ResponseID)

	msgs := c.Store().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "Hello", msgs[0].Content)
	assert.Equal(t, RoleAssistant, msgs[1].Role)
	assert.Equal(t, "Hi there", msgs[1].Content)
	assert.False(t, c.Store().IsStreaming())

	// Outbound frame carries the assistant id, not the conversation id.
	require.Len(t, stream.sent, 1)
	frame := stream.sent[0].(protocol.MessageFrame)
	assert.Equal(t, "asst_1", frame.AssistantID)
	assert.Equal(t, "Hello", frame.Content)

	assert.Len(t, cache.saved["a1"], 2)
}

func TestSendMessageStreamError(t *testing.T) {
	stream := newFakeStream()
	stream.script = func(fs *fakeStream) {
		fs.emit(&protocol.Event{Kind: protocol.KindTextDelta, Content: "par"})
		fs.emit(&protocol.Event{Kind: protocol.KindError, Message: "model unavailable"})
	}
	c := newTestCoordinator(t, &fakeBackend{}, stream, nil)
	require.NoError(t, c.SelectConversation(context.Background(), "a1"))
	before := c.Store().MessageCount()

	res := c.SendMessage(context.Background(), "Hello")

	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, ErrServerRejected)
	assert.Equal(t, before, c.Store().MessageCount(), "rollback must restore pre-send length")
	assert.Equal(t, "model unavailable", c.Store().Err())
	assert.False(t, c.Store().IsStreaming())
}

func TestSendMessageTimeout(t *testing.T) {
	stream := newFakeStream() // accepts the send, never replies
	c := NewCoordinator(Options{
		Backend:       &fakeBackend{},
		Directory:     testDirectory(),
		Tokens:        api.StaticToken("tok"),
		StreamFactory: func(url string) Stream { return stream },
		Config:        Config{ResponseTimeout: 50 * time.Millisecond},
	})
	require.NoError(t, c.SelectConversation(context.Background(), "a1"))
	before := c.Store().MessageCount()

	res := c.SendMessage(context.Background(), "Hello")

	assert.ErrorIs(t, res.Err, ErrTimeout)
	assert.Equal(t, before, c.Store().MessageCount())
	assert.Equal(t, "Message timeout", c.Store().Err())
}

func TestSendMessageStreamSendFailure(t *testing.T) {
	stream := newFakeStream()
	stream.sendOK = false
	c := newTestCoordinator(t, &fakeBackend{}, stream, nil)
	require.NoError(t, c.SelectConversation(context.Background(), "a1"))

	res := c.SendMessage(context.Background(), "Hello")

	assert.ErrorIs(t, res.Err, ErrStreamSend)
	assert.Equal(t, 0, c.Store().MessageCount())
}

func TestSendMessageFallback(t *testing.T) {
	backend := &fakeBackend{chatResp: &api.ChatResponse{
		MessageID: "m1",
		Content:   "ok",
		Attachments: []api.AttachmentRef{
			{FileID: "file-abcdef123456", Type: "image_file"},
		},
	}}
	c := newTestCoordinator(t, backend, nil, nil) // no tokens, no stream
	require.NoError(t, c.SelectConversation(context.Background(), "a1"))

	res := c.SendMessage(context.Background(), "Hello")

	require.NoError(t, res.Err)
	assert.True(t, res.Success)
	assert.Equal(t, "m1", res.MessageID)

	msgs := c.Store().Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "ok", msgs[1].Content)
	require.Len(t, msgs[1].Attachments, 1)
	assert.Equal(t, "image_ef123456.png", msgs[1].Attachments[0].Name)
	assert.Equal(t, "http://test/api/files/file-abcdef123456/content", msgs[1].Attachments[0].URL)

	assert.Equal(t, 2, c.Store().ActiveConversation().MessageCount)
}

func TestSendMessageFallbackError(t *testing.T) {
	backend := &fakeBackend{chatErr: &api.APIError{Message: "quota exceeded", Status: 429}}
	c := newTestCoordinator(t, backend, nil, nil)
	require.NoError(t, c.SelectConversation(context.Background(), "a1"))

	res := c.SendMessage(context.Background(), "Hello")

	require.Error(t, res.Err)
	assert.Equal(t, 0, c.Store().MessageCount(), "optimistic message must be rolled back")
	assert.Equal(t, "quota exceeded", c.Store().Err())
}

func TestSendMessageNoConversation(t *testing.T) {
	c := newTestCoordinator(t, &fakeBackend{}, nil, nil)

	res := c.SendMessage(context.Background(), "Hello")

	assert.ErrorIs(t, res.Err, ErrNoActiveSession)
	assert.Equal(t, "No active conversation", c.Store().Err())
}

func TestSendMessageBusy(t *testing.T) {
	stream := newFakeStream()
	release := make(chan struct{})
	stream.script = func(fs *fakeStream) {
		<-release
		fs.emit(&protocol.Event{Kind: protocol.KindComplete, Content: "done"})
	}
	c := newTestCoordinator(t, &fakeBackend{}, stream, nil)
	require.NoError(t, c.SelectConversation(context.Background(), "a1"))

	first := make(chan SendResult, 1)
	go func() { first <- c.SendMessage(context.Background(), "one") }()

	// Wait for the first send's optimistic message to land.
	require.Eventually(t, func() bool {
		return c.Store().MessageCount() == 1
	}, time.Second, 5*time.Millisecond)

	res := c.SendMessage(context.Background(), "two")
	assert.ErrorIs(t, res.Err, ErrBusy)

	close(release)
	require.NoError(t, (<-first).Err)
}

func TestSendMessageToolCallMarkers(t *testing.T) {
	stream := newFakeStream()
	stream.script = func(fs *fakeStream) {
		fs.emit(&protocol.Event{Kind: protocol.KindTextDelta, Content: "Let me check."})
		fs.emit(&protocol.Event{Kind: protocol.KindToolCallStart, ToolName: "search"})
		fs.emit(&protocol.Event{Kind: protocol.KindToolCallComplete, ToolName: "search"})
		fs.emit(&protocol.Event{Kind: protocol.KindComplete, Content: "Found it."})
	}
	c := newTestCoordinator(t, &fakeBackend{}, stream, nil)
	require.NoError(t, c.SelectConversation(context.Background(), "a1"))

	res := c.SendMessage(context.Background(), "find x")

	require.NoError(t, res.Err)
	msgs := c.Store().Messages()
	require.Len(t, msgs, 2)
	// Terminal content replaces the accumulated text and markers.
	assert.Equal(t, "Found it.", msgs[1].Content)
}

func TestSendMessageImageOutput(t *testing.T) {
	stream := newFakeStream()
	stream.script = func(fs *fakeStream) {
		fs.emit(&protocol.Event{Kind: protocol.KindTextDelta, Content: "Here:"})
		fs.emit(&protocol.Event{
			Kind:   protocol.KindImageOutput,
			Images: []protocol.ImageRef{{FileID: "file-123456789"}},
		})
		fs.emit(&protocol.Event{Kind: protocol.KindComplete, Content: "Here you go."})
	}
	c := newTestCoordinator(t, &fakeBackend{}, stream, nil)
	require.NoError(t, c.SelectConversation(context.Background(), "a1"))

	res := c.SendMessage(context.Background(), "draw")

	require.NoError(t, res.Err)
	msgs := c.Store().Messages()
	require.Len(t, msgs, 2)
	require.Len(t, msgs[1].Attachments, 1)
	assert.Equal(t, "image_23456789.png", msgs[1].Attachments[0].Name)
	assert.Equal(t, "image_file", msgs[1].Attachments[0].Type)
}

func TestDisconnectConversation(t *testing.T) {
	stream := newFakeStream()
	stream.script = func(fs *fakeStream) {
		fs.emit(&protocol.Event{Kind: protocol.KindComplete, Content: "done"})
	}
	c := newTestCoordinator(t, &fakeBackend{}, stream, nil)
	require.NoError(t, c.SelectConversation(context.Background(), "a1"))
	require.NoError(t, c.SendMessage(context.Background(), "hi").Err)
	require.True(t, stream.IsConnected())

	c.DisconnectConversation("a1")
	assert.False(t, stream.IsConnected())

	// Applied messages survive the disconnect.
	assert.Equal(t, 2, c.Store().MessageCount())
}
