// Package api implements the HTTP side of the chat backend: the
// synchronous message fallback, history load, file upload and the
// assistant directory.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chatwire/pkg/logger"
)

// ErrUnexpected is the stable generic failure used when the server gave
// no usable error message.
var ErrUnexpected = errors.New("an unexpected error occurred")

// APIError is a server-provided failure.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("HTTP_%d", e.Status)
}

// Client talks to the chat backend.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewClient creates a Client for the given base URL (e.g.
// "https://host/api"). tokens may be nil for unauthenticated use.
func NewClient(baseURL string, timeout time.Duration, tokens TokenSource) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// StreamURL builds the WebSocket endpoint for a streamed chat session.
// The token rides in the path because the handshake precedes any
// per-message authorization.
func (c *Client) StreamURL(token string) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}

	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return fmt.Sprintf("%s://%s/api/chat/ws/%s", scheme, u.Host, url.PathEscape(token)), nil
}

// FileURL returns the content URL for a server-side file reference.
func (c *Client) FileURL(fileID string) string {
	return c.baseURL + "/files/" + url.PathEscape(fileID) + "/content"
}

// envelope is the optional {success, data, error} wrapper some endpoints
// use around their payloads.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *APIError       `json:"error"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if err := c.authorize(req); err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("request failed")
		return fmt.Errorf("%w: %v", ErrUnexpected, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpected, err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorBody(resp.StatusCode, data)
	}

	if out == nil {
		return nil
	}
	return decodeBody(data, out)
}

func (c *Client) authorize(req *http.Request) error {
	if c.tokens == nil {
		return nil
	}
	token, err := c.tokens.Token()
	if err != nil {
		return fmt.Errorf("get token: %w", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

// decodeBody unmarshals data into out, unwrapping the {success, data}
// envelope when present.
func decodeBody(data []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Success != nil {
		if !*env.Success {
			if env.Error != nil {
				return env.Error
			}
			return ErrUnexpected
		}
		if len(env.Data) > 0 {
			return json.Unmarshal(env.Data, out)
		}
		return nil
	}
	return json.Unmarshal(data, out)
}

// parseErrorBody extracts a server error from a non-2xx response.
func parseErrorBody(status int, data []byte) error {
	var env envelope
	if err := json.Unmarshal(data, &env); err == nil && env.Error != nil {
		env.Error.Status = status
		return env.Error
	}

	// FastAPI-style {"detail": "..."} bodies.
	var detail struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &detail); err == nil && detail.Detail != "" {
		return &APIError{Code: fmt.Sprintf("HTTP_%d", status), Message: detail.Detail, Status: status}
	}

	return &APIError{
		Code:    fmt.Sprintf("HTTP_%d", status),
		Message: http.StatusText(status),
		Status:  status,
	}
}

// SendChatMessage runs the synchronous fallback request.
func (c *Client) SendChatMessage(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := c.do(ctx, http.MethodPost, "/chat/message", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// History loads the stored messages for an assistant's conversation.
func (c *Client) History(ctx context.Context, assistantID string) ([]HistoryMessage, error) {
	var resp struct {
		Messages []HistoryMessage `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/chat/messages/"+url.PathEscape(assistantID), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// ListAssistants returns all assistants visible to the caller.
func (c *Client) ListAssistants(ctx context.Context) ([]Assistant, error) {
	var out []Assistant
	if err := c.do(ctx, http.MethodGet, "/assistants/", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAssistant looks up a single assistant by id.
func (c *Client) GetAssistant(ctx context.Context, id string) (*Assistant, error) {
	var out Assistant
	if err := c.do(ctx, http.MethodGet, "/assistants/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadFile uploads a local file and returns the attachment produced by
// the server.
func (c *Client) UploadFile(ctx context.Context, name string, r io.Reader) (*Upload, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files/upload", &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpected, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnexpected, err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorBody(resp.StatusCode, data)
	}

	var up Upload
	if err := decodeBody(data, &up); err != nil {
		return nil, err
	}
	return &up, nil
}
