package api

import "time"

// ChatRequest is the synchronous fallback payload.
type ChatRequest struct {
	Content     string   `json:"content"`
	AssistantID string   `json:"assistant_id"`
	FileIDs     []string `json:"file_ids"`
}

// AttachmentRef is a server-side file reference inside a chat response.
type AttachmentRef struct {
	FileID string `json:"file_id"`
	Type   string `json:"type"`
}

// ChatResponse is the synchronous fallback result. Its shape is
// interchangeable with the streaming terminal event.
type ChatResponse struct {
	MessageID   string          `json:"message_id"`
	Content     string          `json:"content"`
	ResponseID  string          `json:"response_id,omitempty"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
}

// HistoryMessage is a stored message returned by the history endpoint.
type HistoryMessage struct {
	ID          string          `json:"id"`
	Role        string          `json:"role"`
	Content     string          `json:"content"`
	CreatedAt   time.Time       `json:"created_at"`
	Attachments []AttachmentRef `json:"attachments,omitempty"`
}

// Assistant is an assistant record from the directory.
type Assistant struct {
	ID          string `json:"id"`
	AssistantID string `json:"assistant_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Model       string `json:"model,omitempty"`
}

// Upload is the server's description of an uploaded file.
type Upload struct {
	ID         string `json:"id"`
	FileID     string `json:"file_id"`
	Name       string `json:"name"`
	Size       int64  `json:"size"`
	Type       string `json:"type"`
	URL        string `json:"url,omitempty"`
	PreviewURL string `json:"preview_url,omitempty"`
}
