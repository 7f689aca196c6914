package api

import "time"

// ContextMessage is one prior conversation turn attached to a send request.
type ContextMessage struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// AttachmentPayload describes a file attached to an outgoing message.
type AttachmentPayload struct {
	URL           string `json:"url,omitempty"`
	FileName      string `json:"fileName,omitempty"`
	MimeType      string `json:"mimeType,omitempty"`
	Type          string `json:"type,omitempty"` // "image", "document", or "text"
	ExtractedText string `json:"extractedText,omitempty"`
	ContentHash   string `json:"contentHash,omitempty"`
}

// SendRequest is the body of POST /chat/send.
type SendRequest struct {
	SessionID     string             `json:"sessionId"`
	Message       string             `json:"message"`
	Type          string             `json:"type"`
	Attachment    *AttachmentPayload `json:"attachment,omitempty"`
	ContextWindow []ContextMessage   `json:"contextWindow,omitempty"`
}

// HistoryMessage is one message as returned by the history endpoint.
type HistoryMessage struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"` // "user" or "ai"
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

type historyResponse struct {
	Success  bool             `json:"success"`
	Messages []HistoryMessage `json:"messages"`
}

// ContextInfo is the server's view of a session's context window.
// Informational only; the client builds its own window.
type ContextInfo struct {
	MessageCount int `json:"messageCount"`
	MaxSize      int `json:"maxSize"`
}

type errorResponse struct {
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}
