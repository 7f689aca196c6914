package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
)

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// AttachmentType classifies an attached file.
type AttachmentType string

const (
	AttachmentImage    AttachmentType = "image"
	AttachmentDocument AttachmentType = "document"
	AttachmentText     AttachmentType = "text"
)

// Attachment describes a file carried by a message.
type Attachment struct {
	URL           string         `json:"url,omitempty"`
	FileName      string         `json:"file_name,omitempty"`
	MimeType      string         `json:"mime_type,omitempty"`
	DetectedType  AttachmentType `json:"detected_type,omitempty"`
	ExtractedText string         `json:"extracted_text,omitempty"`
	ContentHash   string         `json:"content_hash,omitempty"`
}

// Message is a single entry in a session's conversation.
type Message struct {
	ID          string      `json:"id"`
	Sender      Sender      `json:"sender"`
	Text        string      `json:"text"`
	Timestamp   time.Time   `json:"timestamp"`
	Attachment  *Attachment `json:"attachment,omitempty"`
	IsStreaming bool        `json:"is_streaming,omitempty"`
	IsError     bool        `json:"is_error,omitempty"`
}

// MessageUpdate is a partial in-place update for a message.
// Nil fields are left untouched.
type MessageUpdate struct {
	Text        *string     `json:"text,omitempty"`
	IsStreaming *bool       `json:"is_streaming,omitempty"`
	IsError     *bool       `json:"is_error,omitempty"`
	Attachment  *Attachment `json:"attachment,omitempty"`
}

// NewUserMessage builds a user message with a fresh id.
func NewUserMessage(text string, attachment *Attachment) Message {
	return Message{
		ID:         uuid.NewString(),
		Sender:     SenderUser,
		Text:       text,
		Timestamp:  time.Now().UTC(),
		Attachment: attachment,
	}
}

// newPlaceholderMessage builds the empty streaming AI message inserted at
// stream start so the UI has something to bind to before text arrives.
func newPlaceholderMessage() Message {
	return Message{
		ID:          uuid.NewString(),
		Sender:      SenderAI,
		Timestamp:   time.Now().UTC(),
		IsStreaming: true,
	}
}

// session is one conversational thread. Owned exclusively by the Registry;
// created on first reference and evicted only by an explicit cache clear.
type session struct {
	id        string
	title     string
	messages  []Message
	streaming bool
	cancel    *cancelToken
}

// SendRequest is the input to Registry.SendMessage.
type SendRequest struct {
	SessionID  string
	Message    string
	Type       string // request type hint forwarded to the backend; defaults to "chat"
	Attachment *Attachment
}

// empty reports whether the request carries no sendable content at all.
func (r SendRequest) empty() bool {
	if strings.TrimSpace(r.Message) != "" {
		return false
	}
	if r.Attachment == nil {
		return true
	}
	return r.Attachment.URL == "" && strings.TrimSpace(r.Attachment.ExtractedText) == ""
}

// NewSessionID generates a session identifier.
func NewSessionID() string {
	return shortuuid.New()
}

// validSessionID reports whether an id looks like an identifier we would
// have generated, and so is worth a history fetch. User-visible scratch
// ids (spaces, punctuation) are skipped.
func validSessionID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
