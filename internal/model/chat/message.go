package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageType tracks the rendering state of a message.
type MessageType string

const (
	// TypeThinking marks an assistant placeholder still receiving chunks.
	TypeThinking MessageType = "thinking"
	// TypeFinal marks a completed message.
	TypeFinal MessageType = "final"
	// TypeImage marks a user message carrying image attachments.
	TypeImage MessageType = "image"
)

// Attachment references an already-resolved local file chosen by the caller.
// Selection UI lives outside this module.
type Attachment struct {
	LocalRef string `json:"localRef"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

// IsImage reports whether the attachment is an image by MIME type.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MimeType, "image/")
}

// Message is a single turn inside a conversation. Identity never changes
// after creation; only Content is mutated, and only by append.
type Message struct {
	ID          string       `json:"id"`
	Role        Role         `json:"role"`
	Type        MessageType  `json:"type"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// NewMessageID mints a message id with a role-recognizable prefix.
func NewMessageID(role Role) string {
	if role == RoleUser {
		return "u_" + uuid.NewString()
	}
	return "a_" + uuid.NewString()
}
