package chat

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Conversation groups the ordered message history shown in one chat panel.
// Its ID starts out provisional (client-minted) and is rewritten to the
// server-assigned canonical id once the first stream discloses it.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// provisionalPrefix 标记尚未被服务端确认的本地会话 ID。
const provisionalPrefix = "c_"

// NewProvisionalID mints a local conversation id, unique per process.
func NewProvisionalID() string {
	return provisionalPrefix + uuid.NewString()
}

// IsProvisional reports whether the id was minted locally and may still be
// replaced by a canonical one.
func IsProvisional(id string) bool {
	return strings.HasPrefix(id, provisionalPrefix)
}
