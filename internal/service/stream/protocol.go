package stream

import (
	"encoding/json"
	"strings"
)

// RecordKind tags the decoded payload of one stream record.
type RecordKind int

const (
	// RecordContent carries incremental answer text and possibly the
	// canonical conversation id.
	RecordContent RecordKind = iota
	// RecordEnd signals the stream is logically complete.
	RecordEnd
	// RecordServerError reports a logical failure despite a healthy
	// transport connection.
	RecordServerError
	// RecordMalformed marks a record that could not be decoded. It is
	// ignored; the server may self-correct on the next record.
	RecordMalformed
)

// Record is the tagged result of decoding one raw stream record.
type Record struct {
	Kind           RecordKind
	Answer         string
	ConversationID string
	Status         int
	ErrMessage     string
}

// doneSentinel 是服务端在流末尾推送的结束标记。
const doneSentinel = "[DONE]"

const statusOK = 200

// wireRecord mirrors the JSON shape pushed by the inference service.
type wireRecord struct {
	Event          string `json:"event"`
	Answer         string `json:"answer"`
	ConversationID string `json:"conversation_id"`
	Status         *int   `json:"status"`
	Error          string `json:"error"`
}

// ParseRecord decodes one raw record into a tagged payload. It is pure and
// never panics; anything undecodable comes back as RecordMalformed.
func ParseRecord(raw string) Record {
	raw = strings.TrimSpace(raw)
	if raw == doneSentinel {
		return Record{Kind: RecordEnd}
	}

	var w wireRecord
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return Record{Kind: RecordMalformed}
	}

	if w.Status != nil && *w.Status != statusOK {
		return Record{
			Kind:           RecordServerError,
			Status:         *w.Status,
			ErrMessage:     w.Error,
			ConversationID: w.ConversationID,
		}
	}

	if w.Event == "message_end" {
		return Record{Kind: RecordEnd, ConversationID: w.ConversationID}
	}

	answer := ""
	if w.Event == "message" || w.Event == "agent_message" {
		answer = w.Answer
	}
	if answer == "" && w.ConversationID == "" {
		return Record{Kind: RecordMalformed}
	}
	return Record{Kind: RecordContent, Answer: answer, ConversationID: w.ConversationID}
}
