package stream_test

import (
	"testing"

	stream "github.com/zhouzirui/z-chat/internal/service/stream"
)

func TestParseRecordContent(t *testing.T) {
	rec := stream.ParseRecord(`{"event":"message","answer":"Hi","conversation_id":"abc-123"}`)
	if rec.Kind != stream.RecordContent {
		t.Fatalf("expected content record, got kind %d", rec.Kind)
	}
	if rec.Answer != "Hi" {
		t.Fatalf("unexpected answer: %q", rec.Answer)
	}
	if rec.ConversationID != "abc-123" {
		t.Fatalf("unexpected conversation id: %q", rec.ConversationID)
	}
}

func TestParseRecordAgentMessage(t *testing.T) {
	rec := stream.ParseRecord(`{"event":"agent_message","answer":" there"}`)
	if rec.Kind != stream.RecordContent || rec.Answer != " there" {
		t.Fatalf("agent_message not decoded as content: %+v", rec)
	}
}

func TestParseRecordDoneSentinel(t *testing.T) {
	if rec := stream.ParseRecord("[DONE]"); rec.Kind != stream.RecordEnd {
		t.Fatalf("sentinel not decoded as end: %+v", rec)
	}
	// whitespace around the sentinel must not matter
	if rec := stream.ParseRecord(" [DONE]\n"); rec.Kind != stream.RecordEnd {
		t.Fatalf("padded sentinel not decoded as end: %+v", rec)
	}
}

func TestParseRecordMessageEnd(t *testing.T) {
	rec := stream.ParseRecord(`{"event":"message_end","conversation_id":"abc-123"}`)
	if rec.Kind != stream.RecordEnd {
		t.Fatalf("message_end not decoded as end: %+v", rec)
	}
	if rec.ConversationID != "abc-123" {
		t.Fatalf("conversation id dropped on end record: %+v", rec)
	}
}

func TestParseRecordServerError(t *testing.T) {
	rec := stream.ParseRecord(`{"status":500,"error":"overloaded"}`)
	if rec.Kind != stream.RecordServerError {
		t.Fatalf("expected server error, got %+v", rec)
	}
	if rec.Status != 500 || rec.ErrMessage != "overloaded" {
		t.Fatalf("error details lost: %+v", rec)
	}
}

func TestParseRecordSuccessStatusIsNotError(t *testing.T) {
	rec := stream.ParseRecord(`{"event":"message","answer":"ok","status":200}`)
	if rec.Kind != stream.RecordContent {
		t.Fatalf("status 200 misread as failure: %+v", rec)
	}
}

func TestParseRecordConversationOnly(t *testing.T) {
	rec := stream.ParseRecord(`{"event":"workflow_started","conversation_id":"abc-123"}`)
	if rec.Kind != stream.RecordContent {
		t.Fatalf("id-bearing record discarded: %+v", rec)
	}
	if rec.Answer != "" || rec.ConversationID != "abc-123" {
		t.Fatalf("unexpected fields: %+v", rec)
	}
}

func TestParseRecordMalformed(t *testing.T) {
	for _, raw := range []string{"not json", "{}", `{"event":"message"}`, ""} {
		if rec := stream.ParseRecord(raw); rec.Kind != stream.RecordMalformed {
			t.Fatalf("expected malformed for %q, got %+v", raw, rec)
		}
	}
}
