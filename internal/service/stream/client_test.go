package stream_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	stream "github.com/zhouzirui/z-chat/internal/service/stream"
)

func collect(t *testing.T, h *stream.Handle, timeout time.Duration) []stream.TransportEvent {
	t.Helper()
	var events []stream.TransportEvent
	deadline := time.After(timeout)
	for {
		select {
		case ev, ok := <-h.Events():
			if !ok {
				return events
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatalf("timed out waiting for stream events, got %d so far", len(events))
		}
	}
}

func TestClientDeliversRecordsInOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req stream.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if req.Query != "hello" || req.ConversationID != "c_1" {
			t.Errorf("unexpected request body: %+v", req)
		}

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, data := range []string{
			`{"event":"message","answer":"Hi"}`,
			`{"event":"message","answer":" there"}`,
			"[DONE]",
		} {
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}))
	defer srv.Close()

	client := stream.NewClient(srv.URL, "secret", 5*time.Second)
	handle, err := client.Open(context.Background(), stream.Request{Query: "hello", ConversationID: "c_1"})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}

	events := collect(t, handle, 5*time.Second)
	if len(events) != 5 {
		t.Fatalf("expected opened + 3 records + closed, got %d events", len(events))
	}
	if events[0].Type != stream.EventOpened {
		t.Fatalf("first event not opened: %+v", events[0])
	}
	want := []string{`{"event":"message","answer":"Hi"}`, `{"event":"message","answer":" there"}`, "[DONE]"}
	for i, data := range want {
		ev := events[i+1]
		if ev.Type != stream.EventRecord || ev.Data != data {
			t.Fatalf("record %d mismatch: %+v", i, ev)
		}
	}
	if events[4].Type != stream.EventClosed {
		t.Fatalf("last event not closed: %+v", events[4])
	}
}

func TestClientSendsAuthAndCacheHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		if got := r.Header.Get("Cache-Control"); got != "no-cache" {
			t.Errorf("unexpected Cache-Control header: %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("unexpected Content-Type header: %q", got)
		}
	}))
	defer srv.Close()

	client := stream.NewClient(srv.URL, "secret", 5*time.Second)
	handle, err := client.Open(context.Background(), stream.Request{Query: "hi"})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}
	collect(t, handle, 5*time.Second)
}

func TestClientReportsNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	client := stream.NewClient(srv.URL, "", 5*time.Second)
	handle, err := client.Open(context.Background(), stream.Request{Query: "hi"})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}

	events := collect(t, handle, 5*time.Second)
	if len(events) != 1 || events[0].Type != stream.EventError {
		t.Fatalf("expected single error event, got %+v", events)
	}
}

func TestClientReportsConnectionFailure(t *testing.T) {
	// nothing listens here
	client := stream.NewClient("http://127.0.0.1:1/chat", "", time.Second)
	handle, err := client.Open(context.Background(), stream.Request{Query: "hi"})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}

	events := collect(t, handle, 5*time.Second)
	if len(events) != 1 || events[0].Type != stream.EventError {
		t.Fatalf("expected single error event, got %+v", events)
	}
}

func TestClientCancelStopsDelivery(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"event\":\"message\",\"answer\":\"Hi\"}\n\n")
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client := stream.NewClient(srv.URL, "", 5*time.Second)
	handle, err := client.Open(context.Background(), stream.Request{Query: "hi"})
	if err != nil {
		t.Fatalf("Open err: %v", err)
	}

	// wait for the first record, then abort
	deadline := time.After(5 * time.Second)
	sawRecord := false
	for !sawRecord {
		select {
		case ev := <-handle.Events():
			if ev.Type == stream.EventRecord {
				sawRecord = true
			}
		case <-deadline:
			t.Fatal("never saw the first record")
		}
	}

	handle.Cancel()
	handle.Cancel() // idempotent

	for ev := range handle.Events() {
		if ev.Type == stream.EventRecord {
			t.Fatalf("record delivered after cancel: %+v", ev)
		}
	}
}
