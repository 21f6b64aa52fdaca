package stream

import (
	"context"
	"fmt"
	"net/http"

	session "github.com/zhouzirui/z-chat/internal/service/session"
	"github.com/zhouzirui/z-chat/pkg/utils"
)

// Handler re-streams controller updates for one send as Server-Sent Events,
// so a local UI can follow the exchange without speaking the upstream wire
// protocol itself.
type Handler struct {
	ctrl *session.Controller
}

// New creates a new stream handler
func New(ctrl *session.Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// StreamResponse represents a streaming response chunk
type StreamResponse struct {
	Event          string `json:"event"`
	ConversationID string `json:"conversationId,omitempty"`
	MessageID      string `json:"messageId,omitempty"`
	Content        string `json:"content,omitempty"`
	Finished       bool   `json:"finished,omitempty"`
	Error          string `json:"error,omitempty"`
}

// HandleStreamRequest sends the message and forwards every resulting update
// until the exchange finishes. Closing the request context cancels the
// upstream stream.
func (h *Handler) HandleStreamRequest(ctx context.Context, w http.ResponseWriter, message string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming unsupported")
	}

	utils.SetupSSEHeaders(w)

	// subscribe before sending so the first delta cannot be missed
	updates := h.ctrl.Subscribe()
	defer h.ctrl.Unsubscribe(updates)

	if err := h.ctrl.SendMessage(message, nil); err != nil {
		h.sendSSE(w, flusher, StreamResponse{Event: "error", Error: err.Error(), Finished: true})
		return err
	}

	h.sendSSE(w, flusher, StreamResponse{
		Event:          "start",
		ConversationID: h.ctrl.ActiveID(),
	})

	for {
		select {
		case <-ctx.Done():
			h.ctrl.CancelStream()
			return ctx.Err()
		case u, open := <-updates:
			if !open {
				return nil
			}
			switch u.Kind {
			case session.UpdateDelta:
				h.sendSSE(w, flusher, StreamResponse{
					Event:          "delta",
					ConversationID: u.ConversationID,
					MessageID:      u.MessageID,
					Content:        u.Text,
				})
			case session.UpdateReconciled:
				h.sendSSE(w, flusher, StreamResponse{
					Event:          "conversation",
					ConversationID: u.ConversationID,
				})
			case session.UpdateFinal:
				h.sendSSE(w, flusher, StreamResponse{
					Event:          "end",
					ConversationID: u.ConversationID,
					MessageID:      u.MessageID,
					Finished:       true,
				})
				return nil
			case session.UpdateError:
				h.sendSSE(w, flusher, StreamResponse{
					Event:          "error",
					ConversationID: u.ConversationID,
					Error:          u.Text,
					Finished:       true,
				})
				return nil
			}
		}
	}
}

// sendSSE sends a Server-Sent Event
func (h *Handler) sendSSE(w http.ResponseWriter, flusher http.Flusher, response StreamResponse) {
	utils.SendSSEChunk(w, flusher, response)
}
