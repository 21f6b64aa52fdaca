package ws

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	session "github.com/zhouzirui/z-chat/internal/service/session"
)

// Handler pushes every controller update over a websocket, letting a UI
// mirror the conversation store without polling.
type Handler struct {
	ctrl     *session.Controller
	upgrader websocket.Upgrader
}

// New 创建WebSocket处理器
func New(ctrl *session.Controller) *Handler {
	return &Handler{
		ctrl: ctrl,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册WebSocket路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws", h.handleWatch)
}

func (h *Handler) handleWatch(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates := h.ctrl.Subscribe()
	defer h.ctrl.Unsubscribe(updates)

	// drain the client side; any read error ends the watch
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log.Printf("[ws] watcher connected from %s", r.RemoteAddr)
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case u, open := <-updates:
			if !open {
				return
			}
			if err := conn.WriteJSON(u); err != nil {
				log.Printf("[ws] write failed: %v", err)
				return
			}
		}
	}
}
