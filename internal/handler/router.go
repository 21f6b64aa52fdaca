package handler

import (
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/z-chat/internal/handler/chat"
	"github.com/zhouzirui/z-chat/internal/handler/stream"
	"github.com/zhouzirui/z-chat/internal/handler/ws"
	middlewarePkg "github.com/zhouzirui/z-chat/internal/middleware"
	session "github.com/zhouzirui/z-chat/internal/service/session"
	"github.com/zhouzirui/z-chat/pkg/utils"
)

// NewRouter wires HTTP routes to the session controller.
func NewRouter(ctrl *session.Controller) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS)

	chatHandler := chat.New(ctrl)
	streamHandler := stream.New(ctrl)
	wsHandler := ws.New(ctrl)

	r.Route("/api", func(api chi.Router) {
		chatHandler.RegisterRoutes(api)
		wsHandler.RegisterRoutes(api)

		// send to the active conversation and follow the exchange as SSE
		api.Get("/stream", func(w http.ResponseWriter, r *http.Request) {
			message := r.URL.Query().Get("message")
			if message == "" {
				utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
				return
			}
			if err := streamHandler.HandleStreamRequest(r.Context(), w, message); err != nil {
				// headers are already out; the error frame went in-band
				log.Printf("[stream] error handling request: %v", err)
			}
		})
	})

	return r
}
