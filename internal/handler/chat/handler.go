package chat

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	chatmodel "github.com/zhouzirui/z-chat/internal/model/chat"
	session "github.com/zhouzirui/z-chat/internal/service/session"
	"github.com/zhouzirui/z-chat/pkg/utils"
)

// Handler 会话管理的HTTP处理器
type Handler struct {
	ctrl *session.Controller
}

// New 创建会话处理器
func New(ctrl *session.Controller) *Handler {
	return &Handler{ctrl: ctrl}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/conversations", h.handleList)
	r.Post("/conversations", h.handleCreate)
	r.Patch("/conversations/{conversationID}", h.handleRename)
	r.Delete("/conversations/{conversationID}", h.handleDelete)
	r.Post("/conversations/{conversationID}/active", h.handleActivate)
	r.Get("/conversations/{conversationID}/messages", h.handleMessages)
	r.Post("/messages", h.handleSend)
}

// handleList 返回全部会话，最新的排在最前
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, map[string]any{
		"conversations": h.ctrl.Conversations(),
		"activeId":      h.ctrl.ActiveID(),
	})
}

// handleCreate 新建会话（本地临时 ID，不发起网络请求）
func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	conv := h.ctrl.CreateConversation()
	utils.RespondJSON(w, http.StatusCreated, conv)
}

// handleRename 重命名会话
func (h *Handler) handleRename(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if payload.Title == "" {
		utils.RespondError(w, http.StatusBadRequest, "title is required")
		return
	}

	id := chi.URLParam(r, "conversationID")
	if err := h.ctrl.RenameConversation(id, payload.Title); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "renamed"})
}

// handleDelete 删除会话；删除当前会话时自动选中下一个
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if err := h.ctrl.DeleteConversation(id); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{
		"status":   "deleted",
		"activeId": h.ctrl.ActiveID(),
	})
}

// handleActivate 切换当前会话
func (h *Handler) handleActivate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	if err := h.ctrl.SetActive(id); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]string{"activeId": id})
}

// handleMessages 返回会话消息快照
func (h *Handler) handleMessages(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "conversationID")
	msgs, err := h.ctrl.Messages(id)
	if err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

// handleSend 发送消息并开启流式交换
func (h *Handler) handleSend(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text        string                 `json:"text"`
		Attachments []chatmodel.Attachment `json:"attachments"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.ctrl.SendMessage(payload.Text, payload.Attachments); err != nil {
		utils.RespondError(w, statusFor(err), err.Error())
		return
	}
	utils.RespondJSON(w, http.StatusAccepted, map[string]string{"status": "streaming"})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, chatmodel.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrStreamActive):
		return http.StatusConflict
	case errors.Is(err, session.ErrEmptyMessage):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
