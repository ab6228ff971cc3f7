package chat

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	chatService "github.com/zhouzirui/dialog-lab/bot/internal/service/chat"
	"github.com/zhouzirui/dialog-lab/bot/pkg/utils"
)

// Handler 暴露会话状态的只读 HTTP 接口
type Handler struct {
	chatSvc *chatService.Service
}

// New 创建会话查询处理器
func New(chatSvc *chatService.Service) *Handler {
	return &Handler{chatSvc: chatSvc}
}

// RegisterRoutes 注册会话相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/sessions", h.handleStats)
	r.Get("/sessions/{userID}", h.handleGetSession)
}

// handleStats 返回会话数量
func (h *Handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	registry := h.chatSvc.Registry()
	utils.RespondJSON(w, http.StatusOK, map[string]int{
		"total":  registry.Len(),
		"active": registry.CountActive(),
	})
}

// handleGetSession 返回用户当前会话的快照
func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "userID must be an integer")
		return
	}

	snap, ok := h.chatSvc.Snapshot(userID)
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}

	utils.RespondJSON(w, http.StatusOK, snap)
}
