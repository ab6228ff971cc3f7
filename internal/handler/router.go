package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/dialog-lab/bot/internal/handler/bot"
	"github.com/zhouzirui/dialog-lab/bot/internal/handler/chat"
	"github.com/zhouzirui/dialog-lab/bot/internal/metrics"
	chatService "github.com/zhouzirui/dialog-lab/bot/internal/service/chat"
	"github.com/zhouzirui/dialog-lab/bot/pkg/utils"
)

const (
	// WebhookPath 是 Telegram 推送更新的路径
	WebhookPath = "/telegram/webhook"
	// AdminUser 是 /api 的 Basic Auth 用户名，密码为 ADMIN_TOKEN
	AdminUser = "admin"
)

// RouterOptions 控制可选路由的挂载。
type RouterOptions struct {
	// Sink 为 nil 时不挂载 webhook（轮询模式）。
	Sink          bot.UpdateSink
	WebhookSecret string
	// AdminToken 为空时不挂载 /api。
	AdminToken string
}

// NewRouter wires HTTP routes to core services.
func NewRouter(chatSvc *chatService.Service, opts RouterOptions) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler())

	if opts.AdminToken != "" {
		chatHandler := chat.New(chatSvc)
		r.Route("/api", func(api chi.Router) {
			api.Use(middleware.BasicAuth("dialog-bot", map[string]string{AdminUser: opts.AdminToken}))
			chatHandler.RegisterRoutes(api)
		})
	}

	if opts.Sink != nil {
		r.Post(WebhookPath, bot.WebhookHandler(opts.Sink, opts.WebhookSecret))
	}

	return r
}
