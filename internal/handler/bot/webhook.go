package bot

import (
	"crypto/subtle"
	"errors"
	"log"
	"net/http"

	"github.com/zhouzirui/dialog-lab/bot/internal/telegram"
	"github.com/zhouzirui/dialog-lab/bot/pkg/utils"
)

const (
	webhookSecretHeader = "X-Telegram-Bot-Api-Secret-Token"
	maxWebhookBody      = 1 << 20
)

// UpdateSink 接收解析后的 Telegram 更新
type UpdateSink interface {
	Dispatch(update telegram.Update) error
}

// WebhookHandler 校验 secret 后把更新交给分发器。处理是异步的，入队成功即返回 200；
// 队列满或已关闭时返回 503，让 Telegram 稍后重投。
func WebhookHandler(sink UpdateSink, secret string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if secret != "" {
			got := r.Header.Get(webhookSecretHeader)
			if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
				utils.RespondError(w, http.StatusUnauthorized, "invalid secret token")
				return
			}
		}

		var update telegram.Update
		if err := utils.DecodeJSON(w, r, maxWebhookBody, &update); err != nil {
			utils.RespondError(w, http.StatusBadRequest, "invalid update payload")
			return
		}

		err := sink.Dispatch(update)
		switch {
		case err == nil, errors.Is(err, ErrNoSender):
			w.WriteHeader(http.StatusOK)
		default:
			log.Printf("[bot] webhook update=%d not dispatched: %v", update.UpdateID, err)
			utils.RespondError(w, http.StatusServiceUnavailable, "update not accepted, retry later")
		}
	}
}
