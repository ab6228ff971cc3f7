package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/zhouzirui/dialog-lab/bot/internal/handler/bot"
	"github.com/zhouzirui/dialog-lab/bot/internal/metrics"
	chatService "github.com/zhouzirui/dialog-lab/bot/internal/service/chat"
	"github.com/zhouzirui/dialog-lab/bot/internal/telegram"
)

type captureSink struct {
	mu      sync.Mutex
	updates []telegram.Update
	err     error
}

func (c *captureSink) Dispatch(update telegram.Update) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.updates = append(c.updates, update)
	return nil
}

const testAdminToken = "admin-secret"

func newTestRouter(sink *captureSink) http.Handler {
	r, _ := newTestRouterWithService(sink, testAdminToken)
	return r
}

func newTestRouterWithService(sink *captureSink, adminToken string) (http.Handler, *chatService.Service) {
	metrics.InitMetrics()
	chatSvc := chatService.NewService(nil, nil, chatService.Options{DefaultPrompt: "default"})
	opts := RouterOptions{AdminToken: adminToken}
	if sink != nil {
		opts.Sink = sink
		opts.WebhookSecret = "s3cret"
	}
	return NewRouter(chatSvc, opts), chatSvc
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(nil)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"ok"`) {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := newTestRouter(nil)
	metrics.RecordUpdate("message")

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "dialoglab_updates_total") {
		t.Fatalf("metrics output missing counter")
	}
}

func TestSessionRouteRequiresAdminToken(t *testing.T) {
	r, chatSvc := newTestRouterWithService(nil, testAdminToken)
	chatSvc.StartConversation(context.Background(), 1, "")

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/sessions/1", nil))
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", resp.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/1", nil)
	req.SetBasicAuth(AdminUser, "wrong")
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", resp.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/sessions/1", nil)
	req.SetBasicAuth(AdminUser, testAdminToken)
	resp = httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with admin token, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), `"userId":1`) {
		t.Fatalf("unexpected body %q", resp.Body.String())
	}
}

func TestSessionRouteAbsentWithoutAdminToken(t *testing.T) {
	r, chatSvc := newTestRouterWithService(nil, "")
	chatSvc.StartConversation(context.Background(), 1, "")

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/1", nil)
	req.SetBasicAuth(AdminUser, "")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 when api is disabled, got %d", resp.Code)
	}
}

func TestWebhookNotMountedInPollMode(t *testing.T) {
	r := newTestRouter(nil)

	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{}`)))

	if resp.Code != http.StatusNotFound && resp.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected webhook route to be absent, got %d", resp.Code)
	}
}

func TestWebhookDispatchesUpdate(t *testing.T) {
	sink := &captureSink{}
	r := newTestRouter(sink)

	body := `{"update_id":9,"message":{"message_id":1,"chat":{"id":5},"from":{"id":5},"text":"hi"}}`
	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(sink.updates) != 1 || sink.updates[0].UpdateID != 9 {
		t.Fatalf("unexpected dispatched updates %+v", sink.updates)
	}
	if sink.updates[0].Message == nil || sink.updates[0].Message.Text != "hi" {
		t.Fatalf("message not decoded: %+v", sink.updates[0].Message)
	}
}

func TestWebhookRejectsBadSecret(t *testing.T) {
	sink := &captureSink{}
	r := newTestRouter(sink)

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{"update_id":1}`))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "wrong")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if len(sink.updates) != 0 {
		t.Fatalf("update should not be dispatched")
	}
}

func TestWebhookAsksForRetryWhenQueueFull(t *testing.T) {
	sink := &captureSink{err: bot.ErrQueueFull}
	r := newTestRouter(sink)

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{"update_id":3,"message":{"message_id":1,"chat":{"id":5},"from":{"id":5},"text":"hi"}}`))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}

func TestWebhookAcceptsUpdateWithoutSender(t *testing.T) {
	sink := &captureSink{err: bot.ErrNoSender}
	r := newTestRouter(sink)

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`{"update_id":4}`))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for ignorable update, got %d", resp.Code)
	}
}

func TestWebhookRejectsBadPayload(t *testing.T) {
	sink := &captureSink{}
	r := newTestRouter(sink)

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(`not json`))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
