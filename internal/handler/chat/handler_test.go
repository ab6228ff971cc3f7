package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/dialog-lab/bot/internal/model/chat"
	chatService "github.com/zhouzirui/dialog-lab/bot/internal/service/chat"
)

func setupRouter() (*chi.Mux, *chatService.Service) {
	chatSvc := chatService.NewService(nil, nil, chatService.Options{DefaultPrompt: "default"})
	handler := New(chatSvc)

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func TestGetSessionFound(t *testing.T) {
	r, chatSvc := setupRouter()
	chatSvc.StartConversation(context.Background(), 42, "custom")

	req := httptest.NewRequest(http.MethodGet, "/sessions/42", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var snap chat.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snap.UserID != 42 || snap.SystemPrompt != "custom" || !snap.Active {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestGetSessionMissing(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/sessions/7", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestGetSessionInvalidID(t *testing.T) {
	r, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/sessions/abc", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}

func TestSessionStats(t *testing.T) {
	r, chatSvc := setupRouter()
	ctx := context.Background()
	chatSvc.StartConversation(ctx, 1, "")
	chatSvc.StartConversation(ctx, 2, "")
	if _, err := chatSvc.EndConversation(ctx, 2); err != nil {
		t.Fatalf("EndConversation: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/sessions", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	var stats map[string]int
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if stats["total"] != 2 || stats["active"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
