package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"
)

type recordedCall struct {
	Method string
	Body   map[string]any
}

type fakeBotAPI struct {
	mu      sync.Mutex
	calls   []recordedCall
	results map[string]string
}

func (f *fakeBotAPI) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/file/bottoken/") {
			_, _ = w.Write([]byte("OggS-voice"))
			return
		}

		method := strings.TrimPrefix(r.URL.Path, "/bottoken/")
		raw, _ := io.ReadAll(r.Body)
		body := map[string]any{}
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				t.Errorf("decode %s body: %v", method, err)
			}
		}

		f.mu.Lock()
		f.calls = append(f.calls, recordedCall{Method: method, Body: body})
		result, ok := f.results[method]
		f.mu.Unlock()

		if !ok {
			result = "true"
		}
		if result == "error" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"description":"Bad Request: chat not found"}`))
			return
		}
		_, _ = w.Write([]byte(`{"ok":true,"result":` + result + `}`))
	})
}

func (f *fakeBotAPI) recorded() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedCall(nil), f.calls...)
}

func newTestClient(t *testing.T, results map[string]string) (*Client, *fakeBotAPI) {
	t.Helper()
	api := &fakeBotAPI{results: results}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, "token", 0), api
}

func TestSendMessageWithKeyboard(t *testing.T) {
	client, api := newTestClient(t, map[string]string{"sendMessage": `{"message_id":77}`})

	kb := NewReplyKeyboard([]string{"▶️ Начать диалог", "⏹ Завершить диалог"})
	id, err := client.SendMessage(context.Background(), 5, "hello", 3, kb)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if id != 77 {
		t.Fatalf("expected message id 77, got %d", id)
	}

	calls := api.recorded()
	if len(calls) != 1 || calls[0].Method != "sendMessage" {
		t.Fatalf("unexpected calls %+v", calls)
	}
	body := calls[0].Body
	if body["text"] != "hello" || body["chat_id"].(float64) != 5 || body["reply_to_message_id"].(float64) != 3 {
		t.Fatalf("unexpected body %+v", body)
	}
	markup, ok := body["reply_markup"].(map[string]any)
	if !ok || markup["keyboard"] == nil {
		t.Fatalf("expected reply keyboard in %+v", body)
	}
}

func TestSendMessageWithoutKeyboardOmitsMarkup(t *testing.T) {
	client, api := newTestClient(t, map[string]string{"sendMessage": `{"message_id":1}`})
	if _, err := client.SendMessage(context.Background(), 5, "plain", 0, nil); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	body := api.recorded()[0].Body
	if _, ok := body["reply_markup"]; ok {
		t.Fatalf("reply_markup should be omitted, got %+v", body)
	}
	if _, ok := body["reply_to_message_id"]; ok {
		t.Fatalf("reply_to_message_id should be omitted, got %+v", body)
	}
}

func TestSendMessageAPIError(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{"sendMessage": "error"})
	_, err := client.SendMessage(context.Background(), 5, "hello", 0, nil)
	if err == nil || !strings.Contains(err.Error(), "chat not found") {
		t.Fatalf("expected description in error, got %v", err)
	}
}

func TestSendLongMessageSplits(t *testing.T) {
	client, api := newTestClient(t, map[string]string{"sendMessage": `{"message_id":1}`})

	text := strings.Repeat("я", MaxMessageChars*2+5)
	kb := NewInlineRow(InlineButton{Text: "1", CallbackData: "naturalness_rating_1"})
	if err := client.SendLongMessage(context.Background(), 1, text, 9, kb); err != nil {
		t.Fatalf("SendLongMessage: %v", err)
	}

	calls := api.recorded()
	if len(calls) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(calls))
	}
	if _, ok := calls[0].Body["reply_to_message_id"]; !ok {
		t.Fatalf("first chunk should reply to the original message")
	}
	if _, ok := calls[1].Body["reply_markup"]; ok {
		t.Fatalf("middle chunk should not carry the keyboard")
	}
	if _, ok := calls[2].Body["reply_markup"]; !ok {
		t.Fatalf("last chunk should carry the keyboard")
	}
}

func TestGetUpdatesAdvancesOffset(t *testing.T) {
	client, api := newTestClient(t, map[string]string{
		"getUpdates": `[{"update_id":10,"message":{"message_id":1,"chat":{"id":5},"from":{"id":5},"text":"/start"}},
		               {"update_id":12,"callback_query":{"id":"cb","from":{"id":5},"data":"rating_successful"}}]`,
	})

	updates, next, err := client.GetUpdates(context.Background(), 3, time.Second)
	if err != nil {
		t.Fatalf("GetUpdates: %v", err)
	}
	if len(updates) != 2 || next != 13 {
		t.Fatalf("got %d updates next=%d", len(updates), next)
	}
	if updates[0].Message.Text != "/start" || updates[1].CallbackQuery.Data != "rating_successful" {
		t.Fatalf("unexpected updates %+v", updates)
	}
	if api.recorded()[0].Body["offset"].(float64) != 3 {
		t.Fatalf("offset not forwarded")
	}
}

func TestGetFileAndDownload(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"getFile": `{"file_id":"abc","file_path":"voice/file_1.oga"}`,
	})

	f, err := client.GetFile(context.Background(), "abc")
	if err != nil {
		t.Fatalf("GetFile: %v", err)
	}
	data, err := client.DownloadFile(context.Background(), f.FilePath, 0)
	if err != nil {
		t.Fatalf("DownloadFile: %v", err)
	}
	if string(data) != "OggS-voice" {
		t.Fatalf("unexpected data %q", data)
	}

	if _, err := client.DownloadFile(context.Background(), f.FilePath, 3); err == nil {
		t.Fatalf("expected size limit error")
	}
}

func TestEditAndAnswer(t *testing.T) {
	client, api := newTestClient(t, nil)
	if err := client.AnswerCallbackQuery(context.Background(), "cb-1"); err != nil {
		t.Fatalf("AnswerCallbackQuery: %v", err)
	}
	if err := client.EditMessageText(context.Background(), 5, 8, "done"); err != nil {
		t.Fatalf("EditMessageText: %v", err)
	}

	calls := api.recorded()
	if calls[0].Method != "answerCallbackQuery" || calls[0].Body["callback_query_id"] != "cb-1" {
		t.Fatalf("unexpected answer call %+v", calls[0])
	}
	if calls[1].Method != "editMessageText" || calls[1].Body["message_id"].(float64) != 8 {
		t.Fatalf("unexpected edit call %+v", calls[1])
	}
}

func TestSplitMessage(t *testing.T) {
	cases := []struct {
		name   string
		text   string
		limit  int
		chunks int
	}{
		{name: "short", text: "hello", limit: 10, chunks: 1},
		{name: "exact", text: "abcd", limit: 4, chunks: 1},
		{name: "cyrillic", text: "приветмир", limit: 4, chunks: 3},
		{name: "empty", text: "", limit: 4, chunks: 1},
	}

	for _, tc := range cases {
		got := SplitMessage(tc.text, tc.limit)
		if len(got) != tc.chunks {
			t.Errorf("%s: got %d chunks, want %d", tc.name, len(got), tc.chunks)
		}
		if strings.Join(got, "") != tc.text {
			t.Errorf("%s: chunks do not reassemble the text", tc.name)
		}
		for _, c := range got {
			if !utf8.ValidString(c) || utf8.RuneCountInString(c) > tc.limit {
				t.Errorf("%s: bad chunk %q", tc.name, c)
			}
		}
	}
}

func TestPollerDeliversUpdates(t *testing.T) {
	client, _ := newTestClient(t, map[string]string{
		"getUpdates": `[{"update_id":1,"message":{"message_id":1,"chat":{"id":5},"from":{"id":5},"text":"hi"}}]`,
	})

	ctx, cancel := context.WithCancel(context.Background())
	got := make(chan Update, 1)
	done := make(chan error, 1)
	go func() {
		done <- NewPoller(client, time.Second).Run(ctx, func(u Update) {
			select {
			case got <- u:
			default:
			}
		})
	}()

	select {
	case u := <-got:
		if u.Message == nil || u.Message.Text != "hi" {
			t.Fatalf("unexpected update %+v", u)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("poller delivered nothing")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v", err)
	}
}
