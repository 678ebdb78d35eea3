package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

func TestSplitMessage(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		maxLen    int
		wantParts int
	}{
		{"short", "Hello", 4096, 1},
		{"exact", "Hello", 5, 1},
		{"split-needed", "Hello World, this is a test", 10, 4},
		{"empty", "", 4096, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := SplitMessage(tt.text, tt.maxLen)
			if len(parts) != tt.wantParts {
				t.Errorf("SplitMessage() = %d parts, want %d", len(parts), tt.wantParts)
			}
		})
	}
}

func TestSplitMessage_PartsNotExceedMax(t *testing.T) {
	text := "This is a longer message that needs to be split into multiple parts for Telegram delivery."
	maxLen := 20
	parts := SplitMessage(text, maxLen)

	for i, part := range parts {
		if len(part) > maxLen {
			t.Errorf("part[%d] len=%d exceeds maxLen=%d: %q", i, len(part), maxLen, part)
		}
	}
}

func TestNewTelegramChannel_NoToken(t *testing.T) {
	_, err := NewTelegramChannel("")
	if err == nil {
		t.Error("NewTelegramChannel() should error with empty token")
	}
}

func TestNewTelegramChannel_ValidToken(t *testing.T) {
	ch, err := NewTelegramChannel("test-token")
	if err != nil {
		t.Fatalf("NewTelegramChannel() error = %v", err)
	}
	if ch.baseURL != "https://api.telegram.org/bottest-token" {
		t.Errorf("baseURL = %q", ch.baseURL)
	}
	// Stop must be safe to call twice.
	ch.Stop()
	ch.Stop()
}

func TestReplyMarkup(t *testing.T) {
	markup, err := replyMarkup([]string{"Yes", "No"})
	if err != nil {
		t.Fatalf("replyMarkup() error = %v", err)
	}
	var kb tgReplyKeyboard
	if err := json.Unmarshal([]byte(markup), &kb); err != nil {
		t.Fatalf("unmarshal keyboard: %v", err)
	}
	if len(kb.Keyboard) != 2 || kb.Keyboard[0][0].Text != "Yes" || kb.Keyboard[1][0].Text != "No" {
		t.Errorf("keyboard = %+v, want one row per choice in order", kb.Keyboard)
	}

	markup, _ = replyMarkup(nil)
	if markup != `{"remove_keyboard":true}` {
		t.Errorf("replyMarkup(nil) = %s, want remove_keyboard", markup)
	}
}

func TestTelegramChannel_SendMessage(t *testing.T) {
	var mu sync.Mutex
	var forms []map[string]string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		mu.Lock()
		forms = append(forms, map[string]string{
			"path":         r.URL.Path,
			"chat_id":      r.Form.Get("chat_id"),
			"text":         r.Form.Get("text"),
			"reply_markup": r.Form.Get("reply_markup"),
		})
		mu.Unlock()
		w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	ch := &TelegramChannel{baseURL: server.URL, client: server.Client(), stop: make(chan struct{})}

	err := ch.SendMessage(context.Background(), "42", OutboundMessage{
		Text:    "Are you happy?",
		Choices: []string{"Yes", "No"},
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if len(forms) != 1 {
		t.Fatalf("requests = %d, want 1", len(forms))
	}
	got := forms[0]
	if got["path"] != "/sendMessage" || got["chat_id"] != "42" || got["text"] != "Are you happy?" {
		t.Errorf("request = %v", got)
	}
	if got["reply_markup"] == "" {
		t.Error("reply_markup should carry the choices")
	}
}

func TestTelegramChannel_SendMessage_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	ch := &TelegramChannel{baseURL: server.URL, client: server.Client(), stop: make(chan struct{})}

	if err := ch.SendMessage(context.Background(), "42", OutboundMessage{Text: "hi"}); err == nil {
		t.Fatal("SendMessage() should fail on 403")
	}
}
