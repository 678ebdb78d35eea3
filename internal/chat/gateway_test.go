package chat_test

import (
	"context"
	"testing"

	"github.com/p-n-ai/pai-walkthrough/internal/chat"
)

func TestNewGateway(t *testing.T) {
	gw := chat.NewGateway()
	if gw == nil {
		t.Fatal("NewGateway() returned nil")
	}
}

func TestGateway_RegisterChannel(t *testing.T) {
	gw := chat.NewGateway()
	mock := &chat.MockChannel{}

	gw.Register("telegram", mock)

	if !gw.HasChannel("telegram") {
		t.Error("HasChannel(telegram) should be true after Register")
	}
}

func TestGateway_HasChannel_NotRegistered(t *testing.T) {
	gw := chat.NewGateway()

	if gw.HasChannel("whatsapp") {
		t.Error("HasChannel(whatsapp) should be false when not registered")
	}
}

func TestGateway_SendMessage(t *testing.T) {
	gw := chat.NewGateway()
	mock := &chat.MockChannel{}
	gw.Register("telegram", mock)

	err := gw.Send(context.Background(), chat.OutboundMessage{
		Channel: "telegram",
		UserID:  "123",
		Text:    "Hello!",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(mock.SentMessages) != 1 {
		t.Errorf("SentMessages = %d, want 1", len(mock.SentMessages))
	}
}

func TestGateway_SendTyping(t *testing.T) {
	gw := chat.NewGateway()
	mock := &chat.MockChannel{}
	gw.Register("telegram", mock)

	if err := gw.SendTyping(context.Background(), "telegram", "123"); err != nil {
		t.Fatalf("SendTyping() error = %v", err)
	}
	if mock.Typing != 1 {
		t.Errorf("Typing = %d, want 1", mock.Typing)
	}
	if err := gw.SendTyping(context.Background(), "unknown", "123"); err == nil {
		t.Error("SendTyping() should error for unknown channel")
	}
}

func TestGateway_SendMessage_UnknownChannel(t *testing.T) {
	gw := chat.NewGateway()

	err := gw.Send(context.Background(), chat.OutboundMessage{
		Channel: "unknown",
		UserID:  "123",
		Text:    "Hello!",
	})
	if err == nil {
		t.Error("Send() should error for unknown channel")
	}
}

func TestGateway_StartAllAndStopAll(t *testing.T) {
	gw := chat.NewGateway()
	tg := &chat.MockChannel{}
	ws := &chat.MockChannel{}
	gw.Register("telegram", tg)
	gw.Register("websocket", ws)

	if err := gw.StartAll(context.Background(), func(chat.InboundMessage) {}); err != nil {
		t.Fatalf("StartAll() error = %v", err)
	}
	if !tg.Started || !ws.Started {
		t.Error("StartAll() should start every channel")
	}

	if err := gw.StopAll(); err != nil {
		t.Fatalf("StopAll() error = %v", err)
	}
	if !tg.Stopped || !ws.Stopped {
		t.Error("StopAll() should stop every channel")
	}
}

func TestGateway_SendKeepsChoices(t *testing.T) {
	gw := chat.NewGateway()
	mock := &chat.MockChannel{}
	gw.Register("websocket", mock)

	err := gw.Send(context.Background(), chat.OutboundMessage{
		Channel: "websocket",
		UserID:  "u1",
		Text:    "Are you happy?",
		Choices: []string{"Yes", "No"},
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	got := mock.SentMessages[0].Choices
	if len(got) != 2 || got[0] != "Yes" || got[1] != "No" {
		t.Errorf("Choices = %v, want [Yes No]", got)
	}
}
