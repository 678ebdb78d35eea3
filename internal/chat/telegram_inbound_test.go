package chat

import "testing"

func TestMapTelegramInbound_TextMessage(t *testing.T) {
	msg, ok := mapTelegramInbound(tgUpdate{
		UpdateID: 1,
		Message: &tgMessage{
			Text: "  Yes ",
			Chat: tgChat{ID: 123},
			From: tgUser{ID: 456, Username: "u1", FirstName: "Ali"},
		},
	})
	if !ok {
		t.Fatal("expected text update to map")
	}
	if msg.Text != "Yes" {
		t.Fatalf("Text = %q, want Yes", msg.Text)
	}
	if msg.Channel != "telegram" || msg.UserID != "123" {
		t.Fatalf("Channel/UserID = %q/%q, want telegram/123", msg.Channel, msg.UserID)
	}
	if msg.FirstName != "Ali" || msg.Username != "u1" {
		t.Fatalf("FirstName/Username = %q/%q", msg.FirstName, msg.Username)
	}
}

func TestMapTelegramInbound_EmptyText(t *testing.T) {
	_, ok := mapTelegramInbound(tgUpdate{
		UpdateID: 2,
		Message: &tgMessage{
			Text: "   ",
			Chat: tgChat{ID: 123},
		},
	})
	if ok {
		t.Fatal("expected blank message to be ignored")
	}
}

func TestMapTelegramInbound_NoMessage(t *testing.T) {
	if _, ok := mapTelegramInbound(tgUpdate{UpdateID: 3}); ok {
		t.Fatal("expected update without message to be ignored")
	}
}
