package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const telegramMaxMessageLen = 4096

// TelegramChannel implements the Channel interface for Telegram Bot API.
type TelegramChannel struct {
	baseURL  string
	client   *http.Client
	offset   int
	stop     chan struct{}
	stopOnce sync.Once
}

// NewTelegramChannel creates a Telegram channel adapter.
func NewTelegramChannel(token string) (*TelegramChannel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required (WALK_TELEGRAM_BOT_TOKEN)")
	}
	return &TelegramChannel{
		baseURL: "https://api.telegram.org/bot" + token,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		stop: make(chan struct{}),
	}, nil
}

func (t *TelegramChannel) SendTyping(ctx context.Context, userID string) error {
	resp, err := t.postForm(ctx, "/sendChatAction", url.Values{
		"chat_id": {userID},
		"action":  {"typing"},
	})
	if err != nil {
		return fmt.Errorf("sending typing indicator: %w", err)
	}
	_ = resp.Body.Close()
	return nil
}

// SendMessage sends text in Telegram-sized parts. The choices become a reply
// keyboard on the last part; a message without choices removes any keyboard.
func (t *TelegramChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	parts := SplitMessage(msg.Text, telegramMaxMessageLen)

	for i, part := range parts {
		params := url.Values{
			"chat_id": {userID},
			"text":    {part},
		}
		if i == len(parts)-1 {
			markup, err := replyMarkup(msg.Choices)
			if err != nil {
				return err
			}
			params.Set("reply_markup", markup)
		}

		resp, err := t.postForm(ctx, "/sendMessage", params)
		if err != nil {
			return fmt.Errorf("sending Telegram message: %w", err)
		}
		_ = resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("telegram API error %d", resp.StatusCode)
		}
	}

	return nil
}

func (t *TelegramChannel) Start(ctx context.Context, handler func(InboundMessage)) error {
	if err := t.syncCommands(ctx); err != nil {
		slog.Warn("failed to register Telegram commands", "error", err)
	}
	go t.pollLoop(ctx, handler)
	return nil
}

// BotCommands are advertised in the Telegram command menu.
var BotCommands = []struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}{
	{"start", "Start a questionnaire from the beginning"},
	{"back", "Go back one question"},
	{"view", "Show the current question again"},
	{"list", "List available questionnaires"},
	{"help", "Show how to answer"},
}

func (t *TelegramChannel) syncCommands(ctx context.Context) error {
	payload, err := json.Marshal(BotCommands)
	if err != nil {
		return fmt.Errorf("encoding commands: %w", err)
	}
	resp, err := t.postForm(ctx, "/setMyCommands", url.Values{"commands": {string(payload)}})
	if err != nil {
		return fmt.Errorf("setting commands: %w", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram API error %d", resp.StatusCode)
	}
	return nil
}

func (t *TelegramChannel) Stop() error {
	t.stopOnce.Do(func() { close(t.stop) })
	return nil
}

func (t *TelegramChannel) postForm(ctx context.Context, method string, params url.Values) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+method, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return t.client.Do(req)
}

// pollLoop hands messages to handler one at a time so a user's answers are
// applied in the order they were sent.
func (t *TelegramChannel) pollLoop(ctx context.Context, handler func(InboundMessage)) {
	slog.Info("Telegram long-polling started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		default:
			updates, err := t.getUpdates(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("Telegram getUpdates error", "error", err)
				time.Sleep(5 * time.Second)
				continue
			}

			for _, u := range updates {
				t.offset = u.UpdateID + 1
				msg, ok := mapTelegramInbound(u)
				if !ok {
					continue
				}
				handler(msg)
			}
		}
	}
}

func (t *TelegramChannel) getUpdates(ctx context.Context) ([]tgUpdate, error) {
	params := url.Values{
		"offset":  {strconv.Itoa(t.offset)},
		"timeout": {"30"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		OK     bool       `json:"ok"`
		Result []tgUpdate `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	if !result.OK {
		return nil, fmt.Errorf("telegram API returned ok=false")
	}

	return result.Result, nil
}

// Telegram API types (minimal)
type tgUpdate struct {
	UpdateID int        `json:"update_id"`
	Message  *tgMessage `json:"message"`
}

type tgMessage struct {
	Text string `json:"text"`
	Chat tgChat `json:"chat"`
	From tgUser `json:"from"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

type tgKeyboardButton struct {
	Text string `json:"text"`
}

type tgReplyKeyboard struct {
	Keyboard        [][]tgKeyboardButton `json:"keyboard"`
	ResizeKeyboard  bool                 `json:"resize_keyboard"`
	OneTimeKeyboard bool                 `json:"one_time_keyboard"`
}

type tgRemoveKeyboard struct {
	RemoveKeyboard bool `json:"remove_keyboard"`
}

// replyMarkup renders one keyboard row per choice.
func replyMarkup(choices []string) (string, error) {
	var v any = tgRemoveKeyboard{RemoveKeyboard: true}
	if len(choices) > 0 {
		kb := tgReplyKeyboard{ResizeKeyboard: true, OneTimeKeyboard: true}
		for _, c := range choices {
			kb.Keyboard = append(kb.Keyboard, []tgKeyboardButton{{Text: c}})
		}
		v = kb
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding reply markup: %w", err)
	}
	return string(data), nil
}

// SplitMessage splits text into chunks that fit Telegram's max message length.
func SplitMessage(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		// Find last newline or space within limit
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > 0 {
			cutAt = idx + 1
		} else if idx := strings.LastIndex(text[:maxLen], " "); idx > 0 {
			cutAt = idx + 1
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}

func mapTelegramInbound(u tgUpdate) (InboundMessage, bool) {
	if u.Message == nil {
		return InboundMessage{}, false
	}

	text := strings.TrimSpace(u.Message.Text)
	if text == "" {
		return InboundMessage{}, false
	}

	return InboundMessage{
		Channel:   "telegram",
		UserID:    strconv.FormatInt(u.Message.Chat.ID, 10),
		Text:      text,
		Username:  u.Message.From.Username,
		FirstName: u.Message.From.FirstName,
	}, true
}
