package chat

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ViewCommand is dispatched when a renderer connects so it receives the
// current question without typing anything.
const ViewCommand = "/view"

type wsInbound struct {
	Text string `json:"text"`
}

type wsOutbound struct {
	Text    string   `json:"text"`
	Choices []string `json:"choices"`
}

// WebSocketChannel serves browser renderers. Each connection is one user,
// identified by the ?user= query parameter or a generated id.
//
// The ?user= value is taken as given and is not authenticated: anyone who
// knows an id can resume that user's session, and a newer connection with
// the same id replaces the older one. Deployments that expose the endpoint
// beyond trusted renderers must put it behind a proxy that authenticates
// the caller and sets the parameter itself.
type WebSocketChannel struct {
	originPatterns []string

	mu      sync.RWMutex
	handler func(InboundMessage)
	conns   map[string]*websocket.Conn
}

// NewWebSocketChannel creates a channel accepting connections from the given
// origin patterns in addition to same-origin requests.
func NewWebSocketChannel(originPatterns []string) *WebSocketChannel {
	return &WebSocketChannel{
		originPatterns: originPatterns,
		conns:          make(map[string]*websocket.Conn),
	}
}

func (w *WebSocketChannel) Start(_ context.Context, handler func(InboundMessage)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
	return nil
}

func (w *WebSocketChannel) Stop() error {
	w.mu.Lock()
	conns := w.conns
	w.conns = make(map[string]*websocket.Conn)
	w.handler = nil
	w.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}

func (w *WebSocketChannel) SendTyping(_ context.Context, _ string) error {
	return nil
}

func (w *WebSocketChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	w.mu.RLock()
	c, ok := w.conns[userID]
	w.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no websocket connection for user %s", userID)
	}

	choices := msg.Choices
	if choices == nil {
		choices = []string{}
	}
	if err := wsjson.Write(ctx, c, wsOutbound{Text: msg.Text, Choices: choices}); err != nil {
		return fmt.Errorf("writing websocket message: %w", err)
	}
	return nil
}

// ServeHTTP upgrades the request and relays frames until the peer leaves.
// Frames of one connection are handled in order.
func (w *WebSocketChannel) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	w.mu.RLock()
	handler := w.handler
	w.mu.RUnlock()
	if handler == nil {
		http.Error(rw, "websocket channel not started", http.StatusServiceUnavailable)
		return
	}

	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		userID = newConnID()
	}

	// Server read/write timeouts would otherwise outlive the upgrade.
	rc := http.NewResponseController(rw)
	_ = rc.SetReadDeadline(time.Time{})
	_ = rc.SetWriteDeadline(time.Time{})

	c, err := websocket.Accept(rw, r, &websocket.AcceptOptions{
		OriginPatterns: w.originPatterns,
	})
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer c.CloseNow()

	w.register(userID, c)
	defer w.unregister(userID, c)

	slog.Info("websocket renderer connected", "user_id", userID)
	handler(InboundMessage{Channel: "websocket", UserID: userID, Text: ViewCommand})

	ctx := r.Context()
	for {
		var frame wsInbound
		if err := wsjson.Read(ctx, c, &frame); err != nil {
			status := websocket.CloseStatus(err)
			if status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && !errors.Is(err, context.Canceled) {
				slog.Debug("websocket read ended", "user_id", userID, "error", err)
			}
			return
		}

		text := strings.TrimSpace(frame.Text)
		if text == "" {
			continue
		}
		handler(InboundMessage{Channel: "websocket", UserID: userID, Text: text})
	}
}

// register replaces any older connection of the same user.
func (w *WebSocketChannel) register(userID string, c *websocket.Conn) {
	w.mu.Lock()
	old, ok := w.conns[userID]
	w.conns[userID] = c
	w.mu.Unlock()

	if ok {
		_ = old.Close(websocket.StatusPolicyViolation, "replaced by a newer connection")
	}
}

func (w *WebSocketChannel) unregister(userID string, c *websocket.Conn) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conns[userID] == c {
		delete(w.conns, userID)
	}
}

func newConnID() string {
	b := make([]byte, 8)
	rand.Read(b)
	return fmt.Sprintf("ws-%x", b)
}
