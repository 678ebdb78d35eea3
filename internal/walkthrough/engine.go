// Package walkthrough turns chat messages into questionnaire navigation:
// it resolves the user's session, applies the chosen option or command and
// renders the resulting node.
package walkthrough

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/p-n-ai/pai-walkthrough/internal/catalog"
	"github.com/p-n-ai/pai-walkthrough/internal/chat"
	"github.com/p-n-ai/pai-walkthrough/internal/graph"
	"github.com/p-n-ai/pai-walkthrough/internal/navigator"
	"github.com/p-n-ai/pai-walkthrough/internal/session"
)

const (
	fallbackMessage = "Sorry, something went wrong on our side. Please try again in a moment."
	noticeRestarted = "This questionnaire has changed since you started, so we are beginning again."
)

var errNoQuestionnaire = errors.New("no default questionnaire")

// EngineConfig holds dependencies for the walkthrough engine.
type EngineConfig struct {
	Catalog *catalog.Catalog
	Store   session.Store       // defaults to an in-memory store
	Events  session.EventLogger // defaults to NopEventLogger
}

// Engine processes inbound messages. Messages of one user are handled one
// at a time; different users proceed in parallel.
type Engine struct {
	catalog *catalog.Catalog
	store   session.Store
	events  session.EventLogger

	locksMu sync.Mutex
	locks   map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// walk is a resolved session with its navigator.
type walk struct {
	sess   *session.Session
	nav    *navigator.Navigator
	fresh  bool   // created by this message
	notice string // set when an old session had to be replaced
}

// NewEngine creates a new walkthrough engine.
func NewEngine(cfg EngineConfig) *Engine {
	cat := cfg.Catalog
	if cat == nil {
		cat = catalog.New()
	}
	store := cfg.Store
	if store == nil {
		store = session.NewMemoryStore()
	}
	events := cfg.Events
	if events == nil {
		events = session.NopEventLogger{}
	}
	return &Engine{
		catalog: cat,
		store:   store,
		events:  events,
		locks:   make(map[string]*userLock),
	}
}

// ProcessMessage handles an incoming message and returns the reply.
func (e *Engine) ProcessMessage(ctx context.Context, msg chat.InboundMessage) (chat.OutboundMessage, error) {
	slog.Info("processing message",
		"channel", msg.Channel,
		"user_id", msg.UserID,
		"text_len", len(msg.Text),
	)

	unlock := e.lockUser(userKey(msg))
	defer unlock()

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/") && !e.isOptionLabel(msg, text) {
		return e.handleCommand(ctx, msg, text)
	}
	return e.handleChoice(msg, text)
}

// peekView returns the view of the user's active session without starting,
// restarting or ending anything.
func (e *Engine) peekView(msg chat.InboundMessage) (navigator.View, bool) {
	sess, found := e.store.GetActiveSession(userKey(msg))
	if !found {
		return navigator.View{}, false
	}
	g, ok := e.catalog.Get(sess.Questionnaire)
	if !ok {
		return navigator.View{}, false
	}
	nav, err := navigator.Resume(g, sess.State)
	if err != nil {
		return navigator.View{}, false
	}
	return nav.CurrentView(), true
}

// isOptionLabel reports whether text is exactly a label of the current
// question. Such labels win over commands with the same spelling.
func (e *Engine) isOptionLabel(msg chat.InboundMessage, text string) bool {
	v, ok := e.peekView(msg)
	return ok && slices.Contains(v.Options, text)
}

// currentChoices keeps the current keyboard on replies that do not move.
func (e *Engine) currentChoices(msg chat.InboundMessage) []string {
	v, ok := e.peekView(msg)
	if !ok {
		return nil
	}
	return Choices(v)
}

func (e *Engine) handleChoice(msg chat.InboundMessage, text string) (chat.OutboundMessage, error) {
	w, err := e.activeWalk(msg)
	if err != nil {
		return e.walkFailure(msg, err), nil
	}
	if w.fresh || w.notice != "" {
		return e.render(msg, w.nav.CurrentView(), w.notice), nil
	}

	from := w.nav.CurrentView()
	label, matched := MatchOption(from.Options, text)
	if !matched {
		label = text
	}

	if err := w.nav.Advance(label); err != nil {
		e.logEvent(w.sess, session.EventTransitionRejected, map[string]any{
			"node":   string(from.NodeID),
			"option": label,
		})
		notice := noticeUnknownOption
		if matched || from.Terminal {
			notice = noticeInvalidTransition
		}
		slog.Info("transition rejected", "session_id", w.sess.ID, "node", from.NodeID, "error", err)
		return e.render(msg, from, notice), nil
	}

	if err := e.store.SaveState(w.sess.ID, w.nav.State()); err != nil {
		slog.Error("failed to save session state", "session_id", w.sess.ID, "error", err)
		return e.reply(msg, fallbackMessage, nil), nil
	}

	to := w.nav.CurrentView()
	e.logEvent(w.sess, session.EventOptionSelected, map[string]any{
		"from":   string(from.NodeID),
		"option": label,
		"to":     string(to.NodeID),
	})

	if to.Terminal {
		if err := e.store.MarkCompleted(w.sess.ID); err != nil {
			slog.Warn("failed to mark session completed", "session_id", w.sess.ID, "error", err)
		}
		e.logEvent(w.sess, session.EventSessionCompleted, map[string]any{
			"node":  string(to.NodeID),
			"steps": len(w.nav.History()),
		})
	}

	return e.render(msg, to, ""), nil
}

func (e *Engine) handleCommand(_ context.Context, msg chat.InboundMessage, text string) (chat.OutboundMessage, error) {
	cmd, arg, _ := strings.Cut(text, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "/start":
		return e.handleStart(msg, arg), nil
	case BackCommand:
		return e.handleBack(msg), nil
	case chat.ViewCommand:
		w, err := e.activeWalk(msg)
		if err != nil {
			return e.walkFailure(msg, err), nil
		}
		return e.render(msg, w.nav.CurrentView(), w.notice), nil
	case "/list":
		return e.reply(msg, e.listText(), e.currentChoices(msg)), nil
	case "/help":
		return e.reply(msg, helpText, e.currentChoices(msg)), nil
	default:
		text := fmt.Sprintf("Unknown command: %s\nSend /help to see what you can do.", cmd)
		return e.reply(msg, text, e.currentChoices(msg)), nil
	}
}

// handleStart ends the active session and begins the named questionnaire,
// or the default one when no name is given.
func (e *Engine) handleStart(msg chat.InboundMessage, name string) chat.OutboundMessage {
	var g *graph.Graph
	if name == "" {
		var ok bool
		name, g, ok = e.catalog.Default()
		if !ok {
			return e.reply(msg, e.listText(), nil)
		}
	} else {
		var ok bool
		g, ok = e.catalog.Get(name)
		if !ok {
			text := fmt.Sprintf("Unknown questionnaire: %s\n\n%s", name, e.listText())
			return e.reply(msg, text, e.currentChoices(msg))
		}
	}

	if sess, found := e.store.GetActiveSession(userKey(msg)); found {
		e.endSession(sess, "restarted")
	}

	w, err := e.startWalk(msg, name, g)
	if err != nil {
		slog.Error("failed to start session", "questionnaire", name, "error", err)
		return e.reply(msg, fallbackMessage, nil)
	}
	return e.render(msg, w.nav.CurrentView(), greeting(msg))
}

// greeting addresses the user by the name their channel reported, if any.
func greeting(msg chat.InboundMessage) string {
	name := msg.FirstName
	if name == "" {
		name = msg.Username
	}
	if name == "" {
		return ""
	}
	return fmt.Sprintf("Hi %s!", name)
}

func (e *Engine) handleBack(msg chat.InboundMessage) chat.OutboundMessage {
	w, err := e.activeWalk(msg)
	if err != nil {
		return e.walkFailure(msg, err)
	}
	if w.notice != "" {
		return e.render(msg, w.nav.CurrentView(), w.notice)
	}

	from := w.nav.Current()
	if err := w.nav.GoBack(); err != nil {
		e.logEvent(w.sess, session.EventTransitionRejected, map[string]any{
			"node":   string(from),
			"option": BackCommand,
		})
		return e.render(msg, w.nav.CurrentView(), NoticeFor(err))
	}

	if err := e.store.SaveState(w.sess.ID, w.nav.State()); err != nil {
		slog.Error("failed to save session state", "session_id", w.sess.ID, "error", err)
		return e.reply(msg, fallbackMessage, nil)
	}
	e.logEvent(w.sess, session.EventWentBack, map[string]any{
		"from": string(from),
		"to":   string(w.nav.Current()),
	})
	return e.render(msg, w.nav.CurrentView(), "")
}

// activeWalk resolves the user's session, starting the default questionnaire
// when there is none. A session whose questionnaire disappeared or whose
// position no longer exists in the current graph is replaced.
func (e *Engine) activeWalk(msg chat.InboundMessage) (*walk, error) {
	sess, found := e.store.GetActiveSession(userKey(msg))
	if !found {
		name, g, ok := e.catalog.Default()
		if !ok {
			return nil, errNoQuestionnaire
		}
		return e.startWalk(msg, name, g)
	}

	g, ok := e.catalog.Get(sess.Questionnaire)
	if !ok {
		slog.Warn("questionnaire no longer available, ending session",
			"session_id", sess.ID,
			"questionnaire", sess.Questionnaire,
		)
		e.endSession(sess, "questionnaire_removed")
		name, dg, ok := e.catalog.Default()
		if !ok {
			return nil, errNoQuestionnaire
		}
		w, err := e.startWalk(msg, name, dg)
		if err != nil {
			return nil, err
		}
		w.fresh = false
		w.notice = noticeRestarted
		return w, nil
	}

	nav, err := navigator.Resume(g, sess.State)
	if err != nil {
		slog.Warn("session no longer matches questionnaire, restarting",
			"session_id", sess.ID,
			"questionnaire", sess.Questionnaire,
			"old_digest", sess.GraphDigest,
			"new_digest", g.Digest(),
			"error", err,
		)
		e.endSession(sess, "graph_changed")
		w, err := e.startWalk(msg, sess.Questionnaire, g)
		if err != nil {
			return nil, err
		}
		w.fresh = false
		w.notice = noticeRestarted
		return w, nil
	}
	if sess.GraphDigest != "" && sess.GraphDigest != g.Digest() {
		slog.Info("resuming session on a changed questionnaire",
			"session_id", sess.ID,
			"questionnaire", sess.Questionnaire,
		)
	}

	return &walk{sess: sess, nav: nav}, nil
}

func (e *Engine) startWalk(msg chat.InboundMessage, name string, g *graph.Graph) (*walk, error) {
	nav, err := navigator.New(g)
	if err != nil {
		return nil, fmt.Errorf("starting navigator: %w", err)
	}

	sess := session.Session{
		UserID:        userKey(msg),
		Channel:       msg.Channel,
		Questionnaire: name,
		GraphDigest:   g.Digest(),
		State:         nav.State(),
	}
	id, err := e.store.CreateSession(sess)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}
	sess.ID = id

	e.logEvent(&sess, session.EventSessionStarted, map[string]any{
		"questionnaire": name,
		"digest":        g.Digest(),
	})
	slog.Info("session started", "session_id", id, "questionnaire", name, "channel", msg.Channel)

	return &walk{sess: &sess, nav: nav, fresh: true}, nil
}

func (e *Engine) endSession(sess *session.Session, reason string) {
	if err := e.store.EndSession(sess.ID); err != nil {
		slog.Error("failed to end session", "session_id", sess.ID, "error", err)
		return
	}
	e.logEvent(sess, session.EventSessionEnded, map[string]any{"reason": reason})
}

func (e *Engine) walkFailure(msg chat.InboundMessage, err error) chat.OutboundMessage {
	if errors.Is(err, errNoQuestionnaire) {
		return e.reply(msg, e.listText(), nil)
	}
	slog.Error("failed to resolve session", "user_id", msg.UserID, "error", err)
	return e.reply(msg, fallbackMessage, nil)
}

func (e *Engine) logEvent(sess *session.Session, eventType string, data map[string]any) {
	err := e.events.LogEvent(session.Event{
		SessionID: sess.ID,
		UserID:    sess.UserID,
		EventType: eventType,
		Data:      data,
	})
	if err != nil {
		slog.Warn("failed to log event", "event_type", eventType, "error", err)
	}
}

func (e *Engine) render(msg chat.InboundMessage, v navigator.View, notice string) chat.OutboundMessage {
	return e.reply(msg, RenderText(v, notice), Choices(v))
}

func (e *Engine) reply(msg chat.InboundMessage, text string, choices []string) chat.OutboundMessage {
	return chat.OutboundMessage{
		Channel: msg.Channel,
		UserID:  msg.UserID,
		Text:    text,
		Choices: choices,
	}
}

func (e *Engine) listText() string {
	names := e.catalog.Names()
	if len(names) == 0 {
		return "No questionnaires are available right now."
	}
	var b strings.Builder
	b.WriteString("Available questionnaires:")
	for _, n := range names {
		b.WriteString("\n- ")
		b.WriteString(n)
	}
	b.WriteString("\n\nSend /start <name> to begin one.")
	return b.String()
}

const helpText = `Answer by tapping an option, typing its label or sending its number.

/start [name] - begin a questionnaire from the start
/back - go back one question
/view - show the current question again
/list - list the questionnaires`

// lockUser serializes messages of one user. Lock entries are dropped once
// no message of that user is in flight.
func (e *Engine) lockUser(key string) func() {
	e.locksMu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &userLock{}
		e.locks[key] = l
	}
	l.refs++
	e.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(e.locks, key)
		}
		e.locksMu.Unlock()
	}
}

// userKey scopes sessions per channel so equal ids on different platforms
// do not collide.
func userKey(msg chat.InboundMessage) string {
	return msg.Channel + ":" + msg.UserID
}
