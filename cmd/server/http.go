package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/p-n-ai/pai-walkthrough/internal/catalog"
	"github.com/p-n-ai/pai-walkthrough/internal/chat"
	"github.com/p-n-ai/pai-walkthrough/internal/report"
	"github.com/p-n-ai/pai-walkthrough/internal/session"
)

type healthChecker interface {
	HealthCheck(ctx context.Context) error
}

// deps are the collaborators the HTTP handlers read from.
type deps struct {
	catalog *catalog.Catalog
	store   session.Store
	ws      *chat.WebSocketChannel
	checks  map[string]healthChecker
}

// newMux creates the HTTP router.
func newMux(d deps) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", d.handleReadyz)
	mux.HandleFunc("GET /questionnaires", d.handleQuestionnaires)
	mux.HandleFunc("GET /questionnaires/{path...}", d.handleExportGraph)
	mux.HandleFunc("GET /sessions/{id}/trail.xlsx", d.handleExportTrail)
	if d.ws != nil {
		mux.Handle("GET /ws", d.ws)
	}
	return mux
}

func handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

func (d deps) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, c := range d.checks {
		if err := c.HealthCheck(ctx); err != nil {
			slog.Warn("readiness check failed", "dependency", name, "error", err)
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failed": failed})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

type questionnaireInfo struct {
	Name    string `json:"name"`
	Nodes   int    `json:"nodes"`
	Digest  string `json:"digest"`
	Default bool   `json:"default,omitempty"`
}

func (d deps) handleQuestionnaires(w http.ResponseWriter, r *http.Request) {
	defaultName, _, _ := d.catalog.Default()

	list := []questionnaireInfo{}
	for _, name := range d.catalog.Names() {
		g, ok := d.catalog.Get(name)
		if !ok {
			continue
		}
		list = append(list, questionnaireInfo{
			Name:    name,
			Nodes:   g.Len(),
			Digest:  g.Digest(),
			Default: name == defaultName,
		})
	}
	writeJSON(w, http.StatusOK, list)
}

// handleExportGraph serves /questionnaires/{name}/export.xlsx. Names may
// contain slashes, so the suffix is matched here.
func (d deps) handleExportGraph(w http.ResponseWriter, r *http.Request) {
	name, ok := strings.CutSuffix(r.PathValue("path"), "/export.xlsx")
	if !ok {
		http.NotFound(w, r)
		return
	}
	g, found := d.catalog.Get(name)
	if !found {
		http.Error(w, "questionnaire not found", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteGraph(&buf, name, g); err != nil {
		slog.Error("failed to export questionnaire", "questionnaire", name, "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	writeWorkbook(w, exportFilename(name), buf.Bytes())
}

func (d deps) handleExportTrail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sess, err := d.store.GetSession(id)
	if errors.Is(err, session.ErrNotFound) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	if err != nil {
		slog.Error("failed to load session", "session_id", id, "error", err)
		http.Error(w, "session lookup failed", http.StatusInternalServerError)
		return
	}
	g, found := d.catalog.Get(sess.Questionnaire)
	if !found {
		http.Error(w, "questionnaire no longer available", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteTrail(&buf, sess, g); err != nil {
		slog.Error("failed to export trail", "session_id", id, "error", err)
		http.Error(w, "export failed", http.StatusInternalServerError)
		return
	}
	writeWorkbook(w, "trail-"+id+".xlsx", buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}

func writeWorkbook(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func exportFilename(name string) string {
	return strings.ReplaceAll(name, "/", "-") + ".xlsx"
}
