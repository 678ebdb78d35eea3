package graph

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"
)

const maxDocumentSize = 8 << 20

// Loader fetches and parses a graph once. Failures are *LoadError.
type Loader interface {
	Load(ctx context.Context) (*Graph, error)
}

// FileLoader reads a graph document from the local filesystem.
type FileLoader struct {
	Path   string
	Strict bool // reject graphs with dangling next_node references
}

func (l FileLoader) Load(_ context.Context) (*Graph, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, &LoadError{Source: l.Path, Err: err}
	}
	return finish(l.Path, data, FormatFor(l.Path), l.Strict)
}

// HTTPLoader fetches a graph document over HTTP. There is no retry; the
// caller decides what a failed load means.
type HTTPLoader struct {
	URL    string
	Client *http.Client
	Strict bool
}

func (l HTTPLoader) Load(ctx context.Context) (*Graph, error) {
	client := l.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.URL, nil)
	if err != nil {
		return nil, &LoadError{Source: l.URL, Err: err}
	}
	req.Header.Set("Accept", "application/json, application/yaml")

	resp, err := client.Do(req)
	if err != nil {
		return nil, &LoadError{Source: l.URL, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &LoadError{Source: l.URL, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentSize+1))
	if err != nil {
		return nil, &LoadError{Source: l.URL, Err: fmt.Errorf("reading body: %w", err)}
	}
	if len(data) > maxDocumentSize {
		return nil, &LoadError{Source: l.URL, Err: fmt.Errorf("document exceeds %d bytes", maxDocumentSize)}
	}

	format := FormatJSON
	if u, err := url.Parse(l.URL); err == nil {
		format = FormatFor(u.Path)
	}
	return finish(l.URL, data, format, l.Strict)
}

func finish(source string, data []byte, format Format, strict bool) (*Graph, error) {
	g, err := Parse(data, format)
	if err != nil {
		return nil, &LoadError{Source: source, Err: err}
	}

	problems := g.Check()
	if strict {
		if errs := Errors(problems); len(errs) > 0 {
			return nil, &LoadError{Source: source, Err: &IntegrityError{Problems: errs}}
		}
	}
	for _, p := range problems {
		slog.Warn("graph problem", "source", source, "problem", p.String())
	}

	slog.Info("graph loaded", "source", source, "nodes", g.Len(), "digest", g.Digest())
	return g, nil
}
