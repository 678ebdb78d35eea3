// Package catalog holds the questionnaires a deployment serves, keyed by name.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/p-n-ai/pai-walkthrough/internal/graph"
)

// Catalog maps questionnaire names to their graphs.
type Catalog struct {
	graphs      map[string]*graph.Graph
	defaultName string
	mu          sync.RWMutex
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{graphs: make(map[string]*graph.Graph)}
}

// Open loads questionnaires from source: an http(s) URL or a single file
// becomes one questionnaire named after its base name, a directory is
// walked for graph documents.
func Open(ctx context.Context, source string, strict bool) (*Catalog, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		g, err := graph.HTTPLoader{URL: source, Strict: strict}.Load(ctx)
		if err != nil {
			return nil, err
		}
		c := New()
		c.Add(nameFromPath(path.Base(source)), g)
		return c, nil
	}

	info, err := os.Stat(source)
	if err != nil {
		return nil, &graph.LoadError{Source: source, Err: err}
	}
	if !info.IsDir() {
		g, err := graph.FileLoader{Path: source, Strict: strict}.Load(ctx)
		if err != nil {
			return nil, err
		}
		c := New()
		c.Add(nameFromPath(filepath.Base(source)), g)
		return c, nil
	}
	return LoadDir(ctx, source, strict)
}

// LoadDir walks rootDir for .json/.yaml/.yml graph documents. A document
// that fails to load is skipped with a warning.
func LoadDir(ctx context.Context, rootDir string, strict bool) (*Catalog, error) {
	c := New()

	err := filepath.Walk(rootDir, func(p string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || !isGraphFile(p) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		g, err := graph.FileLoader{Path: p, Strict: strict}.Load(ctx)
		if err != nil {
			slog.Warn("skipping invalid questionnaire", "path", p, "error", err)
			return nil
		}

		rel, err := filepath.Rel(rootDir, p)
		if err != nil {
			rel = filepath.Base(p)
		}
		c.Add(nameFromPath(filepath.ToSlash(rel)), g)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading questionnaires: %w", err)
	}

	slog.Info("questionnaires loaded", "root", rootDir, "count", c.Len())
	return c, nil
}

// Add registers a graph under name, replacing any previous one.
func (c *Catalog) Add(name string, g *graph.Graph) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.graphs[name] = g
}

// Get returns the questionnaire with the given name.
func (c *Catalog) Get(name string) (*graph.Graph, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	g, ok := c.graphs[name]
	return g, ok
}

// Names returns all questionnaire names, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.graphs))
	for name := range c.graphs {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of questionnaires.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.graphs)
}

// SetDefault names the questionnaire used when a user picks none.
func (c *Catalog) SetDefault(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.graphs[name]; !ok {
		return fmt.Errorf("questionnaire %q not found", name)
	}
	c.defaultName = name
	return nil
}

// Default returns the default questionnaire. Without an explicit default a
// catalog holding exactly one questionnaire uses it.
func (c *Catalog) Default() (string, *graph.Graph, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.defaultName != "" {
		return c.defaultName, c.graphs[c.defaultName], true
	}
	if len(c.graphs) == 1 {
		for name, g := range c.graphs {
			return name, g, true
		}
	}
	return "", nil, false
}

func isGraphFile(p string) bool {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

func nameFromPath(p string) string {
	return strings.TrimSuffix(p, path.Ext(p))
}
