package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	errMissingRoot = fmt.Errorf("graph has no %q node", Root)
	errEmptyNodeID = errors.New("graph has a node with an empty id")
)

// LoadError reports that a graph document could not be fetched, parsed or
// validated. It is fatal for the graph it describes.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("loading graph %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// SchemaError lists the schema violations of a document.
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return "document does not match graph schema: " + strings.Join(e.Violations, "; ")
}

// IntegrityError lists the problems that make a graph unusable in strict mode.
type IntegrityError struct {
	Problems []Problem
}

func (e *IntegrityError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	return "graph integrity: " + strings.Join(msgs, "; ")
}

type duplicateError struct {
	what string
	key  string
}

func (e *duplicateError) Error() string {
	return fmt.Sprintf("duplicate %s %q", e.what, e.key)
}
