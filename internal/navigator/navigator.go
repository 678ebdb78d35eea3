// Package navigator walks a decision graph one option at a time, keeping a
// linear history so every step can be undone.
package navigator

import (
	"errors"
	"fmt"
	"slices"

	"github.com/p-n-ai/pai-walkthrough/internal/graph"
)

var (
	// ErrInvalidTransition means the chosen option does not exist on the
	// current node or leads to a node missing from the graph.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrAtStart means there is no previous node to return to.
	ErrAtStart = errors.New("already at start")
)

// State is a snapshot of a walkthrough position.
type State struct {
	Current    graph.NodeID   `json:"current"`
	History    []graph.NodeID `json:"history"`
	LastAnswer string         `json:"last_answer,omitempty"`
}

// View is the read-only projection of the current node handed to renderers.
type View struct {
	NodeID     graph.NodeID
	Question   string
	Options    []string // authored order
	Answer     string   // set on terminal nodes
	LastAnswer string
	Terminal   bool
	CanGoBack  bool
}

// Navigator owns one walkthrough. It is not safe for concurrent use.
type Navigator struct {
	graph      *graph.Graph
	current    graph.NodeID
	history    []graph.NodeID
	lastAnswer string
}

// New starts a walkthrough at the root node.
func New(g *graph.Graph) (*Navigator, error) {
	if g == nil {
		return nil, errors.New("graph is nil")
	}
	if !g.Has(graph.Root) {
		return nil, fmt.Errorf("graph has no %q node", graph.Root)
	}
	return &Navigator{graph: g, current: graph.Root}, nil
}

// Resume rebuilds a walkthrough from a snapshot. Every node the snapshot
// names must exist in g.
func Resume(g *graph.Graph, st State) (*Navigator, error) {
	n, err := New(g)
	if err != nil {
		return nil, err
	}
	if st.Current == "" {
		st.Current = graph.Root
	}
	if !g.Has(st.Current) {
		return nil, fmt.Errorf("current node %q not in graph", st.Current)
	}
	for _, id := range st.History {
		if !g.Has(id) {
			return nil, fmt.Errorf("history node %q not in graph", id)
		}
	}
	n.current = st.Current
	n.history = slices.Clone(st.History)
	n.lastAnswer = st.LastAnswer
	return n, nil
}

// Advance follows the option labeled optionKey. On error the state is left
// unchanged.
func (n *Navigator) Advance(optionKey string) error {
	opt, ok := n.graph.Lookup(n.current, optionKey)
	if !ok {
		return fmt.Errorf("%w: node %q has no option %q", ErrInvalidTransition, n.current, optionKey)
	}
	if !n.graph.Has(opt.Next) {
		return fmt.Errorf("%w: option %q of node %q leads to missing node %q",
			ErrInvalidTransition, optionKey, n.current, opt.Next)
	}

	n.history = push(n.history, n.current)
	n.lastAnswer = opt.Answer
	n.current = opt.Next
	return nil
}

// GoBack returns to the previous node and clears the last answer. It does
// not restore the answer that was shown before the matching Advance.
func (n *Navigator) GoBack() error {
	rest, previous, ok := pop(n.history)
	if !ok {
		return ErrAtStart
	}
	n.history = rest
	n.current = previous
	n.lastAnswer = ""
	return nil
}

// CurrentView projects the current node.
func (n *Navigator) CurrentView() View {
	node, _ := n.graph.Node(n.current)
	v := View{
		NodeID:     n.current,
		Question:   node.Question,
		LastAnswer: n.lastAnswer,
		Terminal:   node.IsTerminal(),
		CanGoBack:  len(n.history) > 0,
	}
	if v.Terminal {
		v.Answer = node.Answer
	} else {
		v.Options = node.Labels()
	}
	return v
}

// Current returns the id of the current node.
func (n *Navigator) Current() graph.NodeID {
	return n.current
}

// History returns a copy of the visited path, oldest first.
func (n *Navigator) History() []graph.NodeID {
	return slices.Clone(n.history)
}

// LastAnswer returns the answer text of the option just taken.
func (n *Navigator) LastAnswer() string {
	return n.lastAnswer
}

// State returns a snapshot that shares no memory with the navigator.
func (n *Navigator) State() State {
	return State{
		Current:    n.current,
		History:    slices.Clone(n.history),
		LastAnswer: n.lastAnswer,
	}
}

// push appends to a clipped slice so the result never writes into an
// array another slice still references.
func push(history []graph.NodeID, id graph.NodeID) []graph.NodeID {
	return append(slices.Clip(history), id)
}

// pop returns the shortened history and its removed last element.
func pop(history []graph.NodeID) ([]graph.NodeID, graph.NodeID, bool) {
	if len(history) == 0 {
		return history, "", false
	}
	last := len(history) - 1
	return slices.Clip(history[:last]), history[last], true
}
