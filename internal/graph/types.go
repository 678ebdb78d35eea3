// Package graph holds the decision graph a questionnaire walks through and
// the loaders that read it from a GraphSource.
package graph

// NodeID identifies a node within a graph.
type NodeID string

// Root is the node every walkthrough begins at.
const Root NodeID = "start"

// Option is a labeled edge from a question node to its next node.
type Option struct {
	Label  string
	Answer string
	Next   NodeID
}

// Node is either a question (with options) or a terminal answer.
type Node struct {
	ID       NodeID
	Question string
	Options  []Option // authored order
	Answer   string
}

// IsTerminal reports whether the node ends the walkthrough.
func (n Node) IsTerminal() bool {
	return len(n.Options) == 0
}

// Option returns the option with the given label.
func (n Node) Option(label string) (Option, bool) {
	for _, o := range n.Options {
		if o.Label == label {
			return o, true
		}
	}
	return Option{}, false
}

// Labels returns the option labels in authored order.
func (n Node) Labels() []string {
	labels := make([]string, len(n.Options))
	for i, o := range n.Options {
		labels[i] = o.Label
	}
	return labels
}

// Graph is an immutable decision graph. Accessors hand out copies.
type Graph struct {
	nodes  map[NodeID]Node
	order  []NodeID
	digest string
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id NodeID) (Node, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	n.Options = append([]Option(nil), n.Options...)
	return n, true
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id NodeID) bool {
	_, ok := g.nodes[id]
	return ok
}

// Lookup resolves an option of a node without copying the node.
func (g *Graph) Lookup(id NodeID, label string) (Option, bool) {
	n, ok := g.nodes[id]
	if !ok {
		return Option{}, false
	}
	return n.Option(label)
}

// IDs returns node ids in document order.
func (g *Graph) IDs() []NodeID {
	return append([]NodeID(nil), g.order...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Digest returns the blake2b fingerprint of the source document.
func (g *Graph) Digest() string {
	return g.digest
}

// New builds a graph from nodes in the given order. It is used by decoders
// and tests; ids must be unique.
func New(nodes []Node, digest string) (*Graph, error) {
	g := &Graph{
		nodes:  make(map[NodeID]Node, len(nodes)),
		order:  make([]NodeID, 0, len(nodes)),
		digest: digest,
	}
	for _, n := range nodes {
		if n.ID == "" {
			return nil, errEmptyNodeID
		}
		if _, dup := g.nodes[n.ID]; dup {
			return nil, &duplicateError{what: "node", key: string(n.ID)}
		}
		if err := checkOptions(n); err != nil {
			return nil, err
		}
		n.Options = append([]Option(nil), n.Options...)
		g.nodes[n.ID] = n
		g.order = append(g.order, n.ID)
	}
	if _, ok := g.nodes[Root]; !ok {
		return nil, errMissingRoot
	}
	return g, nil
}

func checkOptions(n Node) error {
	seen := make(map[string]struct{}, len(n.Options))
	for _, o := range n.Options {
		if _, dup := seen[o.Label]; dup {
			return &duplicateError{what: "option", key: string(n.ID) + "/" + o.Label}
		}
		seen[o.Label] = struct{}{}
	}
	return nil
}
