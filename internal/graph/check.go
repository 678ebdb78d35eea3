package graph

import "fmt"

// Severity ranks a Problem.
type Severity int

const (
	SeverityWarning Severity = iota
	SeverityError
)

func (s Severity) String() string {
	if s == SeverityError {
		return "error"
	}
	return "warning"
}

// Problem is an authoring defect found by Check.
type Problem struct {
	Severity Severity
	Node     NodeID
	Option   string
	Message  string
}

func (p Problem) String() string {
	if p.Option != "" {
		return fmt.Sprintf("%s: node %q option %q: %s", p.Severity, p.Node, p.Option, p.Message)
	}
	return fmt.Sprintf("%s: node %q: %s", p.Severity, p.Node, p.Message)
}

// Check reports dangling next_node references (errors) and nodes that
// cannot be reached from Root (warnings). The graph stays usable either
// way: traversal rejects dangling edges at the time they are taken.
func (g *Graph) Check() []Problem {
	var problems []Problem
	for _, id := range g.order {
		for _, o := range g.nodes[id].Options {
			if !g.Has(o.Next) {
				problems = append(problems, Problem{
					Severity: SeverityError,
					Node:     id,
					Option:   o.Label,
					Message:  fmt.Sprintf("next_node %q does not exist", o.Next),
				})
			}
		}
	}

	reached := g.reachable()
	for _, id := range g.order {
		if _, ok := reached[id]; !ok {
			problems = append(problems, Problem{
				Severity: SeverityWarning,
				Node:     id,
				Message:  "unreachable from start",
			})
		}
	}
	return problems
}

func (g *Graph) reachable() map[NodeID]struct{} {
	seen := map[NodeID]struct{}{Root: {}}
	queue := []NodeID{Root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, o := range g.nodes[id].Options {
			if _, ok := seen[o.Next]; ok || !g.Has(o.Next) {
				continue
			}
			seen[o.Next] = struct{}{}
			queue = append(queue, o.Next)
		}
	}
	return seen
}

// Errors filters problems down to those of SeverityError.
func Errors(problems []Problem) []Problem {
	var out []Problem
	for _, p := range problems {
		if p.Severity == SeverityError {
			out = append(out, p)
		}
	}
	return out
}
