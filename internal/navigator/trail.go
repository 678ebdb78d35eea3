package navigator

import "github.com/p-n-ai/pai-walkthrough/internal/graph"

// Step is one answered question on the path to the current node.
type Step struct {
	Node     graph.NodeID
	Question string
	Choice   string
	Answer   string
	Next     graph.NodeID
}

// Trail reconstructs the choices behind a snapshot. When several options of
// a node lead to the same next node the first in authored order is reported.
func Trail(g *graph.Graph, st State) []Step {
	path := append(append([]graph.NodeID(nil), st.History...), st.Current)

	steps := make([]Step, 0, len(st.History))
	for i := 0; i+1 < len(path); i++ {
		node, ok := g.Node(path[i])
		if !ok {
			continue
		}
		step := Step{Node: node.ID, Question: node.Question, Next: path[i+1]}
		for _, o := range node.Options {
			if o.Next == path[i+1] {
				step.Choice = o.Label
				step.Answer = o.Answer
				break
			}
		}
		steps = append(steps, step)
	}
	return steps
}
