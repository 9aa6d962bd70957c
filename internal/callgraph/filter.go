package callgraph

import (
	"fmt"
	"regexp"
)

// Filter re-roots the tree on every subtree whose function name matches
// pattern, so a single function's executions can be analyzed in
// isolation. The first match along a path wins: the walk does not
// descend into a matched subtree looking for further matches, but does
// descend into non-matching siblings. Matching is anchored at the start
// of the function name.
func Filter(root *Node, pattern string) (*Node, error) {
	rgx, err := regexp.Compile("^(?:" + pattern + ")")
	if err != nil {
		return nil, fmt.Errorf("invalid function filter %q: %w", pattern, err)
	}

	out := &Node{}
	var walk func(n *Node)
	walk = func(n *Node) {
		if rgx.MatchString(n.Function.Funcname) {
			n.Parent = out
			out.Children = append(out.Children, Child{Node: n})
			return
		}
		for _, c := range n.Children {
			if c.Node != nil {
				walk(c.Node)
			}
		}
	}
	walk(root)
	out.finalize(0)
	return out, nil
}
