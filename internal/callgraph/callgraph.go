package callgraph

import (
	"github.com/bashprof/bashprof/internal/errorutil"
	"github.com/bashprof/bashprof/internal/trace"
)

type (
	// Child is one slot in a node's ordered child sequence: either a
	// leaf trace record or a nested call. Exactly one field is set; the
	// two cases are kept as explicit fields rather than an interface so
	// traversals stay exhaustive.
	Child struct {
		Record *trace.Record
		Node   *Node
	}

	// Node is one call in the reconstructed call tree.
	Node struct {
		Function trace.FunctionKey
		Children []Child
		// Parent is nil at the synthetic root.
		Parent *Node

		// Derived by a single bottom-up pass after construction; the
		// tree is immutable afterwards.
		Level       int
		InlineTime  int64
		ChildTime   int64
		TotalTime   int64
		RecordCount int
	}
)

// Build reconstructs the call tree from the measured record sequence.
// Calls and returns are inferred purely from level changes: a level
// increase opens one new call under the cursor, a level decrease pops
// the cursor one parent per level. A level jump greater than one still
// opens a single intermediate call, so nested calls that emit no trace
// line of their own are flattened by one level; downstream consumers
// rely on that shape, do not "fix" it here.
func Build(records []trace.Record) (*Node, error) {
	root := &Node{}
	cur := root
	level := 1
	for i := range records {
		rec := records[i]
		switch {
		case rec.Level > level:
			n := &Node{Function: rec.Function(), Parent: cur}
			cur.Children = append(cur.Children, Child{Node: n})
			cur = n
		case rec.Level < level:
			for j := 0; j < level-rec.Level; j++ {
				if cur.Parent == nil {
					return nil, errorutil.ErrDepthUnderflow
				}
				cur = cur.Parent
			}
		}
		level = rec.Level
		cur.Children = append(cur.Children, Child{Record: &records[i]})
	}
	root.finalize(0)
	return root, nil
}

// finalize computes the memoized tree properties bottom-up.
func (n *Node) finalize(level int) {
	n.Level = level
	n.InlineTime = 0
	n.ChildTime = 0
	n.RecordCount = 0
	for _, c := range n.Children {
		if c.Record != nil {
			n.InlineTime += c.Record.SpentMicros
			n.RecordCount++
			continue
		}
		c.Node.finalize(level + 1)
		n.ChildTime += c.Node.TotalTime
		n.RecordCount += c.Node.RecordCount
	}
	n.TotalTime = n.InlineTime + n.ChildTime
}
