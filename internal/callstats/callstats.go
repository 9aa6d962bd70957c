package callstats

import (
	"fmt"

	"github.com/bashprof/bashprof/internal/callgraph"
	"github.com/bashprof/bashprof/internal/trace"
)

type (
	// CmdStats accumulates the executions of one command text within a
	// single function.
	CmdStats struct {
		Cmd       string
		CallCount int
		TotalTime int64
	}

	// Node holds aggregated, recursion-flattened statistics for one
	// function. Self-recursive calls fold into the node itself instead
	// of growing the tree, so an unboundedly recursive function still
	// reports as a single node.
	Node struct {
		Function trace.FunctionKey
		// PrimitiveCalls counts invocations from a different caller.
		PrimitiveCalls int
		// RecursiveCalls counts invocations where the caller is the
		// function itself.
		RecursiveCalls int
		Children       map[trace.FunctionKey]*Node
		CmdStats       map[string]*CmdStats
	}
)

func New(fn trace.FunctionKey) *Node {
	return &Node{
		Function: fn,
		Children: make(map[trace.FunctionKey]*Node),
		CmdStats: make(map[string]*CmdStats),
	}
}

// Aggregate folds a call tree into its statistics tree depth-first.
// Same-identity children merge into the current node and count as
// recursive calls; different-identity children merge into the children
// map and count as primitive calls.
func Aggregate(root *callgraph.Node) *Node {
	ret := New(root.Function)
	for _, c := range root.Children {
		switch {
		case c.Record != nil:
			ret.addRecord(c.Record)
		case c.Node.Function == root.Function:
			ret.merge(Aggregate(c.Node))
			ret.RecursiveCalls++
		default:
			child, ok := ret.Children[c.Node.Function]
			if !ok {
				child = New(c.Node.Function)
				ret.Children[c.Node.Function] = child
			}
			child.merge(Aggregate(c.Node))
			child.PrimitiveCalls++
		}
	}
	return ret
}

func (n *Node) addRecord(r *trace.Record) {
	s, ok := n.CmdStats[r.Cmd]
	if !ok {
		s = &CmdStats{Cmd: r.Cmd}
		n.CmdStats[r.Cmd] = s
	}
	s.CallCount++
	s.TotalTime += r.SpentMicros
}

// CallCount is the total number of invocations, primitive and recursive.
func (n *Node) CallCount() int {
	return n.PrimitiveCalls + n.RecursiveCalls
}

// InlineTime is the time spent in this function's own commands,
// excluding subcalls.
func (n *Node) InlineTime() int64 {
	var sum int64
	for _, s := range n.CmdStats {
		sum += s.TotalTime
	}
	return sum
}

// ChildTime is the time spent in subcalls.
func (n *Node) ChildTime() int64 {
	var sum int64
	for _, c := range n.Children {
		sum += c.TotalTime()
	}
	return sum
}

func (n *Node) TotalTime() int64 {
	return n.InlineTime() + n.ChildTime()
}

// Merge adds o's statistics into n. Both nodes must describe the same
// function.
func (n *Node) Merge(o *Node) error {
	if n.Function != o.Function {
		return fmt.Errorf("cannot merge stats for %s into %s", o.Function, n.Function)
	}
	n.merge(o)
	return nil
}

func (n *Node) merge(o *Node) {
	n.PrimitiveCalls += o.PrimitiveCalls
	n.RecursiveCalls += o.RecursiveCalls
	for k, v := range o.CmdStats {
		s, ok := n.CmdStats[k]
		if !ok {
			s = &CmdStats{Cmd: k}
			n.CmdStats[k] = s
		}
		s.CallCount += v.CallCount
		s.TotalTime += v.TotalTime
	}
	for k, v := range o.Children {
		c, ok := n.Children[k]
		if !ok {
			c = New(k)
			n.Children[k] = c
		}
		c.merge(v)
	}
}
