// Package pstats exports aggregated statistics in the persisted format
// of Python's cProfile, a marshal-encoded mapping from function key
// tuples to call counts and times. Files written here load directly
// into pstats.Stats.
package pstats

import (
	"sort"

	"github.com/bashprof/bashprof/internal/callstats"
	"github.com/bashprof/bashprof/internal/timeutil"
	"github.com/bashprof/bashprof/internal/trace"
)

type (
	// Caller is one caller-attribution row: how much of a function's
	// time came from one distinct calling function.
	Caller struct {
		PrimitiveCalls    int
		CallCount         int
		InlineSeconds     float64
		CumulativeSeconds float64
	}

	// Entry is the per-function stats row, pstats field order.
	Entry struct {
		PrimitiveCalls    int
		CallCount         int
		InlineSeconds     float64
		CumulativeSeconds float64
		Callers           map[trace.FunctionKey]*Caller
	}

	// Table is the full export, keyed the way pstats keys its stats
	// dict.
	Table map[trace.FunctionKey]*Entry
)

func (t Table) entry(fn trace.FunctionKey) *Entry {
	e, ok := t[fn]
	if !ok {
		e = &Entry{Callers: make(map[trace.FunctionKey]*Caller)}
		t[fn] = e
	}
	return e
}

func (e *Entry) caller(fn trace.FunctionKey) *Caller {
	c, ok := e.Callers[fn]
	if !ok {
		c = &Caller{}
		e.Callers[fn] = c
	}
	return c
}

// Collect flattens the stats tree into per-function totals with caller
// attribution. When a child carries the same identity as its parent,
// the already-flattened recursive time would be counted by both; the
// child's cumulative time is subtracted from the parent so it is
// attributed once.
func Collect(root *callstats.Node) Table {
	t := make(Table)
	var fill func(n *callstats.Node)
	fill = func(n *callstats.Node) {
		e := t.entry(n.Function)
		e.CallCount += n.CallCount()
		e.PrimitiveCalls += n.PrimitiveCalls
		e.CumulativeSeconds += timeutil.Seconds(n.TotalTime())
		e.InlineSeconds += timeutil.Seconds(n.InlineTime())
		for _, child := range n.Children {
			fill(child)
			c := t.entry(child.Function).caller(n.Function)
			c.CallCount++
			c.PrimitiveCalls++
			c.InlineSeconds += timeutil.Seconds(child.InlineTime())
			c.CumulativeSeconds += timeutil.Seconds(child.TotalTime())
			if child.Function == n.Function {
				e.CumulativeSeconds -= timeutil.Seconds(child.TotalTime())
			}
		}
	}
	fill(root)
	return t
}

// Keys returns the table's function keys in their total order, the
// order entries are serialized in.
func (t Table) Keys() []trace.FunctionKey {
	keys := make([]trace.FunctionKey, 0, len(t))
	for k := range t {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })
	return keys
}
