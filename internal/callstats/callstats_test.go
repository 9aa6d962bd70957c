package callstats

import (
	"testing"

	"github.com/bashprof/bashprof/internal/callgraph"
	"github.com/bashprof/bashprof/internal/testutil"
	"github.com/bashprof/bashprof/internal/trace"
)

func rec(idx int, level int, fn string, cmd string, spent int64) trace.Record {
	return trace.Record{
		Idx:         idx,
		Level:       level,
		Lineno:      1,
		Source:      "s.sh",
		Funcname:    fn,
		Cmd:         cmd,
		SpentMicros: spent,
	}
}

func key(fn string) trace.FunctionKey {
	return trace.FunctionKey{Source: "s.sh", Lineno: 1, Funcname: fn}
}

func buildTree(t *testing.T, records []trace.Record) *callgraph.Node {
	t.Helper()
	root, err := callgraph.Build(records)
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func TestAggregateSingleCommand(t *testing.T) {
	root := buildTree(t, []trace.Record{
		rec(1, 1, "", "echo hi", 500),
	})
	stats := Aggregate(root)
	if stats.InlineTime() != 500 || stats.ChildTime() != 0 {
		t.Fatalf("inline=%d child=%d, want 500/0", stats.InlineTime(), stats.ChildTime())
	}
	s, ok := stats.CmdStats["echo hi"]
	if !ok || s.CallCount != 1 || s.TotalTime != 500 {
		t.Fatalf("cmdstats = %+v, want one call of 500us", stats.CmdStats)
	}
}

func TestAggregateSelfRecursion(t *testing.T) {
	// f calls itself once: the inner call folds into the outer node as
	// a recursive call and produces no separate child entry.
	root := buildTree(t, []trace.Record{
		rec(1, 1, "", "start", 1),
		rec(2, 2, "f", "outer", 2),
		rec(3, 3, "f", "inner", 4),
		rec(4, 2, "f", "outer2", 8),
	})
	stats := Aggregate(root)

	f, ok := stats.Children[key("f")]
	if !ok {
		t.Fatalf("missing child f, children = %v", stats.Children)
	}
	if f.RecursiveCalls != 1 {
		t.Fatalf("recursive calls = %d, want 1", f.RecursiveCalls)
	}
	if f.PrimitiveCalls != 1 {
		t.Fatalf("primitive calls = %d, want 1", f.PrimitiveCalls)
	}
	if f.CallCount() != 2 {
		t.Fatalf("call count = %d, want primitive+recursive = 2", f.CallCount())
	}
	if _, ok := f.Children[key("f")]; ok {
		t.Fatal("self-recursion must not create a child entry")
	}
	// All three command records folded into the one node.
	if f.InlineTime() != 2+4+8 {
		t.Fatalf("inline = %d, want 14", f.InlineTime())
	}
}

func TestAggregateCallCounts(t *testing.T) {
	// g is called twice from f, once from h.
	root := buildTree(t, []trace.Record{
		rec(1, 1, "", "a", 1),
		rec(2, 2, "f", "b", 1),
		rec(3, 3, "g", "c", 1),
		rec(4, 2, "f", "d", 1),
		rec(5, 3, "g", "e", 1),
		rec(6, 1, "", "f", 1),
		rec(7, 2, "h", "g", 1),
		rec(8, 3, "g", "h", 1),
	})
	stats := Aggregate(root)

	f := stats.Children[key("f")]
	h := stats.Children[key("h")]
	if f == nil || h == nil {
		t.Fatalf("missing children, got %v", stats.Children)
	}
	if got := f.Children[key("g")].PrimitiveCalls; got != 2 {
		t.Fatalf("g primitive calls under f = %d, want 2", got)
	}
	if got := h.Children[key("g")].PrimitiveCalls; got != 1 {
		t.Fatalf("g primitive calls under h = %d, want 1", got)
	}
	if stats.TotalTime() != 8 {
		t.Fatalf("total = %d, want the sum of all spent times", stats.TotalTime())
	}
}

func TestTimesInvariant(t *testing.T) {
	root := buildTree(t, []trace.Record{
		rec(1, 1, "", "a", 3),
		rec(2, 2, "f", "b", 5),
		rec(3, 3, "g", "c", 7),
		rec(4, 2, "f", "d", 11),
	})
	stats := Aggregate(root)
	var check func(n *Node)
	check = func(n *Node) {
		if n.TotalTime() != n.InlineTime()+n.ChildTime() {
			t.Fatalf("%s: total %d != inline %d + child %d",
				n.Function, n.TotalTime(), n.InlineTime(), n.ChildTime())
		}
		if n.CallCount() != n.PrimitiveCalls+n.RecursiveCalls {
			t.Fatalf("%s: callcount invariant broken", n.Function)
		}
		for _, c := range n.Children {
			check(c)
		}
	}
	check(stats)
}

func TestMergeDoubles(t *testing.T) {
	build := func() *Node {
		root := buildTree(t, []trace.Record{
			rec(1, 1, "", "a", 3),
			rec(2, 2, "f", "b", 5),
			rec(3, 3, "g", "c", 7),
			rec(4, 2, "f", "b", 11),
		})
		return Aggregate(root)
	}
	a, b := build(), build()
	if err := a.Merge(b); err != nil {
		t.Fatal(err)
	}

	if a.TotalTime() != 2*b.TotalTime() || a.InlineTime() != 2*b.InlineTime() {
		t.Fatalf("merge with an identical copy must double times: %d vs %d", a.TotalTime(), b.TotalTime())
	}
	if len(a.Children) != len(b.Children) || len(a.CmdStats) != len(b.CmdStats) {
		t.Fatal("merge must not change the key sets")
	}
	af := a.Children[key("f")]
	bf := b.Children[key("f")]
	if af.PrimitiveCalls != 2*bf.PrimitiveCalls {
		t.Fatalf("child call counts did not double: %d vs %d", af.PrimitiveCalls, bf.PrimitiveCalls)
	}
	if got, want := af.CmdStats["b"].CallCount, 2*bf.CmdStats["b"].CallCount; got != want {
		t.Fatalf("cmd call counts did not double: %d vs %d", got, want)
	}
}

func TestMergeKeyMismatch(t *testing.T) {
	if err := New(key("f")).Merge(New(key("g"))); err == nil {
		t.Fatal("expected an error merging different functions")
	}
}

func TestMergeIsCommutative(t *testing.T) {
	left := New(key("f"))
	left.PrimitiveCalls = 1
	left.addRecord(&trace.Record{Cmd: "x", SpentMicros: 10})

	right := New(key("f"))
	right.RecursiveCalls = 2
	right.addRecord(&trace.Record{Cmd: "y", SpentMicros: 20})

	ab := New(key("f"))
	ab.merge(left)
	ab.merge(right)
	ba := New(key("f"))
	ba.merge(right)
	ba.merge(left)

	if diff := testutil.Diff(ab, ba); diff != "" {
		t.Fatalf("merge order changed the result: got - want +\n%s", diff)
	}
}
