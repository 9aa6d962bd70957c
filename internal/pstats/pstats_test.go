package pstats

import (
	"bytes"
	"strings"
	"testing"

	"github.com/bashprof/bashprof/internal/callgraph"
	"github.com/bashprof/bashprof/internal/callstats"
	"github.com/bashprof/bashprof/internal/testutil"
	"github.com/bashprof/bashprof/internal/timeutil"
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

func aggregate(t *testing.T, records []trace.Record) *callstats.Node {
	t.Helper()
	root, err := callgraph.Build(records)
	if err != nil {
		t.Fatal(err)
	}
	return callstats.Aggregate(root)
}

func TestCollect(t *testing.T) {
	stats := aggregate(t, []trace.Record{
		rec(1, 1, "", "a", 100),
		rec(2, 2, "f", "b", 200),
		rec(3, 3, "g", "c", 400),
		rec(4, 2, "f", "d", 800),
	})
	table := Collect(stats)

	want := Table{
		{}: {
			PrimitiveCalls:    0,
			CallCount:         0,
			InlineSeconds:     timeutil.Seconds(100),
			CumulativeSeconds: timeutil.Seconds(1500),
			Callers:           map[trace.FunctionKey]*Caller{},
		},
		key("f"): {
			PrimitiveCalls:    1,
			CallCount:         1,
			InlineSeconds:     timeutil.Seconds(1000),
			CumulativeSeconds: timeutil.Seconds(1400),
			Callers: map[trace.FunctionKey]*Caller{
				{}: {
					PrimitiveCalls:    1,
					CallCount:         1,
					InlineSeconds:     timeutil.Seconds(1000),
					CumulativeSeconds: timeutil.Seconds(1400),
				},
			},
		},
		key("g"): {
			PrimitiveCalls:    1,
			CallCount:         1,
			InlineSeconds:     timeutil.Seconds(400),
			CumulativeSeconds: timeutil.Seconds(400),
			Callers: map[trace.FunctionKey]*Caller{
				key("f"): {
					PrimitiveCalls:    1,
					CallCount:         1,
					InlineSeconds:     timeutil.Seconds(400),
					CumulativeSeconds: timeutil.Seconds(400),
				},
			},
		},
	}
	if diff := testutil.Diff(table, want); diff != "" {
		t.Fatalf("Table mismatch: got - want +\n%s", diff)
	}
}

func TestCollectSubtractsNestedRecursion(t *testing.T) {
	// A stats child sharing its parent's identity would be counted by
	// both rows; its cumulative time must be attributed once.
	parent := callstats.New(key("f"))
	parent.PrimitiveCalls = 1
	child := callstats.New(key("f"))
	child.PrimitiveCalls = 1
	child.CmdStats["c"] = &callstats.CmdStats{Cmd: "c", CallCount: 1, TotalTime: 4}
	parent.CmdStats["p"] = &callstats.CmdStats{Cmd: "p", CallCount: 1, TotalTime: 10}
	parent.Children[key("f")] = child

	table := Collect(parent)
	e := table[key("f")]
	if e == nil {
		t.Fatal("missing entry for f")
	}
	// Both nodes contribute inline time, the nested cumulative time is
	// subtracted back out.
	if e.InlineSeconds != timeutil.Seconds(14) {
		t.Fatalf("inline = %v, want %v", e.InlineSeconds, timeutil.Seconds(14))
	}
	if e.CumulativeSeconds != timeutil.Seconds(14) {
		t.Fatalf("cumulative = %v, want %v", e.CumulativeSeconds, timeutil.Seconds(14))
	}
	if e.CallCount != 2 || e.PrimitiveCalls != 2 {
		t.Fatalf("counts cc=%d pc=%d, want 2/2", e.CallCount, e.PrimitiveCalls)
	}
	c := e.Callers[key("f")]
	if c == nil || c.CallCount != 1 {
		t.Fatalf("self caller row = %+v, want one call", c)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	stats := aggregate(t, []trace.Record{
		rec(1, 1, "", "a", 100),
		rec(2, 2, "f", "b", 200),
		rec(3, 3, "g", "c", 400),
		rec(4, 2, "f", "d", 800),
		rec(5, 2, "g", "e", 1600),
	})
	want := Collect(stats)

	var buf bytes.Buffer
	if err := Write(&buf, want); err != nil {
		t.Fatal(err)
	}
	got, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := testutil.Diff(got, want); diff != "" {
		t.Fatalf("Table mismatch after round trip: got - want +\n%s", diff)
	}
}

func TestWriteBytes(t *testing.T) {
	table := Table{
		{Source: "a", Lineno: 1, Funcname: "f"}: {
			PrimitiveCalls:    1,
			CallCount:         2,
			InlineSeconds:     0.5,
			CumulativeSeconds: 1.5,
			Callers:           map[trace.FunctionKey]*Caller{},
		},
	}
	var buf bytes.Buffer
	if err := Write(&buf, table); err != nil {
		t.Fatal(err)
	}
	want := []byte{
		'{',
		')', 3,
		'u', 1, 0, 0, 0, 'a',
		'i', 1, 0, 0, 0,
		'u', 1, 0, 0, 0, 'f',
		')', 5,
		'i', 1, 0, 0, 0,
		'i', 2, 0, 0, 0,
		'g', 0, 0, 0, 0, 0, 0, 0xe0, 0x3f,
		'g', 0, 0, 0, 0, 0, 0, 0xf8, 0x3f,
		'{',
		'0',
		'0',
	}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("encoding mismatch:\ngot  % x\nwant % x", buf.Bytes(), want)
	}
}

func TestReadHandlesRefsAndAscii(t *testing.T) {
	// The short ascii codes, interning references and integer zero
	// times appear in files written by CPython itself.
	input := []byte{
		'{',
		')' | 0x80, 3,
		'z' | 0x80, 4, 'a', '.', 's', 'h',
		'i', 1, 0, 0, 0,
		'Z' | 0x80, 1, 'f',
		')', 5,
		'i', 1, 0, 0, 0,
		'i', 1, 0, 0, 0,
		'i', 0, 0, 0, 0,
		'g', 0, 0, 0, 0, 0, 0, 0xf8, 0x3f,
		'N',
		')', 3,
		'r', 1, 0, 0, 0,
		'i', 2, 0, 0, 0,
		'r', 2, 0, 0, 0,
		')', 4,
		'i', 1, 0, 0, 0,
		'i', 1, 0, 0, 0,
		'g', 0, 0, 0, 0, 0, 0, 0xd0, 0x3f,
		'g', 0, 0, 0, 0, 0, 0, 0xd0, 0x3f,
		'0',
	}
	got, err := Read(bytes.NewReader(input))
	if err != nil {
		t.Fatal(err)
	}
	want := Table{
		{Source: "a.sh", Lineno: 1, Funcname: "f"}: {
			PrimitiveCalls:    1,
			CallCount:         1,
			InlineSeconds:     0,
			CumulativeSeconds: 1.5,
			Callers:           map[trace.FunctionKey]*Caller{},
		},
		{Source: "a.sh", Lineno: 2, Funcname: "f"}: {
			PrimitiveCalls:    1,
			CallCount:         1,
			InlineSeconds:     0.25,
			CumulativeSeconds: 0.25,
			Callers:           map[trace.FunctionKey]*Caller{},
		},
	}
	if diff := testutil.Diff(got, want); diff != "" {
		t.Fatalf("Table mismatch: got - want +\n%s", diff)
	}
}

func TestReadRejectsNonDict(t *testing.T) {
	if _, err := Read(bytes.NewReader([]byte{'i', 1, 0, 0, 0})); err == nil {
		t.Fatal("expected an error for a non-dict stats file")
	}
}

func TestWriteRaw(t *testing.T) {
	table := Table{
		{Source: "s.sh", Lineno: 5, Funcname: "f"}: {
			PrimitiveCalls:    1,
			CallCount:         1,
			InlineSeconds:     0.001,
			CumulativeSeconds: 0.002,
			Callers: map[trace.FunctionKey]*Caller{
				{Source: "s.sh", Lineno: 1, Funcname: "main"}: {
					PrimitiveCalls:    1,
					CallCount:         1,
					InlineSeconds:     0.001,
					CumulativeSeconds: 0.002,
				},
			},
		},
	}
	var sb strings.Builder
	if err := WriteRaw(&sb, table); err != nil {
		t.Fatal(err)
	}
	want := `s.sh:5(f)  cc=1 nc=1 tt=0.001000 ct=0.002000
 ^ s.sh:1(main)  cc=1 nc=1 tt=0.001000 ct=0.002000
`
	if sb.String() != want {
		t.Fatalf("raw dump mismatch:\ngot:\n%s\nwant:\n%s", sb.String(), want)
	}
}

func TestWriteTop(t *testing.T) {
	table := Table{
		{Source: "s.sh", Lineno: 5, Funcname: "f"}: {
			PrimitiveCalls:    1,
			CallCount:         2,
			InlineSeconds:     0.5,
			CumulativeSeconds: 1.5,
			Callers:           map[trace.FunctionKey]*Caller{},
		},
	}
	var sb strings.Builder
	if err := WriteTop(&sb, table); err != nil {
		t.Fatal(err)
	}
	want := "2 (1 primitive) function calls in 0.500 seconds\n\n" +
		"   ncalls  tottime  percall  cumtime  percall filename:lineno(function)\n" +
		"      2/1    0.500    0.250    1.500    1.500 s.sh:5(f)\n"
	if sb.String() != want {
		t.Fatalf("top listing mismatch:\ngot:\n%s\nwant:\n%s", sb.String(), want)
	}
}
