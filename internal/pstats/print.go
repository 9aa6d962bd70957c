package pstats

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/bashprof/bashprof/internal/trace"
)

// WriteRaw prints every entry and its caller rows in key order, one
// line per row, mirroring the file content field for field.
func WriteRaw(w io.Writer, t Table) error {
	for _, key := range t.Keys() {
		entry := t[key]
		if err := rawLine(w, "", key, entry.PrimitiveCalls, entry.CallCount, entry.InlineSeconds, entry.CumulativeSeconds); err != nil {
			return err
		}
		callers := make([]trace.FunctionKey, 0, len(entry.Callers))
		for k := range entry.Callers {
			callers = append(callers, k)
		}
		sort.Slice(callers, func(i, j int) bool { return callers[i].Less(callers[j]) })
		for _, k := range callers {
			c := entry.Callers[k]
			if err := rawLine(w, " ^ ", k, c.PrimitiveCalls, c.CallCount, c.InlineSeconds, c.CumulativeSeconds); err != nil {
				return err
			}
		}
	}
	return nil
}

func rawLine(w io.Writer, prefix string, key trace.FunctionKey, pc, cc int, tt, ct float64) error {
	_, err := fmt.Fprintf(w, "%s%s:%d(%s)  cc=%d nc=%d tt=%f ct=%f\n",
		prefix, key.Source, key.Lineno, key.Funcname, pc, cc, tt, ct)
	return err
}

// WriteTop prints entries sorted by cumulative time in the shape of
// pstats' print_stats output.
func WriteTop(w io.Writer, t Table) error {
	keys := t.Keys()
	sort.SliceStable(keys, func(i, j int) bool {
		return t[keys[i]].CumulativeSeconds > t[keys[j]].CumulativeSeconds
	})
	var totalCalls, primCalls int
	var totalTime float64
	for _, k := range keys {
		totalCalls += t[k].CallCount
		primCalls += t[k].PrimitiveCalls
		totalTime += t[k].InlineSeconds
	}
	calls := strconv.Itoa(totalCalls)
	if primCalls != totalCalls {
		calls = fmt.Sprintf("%d (%d primitive)", totalCalls, primCalls)
	}
	if _, err := fmt.Fprintf(w, "%s function calls in %.3f seconds\n\n", calls, totalTime); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "%9s %8s %8s %8s %8s %s\n",
		"ncalls", "tottime", "percall", "cumtime", "percall", "filename:lineno(function)"); err != nil {
		return err
	}
	for _, k := range keys {
		e := t[k]
		ncalls := strconv.Itoa(e.CallCount)
		if e.PrimitiveCalls != e.CallCount {
			ncalls = fmt.Sprintf("%d/%d", e.CallCount, e.PrimitiveCalls)
		}
		perInline, perCum := 0.0, 0.0
		if e.CallCount > 0 {
			perInline = e.InlineSeconds / float64(e.CallCount)
		}
		if e.PrimitiveCalls > 0 {
			perCum = e.CumulativeSeconds / float64(e.PrimitiveCalls)
		}
		_, err := fmt.Fprintf(w, "%9s %8.3f %8.3f %8.3f %8.3f %s:%d(%s)\n",
			ncalls, e.InlineSeconds, perInline, e.CumulativeSeconds, perCum,
			k.Source, k.Lineno, k.Funcname)
		if err != nil {
			return err
		}
	}
	return nil
}
