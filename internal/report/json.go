package report

import (
	"io"
	"sort"

	json "github.com/goccy/go-json"

	"github.com/bashprof/bashprof/internal/callstats"
	"github.com/bashprof/bashprof/internal/trace"
)

type functionJSON struct {
	Source         string  `json:"source"`
	Lineno         int     `json:"lineno"`
	Funcname       string  `json:"funcname"`
	PrimitiveCalls int     `json:"primitive_calls"`
	RecursiveCalls int     `json:"recursive_calls"`
	InlineMicros   int64   `json:"inline_us"`
	ChildMicros    int64   `json:"child_us"`
	TotalMicros    int64   `json:"total_us"`
	PercentOfTotal float64 `json:"percent_of_total"`
}

// JSONStats writes per-function aggregates as a JSON array sorted by
// total time descending, for downstream tooling that does not want to
// parse tables or DOT.
func JSONStats(w io.Writer, root *callstats.Node) error {
	total := root.TotalTime()
	// The same function can appear under several callers; fold those
	// appearances into one row per function key.
	byKey := make(map[trace.FunctionKey]*functionJSON)
	var walk func(n *callstats.Node)
	walk = func(n *callstats.Node) {
		if !n.Function.IsZero() {
			row, ok := byKey[n.Function]
			if !ok {
				row = &functionJSON{
					Source:   n.Function.Source,
					Lineno:   n.Function.Lineno,
					Funcname: n.Function.Funcname,
				}
				byKey[n.Function] = row
			}
			row.PrimitiveCalls += n.PrimitiveCalls
			row.RecursiveCalls += n.RecursiveCalls
			row.InlineMicros += n.InlineTime()
			row.ChildMicros += n.ChildTime()
			row.TotalMicros += n.TotalTime()
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(root)
	rows := make([]functionJSON, 0, len(byKey))
	for _, row := range byKey {
		if total > 0 {
			row.PercentOfTotal = float64(row.TotalMicros) / float64(total) * 100
		}
		rows = append(rows, *row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].TotalMicros != rows[j].TotalMicros {
			return rows[i].TotalMicros > rows[j].TotalMicros
		}
		return rows[i].Funcname < rows[j].Funcname
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rows)
}
