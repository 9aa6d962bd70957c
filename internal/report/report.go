// Package report prints the ranked console tables summarizing a trace:
// the longest commands and the longest functions, cumulatively and per
// call.
package report

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/bashprof/bashprof/internal/callgraph"
	"github.com/bashprof/bashprof/internal/timeutil"
	"github.com/bashprof/bashprof/internal/trace"
)

const cmdWidth = 50

type (
	commandStats struct {
		calls   int
		spent   int64
		callers map[string]int
		example string
	}

	functionStats struct {
		calls        int
		instructions int
		spent        int64
	}
)

// Commands prints the two longest-commands tables: ranked by cumulative
// time spent, then by time spent per call. Each row attributes the
// command to its three most frequent calling functions and one example
// source location.
func Commands(w io.Writer, root *callgraph.Node, top int) {
	commands := make(map[string]*commandStats)
	var walk func(n *callgraph.Node)
	walk = func(n *callgraph.Node) {
		for _, c := range n.Children {
			if c.Node != nil {
				walk(c.Node)
				continue
			}
			r := c.Record
			s, ok := commands[r.Cmd]
			if !ok {
				source := r.Source
				if source == "" {
					source = "~"
				}
				s = &commandStats{
					callers: make(map[string]int),
					example: fmt.Sprintf("%s:%d", source, r.Lineno),
				}
				commands[r.Cmd] = s
			}
			s.calls++
			s.spent += r.SpentMicros
			s.callers[r.Funcname]++
		}
	}
	walk(root)

	type row struct {
		cmd string
		s   *commandStats
	}
	rows := make([]row, 0, len(commands))
	for cmd, s := range commands {
		rows = append(rows, row{cmd, s})
	}

	render := func(title string, less func(a, b row) bool) {
		sort.SliceStable(rows, func(i, j int) bool {
			if less(rows[i], rows[j]) {
				return true
			}
			if less(rows[j], rows[i]) {
				return false
			}
			return rows[i].cmd < rows[j].cmd
		})
		n := len(rows)
		if top > 0 && n > top {
			n = top
		}
		fmt.Fprintf(w, "Top %d cummulatively longest %s:\n", n, title)
		table := newTable(w, []string{
			"percent", "spent_us", "cmd", "calls", "spentPerCall",
			"topCaller1", "topCaller2", "topCaller3", "example",
		})
		for _, r := range rows[:n] {
			callers := topCallers(r.s.callers, 3)
			table.Append([]string{
				percent(r.s.spent, root.TotalTime),
				timeutil.Micros(r.s.spent),
				trim(r.cmd, cmdWidth),
				fmt.Sprintf("%d", r.s.calls),
				timeutil.Micros(r.s.spent / int64(r.s.calls)),
				callers[0], callers[1], callers[2],
				r.s.example,
			})
		}
		table.Render()
		fmt.Fprintln(w)
	}

	render("commands", func(a, b row) bool { return a.s.spent > b.s.spent })
	render("commands per call", func(a, b row) bool {
		return a.s.spent*int64(b.s.calls) > b.s.spent*int64(a.s.calls)
	})
}

// Functions prints the two longest-functions tables: ranked by
// cumulative time, then by time per call. Top-level code outside any
// function is excluded.
func Functions(w io.Writer, root *callgraph.Node, top int) {
	functions := make(map[trace.FunctionKey]*functionStats)
	get := func(fn trace.FunctionKey) *functionStats {
		s, ok := functions[fn]
		if !ok {
			s = &functionStats{}
			functions[fn] = s
		}
		return s
	}
	var walk func(n *callgraph.Node)
	walk = func(n *callgraph.Node) {
		for _, c := range n.Children {
			if c.Record != nil {
				s := get(n.Function)
				s.instructions++
				s.spent += c.Record.SpentMicros
				continue
			}
			get(c.Node.Function).calls++
			walk(c.Node)
		}
	}
	walk(root)
	delete(functions, trace.FunctionKey{})

	if len(functions) == 0 {
		fmt.Fprintln(w, "No functions found")
		return
	}

	type row struct {
		fn trace.FunctionKey
		s  *functionStats
	}
	rows := make([]row, 0, len(functions))
	for fn, s := range functions {
		rows = append(rows, row{fn, s})
	}

	render := func(title string, less func(a, b row) bool) {
		sort.SliceStable(rows, func(i, j int) bool {
			if less(rows[i], rows[j]) {
				return true
			}
			if less(rows[j], rows[i]) {
				return false
			}
			return rows[i].fn.Less(rows[j].fn)
		})
		n := len(rows)
		if top > 0 && n > top {
			n = top
		}
		fmt.Fprintf(w, "Top %d cummulatively longest %s:\n", n, title)
		table := newTable(w, []string{
			"percent", "spent_us", "funcname", "calls", "spentPerCall",
			"instructions", "instructionsPerCall", "location",
		})
		for _, r := range rows[:n] {
			perCall, insPerCall := "0", "0"
			if r.s.calls > 0 {
				perCall = timeutil.Micros(r.s.spent / int64(r.s.calls))
				insPerCall = fmt.Sprintf("%.1f", float64(r.s.instructions)/float64(r.s.calls))
			}
			table.Append([]string{
				percent(r.s.spent, root.TotalTime),
				timeutil.Micros(r.s.spent),
				r.fn.Funcname,
				fmt.Sprintf("%d", r.s.calls),
				perCall,
				fmt.Sprintf("%d", r.s.instructions),
				insPerCall,
				fmt.Sprintf("%s:%d", r.fn.Source, r.fn.Lineno),
			})
		}
		table.Render()
		fmt.Fprintln(w)
	}

	render("functions", func(a, b row) bool { return a.s.spent > b.s.spent })
	render("functions per call", func(a, b row) bool {
		sa, sb := perCallSpent(a.s), perCallSpent(b.s)
		return sa > sb
	})
}

// Summary prints the closing one-liner for a run.
func Summary(w io.Writer, root *callgraph.Node, functions int) {
	fmt.Fprintf(w, "Script executed in %s, %d instructions, %d functions.\n",
		time.Duration(root.TotalTime)*time.Microsecond, root.RecordCount, functions)
}

// FunctionCount counts the distinct non-top-level functions in the tree.
func FunctionCount(root *callgraph.Node) int {
	seen := make(map[trace.FunctionKey]struct{})
	var walk func(n *callgraph.Node)
	walk = func(n *callgraph.Node) {
		for _, c := range n.Children {
			if c.Node != nil {
				seen[c.Node.Function] = struct{}{}
				walk(c.Node)
			}
		}
	}
	walk(root)
	delete(seen, trace.FunctionKey{})
	return len(seen)
}

func perCallSpent(s *functionStats) float64 {
	if s.calls == 0 {
		return 0
	}
	return float64(s.spent) / float64(s.calls)
}

func newTable(w io.Writer, headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetBorder(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	return table
}

func percent(part, total int64) string {
	if total == 0 {
		return "0.00"
	}
	return fmt.Sprintf("%.2f", float64(part)/float64(total)*100)
}

// trim shortens a command for table display.
func trim(v string, width int) string {
	if len(v) <= width {
		return v
	}
	return v[:width-2] + ".."
}

func topCallers(callers map[string]int, n int) []string {
	type kv struct {
		name  string
		count int
	}
	all := make([]kv, 0, len(callers))
	for name, count := range callers {
		all = append(all, kv{name, count})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].count != all[j].count {
			return all[i].count > all[j].count
		}
		return all[i].name < all[j].name
	})
	out := make([]string, n)
	for i := 0; i < n && i < len(all); i++ {
		out[i] = fmt.Sprintf("%s %d", all[i].name, all[i].count)
	}
	return out
}
