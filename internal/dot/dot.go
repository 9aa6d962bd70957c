// Package dot renders the call tree and the stats tree as graph
// descriptions for graphviz layout tools (xdot, dot -Tsvg).
package dot

import (
	"crypto/md5"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/emicklei/dot"

	"github.com/bashprof/bashprof/internal/callgraph"
	"github.com/bashprof/bashprof/internal/callstats"
	"github.com/bashprof/bashprof/internal/timeutil"
)

// WriteCallgraph emits the raw call tree: one node per call, one box
// node per executed command, edges threading the children in traversal
// order and closing back on the call node. Each call's children share a
// rank=same subgraph so the layout aligns them. limit > 0 caps rendered
// children per node; the rest are dropped to keep bushy graphs legible.
func WriteCallgraph(w io.Writer, root *callgraph.Node, limit int) error {
	g := dot.NewGraph(dot.Directed)
	var idx int
	next := func() string {
		idx++
		return strconv.Itoa(idx - 1)
	}

	var walk func(parent *dot.Graph, name string, cn *callgraph.Node) dot.Node
	walk = func(parent *dot.Graph, name string, cn *callgraph.Node) dot.Node {
		me := parent.Node(name).Label(cn.Function.String())
		sub := g.Subgraph("graph_" + name)
		sub.Attr("rank", "same")
		children := cn.Children
		if limit > 0 && len(children) > limit {
			children = children[:limit]
		}
		prev := me
		for _, c := range children {
			childName := next()
			var child dot.Node
			if c.Record != nil {
				child = sub.Node(childName).Label(c.Record.Cmd).Attr("shape", "box")
			} else {
				child = walk(sub, childName, c.Node)
			}
			g.Edge(prev, child)
			prev = child
		}
		g.Edge(prev, me)
		return me
	}
	walk(g, next(), root)

	_, err := io.WriteString(w, g.String())
	return err
}

type (
	// StatsOptions tunes the callstats graph.
	StatsOptions struct {
		// Limit caps rendered children per node, no cap when <= 0.
		Limit int
		// Commands adds the per-command leaf nodes next to subcalls.
		Commands bool
	}

	// statsChild is a rendered child of a stats node: a subcall or,
	// with Commands set, a command leaf. Exactly one field is set.
	statsChild struct {
		node *callstats.Node
		cmd  *callstats.CmdStats
	}
)

func (c statsChild) totalTime() int64 {
	if c.node != nil {
		return c.node.TotalTime()
	}
	return c.cmd.TotalTime
}

// name breaks total-time ties so output is stable across runs.
func (c statsChild) name() string {
	if c.node != nil {
		return c.node.Function.Funcname
	}
	return c.cmd.Cmd
}

// WriteCallstats emits the aggregated stats tree: each node is labeled
// with its call count and total/inline/child times, children are
// ordered by total time descending, and node/edge colors run the
// red-to-green ramp by time rank among rendered siblings.
func WriteCallstats(w io.Writer, root *callstats.Node, opts StatsOptions) error {
	g := dot.NewGraph(dot.Directed)
	writeStatsNode(g, "", root, "", opts)
	_, err := io.WriteString(w, g.String())
	return err
}

func writeStatsNode(g *dot.Graph, parents string, n *callstats.Node, color string, opts StatsOptions) dot.Node {
	me := parents + "_" + n.Function.Funcname
	node := g.Node(me).Label(statsLabel(n))
	if color != "" {
		node.Attr("color", color)
	}

	children := make([]statsChild, 0, len(n.Children))
	for _, c := range n.Children {
		children = append(children, statsChild{node: c})
	}
	if opts.Commands {
		for _, s := range n.CmdStats {
			children = append(children, statsChild{cmd: s})
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		ti, tj := children[i].totalTime(), children[j].totalTime()
		if ti != tj {
			return ti > tj
		}
		return children[i].name() < children[j].name()
	})
	if opts.Limit > 0 && len(children) > opts.Limit {
		children = children[:opts.Limit]
	}

	ramp := hue{elems: len(children)}
	for idx, c := range children {
		color := ramp.color(idx)
		if c.node != nil {
			child := writeStatsNode(g, me, c.node, color, opts)
			g.Edge(node, child).Attr("color", color)
			continue
		}
		childName := fmt.Sprintf("%s_%x", me, md5.Sum([]byte(c.cmd.Cmd)))
		child := g.Node(childName).
			Label(cmdLabel(c.cmd)).
			Attr("color", color).
			Attr("shape", "box")
		g.Edge(node, child).Attr("color", color)
	}
	return node
}

func statsLabel(n *callstats.Node) string {
	total := n.TotalTime()
	lines := []string{n.Function.Funcname}
	if cc := n.CallCount(); cc != 0 {
		lines = append(lines, fmt.Sprintf("calls=%d total=%sus percall=%sus",
			cc, timeutil.Micros(total), timeutil.Micros(total/int64(cc))))
	} else {
		lines = append(lines, fmt.Sprintf("total=%sus", timeutil.Micros(total)))
	}
	var parts []string
	if inline := n.InlineTime(); inline != 0 {
		parts = append(parts, fmt.Sprintf("inline=%sus", timeutil.Micros(inline)))
	}
	if child := n.ChildTime(); child != 0 {
		parts = append(parts, fmt.Sprintf("childs=%sus", timeutil.Micros(child)))
	}
	lines = append(lines, strings.Join(parts, " "))
	return strings.Join(lines, "\n")
}

func cmdLabel(s *callstats.CmdStats) string {
	return strings.Join([]string{
		strconv.Quote(s.Cmd),
		fmt.Sprintf("calls=%d spent=%sus", s.CallCount, timeutil.Micros(s.TotalTime)),
		fmt.Sprintf("percall=%sus", timeutil.Micros(s.TotalTime/int64(s.CallCount))),
	}, "\n")
}
