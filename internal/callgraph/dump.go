package callgraph

import (
	"fmt"
	"io"
	"strings"

	"github.com/bashprof/bashprof/internal/timeutil"
)

// WriteRecords dumps the tree command by command, call by call, as an
// indented text log. Each call is bracketed by a call line and a return
// line carrying the call's time totals.
func WriteRecords(w io.Writer, root *Node) error {
	return dumpNode(w, root)
}

func dumpNode(w io.Writer, n *Node) error {
	for _, c := range n.Children {
		if c.Record != nil {
			_, err := fmt.Fprintf(w, "%s %sus %s\n",
				strings.Repeat(" >", n.Level), timeutil.Micros(c.Record.SpentMicros), c.Record.Cmd)
			if err != nil {
				return err
			}
			continue
		}
		indent := strings.Repeat(" >", n.Level+1)
		if _, err := fmt.Fprintf(w, "%s call %s\n", indent, c.Node.Function); err != nil {
			return err
		}
		if err := dumpNode(w, c.Node); err != nil {
			return err
		}
		_, err := fmt.Fprintf(w, "%s return %s total=%sus inline=%sus child=%sus\n",
			indent, c.Node.Function,
			timeutil.Micros(c.Node.TotalTime), timeutil.Micros(c.Node.InlineTime), timeutil.Micros(c.Node.ChildTime))
		if err != nil {
			return err
		}
	}
	return nil
}
