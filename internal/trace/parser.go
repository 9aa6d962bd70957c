package trace

import (
	"strconv"
	"strings"

	"github.com/google/shlex"
)

// Trace lines come in two shapes sharing one field order:
//
//	# <epoch-micros> <pid> <depth> <lineno> <source> <funcname> <command...>
//	+ <epoch-micros> <pid> <depth> <lineno> <source> <funcname> <command...>
//
// The "#" form is printed by a DEBUG trap, the "+" form by set -x through
// PS4. Everything after the seventh field is the command text.

// ParseLine parses a single trace line into a Record. ok is false when
// the line is not a trace record or is malformed in any way; such lines
// are discarded without failing the run, since concurrent subshells can
// interleave or truncate individual lines mid-write.
//
// Parsing is stateless per line, so lines may be parsed on any number of
// workers concurrently.
func ParseLine(idx int, line string) (Record, bool) {
	// The marker must go before tokenizing: shlex reads a leading "#" as
	// a comment and would swallow the whole line. xtrace repeats the
	// first PS4 character per nesting level, so strip the whole run.
	xtrace := false
	switch {
	case strings.HasPrefix(line, "# "):
		line = line[2:]
	case strings.HasPrefix(line, "+"):
		xtrace = true
		line = strings.TrimLeft(line, "+")
	default:
		return Record{}, false
	}

	// shlex cannot tokenize the \' sequence printf %q emits inside
	// $'...' words. Dropping it loses a quote from the command text but
	// keeps the surrounding fields parseable.
	line = strings.ReplaceAll(line, `\'`, "")

	arr, err := shlex.Split(line)
	if err != nil || len(arr) < 6 {
		return Record{}, false
	}

	stamp, err := strconv.ParseInt(arr[0], 10, 64)
	if err != nil {
		return Record{}, false
	}
	pid, err := strconv.Atoi(arr[1])
	if err != nil {
		return Record{}, false
	}
	depth, err := strconv.Atoi(arr[2])
	if err != nil {
		return Record{}, false
	}
	lineno, err := strconv.Atoi(arr[3])
	if err != nil {
		return Record{}, false
	}

	cmd := strings.Join(arr[6:], " ")
	if xtrace {
		// xtrace prints words after expansion; quote the reassembled
		// text so it is not mistaken for the literal source command.
		cmd = strconv.Quote(cmd)
	}

	return Record{
		Idx:         idx,
		StampMicros: stamp,
		PID:         pid,
		Cmd:         cmd,
		Level:       depth + 1,
		Lineno:      lineno,
		Source:      arr[4],
		Funcname:    arr[5],
		SpentMicros: -1,
	}, true
}
