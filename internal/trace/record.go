package trace

import "fmt"

type (
	// FunctionKey uniquely identifies a bash function by where it was
	// defined. The zero value stands for top-level code outside any
	// function.
	FunctionKey struct {
		Source   string
		Lineno   int
		Funcname string
	}

	// Record is a single traced instruction.
	Record struct {
		// Idx is the line number the record came from, used to restore
		// original order after parallel parsing.
		Idx int
		// StampMicros is the absolute timestamp from EPOCHREALTIME.
		StampMicros int64
		PID         int
		Cmd         string
		// Level is the call-stack depth at the time of logging, 1 being
		// top level.
		Level    int
		Lineno   int
		Source   string
		Funcname string
		// SpentMicros is how long the instruction took, the timestamp
		// delta to the next record in sequence order.
		SpentMicros int64
	}
)

func (k FunctionKey) String() string {
	return fmt.Sprintf("%s:%d(%s)", k.Source, k.Lineno, k.Funcname)
}

func (k FunctionKey) IsZero() bool {
	return k == FunctionKey{}
}

// Less orders keys lexicographically by source, line number, function
// name.
func (k FunctionKey) Less(o FunctionKey) bool {
	if k.Source != o.Source {
		return k.Source < o.Source
	}
	if k.Lineno != o.Lineno {
		return k.Lineno < o.Lineno
	}
	return k.Funcname < o.Funcname
}

// Function returns the identity of the function this record executed in.
func (r Record) Function() FunctionKey {
	return FunctionKey{Source: r.Source, Lineno: r.Lineno, Funcname: r.Funcname}
}
