package errorutil

import "errors"

// ErrEmptyTrace is returned when fewer than two valid records survive
// parsing: with no successor timestamps there is nothing to measure.
var ErrEmptyTrace = errors.New("empty trace: fewer than two valid records")

// ErrDepthUnderflow is returned when a record's level would pop the
// call-tree cursor above the synthetic root. The trace violates the
// builder's structural assumption and no tree can be trusted.
var ErrDepthUnderflow = errors.New("trace depth underflow: level dropped below root")
