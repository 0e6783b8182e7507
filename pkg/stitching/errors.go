package stitching

import (
	"errors"
	"fmt"
)

// Internal-consistency failures while applying connections. Any of these
// means the selected candidates violated the selector's guarantees; the pass
// is aborted rather than risk silently dropping samples.
var (
	ErrChainResolution      = errors.New("target did not resolve to a surviving trajectory")
	ErrSourceMerged         = errors.New("source trajectory was already merged away")
	ErrNonPositiveGap       = errors.New("non-positive gap between source and target")
	ErrDegenerateTrajectory = errors.New("trajectory has fewer than two samples")
)

// ConnectionError reports the identifiers of a connection that could not be applied.
type ConnectionError struct {
	Source   int
	Target   int
	Resolved int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connecting trajectory %d to %d (resolved %d): %v", e.Source, e.Target, e.Resolved, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
