package pipeline

import (
	"errors"
	"fmt"
)

// ErrRunInProgress is returned when Run is called while a run is active on
// the same Pipeline.
var ErrRunInProgress = errors.New("pipeline: run already in progress")

// SinkError marks a failed batch insert. In strict mode it aborts the run;
// otherwise the run continues and the watermark stays put so the rows are
// retried next cycle.
type SinkError struct {
	BatchID string
	Err     error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink failed for %s: %v", e.BatchID, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
