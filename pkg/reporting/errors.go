package reporting

import (
	"errors"
	"fmt"

	"github.com/gridpulse/reporting-client/internal/merge"
	"github.com/gridpulse/reporting-client/internal/plan"
	"github.com/gridpulse/reporting-client/internal/stream"
)

// ErrInvalidQuery marks malformed caller input. It is surfaced before any
// network call and never retried. Match with errors.Is.
var ErrInvalidQuery = plan.ErrInvalidQuery

// ErrProtocolInvariant marks an out-of-order or duplicate record within one
// plan's stream. It indicates a service or composition bug, not bad caller
// input. Match with errors.Is.
var ErrProtocolInvariant = merge.ErrOutOfOrder

// StreamError reports that one plan's retry budget is exhausted.
// ResumeToken points at the page that kept failing, so a follow-up run can
// resume instead of starting over.
type StreamError struct {
	PlanID      string
	ResumeToken []byte
	Attempts    int
	Err         error
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("stream for plan %s failed after %d attempts: %v", e.PlanID, e.Attempts, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// FatalError reports a non-retriable service failure, e.g. permission
// denied or an argument the service rejected. The gRPC status is reachable
// through the wrapped error.
type FatalError struct {
	PlanID string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("query failed on plan %s: %v", e.PlanID, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// wrapErr translates internal stream errors into the public taxonomy.
// Invariant violations and context errors pass through unchanged.
func wrapErr(err error) error {
	var failed *stream.FailedError
	if errors.As(err, &failed) {
		return &StreamError{
			PlanID:      failed.PlanID,
			ResumeToken: failed.Token,
			Attempts:    failed.Attempts,
			Err:         failed.Err,
		}
	}
	var fatal *stream.FatalError
	if errors.As(err, &fatal) {
		return &FatalError{PlanID: fatal.PlanID, Err: fatal.Err}
	}
	return err
}
