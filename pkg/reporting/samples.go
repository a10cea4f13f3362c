package reporting

import (
	"context"
	"errors"
	"io"

	"github.com/gridpulse/reporting-client/internal/merge"
)

// Samples is the lazy, ordered result sequence of one query, driven by the
// caller one sample at a time. It is not restartable. Callers that stop
// consuming before exhaustion must call Close so that the underlying
// readers and their in-flight RPCs are torn down.
//
//	samples, err := client.ListMicrogridComponentsData(ctx, q)
//	if err != nil { ... }
//	defer samples.Close()
//	for samples.Next() {
//	    use(samples.Sample())
//	}
//	if err := samples.Err(); err != nil { ... }
type Samples struct {
	merger *merge.Merger
	ctx    context.Context
	cancel context.CancelFunc

	cur  Sample
	err  error
	done bool
}

// Next advances to the next sample. It returns false at the end of the
// sequence or on error; Err distinguishes the two.
func (s *Samples) Next() bool {
	if s.done {
		return false
	}
	rec, err := s.merger.Next(s.ctx)
	if err != nil {
		s.done = true
		if !errors.Is(err, io.EOF) {
			s.err = wrapErr(err)
		}
		s.cancel()
		return false
	}
	s.cur = sampleFromRecord(rec)
	return true
}

// Sample returns the sample Next advanced to.
func (s *Samples) Sample() Sample { return s.cur }

// Err returns the error that terminated the sequence, nil after a clean
// end. Samples already returned remain valid either way.
func (s *Samples) Err() error { return s.err }

// Close cancels all underlying stream readers, aborts their in-flight RPCs,
// and blocks until their goroutines exit. It is safe to call at any point
// and more than once.
func (s *Samples) Close() error {
	s.done = true
	s.cancel()
	s.merger.Stop()
	return nil
}
