// Package stream drives a single request plan's paged fetch loop, absorbing
// transient transport failures and yielding decoded records one at a time.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"

	"github.com/gridpulse/reporting-client/internal/plan"
	"github.com/gridpulse/reporting-client/internal/wire"
)

var (
	pagesFetched = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reporting_client_pages_fetched_total",
		Help: "Pages fetched successfully across all plans",
	})
	pageRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reporting_client_page_retries_total",
		Help: "Page fetches retried after a transient failure",
	})
	recordsDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reporting_client_records_decoded_total",
		Help: "Records decoded from fetched pages",
	})
	streamsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reporting_client_streams_failed_total",
		Help: "Plan streams abandoned after exhausting the retry budget",
	})
	pageLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reporting_client_page_duration_seconds",
		Help:    "Page fetch latency including failed attempts",
		Buckets: prometheus.DefBuckets,
	})
)

// PageFetcher issues one paged request to the reporting service. Errors that
// implement Retriable() bool drive the retry decision; everything else is
// treated as fatal.
type PageFetcher interface {
	FetchPage(ctx context.Context, req *wire.ListRequest) (*wire.ListResponse, error)
}

// RetryConfig bounds the per-page retry loop.
type RetryConfig struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryConfig returns the retry policy used when the caller does not
// configure one.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2.0,
	}
}

// FailedError reports an exhausted retry budget for one plan. Token resumes
// at the page that kept failing, so a follow-up run does not start over.
type FailedError struct {
	PlanID   string
	Token    []byte
	Attempts int
	Err      error
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("stream for plan %s failed after %d attempts: %v", e.PlanID, e.Attempts, e.Err)
}

func (e *FailedError) Unwrap() error { return e.Err }

// FatalError reports a non-retriable service failure for one plan.
type FatalError struct {
	PlanID string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("stream for plan %s failed: %v", e.PlanID, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Reader drives one plan's paged stream to completion. It is not
// restartable: once Next returns io.EOF a fresh Reader re-fetches from the
// beginning. A Reader is not safe for concurrent use; the merge engine runs
// each one on its own goroutine.
type Reader struct {
	plan     *plan.Plan
	fetcher  PageFetcher
	pageSize uint32
	retry    RetryConfig
	log      *logrus.Entry

	cur cursor
	buf []Record
}

// ReaderOption adjusts a Reader at construction time.
type ReaderOption func(*Reader)

// WithResumeToken seeds the reader with a token previously carried by a
// FailedError, continuing the stream from the page that failed instead of
// the first one.
func WithResumeToken(token []byte) ReaderOption {
	return func(r *Reader) {
		if len(token) > 0 {
			r.cur.token = append([]byte(nil), token...)
		}
	}
}

// NewReader binds a plan to a transport. pageSize is passed through to the
// service's pagination parameters.
func NewReader(p *plan.Plan, fetcher PageFetcher, pageSize uint32, retry RetryConfig, logger *logrus.Logger, opts ...ReaderOption) *Reader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	r := &Reader{
		plan:     p,
		fetcher:  fetcher,
		pageSize: pageSize,
		retry:    retry,
		log:      logger.WithFields(logrus.Fields{"component": "stream", "plan_id": p.ID}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Next returns the next record of the stream, fetching further pages as
// needed. It returns io.EOF once the final page is drained. Pages with zero
// records but a continuation token are legal and skipped.
func (r *Reader) Next(ctx context.Context) (Record, error) {
	for len(r.buf) == 0 {
		if r.cur.done {
			return Record{}, io.EOF
		}
		if err := r.fetchPage(ctx); err != nil {
			return Record{}, err
		}
	}
	rec := r.buf[0]
	r.buf = r.buf[1:]
	return rec, nil
}

// fetchPage fetches the page at the current cursor, retrying transient
// failures on the same token with exponential backoff. The cursor advances
// only after the page's records are buffered, so a failure here never skips
// a page.
func (r *Reader) fetchPage(ctx context.Context) error {
	token := r.cur.next()
	req := r.plan.Request(r.pageSize, token)

	backoff := r.retry.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= r.retry.MaxAttempts; attempt++ {
		start := time.Now()
		resp, err := r.fetcher.FetchPage(ctx, req)
		pageLatency.Observe(time.Since(start).Seconds())

		if err == nil {
			if attempt > 1 {
				r.log.WithField("attempt", attempt).Info("page fetch succeeded after retry")
			}
			pagesFetched.Inc()
			recordsDecoded.Add(float64(len(resp.Records)))
			for _, rec := range resp.Records {
				r.buf = append(r.buf, Record{PlanID: r.plan.ID, Record: rec})
			}
			r.cur.advance(resp.NextPageToken)
			return nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !isRetriable(err) {
			return &FatalError{PlanID: r.plan.ID, Err: err}
		}
		if attempt >= r.retry.MaxAttempts {
			break
		}

		pageRetries.Inc()
		// ±20% jitter keeps concurrent readers from retrying in lockstep.
		sleep := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		r.log.WithFields(logrus.Fields{
			"attempt":   attempt,
			"backoff":   sleep.String(),
			"token_len": len(token),
		}).WithError(err).Warn("retrying page fetch")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		backoff = time.Duration(float64(backoff) * r.retry.BackoffMultiplier)
		if backoff > r.retry.MaxBackoff {
			backoff = r.retry.MaxBackoff
		}
	}

	streamsFailed.Inc()
	return &FailedError{PlanID: r.plan.ID, Token: token, Attempts: r.retry.MaxAttempts, Err: lastErr}
}

func isRetriable(err error) bool {
	var r interface{ Retriable() bool }
	return errors.As(err, &r) && r.Retriable()
}
