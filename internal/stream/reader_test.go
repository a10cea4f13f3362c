package stream

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridpulse/reporting-client/internal/plan"
	"github.com/gridpulse/reporting-client/internal/wire"
	"github.com/gridpulse/reporting-client/pkg/metric"
)

type transientErr struct{ msg string }

func (e transientErr) Error() string   { return e.msg }
func (e transientErr) Retriable() bool { return true }

type fakePage struct {
	resp *wire.ListResponse
	err  error
}

// fakeFetcher serves scripted pages per token; multiple entries for one
// token are consumed in order with the last repeating.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string][]fakePage
	calls []string
}

func (f *fakeFetcher) FetchPage(ctx context.Context, req *wire.ListRequest) (*wire.ListResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	token := string(req.Pagination.PageToken)
	f.calls = append(f.calls, token)
	queue, ok := f.pages[token]
	if !ok || len(queue) == 0 {
		return nil, errors.New("no page scripted for token " + token)
	}
	page := queue[0]
	if len(queue) > 1 {
		f.pages[token] = queue[1:]
	}
	return page.resp, page.err
}

func (f *fakeFetcher) tokens() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func testPlan() *plan.Plan {
	return &plan.Plan{
		ID:       "plan-1",
		Entities: []plan.Entity{{MicrogridID: 1, ComponentID: 100}},
		Metrics:  []metric.Metric{metric.ACActivePower},
		Start:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}
}

func testRecord(second int) wire.Record {
	v := float64(second)
	return wire.Record{
		MicrogridID: 1,
		ComponentID: 100,
		Metric:      metric.ACActivePower,
		SampledAt:   time.Date(2024, 5, 1, 0, 0, second, 0, time.UTC),
		Value:       &v,
	}
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        4 * time.Millisecond,
		BackoffMultiplier: 2.0,
	}
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func drain(t *testing.T, r *Reader) []Record {
	t.Helper()
	var out []Record
	for {
		rec, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestReaderYieldsAllPagesInOrder(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]fakePage{
		"": {{resp: &wire.ListResponse{
			Records:       []wire.Record{testRecord(1), testRecord(2)},
			NextPageToken: []byte("tok1"),
		}}},
		"tok1": {{resp: &wire.ListResponse{
			Records: []wire.Record{testRecord(3)},
		}}},
	}}

	r := NewReader(testPlan(), fetcher, 100, fastRetry(), quietLogger())
	records := drain(t, r)

	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, "plan-1", rec.PlanID)
		assert.Equal(t, testRecord(i+1).SampledAt, rec.SampledAt)
	}
	assert.Equal(t, []string{"", "tok1"}, fetcher.tokens())

	// Exhausted readers keep reporting io.EOF without further fetches.
	_, err := r.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, fetcher.tokens(), 2)
}

func TestReaderSkipsEmptyPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]fakePage{
		"": {{resp: &wire.ListResponse{NextPageToken: []byte("tok1")}}},
		"tok1": {{resp: &wire.ListResponse{
			Records: []wire.Record{testRecord(1)},
		}}},
	}}

	r := NewReader(testPlan(), fetcher, 100, fastRetry(), quietLogger())
	records := drain(t, r)

	require.Len(t, records, 1)
	assert.Equal(t, []string{"", "tok1"}, fetcher.tokens())
}

func TestReaderRetriesSamePage(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]fakePage{
		"": {
			{err: transientErr{"connection reset"}},
			{err: transientErr{"deadline exceeded"}},
			{resp: &wire.ListResponse{Records: []wire.Record{testRecord(1)}}},
		},
	}}

	r := NewReader(testPlan(), fetcher, 100, fastRetry(), quietLogger())
	records := drain(t, r)

	require.Len(t, records, 1)
	// All three attempts carried the same (empty) token.
	assert.Equal(t, []string{"", "", ""}, fetcher.tokens())
}

func TestReaderRetryExhaustionCarriesResumeToken(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]fakePage{
		"": {{resp: &wire.ListResponse{
			Records:       []wire.Record{testRecord(1)},
			NextPageToken: []byte("tok1"),
		}}},
		"tok1": {{err: transientErr{"unavailable"}}},
	}}

	r := NewReader(testPlan(), fetcher, 100, fastRetry(), quietLogger())

	rec, err := r.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, testRecord(1).SampledAt, rec.SampledAt)

	_, err = r.Next(context.Background())
	var failed *FailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "plan-1", failed.PlanID)
	assert.Equal(t, []byte("tok1"), failed.Token)
	assert.Equal(t, 3, failed.Attempts)
}

func TestReaderFatalErrorIsNotRetried(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]fakePage{
		"": {{err: errors.New("permission denied")}},
	}}

	r := NewReader(testPlan(), fetcher, 100, fastRetry(), quietLogger())

	_, err := r.Next(context.Background())
	var fatal *FatalError
	require.ErrorAs(t, err, &fatal)
	assert.Equal(t, "plan-1", fatal.PlanID)
	assert.Len(t, fetcher.tokens(), 1)
}

func TestReaderResumeTokenReproducesRemainder(t *testing.T) {
	pages := func() map[string][]fakePage {
		return map[string][]fakePage{
			"": {{resp: &wire.ListResponse{
				Records:       []wire.Record{testRecord(1), testRecord(2)},
				NextPageToken: []byte("tok1"),
			}}},
			"tok1": {{resp: &wire.ListResponse{
				Records:       []wire.Record{testRecord(3)},
				NextPageToken: []byte("tok2"),
			}}},
			"tok2": {{resp: &wire.ListResponse{
				Records: []wire.Record{testRecord(4)},
			}}},
		}
	}

	full := drain(t, NewReader(testPlan(), &fakeFetcher{pages: pages()}, 100, fastRetry(), quietLogger()))
	require.Len(t, full, 4)

	resumed := drain(t, NewReader(testPlan(), &fakeFetcher{pages: pages()}, 100, fastRetry(), quietLogger(),
		WithResumeToken([]byte("tok1"))))

	require.Len(t, resumed, 2)
	assert.Equal(t, full[2].SampledAt, resumed[0].SampledAt)
	assert.Equal(t, full[3].SampledAt, resumed[1].SampledAt)
}

func TestReaderContextCancellation(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string][]fakePage{
		"": {{err: transientErr{"unavailable"}}},
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReader(testPlan(), fetcher, 100, fastRetry(), quietLogger())
	_, err := r.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
