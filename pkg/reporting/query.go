package reporting

import (
	"fmt"
	"time"

	"github.com/gridpulse/reporting-client/internal/plan"
	"github.com/gridpulse/reporting-client/pkg/metric"
)

// ComponentRef identifies one component of one microgrid.
type ComponentRef struct {
	MicrogridID uint64
	ComponentID uint64
}

// Query describes one logical request over an arbitrary set of components
// and metrics. Entities and metrics keep their insertion order; duplicates
// are dropped before the query is decomposed into plans.
type Query struct {
	Entities []ComponentRef
	Metrics  []metric.Metric

	Start time.Time
	End   time.Time // exclusive

	// ResamplingPeriod asks the service to aggregate samples at this
	// resolution before returning them; zero requests raw samples.
	ResamplingPeriod time.Duration

	IncludeStates bool
	IncludeBounds bool
}

// SingleComponentQuery is the single-component convenience form of Query.
type SingleComponentQuery struct {
	MicrogridID uint64
	ComponentID uint64
	Metrics     []metric.Metric

	Start time.Time
	End   time.Time

	ResamplingPeriod time.Duration
	IncludeStates    bool
	IncludeBounds    bool
}

func (q SingleComponentQuery) asQuery() Query {
	return Query{
		Entities:         []ComponentRef{{MicrogridID: q.MicrogridID, ComponentID: q.ComponentID}},
		Metrics:          q.Metrics,
		Start:            q.Start,
		End:              q.End,
		ResamplingPeriod: q.ResamplingPeriod,
		IncludeStates:    q.IncludeStates,
		IncludeBounds:    q.IncludeBounds,
	}
}

// queryValidator checks caller input before any network call.
type queryValidator struct{}

// Validate checks if the query parameters are valid.
func (queryValidator) Validate(q Query) error {
	if len(q.Entities) == 0 {
		return fmt.Errorf("%w: at least one (microgrid, component) pair is required", ErrInvalidQuery)
	}
	if len(q.Metrics) == 0 {
		return fmt.Errorf("%w: at least one metric is required", ErrInvalidQuery)
	}
	if q.Start.IsZero() || q.End.IsZero() {
		return fmt.Errorf("%w: missing timestamp", ErrInvalidQuery)
	}
	if !q.Start.Before(q.End) {
		return fmt.Errorf("%w: start time must be before end time", ErrInvalidQuery)
	}
	if q.ResamplingPeriod < 0 {
		return fmt.Errorf("%w: resampling period must not be negative", ErrInvalidQuery)
	}
	for _, m := range q.Metrics {
		if !m.Known() {
			return fmt.Errorf("%w: unknown metric %s", ErrInvalidQuery, m)
		}
	}
	return nil
}

// normalize dedupes entities and metrics, preserving first-seen order so
// composed plans are deterministic.
func (q Query) normalize() plan.Query {
	entities := make([]plan.Entity, 0, len(q.Entities))
	seenEntities := make(map[plan.Entity]struct{}, len(q.Entities))
	for _, e := range q.Entities {
		pe := plan.Entity{MicrogridID: e.MicrogridID, ComponentID: e.ComponentID}
		if _, ok := seenEntities[pe]; ok {
			continue
		}
		seenEntities[pe] = struct{}{}
		entities = append(entities, pe)
	}

	metrics := make([]metric.Metric, 0, len(q.Metrics))
	seenMetrics := make(map[metric.Metric]struct{}, len(q.Metrics))
	for _, m := range q.Metrics {
		if _, ok := seenMetrics[m]; ok {
			continue
		}
		seenMetrics[m] = struct{}{}
		metrics = append(metrics, m)
	}

	return plan.Query{
		Entities:         entities,
		Metrics:          metrics,
		Start:            q.Start,
		End:              q.End,
		ResamplingPeriod: q.ResamplingPeriod,
		IncludeStates:    q.IncludeStates,
		IncludeBounds:    q.IncludeBounds,
	}
}
