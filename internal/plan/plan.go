// Package plan turns one logical query into the protocol-level requests
// that fit within the reporting service's per-call batch limits.
package plan

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/gridpulse/reporting-client/internal/wire"
	"github.com/gridpulse/reporting-client/pkg/metric"
)

// ErrInvalidQuery marks malformed caller input. It is surfaced before any
// network call and never retried.
var ErrInvalidQuery = errors.New("invalid query")

// Entity identifies one component of one microgrid.
type Entity struct {
	MicrogridID uint64
	ComponentID uint64
}

// Query is the validated, deduplicated logical request handed to Compose.
// Entities and Metrics keep the caller's insertion order so that composed
// plans are deterministic.
type Query struct {
	Entities         []Entity
	Metrics          []metric.Metric
	Start            time.Time
	End              time.Time // exclusive
	ResamplingPeriod time.Duration
	IncludeStates    bool
	IncludeBounds    bool
}

// Limits are the service's per-call batch caps.
type Limits struct {
	MaxEntitiesPerCall int
	MaxMetricsPerCall  int
}

// DefaultLimits returns the documented service-side caps.
func DefaultLimits() Limits {
	return Limits{MaxEntitiesPerCall: 64, MaxMetricsPerCall: 16}
}

// Plan is one protocol-level request covering a chunk of the query's
// entity×metric space. The union of all plans composed from one query covers
// the full cross product exactly once, so no two plans ever produce a record
// for the same (microgrid, component, metric) at the same timestamp.
type Plan struct {
	ID       string
	Entities []Entity
	Metrics  []metric.Metric

	Start            time.Time
	End              time.Time
	ResamplingPeriod time.Duration
	IncludeStates    bool
	IncludeBounds    bool
}

// Compose partitions the query's entities and metrics into consecutive
// chunks no larger than the limits and emits one plan per entity-chunk ×
// metric-chunk pair, entity-major. A query that fits within the limits
// yields exactly one plan.
func Compose(q Query, limits Limits) ([]*Plan, error) {
	if err := q.validate(); err != nil {
		return nil, err
	}
	if limits.MaxEntitiesPerCall <= 0 || limits.MaxMetricsPerCall <= 0 {
		return nil, fmt.Errorf("%w: batch limits must be positive", ErrInvalidQuery)
	}

	entityChunks := chunk(q.Entities, limits.MaxEntitiesPerCall)
	metricChunks := chunk(q.Metrics, limits.MaxMetricsPerCall)

	plans := make([]*Plan, 0, len(entityChunks)*len(metricChunks))
	for _, ec := range entityChunks {
		for _, mc := range metricChunks {
			plans = append(plans, &Plan{
				ID:               uuid.NewString(),
				Entities:         ec,
				Metrics:          mc,
				Start:            q.Start,
				End:              q.End,
				ResamplingPeriod: q.ResamplingPeriod,
				IncludeStates:    q.IncludeStates,
				IncludeBounds:    q.IncludeBounds,
			})
		}
	}
	return plans, nil
}

func (q Query) validate() error {
	if len(q.Entities) == 0 {
		return fmt.Errorf("%w: at least one (microgrid, component) pair is required", ErrInvalidQuery)
	}
	if len(q.Metrics) == 0 {
		return fmt.Errorf("%w: at least one metric is required", ErrInvalidQuery)
	}
	if !q.Start.Before(q.End) {
		return fmt.Errorf("%w: start %s is not before end %s",
			ErrInvalidQuery, q.Start.Format(time.RFC3339), q.End.Format(time.RFC3339))
	}
	return nil
}

// Request builds the wire request for one page of this plan. Entities are
// grouped per microgrid in first-seen order; the token is nil for the first
// page.
func (p *Plan) Request(pageSize uint32, token []byte) *wire.ListRequest {
	var groups []wire.MicrogridComponents
	idx := make(map[uint64]int, len(p.Entities))
	for _, e := range p.Entities {
		i, ok := idx[e.MicrogridID]
		if !ok {
			i = len(groups)
			idx[e.MicrogridID] = i
			groups = append(groups, wire.MicrogridComponents{MicrogridID: e.MicrogridID})
		}
		groups[i].ComponentIDs = append(groups[i].ComponentIDs, e.ComponentID)
	}

	return &wire.ListRequest{
		MicrogridComponents: groups,
		Metrics:             p.Metrics,
		Filter: wire.StreamFilter{
			Time:       wire.TimeFilter{Start: p.Start, End: p.End},
			Resampling: wire.ResamplingOptions{Resolution: p.ResamplingPeriod},
			Include: wire.IncludeOptions{
				States: filterOption(p.IncludeStates),
				Bounds: filterOption(p.IncludeBounds),
			},
		},
		Pagination: wire.Pagination{PageSize: pageSize, PageToken: token},
	}
}

func filterOption(include bool) wire.FilterOption {
	if include {
		return wire.FilterOptionInclude
	}
	return wire.FilterOptionExclude
}

func chunk[T any](in []T, size int) [][]T {
	out := make([][]T, 0, (len(in)+size-1)/size)
	for len(in) > size {
		out = append(out, in[:size])
		in = in[size:]
	}
	return append(out, in)
}
