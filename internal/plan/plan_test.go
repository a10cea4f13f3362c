package plan

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridpulse/reporting-client/internal/wire"
	"github.com/gridpulse/reporting-client/pkg/metric"
)

func testQuery(entities int, metrics int) Query {
	q := Query{
		Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}
	for i := 0; i < entities; i++ {
		q.Entities = append(q.Entities, Entity{MicrogridID: uint64(1 + i/10), ComponentID: uint64(100 + i)})
	}
	q.Metrics = append(q.Metrics, metric.All()[:metrics]...)
	return q
}

type pair struct {
	entity Entity
	metric metric.Metric
}

func TestComposePartitionsCrossProductExactly(t *testing.T) {
	tests := []struct {
		name      string
		entities  int
		metrics   int
		limits    Limits
		wantPlans int
	}{
		{"single chunk", 3, 2, Limits{10, 10}, 1},
		{"entity split only", 5, 2, Limits{2, 10}, 3},
		{"metric split only", 2, 5, Limits{10, 2}, 3},
		{"both split", 5, 5, Limits{2, 2}, 9},
		{"limits equal sizes", 4, 3, Limits{4, 3}, 1},
		{"one entity per plan", 3, 1, Limits{1, 10}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := testQuery(tt.entities, tt.metrics)
			plans, err := Compose(q, tt.limits)
			require.NoError(t, err)
			assert.Len(t, plans, tt.wantPlans)

			// The union of all plans' entity×metric pairs must equal the
			// query's cross product with no overlap.
			seen := make(map[pair]int)
			for _, p := range plans {
				require.NotEmpty(t, p.ID)
				assert.LessOrEqual(t, len(p.Entities), tt.limits.MaxEntitiesPerCall)
				assert.LessOrEqual(t, len(p.Metrics), tt.limits.MaxMetricsPerCall)
				assert.Equal(t, q.Start, p.Start)
				assert.Equal(t, q.End, p.End)
				for _, e := range p.Entities {
					for _, m := range p.Metrics {
						seen[pair{e, m}]++
					}
				}
			}
			require.Len(t, seen, tt.entities*tt.metrics)
			for p, n := range seen {
				assert.Equal(t, 1, n, "pair %+v covered %d times", p, n)
			}
		})
	}
}

func TestComposeSingleEntitySingleMetric(t *testing.T) {
	q := Query{
		Entities: []Entity{{MicrogridID: 1, ComponentID: 100}},
		Metrics:  []metric.Metric{metric.ACActivePower},
		Start:    time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
	}

	plans, err := Compose(q, Limits{MaxEntitiesPerCall: 10, MaxMetricsPerCall: 10})
	require.NoError(t, err)
	require.Len(t, plans, 1)
	assert.Equal(t, q.Entities, plans[0].Entities)
	assert.Equal(t, q.Metrics, plans[0].Metrics)
}

func TestComposeKeepsInsertionOrder(t *testing.T) {
	q := testQuery(5, 1)
	plans, err := Compose(q, Limits{MaxEntitiesPerCall: 2, MaxMetricsPerCall: 1})
	require.NoError(t, err)
	require.Len(t, plans, 3)

	var got []Entity
	for _, p := range plans {
		got = append(got, p.Entities...)
	}
	assert.Equal(t, q.Entities, got)
}

func TestComposeInvalidQueries(t *testing.T) {
	valid := testQuery(1, 1)

	tests := []struct {
		name   string
		mutate func(*Query)
		limits Limits
	}{
		{"no entities", func(q *Query) { q.Entities = nil }, Limits{1, 1}},
		{"no metrics", func(q *Query) { q.Metrics = nil }, Limits{1, 1}},
		{"start equals end", func(q *Query) { q.End = q.Start }, Limits{1, 1}},
		{"start after end", func(q *Query) { q.Start, q.End = q.End, q.Start }, Limits{1, 1}},
		{"zero entity limit", func(q *Query) {}, Limits{0, 1}},
		{"zero metric limit", func(q *Query) {}, Limits{1, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid
			tt.mutate(&q)
			_, err := Compose(q, tt.limits)
			assert.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}

func TestRequestGroupsEntitiesPerMicrogrid(t *testing.T) {
	p := &Plan{
		ID: "p1",
		Entities: []Entity{
			{MicrogridID: 2, ComponentID: 201},
			{MicrogridID: 1, ComponentID: 101},
			{MicrogridID: 2, ComponentID: 202},
		},
		Metrics:          []metric.Metric{metric.ACActivePower, metric.DCPower},
		Start:            time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		End:              time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC),
		ResamplingPeriod: 15 * time.Minute,
		IncludeStates:    true,
	}

	req := p.Request(500, []byte("tok"))

	require.Len(t, req.MicrogridComponents, 2)
	assert.Equal(t, wire.MicrogridComponents{MicrogridID: 2, ComponentIDs: []uint64{201, 202}}, req.MicrogridComponents[0])
	assert.Equal(t, wire.MicrogridComponents{MicrogridID: 1, ComponentIDs: []uint64{101}}, req.MicrogridComponents[1])
	assert.Equal(t, p.Metrics, req.Metrics)
	assert.Equal(t, p.Start, req.Filter.Time.Start)
	assert.Equal(t, p.End, req.Filter.Time.End)
	assert.Equal(t, 15*time.Minute, req.Filter.Resampling.Resolution)
	assert.Equal(t, wire.FilterOptionInclude, req.Filter.Include.States)
	assert.Equal(t, wire.FilterOptionExclude, req.Filter.Include.Bounds)
	assert.Equal(t, uint32(500), req.Pagination.PageSize)
	assert.Equal(t, []byte("tok"), req.Pagination.PageToken)
}
