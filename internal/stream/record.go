package stream

import (
	"cmp"

	"github.com/gridpulse/reporting-client/internal/wire"
)

// Record is one decoded telemetry record tagged with the plan that produced
// it. The tag exists for diagnostics; it never affects merge order.
type Record struct {
	PlanID string
	wire.Record
}

// Compare orders records by (sampled-at, microgrid, component, metric),
// ascending. Zero means equal keys, which between two records of the same
// stream indicates a duplicate.
func (r Record) Compare(o Record) int {
	if c := r.SampledAt.Compare(o.SampledAt); c != 0 {
		return c
	}
	if c := cmp.Compare(r.MicrogridID, o.MicrogridID); c != 0 {
		return c
	}
	if c := cmp.Compare(r.ComponentID, o.ComponentID); c != 0 {
		return c
	}
	return cmp.Compare(r.Metric, o.Metric)
}
