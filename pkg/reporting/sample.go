package reporting

import (
	"time"

	"github.com/gridpulse/reporting-client/internal/stream"
	"github.com/gridpulse/reporting-client/pkg/metric"
)

// Bounds is the admissible value range the service attached to a metric
// sample.
type Bounds struct {
	Lower float64
	Upper float64
}

// StateSnapshot carries the component state, warning, and error codes of a
// state record.
type StateSnapshot struct {
	States   []uint32
	Warnings []uint32
	Errors   []uint32
}

// Sample is one telemetry point. Metric samples carry Value and optionally
// Bounds; state records carry State with Metric left Unspecified. Samples
// are ordered by (Timestamp, MicrogridID, ComponentID, Metric), ascending.
type Sample struct {
	Timestamp   time.Time
	MicrogridID uint64
	ComponentID uint64
	Metric      metric.Metric

	Value  *float64
	Bounds *Bounds
	State  *StateSnapshot
}

func sampleFromRecord(rec stream.Record) Sample {
	s := Sample{
		Timestamp:   rec.SampledAt,
		MicrogridID: rec.MicrogridID,
		ComponentID: rec.ComponentID,
		Metric:      rec.Metric,
		Value:       rec.Value,
	}
	if rec.Bounds != nil {
		s.Bounds = &Bounds{Lower: rec.Bounds.Lower, Upper: rec.Bounds.Upper}
	}
	if len(rec.States)+len(rec.Warnings)+len(rec.Errors) > 0 {
		s.State = &StateSnapshot{States: rec.States, Warnings: rec.Warnings, Errors: rec.Errors}
	}
	return s
}
