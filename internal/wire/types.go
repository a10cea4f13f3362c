// Package wire holds hand-maintained protobuf bindings for the
// gridpulse.reporting.v1 service. Messages are encoded with
// encoding/protowire against the field numbers documented on each struct, so
// the client stays wire-compatible with the service without a protoc build
// step. Field numbers are part of the protocol contract; never renumber.
package wire

import (
	"time"

	"github.com/gridpulse/reporting-client/pkg/metric"
)

// Full method name of the paged data call, as registered by the service.
const (
	ServiceName = "gridpulse.reporting.v1.ReportingService"
	ListMethod  = "/" + ServiceName + "/ListMicrogridComponentsData"
)

// FilterOption mirrors the service's include/exclude tri-state.
type FilterOption int32

const (
	FilterOptionUnspecified FilterOption = 0
	FilterOptionExclude     FilterOption = 1
	FilterOptionInclude     FilterOption = 2
)

// MicrogridComponents selects components of a single microgrid.
//
//	uint64 microgrid_id    = 1;
//	repeated uint64 component_ids = 2;
type MicrogridComponents struct {
	MicrogridID  uint64
	ComponentIDs []uint64
}

// TimeFilter bounds the sampled_at range, end exclusive.
//
//	google.protobuf.Timestamp start = 1;
//	google.protobuf.Timestamp end   = 2;
type TimeFilter struct {
	Start time.Time
	End   time.Time
}

// ResamplingOptions requests server-side aggregation at the given resolution.
//
//	google.protobuf.Duration resolution = 1;
type ResamplingOptions struct {
	Resolution time.Duration
}

// IncludeOptions toggles optional record categories.
//
//	FilterOption states = 1;
//	FilterOption bounds = 2;
type IncludeOptions struct {
	States FilterOption
	Bounds FilterOption
}

// StreamFilter is the compound filter attached to every request.
//
//	TimeFilter time_filter               = 1;
//	ResamplingOptions resampling_options = 2;
//	IncludeOptions include_options       = 3;
type StreamFilter struct {
	Time       TimeFilter
	Resampling ResamplingOptions
	Include    IncludeOptions
}

// Pagination carries the page size and the opaque continuation token. An
// empty token requests the first page.
//
//	uint32 page_size = 1;
//	bytes page_token = 2;
type Pagination struct {
	PageSize  uint32
	PageToken []byte
}

// ListRequest is one protocol-level paged request.
//
//	repeated MicrogridComponents microgrid_components = 1;
//	repeated Metric metrics                           = 2;
//	StreamFilter filter                               = 3;
//	Pagination pagination                             = 4;
type ListRequest struct {
	MicrogridComponents []MicrogridComponents
	Metrics             []metric.Metric
	Filter              StreamFilter
	Pagination          Pagination
}

// Bounds is the admissible value range attached to a metric record.
//
//	double lower = 1;
//	double upper = 2;
type Bounds struct {
	Lower float64
	Upper float64
}

// Record is one decoded telemetry record. Metric records carry Value (and
// optionally Bounds); state records carry the state/warning/error code lists
// with Metric left UNSPECIFIED.
//
//	uint64 microgrid_id               = 1;
//	uint64 component_id               = 2;
//	Metric metric                     = 3;
//	google.protobuf.Timestamp sampled_at = 4;
//	optional double value             = 5;
//	Bounds bounds                     = 6;
//	repeated uint32 states            = 7;
//	repeated uint32 warnings          = 8;
//	repeated uint32 errors            = 9;
type Record struct {
	MicrogridID uint64
	ComponentID uint64
	Metric      metric.Metric
	SampledAt   time.Time
	Value       *float64
	Bounds      *Bounds
	States      []uint32
	Warnings    []uint32
	Errors      []uint32
}

// ListResponse is one page of records plus the continuation token. An empty
// NextPageToken marks the final page.
//
//	repeated Record records   = 1;
//	bytes next_page_token     = 2;
type ListResponse struct {
	Records       []Record
	NextPageToken []byte
}
