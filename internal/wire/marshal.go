package wire

import (
	"fmt"
	"math"
	"time"

	"github.com/gridpulse/reporting-client/pkg/metric"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

func appendMessage(b []byte, num protowire.Number, body []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, body)
}

func appendTimestamp(b []byte, num protowire.Number, t time.Time) ([]byte, error) {
	body, err := proto.Marshal(timestamppb.New(t))
	if err != nil {
		return nil, fmt.Errorf("encoding timestamp: %w", err)
	}
	return appendMessage(b, num, body), nil
}

func consumeTimestamp(v []byte) (time.Time, error) {
	var ts timestamppb.Timestamp
	if err := proto.Unmarshal(v, &ts); err != nil {
		return time.Time{}, fmt.Errorf("decoding timestamp: %w", err)
	}
	return ts.AsTime(), nil
}

func appendDuration(b []byte, num protowire.Number, d time.Duration) ([]byte, error) {
	body, err := proto.Marshal(durationpb.New(d))
	if err != nil {
		return nil, fmt.Errorf("encoding duration: %w", err)
	}
	return appendMessage(b, num, body), nil
}

func consumeDuration(v []byte) (time.Duration, error) {
	var d durationpb.Duration
	if err := proto.Unmarshal(v, &d); err != nil {
		return 0, fmt.Errorf("decoding duration: %w", err)
	}
	return d.AsDuration(), nil
}

// appendPackedVarints encodes a packed repeated varint field. Empty slices
// are omitted entirely, matching proto3 defaults.
func appendPackedVarints(b []byte, num protowire.Number, vs []uint64) []byte {
	if len(vs) == 0 {
		return b
	}
	var body []byte
	for _, v := range vs {
		body = protowire.AppendVarint(body, v)
	}
	return appendMessage(b, num, body)
}

// consumePackedVarints accepts both packed and unpacked encodings, as proto3
// parsers must.
func consumePackedVarints(v []byte, typ protowire.Type, out []uint64) ([]uint64, error) {
	if typ == protowire.VarintType {
		u, n := protowire.ConsumeVarint(v)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		return append(out, u), nil
	}
	if typ != protowire.BytesType {
		return nil, fmt.Errorf("unexpected wire type %d for repeated varint field", typ)
	}
	for len(v) > 0 {
		u, n := protowire.ConsumeVarint(v)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		out = append(out, u)
		v = v[n:]
	}
	return out, nil
}

func skipField(b []byte, num protowire.Number, typ protowire.Type) ([]byte, error) {
	n := protowire.ConsumeFieldValue(num, typ, b)
	if n < 0 {
		return nil, protowire.ParseError(n)
	}
	return b[n:], nil
}

// Marshal encodes the component selector.
func (m *MicrogridComponents) Marshal() ([]byte, error) {
	var b []byte
	if m.MicrogridID != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, m.MicrogridID)
	}
	b = appendPackedVarints(b, 2, m.ComponentIDs)
	return b, nil
}

// Unmarshal decodes the component selector, resetting m first.
func (m *MicrogridComponents) Unmarshal(b []byte) error {
	*m = MicrogridComponents{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.MicrogridID = v
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			m.ComponentIDs = append(m.ComponentIDs, v)
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			ids, err := consumePackedVarints(v, protowire.BytesType, m.ComponentIDs)
			if err != nil {
				return err
			}
			m.ComponentIDs = ids
			b = b[n:]
		default:
			rest, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = rest
		}
	}
	return nil
}

// Marshal encodes the time filter. Zero times are omitted so an unbounded
// side stays absent on the wire.
func (f *TimeFilter) Marshal() ([]byte, error) {
	var b []byte
	var err error
	if !f.Start.IsZero() {
		if b, err = appendTimestamp(b, 1, f.Start); err != nil {
			return nil, err
		}
	}
	if !f.End.IsZero() {
		if b, err = appendTimestamp(b, 2, f.End); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Unmarshal decodes the time filter, resetting f first.
func (f *TimeFilter) Unmarshal(b []byte) error {
	*f = TimeFilter{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case (num == 1 || num == 2) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			t, err := consumeTimestamp(v)
			if err != nil {
				return err
			}
			if num == 1 {
				f.Start = t
			} else {
				f.End = t
			}
			b = b[n:]
		default:
			rest, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = rest
		}
	}
	return nil
}

// Marshal encodes the resampling options.
func (o *ResamplingOptions) Marshal() ([]byte, error) {
	var b []byte
	if o.Resolution != 0 {
		var err error
		if b, err = appendDuration(b, 1, o.Resolution); err != nil {
			return nil, err
		}
	}
	return b, nil
}

// Unmarshal decodes the resampling options, resetting o first.
func (o *ResamplingOptions) Unmarshal(b []byte) error {
	*o = ResamplingOptions{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			d, err := consumeDuration(v)
			if err != nil {
				return err
			}
			o.Resolution = d
			b = b[n:]
		default:
			rest, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = rest
		}
	}
	return nil
}

// Marshal encodes the include options.
func (o *IncludeOptions) Marshal() ([]byte, error) {
	var b []byte
	if o.States != FilterOptionUnspecified {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(o.States))
	}
	if o.Bounds != FilterOptionUnspecified {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(o.Bounds))
	}
	return b, nil
}

// Unmarshal decodes the include options, resetting o first.
func (o *IncludeOptions) Unmarshal(b []byte) error {
	*o = IncludeOptions{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case (num == 1 || num == 2) && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if num == 1 {
				o.States = FilterOption(v)
			} else {
				o.Bounds = FilterOption(v)
			}
			b = b[n:]
		default:
			rest, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = rest
		}
	}
	return nil
}

// Marshal encodes the compound stream filter.
func (f *StreamFilter) Marshal() ([]byte, error) {
	var b []byte
	tf, err := f.Time.Marshal()
	if err != nil {
		return nil, err
	}
	if len(tf) > 0 {
		b = appendMessage(b, 1, tf)
	}
	ro, err := f.Resampling.Marshal()
	if err != nil {
		return nil, err
	}
	if len(ro) > 0 {
		b = appendMessage(b, 2, ro)
	}
	io, err := f.Include.Marshal()
	if err != nil {
		return nil, err
	}
	if len(io) > 0 {
		b = appendMessage(b, 3, io)
	}
	return b, nil
}

// Unmarshal decodes the compound stream filter, resetting f first.
func (f *StreamFilter) Unmarshal(b []byte) error {
	*f = StreamFilter{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.BytesType || num < 1 || num > 3 {
			rest, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = rest
			continue
		}
		v, n := protowire.ConsumeBytes(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		var err error
		switch num {
		case 1:
			err = f.Time.Unmarshal(v)
		case 2:
			err = f.Resampling.Unmarshal(v)
		case 3:
			err = f.Include.Unmarshal(v)
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Marshal encodes the pagination parameters.
func (p *Pagination) Marshal() ([]byte, error) {
	var b []byte
	if p.PageSize != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(p.PageSize))
	}
	if len(p.PageToken) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, p.PageToken)
	}
	return b, nil
}

// Unmarshal decodes the pagination parameters, resetting p first.
func (p *Pagination) Unmarshal(b []byte) error {
	*p = Pagination{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.PageSize = uint32(v)
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			p.PageToken = append([]byte(nil), v...)
			b = b[n:]
		default:
			rest, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = rest
		}
	}
	return nil
}

// Marshal encodes one paged request.
func (r *ListRequest) Marshal() ([]byte, error) {
	var b []byte
	for i := range r.MicrogridComponents {
		body, err := r.MicrogridComponents[i].Marshal()
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 1, body)
	}
	if len(r.Metrics) > 0 {
		var body []byte
		for _, m := range r.Metrics {
			body = protowire.AppendVarint(body, uint64(m))
		}
		b = appendMessage(b, 2, body)
	}
	filter, err := r.Filter.Marshal()
	if err != nil {
		return nil, err
	}
	if len(filter) > 0 {
		b = appendMessage(b, 3, filter)
	}
	page, err := r.Pagination.Marshal()
	if err != nil {
		return nil, err
	}
	if len(page) > 0 {
		b = appendMessage(b, 4, page)
	}
	return b, nil
}

// Unmarshal decodes one paged request, resetting r first.
func (r *ListRequest) Unmarshal(b []byte) error {
	*r = ListRequest{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			var mc MicrogridComponents
			if err := mc.Unmarshal(v); err != nil {
				return err
			}
			r.MicrogridComponents = append(r.MicrogridComponents, mc)
			b = b[n:]
		case num == 2:
			var raw []uint64
			if typ == protowire.VarintType {
				v, n := protowire.ConsumeVarint(b)
				if n < 0 {
					return protowire.ParseError(n)
				}
				raw = []uint64{v}
				b = b[n:]
			} else {
				v, n := protowire.ConsumeBytes(b)
				if n < 0 {
					return protowire.ParseError(n)
				}
				var err error
				raw, err = consumePackedVarints(v, protowire.BytesType, nil)
				if err != nil {
					return err
				}
				b = b[n:]
			}
			for _, u := range raw {
				r.Metrics = append(r.Metrics, metricFromWire(u))
			}
		case num == 3 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := r.Filter.Unmarshal(v); err != nil {
				return err
			}
			b = b[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if err := r.Pagination.Unmarshal(v); err != nil {
				return err
			}
			b = b[n:]
		default:
			rest, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = rest
		}
	}
	return nil
}

// Marshal encodes the bounds pair. Zero bounds still encode so a (0, 0)
// range survives the round trip once the message is present.
func (bd *Bounds) Marshal() ([]byte, error) {
	var b []byte
	b = protowire.AppendTag(b, 1, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(bd.Lower))
	b = protowire.AppendTag(b, 2, protowire.Fixed64Type)
	b = protowire.AppendFixed64(b, math.Float64bits(bd.Upper))
	return b, nil
}

// Unmarshal decodes the bounds pair, resetting bd first.
func (bd *Bounds) Unmarshal(b []byte) error {
	*bd = Bounds{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case (num == 1 || num == 2) && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			if num == 1 {
				bd.Lower = math.Float64frombits(v)
			} else {
				bd.Upper = math.Float64frombits(v)
			}
			b = b[n:]
		default:
			rest, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = rest
		}
	}
	return nil
}

// Marshal encodes one telemetry record. Value uses explicit presence, so a
// stored 0.0 is distinguishable from "no value".
func (r *Record) Marshal() ([]byte, error) {
	var b []byte
	var err error
	if r.MicrogridID != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, r.MicrogridID)
	}
	if r.ComponentID != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, r.ComponentID)
	}
	if r.Metric != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(r.Metric))
	}
	if !r.SampledAt.IsZero() {
		if b, err = appendTimestamp(b, 4, r.SampledAt); err != nil {
			return nil, err
		}
	}
	if r.Value != nil {
		b = protowire.AppendTag(b, 5, protowire.Fixed64Type)
		b = protowire.AppendFixed64(b, math.Float64bits(*r.Value))
	}
	if r.Bounds != nil {
		body, err := r.Bounds.Marshal()
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 6, body)
	}
	b = appendPackedVarints(b, 7, widen(r.States))
	b = appendPackedVarints(b, 8, widen(r.Warnings))
	b = appendPackedVarints(b, 9, widen(r.Errors))
	return b, nil
}

// Unmarshal decodes one telemetry record, resetting r first.
func (r *Record) Unmarshal(b []byte) error {
	*r = Record{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.MicrogridID = v
			b = b[n:]
		case num == 2 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.ComponentID = v
			b = b[n:]
		case num == 3 && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.Metric = metricFromWire(v)
			b = b[n:]
		case num == 4 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			t, err := consumeTimestamp(v)
			if err != nil {
				return err
			}
			r.SampledAt = t
			b = b[n:]
		case num == 5 && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			f := math.Float64frombits(v)
			r.Value = &f
			b = b[n:]
		case num == 6 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			var bd Bounds
			if err := bd.Unmarshal(v); err != nil {
				return err
			}
			r.Bounds = &bd
			b = b[n:]
		case num >= 7 && num <= 9:
			var raw []uint64
			if typ == protowire.VarintType {
				v, n := protowire.ConsumeVarint(b)
				if n < 0 {
					return protowire.ParseError(n)
				}
				raw = []uint64{v}
				b = b[n:]
			} else {
				v, n := protowire.ConsumeBytes(b)
				if n < 0 {
					return protowire.ParseError(n)
				}
				var err error
				raw, err = consumePackedVarints(v, protowire.BytesType, nil)
				if err != nil {
					return err
				}
				b = b[n:]
			}
			codes := narrow(raw)
			switch num {
			case 7:
				r.States = append(r.States, codes...)
			case 8:
				r.Warnings = append(r.Warnings, codes...)
			case 9:
				r.Errors = append(r.Errors, codes...)
			}
		default:
			rest, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = rest
		}
	}
	return nil
}

// Marshal encodes one page of records.
func (r *ListResponse) Marshal() ([]byte, error) {
	var b []byte
	for i := range r.Records {
		body, err := r.Records[i].Marshal()
		if err != nil {
			return nil, err
		}
		b = appendMessage(b, 1, body)
	}
	if len(r.NextPageToken) > 0 {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, r.NextPageToken)
	}
	return b, nil
}

// Unmarshal decodes one page of records, resetting r first.
func (r *ListResponse) Unmarshal(b []byte) error {
	*r = ListResponse{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == 1 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			var rec Record
			if err := rec.Unmarshal(v); err != nil {
				return err
			}
			r.Records = append(r.Records, rec)
			b = b[n:]
		case num == 2 && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			r.NextPageToken = append([]byte(nil), v...)
			b = b[n:]
		default:
			rest, err := skipField(b, num, typ)
			if err != nil {
				return err
			}
			b = rest
		}
	}
	return nil
}

func metricFromWire(v uint64) metric.Metric {
	return metric.Metric(int32(v))
}

func widen(vs []uint32) []uint64 {
	if len(vs) == 0 {
		return nil
	}
	out := make([]uint64, len(vs))
	for i, v := range vs {
		out[i] = uint64(v)
	}
	return out
}

func narrow(vs []uint64) []uint32 {
	if len(vs) == 0 {
		return nil
	}
	out := make([]uint32, len(vs))
	for i, v := range vs {
		out[i] = uint32(v)
	}
	return out
}
