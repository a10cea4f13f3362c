package transport

import "fmt"

// message is implemented by the hand-maintained wire types.
type message interface {
	Marshal() ([]byte, error)
	Unmarshal([]byte) error
}

// Codec moves the wire package's hand-encoded messages through grpc without
// a generated protobuf layer. The name stays "proto" so the peer sees the
// standard content-subtype.
type Codec struct{}

// Marshal encodes v, which must be one of the wire message types.
func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(message)
	if !ok {
		return nil, fmt.Errorf("codec: unsupported message type %T", v)
	}
	return m.Marshal()
}

// Unmarshal decodes data into v, which must be one of the wire message
// types.
func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(message)
	if !ok {
		return fmt.Errorf("codec: unsupported message type %T", v)
	}
	return m.Unmarshal(data)
}

// Name identifies the codec's wire format.
func (Codec) Name() string { return "proto" }
