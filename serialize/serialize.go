// Package serialize provides the opaque byte-string codec cacheandra's
// blob column family stores. The Coordinator never inspects the bytes
// it gets back from here; it only guarantees decode(encode(v)) == v.
package serialize

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/golang/snappy"
)

// Serializer is the black-box codec the Coordinator depends on.
type Serializer interface {
	Encode(v any) ([]byte, error)
	Decode(b []byte) (any, error)
}

func init() {
	// Concrete types the Coordinator itself ever boxes into an any:
	// integers (for the counter dual-representation) and the basic
	// kinds application callers commonly cache.
	for _, v := range []any{
		int(0), int8(0), int16(0), int32(0), int64(0),
		uint(0), uint8(0), uint16(0), uint32(0), uint64(0),
		float32(0), float64(0), string(""), bool(false), []byte(nil),
		[]any(nil), map[string]any(nil),
	} {
		gob.Register(v)
	}
}

// Register makes a custom application type safe to pass through
// Encode/Decode. It must be called once (e.g. from an init func) for
// every concrete type an application stores in the cache, mirroring
// the requirement Go's encoding/gob places on interface values.
func Register(v any) { gob.Register(v) }

// Codec is the default Serializer: gob for arbitrary registered-type
// round-tripping, snappy to keep the wide-column blob small.
type Codec struct{}

var _ Serializer = Codec{}

func (Codec) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&v); err != nil {
		return nil, fmt.Errorf("serialize: encode: %w", err)
	}
	return snappy.Encode(nil, buf.Bytes()), nil
}

func (Codec) Decode(b []byte) (any, error) {
	raw, err := snappy.Decode(nil, b)
	if err != nil {
		return nil, fmt.Errorf("serialize: snappy decode: %w", err)
	}
	var v any
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&v); err != nil {
		return nil, fmt.Errorf("serialize: decode: %w", err)
	}
	return v, nil
}
