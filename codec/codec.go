package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/google/uuid"
)

var (
	ErrUnsupportedType = errors.New("codec: unsupported type")
	ErrUnknownVariant  = errors.New("codec: unknown enum variant")
	ErrMalformed       = errors.New("codec: malformed encoding")
	ErrMalformedKey    = errors.New("codec: malformed key")
)

var anyType = reflect.TypeFor[any]()

func mismatch(t Type, v any) error {
	return fmt.Errorf("%w: %s cannot encode %T", ErrUnsupportedType, t, v)
}

func unsupported(t Type) error {
	return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
}

// Encoder returns the function mapping values of t to their stored bytes.
func Encoder(t Type) (func(any) ([]byte, error), error) {
	switch t.kind {
	case KindText:
		return func(v any) ([]byte, error) {
			s, ok := v.(string)
			if !ok {
				return nil, mismatch(t, v)
			}
			return []byte(s), nil
		}, nil
	case KindInt32:
		return func(v any) ([]byte, error) {
			n, ok := v.(int32)
			if !ok {
				return nil, mismatch(t, v)
			}
			return binary.BigEndian.AppendUint32(make([]byte, 0, 4), uint32(n)), nil
		}, nil
	case KindInt64:
		return func(v any) ([]byte, error) {
			n, ok := v.(int64)
			if !ok {
				return nil, mismatch(t, v)
			}
			return binary.BigEndian.AppendUint64(make([]byte, 0, 8), uint64(n)), nil
		}, nil
	case KindFloat64:
		return func(v any) ([]byte, error) {
			f, ok := v.(float64)
			if !ok {
				return nil, mismatch(t, v)
			}
			return binary.BigEndian.AppendUint64(make([]byte, 0, 8), math.Float64bits(f)), nil
		}, nil
	case KindUUID:
		return func(v any) ([]byte, error) {
			u, ok := v.(uuid.UUID)
			if !ok {
				return nil, mismatch(t, v)
			}
			return []byte(u.String()), nil
		}, nil
	case KindEnum:
		if t.enum == nil {
			return nil, unsupported(t)
		}
		nameOf := t.enum.nameOf
		return func(v any) ([]byte, error) {
			n, err := nameOf(v)
			if err != nil {
				return nil, err
			}
			return []byte(n), nil
		}, nil
	}
	return nil, unsupported(t)
}

// Decoder returns the function mapping stored bytes back to values of t.
// Fixed-width kinds reject inputs of any other length with ErrMalformed.
func Decoder(t Type) (func([]byte) (any, error), error) {
	switch t.kind {
	case KindText:
		return func(b []byte) (any, error) {
			return string(b), nil
		}, nil
	case KindInt32:
		return func(b []byte) (any, error) {
			if len(b) != 4 {
				return nil, fmt.Errorf("%w: int32 needs 4 bytes, got %d", ErrMalformed, len(b))
			}
			return int32(binary.BigEndian.Uint32(b)), nil
		}, nil
	case KindInt64:
		return func(b []byte) (any, error) {
			if len(b) != 8 {
				return nil, fmt.Errorf("%w: int64 needs 8 bytes, got %d", ErrMalformed, len(b))
			}
			return int64(binary.BigEndian.Uint64(b)), nil
		}, nil
	case KindFloat64:
		return func(b []byte) (any, error) {
			if len(b) != 8 {
				return nil, fmt.Errorf("%w: float64 needs 8 bytes, got %d", ErrMalformed, len(b))
			}
			return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
		}, nil
	case KindUUID:
		return func(b []byte) (any, error) {
			if !hyphenated(b) {
				return nil, fmt.Errorf("%w: %q is not a hyphenated uuid", ErrMalformed, b)
			}
			u, err := uuid.ParseBytes(b)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			return u, nil
		}, nil
	case KindEnum:
		if t.enum == nil {
			return nil, unsupported(t)
		}
		set := t.enum
		return func(b []byte) (any, error) {
			v, ok := set.byName[string(b)]
			if !ok {
				return nil, fmt.Errorf("%w: %q is not a variant of %s", ErrUnknownVariant, b, set.name)
			}
			return v, nil
		}, nil
	}
	return nil, unsupported(t)
}

// hyphenated reports whether b has the 8-4-4-4-12 layout uuid.String writes.
// uuid.ParseBytes also accepts braced, urn:uuid: and bare hex forms.
func hyphenated(b []byte) bool {
	if len(b) != 36 {
		return false
	}
	return b[8] == '-' && b[13] == '-' && b[18] == '-' && b[23] == '-'
}

// Codec is a typed encode/decode pair resolved from a Type.
type Codec[T any] struct {
	typ Type
	enc func(any) ([]byte, error)
	dec func([]byte) (any, error)
}

// For resolves t into a Codec for Go type T. T must be the Go representation
// of t (string, int32, int64, float64, uuid.UUID, or the enum's value type);
// T = any accepts every descriptor.
func For[T any](t Type) (Codec[T], error) {
	if !t.valid() {
		return Codec[T]{}, unsupported(t)
	}
	if target := reflect.TypeFor[T](); target != anyType && target != t.goType() {
		return Codec[T]{}, fmt.Errorf("%w: %s values are %s, not %s", ErrUnsupportedType, t, t.goType(), target)
	}
	enc, err := Encoder(t)
	if err != nil {
		return Codec[T]{}, err
	}
	dec, err := Decoder(t)
	if err != nil {
		return Codec[T]{}, err
	}
	return Codec[T]{typ: t, enc: enc, dec: dec}, nil
}

// Type returns the descriptor the codec was resolved from.
func (c Codec[T]) Type() Type { return c.typ }

// Encode returns the stored form of v.
func (c Codec[T]) Encode(v T) ([]byte, error) {
	if c.enc == nil {
		return nil, unsupported(c.typ)
	}
	return c.enc(v)
}

// Decode parses a stored form back into a T.
func (c Codec[T]) Decode(b []byte) (T, error) {
	var zero T
	if c.dec == nil {
		return zero, unsupported(c.typ)
	}
	v, err := c.dec(b)
	if err != nil {
		return zero, err
	}
	tv, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: decoded %T for %s", ErrUnsupportedType, v, c.typ)
	}
	return tv, nil
}
