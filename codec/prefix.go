package codec

import (
	"errors"
	"fmt"
	"strings"
)

// MalformedKeyError reports a physical key that cannot be decoded under the
// configured prefix. Raw holds the bytes remaining after the prefix, or the
// whole key when the prefix itself is missing.
type MalformedKeyError struct {
	Prefix string
	Raw    []byte
	Err    error
}

func (e *MalformedKeyError) Error() string {
	return fmt.Sprintf("codec: key with prefix %q is not decodable: %v: %v", e.Prefix, e.Raw, e.Err)
}

func (e *MalformedKeyError) Unwrap() error { return e.Err }

func (e *MalformedKeyError) Is(target error) bool { return target == ErrMalformedKey }

var errMissingPrefix = errors.New("prefix not present")

// KeyValue is the codec a store uses on the wire: keys are encoded with the
// key descriptor and then prefixed; values are encoded without prefixing.
// A KeyValue is immutable and safe for concurrent use.
type KeyValue[K, V any] struct {
	prefix      string
	key         Codec[K]
	value       Codec[V]
	passthrough bool
}

// NewKeyValue resolves the key and value descriptors for Go types K and V.
func NewKeyValue[K, V any](prefix string, keyType, valueType Type) (*KeyValue[K, V], error) {
	kc, err := For[K](keyType)
	if err != nil {
		return nil, fmt.Errorf("key: %w", err)
	}
	vc, err := For[V](valueType)
	if err != nil {
		return nil, fmt.Errorf("value: %w", err)
	}
	return &KeyValue[K, V]{
		prefix:      prefix,
		key:         kc,
		value:       vc,
		passthrough: prefix == "" && keyType.kind == KindText && valueType.kind == KindText,
	}, nil
}

func (kv *KeyValue[K, V]) Prefix() string  { return kv.prefix }
func (kv *KeyValue[K, V]) KeyType() Type   { return kv.key.typ }
func (kv *KeyValue[K, V]) ValueType() Type { return kv.value.typ }

// Passthrough reports whether keys and values are plain text with no prefix,
// in which case encoding is a direct conversion.
func (kv *KeyValue[K, V]) Passthrough() bool { return kv.passthrough }

// EncodeKey returns the physical key for k.
func (kv *KeyValue[K, V]) EncodeKey(k K) (string, error) {
	if kv.passthrough {
		if s, ok := any(k).(string); ok {
			return s, nil
		}
	}
	b, err := kv.key.Encode(k)
	if err != nil {
		return "", err
	}
	return kv.prefix + string(b), nil
}

// DecodeKey strips the prefix from a physical key and decodes the rest.
func (kv *KeyValue[K, V]) DecodeKey(raw string) (K, error) {
	var zero K
	if kv.passthrough {
		if k, ok := any(raw).(K); ok {
			return k, nil
		}
	}
	if !strings.HasPrefix(raw, kv.prefix) {
		return zero, &MalformedKeyError{Prefix: kv.prefix, Raw: []byte(raw), Err: errMissingPrefix}
	}
	rest := []byte(raw[len(kv.prefix):])
	k, err := kv.key.Decode(rest)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			return zero, &MalformedKeyError{Prefix: kv.prefix, Raw: rest, Err: err}
		}
		return zero, err
	}
	return k, nil
}

// EncodeValue encodes v with the value codec. Values are never prefixed.
func (kv *KeyValue[K, V]) EncodeValue(v V) ([]byte, error) {
	if kv.passthrough {
		if s, ok := any(v).(string); ok {
			return []byte(s), nil
		}
	}
	return kv.value.Encode(v)
}

// DecodeValue decodes a stored value.
func (kv *KeyValue[K, V]) DecodeValue(b []byte) (V, error) {
	if kv.passthrough {
		if v, ok := any(string(b)).(V); ok {
			return v, nil
		}
	}
	return kv.value.Decode(b)
}
