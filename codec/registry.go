package codec

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

var builtinNames = map[string]Type{
	"text":    Text,
	"string":  Text,
	"int32":   Int32,
	"int":     Int32,
	"integer": Int32,
	"int64":   Int64,
	"long":    Int64,
	"float64": Float64,
	"double":  Float64,
	"uuid":    UUID,
}

// Registry resolves configuration type names into descriptors. Built-in names
// are matched case-insensitively; enums are matched by their declared name,
// with or without the "enum:" qualifier.
type Registry struct {
	mu    sync.RWMutex
	enums map[string]Type
}

// NewRegistry returns a registry knowing only the built-in kinds.
func NewRegistry() *Registry {
	return &Registry{enums: make(map[string]Type)}
}

// Register makes an enum descriptor resolvable by name.
func (r *Registry) Register(t Type) error {
	if t.kind != KindEnum || t.enum == nil {
		return fmt.Errorf("%w: only enums can be registered, got %s", ErrUnsupportedType, t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.enums[t.enum.name]; ok {
		return fmt.Errorf("codec: enum %s already registered", t.enum.name)
	}
	r.enums[t.enum.name] = t
	return nil
}

// Lookup resolves name. Unknown names fail with ErrUnsupportedType.
func (r *Registry) Lookup(name string) (Type, error) {
	if t, ok := builtinNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return t, nil
	}
	enumName := strings.TrimPrefix(strings.TrimSpace(name), "enum:")
	if r != nil {
		r.mu.RLock()
		t, ok := r.enums[enumName]
		r.mu.RUnlock()
		if ok {
			return t, nil
		}
	}
	return Type{}, fmt.Errorf("%w: unknown type name %q", ErrUnsupportedType, name)
}

// ParseValue converts the textual form of a value of t, as typed on a command
// line, into its Go representation.
func ParseValue(t Type, s string) (any, error) {
	switch t.kind {
	case KindText:
		return s, nil
	case KindInt32:
		n, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return int32(n), nil
	case KindInt64:
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return n, nil
	case KindFloat64:
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return f, nil
	case KindUUID:
		u, err := uuid.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		return u, nil
	case KindEnum:
		if t.enum != nil {
			v, ok := t.enum.byName[s]
			if !ok {
				return nil, fmt.Errorf("%w: %q is not a variant of %s", ErrUnknownVariant, s, t.enum.name)
			}
			return v, nil
		}
	}
	return nil, unsupported(t)
}

// FormatValue is the inverse of ParseValue.
func FormatValue(t Type, v any) (string, error) {
	switch t.kind {
	case KindText:
		if s, ok := v.(string); ok {
			return s, nil
		}
	case KindInt32:
		if n, ok := v.(int32); ok {
			return strconv.FormatInt(int64(n), 10), nil
		}
	case KindInt64:
		if n, ok := v.(int64); ok {
			return strconv.FormatInt(n, 10), nil
		}
	case KindFloat64:
		if f, ok := v.(float64); ok {
			return strconv.FormatFloat(f, 'g', -1, 64), nil
		}
	case KindUUID:
		if u, ok := v.(uuid.UUID); ok {
			return u.String(), nil
		}
	case KindEnum:
		if t.enum != nil {
			return t.enum.nameOf(v)
		}
		return "", unsupported(t)
	default:
		return "", unsupported(t)
	}
	return "", mismatch(t, v)
}
