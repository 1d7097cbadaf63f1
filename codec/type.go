package codec

import (
	"fmt"
	"reflect"
	"sort"

	"github.com/google/uuid"
)

// Kind identifies one member of the closed set of scalar kinds.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindText
	KindInt32
	KindInt64
	KindFloat64
	KindUUID
	KindEnum
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindUUID:
		return "uuid"
	case KindEnum:
		return "enum"
	default:
		return "invalid"
	}
}

// Type is a type descriptor. The zero value is invalid and every codec
// constructor rejects it with ErrUnsupportedType.
type Type struct {
	kind Kind
	enum *enumSet
}

// Built-in descriptors.
var (
	Text    = Type{kind: KindText}
	Int32   = Type{kind: KindInt32}
	Int64   = Type{kind: KindInt64}
	Float64 = Type{kind: KindFloat64}
	UUID    = Type{kind: KindUUID}
)

var (
	stringType  = reflect.TypeFor[string]()
	int32Type   = reflect.TypeFor[int32]()
	int64Type   = reflect.TypeFor[int64]()
	float64Type = reflect.TypeFor[float64]()
	uuidType    = reflect.TypeFor[uuid.UUID]()
)

// Kind returns the descriptor's kind.
func (t Type) Kind() Kind { return t.kind }

// Name returns the configuration name of the descriptor, "enum:<Name>" for enums.
func (t Type) Name() string {
	if t.kind == KindEnum && t.enum != nil {
		return "enum:" + t.enum.name
	}
	return t.kind.String()
}

func (t Type) String() string { return t.Name() }

// Variants returns the declared variant names of an enum descriptor in sorted
// order, or nil for every other kind.
func (t Type) Variants() []string {
	if t.kind != KindEnum || t.enum == nil {
		return nil
	}
	names := make([]string, 0, len(t.enum.byName))
	for n := range t.enum.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (t Type) valid() bool {
	switch t.kind {
	case KindText, KindInt32, KindInt64, KindFloat64, KindUUID:
		return true
	case KindEnum:
		return t.enum != nil
	}
	return false
}

// goType is the Go representation of values of this descriptor.
func (t Type) goType() reflect.Type {
	switch t.kind {
	case KindText:
		return stringType
	case KindInt32:
		return int32Type
	case KindInt64:
		return int64Type
	case KindFloat64:
		return float64Type
	case KindUUID:
		return uuidType
	case KindEnum:
		if t.enum != nil {
			return t.enum.goType
		}
	}
	return nil
}

type enumSet struct {
	name   string
	goType reflect.Type
	byName map[string]any
	nameOf func(v any) (string, error)
}

// Enum declares an enumeration named name whose values have Go type T.
// variants maps every value to the name it is stored under. Enum panics if two
// values share a name, since decoding would be ambiguous.
func Enum[T comparable](name string, variants map[T]string) Type {
	names := make(map[T]string, len(variants))
	set := &enumSet{
		name:   name,
		goType: reflect.TypeFor[T](),
		byName: make(map[string]any, len(variants)),
	}
	for v, n := range variants {
		if _, dup := set.byName[n]; dup {
			panic(fmt.Sprintf("codec: enum %s declares variant name %q twice", name, n))
		}
		set.byName[n] = v
		names[v] = n
	}
	t := Type{kind: KindEnum, enum: set}
	set.nameOf = func(v any) (string, error) {
		tv, ok := v.(T)
		if !ok {
			return "", mismatch(t, v)
		}
		n, ok := names[tv]
		if !ok {
			return "", fmt.Errorf("%w: %v is not a variant of %s", ErrUnknownVariant, v, name)
		}
		return n, nil
	}
	return t
}

// StringEnum declares an enumeration whose Go values are the variant names
// themselves.
func StringEnum(name string, variants ...string) Type {
	m := make(map[string]string, len(variants))
	for _, v := range variants {
		m[v] = v
	}
	return Enum(name, m)
}
