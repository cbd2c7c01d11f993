package expr

import "reflect"

// Queryable is implemented by data source values that are not Go slices,
// such as named tables. ElementType must not depend on receiver state: it is
// called on the zero value of the type.
type Queryable interface {
	ElementType() reflect.Type
}

var (
	// AnyType is the type of untyped values.
	AnyType = reflect.TypeFor[any]()

	// BoolType is the type of predicates.
	BoolType = reflect.TypeFor[bool]()

	// IntType is the type of counts and lengths.
	IntType = reflect.TypeFor[int]()

	// CarrierType is the type of anonymous carriers built with NewCarrier.
	CarrierType = reflect.TypeFor[map[string]any]()

	queryableType = reflect.TypeFor[Queryable]()
)

// Grouping is the item type of grouped sequences.
type Grouping struct {
	Key   any
	Items []any
}

// GroupingType is the reflect type of Grouping.
var GroupingType = reflect.TypeFor[Grouping]()

// ElementType returns the item type of a sequence type: the element type of
// a slice or array, or the ElementType of a Queryable.
func ElementType(t reflect.Type) (reflect.Type, bool) {
	if t == nil {
		return nil, false
	}
	if t.Implements(queryableType) {
		zero := reflect.Zero(t)
		if t.Kind() == reflect.Pointer || t.Kind() == reflect.Interface {
			return nil, false
		}
		return zero.Interface().(Queryable).ElementType(), true
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return t.Elem(), true
	}
	return nil, false
}

// IsSequence reports whether t is a sequence type.
func IsSequence(t reflect.Type) bool {
	_, ok := ElementType(t)
	return ok
}

// TypeName renders a type for diagnostics.
func TypeName(t reflect.Type) string {
	if t == nil {
		return "void"
	}
	return t.String()
}

// memberType resolves the static type of x.name.
func memberType(x reflect.Type, name string) reflect.Type {
	if x == nil {
		return AnyType
	}
	if m, ok := x.MethodByName(name); ok && m.Type.NumOut() > 0 {
		return m.Type.Out(0)
	}
	t := x
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		if f, ok := t.FieldByName(name); ok {
			return f.Type
		}
		if m, ok := reflect.PointerTo(t).MethodByName(name); ok && m.Type.NumOut() > 0 {
			return m.Type.Out(0)
		}
	case reflect.Map:
		return t.Elem()
	}
	return AnyType
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}
