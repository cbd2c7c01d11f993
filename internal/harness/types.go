package harness

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/querysql"
	"github.com/roach88/chainql/internal/testutil"
)

// Types resolves the type names used in scenario ASTs and creates tables
// of registered row types.
//
// Names are Go-like: "int", "string", "Person", "[]Person", "*int".
type Types struct {
	types  map[string]reflect.Type
	tables map[string]func(name string) any
}

// NewTypes creates a registry holding the scalar types.
func NewTypes() *Types {
	t := &Types{
		types:  make(map[string]reflect.Type),
		tables: make(map[string]func(string) any),
	}
	t.Register("any", expr.AnyType)
	t.Register("bool", reflect.TypeFor[bool]())
	t.Register("int", reflect.TypeFor[int]())
	t.Register("int64", reflect.TypeFor[int64]())
	t.Register("float64", reflect.TypeFor[float64]())
	t.Register("string", reflect.TypeFor[string]())
	t.Register("carrier", expr.CarrierType)
	t.Register("Grouping", expr.GroupingType)
	return t
}

// DefaultTypes returns the scalar types plus the fixture row types.
func DefaultTypes() *Types {
	t := NewTypes()
	RegisterRow[testutil.Person](t, "Person")
	RegisterRow[testutil.Team](t, "Team")
	return t
}

// Register names typ.
func (t *Types) Register(name string, typ reflect.Type) {
	t.types[name] = typ
}

// RegisterRow names T and lets scenarios declare tables of it.
func RegisterRow[T any](t *Types, name string) {
	t.Register(name, reflect.TypeFor[T]())
	t.tables[name] = func(table string) any { return querysql.NewTable[T](table) }
}

// Lookup resolves a type name.
func (t *Types) Lookup(name string) (reflect.Type, error) {
	switch {
	case strings.HasPrefix(name, "[]"):
		elem, err := t.Lookup(name[2:])
		if err != nil {
			return nil, err
		}
		return reflect.SliceOf(elem), nil
	case strings.HasPrefix(name, "*"):
		elem, err := t.Lookup(name[1:])
		if err != nil {
			return nil, err
		}
		return reflect.PointerTo(elem), nil
	}
	typ, ok := t.types[name]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", name)
	}
	return typ, nil
}

// Table creates the table value of a registered row type.
func (t *Types) Table(rowType, name string) (any, error) {
	mk, ok := t.tables[rowType]
	if !ok {
		return nil, fmt.Errorf("type %q is not a row type", rowType)
	}
	return mk(name), nil
}
