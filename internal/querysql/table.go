package querysql

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
)

// DefaultKeyColumn is the primary key used when a table names none.
const DefaultKeyColumn = "id"

// Source is a data source value backed by a SQL table.
type Source interface {
	ElementType() reflect.Type
	TableName() string
	KeyColumn() string
}

// Table is a named table whose rows scan into T. It is a sequence to the
// parser, so query chains can start from it directly:
//
//	fluent.From(querysql.NewTable[Person]("people")).Where(...)
type Table[T any] struct {
	Name string
	Key  string
}

// NewTable creates a table keyed by DefaultKeyColumn.
func NewTable[T any](name string) Table[T] {
	return Table[T]{Name: name, Key: DefaultKeyColumn}
}

func (Table[T]) ElementType() reflect.Type { return reflect.TypeFor[T]() }

func (t Table[T]) TableName() string { return t.Name }

func (t Table[T]) KeyColumn() string {
	if t.Key == "" {
		return DefaultKeyColumn
	}
	return t.Key
}

func (t Table[T]) String() string { return "table(" + t.Name + ")" }

// Column maps a struct field to a table column.
type Column struct {
	Field string
	Name  string
}

// Columns returns the columns of a row type in field order. A `db` tag
// names the column; "-" skips the field. Untagged exported fields use their
// snake_case name.
func Columns(t reflect.Type) ([]Column, error) {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: row type %s is not a struct", ErrUnsupported, typeName(t))
	}
	var out []Column
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Tag.Get("db")
		if name == "-" {
			continue
		}
		if name == "" {
			name = snakeCase(f.Name)
		}
		out = append(out, Column{Field: f.Name, Name: name})
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: row type %s has no columns", ErrUnsupported, typeName(t))
	}
	return out, nil
}

func snakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if unicode.IsUpper(r) {
			// ID -> id, UserID -> user_id, HTTPPort -> http_port
			if i > 0 && (unicode.IsLower(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

func typeName(t reflect.Type) string {
	if t == nil {
		return "void"
	}
	return t.String()
}

// quoteIdent quotes a table, column or output name.
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
