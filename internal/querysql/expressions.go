package querysql

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/querymodel"
)

var binaryOperators = map[expr.BinaryOp]string{
	expr.OpAdd:   "+",
	expr.OpSub:   "-",
	expr.OpMul:   "*",
	expr.OpDiv:   "/",
	expr.OpMod:   "%",
	expr.OpEq:    "=",
	expr.OpNotEq: "<>",
	expr.OpLt:    "<",
	expr.OpLtEq:  "<=",
	expr.OpGt:    ">",
	expr.OpGtEq:  ">=",
	expr.OpAnd:   "AND",
	expr.OpOr:    "OR",
}

// expr compiles a scalar expression.
// CRITICAL: constants become ? placeholders, never SQL text.
func (b *builder) expr(n expr.Node) (fragment, error) {
	switch n := n.(type) {
	case *expr.Constant:
		v, err := paramValue(n.Value)
		if err != nil {
			return fragment{}, err
		}
		return fragment{sql: "?", params: []any{v}}, nil

	case *querymodel.QuerySourceReference:
		src, ok := b.scope[n.Source]
		if !ok {
			return fragment{}, fmt.Errorf("%w: reference to %s outside the query", ErrUnsupported, n)
		}
		if src.value == "" {
			return fragment{}, fmt.Errorf("%w: whole row %s used as a value", ErrUnsupported, n)
		}
		return fragment{sql: src.value}, nil

	case *expr.Member:
		return b.member(n)
	case *expr.Binary:
		return b.binary(n)
	case *expr.Unary:
		return b.unary(n)

	case *expr.Conditional:
		parts, err := b.exprs(n.Test, n.Then, n.Else)
		if err != nil {
			return fragment{}, err
		}
		return join("(CASE WHEN %s THEN %s ELSE %s END)", parts...), nil

	case *expr.Call:
		return b.call(n)

	case *querymodel.SubQuery:
		inner, err := b.model(n.Model)
		if err != nil {
			return fragment{}, fmt.Errorf("subquery: %w", err)
		}
		if inner.shape == ShapeSequence || inner.unique || !inner.value {
			return fragment{}, fmt.Errorf("%w: subquery %s is not a single value", ErrUnsupported, n)
		}
		sql, params := inner.stmt.render()
		return fragment{sql: "(" + sql + ")", params: params}, nil

	default:
		return fragment{}, fmt.Errorf("%w: %s expression %s", ErrUnsupported, n.Kind(), expr.Format(n))
	}
}

func (b *builder) exprs(ns ...expr.Node) ([]fragment, error) {
	out := make([]fragment, len(ns))
	for i, n := range ns {
		f, err := b.expr(n)
		if err != nil {
			return nil, err
		}
		out[i] = f
	}
	return out, nil
}

// join fills format with the parts' SQL and concatenates their params.
func join(format string, parts ...fragment) fragment {
	sqls := make([]any, len(parts))
	var params []any
	for i, p := range parts {
		sqls[i] = p.sql
		params = append(params, p.params...)
	}
	return fragment{sql: fmt.Sprintf(format, sqls...), params: params}
}

func (b *builder) member(n *expr.Member) (fragment, error) {
	ref, ok := n.X.(*querymodel.QuerySourceReference)
	if !ok {
		return fragment{}, fmt.Errorf("%w: member access %s", ErrUnsupported, expr.Format(n))
	}
	src, ok := b.scope[ref.Source]
	if !ok {
		return fragment{}, fmt.Errorf("%w: reference to %s outside the query", ErrUnsupported, ref)
	}
	f, ok := src.field(n.Name)
	if !ok {
		return fragment{}, fmt.Errorf("%w: %s has no column", ErrUnsupported, expr.Format(n))
	}
	return fragment{sql: f.sql}, nil
}

func (b *builder) binary(n *expr.Binary) (fragment, error) {
	if n.Op == expr.OpEq || n.Op == expr.OpNotEq {
		operand, isNull := nullComparison(n)
		if isNull {
			f, err := b.expr(operand)
			if err != nil {
				return fragment{}, err
			}
			if n.Op == expr.OpEq {
				return join("(%s IS NULL)", f), nil
			}
			return join("(%s IS NOT NULL)", f), nil
		}
	}

	parts, err := b.exprs(n.X, n.Y)
	if err != nil {
		return fragment{}, err
	}
	if n.Op == expr.OpCoalesce {
		return join("COALESCE(%s, %s)", parts...), nil
	}
	op, ok := binaryOperators[n.Op]
	if !ok {
		return fragment{}, fmt.Errorf("%w: operator %s", ErrUnsupported, n.Op)
	}
	if n.Op == expr.OpAdd && n.Type() != nil && n.Type().Kind() == reflect.String {
		op = "||"
	}
	return join("(%s "+strings.ReplaceAll(op, "%", "%%")+" %s)", parts...), nil
}

// nullComparison returns the other operand when n compares with nil.
func nullComparison(n *expr.Binary) (expr.Node, bool) {
	if isNullConstant(n.Y) {
		return n.X, true
	}
	if isNullConstant(n.X) {
		return n.Y, true
	}
	return nil, false
}

func isNullConstant(n expr.Node) bool {
	c, ok := n.(*expr.Constant)
	if !ok {
		return false
	}
	if c.Value == nil {
		return true
	}
	v := reflect.ValueOf(c.Value)
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}

func (b *builder) unary(n *expr.Unary) (fragment, error) {
	f, err := b.expr(n.X)
	if err != nil {
		return fragment{}, err
	}
	switch n.Op {
	case expr.OpNot:
		return join("(NOT %s)", f), nil
	case expr.OpNegate:
		return join("(-%s)", f), nil
	case expr.OpLen:
		if t := n.X.Type(); t != nil && t.Kind() == reflect.String {
			return join("LENGTH(%s)", f), nil
		}
	case expr.OpConvert:
		if n.Typ == nil {
			break
		}
		switch n.Typ.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			return join("CAST(%s AS INTEGER)", f), nil
		case reflect.Float32, reflect.Float64:
			return join("CAST(%s AS REAL)", f), nil
		case reflect.String:
			return join("CAST(%s AS TEXT)", f), nil
		case reflect.Bool, reflect.Interface:
			return f, nil
		}
	}
	return fragment{}, fmt.Errorf("%w: %s", ErrUnsupported, expr.Format(n))
}

// stringFuncs are the static strings functions with a SQL rendering.
var stringFuncs = map[string]struct {
	arity  int
	format string
}{
	"Contains":  {2, "(INSTR(%s, %s) > 0)"},
	"HasPrefix": {2, "(INSTR(%s, %s) = 1)"},
	"ToUpper":   {1, "UPPER(%s)"},
	"ToLower":   {1, "LOWER(%s)"},
}

func (b *builder) call(n *expr.Call) (fragment, error) {
	fn, ok := stringFuncs[n.Method.Name]
	if !ok || n.Object != nil || n.Method.Declaring != "strings" || len(n.Args) != fn.arity {
		return fragment{}, fmt.Errorf("%w: call %s", ErrUnsupported, expr.Format(n))
	}
	parts, err := b.exprs(n.Args...)
	if err != nil {
		return fragment{}, err
	}
	return join(fn.format, parts...), nil
}

// paramValue converts a constant to a driver value.
func paramValue(v any) (any, error) {
	switch v := v.(type) {
	case nil, string, bool, int64, float64, []byte:
		return v, nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return nil, fmt.Errorf("%w: constant %d overflows int64", ErrUnsupported, u)
		}
		return int64(u), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, nil
		}
		return paramValue(rv.Elem().Interface())
	}
	return nil, fmt.Errorf("%w: constant of type %T", ErrUnsupported, v)
}
