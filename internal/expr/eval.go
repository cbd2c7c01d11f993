package expr

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"
)

// ErrDivideByZero is returned when an integer division or remainder has a
// zero divisor.
var ErrDivideByZero = errors.New("integer divide by zero")

// Env resolves nodes Eval cannot compute on its own, such as parameters
// bound by an enclosing scope or references to the current item. It is
// consulted before every node and returns ok=false when it has no value.
type Env func(n Node) (v any, ok bool, err error)

// EvalError reports the node whose evaluation failed.
type EvalError struct {
	Expr string
	Err  error
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("evaluate %s: %v", e.Expr, e.Err)
}

func (e *EvalError) Unwrap() error { return e.Err }

func evalErr(n Node, err error) error {
	return &EvalError{Expr: Format(n), Err: err}
}

// Bind layers parameter bindings over env. values[i] is bound to params[i].
func Bind(env Env, params []*Parameter, values []any) Env {
	return func(n Node) (any, bool, error) {
		if p, ok := n.(*Parameter); ok {
			for i := range params {
				if params[i] == p {
					return values[i], true, nil
				}
			}
		}
		if env != nil {
			return env(n)
		}
		return nil, false, nil
	}
}

// Evaluate computes n without an environment.
func Evaluate(n Node) (any, error) {
	return Eval(n, nil)
}

// Eval computes the value of n. Calls run their Method.Func; extension nodes
// must implement Evaluable or be resolved by env.
func Eval(n Node, env Env) (any, error) {
	if env != nil {
		v, ok, err := env(n)
		if err != nil {
			return nil, err
		}
		if ok {
			return v, nil
		}
	}
	switch n := n.(type) {
	case nil:
		return nil, errors.New("evaluate: nil node")
	case *Constant:
		return n.Value, nil
	case *Parameter:
		return nil, evalErr(n, fmt.Errorf("unbound parameter %q", n.Name))
	case *Member:
		if n.X == nil {
			return nil, evalErr(n, errors.New("static members cannot be evaluated"))
		}
		x, err := Eval(n.X, env)
		if err != nil {
			return nil, err
		}
		v, err := MemberValue(x, n.Name)
		if err != nil {
			return nil, evalErr(n, err)
		}
		return v, nil
	case *Call:
		return evalCall(n, env)
	case *Lambda, *Quote:
		return nil, evalErr(n, errors.New("lambda is not a value"))
	case *Unary:
		return evalUnary(n, env)
	case *Binary:
		return evalBinary(n, env)
	case *Conditional:
		t, err := Eval(n.Test, env)
		if err != nil {
			return nil, err
		}
		b, ok := t.(bool)
		if !ok {
			return nil, evalErr(n, fmt.Errorf("condition is %T, not bool", t))
		}
		if b {
			return Eval(n.Then, env)
		}
		return Eval(n.Else, env)
	case *New:
		v, err := evalNew(n, env)
		if err != nil {
			return nil, err
		}
		return v.Interface(), nil
	case *MemberInit:
		return evalMemberInit(n, env)
	case *ListInit:
		return evalListInit(n, env)
	case *Invoke:
		return evalInvoke(n, env)
	case Evaluable:
		return n.Eval(env)
	}
	return nil, evalErr(n, fmt.Errorf("%T cannot be evaluated", n))
}

func evalAll(nodes []Node, env Env) ([]any, error) {
	out := make([]any, len(nodes))
	for i, a := range nodes {
		v, err := Eval(a, env)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// MemberValue reads the named field, zero-argument method or string map key
// of x.
func MemberValue(x any, name string) (any, error) {
	if x == nil {
		return nil, fmt.Errorf("member %s of nil value", name)
	}
	v := reflect.ValueOf(x)
	if m := v.MethodByName(name); m.IsValid() && m.Type().NumIn() == 0 && m.Type().NumOut() >= 1 {
		return m.Call(nil)[0].Interface(), nil
	}
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return nil, fmt.Errorf("member %s of nil value", name)
		}
		v = v.Elem()
	}
	switch v.Kind() {
	case reflect.Struct:
		if f := v.FieldByName(name); f.IsValid() && f.CanInterface() {
			return f.Interface(), nil
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String {
			e := v.MapIndex(reflect.ValueOf(name).Convert(v.Type().Key()))
			if !e.IsValid() {
				return reflect.Zero(v.Type().Elem()).Interface(), nil
			}
			return e.Interface(), nil
		}
	}
	return nil, fmt.Errorf("%T has no member %s", x, name)
}

func evalCall(n *Call, env Env) (any, error) {
	if n.Method == nil || n.Method.Func == nil {
		return nil, evalErr(n, fmt.Errorf("method %s has no implementation", methodName(n)))
	}
	var args []any
	if n.Object != nil {
		obj, err := Eval(n.Object, env)
		if err != nil {
			return nil, err
		}
		args = append(args, obj)
	}
	rest, err := evalAll(n.Args, env)
	if err != nil {
		return nil, err
	}
	v, err := CallFunc(n.Method.Func, append(args, rest...))
	if err != nil {
		return nil, evalErr(n, err)
	}
	return v, nil
}

func methodName(n *Call) string {
	if n.Method == nil {
		return "<nil>"
	}
	return n.Method.Signature().String()
}

var errorType = reflect.TypeFor[error]()

// CallFunc calls the Go function fn with args, converting numeric arguments
// to the declared parameter types. fn may return a value, an error, or
// (value, error).
func CallFunc(fn any, args []any) (any, error) {
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%T is not a function", fn)
	}
	ft := fv.Type()
	if ft.IsVariadic() {
		if len(args) < ft.NumIn()-1 {
			return nil, fmt.Errorf("want at least %d arguments, got %d", ft.NumIn()-1, len(args))
		}
	} else if ft.NumIn() != len(args) {
		return nil, fmt.Errorf("want %d arguments, got %d", ft.NumIn(), len(args))
	}
	in := make([]reflect.Value, len(args))
	for i, a := range args {
		pt := ft.In(min(i, ft.NumIn()-1))
		if ft.IsVariadic() && i >= ft.NumIn()-1 {
			pt = pt.Elem()
		}
		v, err := valueAs(a, pt)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		in[i] = v
	}
	out := fv.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 1:
		if ft.Out(0) == errorType {
			err, _ := out[0].Interface().(error)
			return nil, err
		}
		return out[0].Interface(), nil
	default:
		if err, _ := out[len(out)-1].Interface().(error); err != nil {
			return nil, err
		}
		return out[0].Interface(), nil
	}
}

func valueAs(a any, t reflect.Type) (reflect.Value, error) {
	if a == nil {
		switch t.Kind() {
		case reflect.Interface, reflect.Pointer, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot use nil as %s", t)
	}
	v := reflect.ValueOf(a)
	if v.Type().AssignableTo(t) {
		return v, nil
	}
	if convertible(v.Type(), t) {
		return v.Convert(t), nil
	}
	return reflect.Value{}, fmt.Errorf("cannot use %s as %s", v.Type(), t)
}

func convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	return from.Kind() == to.Kind() || (isNumericKind(from.Kind()) && isNumericKind(to.Kind()))
}

// ConvertValue converts v to t. Conversions to any, and between types of
// the same kind or between numeric kinds, are supported.
func ConvertValue(v any, t reflect.Type) (any, error) {
	if t == nil || t == AnyType {
		return v, nil
	}
	rv, err := valueAs(v, t)
	if err != nil {
		return nil, err
	}
	return rv.Interface(), nil
}

func evalUnary(n *Unary, env Env) (any, error) {
	x, err := Eval(n.X, env)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case OpNot:
		b, ok := x.(bool)
		if !ok {
			return nil, evalErr(n, fmt.Errorf("operand is %T, not bool", x))
		}
		return !b, nil
	case OpNegate:
		num, ok := toNumber(x)
		if !ok {
			return nil, evalErr(n, fmt.Errorf("operand is %T, not a number", x))
		}
		zero := number{class: num.class}
		return arith(OpSub, zero, num, reflect.TypeOf(x))
	case OpConvert:
		v, err := ConvertValue(x, n.Typ)
		if err != nil {
			return nil, evalErr(n, err)
		}
		return v, nil
	case OpLen:
		if x == nil {
			return 0, nil
		}
		v := reflect.ValueOf(x)
		switch v.Kind() {
		case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
			return v.Len(), nil
		}
		return nil, evalErr(n, fmt.Errorf("%T has no length", x))
	}
	return nil, evalErr(n, fmt.Errorf("unknown operator %v", n.Op))
}

func evalBinary(n *Binary, env Env) (any, error) {
	x, err := Eval(n.X, env)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case OpAnd, OpOr:
		b, ok := x.(bool)
		if !ok {
			return nil, evalErr(n, fmt.Errorf("left operand is %T, not bool", x))
		}
		if b == (n.Op == OpOr) {
			return b, nil
		}
		y, err := Eval(n.Y, env)
		if err != nil {
			return nil, err
		}
		if _, ok := y.(bool); !ok {
			return nil, evalErr(n, fmt.Errorf("right operand is %T, not bool", y))
		}
		return y, nil
	case OpCoalesce:
		if !isNil(x) {
			return x, nil
		}
		return Eval(n.Y, env)
	}
	y, err := Eval(n.Y, env)
	if err != nil {
		return nil, err
	}
	v, err := BinaryValue(n.Op, x, y)
	if err != nil {
		return nil, evalErr(n, err)
	}
	return v, nil
}

// BinaryValue applies a non-short-circuit operator to two values.
func BinaryValue(op BinaryOp, x, y any) (any, error) {
	switch op {
	case OpEq:
		return ValuesEqual(x, y), nil
	case OpNotEq:
		return !ValuesEqual(x, y), nil
	case OpLt, OpLtEq, OpGt, OpGtEq:
		c, err := CompareValues(x, y)
		if err != nil {
			return nil, err
		}
		switch op {
		case OpLt:
			return c < 0, nil
		case OpLtEq:
			return c <= 0, nil
		case OpGt:
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case OpAdd:
		if xs, ok := x.(string); ok {
			if ys, ok := y.(string); ok {
				return xs + ys, nil
			}
		}
	case OpAnd, OpOr, OpCoalesce:
		return nil, fmt.Errorf("operator %s needs lazy operands", op)
	}
	a, ok1 := toNumber(x)
	b, ok2 := toNumber(y)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("operator %s not defined on %T and %T", op, x, y)
	}
	t := reflect.TypeOf(x)
	if promote(a, b) != a.class {
		t = reflect.TypeOf(y)
	}
	return arith(op, a, b, t)
}

// ValuesEqual compares two values. Numbers compare by value across kinds.
func ValuesEqual(x, y any) bool {
	if isNil(x) || isNil(y) {
		return isNil(x) && isNil(y)
	}
	a, ok1 := toNumber(x)
	b, ok2 := toNumber(y)
	if ok1 && ok2 {
		return compareNumbers(a, b) == 0
	}
	tx := reflect.TypeOf(x)
	if tx == reflect.TypeOf(y) && tx.Comparable() {
		return x == y
	}
	return reflect.DeepEqual(x, y)
}

// CompareValues orders two numbers, two strings or two bools (false first).
func CompareValues(x, y any) (int, error) {
	if a, ok := toNumber(x); ok {
		if b, ok := toNumber(y); ok {
			return compareNumbers(a, b), nil
		}
	}
	switch xv := x.(type) {
	case string:
		if yv, ok := y.(string); ok {
			return strings.Compare(xv, yv), nil
		}
	case bool:
		if yv, ok := y.(bool); ok {
			switch {
			case xv == yv:
				return 0, nil
			case yv:
				return -1, nil
			default:
				return 1, nil
			}
		}
	}
	return 0, fmt.Errorf("cannot compare %T with %T", x, y)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

type numClass int

const (
	classInt numClass = iota
	classUint
	classFloat
)

type number struct {
	class numClass
	i     int64
	u     uint64
	f     float64
}

func toNumber(v any) (number, bool) {
	if v == nil {
		return number{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return number{class: classInt, i: rv.Int()}, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return number{class: classUint, u: rv.Uint()}, true
	case reflect.Float32, reflect.Float64:
		return number{class: classFloat, f: rv.Float()}, true
	}
	return number{}, false
}

func promote(a, b number) numClass {
	switch {
	case a.class == classFloat || b.class == classFloat:
		return classFloat
	case a.class == classInt || b.class == classInt:
		return classInt
	}
	return classUint
}

func (n number) as(c numClass) number {
	switch c {
	case classFloat:
		switch n.class {
		case classInt:
			return number{class: c, f: float64(n.i)}
		case classUint:
			return number{class: c, f: float64(n.u)}
		}
	case classInt:
		if n.class == classUint {
			return number{class: c, i: int64(n.u)}
		}
	}
	return n
}

func compareNumbers(a, b number) int {
	c := promote(a, b)
	a, b = a.as(c), b.as(c)
	switch c {
	case classFloat:
		return cmpOrdered(a.f, b.f)
	case classInt:
		return cmpOrdered(a.i, b.i)
	}
	return cmpOrdered(a.u, b.u)
}

func cmpOrdered[T int64 | uint64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func arith(op BinaryOp, a, b number, t reflect.Type) (any, error) {
	c := promote(a, b)
	a, b = a.as(c), b.as(c)
	var out reflect.Value
	switch c {
	case classFloat:
		var r float64
		switch op {
		case OpAdd:
			r = a.f + b.f
		case OpSub:
			r = a.f - b.f
		case OpMul:
			r = a.f * b.f
		case OpDiv:
			r = a.f / b.f
		case OpMod:
			r = math.Mod(a.f, b.f)
		default:
			return nil, fmt.Errorf("operator %s not defined on numbers", op)
		}
		out = reflect.ValueOf(r)
	case classInt:
		var r int64
		switch op {
		case OpAdd:
			r = a.i + b.i
		case OpSub:
			r = a.i - b.i
		case OpMul:
			r = a.i * b.i
		case OpDiv, OpMod:
			if b.i == 0 {
				return nil, ErrDivideByZero
			}
			if op == OpDiv {
				r = a.i / b.i
			} else {
				r = a.i % b.i
			}
		default:
			return nil, fmt.Errorf("operator %s not defined on numbers", op)
		}
		out = reflect.ValueOf(r)
	default:
		var r uint64
		switch op {
		case OpAdd:
			r = a.u + b.u
		case OpSub:
			r = a.u - b.u
		case OpMul:
			r = a.u * b.u
		case OpDiv, OpMod:
			if b.u == 0 {
				return nil, ErrDivideByZero
			}
			if op == OpDiv {
				r = a.u / b.u
			} else {
				r = a.u % b.u
			}
		default:
			return nil, fmt.Errorf("operator %s not defined on numbers", op)
		}
		out = reflect.ValueOf(r)
	}
	if t != nil && isNumericKind(t.Kind()) {
		out = out.Convert(t)
	}
	return out.Interface(), nil
}

func evalNew(n *New, env Env) (reflect.Value, error) {
	args, err := evalAll(n.Args, env)
	if err != nil {
		return reflect.Value{}, err
	}
	if n.Members != nil {
		m := make(map[string]any, len(args))
		for i, name := range n.Members {
			m[name] = args[i]
		}
		return reflect.ValueOf(m), nil
	}
	t := n.Typ
	if t == nil {
		return reflect.Value{}, evalErr(n, errors.New("cannot construct void"))
	}
	st := t
	if st.Kind() == reflect.Pointer {
		st = st.Elem()
	}
	switch {
	case len(args) == 0:
		switch t.Kind() {
		case reflect.Pointer:
			return reflect.New(st), nil
		case reflect.Map:
			return reflect.MakeMap(t), nil
		case reflect.Slice:
			return reflect.MakeSlice(t, 0, 0), nil
		}
		return reflect.New(t).Elem(), nil
	case st.Kind() == reflect.Struct && st.NumField() == len(args):
		p := reflect.New(st)
		for i, a := range args {
			f := p.Elem().Field(i)
			if !f.CanSet() {
				return reflect.Value{}, evalErr(n, fmt.Errorf("field %s of %s is not settable", st.Field(i).Name, st))
			}
			v, err := valueAs(a, f.Type())
			if err != nil {
				return reflect.Value{}, evalErr(n, err)
			}
			f.Set(v)
		}
		if t.Kind() == reflect.Pointer {
			return p, nil
		}
		return p.Elem(), nil
	}
	return reflect.Value{}, evalErr(n, fmt.Errorf("%s has no constructor taking %d arguments", t, len(args)))
}

func evalMemberInit(n *MemberInit, env Env) (any, error) {
	base, err := evalNew(n.New, env)
	if err != nil {
		return nil, err
	}
	target := base
	if base.Kind() == reflect.Struct {
		target = reflect.New(base.Type()).Elem()
		target.Set(base)
	}
	for _, b := range n.Bindings {
		v, err := Eval(b.Value, env)
		if err != nil {
			return nil, err
		}
		if err := setMember(target, b.Member, v); err != nil {
			return nil, evalErr(n, err)
		}
	}
	return target.Interface(), nil
}

func setMember(target reflect.Value, name string, v any) error {
	switch target.Kind() {
	case reflect.Map:
		key := reflect.ValueOf(name).Convert(target.Type().Key())
		val, err := valueAs(v, target.Type().Elem())
		if err != nil {
			return err
		}
		target.SetMapIndex(key, val)
		return nil
	case reflect.Pointer:
		return setMember(target.Elem(), name, v)
	case reflect.Struct:
		f := target.FieldByName(name)
		if !f.IsValid() || !f.CanSet() {
			return fmt.Errorf("%s has no settable member %s", target.Type(), name)
		}
		val, err := valueAs(v, f.Type())
		if err != nil {
			return err
		}
		f.Set(val)
		return nil
	}
	return fmt.Errorf("cannot set member %s on %s", name, target.Type())
}

func evalListInit(n *ListInit, env Env) (any, error) {
	base, err := evalNew(n.New, env)
	if err != nil {
		return nil, err
	}
	if base.Kind() != reflect.Slice {
		return nil, evalErr(n, fmt.Errorf("%s is not a list type", base.Type()))
	}
	items, err := evalAll(n.Items, env)
	if err != nil {
		return nil, err
	}
	for _, it := range items {
		v, err := valueAs(it, base.Type().Elem())
		if err != nil {
			return nil, evalErr(n, err)
		}
		base = reflect.Append(base, v)
	}
	return base.Interface(), nil
}

func evalInvoke(n *Invoke, env Env) (any, error) {
	args, err := evalAll(n.Args, env)
	if err != nil {
		return nil, err
	}
	if l, ok := AsLambda(n.Fn); ok {
		if len(l.Params) != len(args) {
			return nil, evalErr(n, fmt.Errorf("lambda takes %d arguments, got %d", len(l.Params), len(args)))
		}
		return Eval(l.Body, Bind(env, l.Params, args))
	}
	fn, err := Eval(n.Fn, env)
	if err != nil {
		return nil, err
	}
	v, err := CallFunc(fn, args)
	if err != nil {
		return nil, evalErr(n, err)
	}
	return v, nil
}
