package expr

import (
	"fmt"
	"reflect"
)

// Const creates a constant typed by its dynamic value. A nil value is typed
// as any.
func Const(v any) *Constant {
	t := reflect.TypeOf(v)
	if t == nil {
		t = AnyType
	}
	return &Constant{Value: v, Typ: t}
}

// ConstOf creates a constant with an explicit static type.
func ConstOf(v any, t reflect.Type) *Constant {
	return &Constant{Value: v, Typ: t}
}

// Param creates a lambda parameter.
func Param(name string, t reflect.Type) *Parameter {
	return &Parameter{Name: name, Typ: t}
}

// Lam creates a lambda over params.
func Lam(body Node, params ...*Parameter) *Lambda {
	return &Lambda{Params: params, Body: body}
}

// Quoted wraps a lambda in a quote marker.
func Quoted(l *Lambda) *Quote {
	return &Quote{Operand: l}
}

// Field creates a member access on x, resolving the member type from the
// static type of x. Access on a carrier built by NewCarrier takes the type
// of the assigned argument.
func Field(x Node, name string) *Member {
	if c, ok := x.(*New); ok {
		if i := c.MemberIndex(name); i >= 0 {
			return &Member{X: x, Declaring: TypeName(c.Typ), Name: name, Typ: c.Args[i].Type()}
		}
	}
	return &Member{X: x, Declaring: TypeName(x.Type()), Name: name, Typ: memberType(x.Type(), name)}
}

// FieldOf creates a member access with an explicit result type.
func FieldOf(x Node, name string, t reflect.Type) *Member {
	declaring := ""
	if x != nil {
		declaring = TypeName(x.Type())
	}
	return &Member{X: x, Declaring: declaring, Name: name, Typ: t}
}

// StaticCall creates a call without receiver.
func StaticCall(m *Method, t reflect.Type, args ...Node) *Call {
	return &Call{Method: m, Args: args, Typ: t}
}

// MethodCall creates a call on a receiver.
func MethodCall(obj Node, m *Method, t reflect.Type, args ...Node) *Call {
	return &Call{Object: obj, Method: m, Args: args, Typ: t}
}

// Bin creates a binary node. Comparisons and logical operators are typed
// bool; arithmetic takes the type of the left operand.
func Bin(op BinaryOp, x, y Node) *Binary {
	t := x.Type()
	if op.IsComparison() || op.IsLogical() {
		t = BoolType
	}
	return &Binary{Op: op, X: x, Y: y, Typ: t}
}

func Eq(x, y Node) *Binary  { return Bin(OpEq, x, y) }
func Gt(x, y Node) *Binary  { return Bin(OpGt, x, y) }
func Lt(x, y Node) *Binary  { return Bin(OpLt, x, y) }
func And(x, y Node) *Binary { return Bin(OpAnd, x, y) }
func Or(x, y Node) *Binary  { return Bin(OpOr, x, y) }
func Add(x, y Node) *Binary { return Bin(OpAdd, x, y) }

// Not negates a predicate.
func Not(x Node) *Unary {
	return &Unary{Op: OpNot, X: x, Typ: BoolType}
}

// Neg negates a number.
func Neg(x Node) *Unary {
	return &Unary{Op: OpNegate, X: x, Typ: x.Type()}
}

// Len is the conventional length access len(x).
func Len(x Node) *Unary {
	return &Unary{Op: OpLen, X: x, Typ: IntType}
}

// Convert converts x to t.
func Convert(x Node, t reflect.Type) *Unary {
	return &Unary{Op: OpConvert, X: x, Typ: t}
}

// Cond creates a conditional typed by its then branch.
func Cond(test, then, els Node) *Conditional {
	return &Conditional{Test: test, Then: then, Else: els, Typ: then.Type()}
}

// NewCarrier creates an anonymous carrier assigning args to members, the
// shape used for transparent identifiers and anonymous projections.
func NewCarrier(members []string, args ...Node) *New {
	if len(members) != len(args) {
		panic(fmt.Sprintf("expr: carrier has %d members and %d args", len(members), len(args)))
	}
	return &New{Typ: CarrierType, Args: args, Members: members}
}

// NewInit creates an object initializer for t.
func NewInit(t reflect.Type, bindings ...Binding) *MemberInit {
	return &MemberInit{New: &New{Typ: t}, Bindings: bindings}
}

// NewList creates a collection initializer for t.
func NewList(t reflect.Type, items ...Node) *ListInit {
	return &ListInit{New: &New{Typ: t}, Items: items}
}

// InvokeOf invokes fn with args.
func InvokeOf(fn Node, args ...Node) *Invoke {
	var t reflect.Type
	if l, ok := AsLambda(fn); ok && l.Body != nil {
		t = l.Body.Type()
	}
	return &Invoke{Fn: fn, Args: args, Typ: t}
}
