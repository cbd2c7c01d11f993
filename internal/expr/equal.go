package expr

import (
	"reflect"
	"slices"
)

// Equaler is implemented by extension nodes that define their own notion of
// structural equality. Without it, two extension nodes are equal when they
// have the same Go type and equal children.
type Equaler interface {
	Equal(other Node) bool
}

// Equal reports whether a and b are structurally equal: same shapes, same
// static types, same operators and members, and equal children. Parameters
// are equal when they share name and type, so two independently built
// lambdas with the same text compare equal.
func Equal(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a == b {
		return true
	}
	if a.Kind() != b.Kind() || a.Type() != b.Type() {
		return false
	}
	if !sameAttributes(a, b) {
		return false
	}
	ka, kb := Children(a), Children(b)
	if len(ka) != len(kb) {
		return false
	}
	for i := range ka {
		if !Equal(ka[i], kb[i]) {
			return false
		}
	}
	return true
}

func sameAttributes(a, b Node) bool {
	switch a := a.(type) {
	case *Constant:
		return constantsEqual(a.Value, b.(*Constant).Value)
	case *Parameter:
		return a.Name == b.(*Parameter).Name
	case *Member:
		o := b.(*Member)
		return a.Declaring == o.Declaring && a.Name == o.Name
	case *Call:
		o := b.(*Call)
		return a.Method.Signature() == o.Method.Signature() && (a.Object == nil) == (o.Object == nil)
	case *Lambda:
		o := b.(*Lambda)
		return slices.EqualFunc(a.Params, o.Params, func(x, y *Parameter) bool {
			return x.Name == y.Name && x.Typ == y.Typ
		})
	case *Unary:
		return a.Op == b.(*Unary).Op
	case *Binary:
		return a.Op == b.(*Binary).Op
	case *New:
		return slices.Equal(a.Members, b.(*New).Members)
	case *MemberInit:
		o := b.(*MemberInit)
		return slices.Equal(a.New.Members, o.New.Members) &&
			len(a.New.Args) == len(o.New.Args) &&
			slices.EqualFunc(a.Bindings, o.Bindings, func(x, y Binding) bool {
				return x.Member == y.Member
			})
	case *ListInit:
		return len(a.New.Args) == len(b.(*ListInit).New.Args)
	case Equaler:
		return a.Equal(b)
	case Extension:
		return reflect.TypeOf(a) == reflect.TypeOf(b)
	}
	return true
}

func constantsEqual(x, y any) bool {
	if lx, ok := x.(*Lambda); ok {
		ly, ok := y.(*Lambda)
		return ok && Equal(lx, ly)
	}
	return reflect.DeepEqual(x, y)
}
