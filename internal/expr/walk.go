package expr

import "fmt"

// Children returns the direct children of n in a fixed order. Lambda
// parameters are declarations and are not children; references to them
// inside the body are.
func Children(n Node) []Node {
	switch n := n.(type) {
	case nil, *Constant, *Parameter:
		return nil
	case *Member:
		if n.X == nil {
			return nil
		}
		return []Node{n.X}
	case *Call:
		var out []Node
		if n.Object != nil {
			out = append(out, n.Object)
		}
		return append(out, n.Args...)
	case *Lambda:
		return []Node{n.Body}
	case *Quote:
		return []Node{n.Operand}
	case *Unary:
		return []Node{n.X}
	case *Binary:
		return []Node{n.X, n.Y}
	case *Conditional:
		return []Node{n.Test, n.Then, n.Else}
	case *New:
		return append([]Node(nil), n.Args...)
	case *MemberInit:
		out := append([]Node(nil), n.New.Args...)
		for _, b := range n.Bindings {
			out = append(out, b.Value)
		}
		return out
	case *ListInit:
		out := append([]Node(nil), n.New.Args...)
		return append(out, n.Items...)
	case *Invoke:
		return append([]Node{n.Fn}, n.Args...)
	case Extension:
		return n.Children()
	default:
		panic(fmt.Sprintf("expr: unknown node type %T", n))
	}
}

// WithChildren rebuilds n from kids, which must match Children(n) in length
// and order. The receiver is returned when every kid is identical to the
// current child.
func WithChildren(n Node, kids []Node) Node {
	old := Children(n)
	if len(old) != len(kids) {
		panic(fmt.Sprintf("expr: %T has %d children, got %d", n, len(old), len(kids)))
	}
	if sameNodes(old, kids) {
		return n
	}
	switch n := n.(type) {
	case *Member:
		c := *n
		c.X = kids[0]
		return &c
	case *Call:
		c := *n
		if n.Object != nil {
			c.Object = kids[0]
			kids = kids[1:]
		}
		c.Args = kids
		return &c
	case *Lambda:
		return &Lambda{Params: n.Params, Body: kids[0]}
	case *Quote:
		return &Quote{Operand: kids[0]}
	case *Unary:
		return &Unary{Op: n.Op, X: kids[0], Typ: n.Typ}
	case *Binary:
		return &Binary{Op: n.Op, X: kids[0], Y: kids[1], Typ: n.Typ}
	case *Conditional:
		return &Conditional{Test: kids[0], Then: kids[1], Else: kids[2], Typ: n.Typ}
	case *New:
		return &New{Typ: n.Typ, Args: kids, Members: n.Members}
	case *MemberInit:
		nargs := len(n.New.Args)
		bindings := make([]Binding, len(n.Bindings))
		for i, b := range n.Bindings {
			bindings[i] = Binding{Member: b.Member, Value: kids[nargs+i]}
		}
		return &MemberInit{
			New:      &New{Typ: n.New.Typ, Args: kids[:nargs], Members: n.New.Members},
			Bindings: bindings,
		}
	case *ListInit:
		nargs := len(n.New.Args)
		return &ListInit{
			New:   &New{Typ: n.New.Typ, Args: kids[:nargs], Members: n.New.Members},
			Items: kids[nargs:],
		}
	case *Invoke:
		return &Invoke{Fn: kids[0], Args: kids[1:], Typ: n.Typ}
	case Extension:
		return n.WithChildren(kids)
	default:
		panic(fmt.Sprintf("expr: %T has no children", n))
	}
}

func sameNodes(a, b []Node) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Rewrite applies fn to every node of the tree in post-order (children
// before parents) and returns the rebuilt tree. Subtrees fn leaves alone
// keep their identity.
func Rewrite(n Node, fn func(Node) (Node, error)) (Node, error) {
	if n == nil {
		return nil, nil
	}
	kids := Children(n)
	if len(kids) > 0 {
		next := make([]Node, len(kids))
		for i, kid := range kids {
			r, err := Rewrite(kid, fn)
			if err != nil {
				return nil, err
			}
			next[i] = r
		}
		n = WithChildren(n, next)
	}
	return fn(n)
}

// Transform is Rewrite for functions that cannot fail.
func Transform(n Node, fn func(Node) Node) Node {
	out, _ := Rewrite(n, func(n Node) (Node, error) {
		return fn(n), nil
	})
	return out
}

// Inspect traverses the tree in pre-order. If fn returns false the children
// of that node are skipped.
func Inspect(n Node, fn func(Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for _, kid := range Children(n) {
		Inspect(kid, fn)
	}
}

// ReplaceParameter substitutes every reference to p with repl.
func ReplaceParameter(n Node, p *Parameter, repl Node) Node {
	return Transform(n, func(n Node) Node {
		if n == Node(p) {
			return repl
		}
		return n
	})
}

// References reports whether p occurs anywhere below n.
func References(n Node, p *Parameter) bool {
	found := false
	Inspect(n, func(n Node) bool {
		if found {
			return false
		}
		if n == Node(p) {
			found = true
		}
		return !found
	})
	return found
}

// UnwrapLambda strips syntactic wrappers around an inline lambda: quote
// markers and constants directly holding a lambda. Other nodes are returned
// unchanged.
func UnwrapLambda(n Node) Node {
	for {
		switch w := n.(type) {
		case *Quote:
			n = w.Operand
		case *Constant:
			if l, ok := w.Value.(*Lambda); ok {
				return l
			}
			return n
		default:
			return n
		}
	}
}

// AsLambda unwraps n and returns it as a lambda.
func AsLambda(n Node) (*Lambda, bool) {
	l, ok := UnwrapLambda(n).(*Lambda)
	return l, ok
}
