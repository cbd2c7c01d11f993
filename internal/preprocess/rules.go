package preprocess

import "github.com/roach88/chainql/internal/expr"

// DefaultTransformers returns a registry with the built-in rules.
func DefaultTransformers() *TransformerRegistry {
	r := NewTransformerRegistry()
	r.Register(InlineInvokedLambda)
	r.Register(RemoveDoubleNegation)
	r.Register(RemoveRedundantConvert)
	return r
}

// InlineInvokedLambda replaces Invoke(x => body, arg) with body[x := arg].
var InlineInvokedLambda = Rule{
	RuleName: "inline-invoked-lambda",
	Kinds:    []expr.Kind{expr.KindInvoke},
	Apply: func(n expr.Node) expr.Node {
		inv := n.(*expr.Invoke)
		l, ok := expr.AsLambda(inv.Fn)
		if !ok || len(l.Params) != len(inv.Args) {
			return n
		}
		body := l.Body
		for i, p := range l.Params {
			body = expr.ReplaceParameter(body, p, inv.Args[i])
		}
		return body
	},
}

// RemoveDoubleNegation rewrites !!x and --x to x.
var RemoveDoubleNegation = Rule{
	RuleName: "remove-double-negation",
	Kinds:    []expr.Kind{expr.KindUnary},
	Apply: func(n expr.Node) expr.Node {
		outer := n.(*expr.Unary)
		if outer.Op != expr.OpNot && outer.Op != expr.OpNegate {
			return n
		}
		inner, ok := outer.X.(*expr.Unary)
		if !ok || inner.Op != outer.Op {
			return n
		}
		return inner.X
	},
}

// RemoveRedundantConvert drops conversions to the operand's own type.
var RemoveRedundantConvert = Rule{
	RuleName: "remove-redundant-convert",
	Kinds:    []expr.Kind{expr.KindUnary},
	Apply: func(n expr.Node) expr.Node {
		u := n.(*expr.Unary)
		if u.Op == expr.OpConvert && u.X.Type() == u.Typ {
			return u.X
		}
		return n
	},
}
