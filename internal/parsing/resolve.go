package parsing

import (
	"fmt"

	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/querymodel"
)

// replaceParameterWithReference resolves body for a node that is itself a
// query source: input becomes a reference to the clause n produced.
func replaceParameterWithReference(n Node, input *expr.Parameter, body expr.Node, ctx *ClauseGenerationContext) (expr.Node, error) {
	info := ctx.GetContextInfo(n)
	source, ok := info.(querymodel.QuerySource)
	if !ok {
		panic(fmt.Sprintf("parsing: node %T produced %T, which is not a query source", n, info))
	}
	return ResolveReferences(body, input, querymodel.Ref(source))
}

// ResolveReferences substitutes every occurrence of input in body with repl
// and flattens transparent identifiers: a member access on a carrier built
// by a New or MemberInit node is replaced by the expression assigned to
// that member.
//
// Subqueries that close over input are cloned and resolved as well; the
// others are kept as they are.
func ResolveReferences(body expr.Node, input *expr.Parameter, repl expr.Node) (expr.Node, error) {
	return expr.Rewrite(body, func(n expr.Node) (expr.Node, error) {
		switch n := n.(type) {
		case *expr.Parameter:
			if n == input {
				return repl, nil
			}
		case *expr.Member:
			return flattenMember(n)
		case *querymodel.SubQuery:
			return resolveSubQuery(n, input, repl)
		}
		return n, nil
	})
}

// FlattenTransparentIdentifiers collapses member accesses on carriers
// throughout n.
func FlattenTransparentIdentifiers(n expr.Node) (expr.Node, error) {
	return expr.Rewrite(n, func(n expr.Node) (expr.Node, error) {
		if m, ok := n.(*expr.Member); ok {
			return flattenMember(m)
		}
		return n, nil
	})
}

// flattenMember unwraps one carrier level. Member accesses on anything but a
// carrier are returned unchanged. Positional construction without member
// names is a real value, not a carrier.
func flattenMember(m *expr.Member) (expr.Node, error) {
	switch x := m.X.(type) {
	case *expr.New:
		if x.Members == nil {
			return m, nil
		}
		if i := x.MemberIndex(m.Name); i >= 0 {
			return x.Args[i], nil
		}
		return nil, NewAccessorNotFoundError(expr.Format(x), m.Name, "the carrier does not assign it")
	case *expr.MemberInit:
		for _, b := range x.Bindings {
			if b.Member == m.Name {
				return b.Value, nil
			}
		}
		if i := x.New.MemberIndex(m.Name); i >= 0 {
			return x.New.Args[i], nil
		}
		return nil, NewAccessorNotFoundError(expr.Format(x), m.Name, "the initializer does not assign it")
	case *expr.ListInit:
		return nil, NewAccessorNotFoundError(expr.Format(x), m.Name, "a collection initializer has no member assignments")
	}
	return m, nil
}

func resolveSubQuery(sq *querymodel.SubQuery, input *expr.Parameter, repl expr.Node) (expr.Node, error) {
	if !closesOver(sq.Model, input) {
		return sq, nil
	}
	model, err := sq.Model.Clone(nil)
	if err != nil {
		return nil, err
	}
	err = model.TransformExpressions(func(n expr.Node) (expr.Node, error) {
		return ResolveReferences(n, input, repl)
	})
	if err != nil {
		return nil, err
	}
	return querymodel.NewSubQuery(model), nil
}

// closesOver reports whether p occurs in qm or in a model nested in it.
func closesOver(qm *querymodel.QueryModel, p *expr.Parameter) bool {
	found := false
	qm.ForEachExpression(func(n expr.Node) {
		found = found || mentions(n, p)
	})
	return found
}

func mentions(n expr.Node, p *expr.Parameter) bool {
	found := false
	expr.Inspect(n, func(n expr.Node) bool {
		if found {
			return false
		}
		switch n := n.(type) {
		case *expr.Parameter:
			found = n == p
		case *querymodel.SubQuery:
			found = closesOver(n.Model, p)
		}
		return !found
	})
	return found
}
