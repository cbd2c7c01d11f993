package parsing

import (
	"fmt"

	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/querymodel"
)

// operatorCall is a node in chain position split into its parts.
type operatorCall struct {
	sig    expr.Signature
	source expr.Node
	args   []expr.Node
}

// splitOperator recognizes the three shapes an operator can take: a call
// (receiver or first argument is the source), a property getter on a
// sequence and the length access len(seq). ok is false for anything else.
func splitOperator(n expr.Node) (call operatorCall, ok bool) {
	switch n := n.(type) {
	case *expr.Call:
		switch {
		case n.Object != nil:
			return operatorCall{sig: n.Method.Signature(), source: n.Object, args: n.Args}, true
		case len(n.Args) > 0:
			return operatorCall{sig: n.Method.Signature(), source: n.Args[0], args: n.Args[1:]}, true
		}
	case *expr.Member:
		if n.X != nil && expr.IsSequence(n.X.Type()) {
			return operatorCall{sig: expr.Signature{Declaring: n.Declaring, Name: n.Name}, source: n.X}, true
		}
	case *expr.Unary:
		if n.Op == expr.OpLen && expr.IsSequence(n.X.Type()) {
			return operatorCall{sig: LenSignature, source: n.X}, true
		}
	}
	return operatorCall{}, false
}

// queryOperator returns the parts of n when it is an operator call in chain
// position. Calls are always operators there, registered or not; property
// getters and len only when their signature is registered, so that plain
// member accesses on a sequence-typed source stay data.
func (p *QueryParser) queryOperator(n expr.Node) (operatorCall, bool) {
	call, ok := splitOperator(n)
	if !ok {
		return call, false
	}
	if _, isCall := n.(*expr.Call); isCall {
		return call, true
	}
	return call, p.registry.IsRegistered(call.sig)
}

// isSubQuery reports whether n starts a nested chain: a registered operator
// whose source can be parsed.
func (p *QueryParser) isSubQuery(n expr.Node) bool {
	call, ok := splitOperator(n)
	return ok && p.registry.IsRegistered(call.sig)
}

// processArgument prepares an operator argument: wrappers around inline
// lambdas are removed and every nested chain, at any depth, is parsed,
// applied and replaced by a subquery.
func (p *QueryParser) processArgument(arg expr.Node, ctx *ClauseGenerationContext) (expr.Node, error) {
	return p.findSubQueries(expr.UnwrapLambda(arg), ctx)
}

// findSubQueries walks n top-down. A nested chain is replaced as a whole;
// its own arguments are handled while it is parsed.
func (p *QueryParser) findSubQueries(n expr.Node, ctx *ClauseGenerationContext) (expr.Node, error) {
	if n == nil {
		return nil, nil
	}
	if p.isSubQuery(n) {
		return p.parseSubQuery(n, ctx)
	}
	kids := expr.Children(n)
	if len(kids) == 0 {
		return n, nil
	}
	out := make([]expr.Node, len(kids))
	for i, k := range kids {
		r, err := p.findSubQueries(k, ctx)
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return expr.WithChildren(n, out), nil
}

func (p *QueryParser) parseSubQuery(n expr.Node, ctx *ClauseGenerationContext) (*querymodel.SubQuery, error) {
	head, err := p.parseNode(n, "", ctx)
	if err != nil {
		return nil, err
	}
	qm, err := ApplyAllNodes(head, ctx)
	if err != nil {
		return nil, fmt.Errorf("subquery %s: %w", expr.Format(n), err)
	}
	return querymodel.NewSubQuery(qm), nil
}
