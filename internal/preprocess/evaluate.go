package preprocess

import (
	"slices"

	"github.com/roach88/chainql/internal/expr"
)

// EvaluableFilter approves nodes for constant folding. A node is folded only
// if it and all of its descendants are approved.
type EvaluableFilter interface {
	IsEvaluable(n expr.Node) bool
}

// FilterFunc adapts a function to EvaluableFilter.
type FilterFunc func(n expr.Node) bool

func (f FilterFunc) IsEvaluable(n expr.Node) bool { return f(n) }

// AllowAll approves every node.
var AllowAll = FilterFunc(func(expr.Node) bool { return true })

// ExcludeMethods rejects calls to the given methods, typically functions
// with side effects or results that must be computed at execution time.
func ExcludeMethods(sigs ...expr.Signature) EvaluableFilter {
	return FilterFunc(func(n expr.Node) bool {
		c, ok := n.(*expr.Call)
		return !ok || !slices.Contains(sigs, c.Method.Signature())
	})
}

// AllOf approves a node when every filter does.
func AllOf(filters ...EvaluableFilter) EvaluableFilter {
	return FilterFunc(func(n expr.Node) bool {
		for _, f := range filters {
			if !f.IsEvaluable(n) {
				return false
			}
		}
		return true
	})
}

// PartialEvaluatingProcessor folds every maximal subtree that does not
// depend on a lambda parameter into a constant.
type PartialEvaluatingProcessor struct {
	filter EvaluableFilter
}

// NewPartialEvaluatingProcessor creates a folding step. A nil filter
// approves every node.
func NewPartialEvaluatingProcessor(filter EvaluableFilter) *PartialEvaluatingProcessor {
	if filter == nil {
		filter = AllowAll
	}
	return &PartialEvaluatingProcessor{filter: filter}
}

// Process implements Processor. Failed evaluations are embedded as
// EvaluationFailure nodes, never returned as errors.
func (p *PartialEvaluatingProcessor) Process(n expr.Node) (expr.Node, error) {
	evaluable := make(map[expr.Node]bool)
	p.tag(n, evaluable)
	return p.fold(n, evaluable), nil
}

// tag marks evaluable nodes bottom-up and reports whether n is evaluable.
func (p *PartialEvaluatingProcessor) tag(n expr.Node, evaluable map[expr.Node]bool) bool {
	ok := true
	for _, kid := range expr.Children(n) {
		if !p.tag(kid, evaluable) {
			ok = false
		}
	}
	ok = ok && intrinsicallyEvaluable(n) && p.filter.IsEvaluable(n)
	evaluable[n] = ok
	return ok
}

func intrinsicallyEvaluable(n expr.Node) bool {
	if n.Type() == nil {
		return false
	}
	switch n := n.(type) {
	case *expr.Parameter, *expr.Lambda, *expr.Quote:
		return false
	case *expr.Call:
		return n.Method != nil && n.Method.Func != nil
	case *expr.Member:
		return n.X != nil
	case expr.Extension:
		return false
	}
	return true
}

// fold replaces evaluable nodes top-down.
func (p *PartialEvaluatingProcessor) fold(n expr.Node, evaluable map[expr.Node]bool) expr.Node {
	if _, isConst := n.(*expr.Constant); isConst {
		return n
	}
	if evaluable[n] {
		v, err := expr.Evaluate(n)
		if err == nil {
			return expr.ConstOf(v, n.Type())
		}
		return &EvaluationFailure{Err: err, Expr: p.foldChildren(n, evaluable)}
	}
	return p.foldChildren(n, evaluable)
}

func (p *PartialEvaluatingProcessor) foldChildren(n expr.Node, evaluable map[expr.Node]bool) expr.Node {
	kids := expr.Children(n)
	if len(kids) == 0 {
		return n
	}
	next := make([]expr.Node, len(kids))
	for i, kid := range kids {
		next[i] = p.fold(kid, evaluable)
	}
	return expr.WithChildren(n, next)
}
