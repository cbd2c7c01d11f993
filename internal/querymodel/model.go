package querymodel

import (
	"fmt"

	"github.com/roach88/chainql/internal/expr"
)

// QueryModel is the root of a parsed query.
//
// Invariants:
//   - MainFromClause is set at creation and never replaced
//   - BodyClauses are in execution order; clauses are only ever appended
//   - SelectClause is always present
//   - ResultOperators run in order after the select clause
type QueryModel struct {
	MainFromClause  *MainFromClause
	BodyClauses     []BodyClause
	SelectClause    *SelectClause
	ResultOperators []ResultOperator
}

// NewQueryModel creates a model from its two mandatory clauses.
func NewQueryModel(main *MainFromClause, sel *SelectClause) *QueryModel {
	return &QueryModel{MainFromClause: main, SelectClause: sel}
}

// NewIdentityQueryModel creates "from x in source select x".
func NewIdentityQueryModel(main *MainFromClause) *QueryModel {
	return NewQueryModel(main, &SelectClause{Selector: Ref(main)})
}

// AddBodyClause appends c to the pipeline.
func (qm *QueryModel) AddBodyClause(c BodyClause) {
	qm.BodyClauses = append(qm.BodyClauses, c)
}

// AddResultOperator appends op after the existing result operators.
func (qm *QueryModel) AddResultOperator(op ResultOperator) {
	qm.ResultOperators = append(qm.ResultOperators, op)
}

// IsIdentityQuery reports whether the model returns the items of its main
// source unchanged.
func (qm *QueryModel) IsIdentityQuery() bool {
	if len(qm.BodyClauses) > 0 || len(qm.ResultOperators) > 0 {
		return false
	}
	ref, ok := qm.SelectClause.Selector.(*QuerySourceReference)
	return ok && ref.Source == QuerySource(qm.MainFromClause)
}

// OutputDataInfo returns the shape of the model's result: the select
// clause's sequence, transformed by each result operator in turn.
func (qm *QueryModel) OutputDataInfo() (StreamedDataInfo, error) {
	var info StreamedDataInfo = qm.SelectClause.OutputDataInfo()
	for _, op := range qm.ResultOperators {
		next, err := op.OutputDataInfo(info)
		if err != nil {
			return nil, fmt.Errorf("result operator %s: %w", op.Name(), err)
		}
		info = next
	}
	return info, nil
}

// Clauses returns every clause in pipeline order, main source first and
// select clause last.
func (qm *QueryModel) Clauses() []Clause {
	out := make([]Clause, 0, len(qm.BodyClauses)+2)
	out = append(out, qm.MainFromClause)
	for _, c := range qm.BodyClauses {
		out = append(out, c)
	}
	return append(out, qm.SelectClause)
}

// TransformExpressions replaces every expression of every clause and result
// operator with fn's result, in place. Nested models are not visited; fn
// decides what to do with SubQuery nodes.
func (qm *QueryModel) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	for _, c := range qm.Clauses() {
		if err := c.TransformExpressions(fn); err != nil {
			return err
		}
	}
	for _, op := range qm.ResultOperators {
		if err := op.TransformExpressions(fn); err != nil {
			return err
		}
	}
	return nil
}

// ForEachExpression calls fn on every expression of the model, in clause
// order. The model is not modified. Nested models are not visited.
func (qm *QueryModel) ForEachExpression(fn func(expr.Node)) {
	_ = qm.TransformExpressions(func(n expr.Node) (expr.Node, error) {
		fn(n)
		return n, nil
	})
}

// QuerySources returns the clauses of the model that introduce items, in
// pipeline order.
func (qm *QueryModel) QuerySources() []QuerySource {
	out := []QuerySource{qm.MainFromClause}
	for _, c := range qm.BodyClauses {
		if s, ok := c.(QuerySource); ok {
			out = append(out, s)
		}
	}
	return out
}
