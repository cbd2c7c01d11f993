package querymodel

import (
	"github.com/roach88/chainql/internal/expr"
)

// CloneContext carries the mapping filled while a model is cloned.
type CloneContext struct {
	Mapping *QuerySourceMapping

	// models holds the clone of every nested model seen so far. A SubQuery
	// may occur in several clauses of one model; it is cloned once.
	models map[*QueryModel]*QueryModel
}

// Clone returns a copy of the model with fresh clause identities. Every
// reference to a clause of this model, including references from nested
// models, is rewritten to the corresponding new clause. References to
// clauses outside the model are kept unless mapping already holds an entry
// for them.
//
// A nil mapping starts an empty one.
func (qm *QueryModel) Clone(mapping *QuerySourceMapping) (*QueryModel, error) {
	if mapping == nil {
		mapping = NewQuerySourceMapping()
	}
	return qm.clone(&CloneContext{Mapping: mapping, models: map[*QueryModel]*QueryModel{}})
}

func (qm *QueryModel) clone(ctx *CloneContext) (*QueryModel, error) {
	main, err := qm.MainFromClause.clone(ctx)
	if err != nil {
		return nil, err
	}
	out := &QueryModel{MainFromClause: main}
	for _, c := range qm.BodyClauses {
		bc, err := c.clone(ctx)
		if err != nil {
			return nil, err
		}
		out.BodyClauses = append(out.BodyClauses, bc)
	}
	out.SelectClause = &SelectClause{Selector: qm.SelectClause.Selector}
	for _, op := range qm.ResultOperators {
		cop, err := op.clone(ctx)
		if err != nil {
			return nil, err
		}
		out.ResultOperators = append(out.ResultOperators, cop)
	}

	// Expressions are still shared with the original; rewrite them against
	// the completed mapping.
	err = out.TransformExpressions(func(n expr.Node) (expr.Node, error) {
		return adjustClonedExpression(n, ctx)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// adjustClonedExpression clones nested models with the shared mapping and
// then replaces the remaining references.
func adjustClonedExpression(n expr.Node, ctx *CloneContext) (expr.Node, error) {
	n, err := expr.Rewrite(n, func(n expr.Node) (expr.Node, error) {
		sq, ok := n.(*SubQuery)
		if !ok {
			return n, nil
		}
		if model, ok := ctx.models[sq.Model]; ok {
			return NewSubQuery(model), nil
		}
		model, err := sq.Model.clone(ctx)
		if err != nil {
			return nil, err
		}
		ctx.models[sq.Model] = model
		return NewSubQuery(model), nil
	})
	if err != nil {
		return nil, err
	}
	return ReplaceClauseReferences(n, ctx.Mapping, false)
}

func (c *MainFromClause) clone(ctx *CloneContext) (*MainFromClause, error) {
	out := &MainFromClause{Name: c.Name, Type: c.Type, FromExpression: c.FromExpression}
	if err := ctx.Mapping.AddMapping(c, Ref(out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *AdditionalFromClause) clone(ctx *CloneContext) (BodyClause, error) {
	out := &AdditionalFromClause{Name: c.Name, Type: c.Type, FromExpression: c.FromExpression}
	if err := ctx.Mapping.AddMapping(c, Ref(out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *LetClause) clone(ctx *CloneContext) (BodyClause, error) {
	out := &LetClause{Name: c.Name, Expression: c.Expression}
	if err := ctx.Mapping.AddMapping(c, Ref(out)); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *WhereClause) clone(*CloneContext) (BodyClause, error) {
	return &WhereClause{Predicate: c.Predicate}, nil
}

func (c *OrderByClause) clone(*CloneContext) (BodyClause, error) {
	out := &OrderByClause{Orderings: make([]*Ordering, len(c.Orderings))}
	for i, o := range c.Orderings {
		out.Orderings[i] = &Ordering{Expression: o.Expression, Direction: o.Direction}
	}
	return out, nil
}

func (o *CountResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &CountResultOperator{}, nil
}
func (o *LongCountResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &LongCountResultOperator{}, nil
}
func (o *SumResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &SumResultOperator{}, nil
}
func (o *MinResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &MinResultOperator{}, nil
}
func (o *MaxResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &MaxResultOperator{}, nil
}
func (o *AverageResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &AverageResultOperator{}, nil
}
func (o *AnyResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &AnyResultOperator{}, nil
}
func (o *AllResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &AllResultOperator{Predicate: o.Predicate}, nil
}
func (o *ContainsResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &ContainsResultOperator{Item: o.Item}, nil
}
func (o *FirstResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &FirstResultOperator{ReturnDefaultWhenEmpty: o.ReturnDefaultWhenEmpty}, nil
}
func (o *LastResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &LastResultOperator{ReturnDefaultWhenEmpty: o.ReturnDefaultWhenEmpty}, nil
}
func (o *SingleResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &SingleResultOperator{ReturnDefaultWhenEmpty: o.ReturnDefaultWhenEmpty}, nil
}
func (o *DistinctResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &DistinctResultOperator{}, nil
}
func (o *ReverseResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &ReverseResultOperator{}, nil
}
func (o *TakeResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &TakeResultOperator{Count: o.Count}, nil
}
func (o *SkipResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &SkipResultOperator{Count: o.Count}, nil
}
func (o *DefaultIfEmptyResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &DefaultIfEmptyResultOperator{OptionalDefaultValue: o.OptionalDefaultValue}, nil
}
func (o *CastResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &CastResultOperator{CastItemType: o.CastItemType}, nil
}
func (o *OfTypeResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &OfTypeResultOperator{SearchedItemType: o.SearchedItemType}, nil
}
func (o *UnionResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &UnionResultOperator{Source2: o.Source2}, nil
}
func (o *ConcatResultOperator) clone(*CloneContext) (ResultOperator, error) {
	return &ConcatResultOperator{Source2: o.Source2}, nil
}

func (o *GroupResultOperator) clone(ctx *CloneContext) (ResultOperator, error) {
	out := &GroupResultOperator{GroupName: o.GroupName, KeySelector: o.KeySelector, ElementSelector: o.ElementSelector}
	if err := ctx.Mapping.AddMapping(o, Ref(out)); err != nil {
		return nil, err
	}
	return out, nil
}
