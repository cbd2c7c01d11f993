package parsing

import (
	"reflect"

	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/querymodel"
)

// MainSourceNode is the data source at the bottom of a chain.
type MainSourceNode struct {
	nodeBase

	// ItemType is the element type of From.
	ItemType reflect.Type

	// From is the source expression, with nested chains already replaced
	// by subqueries.
	From expr.Node
}

// NewMainSourceNode creates a main source node.
func NewMainSourceNode(identifier string, itemType reflect.Type, from expr.Node) *MainSourceNode {
	return &MainSourceNode{
		nodeBase: nodeBase{identifier: identifier, expression: from},
		ItemType: itemType,
		From:     from,
	}
}

func (n *MainSourceNode) Resolve(input *expr.Parameter, body expr.Node, ctx *ClauseGenerationContext) (expr.Node, error) {
	return replaceParameterWithReference(n, input, body, ctx)
}

func (n *MainSourceNode) Apply(qm *querymodel.QueryModel, ctx *ClauseGenerationContext) (*querymodel.QueryModel, error) {
	if qm != nil {
		panic("parsing: main source applied to an existing model")
	}
	main := querymodel.NewMainFromClause(n.identifier, n.ItemType, n.From)
	ctx.AddContextInfo(n, main)
	return querymodel.NewIdentityQueryModel(main), nil
}

// WhereNode filters items. It adds a where clause.
type WhereNode struct {
	nodeBase
	Predicate *expr.Lambda
}

func newWhereNode(info ParseInfo, args []expr.Node) (Node, error) {
	if err := checkArgCount(info, args, 1, 1); err != nil {
		return nil, err
	}
	pred, err := lambdaArg(info, args, 0, 1)
	if err != nil {
		return nil, err
	}
	return &WhereNode{nodeBase: newNodeBase(info), Predicate: pred}, nil
}

func (n *WhereNode) Resolve(input *expr.Parameter, body expr.Node, ctx *ClauseGenerationContext) (expr.Node, error) {
	return n.source.Resolve(input, body, ctx)
}

func (n *WhereNode) Apply(qm *querymodel.QueryModel, ctx *ClauseGenerationContext) (*querymodel.QueryModel, error) {
	qm, err := wrapAfterResultOperator(&n.source, n.expression, qm, ctx)
	if err != nil {
		return nil, err
	}
	pred, err := resolveLambda(n.source, n.Predicate, ctx)
	if err != nil {
		return nil, err
	}
	qm.AddBodyClause(&querymodel.WhereClause{Predicate: pred})
	return qm, nil
}

// SelectNode projects items. It replaces the select clause's selector.
type SelectNode struct {
	nodeBase
	Selector *expr.Lambda
}

func newSelectNode(info ParseInfo, args []expr.Node) (Node, error) {
	if err := checkArgCount(info, args, 1, 1); err != nil {
		return nil, err
	}
	sel, err := lambdaArg(info, args, 0, 1)
	if err != nil {
		return nil, err
	}
	return &SelectNode{nodeBase: newNodeBase(info), Selector: sel}, nil
}

// Resolve substitutes the resolved selector for input, so references to a
// projected carrier's members flatten to the expressions assigned to them.
func (n *SelectNode) Resolve(input *expr.Parameter, body expr.Node, ctx *ClauseGenerationContext) (expr.Node, error) {
	sel, err := resolveLambda(n.source, n.Selector, ctx)
	if err != nil {
		return nil, err
	}
	return ResolveReferences(body, input, sel)
}

func (n *SelectNode) Apply(qm *querymodel.QueryModel, ctx *ClauseGenerationContext) (*querymodel.QueryModel, error) {
	qm, err := wrapAfterResultOperator(&n.source, n.expression, qm, ctx)
	if err != nil {
		return nil, err
	}
	sel, err := resolveLambda(n.source, n.Selector, ctx)
	if err != nil {
		return nil, err
	}
	qm.SelectClause.Selector = sel
	return qm, nil
}

// SelectManyNode flattens the sequences selected by CollectionSelector. It
// adds an additional from clause and projects ResultSelector(item, inner),
// or the inner items when there is no result selector.
type SelectManyNode struct {
	nodeBase
	CollectionSelector *expr.Lambda
	ResultSelector     *expr.Lambda
}

func newSelectManyNode(info ParseInfo, args []expr.Node) (Node, error) {
	if err := checkArgCount(info, args, 1, 2); err != nil {
		return nil, err
	}
	coll, err := lambdaArg(info, args, 0, 1)
	if err != nil {
		return nil, err
	}
	result, err := optionalLambda(info, args, 1, 2)
	if err != nil {
		return nil, err
	}
	if _, ok := expr.ElementType(coll.Body.Type()); !ok {
		return nil, invalidArguments(expr.Format(info.Expression),
			"collection selector must return a sequence, got %s", expr.TypeName(coll.Body.Type()))
	}
	return &SelectManyNode{nodeBase: newNodeBase(info), CollectionSelector: coll, ResultSelector: result}, nil
}

func (n *SelectManyNode) clauseName() string {
	if n.ResultSelector != nil {
		return n.ResultSelector.Params[1].Name
	}
	return n.identifier
}

func (n *SelectManyNode) Resolve(input *expr.Parameter, body expr.Node, ctx *ClauseGenerationContext) (expr.Node, error) {
	projection, err := n.resolvedProjection(ctx)
	if err != nil {
		return nil, err
	}
	return ResolveReferences(body, input, projection)
}

func (n *SelectManyNode) resolvedProjection(ctx *ClauseGenerationContext) (expr.Node, error) {
	clause := ctx.GetContextInfo(n).(*querymodel.AdditionalFromClause)
	if n.ResultSelector == nil {
		return querymodel.Ref(clause), nil
	}
	return resolveLambda2(n.source, n.ResultSelector, clause, ctx)
}

func (n *SelectManyNode) Apply(qm *querymodel.QueryModel, ctx *ClauseGenerationContext) (*querymodel.QueryModel, error) {
	qm, err := wrapAfterResultOperator(&n.source, n.expression, qm, ctx)
	if err != nil {
		return nil, err
	}
	from, err := resolveLambda(n.source, n.CollectionSelector, ctx)
	if err != nil {
		return nil, err
	}
	itemType, _ := expr.ElementType(n.CollectionSelector.Body.Type())
	clause := querymodel.NewAdditionalFromClause(n.clauseName(), itemType, from)
	qm.AddBodyClause(clause)
	ctx.AddContextInfo(n, clause)

	projection, err := n.resolvedProjection(ctx)
	if err != nil {
		return nil, err
	}
	qm.SelectClause.Selector = projection
	return qm, nil
}

// LetNode introduces a named intermediate value. It adds a let clause and,
// with a result selector, projects ResultSelector(item, value).
type LetNode struct {
	nodeBase
	Value          *expr.Lambda
	ResultSelector *expr.Lambda
}

func newLetNode(info ParseInfo, args []expr.Node) (Node, error) {
	if err := checkArgCount(info, args, 1, 2); err != nil {
		return nil, err
	}
	value, err := lambdaArg(info, args, 0, 1)
	if err != nil {
		return nil, err
	}
	result, err := optionalLambda(info, args, 1, 2)
	if err != nil {
		return nil, err
	}
	return &LetNode{nodeBase: newNodeBase(info), Value: value, ResultSelector: result}, nil
}

func (n *LetNode) clauseName() string {
	if n.ResultSelector != nil {
		return n.ResultSelector.Params[1].Name
	}
	return n.identifier
}

func (n *LetNode) Resolve(input *expr.Parameter, body expr.Node, ctx *ClauseGenerationContext) (expr.Node, error) {
	if n.ResultSelector == nil {
		return n.source.Resolve(input, body, ctx)
	}
	clause := ctx.GetContextInfo(n).(*querymodel.LetClause)
	projection, err := resolveLambda2(n.source, n.ResultSelector, clause, ctx)
	if err != nil {
		return nil, err
	}
	return ResolveReferences(body, input, projection)
}

func (n *LetNode) Apply(qm *querymodel.QueryModel, ctx *ClauseGenerationContext) (*querymodel.QueryModel, error) {
	qm, err := wrapAfterResultOperator(&n.source, n.expression, qm, ctx)
	if err != nil {
		return nil, err
	}
	value, err := resolveLambda(n.source, n.Value, ctx)
	if err != nil {
		return nil, err
	}
	clause := &querymodel.LetClause{Name: n.clauseName(), Expression: value}
	qm.AddBodyClause(clause)
	ctx.AddContextInfo(n, clause)

	if n.ResultSelector != nil {
		projection, err := resolveLambda2(n.source, n.ResultSelector, clause, ctx)
		if err != nil {
			return nil, err
		}
		qm.SelectClause.Selector = projection
	}
	return qm, nil
}

// OrderByNode sorts items. OrderBy starts a new order-by clause; ThenBy
// appends an ordering to the order-by clause that ends the pipeline.
type OrderByNode struct {
	nodeBase
	KeySelector *expr.Lambda
	Direction   querymodel.OrderingDirection
	ThenBy      bool
}

func orderByFactory(dir querymodel.OrderingDirection, thenBy bool) func(ParseInfo, []expr.Node) (Node, error) {
	return func(info ParseInfo, args []expr.Node) (Node, error) {
		if err := checkArgCount(info, args, 1, 1); err != nil {
			return nil, err
		}
		key, err := lambdaArg(info, args, 0, 1)
		if err != nil {
			return nil, err
		}
		return &OrderByNode{nodeBase: newNodeBase(info), KeySelector: key, Direction: dir, ThenBy: thenBy}, nil
	}
}

func (n *OrderByNode) Resolve(input *expr.Parameter, body expr.Node, ctx *ClauseGenerationContext) (expr.Node, error) {
	return n.source.Resolve(input, body, ctx)
}

func (n *OrderByNode) Apply(qm *querymodel.QueryModel, ctx *ClauseGenerationContext) (*querymodel.QueryModel, error) {
	var clause *querymodel.OrderByClause
	if n.ThenBy {
		if _, ok := n.source.(resultOperatorNode); !ok && len(qm.BodyClauses) > 0 {
			clause, _ = qm.BodyClauses[len(qm.BodyClauses)-1].(*querymodel.OrderByClause)
		}
		if clause == nil {
			return nil, &ParseError{
				Code:    ErrCodeInvalidOperatorSequence,
				Message: "ThenBy must directly follow OrderBy or another ThenBy",
				Expr:    expr.Format(n.expression),
			}
		}
	} else {
		var err error
		qm, err = wrapAfterResultOperator(&n.source, n.expression, qm, ctx)
		if err != nil {
			return nil, err
		}
		clause = &querymodel.OrderByClause{}
		qm.AddBodyClause(clause)
	}

	key, err := resolveLambda(n.source, n.KeySelector, ctx)
	if err != nil {
		return nil, err
	}
	clause.AddOrdering(&querymodel.Ordering{Expression: key, Direction: n.Direction})
	return qm, nil
}
