package parsing

import (
	"fmt"
	"reflect"

	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/querymodel"
)

// ResultOperatorNode appends a result operator to the model.
//
// Result operators keep the items of their source, so Resolve goes through
// the source. GroupBy is the exception: it is the query source of the
// groupings it produces.
type ResultOperatorNode struct {
	nodeBase

	// Operator is the operator name, such as "Count".
	Operator string

	// Args are the operator arguments after the source.
	Args []expr.Node

	build      func(n *ResultOperatorNode, ctx *ClauseGenerationContext) (querymodel.ResultOperator, error)
	isGrouping bool
}

func (*ResultOperatorNode) resultOperator() {}

func (n *ResultOperatorNode) Resolve(input *expr.Parameter, body expr.Node, ctx *ClauseGenerationContext) (expr.Node, error) {
	if n.isGrouping {
		return replaceParameterWithReference(n, input, body, ctx)
	}
	return n.source.Resolve(input, body, ctx)
}

func (n *ResultOperatorNode) Apply(qm *querymodel.QueryModel, ctx *ClauseGenerationContext) (*querymodel.QueryModel, error) {
	op, err := n.build(n, ctx)
	if err != nil {
		return nil, err
	}
	info, err := qm.OutputDataInfo()
	if err == nil {
		_, err = op.OutputDataInfo(info)
	}
	if err != nil {
		return nil, &ParseError{
			Code:    ErrCodeInvalidOperatorSequence,
			Message: fmt.Sprintf("%s cannot be applied here: %v", n.Operator, err),
			Expr:    expr.Format(n.expression),
		}
	}
	qm.AddResultOperator(op)
	if n.isGrouping {
		ctx.AddContextInfo(n, op)
	}
	return qm, nil
}

type operatorBuilder func(n *ResultOperatorNode, ctx *ClauseGenerationContext) (querymodel.ResultOperator, error)

func newResultOperatorNode(info ParseInfo, name string, args []expr.Node, build operatorBuilder) *ResultOperatorNode {
	return &ResultOperatorNode{nodeBase: newNodeBase(info), Operator: name, Args: args, build: build}
}

func fixed(op func() querymodel.ResultOperator) operatorBuilder {
	return func(*ResultOperatorNode, *ClauseGenerationContext) (querymodel.ResultOperator, error) {
		return op(), nil
	}
}

// simpleOperator creates operators that take no arguments.
func simpleOperator(name string, op func() querymodel.ResultOperator) func(ParseInfo, []expr.Node) (Node, error) {
	return func(info ParseInfo, args []expr.Node) (Node, error) {
		if err := checkArgCount(info, args, 0, 0); err != nil {
			return nil, err
		}
		return newResultOperatorNode(info, name, args, fixed(op)), nil
	}
}

// predicateOperator creates operators with an optional predicate overload.
// The predicate becomes a where clause in front of the operator.
func predicateOperator(name string, op func() querymodel.ResultOperator) func(ParseInfo, []expr.Node) (Node, error) {
	return func(info ParseInfo, args []expr.Node) (Node, error) {
		if err := checkArgCount(info, args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 1 {
			where, err := newWhereNode(info, args)
			if err != nil {
				return nil, err
			}
			info.Source = where
		}
		return newResultOperatorNode(info, name, nil, fixed(op)), nil
	}
}

// selectorOperator creates aggregates with an optional selector overload.
// The selector replaces the projection in front of the operator.
func selectorOperator(name string, op func() querymodel.ResultOperator) func(ParseInfo, []expr.Node) (Node, error) {
	return func(info ParseInfo, args []expr.Node) (Node, error) {
		if err := checkArgCount(info, args, 0, 1); err != nil {
			return nil, err
		}
		if len(args) == 1 {
			sel, err := newSelectNode(info, args)
			if err != nil {
				return nil, err
			}
			info.Source = sel
		}
		return newResultOperatorNode(info, name, nil, fixed(op)), nil
	}
}

// valueOperator creates operators taking one plain argument.
func valueOperator(name string, op func(arg expr.Node) querymodel.ResultOperator) func(ParseInfo, []expr.Node) (Node, error) {
	return func(info ParseInfo, args []expr.Node) (Node, error) {
		if err := checkArgCount(info, args, 1, 1); err != nil {
			return nil, err
		}
		return newResultOperatorNode(info, name, args, func(n *ResultOperatorNode, _ *ClauseGenerationContext) (querymodel.ResultOperator, error) {
			return op(n.Args[0]), nil
		}), nil
	}
}

// typeOperator creates operators whose argument is a constant reflect.Type.
func typeOperator(name string, op func(t reflect.Type) querymodel.ResultOperator) func(ParseInfo, []expr.Node) (Node, error) {
	return func(info ParseInfo, args []expr.Node) (Node, error) {
		if err := checkArgCount(info, args, 1, 1); err != nil {
			return nil, err
		}
		c, ok := args[0].(*expr.Constant)
		t, isType := reflect.Type(nil), false
		if ok {
			t, isType = c.Value.(reflect.Type)
		}
		if !isType {
			return nil, invalidArguments(expr.Format(info.Expression), "%s expects a constant type, got %s", name, expr.Format(args[0]))
		}
		return newResultOperatorNode(info, name, args, fixed(func() querymodel.ResultOperator { return op(t) })), nil
	}
}

func newAllNode(info ParseInfo, args []expr.Node) (Node, error) {
	if err := checkArgCount(info, args, 1, 1); err != nil {
		return nil, err
	}
	pred, err := lambdaArg(info, args, 0, 1)
	if err != nil {
		return nil, err
	}
	return newResultOperatorNode(info, "All", args, func(n *ResultOperatorNode, ctx *ClauseGenerationContext) (querymodel.ResultOperator, error) {
		resolved, err := resolveLambda(n.source, pred, ctx)
		if err != nil {
			return nil, err
		}
		return &querymodel.AllResultOperator{Predicate: resolved}, nil
	}), nil
}

func newDefaultIfEmptyNode(info ParseInfo, args []expr.Node) (Node, error) {
	if err := checkArgCount(info, args, 0, 1); err != nil {
		return nil, err
	}
	return newResultOperatorNode(info, "DefaultIfEmpty", args, func(n *ResultOperatorNode, _ *ClauseGenerationContext) (querymodel.ResultOperator, error) {
		op := &querymodel.DefaultIfEmptyResultOperator{}
		if len(n.Args) == 1 {
			op.OptionalDefaultValue = n.Args[0]
		}
		return op, nil
	}), nil
}

func newGroupByNode(info ParseInfo, args []expr.Node) (Node, error) {
	if err := checkArgCount(info, args, 1, 2); err != nil {
		return nil, err
	}
	key, err := lambdaArg(info, args, 0, 1)
	if err != nil {
		return nil, err
	}
	elem, err := optionalLambda(info, args, 1, 1)
	if err != nil {
		return nil, err
	}
	n := newResultOperatorNode(info, "GroupBy", args, func(n *ResultOperatorNode, ctx *ClauseGenerationContext) (querymodel.ResultOperator, error) {
		keySel, err := resolveLambda(n.source, key, ctx)
		if err != nil {
			return nil, err
		}
		var elemSel expr.Node
		if elem != nil {
			elemSel, err = resolveLambda(n.source, elem, ctx)
		} else {
			// The current item itself.
			elemSel, err = n.source.Resolve(key.Params[0], key.Params[0], ctx)
		}
		if err != nil {
			return nil, err
		}
		return &querymodel.GroupResultOperator{
			GroupName:       n.identifier,
			KeySelector:     keySel,
			ElementSelector: elemSel,
		}, nil
	})
	n.isGrouping = true
	return n, nil
}
