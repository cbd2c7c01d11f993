package parsing

import (
	"fmt"

	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/querymodel"
)

// Node is one parsed operator call of a chain.
//
// Source is the node the call was applied to, or nil for the main source.
// AssociatedIdentifier names the items the node produces; it is inferred
// from the lambda parameter of the following call or generated.
type Node interface {
	Source() Node
	AssociatedIdentifier() string

	// Resolve rewrites body, a lambda body whose parameter input stands for
	// the items this node produces, into an expression over query source
	// references.
	Resolve(input *expr.Parameter, body expr.Node, ctx *ClauseGenerationContext) (expr.Node, error)

	// Apply extends qm with the node's semantics. The main source receives a
	// nil model and creates one.
	Apply(qm *querymodel.QueryModel, ctx *ClauseGenerationContext) (*querymodel.QueryModel, error)
}

// ParseInfo is what every node is created from.
type ParseInfo struct {
	// Expression is the parsed call, rendered in error messages.
	Expression expr.Node

	// Source is the already parsed source of the call.
	Source Node

	// AssociatedIdentifier names the items the new node produces.
	AssociatedIdentifier string
}

type nodeBase struct {
	source     Node
	identifier string
	expression expr.Node
}

func newNodeBase(info ParseInfo) nodeBase {
	return nodeBase{source: info.Source, identifier: info.AssociatedIdentifier, expression: info.Expression}
}

func (b *nodeBase) Source() Node                 { return b.source }
func (b *nodeBase) AssociatedIdentifier() string { return b.identifier }

// ApplyAllNodes applies the chain ending at head, source first, and returns
// the finished model.
func ApplyAllNodes(head Node, ctx *ClauseGenerationContext) (*querymodel.QueryModel, error) {
	var chain []Node
	for n := head; n != nil; n = n.Source() {
		chain = append(chain, n)
	}
	var qm *querymodel.QueryModel
	for i := len(chain) - 1; i >= 0; i-- {
		next, err := chain[i].Apply(qm, ctx)
		if err != nil {
			return nil, err
		}
		qm = next
	}
	return qm, nil
}

// resultOperatorNode marks nodes that append a result operator. Clause
// producing nodes that follow one start a new model over the finished one.
type resultOperatorNode interface {
	Node
	resultOperator()
}

// wrapAfterResultOperator is called by clause producing nodes before they
// touch qm. When the source appended a result operator, qm is finished: it
// becomes a subquery read by the main source of a fresh model, and *source
// is replaced by that main source so later resolution goes through it.
func wrapAfterResultOperator(source *Node, expression expr.Node, qm *querymodel.QueryModel, ctx *ClauseGenerationContext) (*querymodel.QueryModel, error) {
	prev, ok := (*source).(resultOperatorNode)
	if !ok {
		return qm, nil
	}
	info, err := qm.OutputDataInfo()
	if err != nil {
		return nil, err
	}
	seq, ok := info.(*querymodel.StreamedSequenceInfo)
	if !ok {
		return nil, &ParseError{
			Code:    ErrCodeInvalidOperatorSequence,
			Message: fmt.Sprintf("the query ends in %s, which is not a sequence", info),
			Expr:    expr.Format(expression),
		}
	}
	main := &MainSourceNode{
		nodeBase: nodeBase{identifier: prev.AssociatedIdentifier(), expression: expression},
		ItemType: seq.ItemType(),
		From:     querymodel.NewSubQuery(qm),
	}
	*source = main
	return main.Apply(nil, ctx)
}

// lambdaArg returns args[i] as a lambda with want parameters.
func lambdaArg(info ParseInfo, args []expr.Node, i, want int) (*expr.Lambda, error) {
	if i >= len(args) {
		return nil, invalidArguments(expr.Format(info.Expression), "argument %d is missing", i+1)
	}
	l, ok := expr.AsLambda(args[i])
	if !ok {
		return nil, invalidArguments(expr.Format(info.Expression), "argument %d must be a lambda, got %s", i+1, expr.Format(args[i]))
	}
	if len(l.Params) != want {
		return nil, invalidArguments(expr.Format(info.Expression), "argument %d must take %d parameter(s), got %d", i+1, want, len(l.Params))
	}
	return l, nil
}

// optionalLambda returns args[i] as a lambda, or nil when there is no such
// argument.
func optionalLambda(info ParseInfo, args []expr.Node, i, want int) (*expr.Lambda, error) {
	if i >= len(args) {
		return nil, nil
	}
	return lambdaArg(info, args, i, want)
}

func checkArgCount(info ParseInfo, args []expr.Node, lo, hi int) error {
	if len(args) < lo || len(args) > hi {
		if lo == hi {
			return invalidArguments(expr.Format(info.Expression), "expected %d argument(s) after the source, got %d", lo, len(args))
		}
		return invalidArguments(expr.Format(info.Expression), "expected %d to %d arguments after the source, got %d", lo, hi, len(args))
	}
	return nil
}

// resolveLambda resolves a one-parameter lambda against the items of
// source.
func resolveLambda(source Node, l *expr.Lambda, ctx *ClauseGenerationContext) (expr.Node, error) {
	return source.Resolve(l.Params[0], l.Body, ctx)
}

// resolveLambda2 resolves a result selector whose first parameter stands for
// the items of source and whose second parameter stands for the items of
// the query source second.
func resolveLambda2(source Node, l *expr.Lambda, second querymodel.QuerySource, ctx *ClauseGenerationContext) (expr.Node, error) {
	body, err := source.Resolve(l.Params[0], l.Body, ctx)
	if err != nil {
		return nil, err
	}
	return ResolveReferences(body, l.Params[1], querymodel.Ref(second))
}
