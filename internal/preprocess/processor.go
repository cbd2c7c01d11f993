// Package preprocess normalizes an AST before it is parsed into a query
// model: local rewrite rules run innermost-first, then subtrees that do not
// depend on lambda parameters are folded to constants.
package preprocess

import (
	"fmt"

	"github.com/roach88/chainql/internal/expr"
)

// Processor is one step of the preprocessing pipeline.
type Processor interface {
	Process(n expr.Node) (expr.Node, error)
}

// Pipeline runs processors in order, feeding each the previous output.
type Pipeline []Processor

// Process implements Processor.
func (p Pipeline) Process(n expr.Node) (expr.Node, error) {
	for i, step := range p {
		out, err := step.Process(n)
		if err != nil {
			return nil, fmt.Errorf("preprocess step %d: %w", i, err)
		}
		n = out
	}
	return n, nil
}

// Default returns the standard pipeline: the built-in rewrite rules with
// the default attempt bound, then partial evaluation with filter. A nil
// filter approves every node.
//
// Rewrites run before folding so that running the pipeline again on its
// own output changes nothing.
func Default(filter EvaluableFilter) Pipeline {
	return Pipeline{
		NewTransformingProcessor(DefaultTransformers(), DefaultMaxRewriteAttempts),
		NewPartialEvaluatingProcessor(filter),
	}
}
