package preprocess

import (
	"errors"
	"fmt"

	"github.com/roach88/chainql/internal/expr"
)

// DefaultMaxRewriteAttempts bounds how many successive rewrites may apply to
// one node and its replacements.
const DefaultMaxRewriteAttempts = 64

// Transformer is a local rewrite rule. Transform returns its input unchanged
// when the rule does not apply.
type Transformer interface {
	Name() string
	SupportedKinds() []expr.Kind
	Transform(n expr.Node) expr.Node
}

// Rule is a Transformer built from a function.
type Rule struct {
	RuleName string
	Kinds    []expr.Kind
	Apply    func(n expr.Node) expr.Node
}

func (r Rule) Name() string                    { return r.RuleName }
func (r Rule) SupportedKinds() []expr.Kind     { return r.Kinds }
func (r Rule) Transform(n expr.Node) expr.Node { return r.Apply(n) }

// TransformerRegistry holds rewrite rules keyed by the node kinds they
// handle. Rules for a kind are tried in registration order.
type TransformerRegistry struct {
	byKind map[expr.Kind][]Transformer
}

// NewTransformerRegistry creates an empty registry.
func NewTransformerRegistry() *TransformerRegistry {
	return &TransformerRegistry{byKind: make(map[expr.Kind][]Transformer)}
}

// Register adds t under each of its supported kinds.
func (r *TransformerRegistry) Register(t Transformer) {
	for _, k := range t.SupportedKinds() {
		r.byKind[k] = append(r.byKind[k], t)
	}
}

// GetTransformers returns the candidate rules for n.
func (r *TransformerRegistry) GetTransformers(n expr.Node) []Transformer {
	return r.byKind[n.Kind()]
}

// RegisteredCount returns the number of (kind, rule) registrations.
func (r *TransformerRegistry) RegisteredCount() int {
	total := 0
	for _, ts := range r.byKind {
		total += len(ts)
	}
	return total
}

// RewriteLimitError is returned when rewrites of one node do not settle
// within the attempt bound, which means two or more rules keep undoing each
// other.
type RewriteLimitError struct {
	Expr     string
	Rule     string
	Attempts int
}

func (e *RewriteLimitError) Error() string {
	return fmt.Sprintf("rewrite of %s did not settle after %d attempts (last rule %s)", e.Expr, e.Attempts, e.Rule)
}

// IsRewriteLimitError reports whether err is a RewriteLimitError.
func IsRewriteLimitError(err error) bool {
	var re *RewriteLimitError
	return errors.As(err, &re)
}

// TransformingProcessor applies registered rules innermost-first. For each
// node it applies the first rule whose output differs from its input, then
// starts over on the replacement, until no rule changes the node.
type TransformingProcessor struct {
	registry    *TransformerRegistry
	maxAttempts int
}

// NewTransformingProcessor creates a rewrite step. A non-positive bound
// selects DefaultMaxRewriteAttempts.
func NewTransformingProcessor(registry *TransformerRegistry, maxAttempts int) *TransformingProcessor {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxRewriteAttempts
	}
	return &TransformingProcessor{registry: registry, maxAttempts: maxAttempts}
}

// Process implements Processor.
func (p *TransformingProcessor) Process(n expr.Node) (expr.Node, error) {
	return p.rewrite(n, 0)
}

func (p *TransformingProcessor) rewrite(n expr.Node, attempts int) (expr.Node, error) {
	return expr.Rewrite(n, func(n expr.Node) (expr.Node, error) {
		return p.transformNode(n, attempts)
	})
}

func (p *TransformingProcessor) transformNode(n expr.Node, attempts int) (expr.Node, error) {
	for _, t := range p.registry.GetTransformers(n) {
		out := t.Transform(n)
		if out == n || expr.Equal(out, n) {
			continue
		}
		if attempts+1 > p.maxAttempts {
			return nil, &RewriteLimitError{Expr: expr.Format(n), Rule: t.Name(), Attempts: attempts + 1}
		}
		// The replacement may expose new matches below it as well.
		return p.rewrite(out, attempts+1)
	}
	return n, nil
}
