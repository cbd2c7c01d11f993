package parsing

import (
	"fmt"
	"log/slog"

	"github.com/roach88/chainql/internal/config"
	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/preprocess"
	"github.com/roach88/chainql/internal/querymodel"
)

// DefaultIdentifierPrefix starts the names of generated identifiers.
const DefaultIdentifierPrefix = config.DefaultIdentifierPrefix

// QueryParser turns operator-call ASTs into query models.
//
// Thread-safety: not safe for concurrent use; the identifier generator is
// shared by every parse. Use one parser per goroutine.
type QueryParser struct {
	registry  NodeTypeProvider
	processor preprocess.Processor
	ids       *UniqueIdentifierGenerator
	prefix    string
	parseIDs  IDGenerator
	logger    *slog.Logger
}

// Option configures a QueryParser.
type Option func(*QueryParser)

// WithProcessor replaces the preprocessing pipeline.
func WithProcessor(proc preprocess.Processor) Option {
	return func(p *QueryParser) { p.processor = proc }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *QueryParser) { p.logger = logger }
}

// WithParseIDGenerator sets the generator of parse IDs.
func WithParseIDGenerator(gen IDGenerator) Option {
	return func(p *QueryParser) { p.parseIDs = gen }
}

// WithIdentifierPrefix sets the prefix of generated identifiers.
func WithIdentifierPrefix(prefix string) Option {
	return func(p *QueryParser) { p.prefix = prefix }
}

// WithKnownIdentifiers pre-registers names the parser must never generate.
func WithKnownIdentifiers(names ...string) Option {
	return func(p *QueryParser) {
		for _, name := range names {
			p.ids.AddKnownIdentifier(name)
		}
	}
}

// NewQueryParser creates a parser over registry.
func NewQueryParser(registry NodeTypeProvider, opts ...Option) *QueryParser {
	p := &QueryParser{
		registry:  registry,
		processor: preprocess.Default(nil),
		ids:       NewUniqueIdentifierGenerator(),
		prefix:    DefaultIdentifierPrefix,
		parseIDs:  UUIDv7Generator{},
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// NewDefaultQueryParser creates a parser over DefaultRegistry.
func NewDefaultQueryParser(opts ...Option) *QueryParser {
	return NewQueryParser(DefaultRegistry(), opts...)
}

// Registry returns the parser's node type provider.
func (p *QueryParser) Registry() NodeTypeProvider { return p.registry }

// Identifiers returns the parser's identifier generator.
func (p *QueryParser) Identifiers() *UniqueIdentifierGenerator { return p.ids }

// GetParsedQuery preprocesses ast, parses it into a chain and applies the
// chain. It is the usual entry point.
func (p *QueryParser) GetParsedQuery(ast expr.Node) (*querymodel.QueryModel, error) {
	ctx := NewClauseGenerationContext(p.parseIDs.Generate())
	head, err := p.ParseTree(ast, ctx)
	if err != nil {
		return nil, err
	}
	qm, err := ApplyAllNodes(head, ctx)
	if err != nil {
		return nil, err
	}
	p.logger.Debug("query parsed",
		"parse_id", ctx.ParseID,
		"clauses", len(qm.BodyClauses),
		"result_operators", len(qm.ResultOperators),
		"nodes", ctx.Count())
	return qm, nil
}

// ParseTree preprocesses ast and returns the head of its node chain.
// Subqueries found on the way are applied at once with ctx, which must be
// passed to ApplyAllNodes for the returned chain.
func (p *QueryParser) ParseTree(ast expr.Node, ctx *ClauseGenerationContext) (Node, error) {
	if ast == nil || ast.Type() == nil {
		return nil, &ParseError{
			Code:    ErrCodeUnsupportedExpression,
			Message: "a query cannot be built from a void expression",
			Expr:    expr.Format(ast),
		}
	}
	processed, err := p.processor.Process(ast)
	if err != nil {
		return nil, fmt.Errorf("preprocess: %w", err)
	}
	p.logger.Debug("parsing query", "parse_id", ctx.ParseID, "expr", expr.Format(processed))
	return p.parseNode(processed, "", ctx)
}

// parseNode parses the chain ending at n. identifier names the items n
// produces; an empty identifier is generated.
func (p *QueryParser) parseNode(n expr.Node, identifier string, ctx *ClauseGenerationContext) (Node, error) {
	if call, ok := p.queryOperator(n); ok {
		return p.parseOperator(n, call, identifier, ctx)
	}
	return p.parseNonOperator(n, identifier, ctx)
}

func (p *QueryParser) parseOperator(n expr.Node, call operatorCall, identifier string, ctx *ClauseGenerationContext) (Node, error) {
	nodeType, ok := p.registry.GetNodeType(call.sig)
	if !ok {
		return nil, NewUnsupportedOperatorError(expr.Format(n), call.sig.Declaring, call.sig.Name)
	}

	source, err := p.parseNode(call.source, inferIdentifier(call.args), ctx)
	if err != nil {
		return nil, err
	}

	args := make([]expr.Node, len(call.args))
	for i, a := range call.args {
		if args[i], err = p.processArgument(a, ctx); err != nil {
			return nil, err
		}
	}

	if identifier == "" {
		identifier = p.ids.GetUniqueIdentifier(p.prefix)
	}
	return nodeType.Create(ParseInfo{Expression: n, Source: source, AssociatedIdentifier: identifier}, args)
}

func (p *QueryParser) parseNonOperator(n expr.Node, identifier string, ctx *ClauseGenerationContext) (Node, error) {
	if n.Type() == nil {
		return nil, &ParseError{
			Code:    ErrCodeUnsupportedExpression,
			Message: "a void expression cannot be a query source",
			Expr:    expr.Format(n),
		}
	}
	itemType, ok := expr.ElementType(n.Type())
	if !ok {
		return nil, &ParseError{
			Code:    ErrCodeUnsupportedExpression,
			Message: fmt.Sprintf("a query source must be a sequence, got %s", expr.TypeName(n.Type())),
			Expr:    expr.Format(n),
		}
	}
	from, err := p.processArgument(n, ctx)
	if err != nil {
		return nil, err
	}
	if identifier == "" {
		identifier = p.ids.GetUniqueIdentifier(p.prefix)
	}
	return NewMainSourceNode(identifier, itemType, from), nil
}

// inferIdentifier names a source after the first parameter of the first
// lambda among the operator arguments.
func inferIdentifier(args []expr.Node) string {
	for _, a := range args {
		if l, ok := expr.AsLambda(a); ok && len(l.Params) > 0 {
			return l.Params[0].Name
		}
	}
	return ""
}
