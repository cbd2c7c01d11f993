package parsing

import (
	"fmt"

	"github.com/roach88/chainql/internal/config"
	"github.com/roach88/chainql/internal/preprocess"
)

// NewQueryParserFromConfig creates a parser over DefaultRegistry extended
// with the configured aliases. opts are applied after the configuration.
func NewQueryParserFromConfig(cfg *config.Config, opts ...Option) (*QueryParser, error) {
	registry := DefaultRegistry()
	for _, alias := range cfg.OperatorAliases {
		t, ok := NodeTypeByName(alias.Operator)
		if !ok {
			return nil, fmt.Errorf("operator alias %s: unknown operator %q", alias.Signature, alias.Operator)
		}
		registry.Register(t, alias.Signature)
	}

	var provider NodeTypeProvider = registry
	if cfg.RegistryCacheSize > 0 {
		cached, err := NewCachedProvider(registry, cfg.RegistryCacheSize)
		if err != nil {
			return nil, err
		}
		provider = cached
	}

	var filter preprocess.EvaluableFilter
	if len(cfg.EvaluationExclusions) > 0 {
		filter = preprocess.ExcludeMethods(cfg.EvaluationExclusions...)
	}
	pipeline := preprocess.Pipeline{
		preprocess.NewTransformingProcessor(preprocess.DefaultTransformers(), cfg.MaxRewriteAttempts),
		preprocess.NewPartialEvaluatingProcessor(filter),
	}

	base := []Option{WithProcessor(pipeline)}
	if cfg.IdentifierPrefix != "" {
		base = append(base, WithIdentifierPrefix(cfg.IdentifierPrefix))
	}
	return NewQueryParser(provider, append(base, opts...)...), nil
}
