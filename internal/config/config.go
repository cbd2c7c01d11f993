// Package config loads parser configuration from CUE.
//
// A configuration file holds a single optional "parser" struct:
//
//	parser: {
//		maxRewriteAttempts: 32
//		registryCacheSize:  256
//		identifierPrefix:   "_q"
//		evaluationExclusions: ["time.Now"]
//		operatorAliases: "Queryable.Filter": "Where"
//	}
//
// Every field is optional; missing fields keep their defaults.
package config

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/fluent"
	"github.com/roach88/chainql/internal/preprocess"
)

// Defaults used when a field is absent.
const (
	DefaultMaxRewriteAttempts = preprocess.DefaultMaxRewriteAttempts
	DefaultRegistryCacheSize  = 128
	// DefaultIdentifierPrefix starts the names of generated identifiers.
	DefaultIdentifierPrefix = "<generated>_"
)

// schema closes the parser struct so misspelled fields are reported.
const schema = `
#Parser: {
	maxRewriteAttempts?:   int & >0
	registryCacheSize?:    int & >=0
	identifierPrefix?:     string & !=""
	evaluationExclusions?: [...string]
	operatorAliases?: [string]: string
}
parser?: #Parser
`

// Config is the parser configuration.
type Config struct {
	// MaxRewriteAttempts bounds the rewrites of one node during
	// preprocessing.
	MaxRewriteAttempts int

	// RegistryCacheSize is the number of cached node type lookups. Zero
	// disables the cache.
	RegistryCacheSize int

	// IdentifierPrefix starts generated identifiers.
	IdentifierPrefix string

	// EvaluationExclusions are methods never folded into constants.
	EvaluationExclusions []expr.Signature

	// OperatorAliases register extra signatures for built-in operators,
	// sorted by signature.
	OperatorAliases []OperatorAlias
}

// OperatorAlias maps a call signature to a built-in operator name.
type OperatorAlias struct {
	Signature expr.Signature
	Operator  string
}

// Default returns the configuration used without a file.
func Default() *Config {
	return &Config{
		MaxRewriteAttempts: DefaultMaxRewriteAttempts,
		RegistryCacheSize:  DefaultRegistryCacheSize,
		IdentifierPrefix:   DefaultIdentifierPrefix,
	}
}

// ConfigError represents an invalid configuration value with its source
// position.
type ConfigError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ConfigError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Load reads and compiles the CUE file at path.
func Load(path string) (*Config, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Compile(path, src)
}

// Compile compiles CUE source. filename is used in error positions.
func Compile(filename string, src []byte) (*Config, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}
	v = ctx.CompileString(schema, cue.Filename("schema.cue")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	cfg := Default()
	p := v.LookupPath(cue.ParsePath("parser"))
	if !p.Exists() {
		return cfg, nil
	}

	if f := p.LookupPath(cue.ParsePath("maxRewriteAttempts")); f.Exists() {
		n, err := f.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		cfg.MaxRewriteAttempts = int(n)
	}
	if f := p.LookupPath(cue.ParsePath("registryCacheSize")); f.Exists() {
		n, err := f.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		cfg.RegistryCacheSize = int(n)
	}
	if f := p.LookupPath(cue.ParsePath("identifierPrefix")); f.Exists() {
		s, err := f.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		cfg.IdentifierPrefix = s
	}

	var err error
	if cfg.EvaluationExclusions, err = parseExclusions(p.LookupPath(cue.ParsePath("evaluationExclusions"))); err != nil {
		return nil, err
	}
	if cfg.OperatorAliases, err = parseAliases(p.LookupPath(cue.ParsePath("operatorAliases"))); err != nil {
		return nil, err
	}
	return cfg, nil
}

func parseExclusions(v cue.Value) ([]expr.Signature, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.List()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []expr.Signature
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		sig, ok := ParseSignature(s)
		if !ok {
			return nil, &ConfigError{
				Field:   "evaluationExclusions",
				Message: fmt.Sprintf("%q is not of the form Type.Method", s),
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, sig)
	}
	return out, nil
}

func parseAliases(v cue.Value) ([]OperatorAlias, error) {
	if !v.Exists() {
		return nil, nil
	}
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	var out []OperatorAlias
	for iter.Next() {
		label := iter.Label()
		sig, ok := ParseSignature(label)
		if !ok {
			return nil, &ConfigError{
				Field:   "operatorAliases",
				Message: fmt.Sprintf("%q is not of the form Type.Method", label),
				Pos:     iter.Value().Pos(),
			}
		}
		target, err := iter.Value().String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		if !slices.Contains(fluent.Operators, target) {
			return nil, &ConfigError{
				Field:   "operatorAliases." + label,
				Message: fmt.Sprintf("unknown operator %q", target),
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, OperatorAlias{Signature: sig, Operator: target})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Signature.String() < out[j].Signature.String()
	})
	return out, nil
}

// ParseSignature splits "Type.Method" at its last dot.
func ParseSignature(s string) (expr.Signature, bool) {
	i := strings.LastIndexByte(s, '.')
	if i <= 0 || i == len(s)-1 {
		return expr.Signature{}, false
	}
	return expr.Signature{Declaring: s[:i], Name: s[i+1:]}, true
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &ConfigError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
