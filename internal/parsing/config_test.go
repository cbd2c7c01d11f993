package parsing

import (
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainql/internal/config"
	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/fluent"
	"github.com/roach88/chainql/internal/preprocess"
	"github.com/roach88/chainql/internal/querymodel"
)

func TestNewQueryParserFromConfig(t *testing.T) {
	cfg, err := config.Compile("parser.cue", []byte(`
parser: {
	identifierPrefix: "q"
	registryCacheSize: 16
	evaluationExclusions: ["clock.Now"]
	operatorAliases: "Queryable.Filter": "Where"
}
`))
	require.NoError(t, err)

	p, err := NewQueryParserFromConfig(cfg, WithParseIDGenerator(NewFixedGenerator("p-1", "p-2")))
	require.NoError(t, err)
	assert.IsType(t, &CachedProvider{}, p.Registry())

	t.Run("alias", func(t *testing.T) {
		ast := expr.StaticCall(fluent.Method(fluent.Queryable, "Filter"), reflect.TypeFor[[]person](),
			expr.Const(people), expr.Quoted(fn("x", olderThan(5))))
		qm, err := p.GetParsedQuery(fluent.Over(ast).Count())
		require.NoError(t, err)
		assert.Equal(t, "x", qm.MainFromClause.Name)
		require.Len(t, qm.BodyClauses, 1)
		assert.IsType(t, &querymodel.WhereClause{}, qm.BodyClauses[0])
	})

	t.Run("exclusion", func(t *testing.T) {
		now := &expr.Method{Declaring: "clock", Name: "Now", Func: func() int { return 5 }}
		pred := fn("x", func(x expr.Node) expr.Node {
			return expr.Gt(expr.Field(x, "Age"), expr.StaticCall(now, expr.IntType))
		})
		qm, err := p.GetParsedQuery(fluent.From(people).Where(pred).Count())
		require.NoError(t, err)
		assert.Equal(t, "from x in "+peopleText+" where ([x].Age > clock.Now()) select [x] => Count()", qm.String())
	})
}

func TestNewQueryParserFromConfig_Defaults(t *testing.T) {
	p, err := NewQueryParserFromConfig(config.Default())
	require.NoError(t, err)

	_, isPipeline := p.processor.(preprocess.Pipeline)
	assert.True(t, isPipeline)
	assert.Equal(t, config.DefaultIdentifierPrefix, p.prefix)
	assert.Equal(t, NewDefaultQueryParser().prefix, p.prefix)
}
