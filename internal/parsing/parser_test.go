package parsing

import (
	"bytes"
	"log/slog"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/fluent"
	"github.com/roach88/chainql/internal/querymodel"
)

type person struct {
	Id   int
	Name string
	Age  int
	Kids []person
}

var personType = reflect.TypeFor[person]()

var people = []person{
	{Id: 1, Name: "ann", Age: 40, Kids: []person{{Name: "bo", Age: 10}, {Name: "cy", Age: 12}}},
	{Id: 2, Name: "dan", Age: 4},
	{Id: 3, Name: "eve", Age: 33, Kids: []person{{Name: "fay", Age: 2}}},
}

const peopleText = "value([]parsing.person)"

func field(name string) func(expr.Node) expr.Node {
	return func(x expr.Node) expr.Node { return expr.Field(x, name) }
}

func olderThan(n int) func(expr.Node) expr.Node {
	return func(x expr.Node) expr.Node { return expr.Gt(expr.Field(x, "Age"), expr.Const(n)) }
}

func fn(name string, body func(expr.Node) expr.Node) *expr.Lambda {
	return fluent.Fn(name, personType, body)
}

func carrierFn(name string, body func(expr.Node) expr.Node) *expr.Lambda {
	return fluent.Fn(name, expr.CarrierType, body)
}

func newParser(opts ...Option) *QueryParser {
	opts = append([]Option{WithParseIDGenerator(NewFixedGenerator("p-1", "p-2", "p-3", "p-4"))}, opts...)
	return NewDefaultQueryParser(opts...)
}

func parse(t *testing.T, ast expr.Node) *querymodel.QueryModel {
	t.Helper()
	qm, err := newParser().GetParsedQuery(ast)
	require.NoError(t, err)
	require.True(t, querymodel.Validate(qm).IsValid, querymodel.Validate(qm).Violations)
	return qm
}

func execute(t *testing.T, qm *querymodel.QueryModel) any {
	t.Helper()
	out, err := querymodel.Execute(qm, nil)
	require.NoError(t, err)
	return out.Value
}

func TestParse_WhereSelect(t *testing.T) {
	ast := fluent.From(people).Where(fn("x", olderThan(5))).Select(fn("x", field("Name"))).Node()

	qm := parse(t, ast)

	assert.Equal(t, personType, qm.MainFromClause.Type)
	require.Len(t, qm.BodyClauses, 1)
	where := qm.BodyClauses[0].(*querymodel.WhereClause)
	assert.True(t, querymodel.ReferencesSource(where.Predicate, qm.MainFromClause))
	assert.Equal(t, "from x in "+peopleText+" where ([x].Age > 5) select [x].Name", qm.String())
	assert.Equal(t, []any{"ann", "eve"}, execute(t, qm))
}

func TestParse_OrderByThenBy(t *testing.T) {
	ast := fluent.From(people).OrderBy(fn("x", field("Name"))).ThenByDescending(fn("x", field("Age"))).Node()

	qm := parse(t, ast)

	require.Len(t, qm.BodyClauses, 1)
	orderBy := qm.BodyClauses[0].(*querymodel.OrderByClause)
	require.Len(t, orderBy.Orderings, 2)
	assert.Equal(t, querymodel.Asc, orderBy.Orderings[0].Direction)
	assert.Equal(t, "[x].Name", expr.Format(orderBy.Orderings[0].Expression))
	assert.Equal(t, querymodel.Desc, orderBy.Orderings[1].Direction)
	assert.Equal(t, "[x].Age", expr.Format(orderBy.Orderings[1].Expression))
}

func TestParse_CorrelatedSubquery(t *testing.T) {
	inner := func(x expr.Node) expr.Node {
		return fluent.From(people).Where(fn("y", func(y expr.Node) expr.Node {
			return expr.Eq(expr.Field(y, "Id"), expr.Field(x, "Id"))
		})).Node()
	}
	ast := fluent.From(people).Select(fn("x", inner)).Node()

	qm := parse(t, ast)

	sq, ok := qm.SelectClause.Selector.(*querymodel.SubQuery)
	require.True(t, ok, "projection should be a subquery, got %T", qm.SelectClause.Selector)
	where := sq.Model.BodyClauses[0].(*querymodel.WhereClause)
	assert.True(t, querymodel.ReferencesSource(where.Predicate, sq.Model.MainFromClause))
	assert.True(t, querymodel.ReferencesSource(where.Predicate, qm.MainFromClause))
	assert.Equal(t,
		"from x in "+peopleText+" select {from y in "+peopleText+" where ([y].Id == [x].Id) select [y]}",
		qm.String())
}

func TestParse_CorrelatedSubqueryExecutes(t *testing.T) {
	count := func(x expr.Node) expr.Node {
		return fluent.From(people).Count(fn("y", func(y expr.Node) expr.Node {
			return expr.Eq(expr.Field(y, "Id"), expr.Field(x, "Id"))
		}))
	}
	qm := parse(t, fluent.From(people).Select(fn("x", count)).Node())

	assert.Equal(t, []any{1, 1, 1}, execute(t, qm))
}

func TestParse_UnsupportedOperator(t *testing.T) {
	zip := expr.StaticCall(fluent.Method(fluent.Queryable, "Zip"), reflect.TypeFor[[]person](),
		expr.Const(people), expr.Const(people))
	ast := fluent.Over(zip).Where(fn("x", olderThan(5))).Node()

	_, err := newParser().GetParsedQuery(ast)

	require.Error(t, err)
	assert.True(t, IsUnsupportedOperatorError(err))
	assert.Contains(t, err.Error(), "'Queryable.Zip'")
}

func TestParse_CloneIsIndependent(t *testing.T) {
	qm := parse(t, fluent.From(people).Where(fn("x", olderThan(5))).Node())
	before := qm.String()

	clone, err := qm.Clone(nil)
	require.NoError(t, err)
	clone.MainFromClause.FromExpression = expr.Const([]person{})

	assert.Equal(t, before, qm.String())
	assert.NotSame(t, qm.MainFromClause, clone.MainFromClause)
	assert.Equal(t, []any{}, execute(t, clone))
}

func TestParse_CloneWithRepeatedSubquery(t *testing.T) {
	// The uncorrelated count lands in both the projection and the where
	// clause as one SubQuery.
	ast := fluent.From(people).Select(fn("x", func(x expr.Node) expr.Node {
		return expr.NewCarrier([]string{"p", "n"}, x, fluent.From(people).Count())
	})).Where(carrierFn("t", func(t expr.Node) expr.Node {
		return expr.Gt(expr.Field(t, "n"), expr.Const(0))
	})).Node()
	qm := parse(t, ast)

	clone, err := qm.Clone(nil)
	require.NoError(t, err)
	assert.Equal(t, qm.String(), clone.String())
	assert.True(t, querymodel.Validate(clone).IsValid, querymodel.Validate(clone).Violations)
	assert.Equal(t, execute(t, qm), execute(t, clone))

	var nested []*querymodel.QueryModel
	clone.ForEachExpression(func(n expr.Node) {
		expr.Inspect(n, func(n expr.Node) bool {
			if sq, ok := n.(*querymodel.SubQuery); ok {
				nested = append(nested, sq.Model)
			}
			return true
		})
	})
	require.Len(t, nested, 2)
	assert.Same(t, nested[0], nested[1])
}

func TestParse_UnsupportedExpression(t *testing.T) {
	tests := []struct {
		name string
		ast  expr.Node
	}{
		{"void root", expr.StaticCall(&expr.Method{Declaring: "log", Name: "Print"}, nil, expr.Const("x"))},
		{"scalar root", expr.Const(5)},
		{"scalar source", fluent.Over(expr.Const(5)).Where(fn("x", olderThan(1))).Node()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newParser().GetParsedQuery(tt.ast)
			require.Error(t, err)
			assert.True(t, IsUnsupportedExpressionError(err), err.Error())
		})
	}
}

func TestParse_RepeatedParsesAreStructurallyEqual(t *testing.T) {
	ast := fluent.From(people).Where(fn("x", olderThan(5))).OrderBy(fn("x", field("Age"))).Node()
	p := newParser()

	first, err := p.GetParsedQuery(ast)
	require.NoError(t, err)
	second, err := p.GetParsedQuery(ast)
	require.NoError(t, err)

	f1, err := querymodel.Fingerprint(first)
	require.NoError(t, err)
	f2, err := querymodel.Fingerprint(second)
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
	assert.NotSame(t, first.MainFromClause, second.MainFromClause)
}

func TestParse_ResultOperators(t *testing.T) {
	q := fluent.From(people)
	tests := []struct {
		name string
		ast  expr.Node
		text string
		want any
	}{
		{
			name: "count with predicate",
			ast:  q.Count(fn("x", olderThan(5))),
			text: "from x in " + peopleText + " where ([x].Age > 5) select [x] => Count()",
			want: 2,
		},
		{
			name: "sum with selector",
			ast:  q.Sum(fn("x", field("Age"))),
			text: "from x in " + peopleText + " select [x].Age => Sum()",
			want: 77,
		},
		{
			name: "take then skip",
			ast:  q.Select(fn("x", field("Age"))).Take(2).Skip(1).Node(),
			want: []any{4},
		},
		{
			name: "any",
			ast:  q.Any(fn("x", olderThan(35))),
			want: true,
		},
		{
			name: "all",
			ast:  q.All(fn("x", olderThan(1))),
			text: "from x in " + peopleText + " select [x] => All(([x].Age > 1))",
			want: true,
		},
		{
			name: "contains",
			ast:  q.Select(fn("x", field("Age"))).Contains(33),
			want: true,
		},
		{
			name: "cast",
			ast:  q.Select(fn("x", field("Age"))).Cast(reflect.TypeFor[float64]()).Node(),
			want: []any{40.0, 4.0, 33.0},
		},
		{
			name: "distinct reverse",
			ast:  fluent.From([]int{1, 2, 2, 3}).Distinct().Reverse().Node(),
			want: []any{3, 2, 1},
		},
		{
			name: "average",
			ast:  q.Average(fn("x", field("Id"))),
			want: 2.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qm := parse(t, tt.ast)
			if tt.text != "" {
				assert.Equal(t, tt.text, qm.String())
			}
			assert.Equal(t, tt.want, execute(t, qm))
		})
	}
}

func TestParse_WhereAfterSelect(t *testing.T) {
	names := fluent.From(people).Select(fn("x", field("Name")))
	ast := names.First(fluent.Fn("n", reflect.TypeFor[string](), func(n expr.Node) expr.Node {
		return expr.Eq(n, expr.Const("dan"))
	}))

	qm := parse(t, ast)

	assert.Equal(t, "from x in "+peopleText+" where ([x].Name == \"dan\") select [x].Name => First()", qm.String())
	assert.Equal(t, "dan", execute(t, qm))
}

func TestParse_SelectManyWithTransparentIdentifier(t *testing.T) {
	pairs := fluent.Fn2("p", personType, "c", personType, func(p, c expr.Node) expr.Node {
		return expr.NewCarrier([]string{"p", "c"}, p, c)
	})
	ast := fluent.From(people).
		SelectMany(fn("p", field("Kids")), pairs).
		Where(carrierFn("t", func(t expr.Node) expr.Node {
			return expr.Gt(expr.Field(expr.Field(t, "c"), "Age"), expr.Const(5))
		})).
		Select(carrierFn("t", func(t expr.Node) expr.Node {
			return expr.Field(expr.Field(t, "p"), "Name")
		})).Node()

	qm := parse(t, ast)

	require.Len(t, qm.BodyClauses, 2)
	kids := qm.BodyClauses[0].(*querymodel.AdditionalFromClause)
	assert.Equal(t, "c", kids.Name)
	assert.Equal(t, personType, kids.Type)
	assert.Equal(t,
		"from p in "+peopleText+" from c in [p].Kids where ([c].Age > 5) select [p].Name",
		qm.String())
	assert.Equal(t, []any{"ann", "ann"}, execute(t, qm))
}

func TestParse_SelectManyWithoutResultSelector(t *testing.T) {
	ast := fluent.From(people).SelectMany(fn("p", field("Kids")), nil).Select(fn("c", field("Name"))).Node()

	qm := parse(t, ast)

	assert.Equal(t, "from p in "+peopleText+" from c in [p].Kids select [c].Name", qm.String())
	assert.Equal(t, []any{"bo", "cy", "fay"}, execute(t, qm))
}

func TestParse_Let(t *testing.T) {
	double := fn("x", func(x expr.Node) expr.Node { return expr.Add(expr.Field(x, "Age"), expr.Field(x, "Age")) })
	pair := fluent.Fn2("x", personType, "d", expr.IntType, func(x, d expr.Node) expr.Node {
		return expr.NewCarrier([]string{"x", "d"}, x, d)
	})
	ast := fluent.From(people).Let(double, pair).
		Where(carrierFn("t", func(t expr.Node) expr.Node { return expr.Gt(expr.Field(t, "d"), expr.Const(10)) })).
		Select(carrierFn("t", func(t expr.Node) expr.Node { return expr.Field(expr.Field(t, "x"), "Name") })).
		Node()

	qm := parse(t, ast)

	assert.Equal(t,
		"from x in "+peopleText+" let d = ([x].Age + [x].Age) where ([d] > 10) select [x].Name",
		qm.String())
	assert.Equal(t, []any{"ann", "eve"}, execute(t, qm))
}

func TestParse_AccessorNotFound(t *testing.T) {
	tests := []struct {
		name     string
		selector *expr.Lambda
	}{
		{
			name: "collection initializer",
			selector: fn("x", func(x expr.Node) expr.Node {
				return expr.NewList(reflect.TypeFor[[]int](), expr.Field(x, "Age"))
			}),
		},
		{
			name: "missing member",
			selector: fn("x", func(x expr.Node) expr.Node {
				return expr.NewCarrier([]string{"a"}, expr.Field(x, "Age"))
			}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ast := fluent.From(people).Select(tt.selector).
				Where(fluent.Fn("y", tt.selector.Body.Type(), func(y expr.Node) expr.Node {
					return expr.Gt(expr.FieldOf(y, "b", expr.IntType), expr.Const(1))
				})).Node()

			_, err := newParser().GetParsedQuery(ast)

			require.Error(t, err)
			assert.True(t, IsAccessorNotFoundError(err), err.Error())
			assert.Contains(t, err.Error(), "'b'")
		})
	}
}

func TestParse_ThenByWithoutOrderBy(t *testing.T) {
	tests := []struct {
		name string
		ast  expr.Node
	}{
		{"directly on the source", fluent.From(people).ThenBy(fn("x", field("Age"))).Node()},
		{"after a where clause", fluent.From(people).OrderBy(fn("x", field("Age"))).Where(fn("x", olderThan(1))).ThenBy(fn("x", field("Name"))).Node()},
		{"after a result operator", fluent.From(people).OrderBy(fn("x", field("Age"))).Take(2).ThenBy(fn("x", field("Name"))).Node()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newParser().GetParsedQuery(tt.ast)
			require.Error(t, err)
			assert.True(t, IsInvalidOperatorSequenceError(err), err.Error())
		})
	}
}

func TestParse_ClauseAfterResultOperator(t *testing.T) {
	ast := fluent.From(people).Take(2).Where(fn("x", olderThan(5))).Select(fn("x", field("Name"))).Node()

	qm := parse(t, ast)

	sq, ok := qm.MainFromClause.FromExpression.(*querymodel.SubQuery)
	require.True(t, ok, "main source should read the finished model")
	assert.Equal(t, "x", qm.MainFromClause.Name)
	require.Len(t, sq.Model.ResultOperators, 1)
	assert.IsType(t, &querymodel.TakeResultOperator{}, sq.Model.ResultOperators[0])
	assert.Equal(t, []any{"ann"}, execute(t, qm))
}

func TestParse_GroupBy(t *testing.T) {
	grouped := fluent.From(people).GroupBy(fn("x", olderThan(5)), nil)

	t.Run("select key", func(t *testing.T) {
		ast := grouped.Select(fluent.Fn("g", expr.GroupingType, field("Key"))).Node()
		qm := parse(t, ast)
		assert.Equal(t, "g", qm.MainFromClause.Name)
		assert.Equal(t, expr.GroupingType, qm.MainFromClause.Type)
		assert.Equal(t, []any{true, false}, execute(t, qm))
	})

	t.Run("count groups", func(t *testing.T) {
		qm := parse(t, grouped.Count())
		require.Len(t, qm.ResultOperators, 2)
		assert.Equal(t, 2, execute(t, qm))
	})
}

func TestParse_CountPropertyAndLen(t *testing.T) {
	tests := []struct {
		name  string
		count func(expr.Node) expr.Node
	}{
		{"count property", fluent.CountOf},
		{"len", fluent.Len},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ast := fluent.From(people).
				Where(fn("x", func(x expr.Node) expr.Node {
					return expr.Gt(tt.count(expr.Field(x, "Kids")), expr.Const(0))
				})).
				Select(fn("x", field("Name"))).Node()

			qm := parse(t, ast)

			where := qm.BodyClauses[0].(*querymodel.WhereClause)
			sq, ok := where.Predicate.(*expr.Binary).X.(*querymodel.SubQuery)
			require.True(t, ok)
			require.Len(t, sq.Model.ResultOperators, 1)
			assert.IsType(t, &querymodel.CountResultOperator{}, sq.Model.ResultOperators[0])
			assert.Equal(t, []any{"ann", "eve"}, execute(t, qm))
		})
	}
}

func TestParse_InvalidArguments(t *testing.T) {
	tests := []struct {
		name string
		ast  expr.Node
	}{
		{
			name: "where without lambda",
			ast:  expr.StaticCall(fluent.Method(fluent.Queryable, fluent.OpWhere), reflect.TypeFor[[]person](), expr.Const(people), expr.Const(true)),
		},
		{
			name: "take without count",
			ast:  expr.StaticCall(fluent.Method(fluent.Queryable, fluent.OpTake), reflect.TypeFor[[]person](), expr.Const(people)),
		},
		{
			name: "cast to a value",
			ast:  expr.StaticCall(fluent.Method(fluent.Queryable, fluent.OpCast), reflect.TypeFor[[]int](), expr.Const(people), expr.Const(1)),
		},
		{
			name: "select many over scalars",
			ast:  fluent.From(people).SelectMany(fn("p", field("Age")), nil).Node(),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newParser().GetParsedQuery(tt.ast)
			require.Error(t, err)
			assert.True(t, IsInvalidArgumentsError(err), err.Error())
		})
	}
}

func TestParse_GeneratedIdentifiers(t *testing.T) {
	t.Run("default prefix", func(t *testing.T) {
		qm := parse(t, fluent.From(people).Count())
		assert.Equal(t, DefaultIdentifierPrefix+"0", qm.MainFromClause.Name)
	})

	t.Run("custom prefix and known names", func(t *testing.T) {
		p := newParser(WithIdentifierPrefix("q"), WithKnownIdentifiers("q0"))
		qm, err := p.GetParsedQuery(fluent.From(people).Count())
		require.NoError(t, err)
		assert.Equal(t, "q1", qm.MainFromClause.Name)
	})
}

func TestParse_LogsParseID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	p := newParser(WithLogger(logger))

	_, err := p.GetParsedQuery(fluent.From(people).Where(fn("x", olderThan(5))).Node())

	require.NoError(t, err)
	assert.Contains(t, buf.String(), `msg="query parsed"`)
	assert.Contains(t, buf.String(), "parse_id=p-1")
	assert.Contains(t, buf.String(), "clauses=1")
}

func TestParse_PreprocessesBeforeParsing(t *testing.T) {
	// !!(x.Age > 5) loses its double negation and 2+3 is folded.
	pred := fn("x", func(x expr.Node) expr.Node {
		return expr.Not(expr.Not(expr.Gt(expr.Field(x, "Age"), expr.Add(expr.Const(2), expr.Const(3)))))
	})
	qm := parse(t, fluent.From(people).Where(pred).Node())

	assert.Equal(t, "from x in "+peopleText+" where ([x].Age > 5) select [x]", qm.String())
}
