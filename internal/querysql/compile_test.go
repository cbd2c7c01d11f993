package querysql

import (
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/querymodel"
)

type person struct {
	ID     int `db:"id"`
	Name   string
	Age    int
	TeamID *int
}

var personType = reflect.TypeFor[person]()

var people = NewTable[person]("people")

const allColumns = `t0."id" AS "id", t0."name" AS "name", t0."age" AS "age", t0."team_id" AS "team_id"`

func peopleModel() (*querymodel.QueryModel, *querymodel.MainFromClause) {
	main := querymodel.NewMainFromClause("x", personType, expr.Const(people))
	return querymodel.NewIdentityQueryModel(main), main
}

func age(main *querymodel.MainFromClause) expr.Node {
	return expr.Field(querymodel.Ref(main), "Age")
}

func name(main *querymodel.MainFromClause) expr.Node {
	return expr.Field(querymodel.Ref(main), "Name")
}

func TestCompile_GoldenSQL(t *testing.T) {
	compiler := NewSQLCompiler()

	testCases := []struct {
		name       string
		build      func(qm *querymodel.QueryModel, main *querymodel.MainFromClause)
		wantSQL    string
		wantParams []any
	}{
		{
			name:    "identity",
			build:   func(*querymodel.QueryModel, *querymodel.MainFromClause) {},
			wantSQL: `SELECT ` + allColumns + ` FROM "people" AS t0 ORDER BY t0."id" COLLATE BINARY ASC`,
		},
		{
			name: "where and member projection",
			build: func(qm *querymodel.QueryModel, main *querymodel.MainFromClause) {
				qm.AddBodyClause(&querymodel.WhereClause{Predicate: expr.Gt(age(main), expr.Const(18))})
				qm.SelectClause.Selector = name(main)
			},
			wantSQL:    `SELECT t0."name" AS "value" FROM "people" AS t0 WHERE (t0."age" > ?) ORDER BY t0."id" COLLATE BINARY ASC`,
			wantParams: []any{int64(18)},
		},
		{
			name: "two where clauses",
			build: func(qm *querymodel.QueryModel, main *querymodel.MainFromClause) {
				qm.AddBodyClause(&querymodel.WhereClause{Predicate: expr.Gt(age(main), expr.Const(1))})
				qm.AddBodyClause(&querymodel.WhereClause{Predicate: expr.Not(expr.Eq(name(main), expr.Const("bo")))})
				qm.SelectClause.Selector = age(main)
			},
			wantSQL:    `SELECT t0."age" AS "value" FROM "people" AS t0 WHERE (t0."age" > ?) AND (NOT (t0."name" = ?)) ORDER BY t0."id" COLLATE BINARY ASC`,
			wantParams: []any{int64(1), "bo"},
		},
		{
			name: "order by and take",
			build: func(qm *querymodel.QueryModel, main *querymodel.MainFromClause) {
				qm.AddBodyClause(&querymodel.OrderByClause{Orderings: []*querymodel.Ordering{
					{Expression: name(main), Direction: querymodel.Desc},
				}})
				qm.SelectClause.Selector = name(main)
				qm.AddResultOperator(&querymodel.TakeResultOperator{Count: expr.Const(2)})
			},
			wantSQL:    `SELECT t0."name" AS "value" FROM "people" AS t0 ORDER BY t0."name" COLLATE BINARY DESC, t0."id" COLLATE BINARY ASC LIMIT ?`,
			wantParams: []any{int64(2)},
		},
		{
			name: "skip without take",
			build: func(qm *querymodel.QueryModel, main *querymodel.MainFromClause) {
				qm.SelectClause.Selector = age(main)
				qm.AddResultOperator(&querymodel.SkipResultOperator{Count: expr.Const(3)})
			},
			wantSQL:    `SELECT t0."age" AS "value" FROM "people" AS t0 ORDER BY t0."id" COLLATE BINARY ASC LIMIT -1 OFFSET ?`,
			wantParams: []any{int64(3)},
		},
		{
			name: "count",
			build: func(qm *querymodel.QueryModel, main *querymodel.MainFromClause) {
				qm.AddBodyClause(&querymodel.WhereClause{Predicate: expr.Lt(age(main), expr.Const(18))})
				qm.AddResultOperator(&querymodel.CountResultOperator{})
			},
			wantSQL:    `SELECT COUNT(*) AS "value" FROM "people" AS t0 WHERE (t0."age" < ?)`,
			wantParams: []any{int64(18)},
		},
		{
			name: "count after take",
			build: func(qm *querymodel.QueryModel, main *querymodel.MainFromClause) {
				qm.SelectClause.Selector = name(main)
				qm.AddResultOperator(&querymodel.TakeResultOperator{Count: expr.Const(2)})
				qm.AddResultOperator(&querymodel.CountResultOperator{})
			},
			wantSQL: `SELECT COUNT(*) AS "value" FROM (SELECT t0."name" AS "value", ` +
				`ROW_NUMBER() OVER (ORDER BY t0."id" COLLATE BINARY ASC) AS "_ord" FROM "people" AS t0 ` +
				`ORDER BY t0."id" COLLATE BINARY ASC LIMIT ?) AS q1`,
			wantParams: []any{int64(2)},
		},
		{
			name: "sum",
			build: func(qm *querymodel.QueryModel, main *querymodel.MainFromClause) {
				qm.SelectClause.Selector = age(main)
				qm.AddResultOperator(&querymodel.SumResultOperator{})
			},
			wantSQL: `SELECT COALESCE(SUM(t0."age"), 0) AS "value" FROM "people" AS t0`,
		},
		{
			name: "anonymous projection",
			build: func(qm *querymodel.QueryModel, main *querymodel.MainFromClause) {
				qm.SelectClause.Selector = expr.NewCarrier([]string{"Who", "Next"},
					name(main), expr.Add(age(main), expr.Const(1)))
			},
			wantSQL:    `SELECT t0."name" AS "Who", (t0."age" + ?) AS "Next" FROM "people" AS t0 ORDER BY t0."id" COLLATE BINARY ASC`,
			wantParams: []any{int64(1)},
		},
		{
			name: "null comparison",
			build: func(qm *querymodel.QueryModel, main *querymodel.MainFromClause) {
				team := expr.Field(querymodel.Ref(main), "TeamID")
				qm.AddBodyClause(&querymodel.WhereClause{Predicate: expr.Eq(team, expr.ConstOf(nil, team.Type()))})
				qm.SelectClause.Selector = name(main)
			},
			wantSQL: `SELECT t0."name" AS "value" FROM "people" AS t0 WHERE (t0."team_id" IS NULL) ORDER BY t0."id" COLLATE BINARY ASC`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			qm, main := peopleModel()
			tc.build(qm, main)

			sql, params, err := compiler.Compile(qm)
			require.NoError(t, err)

			assert.Equal(t, tc.wantSQL, sql, "SQL mismatch")
			assert.Equal(t, tc.wantParams, params, "Parameters mismatch")
		})
	}
}

func TestCompile_OrderByMandatory(t *testing.T) {
	qm, main := peopleModel()
	qm.AddBodyClause(&querymodel.WhereClause{Predicate: expr.Gt(age(main), expr.Const(1))})

	sql, _, err := NewSQLCompiler().Compile(qm)
	require.NoError(t, err)
	assert.Contains(t, sql, "ORDER BY")
	assert.True(t, strings.HasSuffix(sql, `t0."id" COLLATE BINARY ASC`), sql)
}

func TestCompile_LaterOrderingIsPrimary(t *testing.T) {
	qm, main := peopleModel()
	qm.AddBodyClause(&querymodel.OrderByClause{Orderings: []*querymodel.Ordering{{Expression: age(main)}}})
	qm.AddBodyClause(&querymodel.OrderByClause{Orderings: []*querymodel.Ordering{{Expression: name(main)}}})

	sql, _, err := NewSQLCompiler().Compile(qm)
	require.NoError(t, err)
	assert.Contains(t, sql, `ORDER BY t0."name" COLLATE BINARY ASC, t0."age" ASC, t0."id" COLLATE BINARY ASC`)
}

func TestCompile_NoStringInterpolation(t *testing.T) {
	malicious := "'; DROP TABLE people; --"
	qm, main := peopleModel()
	qm.AddBodyClause(&querymodel.WhereClause{Predicate: expr.Eq(name(main), expr.Const(malicious))})

	sql, params, err := NewSQLCompiler().Compile(qm)
	require.NoError(t, err)
	assert.NotContains(t, sql, "DROP")
	assert.Equal(t, []any{malicious}, params)
}

func TestCompile_Deterministic(t *testing.T) {
	build := func() *querymodel.QueryModel {
		qm, main := peopleModel()
		qm.AddBodyClause(&querymodel.WhereClause{Predicate: expr.Gt(age(main), expr.Const(1))})
		qm.AddResultOperator(&querymodel.DistinctResultOperator{})
		return qm
	}
	sql1, _, err := NewSQLCompiler().Compile(build())
	require.NoError(t, err)
	sql2, _, err := NewSQLCompiler().Compile(build())
	require.NoError(t, err)
	assert.Equal(t, sql1, sql2)
}

func TestCompile_NilModel(t *testing.T) {
	_, _, err := NewSQLCompiler().Compile(nil)
	require.Error(t, err)
}

func TestCompile_Unsupported(t *testing.T) {
	tests := []struct {
		name  string
		build func() *querymodel.QueryModel
	}{
		{"slice source", func() *querymodel.QueryModel {
			main := querymodel.NewMainFromClause("x", personType, expr.Const([]person{}))
			return querymodel.NewIdentityQueryModel(main)
		}},
		{"reverse", func() *querymodel.QueryModel {
			qm, _ := peopleModel()
			qm.AddResultOperator(&querymodel.ReverseResultOperator{})
			return qm
		}},
		{"let clause", func() *querymodel.QueryModel {
			qm, main := peopleModel()
			qm.AddBodyClause(&querymodel.LetClause{Name: "a", Expression: age(main)})
			return qm
		}},
		{"whole row as value", func() *querymodel.QueryModel {
			qm, main := peopleModel()
			qm.AddBodyClause(&querymodel.WhereClause{Predicate: expr.Eq(querymodel.Ref(main), expr.Const(person{}))})
			return qm
		}},
		{"unknown column", func() *querymodel.QueryModel {
			qm, main := peopleModel()
			qm.SelectClause.Selector = expr.FieldOf(querymodel.Ref(main), "Email", reflect.TypeFor[string]())
			return qm
		}},
		{"sum of records", func() *querymodel.QueryModel {
			qm, _ := peopleModel()
			qm.AddResultOperator(&querymodel.SumResultOperator{})
			return qm
		}},
		{"operator after single value", func() *querymodel.QueryModel {
			qm, _ := peopleModel()
			qm.AddResultOperator(&querymodel.CountResultOperator{})
			qm.AddResultOperator(&querymodel.DistinctResultOperator{})
			return qm
		}},
		{"non-constant take", func() *querymodel.QueryModel {
			qm, main := peopleModel()
			qm.AddResultOperator(&querymodel.TakeResultOperator{Count: age(main)})
			return qm
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := NewSQLCompiler().Compile(tt.build())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrUnsupported)
		})
	}
}

func TestCompileQuery_Shape(t *testing.T) {
	tests := []struct {
		name  string
		op    querymodel.ResultOperator
		shape Shape
	}{
		{"sequence", nil, ShapeSequence},
		{"first", &querymodel.FirstResultOperator{}, ShapeSingle},
		{"single", &querymodel.SingleResultOperator{ReturnDefaultWhenEmpty: true}, ShapeSingle},
		{"any", &querymodel.AnyResultOperator{}, ShapeScalar},
		{"long count", &querymodel.LongCountResultOperator{}, ShapeScalar},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qm, _ := peopleModel()
			if tt.op != nil {
				qm.AddResultOperator(tt.op)
			}
			q, err := NewSQLCompiler().CompileQuery(qm)
			require.NoError(t, err)
			assert.Equal(t, tt.shape, q.Shape)
		})
	}
}

func TestColumns(t *testing.T) {
	type row struct {
		ID       int `db:"id"`
		UserID   int
		HTTPPort int
		Skipped  string `db:"-"`
		internal int
	}
	cols, err := Columns(reflect.TypeFor[*row]())
	require.NoError(t, err)
	assert.Equal(t, []Column{
		{Field: "ID", Name: "id"},
		{Field: "UserID", Name: "user_id"},
		{Field: "HTTPPort", Name: "http_port"},
	}, cols)

	_, err = Columns(reflect.TypeFor[int]())
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestTable(t *testing.T) {
	assert.Equal(t, personType, people.ElementType())
	assert.Equal(t, "people", people.TableName())
	assert.Equal(t, DefaultKeyColumn, Table[person]{Name: "p"}.KeyColumn())
	assert.True(t, expr.IsSequence(reflect.TypeOf(people)))
}
