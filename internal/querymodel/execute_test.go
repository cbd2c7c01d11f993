package querymodel

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainql/internal/expr"
)

func TestExecute_Pipeline(t *testing.T) {
	// from p in people where p.Age > 5 from c in p.Children
	// orderby c.Age desc select c.Name
	qm := nestedModel()
	kids := qm.BodyClauses[1].(*AdditionalFromClause)
	qm.AddBodyClause(&OrderByClause{Orderings: []*Ordering{
		{Expression: expr.Field(Ref(kids), "Age"), Direction: Desc},
	}})
	qm.SelectClause.Selector = expr.Field(Ref(kids), "Name")

	out, err := Execute(qm, nil)

	require.NoError(t, err)
	assert.Equal(t, []any{"cy", "bo", "fay"}, out.Value)
}

func TestExecute_Let(t *testing.T) {
	main := fromPeople("p")
	qm := NewIdentityQueryModel(main)
	double := &LetClause{Name: "d", Expression: expr.Add(expr.Field(Ref(main), "Age"), expr.Field(Ref(main), "Age"))}
	qm.AddBodyClause(double)
	qm.AddBodyClause(&WhereClause{Predicate: expr.Gt(Ref(double), expr.Const(10))})
	qm.SelectClause.Selector = Ref(double)

	out, err := Execute(qm, nil)

	require.NoError(t, err)
	assert.Equal(t, []any{80, 66}, out.Value)
}

func TestExecute_CorrelatedSubquery(t *testing.T) {
	outer, inner := correlatedModel()
	inner.AddResultOperator(&CountResultOperator{})

	out, err := Execute(outer, nil)

	require.NoError(t, err)
	assert.Equal(t, []any{1, 1, 1}, out.Value)
}

func TestExecute_UnresolvedReference(t *testing.T) {
	_, inner := correlatedModel()

	_, err := Execute(inner, nil)

	require.Error(t, err)
	assert.True(t, IsUnresolvedQuerySourceError(err))
}

func ages() *QueryModel {
	main := fromPeople("p")
	qm := NewIdentityQueryModel(main)
	qm.SelectClause.Selector = expr.Field(Ref(main), "Age")
	return qm
}

func TestResultOperators_Execute(t *testing.T) {
	tests := []struct {
		name string
		ops  []ResultOperator
		want any
	}{
		{"count", []ResultOperator{&CountResultOperator{}}, 3},
		{"long count", []ResultOperator{&LongCountResultOperator{}}, int64(3)},
		{"sum", []ResultOperator{&SumResultOperator{}}, 77},
		{"min", []ResultOperator{&MinResultOperator{}}, 4},
		{"max", []ResultOperator{&MaxResultOperator{}}, 40},
		{"average", []ResultOperator{&TakeResultOperator{Count: expr.Const(2)}, &AverageResultOperator{}}, 22.0},
		{"any", []ResultOperator{&AnyResultOperator{}}, true},
		{"contains", []ResultOperator{&ContainsResultOperator{Item: expr.Const(33)}}, true},
		{"first", []ResultOperator{&FirstResultOperator{}}, 40},
		{"last", []ResultOperator{&LastResultOperator{}}, 33},
		{"skip take", []ResultOperator{&SkipResultOperator{Count: expr.Const(1)}, &TakeResultOperator{Count: expr.Const(1)}}, []any{4}},
		{"reverse", []ResultOperator{&ReverseResultOperator{}}, []any{33, 4, 40}},
		{"concat distinct", []ResultOperator{
			&ConcatResultOperator{Source2: expr.Const([]int{4, 5})},
			&DistinctResultOperator{},
		}, []any{40, 4, 33, 5}},
		{"union", []ResultOperator{&UnionResultOperator{Source2: expr.Const([]int{40, 1})}}, []any{40, 4, 33, 1}},
		{"cast", []ResultOperator{&CastResultOperator{CastItemType: reflect.TypeFor[float64]()}}, []any{40.0, 4.0, 33.0}},
		{"of type", []ResultOperator{&OfTypeResultOperator{SearchedItemType: reflect.TypeFor[string]()}}, []any{}},
		{"skip all then default", []ResultOperator{
			&SkipResultOperator{Count: expr.Const(10)},
			&DefaultIfEmptyResultOperator{OptionalDefaultValue: expr.Const(-1)},
		}, []any{-1}},
		{"first or default on empty", []ResultOperator{
			&SkipResultOperator{Count: expr.Const(10)},
			&FirstResultOperator{ReturnDefaultWhenEmpty: true},
		}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qm := ages()
			for _, op := range tt.ops {
				qm.AddResultOperator(op)
			}
			out, err := Execute(qm, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Value)

			info, err := qm.OutputDataInfo()
			require.NoError(t, err)
			assert.Equal(t, info.DataType(), out.Info.DataType())
		})
	}
}

func TestResultOperators_ExecuteErrors(t *testing.T) {
	empty := StreamedData{
		Info:  &StreamedSequenceInfo{Type: reflect.TypeFor[[]int](), ItemExpression: expr.Param("i", expr.IntType)},
		Value: []any{},
	}
	two := StreamedData{Info: empty.Info, Value: []any{1, 2}}

	tests := []struct {
		name string
		op   ResultOperator
		in   StreamedData
		want error
	}{
		{"first on empty", &FirstResultOperator{}, empty, ErrEmptySequence},
		{"min on empty", &MinResultOperator{}, empty, ErrEmptySequence},
		{"average on empty", &AverageResultOperator{}, empty, ErrEmptySequence},
		{"single on two", &SingleResultOperator{}, two, ErrMoreThanOneElement},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.op.ExecuteInMemory(tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want))
		})
	}

	t.Run("scalar input rejected", func(t *testing.T) {
		_, err := (&CountResultOperator{}).ExecuteInMemory(StreamedData{Info: &StreamedScalarValueInfo{Type: expr.IntType}, Value: 3})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "input must be a sequence")
	})
}

func TestResultOperators_PredicateOverItemExpression(t *testing.T) {
	main := fromPeople("p")
	kidsExpr := expr.Field(Ref(main), "Children")

	t.Run("all over projected member", func(t *testing.T) {
		qm := ages()
		ageExpr := qm.SelectClause.Selector
		qm.AddResultOperator(&AllResultOperator{Predicate: expr.Gt(ageExpr, expr.Const(3))})

		out, err := Execute(qm, nil)
		require.NoError(t, err)
		assert.Equal(t, true, out.Value)
	})

	t.Run("group by over carrier member", func(t *testing.T) {
		qm := NewIdentityQueryModel(main)
		qm.SelectClause.Selector = expr.NewCarrier([]string{"p"}, Ref(main))
		qm.AddResultOperator(&GroupResultOperator{
			GroupName:       "g",
			KeySelector:     expr.Gt(expr.Len(kidsExpr), expr.Const(0)),
			ElementSelector: expr.Field(Ref(main), "Name"),
		})

		out, err := Execute(qm, nil)
		require.NoError(t, err)
		assert.Equal(t, []any{
			expr.Grouping{Key: true, Items: []any{"ann", "eve"}},
			expr.Grouping{Key: false, Items: []any{"dan"}},
		}, out.Value)
	})
}
