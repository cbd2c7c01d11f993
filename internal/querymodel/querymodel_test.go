package querymodel

import (
	"errors"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainql/internal/expr"
)

type person struct {
	Id       int
	Name     string
	Age      int
	Children []person
}

var personType = reflect.TypeFor[person]()

var people = []person{
	{Id: 1, Name: "ann", Age: 40, Children: []person{{Name: "bo", Age: 10}, {Name: "cy", Age: 12}}},
	{Id: 2, Name: "dan", Age: 4},
	{Id: 3, Name: "eve", Age: 33, Children: []person{{Name: "fay", Age: 2}}},
}

// fromPeople builds "from p in people".
func fromPeople(name string) *MainFromClause {
	return NewMainFromClause(name, personType, expr.Const(people))
}

// nestedModel builds:
//
//	from p in people
//	where ([p].Age > 5)
//	from c in [p].Children
//	select new {p = [p], c = [c]}
func nestedModel() *QueryModel {
	main := fromPeople("p")
	qm := NewIdentityQueryModel(main)
	qm.AddBodyClause(&WhereClause{Predicate: expr.Gt(expr.Field(Ref(main), "Age"), expr.Const(5))})
	kids := NewAdditionalFromClause("c", personType, expr.Field(Ref(main), "Children"))
	qm.AddBodyClause(kids)
	qm.SelectClause.Selector = expr.NewCarrier([]string{"p", "c"}, Ref(main), Ref(kids))
	return qm
}

// correlatedModel builds:
//
//	from x in people
//	select {from y in people where ([y].Id == [x].Id) select [y]}
func correlatedModel() (*QueryModel, *QueryModel) {
	outerMain := fromPeople("x")
	outer := NewIdentityQueryModel(outerMain)
	innerMain := fromPeople("y")
	inner := NewIdentityQueryModel(innerMain)
	inner.AddBodyClause(&WhereClause{Predicate: expr.Eq(expr.Field(Ref(innerMain), "Id"), expr.Field(Ref(outerMain), "Id"))})
	outer.SelectClause.Selector = NewSubQuery(inner)
	return outer, inner
}

func allReferencedSources(qm *QueryModel) []QuerySource {
	var out []QuerySource
	qm.ForEachExpression(func(n expr.Node) {
		out = append(out, ReferencedSources(n)...)
	})
	return out
}

func TestQueryModel_String(t *testing.T) {
	qm := nestedModel()
	qm.AddResultOperator(&CountResultOperator{})

	assert.Equal(t,
		"from p in value([]querymodel.person) where ([p].Age > 5) from c in [p].Children select new {p = [p], c = [c]} => Count()",
		qm.String())
}

func TestQueryModel_OutputDataInfo(t *testing.T) {
	tests := []struct {
		name string
		ops  []ResultOperator
		want StreamedDataInfo
	}{
		{
			name: "no operators",
			want: &StreamedSequenceInfo{Type: reflect.TypeFor[[]person]()},
		},
		{
			name: "count",
			ops:  []ResultOperator{&CountResultOperator{}},
			want: &StreamedScalarValueInfo{Type: expr.IntType},
		},
		{
			name: "first or default",
			ops:  []ResultOperator{&FirstResultOperator{ReturnDefaultWhenEmpty: true}},
			want: &StreamedSingleValueInfo{Type: personType, ReturnDefaultWhenEmpty: true},
		},
		{
			name: "take then count",
			ops:  []ResultOperator{&TakeResultOperator{Count: expr.Const(1)}, &LongCountResultOperator{}},
			want: &StreamedScalarValueInfo{Type: reflect.TypeFor[int64]()},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			qm := NewIdentityQueryModel(fromPeople("p"))
			for _, op := range tt.ops {
				qm.AddResultOperator(op)
			}
			info, err := qm.OutputDataInfo()
			require.NoError(t, err)
			assert.Equal(t, tt.want.DataType(), info.DataType())
			assert.IsType(t, tt.want, info)
		})
	}

	t.Run("operator after scalar fails", func(t *testing.T) {
		qm := NewIdentityQueryModel(fromPeople("p"))
		qm.AddResultOperator(&CountResultOperator{})
		qm.AddResultOperator(&DistinctResultOperator{})
		_, err := qm.OutputDataInfo()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Distinct")
	})
}

func TestQueryModel_IsIdentityQuery(t *testing.T) {
	assert.True(t, NewIdentityQueryModel(fromPeople("p")).IsIdentityQuery())
	assert.False(t, nestedModel().IsIdentityQuery())
}

func TestClone_RoundTrip(t *testing.T) {
	original := nestedModel()
	original.AddResultOperator(&TakeResultOperator{Count: expr.Const(2)})

	clone, err := original.Clone(nil)
	require.NoError(t, err)

	assert.Equal(t, original.String(), clone.String())
	require.Len(t, clone.BodyClauses, 2)
	require.Len(t, clone.ResultOperators, 1)
	assert.NotSame(t, original.MainFromClause, clone.MainFromClause)
	assert.NotSame(t, original.BodyClauses[0], clone.BodyClauses[0])
	assert.NotSame(t, original.ResultOperators[0], clone.ResultOperators[0])

	own := make(map[QuerySource]bool)
	for _, s := range clone.QuerySources() {
		own[s] = true
	}
	for _, s := range allReferencedSources(clone) {
		assert.True(t, own[s], "clone references %s outside itself", s.ItemName())
	}

	result := Validate(clone)
	assert.True(t, result.IsValid, result.Violations)
}

func TestClone_MutatingCloneLeavesOriginal(t *testing.T) {
	original := nestedModel()
	clone, err := original.Clone(nil)
	require.NoError(t, err)

	clone.MainFromClause.FromExpression = expr.Const([]person{})
	clone.MainFromClause.Name = "q"
	clone.BodyClauses[0].(*WhereClause).Predicate = expr.Const(true)

	assert.Equal(t, "p", original.MainFromClause.Name)
	assert.Equal(t, expr.Format(expr.Const(people)), expr.Format(original.MainFromClause.FromExpression))
	assert.Equal(t, "([p].Age > 5)", expr.Format(original.BodyClauses[0].(*WhereClause).Predicate))
}

func TestClone_NestedSubqueryReferencesRemapped(t *testing.T) {
	original, originalInner := correlatedModel()
	originalWhere := originalInner.BodyClauses[0].(*WhereClause).Predicate

	clone, err := original.Clone(nil)
	require.NoError(t, err)

	sq, ok := clone.SelectClause.Selector.(*SubQuery)
	require.True(t, ok)
	assert.NotSame(t, originalInner, sq.Model)

	refs := ReferencedSources(sq.Model.BodyClauses[0].(*WhereClause).Predicate)
	require.Len(t, refs, 2)
	assert.Same(t, sq.Model.MainFromClause, refs[0], "inner reference points at the cloned inner clause")
	assert.Same(t, clone.MainFromClause, refs[1], "outer reference points at the cloned outer clause")

	assert.Same(t, originalWhere, originalInner.BodyClauses[0].(*WhereClause).Predicate, "original subquery untouched")
	assert.True(t, ReferencesSource(original.SelectClause.Selector, original.MainFromClause))
}

func TestClone_KeepsReferencesToEnclosingQuery(t *testing.T) {
	_, inner := correlatedModel()

	clone, err := inner.Clone(nil)
	require.NoError(t, err)

	refs := ReferencedSources(clone.BodyClauses[0].(*WhereClause).Predicate)
	require.Len(t, refs, 2)
	assert.Same(t, clone.MainFromClause, refs[0])
	assert.Equal(t, "x", refs[1].ItemName(), "reference outside the cloned model is kept")
}

func TestClone_DuplicateBinding(t *testing.T) {
	qm := nestedModel()
	mapping := NewQuerySourceMapping()
	require.NoError(t, mapping.AddMapping(qm.MainFromClause, expr.Const(1)))

	_, err := qm.Clone(mapping)

	require.Error(t, err)
	assert.True(t, IsDuplicateBindingError(err))
}

func TestQuerySourceMapping(t *testing.T) {
	a := fromPeople("a")
	b := fromPeople("b")

	t.Run("add is write once", func(t *testing.T) {
		m := NewQuerySourceMapping()
		require.NoError(t, m.AddMapping(a, Ref(b)))
		err := m.AddMapping(a, Ref(b))
		require.Error(t, err)
		assert.True(t, IsDuplicateBindingError(err))
		assert.Contains(t, err.Error(), "DUPLICATE_BINDING")
	})

	t.Run("replace requires entry", func(t *testing.T) {
		m := NewQuerySourceMapping()
		err := m.ReplaceMapping(a, Ref(b))
		require.Error(t, err)
		assert.True(t, IsMissingBindingError(err))

		require.NoError(t, m.AddMapping(a, Ref(a)))
		require.NoError(t, m.ReplaceMapping(a, Ref(b)))
		got, err := m.GetExpression(a)
		require.NoError(t, err)
		assert.Same(t, QuerySource(b), got.(*QuerySourceReference).Source)
	})

	t.Run("get missing", func(t *testing.T) {
		_, err := NewQuerySourceMapping().GetExpression(a)
		require.Error(t, err)
		assert.True(t, IsMissingBindingError(err))
	})
}

func TestReplaceClauseReferences(t *testing.T) {
	a := fromPeople("a")
	b := fromPeople("b")
	n := expr.And(
		expr.Gt(expr.Field(Ref(a), "Age"), expr.Const(1)),
		expr.Gt(expr.Field(Ref(b), "Age"), expr.Const(2)),
	)
	m := NewQuerySourceMapping()
	require.NoError(t, m.AddMapping(a, expr.Const(person{Age: 7})))

	t.Run("partial mapping tolerated", func(t *testing.T) {
		out, err := ReplaceClauseReferences(n, m, false)
		require.NoError(t, err)
		assert.Equal(t, "((value(querymodel.person).Age > 1) && ([b].Age > 2))", expr.Format(out))
	})

	t.Run("partial mapping rejected", func(t *testing.T) {
		_, err := ReplaceClauseReferences(n, m, true)
		require.Error(t, err)
		assert.True(t, IsUnresolvedQuerySourceError(err))
		var me *MappingError
		require.True(t, errors.As(err, &me))
		assert.Equal(t, "b", me.Source)
	})

	t.Run("subquery own clauses need no mapping", func(t *testing.T) {
		outer, _ := correlatedModel()
		mm := NewQuerySourceMapping()
		require.NoError(t, mm.AddMapping(outer.MainFromClause, Ref(a)))

		out, err := ReplaceClauseReferences(outer.SelectClause.Selector, mm, true)
		require.NoError(t, err)

		sq, ok := out.(*SubQuery)
		require.True(t, ok)
		refs := ReferencedSources(sq.Model.BodyClauses[0].(*WhereClause).Predicate)
		require.Len(t, refs, 2)
		assert.Same(t, sq.Model.MainFromClause, refs[0])
		assert.Same(t, QuerySource(a), refs[1])
	})

	t.Run("input model is not modified", func(t *testing.T) {
		outer, inner := correlatedModel()
		before := outer.String()
		mm := NewQuerySourceMapping()
		require.NoError(t, mm.AddMapping(outer.MainFromClause, Ref(fromPeople("z"))))

		out, err := ReplaceClauseReferences(outer.SelectClause.Selector, mm, false)
		require.NoError(t, err)
		assert.Contains(t, out.String(), "([y].Id == [z].Id)")
		assert.Equal(t, before, outer.String())
		assert.Same(t, inner, outer.SelectClause.Selector.(*SubQuery).Model)
	})

	t.Run("failure leaves input intact", func(t *testing.T) {
		outer, _ := correlatedModel()
		before := outer.String()
		mm := NewQuerySourceMapping()
		require.NoError(t, mm.AddMapping(b, Ref(a)))

		_, err := ReplaceClauseReferences(outer.SelectClause.Selector, mm, true)
		require.Error(t, err)
		assert.True(t, IsUnresolvedQuerySourceError(err))
		assert.Equal(t, before, outer.String())
	})

	t.Run("untouched subquery is kept", func(t *testing.T) {
		outer, _ := correlatedModel()
		out, err := ReplaceClauseReferences(outer.SelectClause.Selector, m, false)
		require.NoError(t, err)
		assert.Same(t, outer.SelectClause.Selector, out)
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid nested model", func(t *testing.T) {
		result := Validate(nestedModel())
		assert.True(t, result.IsValid)
		assert.Empty(t, result.Violations)
	})

	t.Run("valid correlated subquery", func(t *testing.T) {
		outer, _ := correlatedModel()
		result := Validate(outer)
		assert.True(t, result.IsValid, result.Violations)
	})

	t.Run("forward reference", func(t *testing.T) {
		main := fromPeople("p")
		qm := NewIdentityQueryModel(main)
		kids := NewAdditionalFromClause("c", personType, expr.Field(Ref(main), "Children"))
		qm.AddBodyClause(&WhereClause{Predicate: expr.Gt(expr.Field(Ref(kids), "Age"), expr.Const(1))})
		qm.AddBodyClause(kids)

		result := Validate(qm)

		assert.False(t, result.IsValid)
		require.Len(t, result.Violations, 1)
		assert.Contains(t, result.Violations[0], "references [c]")
	})

	t.Run("foreign reference in subquery", func(t *testing.T) {
		_, inner := correlatedModel()
		result := Validate(inner)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Violations[0], "[x]")
	})

	t.Run("empty orderby", func(t *testing.T) {
		qm := NewIdentityQueryModel(fromPeople("p"))
		qm.AddBodyClause(&OrderByClause{})
		result := Validate(qm)
		assert.False(t, result.IsValid)
		assert.Contains(t, result.Violations[0], "orderby without orderings")
	})
}

func TestFingerprint(t *testing.T) {
	original := nestedModel()
	clone, err := original.Clone(nil)
	require.NoError(t, err)

	f1, err := Fingerprint(original)
	require.NoError(t, err)
	f2, err := Fingerprint(clone)
	require.NoError(t, err)
	assert.Equal(t, f1, f2)
	assert.Len(t, f1, 64)

	clone.AddResultOperator(&CountResultOperator{})
	f3, err := Fingerprint(clone)
	require.NoError(t, err)
	assert.NotEqual(t, f1, f3)
}

func TestMarshalCanonical(t *testing.T) {
	data, err := MarshalCanonical(map[string]any{"b": 1, "a": []any{"x<y", true}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x<y",true],"b":1}`, string(data))

	_, err = MarshalCanonical(map[string]any{"f": 1.5})
	assert.Error(t, err)
}
