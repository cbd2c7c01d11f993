package preprocess

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainql/internal/expr"
)

type person struct {
	Name string
	Age  int
}

var personType = reflect.TypeFor[person]()

var upper = &expr.Method{Declaring: "strings", Name: "ToUpper", Func: strings.ToUpper}

func TestPartialEvaluation_FoldsIndependentSubtrees(t *testing.T) {
	x := expr.Param("x", personType)
	// x => x.Age > (2 + 3)
	in := expr.Lam(expr.Gt(expr.Field(x, "Age"), expr.Add(expr.Const(2), expr.Const(3))), x)

	out, err := NewPartialEvaluatingProcessor(nil).Process(in)

	require.NoError(t, err)
	assert.Equal(t, "x => (x.Age > 5)", expr.Format(out))
	assert.Equal(t, "x => (x.Age > (2 + 3))", expr.Format(in), "input must not be mutated")
}

func TestPartialEvaluation_FoldsCalls(t *testing.T) {
	x := expr.Param("x", personType)
	in := expr.Lam(expr.Eq(expr.Field(x, "Name"), expr.StaticCall(upper, reflect.TypeFor[string](), expr.Const("ann"))), x)

	out, err := NewPartialEvaluatingProcessor(nil).Process(in)

	require.NoError(t, err)
	assert.Equal(t, `x => (x.Name == "ANN")`, expr.Format(out))
}

func TestPartialEvaluation_FilterExcludesMethods(t *testing.T) {
	call := expr.StaticCall(upper, reflect.TypeFor[string](), expr.Const("ann"))

	out, err := NewPartialEvaluatingProcessor(ExcludeMethods(upper.Signature())).Process(call)

	require.NoError(t, err)
	assert.Same(t, call, out)
}

func TestPartialEvaluation_FailureIsContained(t *testing.T) {
	x := expr.Param("x", personType)
	failing := expr.Bin(expr.OpDiv, expr.Const(1), expr.Const(0))
	// x => (x.Age > (1 / 0)) && (x.Age < (4 + 4))
	in := expr.Lam(expr.And(
		expr.Gt(expr.Field(x, "Age"), failing),
		expr.Lt(expr.Field(x, "Age"), expr.Add(expr.Const(4), expr.Const(4))),
	), x)

	out, err := NewPartialEvaluatingProcessor(nil).Process(in)

	require.NoError(t, err, "a failed fold must not abort preprocessing")
	failures := Failures(out)
	require.Len(t, failures, 1)
	assert.True(t, errors.Is(failures[0].Err, expr.ErrDivideByZero))
	assert.Equal(t, expr.IntType, failures[0].Type())
	assert.Contains(t, expr.Format(out), "(x.Age < 8)", "sibling subtree still folds")

	_, evalErr := expr.Eval(failures[0], nil)
	assert.True(t, errors.Is(evalErr, expr.ErrDivideByZero), "consumers re-surface the failure")
	assert.True(t, errors.Is(FailureError(out), expr.ErrDivideByZero))
}

func TestPartialEvaluation_FailureKeepsPartiallyFoldedChildren(t *testing.T) {
	// (1 / 0) + (2 + 3) fails as a whole; the right operand still folds.
	in := expr.Add(expr.Bin(expr.OpDiv, expr.Const(1), expr.Const(0)), expr.Add(expr.Const(2), expr.Const(3)))

	out, err := NewPartialEvaluatingProcessor(nil).Process(in)

	require.NoError(t, err)
	f, ok := out.(*EvaluationFailure)
	require.True(t, ok)
	bin, ok := f.Expr.(*expr.Binary)
	require.True(t, ok)
	assert.IsType(t, &EvaluationFailure{}, bin.X)
	assert.Equal(t, "5", expr.Format(bin.Y))
}

func TestTransformingProcessor_BuiltInRules(t *testing.T) {
	x := expr.Param("x", personType)
	y := expr.Param("y", expr.IntType)

	tests := []struct {
		name string
		in   expr.Node
		want string
	}{
		{
			name: "double negation",
			in:   expr.Lam(expr.Not(expr.Not(expr.Gt(expr.Field(x, "Age"), expr.Const(1)))), x),
			want: "x => (x.Age > 1)",
		},
		{
			name: "triple negation keeps one",
			in:   expr.Lam(expr.Not(expr.Not(expr.Not(expr.Eq(expr.Field(x, "Age"), expr.Const(1))))), x),
			want: "x => !(x.Age == 1)",
		},
		{
			name: "redundant convert",
			in:   expr.Lam(expr.Convert(expr.Field(x, "Age"), expr.IntType), x),
			want: "x => x.Age",
		},
		{
			name: "invoked lambda",
			in:   expr.Lam(expr.InvokeOf(expr.Lam(expr.Add(y, expr.Const(1)), y), expr.Field(x, "Age")), x),
			want: "x => (x.Age + 1)",
		},
		{
			name: "rules compose after inlining",
			in: expr.Lam(expr.InvokeOf(
				expr.Lam(expr.Not(expr.Not(expr.Gt(y, expr.Const(0)))), y),
				expr.Field(x, "Age"),
			), x),
			want: "x => (x.Age > 0)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := NewTransformingProcessor(DefaultTransformers(), 0).Process(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, expr.Format(out))
		})
	}
}

func TestTransformingProcessor_RewriteLimit(t *testing.T) {
	// Two rules that undo each other never settle.
	flip := func(from, to expr.BinaryOp) Rule {
		return Rule{
			RuleName: "flip",
			Kinds:    []expr.Kind{expr.KindBinary},
			Apply: func(n expr.Node) expr.Node {
				b := n.(*expr.Binary)
				if b.Op != from {
					return n
				}
				return expr.Bin(to, b.X, b.Y)
			},
		}
	}
	reg := NewTransformerRegistry()
	reg.Register(flip(expr.OpLt, expr.OpGt))
	reg.Register(flip(expr.OpGt, expr.OpLt))

	_, err := NewTransformingProcessor(reg, 5).Process(expr.Lt(expr.Const(1), expr.Const(2)))

	require.Error(t, err)
	assert.True(t, IsRewriteLimitError(err))
	var limitErr *RewriteLimitError
	require.True(t, errors.As(err, &limitErr))
	assert.Equal(t, 6, limitErr.Attempts)
}

func TestTransformerRegistry(t *testing.T) {
	reg := DefaultTransformers()

	assert.Equal(t, 3, reg.RegisteredCount())
	assert.Len(t, reg.GetTransformers(expr.Not(expr.Const(true))), 2)
	assert.Empty(t, reg.GetTransformers(expr.Const(1)))
}

func TestDefaultPipeline_Idempotent(t *testing.T) {
	x := expr.Param("x", personType)
	y := expr.Param("y", expr.IntType)
	in := expr.Lam(expr.And(
		expr.Not(expr.Not(expr.Gt(expr.Field(x, "Age"), expr.Add(expr.Const(1), expr.Const(2))))),
		expr.Or(
			expr.Eq(expr.InvokeOf(expr.Lam(expr.Add(y, expr.Const(1)), y), expr.Const(2)), expr.Const(3)),
			expr.Eq(expr.Bin(expr.OpMod, expr.Const(1), expr.Const(0)), expr.Field(x, "Age")),
		),
	), x)
	pipeline := Default(nil)

	once, err := pipeline.Process(in)
	require.NoError(t, err)
	twice, err := pipeline.Process(once)
	require.NoError(t, err)

	assert.True(t, expr.Equal(once, twice), "once: %s\ntwice: %s", once, twice)
	assert.Equal(t, expr.Format(once), expr.Format(twice))
}
