package preprocess

import (
	"errors"
	"reflect"

	"github.com/roach88/chainql/internal/expr"
)

// EvaluationFailure marks a subtree whose constant folding failed. It keeps
// the error and the subtree with its children folded as far as they could
// be, so sibling subtrees are unaffected. Evaluating the node returns Err.
//
// The partially folded subtree is data, not a child: traversals do not
// descend into it, which keeps re-running the preprocessor a no-op.
type EvaluationFailure struct {
	expr.ExtensionNode
	Err  error
	Expr expr.Node
}

func (f *EvaluationFailure) Type() reflect.Type { return f.Expr.Type() }

func (f *EvaluationFailure) String() string {
	return "Failed(" + expr.Format(f.Expr) + ": " + f.Err.Error() + ")"
}

func (f *EvaluationFailure) Children() []expr.Node { return nil }

func (f *EvaluationFailure) WithChildren([]expr.Node) expr.Node { return f }

// Eval re-surfaces the captured error.
func (f *EvaluationFailure) Eval(expr.Env) (any, error) { return nil, f.Err }

// Equal compares failures by their subtree and error text.
func (f *EvaluationFailure) Equal(other expr.Node) bool {
	o, ok := other.(*EvaluationFailure)
	return ok && f.Err.Error() == o.Err.Error() && expr.Equal(f.Expr, o.Expr)
}

// Failures returns every failure node in n, in pre-order.
func Failures(n expr.Node) []*EvaluationFailure {
	var out []*EvaluationFailure
	expr.Inspect(n, func(n expr.Node) bool {
		if f, ok := n.(*EvaluationFailure); ok {
			out = append(out, f)
		}
		return true
	})
	return out
}

// FailureError joins the errors of every failure in n, or returns nil.
func FailureError(n expr.Node) error {
	var errs []error
	for _, f := range Failures(n) {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}
