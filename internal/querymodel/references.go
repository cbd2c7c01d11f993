package querymodel

import (
	"reflect"

	"github.com/roach88/chainql/internal/expr"
)

// QuerySourceReference stands for the current item of a clause. Two
// references are the same when they point at the same clause.
type QuerySourceReference struct {
	expr.ExtensionNode
	Source QuerySource
}

// Ref creates a reference to source.
func Ref(source QuerySource) *QuerySourceReference {
	return &QuerySourceReference{Source: source}
}

func (r *QuerySourceReference) Type() reflect.Type { return r.Source.ItemType() }

func (r *QuerySourceReference) String() string { return "[" + r.Source.ItemName() + "]" }

func (r *QuerySourceReference) Children() []expr.Node { return nil }

func (r *QuerySourceReference) WithChildren([]expr.Node) expr.Node { return r }

// Equal reports whether both references point at the same clause.
func (r *QuerySourceReference) Equal(other expr.Node) bool {
	o, ok := other.(*QuerySourceReference)
	return ok && r.Source == o.Source
}

// SubQuery embeds a nested query model in an expression. Its type is the
// output type of the nested model.
type SubQuery struct {
	expr.ExtensionNode
	Model *QueryModel
}

// NewSubQuery wraps model.
func NewSubQuery(model *QueryModel) *SubQuery {
	return &SubQuery{Model: model}
}

func (s *SubQuery) Type() reflect.Type {
	info, err := s.Model.OutputDataInfo()
	if err != nil {
		return expr.AnyType
	}
	return info.DataType()
}

func (s *SubQuery) String() string { return "{" + s.Model.String() + "}" }

func (s *SubQuery) Children() []expr.Node { return nil }

func (s *SubQuery) WithChildren([]expr.Node) expr.Node { return s }

// Equal compares the nested models structurally.
func (s *SubQuery) Equal(other expr.Node) bool {
	o, ok := other.(*SubQuery)
	return ok && s.Model.String() == o.Model.String()
}

// Eval executes the nested model in memory. References to enclosing
// clauses are resolved through env.
func (s *SubQuery) Eval(env expr.Env) (any, error) {
	out, err := Execute(s.Model, env)
	if err != nil {
		return nil, err
	}
	return out.Value, nil
}

// ReferencedSources returns the distinct sources referenced anywhere in n,
// including inside nested models, in order of first appearance.
func ReferencedSources(n expr.Node) []QuerySource {
	var out []QuerySource
	seen := make(map[QuerySource]bool)
	var visit func(expr.Node)
	visit = func(n expr.Node) {
		expr.Inspect(n, func(n expr.Node) bool {
			switch n := n.(type) {
			case *QuerySourceReference:
				if !seen[n.Source] {
					seen[n.Source] = true
					out = append(out, n.Source)
				}
			case *SubQuery:
				n.Model.ForEachExpression(visit)
			}
			return true
		})
	}
	visit(n)
	return out
}

// ReferencesSource reports whether n refers to source, including from
// inside nested models.
func ReferencesSource(n expr.Node, source QuerySource) bool {
	for _, s := range ReferencedSources(n) {
		if s == source {
			return true
		}
	}
	return false
}
