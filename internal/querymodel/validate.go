package querymodel

import (
	"fmt"

	"github.com/roach88/chainql/internal/expr"
)

// ValidationResult contains the structural analysis of a query model.
type ValidationResult struct {
	// IsValid indicates that no violation was found.
	IsValid bool

	// Violations lists every problem found, in pipeline order.
	Violations []string
}

// Validate checks the structural invariants of a model:
//  1. The main from clause and the select clause are present
//  2. Every reference inside a clause targets the main source or a body
//     clause strictly before it (or a clause of an enclosing model)
//  3. Order-by clauses have at least one ordering
//  4. Every result operator accepts the shape produced before it
//
// Nested models are validated with the enclosing model's visible clauses
// in scope. Validate is a pure function with no side effects.
func Validate(qm *QueryModel) ValidationResult {
	v := &validator{violations: []string{}}
	v.validateModel(qm, nil, "")
	return ValidationResult{
		IsValid:    len(v.violations) == 0,
		Violations: v.violations,
	}
}

// validator accumulates violations during traversal.
type validator struct {
	violations []string
}

func (v *validator) addViolation(format string, args ...any) {
	v.violations = append(v.violations, fmt.Sprintf(format, args...))
}

func (v *validator) validateModel(qm *QueryModel, outer map[QuerySource]bool, path string) {
	if qm.MainFromClause == nil {
		v.addViolation("%smissing main from clause", path)
		return
	}
	if qm.SelectClause == nil {
		v.addViolation("%smissing select clause", path)
		return
	}

	visible := make(map[QuerySource]bool, len(outer)+len(qm.BodyClauses)+1)
	for s := range outer {
		visible[s] = true
	}

	// The main source expression sees only enclosing clauses.
	v.checkReferences(qm.MainFromClause, qm.MainFromClause.FromExpression, visible, path)
	visible[qm.MainFromClause] = true

	for i, c := range qm.BodyClauses {
		if ob, ok := c.(*OrderByClause); ok && len(ob.Orderings) == 0 {
			v.addViolation("%sbody clause %d: orderby without orderings", path, i)
		}
		_ = c.TransformExpressions(func(n expr.Node) (expr.Node, error) {
			v.checkReferences(c, n, visible, path)
			return n, nil
		})
		if s, ok := c.(QuerySource); ok {
			visible[s] = true
		}
	}

	v.checkReferences(qm.SelectClause, qm.SelectClause.Selector, visible, path)

	var info StreamedDataInfo = qm.SelectClause.OutputDataInfo()
	for i, op := range qm.ResultOperators {
		_ = op.TransformExpressions(func(n expr.Node) (expr.Node, error) {
			v.checkReferences(op, n, visible, path)
			return n, nil
		})
		next, err := op.OutputDataInfo(info)
		if err != nil {
			v.addViolation("%sresult operator %d (%s): %v", path, i, op.Name(), err)
			return
		}
		info = next
		if g, ok := op.(*GroupResultOperator); ok {
			visible[g] = true
		}
	}
}

// checkReferences validates the references of one expression and recurses
// into nested models.
func (v *validator) checkReferences(owner fmt.Stringer, n expr.Node, visible map[QuerySource]bool, path string) {
	expr.Inspect(n, func(n expr.Node) bool {
		switch n := n.(type) {
		case *QuerySourceReference:
			if !visible[n.Source] {
				v.addViolation("%s%q references %s, which is not in scope", path, owner.String(), n)
			}
		case *SubQuery:
			v.validateModel(n.Model, visible, path+"subquery: ")
		}
		return true
	})
}
