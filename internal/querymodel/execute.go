package querymodel

import (
	"fmt"
	"slices"

	"github.com/roach88/chainql/internal/expr"
)

// row binds the clauses of a model to the current items of one pipeline
// pass.
type row map[QuerySource]any

func rowEnv(r row, outer expr.Env) expr.Env {
	return func(n expr.Node) (any, bool, error) {
		if ref, ok := n.(*QuerySourceReference); ok {
			if v, ok := r[ref.Source]; ok {
				return v, true, nil
			}
		}
		if outer != nil {
			return outer(n)
		}
		return nil, false, nil
	}
}

// itemEnv resolves expressions over the items of a streamed sequence: the
// item expression itself evaluates to the item, and references reachable
// through carrier members of the item expression evaluate to the
// corresponding member of the item.
func itemEnv(itemExpr expr.Node, item any, outer expr.Env) expr.Env {
	paths := make(map[QuerySource][]string)
	collectPaths(itemExpr, nil, paths)
	return func(n expr.Node) (any, bool, error) {
		if expr.Equal(n, itemExpr) {
			return item, true, nil
		}
		if ref, ok := n.(*QuerySourceReference); ok {
			if path, ok := paths[ref.Source]; ok {
				v := item
				for _, m := range path {
					next, err := expr.MemberValue(v, m)
					if err != nil {
						return nil, false, err
					}
					v = next
				}
				return v, true, nil
			}
		}
		if outer != nil {
			return outer(n)
		}
		return nil, false, nil
	}
}

func collectPaths(n expr.Node, prefix []string, out map[QuerySource][]string) {
	switch n := n.(type) {
	case *QuerySourceReference:
		if _, ok := out[n.Source]; !ok {
			out[n.Source] = slices.Clone(prefix)
		}
	case *expr.New:
		for i, m := range n.Members {
			collectPaths(n.Args[i], append(slices.Clone(prefix), m), out)
		}
	case *expr.MemberInit:
		for _, b := range n.Bindings {
			collectPaths(b.Value, append(slices.Clone(prefix), b.Member), out)
		}
	}
}

// Eval reports an unresolved reference; executors bind references through
// their environment before evaluation reaches this point.
func (r *QuerySourceReference) Eval(expr.Env) (any, error) {
	return nil, &MappingError{
		Code:    ErrCodeUnresolvedQuerySource,
		Message: fmt.Sprintf("no current item for %s", r),
		Source:  r.Source.ItemName(),
	}
}

// Execute runs the model in memory. outer resolves references to clauses
// of enclosing models and may be nil.
func Execute(qm *QueryModel, outer expr.Env) (StreamedData, error) {
	src, err := expr.Eval(qm.MainFromClause.FromExpression, outer)
	if err != nil {
		return StreamedData{}, fmt.Errorf("from %s: %w", qm.MainFromClause.Name, err)
	}
	items, err := AsSlice(src)
	if err != nil {
		return StreamedData{}, fmt.Errorf("from %s: %w", qm.MainFromClause.Name, err)
	}
	rows := make([]row, len(items))
	for i, it := range items {
		rows[i] = row{qm.MainFromClause: it}
	}

	for _, c := range qm.BodyClauses {
		rows, err = applyBodyClause(c, rows, outer)
		if err != nil {
			return StreamedData{}, err
		}
	}

	out := make([]any, len(rows))
	for i, r := range rows {
		v, err := expr.Eval(qm.SelectClause.Selector, rowEnv(r, outer))
		if err != nil {
			return StreamedData{}, fmt.Errorf("select: %w", err)
		}
		out[i] = v
	}

	data := StreamedData{Info: qm.SelectClause.OutputDataInfo(), Value: out}
	for _, op := range qm.ResultOperators {
		data, err = op.execute(data, outer)
		if err != nil {
			return StreamedData{}, err
		}
	}
	return data, nil
}

func applyBodyClause(c BodyClause, rows []row, outer expr.Env) ([]row, error) {
	switch c := c.(type) {
	case *WhereClause:
		kept := rows[:0:0]
		for _, r := range rows {
			v, err := expr.Eval(c.Predicate, rowEnv(r, outer))
			if err != nil {
				return nil, fmt.Errorf("where: %w", err)
			}
			if ok, _ := v.(bool); ok {
				kept = append(kept, r)
			}
		}
		return kept, nil
	case *AdditionalFromClause:
		var out []row
		for _, r := range rows {
			v, err := expr.Eval(c.FromExpression, rowEnv(r, outer))
			if err != nil {
				return nil, fmt.Errorf("from %s: %w", c.Name, err)
			}
			inner, err := AsSlice(v)
			if err != nil {
				return nil, fmt.Errorf("from %s: %w", c.Name, err)
			}
			for _, it := range inner {
				next := make(row, len(r)+1)
				for k, v := range r {
					next[k] = v
				}
				next[c] = it
				out = append(out, next)
			}
		}
		return out, nil
	case *LetClause:
		for _, r := range rows {
			v, err := expr.Eval(c.Expression, rowEnv(r, outer))
			if err != nil {
				return nil, fmt.Errorf("let %s: %w", c.Name, err)
			}
			r[c] = v
		}
		return rows, nil
	case *OrderByClause:
		return orderRows(c, rows, outer)
	}
	return nil, fmt.Errorf("unsupported clause %T", c)
}

func orderRows(c *OrderByClause, rows []row, outer expr.Env) ([]row, error) {
	keys := make(map[*row][]any, len(rows))
	sorted := make([]*row, len(rows))
	for i := range rows {
		r := &rows[i]
		sorted[i] = r
		for _, o := range c.Orderings {
			v, err := expr.Eval(o.Expression, rowEnv(*r, outer))
			if err != nil {
				return nil, fmt.Errorf("orderby: %w", err)
			}
			keys[r] = append(keys[r], v)
		}
	}
	var sortErr error
	slices.SortStableFunc(sorted, func(a, b *row) int {
		for i, o := range c.Orderings {
			x, y := keys[a][i], keys[b][i]
			var cmp int
			switch {
			case x == nil && y == nil:
			case x == nil:
				cmp = -1
			case y == nil:
				cmp = 1
			default:
				var err error
				cmp, err = expr.CompareValues(x, y)
				if err != nil && sortErr == nil {
					sortErr = err
				}
			}
			if o.Direction == Desc {
				cmp = -cmp
			}
			if cmp != 0 {
				return cmp
			}
		}
		return 0
	})
	if sortErr != nil {
		return nil, fmt.Errorf("orderby: %w", sortErr)
	}
	out := make([]row, len(sorted))
	for i, r := range sorted {
		out[i] = *r
	}
	return out, nil
}
