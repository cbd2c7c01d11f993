package querysql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/chainql/internal/querymodel"
)

// Run executes q and shapes its rows the way the in-memory executor shapes
// items: a sequence is a []any, a single item is one element or nil, a
// scalar is the bare value. Records are map[string]any keyed by output
// column.
func Run(ctx context.Context, db *sql.DB, q *Query) (any, error) {
	rows, err := db.QueryContext(ctx, q.SQL, q.Params...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var items []any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		items = append(items, q.item(cols, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	switch q.Shape {
	case ShapeScalar:
		if len(items) != 1 {
			return nil, fmt.Errorf("scalar query returned %d rows", len(items))
		}
		v := items[0]
		if v == nil && q.NullIsEmpty {
			return nil, querymodel.ErrEmptySequence
		}
		if q.Bool {
			n, ok := v.(int64)
			return ok && n != 0, nil
		}
		return v, nil
	case ShapeSingle:
		switch {
		case len(items) == 0 && q.OrDefault:
			return nil, nil
		case len(items) == 0:
			return nil, querymodel.ErrEmptySequence
		case len(items) > 1 && q.Unique:
			return nil, querymodel.ErrMoreThanOneElement
		}
		return items[0], nil
	default:
		if items == nil {
			items = []any{}
		}
		return items, nil
	}
}

func (q *Query) item(cols []string, vals []any) any {
	for i, v := range vals {
		if b, ok := v.([]byte); ok {
			vals[i] = string(b)
		}
	}
	if q.Value {
		return vals[0]
	}
	rec := make(map[string]any, len(cols))
	for i, c := range cols {
		rec[c] = vals[i]
	}
	return rec
}
