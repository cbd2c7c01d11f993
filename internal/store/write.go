package store

import (
	"context"
	"fmt"
)

// CompiledQuery is one catalog entry.
type CompiledQuery struct {
	Fingerprint string `json:"fingerprint"`
	Name        string `json:"name"`
	Model       string `json:"model"`
	SQL         string `json:"sql"`
	Params      []any  `json:"params"`
	Shape       string `json:"shape"`

	// Seq is assigned on insert.
	Seq int64 `json:"seq"`
}

// PutQuery inserts a compiled query and reports whether it was new.
// An existing entry with the same fingerprint is kept unchanged.
func (s *Store) PutQuery(ctx context.Context, q CompiledQuery) (bool, error) {
	if q.Fingerprint == "" {
		return false, fmt.Errorf("put query: fingerprint is required")
	}
	params, err := marshalParams(q.Params)
	if err != nil {
		return false, fmt.Errorf("put query: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO compiled_queries (fingerprint, name, model, sql, params, shape, seq)
		VALUES (?, ?, ?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM compiled_queries))
		ON CONFLICT(fingerprint) DO NOTHING
	`,
		q.Fingerprint,
		q.Name,
		q.Model,
		q.SQL,
		params,
		q.Shape,
	)
	if err != nil {
		return false, fmt.Errorf("put query: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("put query: %w", err)
	}
	return n == 1, nil
}
