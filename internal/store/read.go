package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when no entry has the requested fingerprint.
var ErrNotFound = errors.New("compiled query not found")

const selectColumns = `fingerprint, name, model, sql, params, shape, seq`

// GetQuery returns the entry for a fingerprint.
func (s *Store) GetQuery(ctx context.Context, fingerprint string) (CompiledQuery, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+selectColumns+`
		FROM compiled_queries
		WHERE fingerprint = ?
	`, fingerprint)

	q, err := scanQuery(row)
	if errors.Is(err, sql.ErrNoRows) {
		return CompiledQuery{}, fmt.Errorf("%w: %s", ErrNotFound, fingerprint)
	}
	return q, err
}

// ListQueries returns every entry, optionally restricted to one name.
// Results are ordered by seq ASC, fingerprint COLLATE BINARY ASC.
//
// Returns an empty slice (not nil) if there are no entries.
func (s *Store) ListQueries(ctx context.Context, name string) ([]CompiledQuery, error) {
	query := `SELECT ` + selectColumns + ` FROM compiled_queries`
	var args []any
	if name != "" {
		query += ` WHERE name = ?`
		args = append(args, name)
	}
	query += ` ORDER BY seq ASC, fingerprint COLLATE BINARY ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query compiled queries: %w", err)
	}
	defer rows.Close()

	out := []CompiledQuery{}
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate compiled queries: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanQuery(row scanner) (CompiledQuery, error) {
	var q CompiledQuery
	var params string
	if err := row.Scan(&q.Fingerprint, &q.Name, &q.Model, &q.SQL, &params, &q.Shape, &q.Seq); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return q, err
		}
		return q, fmt.Errorf("scan compiled query: %w", err)
	}
	var err error
	if q.Params, err = unmarshalParams(params); err != nil {
		return q, err
	}
	return q, nil
}
