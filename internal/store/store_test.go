package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testQuery(fp, name string) CompiledQuery {
	return CompiledQuery{
		Fingerprint: fp,
		Name:        name,
		Model:       "from p in table(people) where ([p].Age > 18) select [p].Name",
		SQL:         `SELECT t0."name" AS "value" FROM "people" AS t0 WHERE (t0."age" > ?)`,
		Params:      []any{int64(18), "x", 1.5, true, nil},
		Shape:       "sequence",
	}
}

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1",
		"user_version": "1",
	} {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}
}

func TestPutQuery_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	inserted, err := s.PutQuery(ctx, testQuery("fp1", "adults"))
	require.NoError(t, err)
	assert.True(t, inserted)

	got, err := s.GetQuery(ctx, "fp1")
	require.NoError(t, err)

	want := testQuery("fp1", "adults")
	want.Seq = 1
	assert.Equal(t, want, got)
}

func TestPutQuery_Idempotent(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	_, err := s.PutQuery(ctx, testQuery("fp1", "first"))
	require.NoError(t, err)

	inserted, err := s.PutQuery(ctx, testQuery("fp1", "second"))
	require.NoError(t, err)
	assert.False(t, inserted)

	got, err := s.GetQuery(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, "first", got.Name)
	assert.Equal(t, int64(1), got.Seq)
}

func TestPutQuery_RequiresFingerprint(t *testing.T) {
	_, err := createTestStore(t).PutQuery(context.Background(), testQuery("", "x"))
	assert.Error(t, err)
}

func TestPutQuery_NilParams(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	q := testQuery("fp1", "count")
	q.Params = nil
	_, err := s.PutQuery(ctx, q)
	require.NoError(t, err)

	got, err := s.GetQuery(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, []any{}, got.Params)
}

func TestGetQuery_NotFound(t *testing.T) {
	_, err := createTestStore(t).GetQuery(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListQueries(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	for _, q := range []CompiledQuery{
		testQuery("fp-b", "a"),
		testQuery("fp-a", "b"),
		testQuery("fp-c", "a"),
	} {
		_, err := s.PutQuery(ctx, q)
		require.NoError(t, err)
	}

	tests := []struct {
		name string
		want []string
	}{
		{"", []string{"fp-b", "fp-a", "fp-c"}},
		{"a", []string{"fp-b", "fp-c"}},
		{"none", []string{}},
	}
	for _, tt := range tests {
		t.Run("name="+tt.name, func(t *testing.T) {
			got, err := s.ListQueries(ctx, tt.name)
			require.NoError(t, err)

			fps := []string{}
			for _, q := range got {
				fps = append(fps, q.Fingerprint)
			}
			assert.Equal(t, tt.want, fps)
		})
	}
}
