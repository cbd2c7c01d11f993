package harness

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	scenarios, err := LoadDir("testdata/scenarios")
	require.NoError(t, err)
	require.NotEmpty(t, scenarios)

	for _, s := range scenarios {
		t.Run(s.Name, func(t *testing.T) {
			require.NoError(t, RunWithGolden(t, s))
		})
	}
}

func TestRun_ReportsFailedExpectations(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: wrong
description: "expectations that do not hold"
tables: {people: Person}
data:
  people:
    - {id: 1, name: ann, age: 40}
query:
  call:
    method: Queryable.Count
    type: int
    args: [{table: people}]
expect:
  sql: SELECT 1
  result: 2
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 2)
	assert.Contains(t, result.Errors[0], "sql:")
	assert.Contains(t, result.Errors[1], "result:")
	assert.Equal(t, int64(1), result.Output)
	assert.NotEmpty(t, result.Fingerprint)
}

func TestRun_UnexpectedError(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: surprise
description: "a parse error where a model was expected"
tables: {people: Person}
query:
  call:
    method: Queryable.Zip
    args: [{table: people}]
expect:
  model: from p in table(people) select [p]
`))
	require.NoError(t, err)

	result, err := Run(context.Background(), s)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	assert.Equal(t, "UNSUPPORTED_OPERATOR", result.ErrorCode)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "unexpected UNSUPPORTED_OPERATOR")
}

func TestRun_BrokenScenario(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "unknown row type",
			yaml: `
name: x
description: d
tables: {people: Nobody}
query: {table: people}
expect: {model: m}
`,
		},
		{
			name: "unknown parameter",
			yaml: `
name: x
description: d
tables: {people: Person}
query:
  call:
    method: Queryable.Where
    args:
      - table: people
      - lambda:
          params: [{name: p, type: Person}]
          body: {member: {of: {param: q}, name: Age}}
expect: {model: m}
`,
		},
		{
			name: "bad config",
			yaml: `
name: x
description: d
tables: {people: Person}
config: "parser: maxRewriteAttempts: 0"
query: {table: people}
expect: {model: m}
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := ParseScenario([]byte(tt.yaml))
			require.NoError(t, err)
			_, err = Run(context.Background(), s)
			assert.Error(t, err)
		})
	}
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, CodeInvalidModel, ErrorCode(&modelError{violations: []string{"v"}}))
	assert.Equal(t, CodeError, ErrorCode(assert.AnError))
}
