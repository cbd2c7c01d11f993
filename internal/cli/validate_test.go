package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	dir := copyScenarios(t, "adults", "filter_alias", "reverse_unsupported")

	out, err := execute(t, "validate", dir)
	require.NoError(t, err, "SQL support is not checked")
	assert.Contains(t, out, "✓ adults (1 clause(s), 0 result operator(s))")
	assert.Contains(t, out, "✓ filter_alias")
	assert.Contains(t, out, "✓ reverse_unsupported")
}

func TestValidateInvalid(t *testing.T) {
	dir := copyScenarios(t, "adults", "unsupported_operator")

	out, err := execute(t, "validate", "--format", "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, 1, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Total)
	require.Len(t, resp.Data.Invalid, 1)
	assert.Equal(t, "unsupported_operator", resp.Data.Invalid[0].Name)
	assert.Equal(t, "UNSUPPORTED_OPERATOR", resp.Data.Invalid[0].ErrorCode)
}
