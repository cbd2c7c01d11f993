package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputFormatter(t *testing.T) {
	tests := []struct {
		name    string
		format  string
		verbose bool
		write   func(f *OutputFormatter) error
		want    string
	}{
		{
			name:   "text success",
			format: "text",
			write:  func(f *OutputFormatter) error { return f.Success("done") },
			want:   "done\n",
		},
		{
			name:   "text error hides details",
			format: "text",
			write:  func(f *OutputFormatter) error { return f.Error(ErrCodeNotFound, "missing", "x.yaml") },
			want:   "Error [E002]: missing\n",
		},
		{
			name:    "verbose text error shows details",
			format:  "text",
			verbose: true,
			write:   func(f *OutputFormatter) error { return f.Error(ErrCodeNotFound, "missing", "x.yaml") },
			want:    "Error [E002]: missing\nDetails: x.yaml\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: tt.format, Writer: buf, Verbose: tt.verbose}
			require.NoError(t, tt.write(f))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestOutputFormatter_JSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}
	require.NoError(t, f.Error("UNSUPPORTED_OPERATOR", "a < b", map[string]string{"file": "q.yaml"}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNSUPPORTED_OPERATOR", resp.Error.Code)
	assert.Contains(t, buf.String(), `"a < b"`, "HTML must not be escaped")

	buf.Reset()
	require.NoError(t, f.Success(map[string]int{"total": 2}))
	assert.JSONEq(t, `{"status":"ok","data":{"total":2}}`, buf.String())
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}
	f.VerboseLog("hidden")
	assert.Empty(t, errOut.String())

	f.Verbose = true
	f.VerboseLog("found %d", 3)
	assert.Equal(t, "found 3\n", errOut.String())
	assert.Empty(t, out.String())

	f.ErrWriter = nil
	assert.Equal(t, out, f.GetErrWriter())
}

func TestExitCodes(t *testing.T) {
	base := errors.New("boom")
	assert.Equal(t, ExitCommandError, GetExitCode(WrapExitError(ExitCommandError, "load", base)))
	assert.Equal(t, ExitFailure, GetExitCode(base))
	assert.Equal(t, "load: boom", WrapExitError(ExitCommandError, "load", base).Error())
	assert.ErrorIs(t, WrapExitError(ExitFailure, "x", base), base)
	assert.Equal(t, "plain", NewExitError(ExitFailure, "plain").Error())
}
