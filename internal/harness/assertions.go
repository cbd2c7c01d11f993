package harness

import (
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"
)

// validIdentifier matches table names scenarios may declare. Table names
// are interpolated into the DDL that loads scenario data.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError describes one failed expectation.
type AssertionError struct {
	Type     string // model, sql, params, result or error
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Type, e.Expected, e.Actual)
}

// CheckExpectations compares r with e and returns one message per failed
// expectation.
func CheckExpectations(e Expect, r *Result) []string {
	var failures []error

	if e.Error != "" {
		if r.ErrorCode != e.Error {
			failures = append(failures, &AssertionError{Type: "error", Expected: e.Error, Actual: describeFailure(r)})
		}
		return messages(failures)
	}
	if r.ErrorCode != "" {
		return []string{fmt.Sprintf("unexpected %s: %s", r.ErrorCode, r.Err)}
	}

	if e.Model != "" && strings.TrimSpace(e.Model) != r.Model {
		failures = append(failures, &AssertionError{Type: "model", Expected: strings.TrimSpace(e.Model), Actual: r.Model})
	}
	if e.SQL != "" {
		if want := normalizeSQL(e.SQL); want != r.SQL {
			failures = append(failures, &AssertionError{Type: "sql", Expected: want, Actual: r.SQL})
		}
		if !valuesEqual(e.Params, r.Params) {
			failures = append(failures, &AssertionError{Type: "params", Expected: fmt.Sprint(e.Params), Actual: fmt.Sprint(r.Params)})
		}
	}
	if e.HasResult && !valuesEqual(e.Result, r.Output) {
		failures = append(failures, &AssertionError{Type: "result", Expected: fmt.Sprintf("%v", e.Result), Actual: fmt.Sprintf("%v", r.Output)})
	}
	return messages(failures)
}

func describeFailure(r *Result) string {
	if r.ErrorCode == "" {
		return "success"
	}
	return r.ErrorCode + " (" + r.Err + ")"
}

func messages(errs []error) []string {
	out := make([]string, len(errs))
	for i, err := range errs {
		out[i] = err.Error()
	}
	return out
}

// normalizeSQL collapses whitespace so expected SQL can be wrapped over
// several YAML lines. Compiled SQL has no string literals to disturb.
func normalizeSQL(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// valuesEqual compares a YAML-decoded expected value with a value scanned
// from SQLite. Numbers compare by value, so 3 matches int64(3) and 19.8
// matches float64(19.8). A nil and an empty slice are equal.
func valuesEqual(expected, actual any) bool {
	expected, actual = normalize(expected), normalize(actual)
	return reflect.DeepEqual(expected, actual)
}

func normalize(v any) any {
	switch v := v.(type) {
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case uint64:
		return float64(v)
	case float32:
		return float64(v)
	case []any:
		if len(v) == 0 {
			return nil
		}
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = normalize(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = normalize(e)
		}
		return out
	}
	return v
}

// sortedKeys returns the keys of m in order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
