package harness

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders every stage a scenario reached, one "key: value" line
// per stage:
//
//	scenario: adults
//	model: from p in table(people) where ([p].Age > 18) select [p].Name
//	sql: SELECT t0."name" AS "value" FROM ...
//	params: [18]
//	result: ["ann","eve"]
//
// A failed run ends with an "error:" line holding the error code. Params and
// results are JSON. The fingerprint is left out so model changes show up as
// readable diffs.
func Snapshot(r *Result) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "scenario: %s\n", r.Name)
	if r.Model != "" {
		fmt.Fprintf(&buf, "model: %s\n", r.Model)
	}
	if r.SQL != "" {
		params := r.Params
		if params == nil {
			params = []any{}
		}
		p, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("params: %w", err)
		}
		fmt.Fprintf(&buf, "sql: %s\nparams: %s\n", r.SQL, p)
	}
	if r.HasOutput {
		out, err := json.Marshal(r.Output)
		if err != nil {
			return nil, fmt.Errorf("result: %w", err)
		}
		fmt.Fprintf(&buf, "result: %s\n", out)
	}
	if r.ErrorCode != "" {
		fmt.Fprintf(&buf, "error: %s\n", r.ErrorCode)
	}
	return buf.Bytes(), nil
}

// RunWithGolden runs a scenario, fails the test on unmet expectations and
// compares its snapshot with testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Errorf("%s: %s", scenario.Name, msg)
	}
	return AssertGolden(t, scenario.Name, result)
}

// AssertGolden compares an existing result's snapshot with the golden file
// named after scenarioName.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	snapshot, err := Snapshot(result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, snapshot)
	return nil
}
