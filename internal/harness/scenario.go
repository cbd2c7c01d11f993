package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Scenario defines a compilation test case: an AST over declared tables,
// optional parser configuration and the expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario. It names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Tables maps table names to registered row types.
	Tables map[string]string `yaml:"tables"`

	// Data holds rows per table, keyed by column name. Tables without
	// rows are created empty when the scenario executes SQL.
	Data map[string][]map[string]any `yaml:"data,omitempty"`

	// Config is optional CUE parser configuration.
	Config string `yaml:"config,omitempty"`

	// Query is the AST to compile.
	Query Node `yaml:"query"`

	// Expect holds the checks. Unset fields are not checked.
	Expect Expect `yaml:"expect"`
}

// Expect lists the expected outcome of a scenario.
type Expect struct {
	// Error is the expected error code. When set, no other field is
	// checked.
	Error string `yaml:"error,omitempty"`

	// Model is the expected model rendering.
	Model string `yaml:"model,omitempty"`

	// SQL and Params are the expected compiled statement.
	SQL    string `yaml:"sql,omitempty"`
	Params []any  `yaml:"params,omitempty"`

	// Result is the expected value of the SQL query over Data. HasResult
	// is set when the key is present, so null can be expected.
	Result    any  `yaml:"result,omitempty"`
	HasResult bool `yaml:"-"`
}

// UnmarshalYAML records whether result was given.
func (e *Expect) UnmarshalYAML(n *yaml.Node) error {
	type plain Expect
	if err := n.Decode((*plain)(e)); err != nil {
		return err
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == "result" {
			e.HasResult = true
		}
	}
	return nil
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	return parse(data, true)
}

// LoadQuery reads a query file: a scenario whose expect section is
// optional.
func LoadQuery(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read query file: %w", err)
	}
	return parse(data, false)
}

func parse(data []byte, requireExpect bool) (*Scenario, error) {
	// Strict field validation catches typos like "expects:" vs "expect:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario, requireExpect); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir, sorted by file name.
func LoadDir(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	out := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(p), err)
		}
		out = append(out, s)
	}
	return out, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario, requireExpect bool) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Tables) == 0 {
		return fmt.Errorf("tables map is required and must be non-empty")
	}
	for table := range s.Tables {
		if !validIdentifier.MatchString(table) {
			return fmt.Errorf("invalid table name %q: must match %s", table, validIdentifier)
		}
	}
	for table := range s.Data {
		if _, ok := s.Tables[table]; !ok {
			return fmt.Errorf("data for undeclared table %q", table)
		}
	}
	e := s.Expect
	if requireExpect && e.Error == "" && e.Model == "" && e.SQL == "" && !e.HasResult {
		return fmt.Errorf("expect needs at least one of error, model, sql, result")
	}
	if e.Error != "" && (e.Model != "" || e.SQL != "" || e.HasResult) {
		return fmt.Errorf("expect.error excludes the other checks")
	}
	if e.HasResult && len(s.Data) == 0 {
		return fmt.Errorf("expect.result requires data")
	}
	return nil
}
