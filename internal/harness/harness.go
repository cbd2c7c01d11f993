package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/chainql/internal/config"
	"github.com/roach88/chainql/internal/parsing"
	"github.com/roach88/chainql/internal/querymodel"
	"github.com/roach88/chainql/internal/querysql"
	"github.com/roach88/chainql/internal/testutil"
)

// Error codes for failures outside the parser. Parse errors keep their
// parsing.ParseErrorCode.
const (
	CodeInvalidModel       = "INVALID_MODEL"
	CodeSQLUnsupported     = "SQL_UNSUPPORTED"
	CodeEmptySequence      = "EMPTY_SEQUENCE"
	CodeMoreThanOneElement = "MORE_THAN_ONE_ELEMENT"
	CodeError              = "ERROR"
)

// Result is the outcome of running one scenario.
type Result struct {
	Name string

	// Pass is true when every expectation held.
	Pass   bool
	Errors []string

	// Stages reached. Empty strings mean the stage was not run.
	Model       string
	Fingerprint string
	SQL         string
	Params      []any

	// Output is the query result over Data. HasOutput distinguishes a nil
	// result from a query that was not executed.
	Output    any
	HasOutput bool

	// ErrorCode and Err describe the failure that stopped the run.
	ErrorCode string
	Err       string
}

// AddError records a failed expectation.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Harness runs scenarios with deterministic parse IDs.
type Harness struct {
	types  *Types
	config *config.Config
	logger *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithTypes replaces DefaultTypes.
func WithTypes(t *Types) Option {
	return func(h *Harness) { h.types = t }
}

// WithConfig sets the parser configuration for scenarios without their own.
func WithConfig(cfg *config.Config) Option {
	return func(h *Harness) { h.config = cfg }
}

// WithLogger sets the parser logger. Logs are discarded by default.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) { h.logger = l }
}

// New creates a Harness.
func New(opts ...Option) *Harness {
	h := &Harness{
		types:  DefaultTypes(),
		config: config.Default(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with the default harness.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return New().Run(ctx, scenario)
}

// Run compiles the scenario's query and checks its expectations.
//
// Execution flow:
//  1. Build the AST over the declared tables
//  2. Parse it into a query model and validate the model
//  3. Compile the model to SQL, when SQL, a result or an error is expected
//  4. Execute the SQL against a fresh in-memory database holding Data
//  5. Compare every stage with Expect
//
// The returned error reports a broken scenario. Failures of the query
// itself are recorded in the Result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := &Result{Name: scenario.Name, Pass: true}
	if err := h.execute(ctx, scenario, result); err != nil {
		var setup *SetupError
		if errors.As(err, &setup) {
			return nil, err
		}
		result.ErrorCode = ErrorCode(err)
		result.Err = err.Error()
	}
	for _, msg := range CheckExpectations(scenario.Expect, result) {
		result.AddError(msg)
	}
	return result, nil
}

// SetupError reports a scenario that cannot be turned into a query: an
// unknown type or table, a malformed AST or invalid configuration.
type SetupError struct {
	Scenario string
	Err      error
}

func (e *SetupError) Error() string { return e.Scenario + ": " + e.Err.Error() }

func (e *SetupError) Unwrap() error { return e.Err }

// Parse builds the scenario's AST and parses it into a validated query
// model.
func (h *Harness) Parse(scenario *Scenario) (*querymodel.QueryModel, error) {
	tables, err := h.tables(scenario)
	if err != nil {
		return nil, err
	}
	ast, err := BuildAST(&scenario.Query, h.types, tables)
	if err != nil {
		return nil, &SetupError{Scenario: scenario.Name, Err: fmt.Errorf("build query: %w", err)}
	}
	parser, err := h.parser(scenario)
	if err != nil {
		return nil, err
	}

	qm, err := parser.GetParsedQuery(ast)
	if err != nil {
		return nil, err
	}
	if v := querymodel.Validate(qm); !v.IsValid {
		return nil, &modelError{violations: v.Violations}
	}
	return qm, nil
}

// OpenData creates an in-memory database holding the scenario's tables
// and rows.
func (h *Harness) OpenData(ctx context.Context, scenario *Scenario) (*sql.DB, error) {
	tables, err := h.tables(scenario)
	if err != nil {
		return nil, err
	}
	db, err := openScenarioDB(ctx, tables, scenario.Data)
	if err != nil {
		return nil, &SetupError{Scenario: scenario.Name, Err: fmt.Errorf("load data: %w", err)}
	}
	return db, nil
}

func (h *Harness) tables(scenario *Scenario) (map[string]any, error) {
	tables := make(map[string]any, len(scenario.Tables))
	for name, rowType := range scenario.Tables {
		t, err := h.types.Table(rowType, name)
		if err != nil {
			return nil, &SetupError{Scenario: scenario.Name, Err: fmt.Errorf("table %s: %w", name, err)}
		}
		tables[name] = t
	}
	return tables, nil
}

func (h *Harness) parser(scenario *Scenario) (*parsing.QueryParser, error) {
	cfg := h.config
	if scenario.Config != "" {
		var err error
		if cfg, err = config.Compile(scenario.Name+".cue", []byte(scenario.Config)); err != nil {
			return nil, &SetupError{Scenario: scenario.Name, Err: fmt.Errorf("config: %w", err)}
		}
	}
	p, err := parsing.NewQueryParserFromConfig(cfg,
		parsing.WithLogger(h.logger),
		parsing.WithParseIDGenerator(testutil.NewFixedIDGenerator(scenario.Name)))
	if err != nil {
		return nil, &SetupError{Scenario: scenario.Name, Err: err}
	}
	return p, nil
}

func (h *Harness) execute(ctx context.Context, scenario *Scenario, result *Result) error {
	qm, err := h.Parse(scenario)
	if err != nil {
		return err
	}
	result.Model = qm.String()
	if result.Fingerprint, err = querymodel.Fingerprint(qm); err != nil {
		return err
	}

	e := scenario.Expect
	if e.SQL == "" && !e.HasResult && e.Error == "" {
		return nil
	}
	q, err := querysql.NewSQLCompiler().CompileQuery(qm)
	if err != nil {
		return err
	}
	result.SQL, result.Params = q.SQL, q.Params

	if len(scenario.Data) == 0 {
		return nil
	}
	db, err := h.OpenData(ctx, scenario)
	if err != nil {
		return err
	}
	defer db.Close()

	out, err := querysql.Run(ctx, db, q)
	if err != nil {
		return err
	}
	result.Output, result.HasOutput = out, true
	return nil
}

// ErrorCode classifies an error from a scenario run.
func ErrorCode(err error) string {
	var me *modelError
	switch {
	case err == nil:
		return ""
	case parsing.ErrorCode(err) != "":
		return string(parsing.ErrorCode(err))
	case errors.As(err, &me):
		return CodeInvalidModel
	case errors.Is(err, querysql.ErrUnsupported):
		return CodeSQLUnsupported
	case errors.Is(err, querymodel.ErrEmptySequence):
		return CodeEmptySequence
	case errors.Is(err, querymodel.ErrMoreThanOneElement):
		return CodeMoreThanOneElement
	}
	return CodeError
}

type modelError struct {
	violations []string
}

func (e *modelError) Error() string {
	return "invalid query model: " + strings.Join(e.violations, "; ")
}

// openScenarioDB creates an in-memory database with one untyped table per
// declared table and inserts the scenario rows.
func openScenarioDB(ctx context.Context, tables map[string]any, data map[string][]map[string]any) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, err
	}
	// Every pooled connection to :memory: is a separate database.
	db.SetMaxOpenConns(1)

	for _, name := range sortedKeys(tables) {
		src, ok := tables[name].(querysql.Source)
		if !ok {
			db.Close()
			return nil, fmt.Errorf("table %s is not a SQL source", name)
		}
		if err := createTable(ctx, db, src, data[name]); err != nil {
			db.Close()
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
	}
	return db, nil
}

func createTable(ctx context.Context, db *sql.DB, src querysql.Source, rows []map[string]any) error {
	cols, err := querysql.Columns(src.ElementType())
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(cols))
	quoted := make([]string, len(cols))
	marks := make([]string, len(cols))
	for i, c := range cols {
		known[c.Name] = true
		quoted[i] = `"` + c.Name + `"`
		marks[i] = "?"
	}

	table := `"` + src.TableName() + `"`
	ddl := fmt.Sprintf("CREATE TABLE %s (%s)", table, strings.Join(quoted, ", "))
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return err
	}

	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(quoted, ", "), strings.Join(marks, ", "))
	for i, row := range rows {
		for col := range row {
			if !known[col] {
				return fmt.Errorf("row %d: unknown column %q", i, col)
			}
		}
		args := make([]any, len(cols))
		for j, c := range cols {
			args[j] = row[c.Name]
		}
		if _, err := db.ExecContext(ctx, insert, args...); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}
