package cli

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/spf13/cobra"

	"github.com/roach88/chainql/internal/harness"
	"github.com/roach88/chainql/internal/querysql"
)

// SQLOptions holds flags for the sql command.
type SQLOptions struct {
	*RootOptions
	DB string // database file; the query file's data is used when empty
}

// Execution is the output of the sql command.
type Execution struct {
	Name   string `json:"name"`
	SQL    string `json:"sql"`
	Params []any  `json:"params"`
	Result any    `json:"result"`
}

func (e Execution) String() string {
	return fmt.Sprintf("%s\nparams: %v\nresult: %v", e.SQL, e.Params, e.Result)
}

// NewSQLCommand creates the sql command.
func NewSQLCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SQLOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "sql <query-file>",
		Short: "Compile a query file and execute its SQL",
		Long: `Compile a query file to SQL and execute it.

With --db the statement runs against that SQLite database. Otherwise it
runs against an in-memory database built from the file's data section.

Examples:
  chainql sql adults.yaml
  chainql sql adults.yaml --db people.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSQL(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.DB, "db", "", "SQLite database file to query")

	return cmd
}

func runSQL(opts *SQLOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := cmd.Context()

	files, err := compileFiles(ctx, opts.RootOptions, []string{path}, StageSQL)
	if err != nil {
		return commandError(formatter, err)
	}
	file := files[0]
	if !file.OK() {
		_ = formatter.Error(file.ErrorCode, file.Error, file.Path)
		return NewExitError(ExitFailure, file.ErrorCode)
	}

	var db *sql.DB
	if opts.DB != "" {
		if db, err = sql.Open("sqlite3", "file:"+opts.DB+"?mode=ro"); err == nil {
			err = db.PingContext(ctx)
		}
	} else {
		db, err = harness.New(harness.WithConfig(opts.Config)).OpenData(ctx, file.scenario)
	}
	if err != nil {
		if db != nil {
			db.Close()
		}
		_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
		return WrapExitError(ExitCommandError, "opening database", err)
	}
	defer db.Close()

	opts.Logger.Debug("executing", "name", file.Name, "sql", file.SQL, "params", len(file.Params))
	out, err := querysql.Run(ctx, db, file.query)
	if err != nil {
		code := harness.ErrorCode(err)
		if code == harness.CodeError {
			code = ErrCodeSQL
		}
		_ = formatter.Error(code, err.Error(), file.SQL)
		return WrapExitError(ExitFailure, "executing "+file.Name, err)
	}

	params := file.Params
	if params == nil {
		params = []any{}
	}
	return formatter.Success(Execution{Name: file.Name, SQL: file.SQL, Params: params, Result: out})
}
