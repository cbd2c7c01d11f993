package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chainql/internal/store"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output  string // output file path
	Catalog string // catalog database path
}

// CompilationResult holds the outcome for every file.
type CompilationResult struct {
	Files  []*CompiledFile `json:"files"`
	Failed int             `json:"failed"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <path>...",
		Short: "Compile query files to query models and SQL",
		Long: `Compile YAML query files into query models and parameterized SQL.

Directories are searched recursively for .yaml and .yml files. Each query
is parsed into a query model, fingerprinted and compiled to SQLite SQL.
With --catalog, compiled queries are recorded in a catalog database.

Exit codes:
  0 - All queries compiled
  1 - One or more queries failed
  2 - Command error (invalid paths, bad config, etc.)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args, cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write results as JSON to this file")
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "record compiled queries in this catalog database")

	return cmd
}

func runCompile(opts *CompileOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	paths, err := FindQueryFiles(args)
	if err != nil {
		return commandError(formatter, err)
	}
	formatter.VerboseLog("Found %d query file(s)", len(paths))

	files, err := compileFiles(cmd.Context(), opts.RootOptions, paths, StageSQL)
	if err != nil {
		return commandError(formatter, err)
	}
	result := &CompilationResult{Files: files}
	for _, f := range files {
		if !f.OK() {
			result.Failed++
		}
	}

	if opts.Catalog != "" {
		if err := recordInCatalog(cmd, opts.Catalog, files, formatter); err != nil {
			return commandError(formatter, err)
		}
	}
	if opts.Output != "" {
		if err := writeResults(result, opts.Output); err != nil {
			_ = formatter.Error(ErrCodeWriteFailed, err.Error(), nil)
			return WrapExitError(ExitCommandError, "writing output file", err)
		}
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		outputCompileText(formatter, result)
	}
	if result.Failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d query file(s) failed to compile", result.Failed))
	}
	return nil
}

func outputCompileText(f *OutputFormatter, result *CompilationResult) {
	for _, file := range result.Files {
		if !file.OK() {
			fmt.Fprintf(f.Writer, "✗ %s\n  %s: %s\n", file.Name, file.ErrorCode, file.Error)
			continue
		}
		fmt.Fprintf(f.Writer, "✓ %s\n", file.Name)
		fmt.Fprintf(f.Writer, "  model:  %s\n", file.Model)
		fmt.Fprintf(f.Writer, "  sql:    %s\n", file.SQL)
		fmt.Fprintf(f.Writer, "  params: %v\n", file.Params)
		if f.Verbose {
			fmt.Fprintf(f.Writer, "  fingerprint: %s\n", file.Fingerprint)
		}
	}
	fmt.Fprintf(f.Writer, "\nCompiled %d of %d query file(s)\n", len(result.Files)-result.Failed, len(result.Files))
}

// recordInCatalog stores every compiled file.
func recordInCatalog(cmd *cobra.Command, path string, files []*CompiledFile, f *OutputFormatter) error {
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "opening catalog", err)
	}
	defer st.Close()

	for _, file := range files {
		if !file.OK() {
			continue
		}
		inserted, err := st.PutQuery(cmd.Context(), store.CompiledQuery{
			Fingerprint: file.Fingerprint,
			Name:        file.Name,
			Model:       file.Model,
			SQL:         file.SQL,
			Params:      file.Params,
			Shape:       file.Shape,
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "recording "+file.Name, err)
		}
		if inserted {
			f.VerboseLog("Recorded %s (%s)", file.Name, file.Fingerprint)
		}
	}
	return nil
}

// writeResults writes the compilation result as indented JSON.
func writeResults(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}

// commandError reports err and returns an exit error with code 2.
func commandError(f *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	if le, ok := err.(*LoadError); ok {
		code = le.Code
	}
	_ = f.Error(code, err.Error(), nil)
	if GetExitCode(err) == ExitCommandError {
		return err
	}
	return WrapExitError(ExitCommandError, code, err)
}
