package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// ValidationResult lists the files that failed to parse.
type ValidationResult struct {
	Valid   int             `json:"valid"`
	Invalid []*CompiledFile `json:"invalid"`
	Total   int             `json:"total"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <path>...",
		Short: "Check that query files parse into valid query models",
		Long: `Parse YAML query files into query models and check their
structure, without compiling SQL.

Exit codes:
  0 - All queries are valid
  1 - One or more queries are invalid
  2 - Command error (invalid paths, bad config, etc.)`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	paths, err := FindQueryFiles(args)
	if err != nil {
		return commandError(formatter, err)
	}
	files, err := compileFiles(cmd.Context(), opts, paths, StageModel)
	if err != nil {
		return commandError(formatter, err)
	}

	result := ValidationResult{Invalid: []*CompiledFile{}, Total: len(files)}
	for _, f := range files {
		if f.OK() {
			result.Valid++
		} else {
			result.Invalid = append(result.Invalid, f)
		}
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		for _, f := range files {
			if f.OK() {
				fmt.Fprintf(w, "✓ %s (%d clause(s), %d result operator(s))\n", f.Name, f.Clauses, f.ResultOperators)
			} else {
				fmt.Fprintf(w, "✗ %s\n  %s: %s\n", f.Name, f.ErrorCode, f.Error)
			}
		}
	}

	if n := len(result.Invalid); n > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d query file(s) invalid", n, result.Total))
	}
	return nil
}
