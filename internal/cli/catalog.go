package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/chainql/internal/store"
)

// CatalogOptions holds flags for the catalog command.
type CatalogOptions struct {
	*RootOptions
	Name        string
	Fingerprint string
}

// NewCatalogCommand creates the catalog command.
func NewCatalogCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CatalogOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "catalog <db>",
		Short: "List compiled queries recorded by compile --catalog",
		Long: `List the compiled queries in a catalog database, in recording order.

Examples:
  chainql catalog queries.db
  chainql catalog queries.db --name adults
  chainql catalog queries.db --fingerprint 3f2a...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCatalog(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Name, "name", "", "only list queries with this name")
	cmd.Flags().StringVar(&opts.Fingerprint, "fingerprint", "", "show the query with this fingerprint")

	return cmd
}

func runCatalog(opts *CatalogOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	// Open creates missing files; listing must not.
	if _, err := os.Stat(path); err != nil {
		return commandError(formatter, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("catalog not found: %s", path)})
	}
	st, err := store.Open(path)
	if err != nil {
		return commandError(formatter, err)
	}
	defer st.Close()

	var entries []store.CompiledQuery
	if opts.Fingerprint != "" {
		q, err := st.GetQuery(cmd.Context(), opts.Fingerprint)
		if errors.Is(err, store.ErrNotFound) {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitFailure, "lookup", err)
		}
		if err != nil {
			return commandError(formatter, err)
		}
		entries = []store.CompiledQuery{q}
	} else if entries, err = st.ListQueries(cmd.Context(), opts.Name); err != nil {
		return commandError(formatter, err)
	}

	if formatter.Format == "json" {
		return formatter.Success(entries)
	}
	w := formatter.Writer
	for _, q := range entries {
		fmt.Fprintf(w, "%d %s %s\n  model: %s\n  sql:   %s\n", q.Seq, q.Fingerprint, q.Name, q.Model, q.SQL)
	}
	fmt.Fprintf(w, "%d compiled quer%s\n", len(entries), plural(len(entries), "y", "ies"))
	return nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
