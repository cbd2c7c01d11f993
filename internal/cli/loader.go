package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/chainql/internal/harness"
	"github.com/roach88/chainql/internal/querymodel"
	"github.com/roach88/chainql/internal/querysql"
)

// Stage is how far compileFiles takes each query.
type Stage int

const (
	// StageModel parses to a validated query model.
	StageModel Stage = iota
	// StageSQL also compiles the model to SQL.
	StageSQL
)

// CompiledFile is the outcome for one query file.
type CompiledFile struct {
	Path            string `json:"path"`
	Name            string `json:"name"`
	Model           string `json:"model,omitempty"`
	Fingerprint     string `json:"fingerprint,omitempty"`
	Clauses         int    `json:"clauses"`
	ResultOperators int    `json:"result_operators"`
	SQL             string `json:"sql,omitempty"`
	Params          []any  `json:"params,omitempty"`
	Shape           string `json:"shape,omitempty"`
	ErrorCode       string `json:"error_code,omitempty"`
	Error           string `json:"error,omitempty"`

	scenario *harness.Scenario
	query    *querysql.Query
}

// OK reports whether the file compiled.
func (c *CompiledFile) OK() bool { return c.ErrorCode == "" }

// LoadError reports a path that could not be expanded into query files.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FindQueryFiles expands paths into YAML files. Directories are walked
// recursively; the result is sorted.
func FindQueryFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("path not found: %s", p)}
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && d.Name() == "golden" {
					return filepath.SkipDir
				}
				return nil
			}
			if ext := filepath.Ext(path); ext == ".yaml" || ext == ".yml" {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("error scanning %s: %v", p, err)}
		}
	}
	sort.Strings(files)
	return files, nil
}

// compileFiles loads and compiles every file concurrently. Per-file
// failures are recorded in the results, which keep the order of paths.
func compileFiles(ctx context.Context, opts *RootOptions, paths []string, stage Stage) ([]*CompiledFile, error) {
	h := harness.New(harness.WithConfig(opts.Config), harness.WithLogger(opts.Logger))
	results := make([]*CompiledFile, len(paths))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = compileFile(h, path, stage)
			opts.Logger.Debug("compiled query file", "path", path, "error_code", results[i].ErrorCode)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func compileFile(h *harness.Harness, path string, stage Stage) *CompiledFile {
	out := &CompiledFile{Path: path, Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))}

	s, err := harness.LoadQuery(path)
	if err != nil {
		out.ErrorCode, out.Error = ErrCodeLoadFailed, err.Error()
		return out
	}
	out.Name, out.scenario = s.Name, s

	qm, err := h.Parse(s)
	if err != nil {
		out.ErrorCode, out.Error = errorCode(err), err.Error()
		return out
	}
	out.Model = qm.String()
	out.Clauses = len(qm.BodyClauses)
	out.ResultOperators = len(qm.ResultOperators)
	if out.Fingerprint, err = querymodel.Fingerprint(qm); err != nil {
		out.ErrorCode, out.Error = ErrCodeGeneric, err.Error()
		return out
	}

	if stage < StageSQL {
		return out
	}
	q, err := querysql.NewSQLCompiler().CompileQuery(qm)
	if err != nil {
		out.ErrorCode, out.Error = errorCode(err), err.Error()
		return out
	}
	out.SQL, out.Params, out.Shape, out.query = q.SQL, q.Params, q.Shape.String(), q
	return out
}

// errorCode maps a compile failure to its response code.
func errorCode(err error) string {
	var setup *harness.SetupError
	if errors.As(err, &setup) {
		return ErrCodeLoadFailed
	}
	return harness.ErrorCode(err)
}
