package querymodel

import (
	"errors"
	"fmt"

	"github.com/roach88/chainql/internal/expr"
)

// MappingError reports a failed query source lookup or binding.
type MappingError struct {
	// Code identifies the error category.
	Code MappingErrorCode

	// Message is a human-readable description.
	Message string

	// Source is the item name of the clause involved.
	Source string
}

// MappingErrorCode categorizes mapping errors.
type MappingErrorCode string

const (
	// ErrCodeUnresolvedQuerySource indicates a mandatory reference
	// substitution found no mapping entry.
	ErrCodeUnresolvedQuerySource MappingErrorCode = "UNRESOLVED_QUERY_SOURCE"

	// ErrCodeDuplicateBinding indicates a query source was mapped twice.
	ErrCodeDuplicateBinding MappingErrorCode = "DUPLICATE_BINDING"

	// ErrCodeMissingBinding indicates a lookup or replacement of a source
	// that was never mapped.
	ErrCodeMissingBinding MappingErrorCode = "MISSING_BINDING"
)

func (e *MappingError) Error() string {
	return fmt.Sprintf("%s: %s (source=%s)", e.Code, e.Message, e.Source)
}

// IsUnresolvedQuerySourceError returns true if err is an unresolved
// reference error. Uses errors.As to handle wrapped errors.
func IsUnresolvedQuerySourceError(err error) bool {
	return hasMappingCode(err, ErrCodeUnresolvedQuerySource)
}

// IsDuplicateBindingError returns true if err is a duplicate binding error.
func IsDuplicateBindingError(err error) bool {
	return hasMappingCode(err, ErrCodeDuplicateBinding)
}

// IsMissingBindingError returns true if err is a missing binding error.
func IsMissingBindingError(err error) bool {
	return hasMappingCode(err, ErrCodeMissingBinding)
}

func hasMappingCode(err error, code MappingErrorCode) bool {
	var me *MappingError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// QuerySourceMapping maps clauses to the expressions that replace references
// to them. It lives for one resolution or clone operation.
type QuerySourceMapping struct {
	entries map[QuerySource]expr.Node
}

// NewQuerySourceMapping creates an empty mapping.
func NewQuerySourceMapping() *QuerySourceMapping {
	return &QuerySourceMapping{entries: make(map[QuerySource]expr.Node)}
}

// ContainsMapping reports whether source has an entry.
func (m *QuerySourceMapping) ContainsMapping(source QuerySource) bool {
	_, ok := m.entries[source]
	return ok
}

// AddMapping binds source to n. A source can be bound only once.
func (m *QuerySourceMapping) AddMapping(source QuerySource, n expr.Node) error {
	if m.ContainsMapping(source) {
		return &MappingError{
			Code:    ErrCodeDuplicateBinding,
			Message: "query source is already mapped",
			Source:  source.ItemName(),
		}
	}
	m.entries[source] = n
	return nil
}

// ReplaceMapping rebinds a source that already has an entry.
func (m *QuerySourceMapping) ReplaceMapping(source QuerySource, n expr.Node) error {
	if !m.ContainsMapping(source) {
		return &MappingError{
			Code:    ErrCodeMissingBinding,
			Message: "query source has no mapping to replace",
			Source:  source.ItemName(),
		}
	}
	m.entries[source] = n
	return nil
}

// RemoveMapping deletes the entry of source, if any.
func (m *QuerySourceMapping) RemoveMapping(source QuerySource) {
	delete(m.entries, source)
}

// GetExpression returns the expression bound to source.
func (m *QuerySourceMapping) GetExpression(source QuerySource) (expr.Node, error) {
	n, ok := m.entries[source]
	if !ok {
		return nil, &MappingError{
			Code:    ErrCodeMissingBinding,
			Message: "query source is not mapped",
			Source:  source.ItemName(),
		}
	}
	return n, nil
}

// Len returns the number of entries.
func (m *QuerySourceMapping) Len() int { return len(m.entries) }

// ReplaceClauseReferences substitutes every QuerySourceReference in n whose
// source is mapped. Unmapped references fail with an unresolved query source
// error when mustExistForAll is set and are left untouched otherwise, which
// is how references to an enclosing query survive.
//
// n and the models nested in it are not modified: a nested model holding a
// reference to replace is cloned and the copy is rewritten. References from
// a nested model to its own clauses are never required to be mapped.
func ReplaceClauseReferences(n expr.Node, mapping *QuerySourceMapping, mustExistForAll bool) (expr.Node, error) {
	return replaceRefs(n, mapping, mustExistForAll, nil)
}

func replaceRefs(n expr.Node, mapping *QuerySourceMapping, mustExist bool, local map[QuerySource]bool) (expr.Node, error) {
	return expr.Rewrite(n, func(n expr.Node) (expr.Node, error) {
		switch n := n.(type) {
		case *QuerySourceReference:
			if repl, ok := mapping.entries[n.Source]; ok {
				return repl, nil
			}
			if mustExist && !local[n.Source] {
				return nil, &MappingError{
					Code:    ErrCodeUnresolvedQuerySource,
					Message: fmt.Sprintf("cannot resolve reference %s", n),
					Source:  n.Source.ItemName(),
				}
			}
		case *SubQuery:
			if !hasReplaceableRef(n.Model, mapping, mustExist, local) {
				return n, nil
			}
			model, err := n.Model.Clone(nil)
			if err != nil {
				return nil, err
			}
			inner := withSources(local, model)
			err = model.TransformExpressions(func(e expr.Node) (expr.Node, error) {
				return replaceRefs(e, mapping, mustExist, inner)
			})
			if err != nil {
				return nil, err
			}
			return NewSubQuery(model), nil
		}
		return n, nil
	})
}

// withSources returns local extended with the query sources of qm.
func withSources(local map[QuerySource]bool, qm *QueryModel) map[QuerySource]bool {
	out := make(map[QuerySource]bool, len(local)+2)
	for s := range local {
		out[s] = true
	}
	for _, s := range qm.QuerySources() {
		out[s] = true
	}
	return out
}

// hasReplaceableRef reports whether replaceRefs would change qm or fail on
// it: some reference in qm, or in a model nested in it, is mapped, or is
// unresolved while mustExist is set.
func hasReplaceableRef(qm *QueryModel, mapping *QuerySourceMapping, mustExist bool, local map[QuerySource]bool) bool {
	inner := withSources(local, qm)
	found := false
	qm.ForEachExpression(func(n expr.Node) {
		expr.Inspect(n, func(n expr.Node) bool {
			if found {
				return false
			}
			switch n := n.(type) {
			case *QuerySourceReference:
				_, mapped := mapping.entries[n.Source]
				found = mapped || (mustExist && !inner[n.Source])
			case *SubQuery:
				found = hasReplaceableRef(n.Model, mapping, mustExist, inner)
			}
			return !found
		})
	})
	return found
}
