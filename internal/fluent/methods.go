// Package fluent builds operator-call ASTs the way host query sugar does:
// each operator is a static call whose first argument is the source, with
// lambda arguments quoted for Queryable sources and passed inline for
// Enumerable ones.
package fluent

import "github.com/roach88/chainql/internal/expr"

// Declaring types of the operator catalog.
const (
	Queryable  = "Queryable"
	Enumerable = "Enumerable"

	// Sequence declares property getters of sequences (x.Count).
	Sequence = "Sequence"
)

// Operator names.
const (
	OpWhere             = "Where"
	OpSelect            = "Select"
	OpSelectMany        = "SelectMany"
	OpLet               = "Let"
	OpOrderBy           = "OrderBy"
	OpOrderByDescending = "OrderByDescending"
	OpThenBy            = "ThenBy"
	OpThenByDescending  = "ThenByDescending"
	OpCount             = "Count"
	OpLongCount         = "LongCount"
	OpSum               = "Sum"
	OpMin               = "Min"
	OpMax               = "Max"
	OpAverage           = "Average"
	OpAny               = "Any"
	OpAll               = "All"
	OpContains          = "Contains"
	OpFirst             = "First"
	OpFirstOrDefault    = "FirstOrDefault"
	OpLast              = "Last"
	OpLastOrDefault     = "LastOrDefault"
	OpSingle            = "Single"
	OpSingleOrDefault   = "SingleOrDefault"
	OpDistinct          = "Distinct"
	OpTake              = "Take"
	OpSkip              = "Skip"
	OpReverse           = "Reverse"
	OpDefaultIfEmpty    = "DefaultIfEmpty"
	OpCast              = "Cast"
	OpOfType            = "OfType"
	OpUnion             = "Union"
	OpConcat            = "Concat"
	OpGroupBy           = "GroupBy"
)

// Operators lists every operator name in catalog order.
var Operators = []string{
	OpWhere, OpSelect, OpSelectMany, OpLet,
	OpOrderBy, OpOrderByDescending, OpThenBy, OpThenByDescending,
	OpCount, OpLongCount, OpSum, OpMin, OpMax, OpAverage,
	OpAny, OpAll, OpContains,
	OpFirst, OpFirstOrDefault, OpLast, OpLastOrDefault, OpSingle, OpSingleOrDefault,
	OpDistinct, OpTake, OpSkip, OpReverse, OpDefaultIfEmpty,
	OpCast, OpOfType, OpUnion, OpConcat, OpGroupBy,
}

// methods interns one *expr.Method per signature so that built trees share
// method identity.
var methods = func() map[expr.Signature]*expr.Method {
	m := make(map[expr.Signature]*expr.Method)
	for _, decl := range []string{Queryable, Enumerable} {
		for _, name := range Operators {
			m[expr.Signature{Declaring: decl, Name: name}] = &expr.Method{Declaring: decl, Name: name}
		}
	}
	return m
}()

// Method returns the catalog method for declaring.name, or a fresh method
// for signatures outside the catalog.
func Method(declaring, name string) *expr.Method {
	if m, ok := methods[expr.Signature{Declaring: declaring, Name: name}]; ok {
		return m
	}
	return &expr.Method{Declaring: declaring, Name: name}
}
