// Package querymodel defines the clause-based query model produced by the
// parser and consumed by backends.
//
// A QueryModel is a linear pipeline:
//
//	from x in <source>            MainFromClause (exactly one, never replaced)
//	  from y in <expr>            AdditionalFromClause  ┐
//	  where <predicate>           WhereClause           │ BodyClauses,
//	  orderby <key> [desc], ...   OrderByClause         │ in execution order
//	  let z = <expr>              LetClause             ┘
//	select <selector>             SelectClause (exactly one)
//	=> Count() ...                ResultOperators, in order
//
// CLAUSE IDENTITY:
//
// Clauses are compared by pointer. Expressions refer to the items of a
// clause through QuerySourceReference nodes holding that pointer; nested
// queries appear as SubQuery nodes holding their own model. Every reference
// inside a clause targets the main source or a body clause before it (see
// Validate).
//
// CLONING:
//
// Clone produces a model with fresh clause identities. A QuerySourceMapping
// collects old clause → reference-to-new-clause entries while the clauses
// are copied; every expression is then rewritten through the mapping,
// including expressions of nested queries that reach out to this one.
//
// STREAMED DATA:
//
// SelectClause and every ResultOperator describe the shape of their output
// with a StreamedDataInfo: a sequence, a single item, or a scalar value.
// Result operators can also run in memory over StreamedData; sequences are
// carried as []any.
package querymodel
