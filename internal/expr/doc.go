// Package expr defines the host AST consumed by the query compiler.
//
// The AST is a closed tagged union of node shapes (constants, parameters,
// member access, calls, lambdas, operators and construction forms) plus one
// extensibility variant. Every other internal package imports expr; expr
// imports nothing internal.
//
// SEALED UNION:
//
// Node is sealed with the exprNode marker method. The finite shapes the
// preprocessor, parser and cloner must handle are the concrete types in this
// package:
//
//	Constant, Parameter, Member, Call, Lambda, Quote, Unary, Binary,
//	Conditional, New, MemberInit, ListInit, Invoke
//
// EXTENSIBILITY:
//
// Packages that need their own node shapes (query source references,
// subquery markers, failed evaluations) embed ExtensionNode and implement
// Extension. Extensions declare their children explicitly; the generic
// traversal functions (Children, WithChildren, Rewrite, Inspect) reduce over
// those children instead of dispatching through a visitor.
//
// IMMUTABILITY:
//
// Nodes are treated as immutable values once built. Every rewrite returns a
// new node; WithChildren returns the receiver unchanged when no child was
// replaced, so callers can detect "no change" with pointer comparison.
//
// TYPES:
//
// Node types are reflect.Type values. A void node has a nil type. Sequences
// are slices, arrays, or types implementing Queryable.
package expr
