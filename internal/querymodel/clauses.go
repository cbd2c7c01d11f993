package querymodel

import (
	"reflect"

	"github.com/roach88/chainql/internal/expr"
)

// QuerySource is implemented by clauses that introduce items: main and
// additional from clauses and let clauses.
type QuerySource interface {
	ItemName() string
	ItemType() reflect.Type
}

// Clause is a stage of the pipeline.
//
// This is a sealed interface - only types in this package implement it.
type Clause interface {
	// TransformExpressions replaces every expression held by the clause with
	// fn's result, in place.
	TransformExpressions(fn func(expr.Node) (expr.Node, error)) error

	String() string

	clauseNode() // Marker method - seals interface to this package
}

// BodyClause is a clause that may appear between the main source and the
// select clause.
type BodyClause interface {
	Clause
	clone(ctx *CloneContext) (BodyClause, error)
}

// MainFromClause is the primary data source of a query.
type MainFromClause struct {
	Name           string
	Type           reflect.Type
	FromExpression expr.Node
}

// AdditionalFromClause iterates a secondary sequence for every item of the
// preceding clauses, usually a member of the current item.
type AdditionalFromClause struct {
	Name           string
	Type           reflect.Type
	FromExpression expr.Node
}

// WhereClause filters items.
type WhereClause struct {
	Predicate expr.Node
}

// OrderingDirection is the direction of one sort key.
type OrderingDirection int

const (
	Asc OrderingDirection = iota
	Desc
)

func (d OrderingDirection) String() string {
	if d == Desc {
		return "desc"
	}
	return "asc"
}

// Ordering is one sort key of an OrderByClause.
type Ordering struct {
	Expression expr.Node
	Direction  OrderingDirection
}

// OrderByClause sorts items. Orderings[0] is the primary key.
type OrderByClause struct {
	Orderings []*Ordering
}

// LetClause names an intermediate value computed per item.
type LetClause struct {
	Name       string
	Expression expr.Node
}

// SelectClause projects each item to the query output.
type SelectClause struct {
	Selector expr.Node
}

func (*MainFromClause) clauseNode()       {}
func (*AdditionalFromClause) clauseNode() {}
func (*WhereClause) clauseNode()          {}
func (*OrderByClause) clauseNode()        {}
func (*LetClause) clauseNode()            {}
func (*SelectClause) clauseNode()         {}

func (c *MainFromClause) ItemName() string             { return c.Name }
func (c *MainFromClause) ItemType() reflect.Type       { return c.Type }
func (c *AdditionalFromClause) ItemName() string       { return c.Name }
func (c *AdditionalFromClause) ItemType() reflect.Type { return c.Type }
func (c *LetClause) ItemName() string                  { return c.Name }
func (c *LetClause) ItemType() reflect.Type            { return c.Expression.Type() }

// NewMainFromClause creates the main source clause.
func NewMainFromClause(name string, itemType reflect.Type, from expr.Node) *MainFromClause {
	return &MainFromClause{Name: name, Type: itemType, FromExpression: from}
}

// NewAdditionalFromClause creates a secondary source clause.
func NewAdditionalFromClause(name string, itemType reflect.Type, from expr.Node) *AdditionalFromClause {
	return &AdditionalFromClause{Name: name, Type: itemType, FromExpression: from}
}

// AddOrdering appends a sort key with lower priority than the existing ones.
func (c *OrderByClause) AddOrdering(o *Ordering) {
	c.Orderings = append(c.Orderings, o)
}

func transformAll(nodes []*expr.Node, fn func(expr.Node) (expr.Node, error)) error {
	for _, p := range nodes {
		out, err := fn(*p)
		if err != nil {
			return err
		}
		*p = out
	}
	return nil
}

func (c *MainFromClause) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return transformAll([]*expr.Node{&c.FromExpression}, fn)
}

func (c *AdditionalFromClause) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return transformAll([]*expr.Node{&c.FromExpression}, fn)
}

func (c *WhereClause) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return transformAll([]*expr.Node{&c.Predicate}, fn)
}

func (c *OrderByClause) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	ptrs := make([]*expr.Node, len(c.Orderings))
	for i, o := range c.Orderings {
		ptrs[i] = &o.Expression
	}
	return transformAll(ptrs, fn)
}

func (c *LetClause) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return transformAll([]*expr.Node{&c.Expression}, fn)
}

func (c *SelectClause) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return transformAll([]*expr.Node{&c.Selector}, fn)
}

// OutputDataInfo describes the sequence produced by the select clause.
func (c *SelectClause) OutputDataInfo() *StreamedSequenceInfo {
	t := c.Selector.Type()
	if t == nil {
		t = expr.AnyType
	}
	return &StreamedSequenceInfo{Type: reflect.SliceOf(t), ItemExpression: c.Selector}
}
