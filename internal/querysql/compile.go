package querysql

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/querymodel"
)

// ErrUnsupported is wrapped by errors for models the SQL backend cannot
// express.
var ErrUnsupported = errors.New("not supported by the SQL backend")

const (
	// valueColumn names the output column of scalar rows.
	valueColumn = "value"

	// ordColumn carries the row order out of a derived table.
	ordColumn = "_ord"
)

// Shape is the kind of result a compiled query produces.
type Shape int

const (
	ShapeSequence Shape = iota
	ShapeSingle
	ShapeScalar
)

func (s Shape) String() string {
	switch s {
	case ShapeSingle:
		return "single"
	case ShapeScalar:
		return "scalar"
	default:
		return "sequence"
	}
}

// Query is a compiled statement and what Run needs to shape its rows.
type Query struct {
	SQL     string
	Params  []any
	Columns []string
	Shape   Shape

	// Value is set when rows hold a single unnamed value instead of a
	// record.
	Value bool

	// OrDefault makes a single-item query return nil on no rows.
	OrDefault bool

	// Unique makes a single-item query fail on more than one row.
	Unique bool

	// NullIsEmpty makes a NULL scalar mean the input was empty.
	NullIsEmpty bool

	// Bool converts the scalar to a Go bool.
	Bool bool
}

// SQLCompiler compiles query models over Table sources to parameterized
// SQL for SQLite.
//
// CRITICAL: every sequence query ends its ORDER BY with a unique tiebreaker
// so results are deterministic.
// CRITICAL: values are always parameterized, never interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query model to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(qm *querymodel.QueryModel) (string, []any, error) {
	q, err := c.CompileQuery(qm)
	if err != nil {
		return "", nil, err
	}
	return q.SQL, q.Params, nil
}

// CompileQuery converts a query model to a Query ready for Run.
func (c *SQLCompiler) CompileQuery(qm *querymodel.QueryModel) (*Query, error) {
	if qm == nil {
		return nil, fmt.Errorf("cannot compile nil query model")
	}

	b := &builder{scope: make(map[querymodel.QuerySource]*source)}
	r, err := b.model(qm)
	if err != nil {
		return nil, err
	}

	sql, params := r.stmt.render()
	return &Query{
		SQL:         sql,
		Params:      params,
		Columns:     r.stmt.columnNames(),
		Shape:       r.shape,
		Value:       r.value,
		OrDefault:   r.orDefault,
		Unique:      r.unique,
		NullIsEmpty: r.nullIsEmpty,
		Bool:        r.boolean,
	}, nil
}

// fragment is a piece of SQL with the parameters of its placeholders in
// textual order.
type fragment struct {
	sql    string
	params []any
}

type column struct {
	fragment
	name string
}

type selectStmt struct {
	columns []column
	from    fragment
	where   []fragment
	groupBy []string
	orderBy []fragment
	limit   *fragment
	offset  *fragment
}

// simple reports whether aggregates can replace the column list in place.
func (s *selectStmt) simple() bool {
	return s.limit == nil && s.offset == nil && len(s.groupBy) == 0
}

func (s *selectStmt) columnNames() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.name
	}
	return out
}

func (s *selectStmt) render() (string, []any) {
	var b strings.Builder
	var params []any

	b.WriteString("SELECT ")
	for i, c := range s.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.sql + " AS " + quoteIdent(c.name))
		params = append(params, c.params...)
	}
	if s.from.sql != "" {
		b.WriteString(" FROM " + s.from.sql)
		params = append(params, s.from.params...)
	}
	if len(s.where) > 0 {
		b.WriteString(" WHERE ")
		params = joinFragments(&b, s.where, " AND ", params)
	}
	if len(s.groupBy) > 0 {
		b.WriteString(" GROUP BY " + strings.Join(s.groupBy, ", "))
	}
	if len(s.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		params = joinFragments(&b, s.orderBy, ", ", params)
	}
	if s.limit != nil || s.offset != nil {
		// SQLite needs a LIMIT before OFFSET; -1 means no limit.
		if s.limit != nil {
			b.WriteString(" LIMIT " + s.limit.sql)
			params = append(params, s.limit.params...)
		} else {
			b.WriteString(" LIMIT -1")
		}
		if s.offset != nil {
			b.WriteString(" OFFSET " + s.offset.sql)
			params = append(params, s.offset.params...)
		}
	}
	return b.String(), params
}

func joinFragments(b *strings.Builder, fs []fragment, sep string, params []any) []any {
	for i, f := range fs {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(f.sql)
		params = append(params, f.params...)
	}
	return params
}

// withOrdinal returns a copy of s that also projects each row's position.
func (s *selectStmt) withOrdinal() *selectStmt {
	var window fragment
	var terms []string
	for _, o := range s.orderBy {
		terms = append(terms, o.sql)
		window.params = append(window.params, o.params...)
	}
	window.sql = "ROW_NUMBER() OVER (ORDER BY " + strings.Join(terms, ", ") + ")"

	out := *s
	out.columns = append(append([]column(nil), s.columns...), column{fragment: window, name: ordColumn})
	return &out
}

// field maps an item member to a column.
type field struct {
	member string
	name   string
	sql    string
}

// source is a query source in scope: a table or a derived table.
type source struct {
	fields []field
	value  string
	order  string
}

func (s *source) field(member string) (field, bool) {
	for _, f := range s.fields {
		if f.member == member {
			return f, true
		}
	}
	return field{}, false
}

// result is a statement under construction and the shape of its rows.
type result struct {
	stmt   *selectStmt
	shape  Shape
	fields []field
	value  bool

	orDefault   bool
	unique      bool
	nullIsEmpty bool
	boolean     bool
}

type builder struct {
	scope map[querymodel.QuerySource]*source
	next  int
}

func (b *builder) alias(prefix string) string {
	a := fmt.Sprintf("%s%d", prefix, b.next)
	b.next++
	return a
}

func (b *builder) model(qm *querymodel.QueryModel) (*result, error) {
	src, from, err := b.from(qm.MainFromClause)
	if err != nil {
		return nil, err
	}
	s := &selectStmt{from: from}

	var orderings [][]fragment
	for _, c := range qm.BodyClauses {
		switch c := c.(type) {
		case *querymodel.WhereClause:
			f, err := b.expr(c.Predicate)
			if err != nil {
				return nil, fmt.Errorf("compile where: %w", err)
			}
			s.where = append(s.where, f)
		case *querymodel.OrderByClause:
			var terms []fragment
			for _, o := range c.Orderings {
				f, err := b.expr(o.Expression)
				if err != nil {
					return nil, fmt.Errorf("compile order by: %w", err)
				}
				terms = append(terms, orderTerm(f, o.Expression.Type(), o.Direction))
			}
			orderings = append(orderings, terms)
		default:
			return nil, fmt.Errorf("%w: clause %q", ErrUnsupported, c.String())
		}
	}
	// A later ordering is the primary key; earlier ones break its ties.
	for i := len(orderings) - 1; i >= 0; i-- {
		s.orderBy = append(s.orderBy, orderings[i]...)
	}
	// MANDATORY: unique tiebreaker last.
	s.orderBy = append(s.orderBy, fragment{sql: src.order})

	r, err := b.project(s, qm.SelectClause.Selector)
	if err != nil {
		return nil, fmt.Errorf("compile select: %w", err)
	}
	for _, op := range qm.ResultOperators {
		if err := b.apply(r, op); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (b *builder) from(main *querymodel.MainFromClause) (*source, fragment, error) {
	var src *source
	var from fragment

	switch n := main.FromExpression.(type) {
	case *expr.Constant:
		table, ok := n.Value.(Source)
		if !ok {
			return nil, from, fmt.Errorf("%w: source %s is not a table", ErrUnsupported, expr.Format(n))
		}
		cols, err := Columns(main.Type)
		if err != nil {
			return nil, from, err
		}
		alias := b.alias("t")
		src = &source{order: alias + "." + quoteIdent(table.KeyColumn()) + " COLLATE BINARY ASC"}
		for _, c := range cols {
			src.fields = append(src.fields, field{member: c.Field, name: c.Name, sql: alias + "." + quoteIdent(c.Name)})
		}
		from.sql = quoteIdent(table.TableName()) + " AS " + alias

	case *querymodel.SubQuery:
		inner, err := b.model(n.Model)
		if err != nil {
			return nil, from, err
		}
		if inner.shape != ShapeSequence {
			return nil, from, fmt.Errorf("%w: %s source", ErrUnsupported, inner.shape)
		}
		sql, params := inner.stmt.withOrdinal().render()
		alias := b.alias("q")
		src = &source{order: alias + "." + quoteIdent(ordColumn) + " ASC"}
		if inner.value {
			src.value = alias + "." + quoteIdent(valueColumn)
		}
		for _, f := range inner.fields {
			src.fields = append(src.fields, field{member: f.member, name: f.name, sql: alias + "." + quoteIdent(f.name)})
		}
		from = fragment{sql: "(" + sql + ") AS " + alias, params: params}

	default:
		return nil, from, fmt.Errorf("%w: source %s", ErrUnsupported, expr.Format(main.FromExpression))
	}

	b.scope[main] = src
	return src, from, nil
}

func (b *builder) project(s *selectStmt, selector expr.Node) (*result, error) {
	r := &result{stmt: s, shape: ShapeSequence}

	switch n := selector.(type) {
	case *querymodel.QuerySourceReference:
		src, ok := b.scope[n.Source]
		if !ok {
			return nil, fmt.Errorf("%w: reference to %s outside the query", ErrUnsupported, n)
		}
		if src.value != "" {
			s.columns = []column{{fragment: fragment{sql: src.value}, name: valueColumn}}
			r.value = true
			return r, nil
		}
		for _, f := range src.fields {
			s.columns = append(s.columns, column{fragment: fragment{sql: f.sql}, name: f.name})
			r.fields = append(r.fields, field{member: f.member, name: f.name})
		}

	case *expr.New:
		if len(n.Members) == 0 {
			return nil, fmt.Errorf("%w: positional construction %s", ErrUnsupported, expr.Format(n))
		}
		for i, m := range n.Members {
			if err := b.projectMember(r, m, n.Args[i]); err != nil {
				return nil, err
			}
		}

	case *expr.MemberInit:
		if len(n.New.Args) > 0 {
			return nil, fmt.Errorf("%w: constructor arguments in %s", ErrUnsupported, expr.Format(n))
		}
		for _, bnd := range n.Bindings {
			if err := b.projectMember(r, bnd.Member, bnd.Value); err != nil {
				return nil, err
			}
		}

	default:
		f, err := b.expr(selector)
		if err != nil {
			return nil, err
		}
		s.columns = []column{{fragment: f, name: valueColumn}}
		r.value = true
	}
	return r, nil
}

func (b *builder) projectMember(r *result, member string, n expr.Node) error {
	f, err := b.expr(n)
	if err != nil {
		return fmt.Errorf("member %s: %w", member, err)
	}
	r.stmt.columns = append(r.stmt.columns, column{fragment: f, name: member})
	r.fields = append(r.fields, field{member: member, name: member})
	return nil
}

// wrap turns the statement into a derived table and selects its columns
// in the same order. It returns the derived table's alias.
func (b *builder) wrap(r *result) string {
	sql, params := r.stmt.withOrdinal().render()
	alias := b.alias("q")
	s := &selectStmt{from: fragment{sql: "(" + sql + ") AS " + alias, params: params}}
	for _, name := range r.stmt.columnNames() {
		s.columns = append(s.columns, column{fragment: fragment{sql: alias + "." + quoteIdent(name)}, name: name})
	}
	s.orderBy = []fragment{{sql: alias + "." + quoteIdent(ordColumn) + " ASC"}}
	r.stmt = s
	return alias
}

func (b *builder) apply(r *result, op querymodel.ResultOperator) error {
	if r.shape != ShapeSequence {
		return fmt.Errorf("%w: %s after a %s result", ErrUnsupported, op.Name(), r.shape)
	}

	switch op := op.(type) {
	case *querymodel.CountResultOperator, *querymodel.LongCountResultOperator:
		return b.aggregate(r, "COUNT")
	case *querymodel.SumResultOperator:
		return b.aggregate(r, "SUM")
	case *querymodel.MinResultOperator:
		r.nullIsEmpty = true
		return b.aggregate(r, "MIN")
	case *querymodel.MaxResultOperator:
		r.nullIsEmpty = true
		return b.aggregate(r, "MAX")
	case *querymodel.AverageResultOperator:
		r.nullIsEmpty = true
		return b.aggregate(r, "AVG")

	case *querymodel.AnyResultOperator:
		sql, params := r.stmt.render()
		r.stmt = &selectStmt{columns: []column{{
			fragment: fragment{sql: "EXISTS (" + sql + ")", params: params},
			name:     valueColumn,
		}}}
		r.shape, r.fields, r.value, r.boolean = ShapeScalar, nil, true, true
		return nil

	case *querymodel.DistinctResultOperator:
		alias := b.wrap(r)
		for _, c := range r.stmt.columns {
			r.stmt.groupBy = append(r.stmt.groupBy, c.sql)
		}
		// First occurrence order.
		r.stmt.orderBy = []fragment{{sql: "MIN(" + alias + "." + quoteIdent(ordColumn) + ") ASC"}}
		return nil

	case *querymodel.TakeResultOperator:
		f, err := countParam(op.Count)
		if err != nil {
			return fmt.Errorf("compile Take: %w", err)
		}
		b.limit(r, f)
		return nil

	case *querymodel.SkipResultOperator:
		f, err := countParam(op.Count)
		if err != nil {
			return fmt.Errorf("compile Skip: %w", err)
		}
		if r.stmt.limit != nil || r.stmt.offset != nil {
			b.wrap(r)
		}
		r.stmt.offset = &f
		return nil

	case *querymodel.FirstResultOperator:
		b.limit(r, fragment{sql: "?", params: []any{int64(1)}})
		r.shape, r.orDefault = ShapeSingle, op.ReturnDefaultWhenEmpty
		return nil

	case *querymodel.SingleResultOperator:
		b.limit(r, fragment{sql: "?", params: []any{int64(2)}})
		r.shape, r.orDefault, r.unique = ShapeSingle, op.ReturnDefaultWhenEmpty, true
		return nil

	default:
		return fmt.Errorf("%w: result operator %s", ErrUnsupported, op.Name())
	}
}

func (b *builder) limit(r *result, f fragment) {
	if r.stmt.limit != nil {
		b.wrap(r)
	}
	r.stmt.limit = &f
}

func (b *builder) aggregate(r *result, fn string) error {
	if !r.stmt.simple() {
		b.wrap(r)
	}
	s := r.stmt

	arg := fragment{sql: "*"}
	if fn != "COUNT" {
		if len(s.columns) != 1 || !r.value {
			return fmt.Errorf("%w: %s over multi-column rows", ErrUnsupported, fn)
		}
		arg = s.columns[0].fragment
	}
	agg := fragment{sql: fn + "(" + arg.sql + ")", params: arg.params}
	if fn == "SUM" {
		agg.sql = "COALESCE(" + agg.sql + ", 0)"
	}

	s.columns = []column{{fragment: agg, name: valueColumn}}
	s.orderBy = nil
	r.shape, r.fields, r.value = ShapeScalar, nil, true
	return nil
}

func orderTerm(f fragment, t reflect.Type, dir querymodel.OrderingDirection) fragment {
	sql := f.sql
	if t != nil && t.Kind() == reflect.String {
		sql += " COLLATE BINARY"
	}
	if dir == querymodel.Desc {
		sql += " DESC"
	} else {
		sql += " ASC"
	}
	return fragment{sql: sql, params: f.params}
}

func countParam(n expr.Node) (fragment, error) {
	c, ok := n.(*expr.Constant)
	if !ok {
		return fragment{}, fmt.Errorf("%w: non-constant count %s", ErrUnsupported, expr.Format(n))
	}
	v, err := paramValue(c.Value)
	if err != nil {
		return fragment{}, err
	}
	i, ok := v.(int64)
	if !ok {
		return fragment{}, fmt.Errorf("count %s is not an integer", expr.Format(n))
	}
	// Negative counts behave like zero; SQLite reads a negative LIMIT as
	// unbounded.
	return fragment{sql: "?", params: []any{max(i, 0)}}, nil
}
