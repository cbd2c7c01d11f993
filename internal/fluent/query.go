package fluent

import (
	"reflect"

	"github.com/roach88/chainql/internal/expr"
)

// Query wraps an operator-call AST under construction.
type Query struct {
	node      expr.Node
	declaring string
}

// From starts a Queryable chain over a data source value, typically a slice
// or a table implementing expr.Queryable.
func From(source any) Query {
	return Query{node: expr.Const(source), declaring: Queryable}
}

// Over starts an Enumerable chain over an arbitrary sequence expression,
// such as a member of the current item. Lambdas are passed unquoted.
func Over(source expr.Node) Query {
	return Query{node: source, declaring: Enumerable}
}

// Node returns the AST built so far.
func (q Query) Node() expr.Node { return q.node }

// ElementType returns the item type of the chain.
func (q Query) ElementType() reflect.Type {
	t, ok := expr.ElementType(q.node.Type())
	if !ok {
		return expr.AnyType
	}
	return t
}

// Fn builds a one-parameter lambda typed by t.
func Fn(name string, t reflect.Type, body func(x expr.Node) expr.Node) *expr.Lambda {
	p := expr.Param(name, t)
	return expr.Lam(body(p), p)
}

// Fn2 builds a two-parameter lambda.
func Fn2(n1 string, t1 reflect.Type, n2 string, t2 reflect.Type, body func(x, y expr.Node) expr.Node) *expr.Lambda {
	p1, p2 := expr.Param(n1, t1), expr.Param(n2, t2)
	return expr.Lam(body(p1, p2), p1, p2)
}

func (q Query) lambda(l *expr.Lambda) expr.Node {
	if q.declaring == Queryable {
		return expr.Quoted(l)
	}
	return l
}

func (q Query) call(name string, t reflect.Type, args ...expr.Node) expr.Node {
	return expr.StaticCall(Method(q.declaring, name), t, append([]expr.Node{q.node}, args...)...)
}

func (q Query) chain(name string, t reflect.Type, args ...expr.Node) Query {
	return Query{node: q.call(name, t, args...), declaring: q.declaring}
}

func (q Query) seqType() reflect.Type {
	return reflect.SliceOf(q.ElementType())
}

func bodyType(l *expr.Lambda) reflect.Type {
	if l.Body == nil || l.Body.Type() == nil {
		return expr.AnyType
	}
	return l.Body.Type()
}

// Where filters items by pred.
func (q Query) Where(pred *expr.Lambda) Query {
	return q.chain(OpWhere, q.seqType(), q.lambda(pred))
}

// Select projects each item.
func (q Query) Select(sel *expr.Lambda) Query {
	return q.chain(OpSelect, reflect.SliceOf(bodyType(sel)), q.lambda(sel))
}

// SelectMany flattens the sequences produced by coll. With a result
// selector the output items are result(item, inner); otherwise the inner
// items themselves.
func (q Query) SelectMany(coll, result *expr.Lambda) Query {
	if result == nil {
		inner, ok := expr.ElementType(bodyType(coll))
		if !ok {
			inner = expr.AnyType
		}
		return q.chain(OpSelectMany, reflect.SliceOf(inner), q.lambda(coll))
	}
	return q.chain(OpSelectMany, reflect.SliceOf(bodyType(result)), q.lambda(coll), q.lambda(result))
}

// Let introduces a named intermediate value. With a result selector the
// output items are result(item, value); otherwise items are unchanged.
func (q Query) Let(value, result *expr.Lambda) Query {
	if result == nil {
		return q.chain(OpLet, q.seqType(), q.lambda(value))
	}
	return q.chain(OpLet, reflect.SliceOf(bodyType(result)), q.lambda(value), q.lambda(result))
}

func (q Query) OrderBy(key *expr.Lambda) Query {
	return q.chain(OpOrderBy, q.seqType(), q.lambda(key))
}

func (q Query) OrderByDescending(key *expr.Lambda) Query {
	return q.chain(OpOrderByDescending, q.seqType(), q.lambda(key))
}

func (q Query) ThenBy(key *expr.Lambda) Query {
	return q.chain(OpThenBy, q.seqType(), q.lambda(key))
}

func (q Query) ThenByDescending(key *expr.Lambda) Query {
	return q.chain(OpThenByDescending, q.seqType(), q.lambda(key))
}

func (q Query) Distinct() Query       { return q.chain(OpDistinct, q.seqType()) }
func (q Query) Reverse() Query        { return q.chain(OpReverse, q.seqType()) }
func (q Query) DefaultIfEmpty() Query { return q.chain(OpDefaultIfEmpty, q.seqType()) }

func (q Query) Take(n int) Query { return q.chain(OpTake, q.seqType(), expr.Const(n)) }
func (q Query) Skip(n int) Query { return q.chain(OpSkip, q.seqType(), expr.Const(n)) }

// Cast converts every item to t.
func (q Query) Cast(t reflect.Type) Query {
	return q.chain(OpCast, reflect.SliceOf(t), expr.ConstOf(t, reflect.TypeFor[reflect.Type]()))
}

// OfType keeps the items assignable to t.
func (q Query) OfType(t reflect.Type) Query {
	return q.chain(OpOfType, reflect.SliceOf(t), expr.ConstOf(t, reflect.TypeFor[reflect.Type]()))
}

func (q Query) Union(other expr.Node) Query  { return q.chain(OpUnion, q.seqType(), other) }
func (q Query) Concat(other expr.Node) Query { return q.chain(OpConcat, q.seqType(), other) }

// GroupBy groups items by key. elem optionally projects the grouped items.
func (q Query) GroupBy(key, elem *expr.Lambda) Query {
	args := []expr.Node{q.lambda(key)}
	if elem != nil {
		args = append(args, q.lambda(elem))
	}
	return q.chain(OpGroupBy, reflect.SliceOf(expr.GroupingType), args...)
}

// Terminal operators. An optional predicate or selector is passed as the
// operator's lambda argument.

func (q Query) Count(pred ...*expr.Lambda) expr.Node {
	return q.call(OpCount, expr.IntType, q.lambdas(pred)...)
}

func (q Query) LongCount(pred ...*expr.Lambda) expr.Node {
	return q.call(OpLongCount, reflect.TypeFor[int64](), q.lambdas(pred)...)
}

func (q Query) Sum(sel ...*expr.Lambda) expr.Node { return q.aggregate(OpSum, sel) }
func (q Query) Min(sel ...*expr.Lambda) expr.Node { return q.aggregate(OpMin, sel) }
func (q Query) Max(sel ...*expr.Lambda) expr.Node { return q.aggregate(OpMax, sel) }

func (q Query) Average(sel ...*expr.Lambda) expr.Node {
	return q.call(OpAverage, reflect.TypeFor[float64](), q.lambdas(sel)...)
}

func (q Query) Any(pred ...*expr.Lambda) expr.Node {
	return q.call(OpAny, expr.BoolType, q.lambdas(pred)...)
}

func (q Query) All(pred *expr.Lambda) expr.Node {
	return q.call(OpAll, expr.BoolType, q.lambda(pred))
}

// Contains tests membership of item, a value or an expression.
func (q Query) Contains(item any) expr.Node {
	n, ok := item.(expr.Node)
	if !ok {
		n = expr.Const(item)
	}
	return q.call(OpContains, expr.BoolType, n)
}

func (q Query) First(pred ...*expr.Lambda) expr.Node { return q.single(OpFirst, pred) }
func (q Query) FirstOrDefault(pred ...*expr.Lambda) expr.Node {
	return q.single(OpFirstOrDefault, pred)
}
func (q Query) Last(pred ...*expr.Lambda) expr.Node { return q.single(OpLast, pred) }
func (q Query) LastOrDefault(pred ...*expr.Lambda) expr.Node {
	return q.single(OpLastOrDefault, pred)
}
func (q Query) Single(pred ...*expr.Lambda) expr.Node { return q.single(OpSingle, pred) }
func (q Query) SingleOrDefault(pred ...*expr.Lambda) expr.Node {
	return q.single(OpSingleOrDefault, pred)
}

func (q Query) single(name string, pred []*expr.Lambda) expr.Node {
	return q.call(name, q.ElementType(), q.lambdas(pred)...)
}

func (q Query) aggregate(name string, sel []*expr.Lambda) expr.Node {
	t := q.ElementType()
	if len(sel) > 0 {
		t = bodyType(sel[0])
	}
	return q.call(name, t, q.lambdas(sel)...)
}

func (q Query) lambdas(ls []*expr.Lambda) []expr.Node {
	out := make([]expr.Node, 0, len(ls))
	for _, l := range ls {
		out = append(out, q.lambda(l))
	}
	return out
}

// Len is the conventional length access len(seq), which compiles like Count.
func Len(seq expr.Node) expr.Node {
	return expr.Len(seq)
}

// CountOf is the Count property of a sequence, which compiles like Count.
func CountOf(seq expr.Node) expr.Node {
	return &expr.Member{X: seq, Declaring: Sequence, Name: OpCount, Typ: expr.IntType}
}
