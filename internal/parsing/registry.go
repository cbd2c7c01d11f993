package parsing

import (
	"fmt"
	"reflect"
	"slices"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/fluent"
	"github.com/roach88/chainql/internal/querymodel"
)

// LenSignature is the signature under which the length access len(x) is
// looked up.
var LenSignature = expr.Signature{Declaring: "builtin", Name: "len"}

// NodeType creates the Node for one kind of operator call. args are the call
// arguments after the source, with nested chains replaced by subqueries and
// lambdas unwrapped.
type NodeType struct {
	Name   string
	Create func(info ParseInfo, args []expr.Node) (Node, error)
}

// NodeTypeProvider maps call signatures to node types.
type NodeTypeProvider interface {
	IsRegistered(sig expr.Signature) bool
	GetNodeType(sig expr.Signature) (*NodeType, bool)
}

// MethodRegistry is a NodeTypeProvider backed by a map.
type MethodRegistry struct {
	types map[expr.Signature]*NodeType
}

// NewMethodRegistry creates an empty registry.
func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{types: make(map[expr.Signature]*NodeType)}
}

// Register maps every signature in sigs to t, replacing earlier entries.
func (r *MethodRegistry) Register(t *NodeType, sigs ...expr.Signature) {
	for _, sig := range sigs {
		r.types[sig] = t
	}
}

// IsRegistered implements NodeTypeProvider.
func (r *MethodRegistry) IsRegistered(sig expr.Signature) bool {
	_, ok := r.types[sig]
	return ok
}

// GetNodeType implements NodeTypeProvider.
func (r *MethodRegistry) GetNodeType(sig expr.Signature) (*NodeType, bool) {
	t, ok := r.types[sig]
	return t, ok
}

// RegisteredCount returns the number of registered signatures.
func (r *MethodRegistry) RegisteredCount() int { return len(r.types) }

// Signatures returns the registered signatures, sorted.
func (r *MethodRegistry) Signatures() []expr.Signature {
	out := make([]expr.Signature, 0, len(r.types))
	for sig := range r.types {
		out = append(out, sig)
	}
	slices.SortFunc(out, func(a, b expr.Signature) int {
		if a.Declaring != b.Declaring {
			if a.Declaring < b.Declaring {
				return -1
			}
			return 1
		}
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return out
}

// CompoundProvider asks inner providers in order; the first match wins.
type CompoundProvider struct {
	providers []NodeTypeProvider
}

// NewCompoundProvider creates a provider over providers.
func NewCompoundProvider(providers ...NodeTypeProvider) *CompoundProvider {
	return &CompoundProvider{providers: providers}
}

// Add appends p after the existing providers.
func (c *CompoundProvider) Add(p NodeTypeProvider) {
	c.providers = append(c.providers, p)
}

// IsRegistered implements NodeTypeProvider.
func (c *CompoundProvider) IsRegistered(sig expr.Signature) bool {
	for _, p := range c.providers {
		if p.IsRegistered(sig) {
			return true
		}
	}
	return false
}

// GetNodeType implements NodeTypeProvider.
func (c *CompoundProvider) GetNodeType(sig expr.Signature) (*NodeType, bool) {
	for _, p := range c.providers {
		if t, ok := p.GetNodeType(sig); ok {
			return t, true
		}
	}
	return nil, false
}

// CachedProvider memoizes the lookups of an inner provider, misses
// included, in a bounded LRU cache. The inner provider must not change
// after the cache is created.
type CachedProvider struct {
	inner NodeTypeProvider
	cache *lru.Cache[expr.Signature, *NodeType]
}

// NewCachedProvider wraps inner with a cache of size entries.
func NewCachedProvider(inner NodeTypeProvider, size int) (*CachedProvider, error) {
	cache, err := lru.New[expr.Signature, *NodeType](size)
	if err != nil {
		return nil, fmt.Errorf("registry cache: %w", err)
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

// IsRegistered implements NodeTypeProvider.
func (c *CachedProvider) IsRegistered(sig expr.Signature) bool {
	_, ok := c.GetNodeType(sig)
	return ok
}

// GetNodeType implements NodeTypeProvider.
func (c *CachedProvider) GetNodeType(sig expr.Signature) (*NodeType, bool) {
	if t, ok := c.cache.Get(sig); ok {
		return t, t != nil
	}
	t, ok := c.inner.GetNodeType(sig)
	if !ok {
		t = nil
	}
	c.cache.Add(sig, t)
	return t, ok
}

// Len returns the number of cached signatures.
func (c *CachedProvider) Len() int { return c.cache.Len() }

func resultOp[T any, P interface {
	*T
	querymodel.ResultOperator
}]() func() querymodel.ResultOperator {
	return func() querymodel.ResultOperator { return P(new(T)) }
}

// catalog lists the built-in node types by operator name.
var catalog = func() map[string]*NodeType {
	types := []*NodeType{
		{Name: fluent.OpWhere, Create: newWhereNode},
		{Name: fluent.OpSelect, Create: newSelectNode},
		{Name: fluent.OpSelectMany, Create: newSelectManyNode},
		{Name: fluent.OpLet, Create: newLetNode},
		{Name: fluent.OpOrderBy, Create: orderByFactory(querymodel.Asc, false)},
		{Name: fluent.OpOrderByDescending, Create: orderByFactory(querymodel.Desc, false)},
		{Name: fluent.OpThenBy, Create: orderByFactory(querymodel.Asc, true)},
		{Name: fluent.OpThenByDescending, Create: orderByFactory(querymodel.Desc, true)},

		{Name: fluent.OpCount, Create: predicateOperator(fluent.OpCount, resultOp[querymodel.CountResultOperator]())},
		{Name: fluent.OpLongCount, Create: predicateOperator(fluent.OpLongCount, resultOp[querymodel.LongCountResultOperator]())},
		{Name: fluent.OpAny, Create: predicateOperator(fluent.OpAny, resultOp[querymodel.AnyResultOperator]())},
		{Name: fluent.OpFirst, Create: predicateOperator(fluent.OpFirst, func() querymodel.ResultOperator {
			return &querymodel.FirstResultOperator{}
		})},
		{Name: fluent.OpFirstOrDefault, Create: predicateOperator(fluent.OpFirstOrDefault, func() querymodel.ResultOperator {
			return &querymodel.FirstResultOperator{ReturnDefaultWhenEmpty: true}
		})},
		{Name: fluent.OpLast, Create: predicateOperator(fluent.OpLast, func() querymodel.ResultOperator {
			return &querymodel.LastResultOperator{}
		})},
		{Name: fluent.OpLastOrDefault, Create: predicateOperator(fluent.OpLastOrDefault, func() querymodel.ResultOperator {
			return &querymodel.LastResultOperator{ReturnDefaultWhenEmpty: true}
		})},
		{Name: fluent.OpSingle, Create: predicateOperator(fluent.OpSingle, func() querymodel.ResultOperator {
			return &querymodel.SingleResultOperator{}
		})},
		{Name: fluent.OpSingleOrDefault, Create: predicateOperator(fluent.OpSingleOrDefault, func() querymodel.ResultOperator {
			return &querymodel.SingleResultOperator{ReturnDefaultWhenEmpty: true}
		})},

		{Name: fluent.OpSum, Create: selectorOperator(fluent.OpSum, resultOp[querymodel.SumResultOperator]())},
		{Name: fluent.OpMin, Create: selectorOperator(fluent.OpMin, resultOp[querymodel.MinResultOperator]())},
		{Name: fluent.OpMax, Create: selectorOperator(fluent.OpMax, resultOp[querymodel.MaxResultOperator]())},
		{Name: fluent.OpAverage, Create: selectorOperator(fluent.OpAverage, resultOp[querymodel.AverageResultOperator]())},

		{Name: fluent.OpAll, Create: newAllNode},
		{Name: fluent.OpContains, Create: valueOperator(fluent.OpContains, func(arg expr.Node) querymodel.ResultOperator {
			return &querymodel.ContainsResultOperator{Item: arg}
		})},
		{Name: fluent.OpDistinct, Create: simpleOperator(fluent.OpDistinct, resultOp[querymodel.DistinctResultOperator]())},
		{Name: fluent.OpReverse, Create: simpleOperator(fluent.OpReverse, resultOp[querymodel.ReverseResultOperator]())},
		{Name: fluent.OpDefaultIfEmpty, Create: newDefaultIfEmptyNode},
		{Name: fluent.OpTake, Create: valueOperator(fluent.OpTake, func(arg expr.Node) querymodel.ResultOperator {
			return &querymodel.TakeResultOperator{Count: arg}
		})},
		{Name: fluent.OpSkip, Create: valueOperator(fluent.OpSkip, func(arg expr.Node) querymodel.ResultOperator {
			return &querymodel.SkipResultOperator{Count: arg}
		})},
		{Name: fluent.OpUnion, Create: valueOperator(fluent.OpUnion, func(arg expr.Node) querymodel.ResultOperator {
			return &querymodel.UnionResultOperator{Source2: arg}
		})},
		{Name: fluent.OpConcat, Create: valueOperator(fluent.OpConcat, func(arg expr.Node) querymodel.ResultOperator {
			return &querymodel.ConcatResultOperator{Source2: arg}
		})},
		{Name: fluent.OpCast, Create: typeOperator(fluent.OpCast, func(t reflect.Type) querymodel.ResultOperator {
			return &querymodel.CastResultOperator{CastItemType: t}
		})},
		{Name: fluent.OpOfType, Create: typeOperator(fluent.OpOfType, func(t reflect.Type) querymodel.ResultOperator {
			return &querymodel.OfTypeResultOperator{SearchedItemType: t}
		})},
		{Name: fluent.OpGroupBy, Create: newGroupByNode},
	}
	m := make(map[string]*NodeType, len(types))
	for _, t := range types {
		m[t.Name] = t
	}
	return m
}()

// NodeTypeByName returns the built-in node type for an operator name such
// as "Where" or "Count".
func NodeTypeByName(name string) (*NodeType, bool) {
	t, ok := catalog[name]
	return t, ok
}

// NodeTypeNames returns the names of the built-in node types in catalog
// order.
func NodeTypeNames() []string {
	var out []string
	for _, name := range fluent.Operators {
		if _, ok := catalog[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// DefaultRegistry registers every built-in operator under the Queryable and
// Enumerable declaring types, plus the Count property of sequences and the
// len builtin, both parsed as Count.
func DefaultRegistry() *MethodRegistry {
	r := NewMethodRegistry()
	for _, name := range fluent.Operators {
		t, ok := catalog[name]
		if !ok {
			continue
		}
		r.Register(t,
			expr.Signature{Declaring: fluent.Queryable, Name: name},
			expr.Signature{Declaring: fluent.Enumerable, Name: name},
		)
	}
	count := catalog[fluent.OpCount]
	r.Register(count, expr.Signature{Declaring: fluent.Sequence, Name: fluent.OpCount}, LenSignature)
	return r
}
