package querymodel

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/roach88/chainql/internal/expr"
)

// ResultOperator is a post-pipeline step that consumes the query output and
// may change its shape.
//
// ExecuteInMemory is the fallback used by an execution layer: given data
// matching the operator's input shape it returns data matching
// OutputDataInfo(input.Info).
type ResultOperator interface {
	Name() string
	OutputDataInfo(input StreamedDataInfo) (StreamedDataInfo, error)
	ExecuteInMemory(input StreamedData) (StreamedData, error)
	TransformExpressions(fn func(expr.Node) (expr.Node, error)) error
	String() string

	execute(input StreamedData, env expr.Env) (StreamedData, error)
	clone(ctx *CloneContext) (ResultOperator, error)
}

// ErrEmptySequence is returned by operators that need at least one item.
var ErrEmptySequence = errors.New("sequence contains no elements")

// ErrMoreThanOneElement is returned by Single when several items remain.
var ErrMoreThanOneElement = errors.New("sequence contains more than one element")

type (
	// CountResultOperator counts the items.
	CountResultOperator struct{}

	// LongCountResultOperator counts the items as int64.
	LongCountResultOperator struct{}

	// SumResultOperator adds the items.
	SumResultOperator struct{}

	// MinResultOperator selects the smallest item.
	MinResultOperator struct{}

	// MaxResultOperator selects the largest item.
	MaxResultOperator struct{}

	// AverageResultOperator computes the mean of the items as float64.
	AverageResultOperator struct{}

	// AnyResultOperator tests whether there is at least one item. Predicate
	// overloads are parsed into a where clause before this operator.
	AnyResultOperator struct{}

	// AllResultOperator tests whether every item satisfies Predicate.
	AllResultOperator struct {
		Predicate expr.Node
	}

	// ContainsResultOperator tests whether Item is one of the items.
	ContainsResultOperator struct {
		Item expr.Node
	}

	// FirstResultOperator selects the first item.
	FirstResultOperator struct {
		ReturnDefaultWhenEmpty bool
	}

	// LastResultOperator selects the last item.
	LastResultOperator struct {
		ReturnDefaultWhenEmpty bool
	}

	// SingleResultOperator selects the only item.
	SingleResultOperator struct {
		ReturnDefaultWhenEmpty bool
	}

	// DistinctResultOperator removes duplicate items.
	DistinctResultOperator struct{}

	// ReverseResultOperator reverses the item order.
	ReverseResultOperator struct{}

	// TakeResultOperator keeps the first Count items.
	TakeResultOperator struct {
		Count expr.Node
	}

	// SkipResultOperator drops the first Count items.
	SkipResultOperator struct {
		Count expr.Node
	}

	// DefaultIfEmptyResultOperator replaces an empty sequence by a sequence
	// holding OptionalDefaultValue, or the item type's zero value.
	DefaultIfEmptyResultOperator struct {
		OptionalDefaultValue expr.Node
	}

	// CastResultOperator converts every item to CastItemType.
	CastResultOperator struct {
		CastItemType reflect.Type
	}

	// OfTypeResultOperator keeps the items assignable to SearchedItemType.
	OfTypeResultOperator struct {
		SearchedItemType reflect.Type
	}

	// UnionResultOperator appends the items of Source2 and removes
	// duplicates.
	UnionResultOperator struct {
		Source2 expr.Node
	}

	// ConcatResultOperator appends the items of Source2.
	ConcatResultOperator struct {
		Source2 expr.Node
	}

	// GroupResultOperator groups items by KeySelector, collecting
	// ElementSelector for each item. It is the source of the groupings it
	// produces.
	GroupResultOperator struct {
		GroupName       string
		KeySelector     expr.Node
		ElementSelector expr.Node
	}
)

func (*CountResultOperator) Name() string          { return "Count" }
func (*LongCountResultOperator) Name() string      { return "LongCount" }
func (*SumResultOperator) Name() string            { return "Sum" }
func (*MinResultOperator) Name() string            { return "Min" }
func (*MaxResultOperator) Name() string            { return "Max" }
func (*AverageResultOperator) Name() string        { return "Average" }
func (*AnyResultOperator) Name() string            { return "Any" }
func (*AllResultOperator) Name() string            { return "All" }
func (*ContainsResultOperator) Name() string       { return "Contains" }
func (*DistinctResultOperator) Name() string       { return "Distinct" }
func (*ReverseResultOperator) Name() string        { return "Reverse" }
func (*TakeResultOperator) Name() string           { return "Take" }
func (*SkipResultOperator) Name() string           { return "Skip" }
func (*DefaultIfEmptyResultOperator) Name() string { return "DefaultIfEmpty" }
func (*CastResultOperator) Name() string           { return "Cast" }
func (*OfTypeResultOperator) Name() string         { return "OfType" }
func (*UnionResultOperator) Name() string          { return "Union" }
func (*ConcatResultOperator) Name() string         { return "Concat" }
func (*GroupResultOperator) Name() string          { return "GroupBy" }

func (o *FirstResultOperator) Name() string  { return orDefault("First", o.ReturnDefaultWhenEmpty) }
func (o *LastResultOperator) Name() string   { return orDefault("Last", o.ReturnDefaultWhenEmpty) }
func (o *SingleResultOperator) Name() string { return orDefault("Single", o.ReturnDefaultWhenEmpty) }

func orDefault(name string, orDefault bool) string {
	if orDefault {
		return name + "OrDefault"
	}
	return name
}

// ItemName and ItemType make GroupResultOperator a QuerySource.
func (o *GroupResultOperator) ItemName() string       { return o.GroupName }
func (o *GroupResultOperator) ItemType() reflect.Type { return expr.GroupingType }

func (o *CountResultOperator) String() string     { return "Count()" }
func (o *LongCountResultOperator) String() string { return "LongCount()" }
func (o *SumResultOperator) String() string       { return "Sum()" }
func (o *MinResultOperator) String() string       { return "Min()" }
func (o *MaxResultOperator) String() string       { return "Max()" }
func (o *AverageResultOperator) String() string   { return "Average()" }
func (o *AnyResultOperator) String() string       { return "Any()" }
func (o *AllResultOperator) String() string       { return "All(" + expr.Format(o.Predicate) + ")" }
func (o *ContainsResultOperator) String() string  { return "Contains(" + expr.Format(o.Item) + ")" }
func (o *FirstResultOperator) String() string     { return o.Name() + "()" }
func (o *LastResultOperator) String() string      { return o.Name() + "()" }
func (o *SingleResultOperator) String() string    { return o.Name() + "()" }
func (o *DistinctResultOperator) String() string  { return "Distinct()" }
func (o *ReverseResultOperator) String() string   { return "Reverse()" }
func (o *TakeResultOperator) String() string      { return "Take(" + expr.Format(o.Count) + ")" }
func (o *SkipResultOperator) String() string      { return "Skip(" + expr.Format(o.Count) + ")" }
func (o *CastResultOperator) String() string      { return "Cast<" + expr.TypeName(o.CastItemType) + ">()" }
func (o *OfTypeResultOperator) String() string    { return "OfType<" + expr.TypeName(o.SearchedItemType) + ">()" }
func (o *UnionResultOperator) String() string     { return "Union(" + expr.Format(o.Source2) + ")" }
func (o *ConcatResultOperator) String() string    { return "Concat(" + expr.Format(o.Source2) + ")" }

func (o *DefaultIfEmptyResultOperator) String() string {
	if o.OptionalDefaultValue == nil {
		return "DefaultIfEmpty()"
	}
	return "DefaultIfEmpty(" + expr.Format(o.OptionalDefaultValue) + ")"
}

func (o *GroupResultOperator) String() string {
	return "GroupBy(" + expr.Format(o.KeySelector) + ", " + expr.Format(o.ElementSelector) + ")"
}

// Output shapes.

func scalarOf(t reflect.Type) func(StreamedDataInfo) (StreamedDataInfo, error) {
	return func(input StreamedDataInfo) (StreamedDataInfo, error) {
		if _, err := sequenceInfo(input); err != nil {
			return nil, err
		}
		return &StreamedScalarValueInfo{Type: t}, nil
	}
}

func singleOf(input StreamedDataInfo, orDefault bool) (StreamedDataInfo, error) {
	seq, err := sequenceInfo(input)
	if err != nil {
		return nil, err
	}
	return &StreamedSingleValueInfo{Type: seq.ItemType(), ReturnDefaultWhenEmpty: orDefault}, nil
}

func sameSequence(input StreamedDataInfo) (StreamedDataInfo, error) {
	return sequenceInfo(input)
}

func (o *CountResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return scalarOf(expr.IntType)(in)
}

func (o *LongCountResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return scalarOf(reflect.TypeFor[int64]())(in)
}

func (o *SumResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	seq, err := sequenceInfo(in)
	if err != nil {
		return nil, err
	}
	return &StreamedScalarValueInfo{Type: seq.ItemType()}, nil
}

func (o *MinResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return singleOf(in, false)
}

func (o *MaxResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return singleOf(in, false)
}

func (o *AverageResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return scalarOf(reflect.TypeFor[float64]())(in)
}

func (o *AnyResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return scalarOf(expr.BoolType)(in)
}

func (o *AllResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return scalarOf(expr.BoolType)(in)
}

func (o *ContainsResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return scalarOf(expr.BoolType)(in)
}

func (o *FirstResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return singleOf(in, o.ReturnDefaultWhenEmpty)
}

func (o *LastResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return singleOf(in, o.ReturnDefaultWhenEmpty)
}

func (o *SingleResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return singleOf(in, o.ReturnDefaultWhenEmpty)
}

func (o *DistinctResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return sameSequence(in)
}

func (o *ReverseResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return sameSequence(in)
}

func (o *TakeResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return sameSequence(in)
}

func (o *SkipResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return sameSequence(in)
}

func (o *DefaultIfEmptyResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return sameSequence(in)
}

func (o *UnionResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return sameSequence(in)
}

func (o *ConcatResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return sameSequence(in)
}

func (o *CastResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return convertedSequence(in, o.CastItemType)
}

func (o *OfTypeResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	return convertedSequence(in, o.SearchedItemType)
}

func convertedSequence(in StreamedDataInfo, t reflect.Type) (StreamedDataInfo, error) {
	seq, err := sequenceInfo(in)
	if err != nil {
		return nil, err
	}
	return &StreamedSequenceInfo{
		Type:           reflect.SliceOf(t),
		ItemExpression: expr.Convert(seq.ItemExpression, t),
	}, nil
}

func (o *GroupResultOperator) OutputDataInfo(in StreamedDataInfo) (StreamedDataInfo, error) {
	if _, err := sequenceInfo(in); err != nil {
		return nil, err
	}
	return &StreamedSequenceInfo{Type: reflect.SliceOf(expr.GroupingType), ItemExpression: Ref(o)}, nil
}

// In-memory execution.

func (o *CountResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *LongCountResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *SumResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *MinResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *MaxResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *AverageResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *AnyResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *AllResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *ContainsResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *FirstResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *LastResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *SingleResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *DistinctResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *ReverseResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *TakeResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *SkipResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *DefaultIfEmptyResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *CastResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *OfTypeResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *UnionResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *ConcatResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}
func (o *GroupResultOperator) ExecuteInMemory(in StreamedData) (StreamedData, error) {
	return o.execute(in, nil)
}

// run validates the input, computes the output shape and wraps fn's value.
func run(op ResultOperator, in StreamedData, fn func(seq *StreamedSequenceInfo, items []any) (any, error)) (StreamedData, error) {
	seq, err := sequenceInfo(in.Info)
	if err != nil {
		return StreamedData{}, fmt.Errorf("%s: %w", op.Name(), err)
	}
	items, err := in.Items()
	if err != nil {
		return StreamedData{}, fmt.Errorf("%s: %w", op.Name(), err)
	}
	info, err := op.OutputDataInfo(in.Info)
	if err != nil {
		return StreamedData{}, fmt.Errorf("%s: %w", op.Name(), err)
	}
	v, err := fn(seq, items)
	if err != nil {
		return StreamedData{}, fmt.Errorf("%s: %w", op.Name(), err)
	}
	return StreamedData{Info: info, Value: v}, nil
}

func (o *CountResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		return len(items), nil
	})
}

func (o *LongCountResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		return int64(len(items)), nil
	})
}

func (o *SumResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(seq *StreamedSequenceInfo, items []any) (any, error) {
		acc := zeroOf(seq.ItemType())
		if acc == nil {
			acc = 0
		}
		for _, it := range items {
			if it == nil {
				continue
			}
			v, err := expr.BinaryValue(expr.OpAdd, acc, it)
			if err != nil {
				return nil, err
			}
			acc = v
		}
		return acc, nil
	})
}

func extreme(items []any, want int) (any, error) {
	var best any
	found := false
	for _, it := range items {
		if it == nil {
			continue
		}
		if !found {
			best, found = it, true
			continue
		}
		c, err := expr.CompareValues(it, best)
		if err != nil {
			return nil, err
		}
		if c == want {
			best = it
		}
	}
	if !found {
		return nil, ErrEmptySequence
	}
	return best, nil
}

func (o *MinResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		return extreme(items, -1)
	})
}

func (o *MaxResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		return extreme(items, 1)
	})
}

func (o *AverageResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		if len(items) == 0 {
			return nil, ErrEmptySequence
		}
		sum := 0.0
		for _, it := range items {
			f, err := expr.ConvertValue(it, reflect.TypeFor[float64]())
			if err != nil {
				return nil, err
			}
			sum += f.(float64)
		}
		return sum / float64(len(items)), nil
	})
}

func (o *AnyResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		return len(items) > 0, nil
	})
}

func (o *AllResultOperator) execute(in StreamedData, env expr.Env) (StreamedData, error) {
	return run(o, in, func(seq *StreamedSequenceInfo, items []any) (any, error) {
		for _, it := range items {
			v, err := expr.Eval(o.Predicate, itemEnv(seq.ItemExpression, it, env))
			if err != nil {
				return nil, err
			}
			if ok, _ := v.(bool); !ok {
				return false, nil
			}
		}
		return true, nil
	})
}

func (o *ContainsResultOperator) execute(in StreamedData, env expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		want, err := expr.Eval(o.Item, env)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			if expr.ValuesEqual(it, want) {
				return true, nil
			}
		}
		return false, nil
	})
}

func choose(items []any, itemType reflect.Type, orDefault bool, pick func([]any) (any, error)) (any, error) {
	if len(items) == 0 {
		if orDefault {
			return zeroOf(itemType), nil
		}
		return nil, ErrEmptySequence
	}
	return pick(items)
}

func (o *FirstResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(seq *StreamedSequenceInfo, items []any) (any, error) {
		return choose(items, seq.ItemType(), o.ReturnDefaultWhenEmpty, func(items []any) (any, error) {
			return items[0], nil
		})
	})
}

func (o *LastResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(seq *StreamedSequenceInfo, items []any) (any, error) {
		return choose(items, seq.ItemType(), o.ReturnDefaultWhenEmpty, func(items []any) (any, error) {
			return items[len(items)-1], nil
		})
	})
}

func (o *SingleResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(seq *StreamedSequenceInfo, items []any) (any, error) {
		return choose(items, seq.ItemType(), o.ReturnDefaultWhenEmpty, func(items []any) (any, error) {
			if len(items) > 1 {
				return nil, ErrMoreThanOneElement
			}
			return items[0], nil
		})
	})
}

func distinct(items []any) []any {
	out := make([]any, 0, len(items))
	for _, it := range items {
		dup := false
		for _, seen := range out {
			if expr.ValuesEqual(it, seen) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, it)
		}
	}
	return out
}

func (o *DistinctResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		return distinct(items), nil
	})
}

func (o *ReverseResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		out := make([]any, len(items))
		for i, it := range items {
			out[len(items)-1-i] = it
		}
		return out, nil
	})
}

func evalCount(n expr.Node, env expr.Env) (int, error) {
	v, err := expr.Eval(n, env)
	if err != nil {
		return 0, err
	}
	c, err := expr.ConvertValue(v, expr.IntType)
	if err != nil {
		return 0, err
	}
	return max(c.(int), 0), nil
}

func (o *TakeResultOperator) execute(in StreamedData, env expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		n, err := evalCount(o.Count, env)
		if err != nil {
			return nil, err
		}
		return items[:min(n, len(items))], nil
	})
}

func (o *SkipResultOperator) execute(in StreamedData, env expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		n, err := evalCount(o.Count, env)
		if err != nil {
			return nil, err
		}
		return items[min(n, len(items)):], nil
	})
}

func (o *DefaultIfEmptyResultOperator) execute(in StreamedData, env expr.Env) (StreamedData, error) {
	return run(o, in, func(seq *StreamedSequenceInfo, items []any) (any, error) {
		if len(items) > 0 {
			return items, nil
		}
		if o.OptionalDefaultValue == nil {
			return []any{zeroOf(seq.ItemType())}, nil
		}
		v, err := expr.Eval(o.OptionalDefaultValue, env)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	})
}

func (o *CastResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		out := make([]any, len(items))
		for i, it := range items {
			v, err := expr.ConvertValue(it, o.CastItemType)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	})
}

func (o *OfTypeResultOperator) execute(in StreamedData, _ expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		out := make([]any, 0, len(items))
		for _, it := range items {
			if it != nil && reflect.TypeOf(it).AssignableTo(o.SearchedItemType) {
				out = append(out, it)
			}
		}
		return out, nil
	})
}

func evalSequence(n expr.Node, env expr.Env) ([]any, error) {
	v, err := expr.Eval(n, env)
	if err != nil {
		return nil, err
	}
	return AsSlice(v)
}

func (o *UnionResultOperator) execute(in StreamedData, env expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		other, err := evalSequence(o.Source2, env)
		if err != nil {
			return nil, err
		}
		return distinct(append(append([]any(nil), items...), other...)), nil
	})
}

func (o *ConcatResultOperator) execute(in StreamedData, env expr.Env) (StreamedData, error) {
	return run(o, in, func(_ *StreamedSequenceInfo, items []any) (any, error) {
		other, err := evalSequence(o.Source2, env)
		if err != nil {
			return nil, err
		}
		return append(append([]any(nil), items...), other...), nil
	})
}

func (o *GroupResultOperator) execute(in StreamedData, env expr.Env) (StreamedData, error) {
	return run(o, in, func(seq *StreamedSequenceInfo, items []any) (any, error) {
		var groups []expr.Grouping
		for _, it := range items {
			itEnv := itemEnv(seq.ItemExpression, it, env)
			key, err := expr.Eval(o.KeySelector, itEnv)
			if err != nil {
				return nil, err
			}
			elem, err := expr.Eval(o.ElementSelector, itEnv)
			if err != nil {
				return nil, err
			}
			i := 0
			for i < len(groups) && !expr.ValuesEqual(groups[i].Key, key) {
				i++
			}
			if i == len(groups) {
				groups = append(groups, expr.Grouping{Key: key})
			}
			groups[i].Items = append(groups[i].Items, elem)
		}
		out := make([]any, len(groups))
		for i, g := range groups {
			out[i] = g
		}
		return out, nil
	})
}

func zeroOf(t reflect.Type) any {
	if t == nil {
		return nil
	}
	return reflect.Zero(t).Interface()
}

// Expression access.

func noExpressions(func(expr.Node) (expr.Node, error)) error { return nil }

func (o *CountResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *LongCountResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *SumResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *MinResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *MaxResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *AverageResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *AnyResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *AllResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return transformAll([]*expr.Node{&o.Predicate}, fn)
}
func (o *ContainsResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return transformAll([]*expr.Node{&o.Item}, fn)
}
func (o *FirstResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *LastResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *SingleResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *DistinctResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *ReverseResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *TakeResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return transformAll([]*expr.Node{&o.Count}, fn)
}
func (o *SkipResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return transformAll([]*expr.Node{&o.Count}, fn)
}
func (o *DefaultIfEmptyResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	if o.OptionalDefaultValue == nil {
		return nil
	}
	return transformAll([]*expr.Node{&o.OptionalDefaultValue}, fn)
}
func (o *CastResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *OfTypeResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return noExpressions(fn)
}
func (o *UnionResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return transformAll([]*expr.Node{&o.Source2}, fn)
}
func (o *ConcatResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return transformAll([]*expr.Node{&o.Source2}, fn)
}
func (o *GroupResultOperator) TransformExpressions(fn func(expr.Node) (expr.Node, error)) error {
	return transformAll([]*expr.Node{&o.KeySelector, &o.ElementSelector}, fn)
}
