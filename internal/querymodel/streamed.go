package querymodel

import (
	"fmt"
	"reflect"

	"github.com/roach88/chainql/internal/expr"
)

// StreamedDataInfo describes the data leaving a select clause or result
// operator.
//
// This is a sealed interface - only types in this package implement it:
//   - StreamedSequenceInfo: a sequence of items
//   - StreamedSingleValueInfo: one item chosen from a sequence
//   - StreamedScalarValueInfo: a value computed from a sequence
type StreamedDataInfo interface {
	DataType() reflect.Type
	String() string
	streamedInfo() // Marker method - seals interface to this package
}

// StreamedSequenceInfo describes a sequence. ItemExpression shows how each
// item is built from the clauses of the model.
type StreamedSequenceInfo struct {
	Type           reflect.Type
	ItemExpression expr.Node
}

// StreamedSingleValueInfo describes one item taken from a sequence.
type StreamedSingleValueInfo struct {
	Type                   reflect.Type
	ReturnDefaultWhenEmpty bool
}

// StreamedScalarValueInfo describes a value aggregated from a sequence.
type StreamedScalarValueInfo struct {
	Type reflect.Type
}

func (*StreamedSequenceInfo) streamedInfo()    {}
func (*StreamedSingleValueInfo) streamedInfo() {}
func (*StreamedScalarValueInfo) streamedInfo() {}

func (i *StreamedSequenceInfo) DataType() reflect.Type    { return i.Type }
func (i *StreamedSingleValueInfo) DataType() reflect.Type { return i.Type }
func (i *StreamedScalarValueInfo) DataType() reflect.Type { return i.Type }

// ItemType returns the element type of the sequence.
func (i *StreamedSequenceInfo) ItemType() reflect.Type {
	t, ok := expr.ElementType(i.Type)
	if !ok {
		return expr.AnyType
	}
	return t
}

func (i *StreamedSequenceInfo) String() string {
	return "sequence " + expr.TypeName(i.Type) + " of " + expr.Format(i.ItemExpression)
}

func (i *StreamedSingleValueInfo) String() string {
	if i.ReturnDefaultWhenEmpty {
		return "single " + expr.TypeName(i.Type) + " or default"
	}
	return "single " + expr.TypeName(i.Type)
}

func (i *StreamedScalarValueInfo) String() string {
	return "scalar " + expr.TypeName(i.Type)
}

// StreamedData is data in memory together with its shape. Sequence values
// are []any.
type StreamedData struct {
	Info  StreamedDataInfo
	Value any
}

// Items returns the items of sequence data.
func (d StreamedData) Items() ([]any, error) {
	if _, ok := d.Info.(*StreamedSequenceInfo); !ok {
		return nil, fmt.Errorf("expected sequence data, got %v", d.Info)
	}
	items, ok := d.Value.([]any)
	if !ok && d.Value != nil {
		return nil, fmt.Errorf("sequence data holds %T, not []any", d.Value)
	}
	return items, nil
}

func sequenceInfo(input StreamedDataInfo) (*StreamedSequenceInfo, error) {
	seq, ok := input.(*StreamedSequenceInfo)
	if !ok {
		return nil, fmt.Errorf("input must be a sequence, got %v", input)
	}
	return seq, nil
}

// AsSlice converts a Go sequence value to []any. Queryable values that are
// not slices must implement Items() []any.
func AsSlice(v any) ([]any, error) {
	if v == nil {
		return nil, nil
	}
	if items, ok := v.([]any); ok {
		return items, nil
	}
	if src, ok := v.(interface{ Items() []any }); ok {
		return src.Items(), nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	}
	return nil, fmt.Errorf("%T is not a sequence", v)
}
