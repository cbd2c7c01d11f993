package harness

import (
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"

	"github.com/roach88/chainql/internal/config"
	"github.com/roach88/chainql/internal/expr"
	"github.com/roach88/chainql/internal/fluent"
)

// Node is a YAML-encoded AST node. Exactly one of the node fields is set.
//
//	call:
//	  method: Queryable.Where
//	  args:
//	    - table: people
//	    - lambda:
//	        params: [{name: p, type: Person}]
//	        body:
//	          binary: {op: ">", x: {member: {of: {param: p}, name: Age}}, y: {const: 18}}
type Node struct {
	Table  string      `yaml:"table,omitempty"`
	Const  *yaml.Node  `yaml:"const,omitempty"`
	Null   string      `yaml:"nil,omitempty"`
	Param  string      `yaml:"param,omitempty"`
	Member *MemberNode `yaml:"member,omitempty"`
	Call   *CallNode   `yaml:"call,omitempty"`
	Lambda *LambdaNode `yaml:"lambda,omitempty"`
	Binary *BinaryNode `yaml:"binary,omitempty"`
	Not    *Node       `yaml:"not,omitempty"`
	Len    *Node       `yaml:"len,omitempty"`
	New    []NewMember `yaml:"new,omitempty"`

	// Type is the static type of a constant or a call. A call without
	// a type takes the type of its first argument.
	Type string `yaml:"type,omitempty"`
}

// MemberNode is a field access.
type MemberNode struct {
	Of   Node   `yaml:"of"`
	Name string `yaml:"name"`
}

// CallNode is a method call. Method is "Declaring.Name"; for query
// operators Args[0] is the source.
type CallNode struct {
	Method string `yaml:"method"`
	Args   []Node `yaml:"args"`
}

// LambdaNode is an anonymous function. It is quoted when passed to a
// Queryable operator.
type LambdaNode struct {
	Params []ParamDecl `yaml:"params"`
	Body   Node        `yaml:"body"`
}

// ParamDecl declares a lambda parameter.
type ParamDecl struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

// BinaryNode applies a binary operator written as in Go: "+", "==", "&&".
type BinaryNode struct {
	Op string `yaml:"op"`
	X  Node   `yaml:"x"`
	Y  Node   `yaml:"y"`
}

// NewMember assigns one member of an anonymous carrier.
type NewMember struct {
	Name  string `yaml:"name"`
	Value Node   `yaml:"value"`
}

// builder converts YAML nodes to expression trees.
type builder struct {
	types  *Types
	tables map[string]any
	params []*expr.Parameter
}

// BuildAST converts n. tables maps table names to table values.
func BuildAST(n *Node, types *Types, tables map[string]any) (expr.Node, error) {
	b := &builder{types: types, tables: tables}
	return b.build(n)
}

func (b *builder) build(n *Node) (expr.Node, error) {
	switch {
	case n.Table != "":
		t, ok := b.tables[n.Table]
		if !ok {
			return nil, fmt.Errorf("unknown table %q", n.Table)
		}
		return expr.Const(t), nil

	case n.Const != nil:
		var v any
		if err := n.Const.Decode(&v); err != nil {
			return nil, fmt.Errorf("line %d: decode const: %w", n.Const.Line, err)
		}
		if n.Type == "" {
			return expr.Const(v), nil
		}
		t, err := b.types.Lookup(n.Type)
		if err != nil {
			return nil, err
		}
		cv, err := expr.ConvertValue(v, t)
		if err != nil {
			return nil, fmt.Errorf("line %d: const %v as %s: %w", n.Const.Line, v, n.Type, err)
		}
		return expr.ConstOf(cv, t), nil

	case n.Null != "":
		t, err := b.types.Lookup(n.Null)
		if err != nil {
			return nil, err
		}
		return expr.ConstOf(nil, t), nil

	case n.Param != "":
		for i := len(b.params) - 1; i >= 0; i-- {
			if b.params[i].Name == n.Param {
				return b.params[i], nil
			}
		}
		return nil, fmt.Errorf("parameter %q is not in scope", n.Param)

	case n.Member != nil:
		x, err := b.build(&n.Member.Of)
		if err != nil {
			return nil, err
		}
		return expr.Field(x, n.Member.Name), nil

	case n.Call != nil:
		return b.call(n)

	case n.Lambda != nil:
		return b.lambda(n.Lambda)

	case n.Binary != nil:
		op, ok := expr.ParseBinaryOp(n.Binary.Op)
		if !ok {
			return nil, fmt.Errorf("unknown operator %q", n.Binary.Op)
		}
		x, err := b.build(&n.Binary.X)
		if err != nil {
			return nil, err
		}
		y, err := b.build(&n.Binary.Y)
		if err != nil {
			return nil, err
		}
		return expr.Bin(op, x, y), nil

	case n.Not != nil:
		x, err := b.build(n.Not)
		if err != nil {
			return nil, err
		}
		return expr.Not(x), nil

	case n.Len != nil:
		x, err := b.build(n.Len)
		if err != nil {
			return nil, err
		}
		return expr.Len(x), nil

	case len(n.New) > 0:
		names := make([]string, len(n.New))
		args := make([]expr.Node, len(n.New))
		for i, m := range n.New {
			v, err := b.build(&m.Value)
			if err != nil {
				return nil, fmt.Errorf("new %s: %w", m.Name, err)
			}
			names[i], args[i] = m.Name, v
		}
		return expr.NewCarrier(names, args...), nil
	}
	return nil, fmt.Errorf("empty AST node")
}

func (b *builder) lambda(l *LambdaNode) (*expr.Lambda, error) {
	params := make([]*expr.Parameter, len(l.Params))
	for i, d := range l.Params {
		t, err := b.types.Lookup(d.Type)
		if err != nil {
			return nil, fmt.Errorf("parameter %s: %w", d.Name, err)
		}
		params[i] = expr.Param(d.Name, t)
	}

	outer := b.params
	b.params = append(append([]*expr.Parameter(nil), outer...), params...)
	defer func() { b.params = outer }()

	body, err := b.build(&l.Body)
	if err != nil {
		return nil, err
	}
	return expr.Lam(body, params...), nil
}

func (b *builder) call(n *Node) (expr.Node, error) {
	sig, ok := config.ParseSignature(n.Call.Method)
	if !ok {
		return nil, fmt.Errorf("method %q is not of the form Type.Method", n.Call.Method)
	}

	args := make([]expr.Node, len(n.Call.Args))
	for i := range n.Call.Args {
		a, err := b.build(&n.Call.Args[i])
		if err != nil {
			return nil, fmt.Errorf("%s arg %d: %w", n.Call.Method, i, err)
		}
		if l, isLambda := a.(*expr.Lambda); isLambda && sig.Declaring == fluent.Queryable {
			a = expr.Quoted(l)
		}
		args[i] = a
	}

	var t reflect.Type
	switch {
	case n.Type != "":
		var err error
		if t, err = b.types.Lookup(n.Type); err != nil {
			return nil, err
		}
	case len(args) > 0:
		t = args[0].Type()
	default:
		return nil, fmt.Errorf("call %s needs a type", n.Call.Method)
	}
	return expr.StaticCall(fluent.Method(sig.Declaring, sig.Name), t, args...), nil
}
