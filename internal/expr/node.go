package expr

import (
	"reflect"
)

// Node is a sealed interface implemented by every AST node.
type Node interface {
	// Type returns the static type of the node. Nil means void.
	Type() reflect.Type

	// Kind returns the shape of the node.
	Kind() Kind

	String() string

	exprNode() // Marker method - seals interface to this package
}

// Kind identifies the shape of a node. Rewrite rules are registered per Kind.
type Kind int

const (
	KindConstant Kind = iota
	KindParameter
	KindMember
	KindCall
	KindLambda
	KindQuote
	KindUnary
	KindBinary
	KindConditional
	KindNew
	KindMemberInit
	KindListInit
	KindInvoke
	KindExtension
)

var kindNames = [...]string{
	KindConstant:    "Constant",
	KindParameter:   "Parameter",
	KindMember:      "Member",
	KindCall:        "Call",
	KindLambda:      "Lambda",
	KindQuote:       "Quote",
	KindUnary:       "Unary",
	KindBinary:      "Binary",
	KindConditional: "Conditional",
	KindNew:         "New",
	KindMemberInit:  "MemberInit",
	KindListInit:    "ListInit",
	KindInvoke:      "Invoke",
	KindExtension:   "Extension",
}

func (k Kind) String() string {
	if k >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(?)"
}

// Signature identifies a method or property by declaring type and name.
// It is the lookup key of the node type registry.
type Signature struct {
	Declaring string
	Name      string
}

func (s Signature) String() string {
	if s.Declaring == "" {
		return s.Name
	}
	return s.Declaring + "." + s.Name
}

// Method describes the target of a Call.
//
// Func is an optional Go implementation used by Eval. For calls with a
// receiver, the receiver is passed as the first argument. A function may
// return a single value or (value, error).
type Method struct {
	Declaring string
	Name      string
	Func      any
}

// Signature returns the registry key of the method.
func (m *Method) Signature() Signature {
	return Signature{Declaring: m.Declaring, Name: m.Name}
}

// Constant holds an embedded value.
type Constant struct {
	Value any
	Typ   reflect.Type
}

// Parameter is a lambda parameter. Parameters are compared by identity:
// every reference to a parameter inside a lambda body is the same pointer as
// the one declared in Lambda.Params.
type Parameter struct {
	Name string
	Typ  reflect.Type
}

// Member is a field or property access. X is nil for static members.
type Member struct {
	X         Node
	Declaring string
	Name      string
	Typ       reflect.Type
}

// Call is a method invocation. Object is nil for static and extension-style
// calls, in which case a query operator's source is Args[0].
type Call struct {
	Object Node
	Method *Method
	Args   []Node
	Typ    reflect.Type
}

// Lambda is an anonymous function.
type Lambda struct {
	Params []*Parameter
	Body   Node
}

// Quote marks a lambda passed as data rather than as a function value.
type Quote struct {
	Operand Node
}

// Unary applies a unary operator. Typ is the target type of Convert.
type Unary struct {
	Op  UnaryOp
	X   Node
	Typ reflect.Type
}

// Binary applies a binary operator.
type Binary struct {
	Op  BinaryOp
	X   Node
	Y   Node
	Typ reflect.Type
}

// Conditional is the ternary operator.
type Conditional struct {
	Test Node
	Then Node
	Else Node
	Typ  reflect.Type
}

// New constructs a value. When Members is set it names the member each
// argument is assigned to; this is the shape of anonymous carriers that keep
// several identifiers reachable at once.
type New struct {
	Typ     reflect.Type
	Args    []Node
	Members []string
}

// Binding assigns Value to Member inside a MemberInit.
type Binding struct {
	Member string
	Value  Node
}

// MemberInit is an object initializer: New followed by member assignments.
type MemberInit struct {
	New      *New
	Bindings []Binding
}

// ListInit is a collection initializer: New followed by Add calls.
type ListInit struct {
	New   *New
	Items []Node
}

// Invoke calls a function-valued expression, usually an inline lambda.
type Invoke struct {
	Fn   Node
	Args []Node
	Typ  reflect.Type
}

// ExtensionNode is embedded by node types defined outside this package.
type ExtensionNode struct{}

func (ExtensionNode) exprNode()  {}
func (ExtensionNode) Kind() Kind { return KindExtension }

// Extension is implemented by custom nodes. Children lists the nodes the
// generic traversals descend into; WithChildren rebuilds the node from a
// replacement list of the same length and must return the receiver when
// nothing changed.
type Extension interface {
	Node
	Children() []Node
	WithChildren(children []Node) Node
}

// Evaluable is implemented by extension nodes that Eval can compute.
type Evaluable interface {
	Eval(env Env) (any, error)
}

func (*Constant) exprNode()    {}
func (*Parameter) exprNode()   {}
func (*Member) exprNode()      {}
func (*Call) exprNode()        {}
func (*Lambda) exprNode()      {}
func (*Quote) exprNode()       {}
func (*Unary) exprNode()       {}
func (*Binary) exprNode()      {}
func (*Conditional) exprNode() {}
func (*New) exprNode()         {}
func (*MemberInit) exprNode()  {}
func (*ListInit) exprNode()    {}
func (*Invoke) exprNode()      {}

func (*Constant) Kind() Kind    { return KindConstant }
func (*Parameter) Kind() Kind   { return KindParameter }
func (*Member) Kind() Kind      { return KindMember }
func (*Call) Kind() Kind        { return KindCall }
func (*Lambda) Kind() Kind      { return KindLambda }
func (*Quote) Kind() Kind       { return KindQuote }
func (*Unary) Kind() Kind       { return KindUnary }
func (*Binary) Kind() Kind      { return KindBinary }
func (*Conditional) Kind() Kind { return KindConditional }
func (*New) Kind() Kind         { return KindNew }
func (*MemberInit) Kind() Kind  { return KindMemberInit }
func (*ListInit) Kind() Kind    { return KindListInit }
func (*Invoke) Kind() Kind      { return KindInvoke }

func (n *Constant) Type() reflect.Type    { return n.Typ }
func (n *Parameter) Type() reflect.Type   { return n.Typ }
func (n *Member) Type() reflect.Type      { return n.Typ }
func (n *Call) Type() reflect.Type        { return n.Typ }
func (n *Unary) Type() reflect.Type       { return n.Typ }
func (n *Binary) Type() reflect.Type      { return n.Typ }
func (n *Conditional) Type() reflect.Type { return n.Typ }
func (n *New) Type() reflect.Type         { return n.Typ }
func (n *MemberInit) Type() reflect.Type  { return n.New.Typ }
func (n *ListInit) Type() reflect.Type    { return n.New.Typ }
func (n *Invoke) Type() reflect.Type      { return n.Typ }
func (n *Quote) Type() reflect.Type       { return n.Operand.Type() }

// Type of a lambda is the Go function type from parameter types to the body
// type. Untyped parameters count as any.
func (n *Lambda) Type() reflect.Type {
	in := make([]reflect.Type, len(n.Params))
	for i, p := range n.Params {
		in[i] = p.Typ
		if in[i] == nil {
			in[i] = AnyType
		}
	}
	var out []reflect.Type
	if n.Body != nil && n.Body.Type() != nil {
		out = []reflect.Type{n.Body.Type()}
	}
	return reflect.FuncOf(in, out, false)
}

func (n *Constant) String() string    { return Format(n) }
func (n *Parameter) String() string   { return Format(n) }
func (n *Member) String() string      { return Format(n) }
func (n *Call) String() string        { return Format(n) }
func (n *Lambda) String() string      { return Format(n) }
func (n *Quote) String() string       { return Format(n) }
func (n *Unary) String() string       { return Format(n) }
func (n *Binary) String() string      { return Format(n) }
func (n *Conditional) String() string { return Format(n) }
func (n *New) String() string         { return Format(n) }
func (n *MemberInit) String() string  { return Format(n) }
func (n *ListInit) String() string    { return Format(n) }
func (n *Invoke) String() string      { return Format(n) }

// MemberIndex returns the position of the named member in a carrier, or -1.
func (n *New) MemberIndex(name string) int {
	for i, m := range n.Members {
		if m == name {
			return i
		}
	}
	return -1
}
