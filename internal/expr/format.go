package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Format renders n in a compact, deterministic, C-like syntax:
//
//	people.Where(x => (x.Age > 5))
//
// Extension nodes render through their own String method.
func Format(n Node) string {
	var b strings.Builder
	format(&b, n)
	return b.String()
}

func format(b *strings.Builder, n Node) {
	switch n := n.(type) {
	case nil:
		b.WriteString("<nil>")
	case *Constant:
		b.WriteString(FormatValue(n.Value))
	case *Parameter:
		b.WriteString(n.Name)
	case *Member:
		if n.X == nil {
			b.WriteString(n.Declaring)
		} else {
			format(b, n.X)
		}
		b.WriteByte('.')
		b.WriteString(n.Name)
	case *Call:
		if n.Object != nil {
			format(b, n.Object)
			b.WriteByte('.')
			b.WriteString(n.Method.Name)
		} else {
			b.WriteString(n.Method.Signature().String())
		}
		formatList(b, "(", n.Args, ")")
	case *Lambda:
		formatLambda(b, n)
	case *Quote:
		format(b, n.Operand)
	case *Unary:
		switch n.Op {
		case OpNot, OpNegate:
			b.WriteString(n.Op.String())
			format(b, n.X)
		case OpLen:
			b.WriteString("len(")
			format(b, n.X)
			b.WriteByte(')')
		case OpConvert:
			b.WriteString("Convert(")
			format(b, n.X)
			b.WriteString(", ")
			b.WriteString(TypeName(n.Typ))
			b.WriteByte(')')
		}
	case *Binary:
		b.WriteByte('(')
		format(b, n.X)
		b.WriteByte(' ')
		b.WriteString(n.Op.String())
		b.WriteByte(' ')
		format(b, n.Y)
		b.WriteByte(')')
	case *Conditional:
		b.WriteString("IIF(")
		format(b, n.Test)
		b.WriteString(", ")
		format(b, n.Then)
		b.WriteString(", ")
		format(b, n.Else)
		b.WriteByte(')')
	case *New:
		formatNew(b, n)
	case *MemberInit:
		formatNew(b, n.New)
		b.WriteString(" {")
		for i, bind := range n.Bindings {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(bind.Member)
			b.WriteString(" = ")
			format(b, bind.Value)
		}
		b.WriteByte('}')
	case *ListInit:
		formatNew(b, n.New)
		formatList(b, " {", n.Items, "}")
	case *Invoke:
		b.WriteString("Invoke(")
		format(b, n.Fn)
		for _, a := range n.Args {
			b.WriteString(", ")
			format(b, a)
		}
		b.WriteByte(')')
	default:
		b.WriteString(n.String())
	}
}

func formatLambda(b *strings.Builder, l *Lambda) {
	if len(l.Params) == 1 {
		b.WriteString(l.Params[0].Name)
	} else {
		b.WriteByte('(')
		for i, p := range l.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(p.Name)
		}
		b.WriteByte(')')
	}
	b.WriteString(" => ")
	format(b, l.Body)
}

func formatNew(b *strings.Builder, n *New) {
	if n.Members != nil {
		b.WriteString("new {")
		for i, a := range n.Args {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(n.Members[i])
			b.WriteString(" = ")
			format(b, a)
		}
		b.WriteByte('}')
		return
	}
	b.WriteString("new ")
	b.WriteString(TypeName(n.Typ))
	formatList(b, "(", n.Args, ")")
}

func formatList(b *strings.Builder, open string, nodes []Node, close string) {
	b.WriteString(open)
	for i, a := range nodes {
		if i > 0 {
			b.WriteString(", ")
		}
		format(b, a)
	}
	b.WriteString(close)
}

// FormatValue renders a constant value. Strings are quoted; values that are
// neither scalars nor Stringers render as value(Type).
func FormatValue(v any) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(v)
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprint(v)
	case float32:
		return strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64)
	case *Lambda:
		return Format(v)
	case fmt.Stringer:
		return v.String()
	}
	return "value(" + reflect.TypeOf(v).String() + ")"
}
