package expr

// UnaryOp enumerates unary operators.
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNegate
	OpConvert
	OpLen // length access: len(x)
)

func (op UnaryOp) String() string {
	switch op {
	case OpNot:
		return "!"
	case OpNegate:
		return "-"
	case OpConvert:
		return "Convert"
	case OpLen:
		return "len"
	default:
		return "?"
	}
}

// BinaryOp enumerates binary operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNotEq
	OpLt
	OpLtEq
	OpGt
	OpGtEq
	OpAnd
	OpOr
	OpCoalesce
)

var binaryOpNames = [...]string{
	OpAdd:      "+",
	OpSub:      "-",
	OpMul:      "*",
	OpDiv:      "/",
	OpMod:      "%",
	OpEq:       "==",
	OpNotEq:    "!=",
	OpLt:       "<",
	OpLtEq:     "<=",
	OpGt:       ">",
	OpGtEq:     ">=",
	OpAnd:      "&&",
	OpOr:       "||",
	OpCoalesce: "??",
}

func (op BinaryOp) String() string {
	if op >= 0 && int(op) < len(binaryOpNames) {
		return binaryOpNames[op]
	}
	return "?"
}

// ParseBinaryOp maps an operator token to a BinaryOp.
func ParseBinaryOp(s string) (BinaryOp, bool) {
	for i, name := range binaryOpNames {
		if name == s {
			return BinaryOp(i), true
		}
	}
	return 0, false
}

// IsComparison reports whether op yields a bool from two operands.
func (op BinaryOp) IsComparison() bool {
	switch op {
	case OpEq, OpNotEq, OpLt, OpLtEq, OpGt, OpGtEq:
		return true
	}
	return false
}

// IsLogical reports whether op is a short-circuit boolean operator.
func (op BinaryOp) IsLogical() bool {
	return op == OpAnd || op == OpOr
}

// Negate returns the comparison with the opposite truth value.
func (op BinaryOp) Negate() (BinaryOp, bool) {
	switch op {
	case OpEq:
		return OpNotEq, true
	case OpNotEq:
		return OpEq, true
	case OpLt:
		return OpGtEq, true
	case OpLtEq:
		return OpGt, true
	case OpGt:
		return OpLtEq, true
	case OpGtEq:
		return OpLt, true
	}
	return op, false
}
