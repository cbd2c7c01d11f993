package querymodel

import (
	"strings"

	"github.com/roach88/chainql/internal/expr"
)

func (c *MainFromClause) String() string {
	return "from " + c.Name + " in " + expr.Format(c.FromExpression)
}

func (c *AdditionalFromClause) String() string {
	return "from " + c.Name + " in " + expr.Format(c.FromExpression)
}

func (c *WhereClause) String() string {
	return "where " + expr.Format(c.Predicate)
}

func (o *Ordering) String() string {
	return expr.Format(o.Expression) + " " + o.Direction.String()
}

func (c *OrderByClause) String() string {
	parts := make([]string, len(c.Orderings))
	for i, o := range c.Orderings {
		parts[i] = o.String()
	}
	return "orderby " + strings.Join(parts, ", ")
}

func (c *LetClause) String() string {
	return "let " + c.Name + " = " + expr.Format(c.Expression)
}

func (c *SelectClause) String() string {
	return "select " + expr.Format(c.Selector)
}

// String renders the model in query syntax, for example
//
//	from x in people where ([x].Age > 5) select [x].Name => Count()
func (qm *QueryModel) String() string {
	var b strings.Builder
	for i, c := range qm.Clauses() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(c.String())
	}
	for _, op := range qm.ResultOperators {
		b.WriteString(" => ")
		b.WriteString(op.String())
	}
	return b.String()
}
