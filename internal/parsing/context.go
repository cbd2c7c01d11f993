package parsing

import "fmt"

// ClauseGenerationContext records which clause (or other query source) each
// Node produced while a chain is applied. One context serves a top-level
// parse and all subquery parses nested in it; every Node owns its own
// entry, so sibling subqueries never see each other's clauses.
//
// Lookups are made only for Nodes that have already been applied. A miss is
// a programming error and panics.
type ClauseGenerationContext struct {
	// ParseID correlates the log lines of one top-level parse.
	ParseID string

	infos map[Node]any
}

// NewClauseGenerationContext creates an empty context.
func NewClauseGenerationContext(parseID string) *ClauseGenerationContext {
	return &ClauseGenerationContext{ParseID: parseID, infos: make(map[Node]any)}
}

// AddContextInfo records what n produced. Panics if n already has an entry.
func (c *ClauseGenerationContext) AddContextInfo(n Node, info any) {
	if _, ok := c.infos[n]; ok {
		panic(fmt.Sprintf("parsing: node %T (%s) was applied twice", n, n.AssociatedIdentifier()))
	}
	c.infos[n] = info
}

// GetContextInfo returns what n produced. Panics if n has not been applied.
func (c *ClauseGenerationContext) GetContextInfo(n Node) any {
	info, ok := c.infos[n]
	if !ok {
		panic(fmt.Sprintf("parsing: node %T (%s) has not been applied", n, n.AssociatedIdentifier()))
	}
	return info
}

// Count returns the number of recorded nodes.
func (c *ClauseGenerationContext) Count() int { return len(c.infos) }
