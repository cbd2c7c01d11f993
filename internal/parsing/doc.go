// Package parsing turns an operator-call AST into a query model.
//
// Parsing happens in two phases. ParseTree walks the call chain from the
// outermost call down to the data source and builds a singly linked chain
// of Nodes, each pointing at its source. Arguments are scanned for nested
// operator chains on the way, and every chain found is parsed and applied
// on the spot, so a Node's arguments hold finished SubQuery markers rather
// than raw calls.
//
// ApplyAllNodes then replays the chain from the data source upwards. Each
// Node extends the model: the main source creates it, clause nodes append a
// body clause, Select replaces the projection, and result operator nodes
// append a result operator. Lambda arguments are resolved on the way by
// substituting the lambda parameter with a reference to the clause that
// produces the current item.
//
// Node types are looked up by call signature through a NodeTypeProvider.
// DefaultRegistry covers the built-in operator catalog; hosts add their own
// providers with CompoundProvider.
//
// A QueryParser holds per-parser state (the identifier generator) and must
// not be used from several goroutines at once. Independent parsers can run
// concurrently.
package parsing
