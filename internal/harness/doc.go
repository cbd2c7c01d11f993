// Package harness runs conformance scenarios against the query parser and
// the SQL compiler.
//
// A scenario declares tables, an AST over them, optional parser
// configuration in CUE, and the expected outcome of each stage.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: adults
//	description: "Where and Select become a filtered projection"
//	tables:
//	  people: Person
//	data:
//	  people:
//	    - {id: 1, name: ann, age: 40}
//	query:
//	  call:
//	    method: Queryable.Select
//	    type: "[]string"
//	    args:
//	      - call:
//	          method: Queryable.Where
//	          args:
//	            - table: people
//	            - lambda:
//	                params: [{name: p, type: Person}]
//	                body: {binary: {op: ">", x: {member: {of: {param: p}, name: Age}}, y: {const: 18}}}
//	      - lambda:
//	          params: [{name: p, type: Person}]
//	          body: {member: {of: {param: p}, name: Name}}
//	expect:
//	  model: from p in table(people) where ([p].Age > 18) select [p].Name
//	  sql: SELECT t0."name" AS "value" FROM "people" AS t0 ...
//	  params: [18]
//	  result: [ann]
//
// # Expectations
//
//   - model: the rendering of the parsed query model
//   - sql, params: the compiled statement
//   - result: the statement's value over data, run on in-memory SQLite
//   - error: an error code such as UNSUPPORTED_OPERATOR or SQL_UNSUPPORTED
//
// # Deterministic Testing
//
// Parse IDs come from testutil.FixedIDGenerator, and every run gets a fresh
// in-memory database, so snapshots are stable for golden comparison.
package harness
