// Package queryir is the query representation for recorded sessions.
//
// A query selects rows from one source, either the recorded inputs or the
// stats snapshots, and filters them with predicates:
//
//	[--where text] -> [queryir.Select] -> [querysql] -> SQLite
//
// Query and Predicate are sealed interfaces: only this package implements
// them, so backends can switch over every node type exhaustively.
//
// Predicates:
//   - Compare: numeric field against a literal (=, !=, <, <=, >, >=)
//   - KindIs: input kind equality (inputs only)
//   - And: conjunction; empty means always true
//
// There is no OR. Run two queries instead.
//
// Snapshot fields are the JSON names of ir.StatsSnapshot, e.g. rpm or
// underruns. Input fields are seq and value. Validate rejects anything
// else, so compiled SQL never refers to an unknown field.
package queryir
