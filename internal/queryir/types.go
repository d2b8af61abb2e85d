package queryir

import (
	"fmt"
	"slices"

	"github.com/roach88/enginesim/internal/ir"
)

// Source names the table a query reads.
type Source string

const (
	SourceInputs    Source = "inputs"
	SourceSnapshots Source = "snapshots"
)

// SnapshotFields are the filterable stats fields, by JSON name.
var SnapshotFields = []string{
	"rpm", "load", "exhaust_flow", "manifold_pressure", "active_channels",
	"throttle", "simulated_time", "substeps", "version", "buffered_frames",
	"underruns", "overflows", "instabilities",
}

// InputFields are the filterable input columns.
var InputFields = []string{"seq", "value"}

// Fields returns the filterable fields of src, or nil for an unknown source.
func (src Source) Fields() []string {
	switch src {
	case SourceInputs:
		return InputFields
	case SourceSnapshots:
		return SnapshotFields
	default:
		return nil
	}
}

// HasField reports whether field can be filtered on in src.
func (src Source) HasField(field string) bool {
	return slices.Contains(src.Fields(), field)
}

// Query is a query over one session's recording.
type Query interface {
	queryNode()
}

// Predicate filters query rows.
type Predicate interface {
	predicateNode()
}

// Select reads the rows of one session from a source.
//
// Semantics:
//
//	SELECT * FROM <from> WHERE session_id = <session> AND <filter> ORDER BY seq
//
// Rows always come back in seq order. Limit caps the row count; zero means
// no limit.
type Select struct {
	From    Source
	Session string
	Filter  Predicate // nil = no filter
	Limit   int
}

func (Select) queryNode() {}

// CompareOp is a numeric comparison operator.
type CompareOp string

const (
	OpEq CompareOp = "="
	OpNe CompareOp = "!="
	OpLt CompareOp = "<"
	OpLe CompareOp = "<="
	OpGt CompareOp = ">"
	OpGe CompareOp = ">="
)

// compareOps is ordered longest first for parsing.
var compareOps = []CompareOp{OpLe, OpGe, OpNe, OpEq, OpLt, OpGt}

// Valid reports whether op is a known operator.
func (op CompareOp) Valid() bool { return slices.Contains(compareOps, op) }

// Compare tests a numeric field against a literal.
//
//	Compare{Field: "rpm", Op: OpGe, Value: 1000}
//
// becomes
//
//	json_extract(stats, '$.rpm') >= 1000
type Compare struct {
	Field string
	Op    CompareOp
	Value float64
}

func (Compare) predicateNode() {}

func (c Compare) String() string {
	return fmt.Sprintf("%s%s%g", c.Field, c.Op, c.Value)
}

// KindIs matches inputs of one kind.
type KindIs struct {
	Kind ir.InputKind
}

func (KindIs) predicateNode() {}

// And is a conjunction. An empty And is always true.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// Conjoin combines predicates, dropping nils. It returns nil when nothing
// is left and the predicate itself when only one is.
func Conjoin(preds ...Predicate) Predicate {
	kept := make([]Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			kept = append(kept, p)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return And{Predicates: kept}
	}
}
