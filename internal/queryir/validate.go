package queryir

import (
	"fmt"
	"math"
	"slices"

	"github.com/roach88/enginesim/internal/ir"
)

// InputKinds lists every recorded input kind.
var InputKinds = []ir.InputKind{
	ir.InputLoad, ir.InputThrottle, ir.InputIgnition,
	ir.InputStarter, ir.InputAdvance, ir.InputRender,
}

// ValidationResult lists everything wrong with a query.
type ValidationResult struct {
	Valid  bool
	Errors []string
}

// Validate checks a query against its source. Every problem is reported,
// not just the first. Validate has no side effects.
func Validate(query Query) ValidationResult {
	v := &validator{errors: []string{}}
	v.validateQuery(query)

	return ValidationResult{
		Valid:  len(v.errors) == 0,
		Errors: v.errors,
	}
}

type validator struct {
	errors []string
	from   Source
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Select:
		v.validateSelect(query)
	case *Select:
		v.validateSelect(*query)
	default:
		v.addError("unknown query type %T", q)
	}
}

func (v *validator) validateSelect(sel Select) {
	v.from = sel.From
	if sel.From.Fields() == nil {
		v.addError("unknown source %q", sel.From)
	}
	if sel.Session == "" {
		v.addError("session is required")
	}
	if sel.Limit < 0 {
		v.addError("limit must be non-negative, got %d", sel.Limit)
	}
	v.validatePredicate(sel.Filter)
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
	case Compare:
		v.validateCompare(pred)
	case *Compare:
		v.validateCompare(*pred)
	case KindIs:
		v.validateKindIs(pred)
	case *KindIs:
		v.validateKindIs(*pred)
	case And:
		v.validateAnd(pred)
	case *And:
		v.validateAnd(*pred)
	default:
		v.addError("unknown predicate type %T", p)
	}
}

func (v *validator) validateCompare(c Compare) {
	if !v.from.HasField(c.Field) {
		v.addError("unknown %s field %q", v.from, c.Field)
	}
	if !c.Op.Valid() {
		v.addError("unknown operator %q", c.Op)
	}
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		v.addError("%s: value must be finite", c.Field)
	}
}

func (v *validator) validateKindIs(k KindIs) {
	if v.from != SourceInputs {
		v.addError("kind filter applies to inputs, not %s", v.from)
	}
	if !slices.Contains(InputKinds, k.Kind) {
		v.addError("unknown input kind %q", k.Kind)
	}
}

func (v *validator) validateAnd(and And) {
	for _, sub := range and.Predicates {
		v.validatePredicate(sub)
	}
}
