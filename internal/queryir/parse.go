package queryir

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/enginesim/internal/ir"
)

// ParseFilter parses a comma-separated conjunction of comparisons such as
//
//	rpm>=1000, underruns>0
//
// The term kind=<name> matches an input kind. Empty text yields nil.
// Field names are not checked here; Validate does that against a source.
func ParseFilter(text string) (Predicate, error) {
	var preds []Predicate
	for _, term := range strings.Split(text, ",") {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		p, err := parseTerm(term)
		if err != nil {
			return nil, err
		}
		preds = append(preds, p)
	}
	return Conjoin(preds...), nil
}

func parseTerm(term string) (Predicate, error) {
	for _, op := range compareOps {
		i := strings.Index(term, string(op))
		if i < 0 {
			continue
		}
		field := strings.TrimSpace(term[:i])
		literal := strings.TrimSpace(term[i+len(op):])
		if field == "" || literal == "" {
			return nil, fmt.Errorf("filter %q: expected <field>%s<value>", term, op)
		}

		if field == "kind" {
			if op != OpEq {
				return nil, fmt.Errorf("filter %q: kind only supports =", term)
			}
			return KindIs{Kind: ir.InputKind(literal)}, nil
		}

		value, err := strconv.ParseFloat(literal, 64)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %q is not a number", term, literal)
		}
		return Compare{Field: field, Op: op, Value: value}, nil
	}
	return nil, fmt.Errorf("filter %q: no comparison operator", term)
}
