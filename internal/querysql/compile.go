package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/enginesim/internal/queryir"
)

// SQLCompiler compiles queries to parameterized SQLite.
//
// Every query is ordered by seq so results are deterministic, and every
// literal, including the JSON path of a stats field, is bound as a
// parameter rather than interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile validates q and converts it to SQL. Returns (sql, params, error).
//
// Snapshot queries select (seq, stats); input queries select
// (seq, kind, value, text).
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if res := queryir.Validate(q); !res.Valid {
		return "", nil, fmt.Errorf("invalid query: %s", strings.Join(res.Errors, "; "))
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var columns string
	switch q.From {
	case queryir.SourceSnapshots:
		columns = "seq, stats"
	case queryir.SourceInputs:
		columns = "seq, kind, value, text"
	}

	where := "session_id = ?"
	params := []any{q.Session}
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.From, q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where += " AND " + filterSQL
		params = append(params, filterParams...)
	}

	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY seq ASC", columns, q.From, where)
	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, q.Limit)
	}
	return sql, params, nil
}

func (c *SQLCompiler) compilePredicate(from queryir.Source, p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Compare:
		return c.compileCompare(from, pred)
	case *queryir.Compare:
		return c.compileCompare(from, *pred)
	case queryir.KindIs:
		return "kind = ?", []any{string(pred.Kind)}, nil
	case *queryir.KindIs:
		return "kind = ?", []any{string(pred.Kind)}, nil
	case queryir.And:
		return c.compileAnd(from, pred)
	case *queryir.And:
		return c.compileAnd(from, *pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileCompare reads snapshot fields out of the stats JSON and input
// fields from their columns. Compile has already checked input field
// names against queryir.InputFields.
func (c *SQLCompiler) compileCompare(from queryir.Source, cmp queryir.Compare) (string, []any, error) {
	if from == queryir.SourceSnapshots {
		return fmt.Sprintf("json_extract(stats, ?) %s ?", cmp.Op), []any{"$." + cmp.Field, cmp.Value}, nil
	}
	return fmt.Sprintf("%s %s ?", cmp.Field, cmp.Op), []any{cmp.Value}, nil
}

func (c *SQLCompiler) compileAnd(from queryir.Source, and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, pred := range and.Predicates {
		sql, ps, err := c.compilePredicate(from, pred)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, ps...)
	}
	return "(" + strings.Join(parts, " AND ") + ")", params, nil
}
