// Package query filters flagged records with CEL expressions.
package query

import (
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// Filter is a compiled boolean CEL expression over one flagged record.
type Filter struct {
	expr    string
	program cel.Program
}

func newEnv() (*cel.Env, error) {
	return cel.NewEnv(
		cel.Variable("entity_id", cel.StringType),
		cel.Variable("document_date", cel.StringType),
		cel.Variable("weekday", cel.IntType),
		cel.Variable("net_value", cel.DoubleType),
		cel.Variable("expense_type", cel.StringType),
		cel.Variable("supplier_name", cel.StringType),
		cel.Variable("supplier_tax_id", cel.StringType),
		cel.Variable("fraud_score", cel.IntType),
		cel.Variable("year", cel.IntType),
		cel.Variable("month", cel.IntType),
		cel.Variable("flags", cel.MapType(cel.StringType, cel.BoolType)),
	)
}

// Compile parses expr. It must evaluate to a bool.
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty expression", domain.ErrInvalidInput)
	}

	env, err := newEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("%w: expression must return bool, got %s", domain.ErrInvalidInput, ast.OutputType())
	}

	program, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program: %w", err)
	}

	return &Filter{expr: expr, program: program}, nil
}

// String returns the source expression.
func (f *Filter) String() string {
	return f.expr
}

// Match evaluates the filter against one record.
func (f *Filter) Match(fe domain.FlaggedExpense) (bool, error) {
	out, _, err := f.program.Eval(activation(fe))
	if err != nil {
		return false, fmt.Errorf("%w: evaluating %q: %v", domain.ErrInvalidInput, f.expr, err)
	}
	b, ok := out.(types.Bool)
	if !ok {
		return false, fmt.Errorf("%w: expression returned %s", domain.ErrInvalidInput, out.Type())
	}
	return bool(b), nil
}

func activation(fe domain.FlaggedExpense) map[string]any {
	return map[string]any{
		"entity_id":       fe.EntityID,
		"document_date":   fe.DocumentDate.Format(domain.DateLayout),
		"weekday":         int64(fe.DocumentDate.Weekday()),
		"net_value":       fe.NetValue.InexactFloat64(),
		"expense_type":    fe.ExpenseType,
		"supplier_name":   fe.SupplierName,
		"supplier_tax_id": fe.SupplierTaxID,
		"fraud_score":     int64(fe.Score),
		"year":            int64(fe.Year),
		"month":           int64(fe.Month),
		"flags":           fe.Flags.Map(),
	}
}

// Query selects flagged records by date range and filter. Nil fields
// match everything.
type Query struct {
	Range  *domain.DateRange
	Filter *Filter
}

// Apply returns the records matching q, preserving order.
func (q Query) Apply(records []domain.FlaggedExpense) ([]domain.FlaggedExpense, error) {
	out := make([]domain.FlaggedExpense, 0, len(records))
	for _, fe := range records {
		if q.Range != nil && !q.Range.Contains(fe.DocumentDate) {
			continue
		}
		if q.Filter != nil {
			ok, err := q.Filter.Match(fe)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
		}
		out = append(out, fe)
	}
	return out, nil
}
