package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/store"
)

const (
	colSumEntityID = iota
	colSumEntityName
	colSumCritical
	colSumTotal
	colSumValue
	colSumMax
	colSumAverage
	numSummaryFields
)

// SummaryHeader returns the entity scores table columns.
func SummaryHeader() []string {
	return []string{
		"entity_id",
		"entity_name",
		"critical_expense_count",
		"total_suspicious_expenses",
		"total_suspicious_value",
		"max_suspicion_score",
		"average_suspicion_score",
	}
}

// CriticalHeader returns the critical expenses table columns: the entity
// name followed by the flagged-record columns.
func CriticalHeader() []string {
	return append([]string{"entity_name"}, store.FlaggedHeader()...)
}

// WriteSummaries writes the entity scores table, header included.
func WriteSummaries(w io.Writer, summaries []domain.ScoreSummary) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(SummaryHeader()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, s := range summaries {
		if err := cw.Write(MarshalSummary(s)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadSummaries reads the entity scores table, header included.
func ReadSummaries(r io.Reader) ([]domain.ScoreSummary, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numSummaryFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading summary CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	out := make([]domain.ScoreSummary, 0, len(records)-1)
	for i, rec := range records[1:] {
		s, err := UnmarshalSummary(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// MarshalSummary converts a summary to a CSV row. Value and mean are
// written with two decimals.
func MarshalSummary(s domain.ScoreSummary) []string {
	row := make([]string, numSummaryFields)
	row[colSumEntityID] = s.EntityID
	row[colSumEntityName] = s.EntityName
	row[colSumCritical] = strconv.Itoa(s.CriticalExpenseCount)
	row[colSumTotal] = strconv.Itoa(s.TotalSuspiciousExpenses)
	row[colSumValue] = s.TotalSuspiciousValue.StringFixed(2)
	row[colSumMax] = strconv.Itoa(s.MaxSuspicionScore)
	row[colSumAverage] = strconv.FormatFloat(s.AverageSuspicionScore, 'f', 2, 64)
	return row
}

// UnmarshalSummary converts a CSV row to a summary.
func UnmarshalSummary(record []string) (domain.ScoreSummary, error) {
	if len(record) != numSummaryFields {
		return domain.ScoreSummary{}, fmt.Errorf("expected %d fields, got %d", numSummaryFields, len(record))
	}

	ints := make([]int, 3)
	var err error
	for i, col := range []int{colSumCritical, colSumTotal, colSumMax} {
		ints[i], err = strconv.Atoi(record[col])
		if err != nil {
			return domain.ScoreSummary{}, fmt.Errorf("parsing column %d %q: %w", col+1, record[col], err)
		}
	}

	value, err := decimal.NewFromString(record[colSumValue])
	if err != nil {
		return domain.ScoreSummary{}, fmt.Errorf("parsing total_suspicious_value %q: %w", record[colSumValue], err)
	}
	avg, err := strconv.ParseFloat(record[colSumAverage], 64)
	if err != nil {
		return domain.ScoreSummary{}, fmt.Errorf("parsing average_suspicion_score %q: %w", record[colSumAverage], err)
	}

	return domain.ScoreSummary{
		EntityID:                record[colSumEntityID],
		EntityName:              record[colSumEntityName],
		CriticalExpenseCount:    ints[0],
		TotalSuspiciousExpenses: ints[1],
		TotalSuspiciousValue:    value,
		MaxSuspicionScore:       ints[2],
		AverageSuspicionScore:   avg,
	}, nil
}

// WriteCritical writes the critical expenses table, header included.
func WriteCritical(w io.Writer, records []domain.ReportedExpense) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CriticalHeader()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	for i, re := range records {
		if err := cw.Write(MarshalCritical(re)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCritical reads the critical expenses table, header included.
func ReadCritical(r io.Reader) ([]domain.ReportedExpense, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CriticalHeader())

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading critical CSV: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	out := make([]domain.ReportedExpense, 0, len(records)-1)
	for i, rec := range records[1:] {
		fe, err := store.UnmarshalFlagged(rec[1:])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, domain.ReportedExpense{FlaggedExpense: fe, EntityName: rec[0]})
	}
	return out, nil
}

// MarshalCritical converts a reported expense to a CSV row.
func MarshalCritical(re domain.ReportedExpense) []string {
	row := store.MarshalFlagged(re.FlaggedExpense)
	row[store.NetValueColumn] = re.NetValue.StringFixed(2)
	return append([]string{re.EntityName}, row...)
}
