package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar date format used in file names and tables.
const DateLayout = "2006-01-02"

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains reports whether t's calendar date lies within the range.
// Any time-of-day component of t is ignored.
func (r DateRange) Contains(t time.Time) bool {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return !d.Before(r.Start) && !d.After(r.End)
}

func (r DateRange) String() string {
	return r.Start.Format(DateLayout) + ".." + r.End.Format(DateLayout)
}

// ScoreSummary is one entity's row in the period summary.
type ScoreSummary struct {
	EntityID                string          `json:"entityId"`
	EntityName              string          `json:"entityName"`
	CriticalExpenseCount    int             `json:"criticalExpenseCount"`
	TotalSuspiciousExpenses int             `json:"totalSuspiciousExpenses"`
	TotalSuspiciousValue    decimal.Decimal `json:"totalSuspiciousValue"`
	MaxSuspicionScore       int             `json:"maxSuspicionScore"`
	AverageSuspicionScore   float64         `json:"averageSuspicionScore"`
}

// Report holds both tables produced for one (date, period) key.
type Report struct {
	Date      time.Time         `json:"date"`
	Period    string            `json:"period"`
	Range     DateRange         `json:"range"`
	Summaries []ScoreSummary    `json:"summaries"`
	Critical  []ReportedExpense `json:"critical"`
}

// NameCount is a label with the number of critical expenses carrying it.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// ReportData is the detailed view derived from a persisted report.
type ReportData struct {
	Date            time.Time         `json:"date"`
	Period          string            `json:"period"`
	TopEntities     []ScoreSummary    `json:"topEntities"`
	TopSuppliers    []NameCount       `json:"topSuppliers"`
	TopExpenseTypes []NameCount       `json:"topExpenseTypes"`
	TopExpenses     []ReportedExpense `json:"topExpenses"`
	Critical        []ReportedExpense `json:"critical"`
}
