package rules

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// Detector classifies every record of one entity under a single rule.
// Classify returns one decision per record, in record order, and must not
// depend on any other detector's output.
type Detector interface {
	Flag() domain.Flag
	Classify(records []domain.ExpenseRecord) []bool
}

// Detectors returns the fixed detector list, one per flag.
func Detectors() []Detector {
	return []Detector{
		Weekend{},
		RoundValue{},
		OutlierIQR{},
		Duplicate{},
		HighPercentile{},
	}
}

// Weekend flags claims dated on a Saturday or Sunday.
type Weekend struct{}

func (Weekend) Flag() domain.Flag { return domain.FlagWeekend }

func (Weekend) Classify(records []domain.ExpenseRecord) []bool {
	out := make([]bool, len(records))
	for i, r := range records {
		wd := r.DocumentDate.Weekday()
		out[i] = wd == time.Saturday || wd == time.Sunday
	}
	return out
}

var roundDivisors = []decimal.Decimal{
	decimal.NewFromInt(100),
	decimal.NewFromInt(500),
	decimal.NewFromInt(1000),
}

// RoundValue flags positive values that are exact multiples of 100, 500 or 1000.
type RoundValue struct{}

func (RoundValue) Flag() domain.Flag { return domain.FlagRoundValue }

func (RoundValue) Classify(records []domain.ExpenseRecord) []bool {
	out := make([]bool, len(records))
	for i, r := range records {
		if !r.NetValue.IsPositive() {
			continue
		}
		for _, d := range roundDivisors {
			if r.NetValue.Mod(d).IsZero() {
				out[i] = true
				break
			}
		}
	}
	return out
}

// OutlierIQR flags values above Q3 + 1.5*IQR of the entity's own values.
type OutlierIQR struct{}

func (OutlierIQR) Flag() domain.Flag { return domain.FlagOutlierValue }

func (OutlierIQR) Classify(records []domain.ExpenseRecord) []bool {
	out := make([]bool, len(records))
	if len(records) == 0 {
		return out
	}
	sorted := sortedValues(records)
	q1 := quantile(sorted, 0.25)
	q3 := quantile(sorted, 0.75)
	upper := q3 + 1.5*(q3-q1)
	for i, r := range records {
		out[i] = r.NetValue.InexactFloat64() > upper
	}
	return out
}

// Duplicate flags every record sharing date, supplier tax id and value with
// another record of the same entity. All members of a group are flagged.
type Duplicate struct{}

func (Duplicate) Flag() domain.Flag { return domain.FlagDuplicateTransaction }

func (Duplicate) Classify(records []domain.ExpenseRecord) []bool {
	counts := make(map[string]int, len(records))
	keys := make([]string, len(records))
	for i, r := range records {
		keys[i] = duplicateKey(r)
		counts[keys[i]]++
	}
	out := make([]bool, len(records))
	for i, k := range keys {
		out[i] = counts[k] > 1
	}
	return out
}

func duplicateKey(r domain.ExpenseRecord) string {
	return r.DocumentDate.Format(domain.DateLayout) + "\x1f" + r.SupplierTaxID + "\x1f" + r.NetValue.String()
}

// HighPercentile flags values strictly above the entity's 95th percentile.
type HighPercentile struct{}

func (HighPercentile) Flag() domain.Flag { return domain.FlagHighPercentile }

func (HighPercentile) Classify(records []domain.ExpenseRecord) []bool {
	out := make([]bool, len(records))
	if len(records) == 0 {
		return out
	}
	p95 := quantile(sortedValues(records), 0.95)
	for i, r := range records {
		out[i] = r.NetValue.InexactFloat64() > p95
	}
	return out
}
