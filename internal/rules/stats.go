package rules

import (
	"math"
	"sort"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

func sortedValues(records []domain.ExpenseRecord) []float64 {
	values := make([]float64, len(records))
	for i, r := range records {
		values[i] = r.NetValue.InexactFloat64()
	}
	sort.Float64s(values)
	return values
}

// quantile interpolates linearly between the closest ranks of sorted,
// which must be non-empty and ascending.
func quantile(sorted []float64, q float64) float64 {
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(pos-float64(lo))
}
