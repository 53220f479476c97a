package report

import (
	"sort"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// topN bounds every ranked list in ReportData.
const topN = 10

// BuildReportData derives the detailed view from a persisted report.
func BuildReportData(rep *domain.Report) *domain.ReportData {
	data := &domain.ReportData{
		Date:     rep.Date,
		Period:   rep.Period,
		Critical: rep.Critical,
	}

	data.TopEntities = rep.Summaries
	if len(data.TopEntities) > topN {
		data.TopEntities = data.TopEntities[:topN]
	}

	data.TopSuppliers = rankBy(rep.Critical, func(r domain.ReportedExpense) string { return r.SupplierName })
	data.TopExpenseTypes = rankBy(rep.Critical, func(r domain.ReportedExpense) string { return r.ExpenseType })

	// Critical is already ordered by score, so the first hit per entity
	// is its top expense.
	top := make(map[string]domain.ReportedExpense)
	for _, r := range rep.Critical {
		if _, ok := top[r.EntityID]; !ok {
			top[r.EntityID] = r
		}
	}
	for _, s := range data.TopEntities {
		if r, ok := top[s.EntityID]; ok {
			data.TopExpenses = append(data.TopExpenses, r)
		}
	}

	return data
}

func rankBy(records []domain.ReportedExpense, key func(domain.ReportedExpense) string) []domain.NameCount {
	counts := make(map[string]int)
	for _, r := range records {
		counts[key(r)]++
	}

	ranked := make([]domain.NameCount, 0, len(counts))
	for name, n := range counts {
		ranked = append(ranked, domain.NameCount{Name: name, Count: n})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Count != ranked[j].Count {
			return ranked[i].Count > ranked[j].Count
		}
		return ranked[i].Name < ranked[j].Name
	})

	if len(ranked) > topN {
		ranked = ranked[:topN]
	}
	return ranked
}
