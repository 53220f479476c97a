package audit

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/period"
)

// Accepted document date layouts, tried in order.
var dateLayouts = []string{
	domain.DateLayout,
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// Normalize parses raw rows into expense records. Rows whose document
// date or net value do not parse are dropped and counted.
func Normalize(entityID string, raw []domain.RawExpense) ([]domain.ExpenseRecord, int) {
	records := make([]domain.ExpenseRecord, 0, len(raw))
	dropped := 0

	for _, r := range raw {
		date, ok := parseDocumentDate(r.DocumentDate)
		if !ok {
			dropped++
			continue
		}
		value, err := decimal.NewFromString(strings.TrimSpace(r.NetValue))
		if err != nil {
			dropped++
			continue
		}

		year, err := strconv.Atoi(strings.TrimSpace(r.Year))
		if err != nil || year <= 0 {
			year = date.Year()
		}
		month, err := strconv.Atoi(strings.TrimSpace(r.Month))
		if err != nil || month < 1 || month > 12 {
			month = int(date.Month())
		}

		records = append(records, domain.ExpenseRecord{
			EntityID:      entityID,
			DocumentDate:  date,
			NetValue:      value,
			ExpenseType:   strings.TrimSpace(r.ExpenseType),
			SupplierName:  strings.TrimSpace(r.SupplierName),
			SupplierTaxID: strings.TrimSpace(r.SupplierTaxID),
			DocumentURL:   strings.TrimSpace(r.DocumentURL),
			Year:          year,
			Month:         month,
		})
	}
	return records, dropped
}

func parseDocumentDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return period.Date(t), true
		}
	}
	return time.Time{}, false
}
