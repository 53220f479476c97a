// Package period maps a reference date and a period selector to the
// inclusive date range a report covers.
package period

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// Period selects the width of a reporting window.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
)

// Portuguese dashboard labels are accepted as aliases.
var aliases = map[string]Period{
	"daily":   Daily,
	"diário":  Daily,
	"diario":  Daily,
	"weekly":  Weekly,
	"semanal": Weekly,
	"monthly": Monthly,
	"mensal":  Monthly,
}

// All returns the canonical periods.
func All() []Period {
	return []Period{Daily, Weekly, Monthly}
}

// Parse resolves a selector or one of its aliases to a canonical period.
func Parse(s string) (Period, error) {
	p, ok := aliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%w: unknown period %q (want daily, weekly or monthly)", domain.ErrInvalidConfiguration, s)
	}
	return p, nil
}

func (p Period) String() string {
	return string(p)
}

// Resolve returns the inclusive range of p containing ref.
// Weeks run Sunday through Saturday.
func Resolve(ref time.Time, p Period) (domain.DateRange, error) {
	day := Date(ref)

	switch p {
	case Daily:
		return domain.DateRange{Start: day, End: day}, nil

	case Weekly:
		// time.Weekday counts from Sunday = 0.
		start := day.AddDate(0, 0, -int(day.Weekday()))
		return domain.DateRange{Start: start, End: start.AddDate(0, 0, 6)}, nil

	case Monthly:
		start := time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, time.UTC)
		end := start.AddDate(0, 1, 0).AddDate(0, 0, -1)
		return domain.DateRange{Start: start, End: end}, nil

	default:
		return domain.DateRange{}, fmt.Errorf("%w: unknown period %q", domain.ErrInvalidConfiguration, string(p))
	}
}

// Date strips the time of day from t, keeping its calendar date.
func Date(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD reference date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q, use YYYY-MM-DD", domain.ErrInvalidConfiguration, s)
	}
	return t, nil
}

// HistoryYears lists, ascending, the calendar years touched by the months
// months ending with ref's month.
func HistoryYears(ref time.Time, months int) []int {
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	seen := make(map[int]bool)
	for i := 0; i < months; i++ {
		seen[first.AddDate(0, -i, 0).Year()] = true
	}
	years := make([]int, 0, len(seen))
	for y := range seen {
		years = append(years, y)
	}
	sort.Ints(years)
	return years
}
