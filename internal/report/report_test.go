package report

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/period"
	"github.com/opensource-finance/quotawatch/internal/store"
)

func day(s string) time.Time {
	t, err := time.Parse(domain.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return t
}

func fe(entityID, date, value string, score int) domain.FlaggedExpense {
	d := day(date)
	var flags domain.FlagSet
	flags.Set(domain.FlagWeekend, true)
	return domain.FlaggedExpense{
		ExpenseRecord: domain.ExpenseRecord{
			EntityID:      entityID,
			DocumentDate:  d,
			NetValue:      decimal.RequireFromString(value),
			ExpenseType:   "TELEFONIA",
			SupplierName:  "Operadora " + entityID,
			SupplierTaxID: "111",
			Year:          d.Year(),
			Month:         int(d.Month()),
		},
		Flags: flags,
		Score: score,
	}
}

func reported(name string, f domain.FlaggedExpense) domain.ReportedExpense {
	return domain.ReportedExpense{FlaggedExpense: f, EntityName: name}
}

func TestSummarize(t *testing.T) {
	t.Run("CountsAndMax", func(t *testing.T) {
		records := []domain.ReportedExpense{
			reported("A", fe("1", "2024-05-21", "10.10", 2)),
			reported("A", fe("1", "2024-05-21", "20.20", 6)),
			reported("A", fe("1", "2024-05-21", "30", 9)),
		}
		got := Summarize(records, 5)
		require.Len(t, got, 1)
		assert.Equal(t, 2, got[0].CriticalExpenseCount)
		assert.Equal(t, 9, got[0].MaxSuspicionScore)
		assert.Equal(t, 3, got[0].TotalSuspiciousExpenses)
		assert.Equal(t, "60.30", got[0].TotalSuspiciousValue.StringFixed(2))
		assert.InDelta(t, 17.0/3.0, got[0].AverageSuspicionScore, 1e-9)
	})

	t.Run("Ordering", func(t *testing.T) {
		records := []domain.ReportedExpense{
			reported("Low", fe("10", "2024-05-21", "1", 1)),
			reported("Tie B", fe("9", "2024-05-21", "1", 6)),
			reported("Tie A", fe("100", "2024-05-21", "1", 6)),
			reported("Top", fe("3", "2024-05-21", "1", 7)),
			reported("Top", fe("3", "2024-05-21", "1", 5)),
			reported("Avg", fe("4", "2024-05-21", "1", 8)),
		}
		got := Summarize(records, 5)
		ids := make([]string, len(got))
		for i, s := range got {
			ids[i] = s.EntityID
		}
		// 3 has two critical; 4 beats 9/100 on average; 9 < 100 numerically.
		assert.Equal(t, []string{"3", "4", "9", "100", "10"}, ids)
	})
}

func TestCriticalList(t *testing.T) {
	records := []domain.ReportedExpense{
		reported("A", fe("1", "2024-05-21", "1", 5)),
		reported("A", fe("1", "2024-05-22", "2", 4)),
		reported("B", fe("2", "2024-05-21", "3", 9)),
		reported("B", fe("2", "2024-05-23", "4", 5)),
	}
	got := CriticalList(records, 5)
	require.Len(t, got, 3)
	assert.Equal(t, 9, got[0].Score)
	// Stable for equal scores.
	assert.Equal(t, "1", got[1].EntityID)
	assert.Equal(t, "2", got[2].EntityID)
}

func seedStore(t *testing.T) (domain.FlaggedStore, []domain.Entity) {
	t.Helper()
	s, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, "204554", []domain.FlaggedExpense{
		fe("204554", "2024-05-19", "350", 6),
		fe("204554", "2024-05-21", "1000.5", 9),
		fe("204554", "2024-04-30", "80", 2),
	}))
	require.NoError(t, s.Replace(ctx, "73701", []domain.FlaggedExpense{
		fe("73701", "2024-05-25", "12.345", 5),
		fe("73701", "2024-05-26", "99", 7),
	}))

	entities := []domain.Entity{
		{ID: "204554", Name: "Fulana"},
		{ID: "73701", Name: "Beltrano"},
		{ID: "1", Name: "Sem Dados"},
	}
	return s, entities
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	ref := day("2024-05-21")

	t.Run("WeeklyWindow", func(t *testing.T) {
		s, entities := seedStore(t)
		dir := t.TempDir()
		agg := NewAggregator(s, dir, 5)

		rep, artifacts, err := agg.Generate(ctx, entities, ref, period.Weekly)
		require.NoError(t, err)
		require.Len(t, artifacts, 2)
		assert.Equal(t, SummaryPath(dir, ref, period.Weekly), artifacts[0])
		assert.Equal(t, "2024-05-21_weekly_entity_scores.csv", filepath.Base(artifacts[0]))

		// 2024-04-30 and 2024-05-26 fall outside 2024-05-19..2024-05-25.
		require.Len(t, rep.Summaries, 2)
		assert.Equal(t, "204554", rep.Summaries[0].EntityID)
		assert.Equal(t, 2, rep.Summaries[0].CriticalExpenseCount)
		assert.Equal(t, "Beltrano", rep.Summaries[1].EntityName)

		require.Len(t, rep.Critical, 3)
		assert.Equal(t, []int{9, 6, 5}, []int{rep.Critical[0].Score, rep.Critical[1].Score, rep.Critical[2].Score})

		loaded, err := LoadReport(dir, ref, period.Weekly)
		require.NoError(t, err)
		require.Len(t, loaded.Summaries, 2)
		assert.Equal(t, "1350.50", loaded.Summaries[0].TotalSuspiciousValue.StringFixed(2))
		assert.InDelta(t, 7.5, loaded.Summaries[0].AverageSuspicionScore, 1e-9)
		require.Len(t, loaded.Critical, 3)
		assert.Equal(t, "Fulana", loaded.Critical[0].EntityName)
		assert.True(t, loaded.Critical[2].NetValue.Equal(decimal.RequireFromString("12.35")))
	})

	t.Run("Idempotent", func(t *testing.T) {
		s, entities := seedStore(t)
		dir := t.TempDir()
		agg := NewAggregator(s, dir, 5)

		_, first, err := agg.Generate(ctx, entities, ref, period.Monthly)
		require.NoError(t, err)
		before := readAll(t, first)

		_, second, err := agg.Generate(ctx, entities, ref, period.Monthly)
		require.NoError(t, err)
		assert.Equal(t, before, readAll(t, second))
	})

	t.Run("EmptyWritesNothing", func(t *testing.T) {
		s, entities := seedStore(t)
		dir := t.TempDir()
		agg := NewAggregator(s, dir, 5)

		_, _, err := agg.Generate(ctx, entities, day("2023-01-01"), period.Daily)
		assert.ErrorIs(t, err, domain.ErrEmptyAfterFilter)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("LoadMissing", func(t *testing.T) {
		_, err := LoadReport(t.TempDir(), ref, period.Daily)
		assert.ErrorIs(t, err, domain.ErrMissingData)
	})
}

func TestBuildReportData(t *testing.T) {
	critical := []domain.ReportedExpense{
		reported("A", fe("1", "2024-05-21", "1", 9)),
		reported("B", fe("2", "2024-05-21", "1", 8)),
		reported("A", fe("1", "2024-05-21", "1", 6)),
	}
	critical[2].SupplierName = "Operadora 2"

	rep := &domain.Report{
		Date:   day("2024-05-21"),
		Period: "daily",
		Summaries: []domain.ScoreSummary{
			{EntityID: "1", EntityName: "A", CriticalExpenseCount: 2},
			{EntityID: "2", EntityName: "B", CriticalExpenseCount: 1},
			{EntityID: "3", EntityName: "C"},
		},
		Critical: critical,
	}

	data := BuildReportData(rep)
	assert.Len(t, data.TopEntities, 3)
	assert.Equal(t, []domain.NameCount{
		{Name: "Operadora 2", Count: 2},
		{Name: "Operadora 1", Count: 1},
	}, data.TopSuppliers)
	assert.Equal(t, []domain.NameCount{{Name: "TELEFONIA", Count: 3}}, data.TopExpenseTypes)

	require.Len(t, data.TopExpenses, 2)
	assert.Equal(t, 9, data.TopExpenses[0].Score)
	assert.Equal(t, 8, data.TopExpenses[1].Score)

	t.Run("Workbook", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "report.xlsx")
		require.NoError(t, SaveWorkbook(path, data))

		f, err := excelize.OpenFile(path)
		require.NoError(t, err)
		defer f.Close()

		assert.Equal(t, []string{SheetSummary, SheetTopEntities, SheetTopSuppliers, SheetTopTypes, SheetCritical}, f.GetSheetList())

		v, err := f.GetCellValue(SheetTopSuppliers, "A2")
		require.NoError(t, err)
		assert.Equal(t, "Operadora 2", v)

		rows, err := f.GetRows(SheetCritical)
		require.NoError(t, err)
		assert.Len(t, rows, 4)
	})
}

func readAll(t *testing.T, paths []string) []string {
	t.Helper()
	out := make([]string, len(paths))
	for i, p := range paths {
		b, err := os.ReadFile(p)
		require.NoError(t, err)
		out[i] = string(b)
	}
	return out
}
