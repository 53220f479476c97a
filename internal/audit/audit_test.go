package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/rules"
	"github.com/opensource-finance/quotawatch/internal/scoring"
	"github.com/opensource-finance/quotawatch/internal/store"
)

type memSource struct {
	rows map[string][]domain.RawExpense
	err  error
}

func (m *memSource) Entities(ctx context.Context) ([]domain.Entity, error) {
	return nil, nil
}

func (m *memSource) Expenses(ctx context.Context, entityID string) ([]domain.RawExpense, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.rows[entityID], nil
}

func raw(date, value, taxID string) domain.RawExpense {
	return domain.RawExpense{
		DocumentDate:  date,
		NetValue:      value,
		ExpenseType:   "TELEFONIA",
		SupplierName:  "Operadora",
		SupplierTaxID: taxID,
		Year:          "2024",
		Month:         "5",
	}
}

func newRunner(t *testing.T, src domain.ExpenseSource) (*Runner, *store.FileStore) {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	calc := scoring.NewCalculator(domain.DefaultWeights(), 5)
	return NewRunner(src, fs, rules.NewEngine(2), calc), fs
}

func TestNormalize(t *testing.T) {
	rows := []domain.RawExpense{
		raw("2024-05-21", "350.00", "1"),
		raw("2024-05-21T13:45:00", "-20.5", "2"),
		raw("2024-05-21T23:30:00-03:00", "0", "3"),
		raw("", "10", "4"),
		raw("21/05/2024", "10", "5"),
		raw("2024-05-21", "R$ 10", "6"),
		raw("2024-05-21", "", "7"),
		{DocumentDate: "2023-12-30", NetValue: "42", Year: "", Month: "x"},
	}

	records, dropped := Normalize("204554", rows)
	assert.Equal(t, 4, dropped)
	require.Len(t, records, 4)

	for _, r := range records[:3] {
		assert.Equal(t, "2024-05-21", r.DocumentDate.Format(domain.DateLayout))
		assert.Equal(t, "204554", r.EntityID)
	}
	assert.Equal(t, "-20.5", records[1].NetValue.String())

	// Year and month fall back to the document date.
	assert.Equal(t, 2023, records[3].Year)
	assert.Equal(t, 12, records[3].Month)
}

func TestAuditEntity(t *testing.T) {
	ctx := context.Background()

	t.Run("Written", func(t *testing.T) {
		src := &memSource{rows: map[string][]domain.RawExpense{
			"1": {
				raw("2024-03-04", "350.00", "12345678000190"),
				raw("2024-03-04", "350.00", "12345678000190"),
				raw("2024-03-05", "12.34", "999"),
			},
		}}
		runner, fs := newRunner(t, src)

		res := runner.AuditEntity(ctx, "1")
		assert.Equal(t, domain.AuditWritten, res.Status)
		assert.Equal(t, 3, res.RawRows)
		assert.Equal(t, 2, res.FlaggedRows)
		assert.Empty(t, res.Error)

		got, err := fs.Load(ctx, "1")
		require.NoError(t, err)
		require.Len(t, got, 2)
		for _, fe := range got {
			assert.True(t, fe.Flags.Has(domain.FlagDuplicateTransaction))
			assert.GreaterOrEqual(t, fe.Score, 4)
		}
	})

	t.Run("NoRawDataKeepsPriorSet", func(t *testing.T) {
		runner, fs := newRunner(t, &memSource{})
		prior := []domain.FlaggedExpense{{ExpenseRecord: domain.ExpenseRecord{EntityID: "1"}, Score: 1}}
		prior[0].Flags.Set(domain.FlagWeekend, true)
		require.NoError(t, fs.Replace(ctx, "1", prior))

		res := runner.AuditEntity(ctx, "1")
		assert.Equal(t, domain.AuditNoRawData, res.Status)

		got, err := fs.Load(ctx, "1")
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("NoValidRowsClearsPriorSet", func(t *testing.T) {
		src := &memSource{rows: map[string][]domain.RawExpense{
			"1": {raw("not a date", "10", "1"), raw("2024-05-21", "abc", "1")},
		}}
		runner, fs := newRunner(t, src)
		seedPrior(t, fs, "1")

		res := runner.AuditEntity(ctx, "1")
		assert.Equal(t, domain.AuditNoValidRows, res.Status)
		assert.Equal(t, 2, res.DroppedRows)
		assertCleared(t, fs, "1")
	})

	t.Run("NoFlagsClearsPriorSet", func(t *testing.T) {
		src := &memSource{rows: map[string][]domain.RawExpense{
			"1": {raw("2024-05-21", "12.34", "1"), raw("2024-05-22", "12.34", "2")},
		}}
		runner, fs := newRunner(t, src)
		seedPrior(t, fs, "1")

		res := runner.AuditEntity(ctx, "1")
		assert.Equal(t, domain.AuditNoFlags, res.Status)
		assert.Zero(t, res.FlaggedRows)
		assertCleared(t, fs, "1")
	})

	t.Run("SourceErrorIsNonFatal", func(t *testing.T) {
		runner, _ := newRunner(t, &memSource{err: errors.New("disk on fire")})

		res := runner.AuditEntity(ctx, "1")
		assert.Equal(t, domain.AuditFailed, res.Status)
		assert.Contains(t, res.Error, "disk on fire")
	})
}

func seedPrior(t *testing.T, fs *store.FileStore, entityID string) {
	t.Helper()
	prior := []domain.FlaggedExpense{{ExpenseRecord: domain.ExpenseRecord{EntityID: entityID}, Score: 1}}
	prior[0].Flags.Set(domain.FlagWeekend, true)
	require.NoError(t, fs.Replace(context.Background(), entityID, prior))
}

func assertCleared(t *testing.T, fs *store.FileStore, entityID string) {
	t.Helper()
	got, err := fs.Load(context.Background(), entityID)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoFileExists(t, fs.FlaggedPath(entityID))
}
