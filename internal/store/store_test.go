package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

func flagged(entityID, date, value string, score int, flags ...domain.Flag) domain.FlaggedExpense {
	d, err := time.Parse(domain.DateLayout, date)
	if err != nil {
		panic(err)
	}
	var set domain.FlagSet
	for _, f := range flags {
		set.Set(f, true)
	}
	return domain.FlaggedExpense{
		ExpenseRecord: domain.ExpenseRecord{
			EntityID:      entityID,
			DocumentDate:  d,
			NetValue:      decimal.RequireFromString(value),
			ExpenseType:   "COMBUSTÍVEIS E LUBRIFICANTES.",
			SupplierName:  "Posto, \"Central\"",
			SupplierTaxID: "12345678000190",
			DocumentURL:   "https://example.org/nota.pdf",
			Year:          d.Year(),
			Month:         int(d.Month()),
		},
		Flags: set,
		Score: score,
	}
}

// assertSameRecords compares records field by field; decimals compare by value.
func assertSameRecords(t *testing.T, want, got []domain.FlaggedExpense) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.Equal(t, want[i].EntityID, got[i].EntityID)
		assert.True(t, want[i].DocumentDate.Equal(got[i].DocumentDate), "row %d date", i)
		assert.True(t, want[i].NetValue.Equal(got[i].NetValue), "row %d value", i)
		assert.Equal(t, want[i].ExpenseType, got[i].ExpenseType)
		assert.Equal(t, want[i].SupplierName, got[i].SupplierName)
		assert.Equal(t, want[i].SupplierTaxID, got[i].SupplierTaxID)
		assert.Equal(t, want[i].DocumentURL, got[i].DocumentURL)
		assert.Equal(t, want[i].Year, got[i].Year)
		assert.Equal(t, want[i].Month, got[i].Month)
		assert.Equal(t, want[i].Score, got[i].Score)
		assert.Equal(t, want[i].Flags, got[i].Flags)
	}
}

func exerciseStore(t *testing.T, s domain.FlaggedStore) {
	ctx := context.Background()

	t.Run("Ping", func(t *testing.T) {
		require.NoError(t, s.Ping(ctx))
	})

	t.Run("LoadMissing", func(t *testing.T) {
		got, err := s.Load(ctx, "999")
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("ReplaceAndLoad", func(t *testing.T) {
		records := []domain.FlaggedExpense{
			flagged("204554", "2024-05-18", "500.00", 7, domain.FlagWeekend, domain.FlagRoundValue, domain.FlagDuplicateTransaction),
			flagged("204554", "2024-05-21", "-12.5", 1, domain.FlagWeekend),
		}
		require.NoError(t, s.Replace(ctx, "204554", records))

		got, err := s.Load(ctx, "204554")
		require.NoError(t, err)
		assertSameRecords(t, records, got)
	})

	t.Run("ReplaceOverwrites", func(t *testing.T) {
		records := []domain.FlaggedExpense{
			flagged("204554", "2024-06-01", "1000", 2, domain.FlagRoundValue),
		}
		require.NoError(t, s.Replace(ctx, "204554", records))

		got, err := s.Load(ctx, "204554")
		require.NoError(t, err)
		assertSameRecords(t, records, got)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "204554"))
		got, err := s.Load(ctx, "204554")
		require.NoError(t, err)
		assert.Empty(t, got)

		// Deleting again is fine.
		require.NoError(t, s.Delete(ctx, "204554"))
	})

	t.Run("EmptyEntityID", func(t *testing.T) {
		assert.ErrorIs(t, s.Replace(ctx, "", nil), domain.ErrInvalidInput)
		_, err := s.Load(ctx, "")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("Runs", func(t *testing.T) {
		base := time.Date(2024, 5, 21, 10, 0, 0, 0, time.UTC)
		for i, id := range []string{"run-a", "run-b", "run-c"} {
			run := &domain.AuditRun{
				ID:         id,
				StartedAt:  base.Add(time.Duration(i) * time.Hour),
				FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
				Entities:   3,
				Written:    i,
				NoFlags:    3 - i,
			}
			require.NoError(t, s.RecordRun(ctx, run))
		}

		runs, err := s.ListRuns(ctx, 0)
		require.NoError(t, err)
		require.Len(t, runs, 3)
		assert.Equal(t, "run-c", runs[0].ID)
		assert.Equal(t, "run-a", runs[2].ID)
		assert.Equal(t, 2, runs[0].Written)
		assert.Equal(t, 1, runs[0].NoFlags)
		assert.True(t, runs[0].StartedAt.Equal(base.Add(2*time.Hour)))

		limited, err := s.ListRuns(ctx, 2)
		require.NoError(t, err)
		require.Len(t, limited, 2)
		assert.Equal(t, "run-b", limited[1].ID)
	})
}

func TestFileStore(t *testing.T) {
	root := t.TempDir()
	s, err := New(domain.StoreConfig{Driver: "csv"}, root)
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)

	t.Run("PathTraversalRejected", func(t *testing.T) {
		err := s.Replace(context.Background(), "../escape", nil)
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("NoFileAfterDelete", func(t *testing.T) {
		fst := s.(*FileStore)
		ctx := context.Background()
		require.NoError(t, fst.Replace(ctx, "1", []domain.FlaggedExpense{flagged("1", "2024-01-06", "10", 1, domain.FlagWeekend)}))
		assert.FileExists(t, filepath.Join(root, "flags_and_scores", "1", "flagged_expenses.csv"))

		require.NoError(t, fst.Delete(ctx, "1"))
		assert.NoFileExists(t, fst.FlaggedPath("1"))
		assert.NoDirExists(t, filepath.Join(root, "flags_and_scores", "1"))
	})
}

func TestSQLiteStore(t *testing.T) {
	cfg := domain.StoreConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "quotawatch-test.db"),
	}

	s, err := New(cfg, "")
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestNewUnknownDriver(t *testing.T) {
	_, err := New(domain.StoreConfig{Driver: "mongo"}, t.TempDir())
	assert.ErrorIs(t, err, domain.ErrInvalidConfiguration)
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: "postgres"}
	assert.Equal(t, "a = $1 AND b = $2 LIMIT $3", pg.rebind("a = ? AND b = ? LIMIT ?"))

	lite := &SQLStore{driver: "sqlite"}
	assert.Equal(t, "a = ?", lite.rebind("a = ?"))
}

func TestPostgresDSNDefaults(t *testing.T) {
	dsn := postgresDSN(domain.StoreConfig{PostgresUser: "audit", PostgresPassword: "pw"})
	assert.Equal(t, "host=localhost port=5432 user=audit password=pw dbname=quotawatch sslmode=disable", dsn)
}
