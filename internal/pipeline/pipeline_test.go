package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opensource-finance/quotawatch/internal/audit"
	"github.com/opensource-finance/quotawatch/internal/bus"
	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/period"
	"github.com/opensource-finance/quotawatch/internal/report"
	"github.com/opensource-finance/quotawatch/internal/rules"
	"github.com/opensource-finance/quotawatch/internal/scoring"
	"github.com/opensource-finance/quotawatch/internal/store"
)

const expenseHeader = "ano,mes,tipoDespesa,dataDocumento,valorLiquido,nomeFornecedor,cnpjCpfFornecedor,urlDocumento\n"

type recordingSink struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (s *recordingSink) Upload(ctx context.Context, localPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, filepath.Base(localPath))
	return s.err
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

type fixture struct {
	pipeline   *Pipeline
	store      *store.FileStore
	bus        *bus.ChannelBus
	sink       *recordingSink
	reportsDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	rawDir := filepath.Join(root, "raw")

	write(t, filepath.Join(rawDir, "deputados.csv"), "id,nome\n204554,Fulana\n73701,Beltrano\n1,Sem Dados\n")
	// Saturday duplicates of a round value score 1+2+4 = 7.
	write(t, filepath.Join(rawDir, "expenses", "204554", "2024-05.csv"), expenseHeader+
		"2024,5,TELEFONIA,2024-05-25,500.00,Operadora,111,\n"+
		"2024,5,TELEFONIA,2024-05-25,500.00,Operadora,111,\n"+
		"2024,5,TELEFONIA,2024-05-21,12.34,Padaria,222,\n")
	write(t, filepath.Join(rawDir, "expenses", "73701", "2024-05.csv"), expenseHeader+
		"2024,5,TELEFONIA,2024-05-21,12.34,Padaria,222,\n"+
		"2024,5,TELEFONIA,2024-05-22,12.34,Padaria,333,\n")

	fs, err := store.NewFileStore(filepath.Join(root, "processed"))
	require.NoError(t, err)

	calc := scoring.NewCalculator(domain.DefaultWeights(), 5)
	src := store.NewRawSource(rawDir)
	reportsDir := filepath.Join(root, "reports")
	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })
	sink := &recordingSink{}

	p := New(Config{
		Source:     src,
		Store:      fs,
		Runner:     audit.NewRunner(src, fs, rules.NewEngine(1), calc),
		Aggregator: report.NewAggregator(fs, reportsDir, 5),
		ReportsDir: reportsDir,
		Bus:        b,
		Sink:       sink,
	})

	return &fixture{pipeline: p, store: fs, bus: b, sink: sink, reportsDir: reportsDir}
}

func TestAudit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	events := make(chan domain.EntityAuditedEvent, 10)
	_, err := f.bus.Subscribe(ctx, domain.TopicEntityAudited, func(ctx context.Context, msg *domain.Message) error {
		var ev domain.EntityAuditedEvent
		if err := json.Unmarshal(msg.Payload, &ev); err != nil {
			return err
		}
		events <- ev
		return nil
	})
	require.NoError(t, err)

	run, results, err := f.pipeline.Audit(ctx, 0)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, domain.AuditWritten, results[0].Status)
	assert.Equal(t, 2, results[0].FlaggedRows)
	assert.Equal(t, domain.AuditNoFlags, results[1].Status)
	assert.Equal(t, domain.AuditNoRawData, results[2].Status)

	assert.Equal(t, 3, run.Entities)
	assert.Equal(t, 1, run.Written)
	assert.Equal(t, 1, run.NoFlags)
	assert.Equal(t, 1, run.NoRawData)

	runs, err := f.store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)

	flagged, err := f.store.Load(ctx, "204554")
	require.NoError(t, err)
	require.Len(t, flagged, 2)
	assert.Equal(t, 7, flagged[0].Score)

	got := map[string]domain.AuditStatus{}
	for i := 0; i < 3; i++ {
		select {
		case ev := <-events:
			assert.Equal(t, run.ID, ev.RunID)
			got[ev.EntityID] = ev.Status
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for audit events")
		}
	}
	assert.Equal(t, domain.AuditWritten, got["204554"])
}

func TestAuditLimit(t *testing.T) {
	f := newFixture(t)
	_, results, err := f.pipeline.Audit(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "204554", results[0].EntityID)
}

func TestAuditCancelled(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, results, err := f.pipeline.Audit(ctx, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, results)
	require.NotNil(t, run)

	runs, err := f.store.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := time.Date(2024, 5, 21, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.pipeline.Run(ctx, ref, 0, period.All()))

	// Daily has no flagged record on 2024-05-21, so only weekly and monthly exist.
	_, err := report.LoadReport(f.reportsDir, ref, period.Daily)
	assert.ErrorIs(t, err, domain.ErrMissingData)

	for _, per := range []period.Period{period.Weekly, period.Monthly} {
		rep, err := report.LoadReport(f.reportsDir, ref, per)
		require.NoError(t, err, per)
		require.Len(t, rep.Summaries, 1)
		assert.Equal(t, "Fulana", rep.Summaries[0].EntityName)
		assert.Equal(t, 2, rep.Summaries[0].CriticalExpenseCount)
		assert.Len(t, rep.Critical, 2)
	}

	assert.ElementsMatch(t, []string{
		"2024-05-21_weekly_entity_scores.csv",
		"2024-05-21_weekly_critical_expenses.csv",
		"2024-05-21_monthly_entity_scores.csv",
		"2024-05-21_monthly_critical_expenses.csv",
	}, f.sink.paths)

	t.Run("Workbook", func(t *testing.T) {
		path, err := f.pipeline.Workbook(ctx, ref, period.Monthly)
		require.NoError(t, err)
		assert.FileExists(t, path)
		assert.Contains(t, f.sink.paths, "2024-05-21_monthly_report.xlsx")

		_, err = f.pipeline.Workbook(ctx, ref, period.Daily)
		assert.ErrorIs(t, err, domain.ErrMissingData)
	})
}

func TestUploadFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("bucket unavailable")
	ctx := context.Background()

	_, _, err := f.pipeline.Audit(ctx, 0)
	require.NoError(t, err)

	_, artifacts, err := f.pipeline.Report(ctx, time.Date(2024, 5, 25, 0, 0, 0, 0, time.UTC), period.Daily)
	require.NoError(t, err)
	assert.Len(t, artifacts, 2)
}
