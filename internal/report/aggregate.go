// Package report aggregates flagged stores into per-period entity
// summaries and critical expense lists.
package report

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/period"
	"github.com/opensource-finance/quotawatch/internal/store"
)

var tracer = otel.Tracer("quotawatch-report")

// SummaryPath is where the entity scores table for (ref, p) lives.
func SummaryPath(dir string, ref time.Time, p period.Period) string {
	return filepath.Join(dir, fileName(ref, p, "entity_scores.csv"))
}

// CriticalPath is where the critical expenses table for (ref, p) lives.
func CriticalPath(dir string, ref time.Time, p period.Period) string {
	return filepath.Join(dir, fileName(ref, p, "critical_expenses.csv"))
}

// WorkbookPath is where the xlsx rendering for (ref, p) lives.
func WorkbookPath(dir string, ref time.Time, p period.Period) string {
	return filepath.Join(dir, fileName(ref, p, "report.xlsx"))
}

func fileName(ref time.Time, p period.Period, suffix string) string {
	return ref.Format(domain.DateLayout) + "_" + p.String() + "_" + suffix
}

// Aggregator builds and persists period reports.
type Aggregator struct {
	store     domain.FlaggedStore
	dir       string
	threshold int
}

// NewAggregator creates an aggregator reading flagged sets from flagged and
// writing report tables under dir.
func NewAggregator(flagged domain.FlaggedStore, dir string, criticalThreshold int) *Aggregator {
	return &Aggregator{
		store:     flagged,
		dir:       dir,
		threshold: criticalThreshold,
	}
}

// Generate builds the report for the period containing ref and writes
// both tables, overwriting any previous run for the same key. It returns
// ErrEmptyAfterFilter, and writes nothing, when no flagged record falls
// in the range.
func (a *Aggregator) Generate(ctx context.Context, entities []domain.Entity, ref time.Time, p period.Period) (*domain.Report, []string, error) {
	ctx, span := tracer.Start(ctx, "report.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("date", ref.Format(domain.DateLayout)),
		attribute.String("period", p.String()),
	)

	rng, err := period.Resolve(ref, p)
	if err != nil {
		return nil, nil, err
	}

	records, err := a.load(ctx, entities)
	if err != nil {
		return nil, nil, err
	}

	inRange := records[:0]
	for _, r := range records {
		if rng.Contains(r.DocumentDate) {
			inRange = append(inRange, r)
		}
	}
	if len(inRange) == 0 {
		slog.Info("no flagged records in range, skipping report",
			"date", ref.Format(domain.DateLayout),
			"period", p,
			"range", rng.String(),
		)
		return nil, nil, fmt.Errorf("%w: %s", domain.ErrEmptyAfterFilter, rng)
	}

	rep := &domain.Report{
		Date:      period.Date(ref),
		Period:    p.String(),
		Range:     rng,
		Summaries: Summarize(inRange, a.threshold),
		Critical:  CriticalList(inRange, a.threshold),
	}

	summaryPath := SummaryPath(a.dir, ref, p)
	if err := store.WriteFileAtomic(summaryPath, func(w io.Writer) error {
		return WriteSummaries(w, rep.Summaries)
	}); err != nil {
		return nil, nil, fmt.Errorf("writing %s: %w", summaryPath, err)
	}

	criticalPath := CriticalPath(a.dir, ref, p)
	if err := store.WriteFileAtomic(criticalPath, func(w io.Writer) error {
		return WriteCritical(w, rep.Critical)
	}); err != nil {
		return nil, nil, fmt.Errorf("writing %s: %w", criticalPath, err)
	}

	span.SetAttributes(
		attribute.Int("entities", len(rep.Summaries)),
		attribute.Int("critical", len(rep.Critical)),
	)
	slog.Info("report generated",
		"date", ref.Format(domain.DateLayout),
		"period", p,
		"entities", len(rep.Summaries),
		"critical", len(rep.Critical),
	)

	return rep, []string{summaryPath, criticalPath}, nil
}

// load concatenates every entity's flagged set in entity order. Missing
// sets contribute nothing.
func (a *Aggregator) load(ctx context.Context, entities []domain.Entity) ([]domain.ReportedExpense, error) {
	var out []domain.ReportedExpense
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		flagged, err := a.store.Load(ctx, e.ID)
		if err != nil {
			return nil, fmt.Errorf("loading flagged set for %s: %w", e.ID, err)
		}
		for _, fe := range flagged {
			out = append(out, domain.ReportedExpense{FlaggedExpense: fe, EntityName: e.Name})
		}
	}
	return out, nil
}

// Summarize groups records by entity. Rows are ordered by critical count
// then average score, both descending, then by entity id.
func Summarize(records []domain.ReportedExpense, threshold int) []domain.ScoreSummary {
	index := make(map[string]int)
	var summaries []domain.ScoreSummary
	var scoreSums []int

	for _, r := range records {
		i, ok := index[r.EntityID]
		if !ok {
			i = len(summaries)
			index[r.EntityID] = i
			summaries = append(summaries, domain.ScoreSummary{
				EntityID:             r.EntityID,
				EntityName:           r.EntityName,
				TotalSuspiciousValue: decimal.Zero,
			})
			scoreSums = append(scoreSums, 0)
		}

		s := &summaries[i]
		s.TotalSuspiciousExpenses++
		s.TotalSuspiciousValue = s.TotalSuspiciousValue.Add(r.NetValue)
		if r.Score >= threshold {
			s.CriticalExpenseCount++
		}
		if r.Score > s.MaxSuspicionScore {
			s.MaxSuspicionScore = r.Score
		}
		scoreSums[i] += r.Score
	}

	for i := range summaries {
		summaries[i].AverageSuspicionScore = float64(scoreSums[i]) / float64(summaries[i].TotalSuspiciousExpenses)
	}

	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		if a.CriticalExpenseCount != b.CriticalExpenseCount {
			return a.CriticalExpenseCount > b.CriticalExpenseCount
		}
		if a.AverageSuspicionScore != b.AverageSuspicionScore {
			return a.AverageSuspicionScore > b.AverageSuspicionScore
		}
		return lessEntityID(a.EntityID, b.EntityID)
	})
	return summaries
}

// CriticalList returns records scoring at least threshold, highest score
// first. Equal scores keep their load order.
func CriticalList(records []domain.ReportedExpense, threshold int) []domain.ReportedExpense {
	var critical []domain.ReportedExpense
	for _, r := range records {
		if r.Score >= threshold {
			critical = append(critical, r)
		}
	}
	sort.SliceStable(critical, func(i, j int) bool {
		return critical[i].Score > critical[j].Score
	})
	return critical
}

// lessEntityID orders numeric ids numerically and anything else lexically.
func lessEntityID(a, b string) bool {
	ai, errA := strconv.ParseInt(a, 10, 64)
	bi, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return ai < bi
	}
	return a < b
}

// LoadReport reads both persisted tables for (ref, p). A missing table
// yields ErrMissingData.
func LoadReport(dir string, ref time.Time, p period.Period) (*domain.Report, error) {
	rng, err := period.Resolve(ref, p)
	if err != nil {
		return nil, err
	}

	rep := &domain.Report{
		Date:   period.Date(ref),
		Period: p.String(),
		Range:  rng,
	}

	summaryPath := SummaryPath(dir, ref, p)
	if err := readTable(summaryPath, func(r io.Reader) error {
		rep.Summaries, err = ReadSummaries(r)
		return err
	}); err != nil {
		return nil, err
	}

	criticalPath := CriticalPath(dir, ref, p)
	if err := readTable(criticalPath, func(r io.Reader) error {
		rep.Critical, err = ReadCritical(r)
		return err
	}); err != nil {
		return nil, err
	}

	return rep, nil
}

func readTable(path string, read func(io.Reader) error) error {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrMissingData, path)
	}
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	if err := read(f); err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	return nil
}
