// Package audit runs the per-entity audit: load, normalize, detect,
// score, and persist the flagged set.
package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/rules"
	"github.com/opensource-finance/quotawatch/internal/scoring"
)

var tracer = otel.Tracer("quotawatch-audit")

// Runner audits one entity at a time. It holds no per-entity state, so
// consecutive entities never share anything mutable.
type Runner struct {
	source domain.ExpenseSource
	store  domain.FlaggedStore
	engine *rules.Engine
	calc   *scoring.Calculator
}

// NewRunner creates a runner reading from source and writing to store.
func NewRunner(source domain.ExpenseSource, store domain.FlaggedStore, engine *rules.Engine, calc *scoring.Calculator) *Runner {
	return &Runner{
		source: source,
		store:  store,
		engine: engine,
		calc:   calc,
	}
}

// AuditEntity runs the audit for one entity. Skips and failures are
// reported on the result; nothing here aborts a wider run.
func (r *Runner) AuditEntity(ctx context.Context, entityID string) domain.AuditResult {
	start := time.Now()

	ctx, span := tracer.Start(ctx, "audit.entity")
	defer span.End()
	span.SetAttributes(attribute.String("entity_id", entityID))

	res, err := r.audit(ctx, entityID)
	res.EntityID = entityID
	res.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		res.Status = domain.AuditFailed
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("entity audit failed",
			"entity_id", entityID,
			"error", err,
			"duration_ms", res.DurationMs,
		)
		return res
	}

	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Int("flagged_rows", res.FlaggedRows),
	)

	switch res.Status {
	case domain.AuditWritten:
		slog.Info("entity audited",
			"entity_id", entityID,
			"status", res.Status,
			"flagged_rows", res.FlaggedRows,
			"critical_rows", res.CriticalRows,
			"duration_ms", res.DurationMs,
		)
	case domain.AuditNoRawData:
		slog.Info("no raw data, skipping entity",
			"entity_id", entityID,
			"status", res.Status,
		)
	default:
		slog.Info("nothing flagged, clearing entity",
			"entity_id", entityID,
			"status", res.Status,
			"raw_rows", res.RawRows,
			"dropped_rows", res.DroppedRows,
		)
	}
	return res
}

func (r *Runner) audit(ctx context.Context, entityID string) (domain.AuditResult, error) {
	var res domain.AuditResult

	// 1. Load
	raw, err := r.source.Expenses(ctx, entityID)
	if err != nil {
		return res, fmt.Errorf("loading raw expenses: %w", err)
	}
	res.RawRows = len(raw)
	if len(raw) == 0 {
		res.Status = domain.AuditNoRawData
		return res, nil
	}

	// 2. Normalize
	records, dropped := Normalize(entityID, raw)
	res.DroppedRows = dropped
	if dropped > 0 {
		slog.Debug("dropped unparseable rows",
			"entity_id", entityID,
			"dropped_rows", dropped,
		)
	}
	if len(records) == 0 {
		res.Status = domain.AuditNoValidRows
		return res, r.clear(ctx, entityID)
	}

	// 3. Detect
	sets, err := r.engine.Classify(ctx, records)
	if err != nil {
		return res, fmt.Errorf("classifying records: %w", err)
	}

	// 4. Score and retain
	flagged, err := r.calc.Apply(records, sets)
	if err != nil {
		return res, fmt.Errorf("scoring records: %w", err)
	}
	if len(flagged) == 0 {
		res.Status = domain.AuditNoFlags
		return res, r.clear(ctx, entityID)
	}

	// 5. Persist
	if err := r.store.Replace(ctx, entityID, flagged); err != nil {
		return res, fmt.Errorf("persisting flagged set: %w", err)
	}

	res.Status = domain.AuditWritten
	res.FlaggedRows = len(flagged)
	res.CriticalRows = r.calc.CountCritical(flagged)
	return res, nil
}

// clear removes a prior flagged set so an entity without flags has an
// empty store.
func (r *Runner) clear(ctx context.Context, entityID string) error {
	if err := r.store.Delete(ctx, entityID); err != nil {
		return fmt.Errorf("clearing flagged set: %w", err)
	}
	return nil
}
