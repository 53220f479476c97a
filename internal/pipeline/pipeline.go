// Package pipeline drives the audit and report stages end to end and
// announces their results on the event bus.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/quotawatch/internal/audit"
	"github.com/opensource-finance/quotawatch/internal/bus"
	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/period"
	"github.com/opensource-finance/quotawatch/internal/report"
)

// ArtifactSink receives every report file after it is written.
type ArtifactSink interface {
	Upload(ctx context.Context, localPath string) error
}

// Pipeline wires the audit runner and report aggregator to their
// collaborators.
type Pipeline struct {
	source     domain.ExpenseSource
	store      domain.FlaggedStore
	runner     *audit.Runner
	aggregator *report.Aggregator
	reportsDir string

	// Optional
	bus  domain.EventBus
	sink ArtifactSink
}

// Config holds pipeline collaborators.
type Config struct {
	Source     domain.ExpenseSource
	Store      domain.FlaggedStore
	Runner     *audit.Runner
	Aggregator *report.Aggregator
	ReportsDir string
	Bus        domain.EventBus
	Sink       ArtifactSink
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		source:     cfg.Source,
		store:      cfg.Store,
		runner:     cfg.Runner,
		aggregator: cfg.Aggregator,
		reportsDir: cfg.ReportsDir,
		bus:        cfg.Bus,
		sink:       cfg.Sink,
	}
}

// Entities lists the audited entities, truncated to limit when limit > 0.
func (p *Pipeline) Entities(ctx context.Context, limit int) ([]domain.Entity, error) {
	entities, err := p.source.Entities(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing entities: %w", err)
	}
	if limit > 0 && len(entities) > limit {
		entities = entities[:limit]
	}
	return entities, nil
}

// Audit runs the per-entity audit sequentially over the entity list and
// records the run. A cancelled context stops before the next entity;
// entities already written stay valid.
func (p *Pipeline) Audit(ctx context.Context, limit int) (*domain.AuditRun, []domain.AuditResult, error) {
	entities, err := p.Entities(ctx, limit)
	if err != nil {
		return nil, nil, err
	}

	run := &domain.AuditRun{
		ID:        uuid.New().String(),
		StartedAt: time.Now().UTC(),
	}

	slog.Info("audit started",
		"run_id", run.ID,
		"entities", len(entities),
	)

	results := make([]domain.AuditResult, 0, len(entities))
	var runErr error
	for _, e := range entities {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		res := p.runner.AuditEntity(ctx, e.ID)
		run.Count(res)
		results = append(results, res)

		p.publish(ctx, domain.TopicEntityAudited, domain.EntityAuditedEvent{
			RunID:       run.ID,
			EntityID:    e.ID,
			Status:      res.Status,
			FlaggedRows: res.FlaggedRows,
		})
	}

	run.FinishedAt = time.Now().UTC()

	// Record even a cancelled run so the history shows it.
	if err := p.store.RecordRun(context.WithoutCancel(ctx), run); err != nil {
		slog.Error("failed to record audit run",
			"run_id", run.ID,
			"error", err,
		)
	}

	slog.Info("audit finished",
		"run_id", run.ID,
		"entities", run.Entities,
		"written", run.Written,
		"no_raw_data", run.NoRawData,
		"no_valid_rows", run.NoValidRows,
		"no_flags", run.NoFlags,
		"failed", run.Failed,
		"duration_ms", run.FinishedAt.Sub(run.StartedAt).Milliseconds(),
	)

	return run, results, runErr
}

// Report generates the report for (ref, per), publishes the artifacts and
// announces them. ErrEmptyAfterFilter is returned unchanged so callers
// can treat it as a skip.
func (p *Pipeline) Report(ctx context.Context, ref time.Time, per period.Period) (*domain.Report, []string, error) {
	entities, err := p.Entities(ctx, 0)
	if err != nil {
		return nil, nil, err
	}

	rep, artifacts, err := p.aggregator.Generate(ctx, entities, ref, per)
	if err != nil {
		return nil, nil, err
	}

	p.upload(ctx, artifacts)
	p.publish(ctx, domain.TopicReportGenerated, domain.ReportGeneratedEvent{
		Date:      ref.Format(domain.DateLayout),
		Period:    per.String(),
		Artifacts: artifacts,
		At:        time.Now().UTC(),
	})

	return rep, artifacts, nil
}

// Workbook renders the persisted report for (ref, per) as xlsx.
func (p *Pipeline) Workbook(ctx context.Context, ref time.Time, per period.Period) (string, error) {
	rep, err := report.LoadReport(p.reportsDir, ref, per)
	if err != nil {
		return "", err
	}

	path := report.WorkbookPath(p.reportsDir, ref, per)
	if err := report.SaveWorkbook(path, report.BuildReportData(rep)); err != nil {
		return "", err
	}

	slog.Info("workbook written",
		"date", ref.Format(domain.DateLayout),
		"period", per,
		"path", path,
	)

	p.upload(ctx, []string{path})
	return path, nil
}

// Run audits every entity, then generates each period's report for ref.
// Empty periods are skipped.
func (p *Pipeline) Run(ctx context.Context, ref time.Time, limit int, periods []period.Period) error {
	if _, _, err := p.Audit(ctx, limit); err != nil {
		return err
	}

	for _, per := range periods {
		if _, _, err := p.Report(ctx, ref, per); err != nil {
			if errors.Is(err, domain.ErrEmptyAfterFilter) {
				continue
			}
			return fmt.Errorf("%s report: %w", per, err)
		}
	}
	return nil
}

// publish is best effort: failures are logged and never abort a run.
func (p *Pipeline) publish(ctx context.Context, topic string, event any) {
	if p.bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, p.bus, topic, event); err != nil {
		slog.Error("failed to publish event",
			"topic", topic,
			"error", err,
		)
	}
}

// upload is best effort: failures are logged and never abort a run.
func (p *Pipeline) upload(ctx context.Context, paths []string) {
	if p.sink == nil {
		return
	}
	for _, path := range paths {
		if err := p.sink.Upload(ctx, path); err != nil {
			slog.Error("failed to publish artifact",
				"path", path,
				"error", err,
			)
		}
	}
}
