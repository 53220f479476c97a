// Package domain defines the core types and interfaces for quotawatch.
package domain

import "context"

// ExpenseSource supplies what the external downloader stored. The core
// never fetches; it only asks for everything known about an entity.
type ExpenseSource interface {
	// Entities lists the audited entities in file order.
	Entities(ctx context.Context) ([]Entity, error)

	// Expenses returns every raw row for the entity.
	// Returns nil, nil when the downloader supplied nothing.
	Expenses(ctx context.Context, entityID string) ([]RawExpense, error)
}

// FlaggedStore persists each entity's flagged set and the audit history.
type FlaggedStore interface {
	// Replace overwrites the entity's flagged set. Readers observe either
	// the previous set or the new one, never a mix.
	Replace(ctx context.Context, entityID string, records []FlaggedExpense) error

	// Load returns the entity's flagged set.
	// Returns nil, nil when nothing is stored for the entity.
	Load(ctx context.Context, entityID string) ([]FlaggedExpense, error)

	// Delete removes the entity's flagged set. Deleting a missing set is not an error.
	Delete(ctx context.Context, entityID string) error

	// RecordRun appends an audit run to the history.
	RecordRun(ctx context.Context, run *AuditRun) error

	// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
	ListRuns(ctx context.Context, limit int) ([]*AuditRun, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}
