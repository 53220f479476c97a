package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// SQLStore implements domain.FlaggedStore using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLStore struct {
	db     *sql.DB
	driver string
}

// NewSQLStore opens the configured database and runs migrations.
func NewSQLStore(cfg domain.StoreConfig) (*SQLStore, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("%w: unsupported driver: %s", domain.ErrInvalidConfiguration, cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	s := &SQLStore{
		db:     db,
		driver: cfg.Driver,
	}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *SQLStore) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := s.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// Replace swaps the entity's flagged rows in a single transaction.
func (s *SQLStore) Replace(ctx context.Context, entityID string, records []domain.FlaggedExpense) error {
	if entityID == "" {
		return fmt.Errorf("%w: entityID is required", domain.ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM flagged_expenses WHERE entity_id = ?`), entityID); err != nil {
		return fmt.Errorf("clearing flagged rows: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO flagged_expenses (
			entity_id, seq, document_date, net_value, expense_type,
			supplier_name, supplier_tax_id, document_url, year, month,
			fraud_score, flags
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`))
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, fe := range records {
		flags, err := json.Marshal(fe.Flags)
		if err != nil {
			return fmt.Errorf("encoding flags: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			entityID, i,
			fe.DocumentDate.Format(domain.DateLayout), fe.NetValue.String(),
			fe.ExpenseType, fe.SupplierName, fe.SupplierTaxID, fe.DocumentURL,
			fe.Year, fe.Month, fe.Score, string(flags),
		); err != nil {
			return fmt.Errorf("inserting row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// Load returns the entity's flagged rows in insertion order.
func (s *SQLStore) Load(ctx context.Context, entityID string) ([]domain.FlaggedExpense, error) {
	if entityID == "" {
		return nil, fmt.Errorf("%w: entityID is required", domain.ErrInvalidInput)
	}

	query := `
		SELECT entity_id, document_date, net_value, expense_type,
			   supplier_name, supplier_tax_id, document_url, year, month,
			   fraud_score, flags
		FROM flagged_expenses
		WHERE entity_id = ?
		ORDER BY seq
	`

	rows, err := s.db.QueryContext(ctx, s.rebind(query), entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FlaggedExpense
	for rows.Next() {
		var fe domain.FlaggedExpense
		var date, value, flags string

		if err := rows.Scan(
			&fe.EntityID, &date, &value, &fe.ExpenseType,
			&fe.SupplierName, &fe.SupplierTaxID, &fe.DocumentURL,
			&fe.Year, &fe.Month, &fe.Score, &flags,
		); err != nil {
			return nil, err
		}

		if fe.DocumentDate, err = time.Parse(domain.DateLayout, date); err != nil {
			return nil, fmt.Errorf("parsing document_date %q: %w", date, err)
		}
		if fe.NetValue, err = decimal.NewFromString(value); err != nil {
			return nil, fmt.Errorf("parsing net_value %q: %w", value, err)
		}
		if err := json.Unmarshal([]byte(flags), &fe.Flags); err != nil {
			return nil, fmt.Errorf("decoding flags: %w", err)
		}

		out = append(out, fe)
	}
	return out, rows.Err()
}

// Delete removes every flagged row for the entity.
func (s *SQLStore) Delete(ctx context.Context, entityID string) error {
	if entityID == "" {
		return fmt.Errorf("%w: entityID is required", domain.ErrInvalidInput)
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM flagged_expenses WHERE entity_id = ?`), entityID)
	return err
}

// RecordRun stores an audit run summary.
func (s *SQLStore) RecordRun(ctx context.Context, run *domain.AuditRun) error {
	query := `
		INSERT INTO audit_runs (
			id, started_at, finished_at, entities, written,
			no_raw_data, no_valid_rows, no_flags, failed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, s.rebind(query),
		run.ID,
		run.StartedAt.UTC().Format(runTimeLayout),
		run.FinishedAt.UTC().Format(runTimeLayout),
		run.Entities, run.Written, run.NoRawData,
		run.NoValidRows, run.NoFlags, run.Failed,
	)
	return err
}

// ListRuns returns recorded runs, newest first. limit <= 0 returns all.
func (s *SQLStore) ListRuns(ctx context.Context, limit int) ([]*domain.AuditRun, error) {
	query := `
		SELECT id, started_at, finished_at, entities, written,
			   no_raw_data, no_valid_rows, no_flags, failed
		FROM audit_runs
		ORDER BY started_at DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.AuditRun
	for rows.Next() {
		var run domain.AuditRun
		var started, finished string
		if err := rows.Scan(
			&run.ID, &started, &finished, &run.Entities, &run.Written,
			&run.NoRawData, &run.NoValidRows, &run.NoFlags, &run.Failed,
		); err != nil {
			return nil, err
		}
		if run.StartedAt, err = time.Parse(runTimeLayout, started); err != nil {
			return nil, fmt.Errorf("parsing started_at %q: %w", started, err)
		}
		if run.FinishedAt, err = time.Parse(runTimeLayout, finished); err != nil {
			return nil, fmt.Errorf("parsing finished_at %q: %w", finished, err)
		}
		runs = append(runs, &run)
	}
	return runs, rows.Err()
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = strconv.AppendInt(result, int64(n), 10)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
