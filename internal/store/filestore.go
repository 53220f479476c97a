package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

const (
	flaggedDirName  = "flags_and_scores"
	flaggedFileName = "flagged_expenses.csv"
	runsFileName    = "audit_runs.csv"
)

// runTimeLayout is fixed width so stored timestamps sort lexically.
const runTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// RunsHeader is the CSV header for audit_runs.csv.
const RunsHeader = "id,started_at,finished_at,entities,written,no_raw_data,no_valid_rows,no_flags,failed"

// FileStore implements domain.FlaggedStore with one CSV file per entity
// under root/flags_and_scores/<entity_id>/.
type FileStore struct {
	root string
}

// NewFileStore creates a csv-backed store rooted at the processed data dir.
func NewFileStore(root string) (*FileStore, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: store root is required", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Join(root, flaggedDirName), 0o755); err != nil {
		return nil, fmt.Errorf("creating store dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

// FlaggedPath returns where an entity's flagged set lives.
func (s *FileStore) FlaggedPath(entityID string) string {
	return filepath.Join(s.root, flaggedDirName, entityID, flaggedFileName)
}

// Replace atomically overwrites the entity's flagged file.
func (s *FileStore) Replace(ctx context.Context, entityID string, records []domain.FlaggedExpense) error {
	if err := validateEntityID(entityID); err != nil {
		return err
	}
	path := s.FlaggedPath(entityID)
	if err := WriteFileAtomic(path, func(w io.Writer) error {
		return WriteFlagged(w, records)
	}); err != nil {
		return fmt.Errorf("writing flagged set for %s: %w", entityID, err)
	}
	return nil
}

// Load reads the entity's flagged file.
func (s *FileStore) Load(ctx context.Context, entityID string) ([]domain.FlaggedExpense, error) {
	if err := validateEntityID(entityID); err != nil {
		return nil, err
	}
	path := s.FlaggedPath(entityID)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	records, err := ReadFlagged(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return records, nil
}

// Delete removes the entity's flagged file and its directory if empty.
func (s *FileStore) Delete(ctx context.Context, entityID string) error {
	if err := validateEntityID(entityID); err != nil {
		return err
	}
	path := s.FlaggedPath(entityID)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", path, err)
	}
	// Only succeeds when empty.
	_ = os.Remove(filepath.Dir(path))
	return nil
}

// RecordRun appends the run to audit_runs.csv.
func (s *FileStore) RecordRun(ctx context.Context, run *domain.AuditRun) error {
	path := filepath.Join(s.root, runsFileName)

	isNew := false
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		isNew = true
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	if isNew {
		if _, err := fmt.Fprintln(f, RunsHeader); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	cw := csv.NewWriter(f)
	if err := cw.Write(marshalRun(run)); err != nil {
		return fmt.Errorf("writing run: %w", err)
	}
	cw.Flush()
	return cw.Error()
}

// ListRuns reads audit_runs.csv, newest first.
func (s *FileStore) ListRuns(ctx context.Context, limit int) ([]*domain.AuditRun, error) {
	path := filepath.Join(s.root, runsFileName)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = len(strings.Split(RunsHeader, ","))
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading run log: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	runs := make([]*domain.AuditRun, 0, len(rows)-1)
	for i, row := range rows[1:] {
		run, err := unmarshalRun(row)
		if err != nil {
			return nil, fmt.Errorf("run log row %d: %w", i+2, err)
		}
		runs = append(runs, run)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Ping checks the store root is still reachable.
func (s *FileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.root)
	return err
}

// Close is a no-op for the file store.
func (s *FileStore) Close() error {
	return nil
}

func marshalRun(run *domain.AuditRun) []string {
	return []string{
		run.ID,
		run.StartedAt.UTC().Format(runTimeLayout),
		run.FinishedAt.UTC().Format(runTimeLayout),
		strconv.Itoa(run.Entities),
		strconv.Itoa(run.Written),
		strconv.Itoa(run.NoRawData),
		strconv.Itoa(run.NoValidRows),
		strconv.Itoa(run.NoFlags),
		strconv.Itoa(run.Failed),
	}
}

func unmarshalRun(row []string) (*domain.AuditRun, error) {
	started, err := time.Parse(runTimeLayout, row[1])
	if err != nil {
		return nil, fmt.Errorf("parsing started_at %q: %w", row[1], err)
	}
	finished, err := time.Parse(runTimeLayout, row[2])
	if err != nil {
		return nil, fmt.Errorf("parsing finished_at %q: %w", row[2], err)
	}

	counts := make([]int, 6)
	for i := range counts {
		counts[i], err = strconv.Atoi(row[3+i])
		if err != nil {
			return nil, fmt.Errorf("parsing count %q: %w", row[3+i], err)
		}
	}

	return &domain.AuditRun{
		ID:          row[0],
		StartedAt:   started,
		FinishedAt:  finished,
		Entities:    counts[0],
		Written:     counts[1],
		NoRawData:   counts[2],
		NoValidRows: counts[3],
		NoFlags:     counts[4],
		Failed:      counts[5],
	}, nil
}

// validateEntityID keeps ids usable as a single path element.
func validateEntityID(entityID string) error {
	if entityID == "" {
		return fmt.Errorf("%w: entityID is required", domain.ErrInvalidInput)
	}
	if entityID == "." || entityID == ".." || strings.ContainsAny(entityID, `/\`) {
		return fmt.Errorf("%w: invalid entityID %q", domain.ErrInvalidInput, entityID)
	}
	return nil
}
