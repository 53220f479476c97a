package domain

import "time"

// AuditStatus is the terminal state of one entity's audit.
type AuditStatus string

const (
	// AuditWritten means the flagged set was persisted.
	AuditWritten AuditStatus = "written"

	// AuditNoRawData means the downloader supplied nothing for the entity.
	AuditNoRawData AuditStatus = "no_raw_data"

	// AuditNoValidRows means every raw row failed to parse.
	AuditNoValidRows AuditStatus = "no_valid_rows"

	// AuditNoFlags means no record triggered any detector.
	AuditNoFlags AuditStatus = "no_flags"

	// AuditFailed means an I/O error stopped the entity. The run continues.
	AuditFailed AuditStatus = "failed"
)

// AuditResult summarizes one entity's audit.
type AuditResult struct {
	EntityID     string      `json:"entityId"`
	Status       AuditStatus `json:"status"`
	RawRows      int         `json:"rawRows"`
	DroppedRows  int         `json:"droppedRows"`
	FlaggedRows  int         `json:"flaggedRows"`
	CriticalRows int         `json:"criticalRows"`
	DurationMs   int64       `json:"durationMs"`
	Error        string      `json:"error,omitempty"`
}

// AuditRun is the history entry written once per audit invocation.
type AuditRun struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"startedAt"`
	FinishedAt  time.Time `json:"finishedAt"`
	Entities    int       `json:"entities"`
	Written     int       `json:"written"`
	NoRawData   int       `json:"noRawData"`
	NoValidRows int       `json:"noValidRows"`
	NoFlags     int       `json:"noFlags"`
	Failed      int       `json:"failed"`
}

// Count tallies a result into the run totals.
func (r *AuditRun) Count(res AuditResult) {
	r.Entities++
	switch res.Status {
	case AuditWritten:
		r.Written++
	case AuditNoRawData:
		r.NoRawData++
	case AuditNoValidRows:
		r.NoValidRows++
	case AuditNoFlags:
		r.NoFlags++
	case AuditFailed:
		r.Failed++
	}
}
