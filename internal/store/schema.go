package store

// Schema definitions for the quotawatch database.
// Compatible with both SQLite and PostgreSQL.

const schemaFlaggedExpenses = `
CREATE TABLE IF NOT EXISTS flagged_expenses (
    entity_id TEXT NOT NULL,
    seq INTEGER NOT NULL,
    document_date TEXT NOT NULL,
    net_value TEXT NOT NULL,
    expense_type TEXT NOT NULL,
    supplier_name TEXT NOT NULL,
    supplier_tax_id TEXT NOT NULL,
    document_url TEXT NOT NULL,
    year INTEGER NOT NULL,
    month INTEGER NOT NULL,
    fraud_score INTEGER NOT NULL,
    flags TEXT NOT NULL,
    PRIMARY KEY (entity_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_flagged_expenses_date ON flagged_expenses(entity_id, document_date);
`

const schemaAuditRuns = `
CREATE TABLE IF NOT EXISTS audit_runs (
    id TEXT PRIMARY KEY,
    started_at TEXT NOT NULL,
    finished_at TEXT NOT NULL,
    entities INTEGER NOT NULL,
    written INTEGER NOT NULL,
    no_raw_data INTEGER NOT NULL,
    no_valid_rows INTEGER NOT NULL,
    no_flags INTEGER NOT NULL,
    failed INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_runs_started ON audit_runs(started_at);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaFlaggedExpenses,
		schemaAuditRuns,
	}
}
