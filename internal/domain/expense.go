package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Entity is a legislator whose expense claims are audited.
type Entity struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// RawExpense is one expense row exactly as the downloader stored it.
// Nothing has been parsed yet; normalization decides which rows survive.
type RawExpense struct {
	DocumentDate  string
	NetValue      string
	ExpenseType   string
	SupplierName  string
	SupplierTaxID string
	DocumentURL   string
	Year          string
	Month         string
}

// ExpenseRecord is one normalized reimbursement claim.
type ExpenseRecord struct {
	EntityID      string          `json:"entityId"`
	DocumentDate  time.Time       `json:"documentDate"`
	NetValue      decimal.Decimal `json:"netValue"`
	ExpenseType   string          `json:"expenseType"`
	SupplierName  string          `json:"supplierName"`
	SupplierTaxID string          `json:"supplierTaxId"`
	DocumentURL   string          `json:"documentUrl"`
	Year          int             `json:"year"`
	Month         int             `json:"month"`
}

// FlaggedExpense is an expense record that triggered at least one detector.
type FlaggedExpense struct {
	ExpenseRecord
	Flags FlagSet `json:"flags"`
	Score int     `json:"fraudScore"`
}

// ReportedExpense is a flagged expense labelled with its entity's name,
// as it appears in report tables.
type ReportedExpense struct {
	FlaggedExpense
	EntityName string `json:"entityName"`
}
