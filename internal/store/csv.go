package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

const (
	colEntityID = iota
	colDate
	colValue
	colExpenseType
	colSupplier
	colTaxID
	colURL
	colYear
	colMonth
	colScore
	colFirstFlag
)

// NetValueColumn is the index of net_value in a flagged-record row.
const NetValueColumn = colValue

// FlaggedHeader returns the column names of a flagged-record table.
func FlaggedHeader() []string {
	header := []string{
		"entity_id",
		"document_date",
		"net_value",
		"expense_type",
		"supplier_name",
		"supplier_tax_id",
		"document_url",
		"year",
		"month",
		"fraud_score",
	}
	for _, f := range domain.AllFlags() {
		header = append(header, f.String())
	}
	return header
}

var numFlaggedFields = colFirstFlag + len(domain.AllFlags())

// ReadFlagged reads a flagged-record table, header included.
func ReadFlagged(r io.Reader) ([]domain.FlaggedExpense, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFlaggedFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading flagged CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	// Skip header row.
	out := make([]domain.FlaggedExpense, 0, len(records)-1)
	for i, rec := range records[1:] {
		fe, err := UnmarshalFlagged(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, fe)
	}
	return out, nil
}

// WriteFlagged writes a flagged-record table, header included.
func WriteFlagged(w io.Writer, records []domain.FlaggedExpense) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(FlaggedHeader()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, fe := range records {
		if err := cw.Write(MarshalFlagged(fe)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// MarshalFlagged converts a flagged expense to a CSV row.
func MarshalFlagged(fe domain.FlaggedExpense) []string {
	row := make([]string, numFlaggedFields)
	row[colEntityID] = fe.EntityID
	row[colDate] = fe.DocumentDate.Format(domain.DateLayout)
	row[colValue] = fe.NetValue.String()
	row[colExpenseType] = fe.ExpenseType
	row[colSupplier] = fe.SupplierName
	row[colTaxID] = fe.SupplierTaxID
	row[colURL] = fe.DocumentURL
	row[colYear] = strconv.Itoa(fe.Year)
	row[colMonth] = strconv.Itoa(fe.Month)
	row[colScore] = strconv.Itoa(fe.Score)
	for i, f := range domain.AllFlags() {
		row[colFirstFlag+i] = strconv.FormatBool(fe.Flags.Has(f))
	}
	return row
}

// UnmarshalFlagged converts a CSV row to a flagged expense.
func UnmarshalFlagged(record []string) (domain.FlaggedExpense, error) {
	if len(record) != numFlaggedFields {
		return domain.FlaggedExpense{}, fmt.Errorf("expected %d fields, got %d", numFlaggedFields, len(record))
	}

	date, err := time.Parse(domain.DateLayout, record[colDate])
	if err != nil {
		return domain.FlaggedExpense{}, fmt.Errorf("parsing document_date %q: %w", record[colDate], err)
	}

	value, err := decimal.NewFromString(record[colValue])
	if err != nil {
		return domain.FlaggedExpense{}, fmt.Errorf("parsing net_value %q: %w", record[colValue], err)
	}

	ints := make([]int, 3)
	for i, col := range []int{colYear, colMonth, colScore} {
		ints[i], err = strconv.Atoi(record[col])
		if err != nil {
			return domain.FlaggedExpense{}, fmt.Errorf("parsing column %d %q: %w", col+1, record[col], err)
		}
	}

	var flags domain.FlagSet
	for i, f := range domain.AllFlags() {
		v, err := strconv.ParseBool(record[colFirstFlag+i])
		if err != nil {
			return domain.FlaggedExpense{}, fmt.Errorf("parsing %s %q: %w", f, record[colFirstFlag+i], err)
		}
		flags.Set(f, v)
	}

	return domain.FlaggedExpense{
		ExpenseRecord: domain.ExpenseRecord{
			EntityID:      record[colEntityID],
			DocumentDate:  date,
			NetValue:      value,
			ExpenseType:   record[colExpenseType],
			SupplierName:  record[colSupplier],
			SupplierTaxID: record[colTaxID],
			DocumentURL:   record[colURL],
			Year:          ints[0],
			Month:         ints[1],
		},
		Flags: flags,
		Score: ints[2],
	}, nil
}
