package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/opensource-finance/quotawatch/internal/domain"
	"github.com/opensource-finance/quotawatch/internal/store"
)

// Workbook sheet names.
const (
	SheetSummary      = "Summary"
	SheetTopEntities  = "Top Entities"
	SheetTopSuppliers = "Top Suppliers"
	SheetTopTypes     = "Top Expense Types"
	SheetCritical     = "Critical Expenses"
)

// RenderWorkbook builds an xlsx workbook from the detailed report data.
func RenderWorkbook(data *domain.ReportData) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetTopEntities, SheetTopSuppliers, SheetTopTypes, SheetCritical} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	critical := 0
	for _, s := range data.TopEntities {
		critical += s.CriticalExpenseCount
	}
	summary := [][]any{
		{"Date", data.Date.Format(domain.DateLayout)},
		{"Period", data.Period},
		{"Entities", len(data.TopEntities)},
		{"Critical expenses", len(data.Critical)},
		{"Critical expenses (top entities)", critical},
	}
	if err := writeRows(f, SheetSummary, summary); err != nil {
		return nil, err
	}

	entities := [][]any{toRow(SummaryHeader())}
	for _, s := range data.TopEntities {
		value, _ := s.TotalSuspiciousValue.Round(2).Float64()
		entities = append(entities, []any{
			s.EntityID,
			s.EntityName,
			s.CriticalExpenseCount,
			s.TotalSuspiciousExpenses,
			value,
			s.MaxSuspicionScore,
			s.AverageSuspicionScore,
		})
	}
	if err := writeRows(f, SheetTopEntities, entities); err != nil {
		return nil, err
	}

	if err := writeRows(f, SheetTopSuppliers, countRows("supplier_name", data.TopSuppliers)); err != nil {
		return nil, err
	}
	if err := writeRows(f, SheetTopTypes, countRows("expense_type", data.TopExpenseTypes)); err != nil {
		return nil, err
	}

	critRows := [][]any{toRow(CriticalHeader())}
	for _, r := range data.Critical {
		critRows = append(critRows, toRow(MarshalCritical(r)))
	}
	if err := writeRows(f, SheetCritical, critRows); err != nil {
		return nil, err
	}

	f.SetActiveSheet(0)
	return f, nil
}

// SaveWorkbook renders data and writes it atomically to path.
func SaveWorkbook(path string, data *domain.ReportData) error {
	f, err := RenderWorkbook(data)
	if err != nil {
		return fmt.Errorf("rendering workbook: %w", err)
	}
	defer f.Close()

	if err := store.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return err
	}); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func writeRows(f *excelize.File, sheet string, rows [][]any) error {
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("sheet %s row %d: %w", sheet, i+1, err)
		}
	}
	return nil
}

func countRows(label string, counts []domain.NameCount) [][]any {
	rows := [][]any{{label, "critical_expense_count"}}
	for _, c := range counts {
		rows = append(rows, []any{c.Name, c.Count})
	}
	return rows
}

func toRow(cells []string) []any {
	row := make([]any, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}
