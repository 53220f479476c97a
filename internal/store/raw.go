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
	"strings"

	"github.com/opensource-finance/quotawatch/internal/domain"
)

// Column names written by the downloader.
const (
	rawEntityID   = "id"
	rawEntityName = "nome"

	rawDate     = "dataDocumento"
	rawValue    = "valorLiquido"
	rawType     = "tipoDespesa"
	rawSupplier = "nomeFornecedor"
	rawTaxID    = "cnpjCpfFornecedor"
	rawURL      = "urlDocumento"
	rawYear     = "ano"
	rawMonth    = "mes"
)

const (
	entitiesFileName = "deputados.csv"
	expensesDirName  = "expenses"
)

// RawSource implements domain.ExpenseSource over the downloader's
// directory layout:
//
//	<dir>/deputados.csv
//	<dir>/expenses/<entity_id>/<YYYY>-<MM>.csv
type RawSource struct {
	dir string
}

// NewRawSource reads raw files under dir.
func NewRawSource(dir string) *RawSource {
	return &RawSource{dir: dir}
}

// Entities reads deputados.csv in file order.
func (s *RawSource) Entities(ctx context.Context) ([]domain.Entity, error) {
	path := filepath.Join(s.dir, entitiesFileName)
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrMissingData, path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	header, rows, err := readTable(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(header) == 0 {
		return nil, nil
	}

	idCol, ok := header[rawEntityID]
	if !ok {
		return nil, fmt.Errorf("%s: missing column %q", path, rawEntityID)
	}
	nameCol, ok := header[rawEntityName]
	if !ok {
		return nil, fmt.Errorf("%s: missing column %q", path, rawEntityName)
	}

	entities := make([]domain.Entity, 0, len(rows))
	for _, row := range rows {
		id := strings.TrimSpace(field(row, idCol))
		if id == "" {
			continue
		}
		entities = append(entities, domain.Entity{
			ID:   id,
			Name: strings.TrimSpace(field(row, nameCol)),
		})
	}
	return entities, nil
}

// Expenses concatenates every file under expenses/<entityID>/ in lexical
// order. Returns nil, nil when the directory is missing or empty.
func (s *RawSource) Expenses(ctx context.Context, entityID string) ([]domain.RawExpense, error) {
	if err := validateEntityID(entityID); err != nil {
		return nil, err
	}

	dir := filepath.Join(s.dir, expensesDirName, entityID)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".csv") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []domain.RawExpense
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := readExpenseFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

func readExpenseFile(path string) ([]domain.RawExpense, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	header, rows, err := readTable(f)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if len(header) == 0 {
		return nil, nil
	}
	for _, required := range []string{rawDate, rawValue} {
		if _, ok := header[required]; !ok {
			return nil, fmt.Errorf("%s: missing column %q", path, required)
		}
	}

	col := func(name string) int {
		if i, ok := header[name]; ok {
			return i
		}
		return -1
	}
	dateCol, valueCol := col(rawDate), col(rawValue)
	typeCol, supplierCol, taxCol := col(rawType), col(rawSupplier), col(rawTaxID)
	urlCol, yearCol, monthCol := col(rawURL), col(rawYear), col(rawMonth)

	out := make([]domain.RawExpense, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.RawExpense{
			DocumentDate:  field(row, dateCol),
			NetValue:      field(row, valueCol),
			ExpenseType:   field(row, typeCol),
			SupplierName:  field(row, supplierCol),
			SupplierTaxID: field(row, taxCol),
			DocumentURL:   field(row, urlCol),
			Year:          field(row, yearCol),
			Month:         field(row, monthCol),
		})
	}
	return out, nil
}

// readTable returns the header as a name to index map plus the data rows.
// Ragged rows are allowed; missing cells read as empty.
func readTable(r io.Reader) (map[string]int, [][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, err
	}
	if len(records) == 0 {
		return nil, nil, nil
	}

	header := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		header[strings.TrimSpace(name)] = i
	}
	return header, records[1:], nil
}

func field(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return row[i]
}
