package workbook

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ErrMissingColumn is wrapped when a required header is absent.
var ErrMissingColumn = errors.New("missing column")

// Table header and data rows of one sheet
type Table struct {
	Header   []string
	Rows     [][]string
	colIndex map[string]int
}

// Row one data row, addressed by column name
type Row struct {
	table *Table
	cells []string
}

// ReadTable loads a sheet with its first row as header. Cells are read raw
// (unformatted), so dates come back as Excel serial numbers and ids keep their digits.
// An empty sheet name selects the first sheet.
func ReadTable(path, sheet string) (*Table, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel: %w", err)
	}
	defer f.Close()

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		return nil, fmt.Errorf("sheet %q not found in %s", sheet, path)
	}

	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return newTable(nil, nil), nil
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}

	data := make([][]string, 0, len(rows)-1)
	for _, r := range rows[1:] {
		if isBlank(r) {
			continue
		}
		data = append(data, r)
	}
	return newTable(header, data), nil
}

func newTable(header []string, rows [][]string) *Table {
	t := &Table{Header: header, Rows: rows, colIndex: make(map[string]int, len(header))}
	for i, h := range header {
		if _, dup := t.colIndex[h]; !dup {
			t.colIndex[h] = i
		}
	}
	return t
}

// Has reports whether the header contains column.
func (t *Table) Has(column string) bool {
	_, ok := t.colIndex[column]
	return ok
}

// Require fails with ErrMissingColumn naming every absent column.
func (t *Table) Require(columns ...string) error {
	var missing []string
	for _, c := range columns {
		if !t.Has(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// Len number of data rows
func (t *Table) Len() int {
	return len(t.Rows)
}

// Row returns the i-th data row.
func (t *Table) Row(i int) Row {
	return Row{table: t, cells: t.Rows[i]}
}

// Get returns the trimmed cell under column, or "" when the column or cell is absent.
func (r Row) Get(column string) string {
	idx, ok := r.table.colIndex[column]
	if !ok || idx >= len(r.cells) {
		return ""
	}
	return strings.TrimSpace(r.cells[idx])
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
