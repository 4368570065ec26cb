package workbook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"landreg/internal/model"
)

const displayDateLayout = "02/01/2006"

var dateColumns = map[string]bool{
	"first_instructed_date": true,
	"first_listed_date":     true,
	"sold_date":             true,
}

// ReadMasterRows converts a table into master records. Date cells stored as
// Excel serials are rendered dd/mm/yyyy; absent columns read as "".
func ReadMasterRows(table *Table) []model.MasterRecord {
	records := make([]model.MasterRecord, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		row := table.Row(i)
		get := func(column string) string {
			v := row.Get(column)
			if dateColumns[column] {
				return serialToDate(v)
			}
			return v
		}
		rec := model.MasterRecordFromRow(get)
		rec.Checks = parseBool(row.Get("Checks"))
		records = append(records, rec)
	}
	return records
}

// ReadMaster loads the master workbook; it must have a property_id column.
func ReadMaster(path, sheet string) ([]model.MasterRecord, error) {
	table, err := ReadTable(path, sheet)
	if err != nil {
		return nil, err
	}
	if table.Len() > 0 {
		if err := table.Require("property_id"); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return ReadMasterRows(table), nil
}

// WriteMaster overwrites path with records under the master schema.
func WriteMaster(path, sheet string, records []model.MasterRecord) error {
	sheet = sheetOrDefault(sheet)
	f, err := newSheetFile(sheet)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := writeHeader(f, sheet, model.MasterColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range records {
		values := r.Values()
		row := make([]interface{}, 0, len(values)+1)
		for j, v := range values {
			if model.MasterColumns[j] == "sold_value" {
				row = append(row, numericOrText(v))
				continue
			}
			row = append(row, v)
		}
		row = append(row, r.Checks)

		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := setColWidths(f, sheet, []colWidth{{"A", "J", 18}, {"K", "K", 48}, {"L", "P", 16}}); err != nil {
		return err
	}

	return saveAtomic(f, path)
}

func numericOrText(v string) interface{} {
	if v == "" {
		return nil
	}
	if n, err := strconv.ParseFloat(v, 64); err == nil {
		return n
	}
	return v
}

// serialToDate renders an Excel date serial as dd/mm/yyyy; other values pass through.
func serialToDate(v string) string {
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || n <= 0 {
		return v
	}
	t, err := excelize.ExcelDateToTime(n, false)
	if err != nil {
		return v
	}
	return t.Format(displayDateLayout)
}

func parseBool(v string) bool {
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	return err == nil && b
}
