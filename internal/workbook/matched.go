package workbook

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"landreg/internal/model"
)

// InputColumns names the input workbook columns
type InputColumns struct {
	PropertyID string
	DoorNumber string
	Postcode   string
}

// DefaultInputColumns property_id / door_number / postcode
func DefaultInputColumns() InputColumns {
	return InputColumns{
		PropertyID: "property_id",
		DoorNumber: "door_number",
		Postcode:   "postcode",
	}
}

// ReadInputs loads the properties to check, in sheet order.
func ReadInputs(path, sheet string, cols InputColumns) ([]model.PropertyInput, error) {
	table, err := ReadTable(path, sheet)
	if err != nil {
		return nil, err
	}
	if err := table.Require(cols.PropertyID, cols.DoorNumber, cols.Postcode); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	inputs := make([]model.PropertyInput, 0, table.Len())
	for i := 0; i < table.Len(); i++ {
		row := table.Row(i)
		inputs = append(inputs, model.PropertyInput{
			PropertyID: row.Get(cols.PropertyID),
			DoorNumber: row.Get(cols.DoorNumber),
			Postcode:   row.Get(cols.Postcode),
		})
	}
	return inputs, nil
}

// WriteMatched overwrites path with the matcher output.
func WriteMatched(path, sheet string, records []model.MatchedRecord) error {
	sheet = sheetOrDefault(sheet)
	f, err := newSheetFile(sheet)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := writeHeader(f, sheet, model.MatchedColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, r := range records {
		var soldValue interface{}
		if r.SoldValue != nil {
			soldValue = *r.SoldValue
		}
		row := []interface{}{
			r.PropertyID,
			r.InputDoorNumber,
			r.InputPostcode,
			r.MatchedAddress,
			soldValue,
			r.SoldDate,
			r.Category,
			string(r.Status),
			r.Error,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if err := setColWidths(f, sheet, []colWidth{{"A", "C", 16}, {"D", "D", 48}, {"E", "I", 16}}); err != nil {
		return err
	}

	return saveAtomic(f, path)
}
