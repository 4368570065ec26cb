package merger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"landreg/internal/model"
	"landreg/internal/workbook"
)

// ErrSourceMissing the matcher output workbook does not exist
var ErrSourceMissing = errors.New("source file not found")

// Options source and target workbook locations
type Options struct {
	SourcePath  string
	SourceSheet string
	TargetPath  string
	TargetSheet string
}

// Result counts from one merge run
type Result struct {
	SourceRows int  `json:"sourceRows"`
	Eligible   int  `json:"eligible"`
	Inserted   int  `json:"inserted"`
	Updated    int  `json:"updated"`
	Total      int  `json:"total"`
	Created    bool `json:"created"` // master workbook did not exist before this run
	Written    bool `json:"written"`
}

// Merger folds matched rows into the master workbook.
type Merger struct {
	opts   Options
	logger zerolog.Logger
}

// New creates a merger
func New(opts Options, logger zerolog.Logger) *Merger {
	return &Merger{opts: opts, logger: logger}
}

// Run reads source and target in full before writing anything; any read
// failure aborts with the target untouched.
func (m *Merger) Run() (*Result, error) {
	result := &Result{}

	if !workbook.FileExists(m.opts.SourcePath) {
		return result, fmt.Errorf("%w: %s", ErrSourceMissing, m.opts.SourcePath)
	}

	m.logger.Info().Str("path", m.opts.SourcePath).Msg("reading source workbook")
	source, err := workbook.ReadTable(m.opts.SourcePath, m.opts.SourceSheet)
	if err != nil {
		return result, fmt.Errorf("failed to read source: %w", err)
	}
	if err := source.Require("property_id", "status"); err != nil {
		return result, fmt.Errorf("source %s: %w", m.opts.SourcePath, err)
	}
	result.SourceRows = source.Len()

	incoming := Prepare(SourceRecords(source))
	result.Eligible = len(incoming)
	if len(incoming) == 0 {
		m.logger.Info().Int("source_rows", result.SourceRows).Msg("no matched records found, nothing to merge")
		return result, nil
	}

	var existing []model.MasterRecord
	if workbook.FileExists(m.opts.TargetPath) {
		existing, err = workbook.ReadMaster(m.opts.TargetPath, m.opts.TargetSheet)
		if err != nil {
			return result, fmt.Errorf("failed to read target: %w", err)
		}
	} else {
		result.Created = true
		m.logger.Info().Str("path", m.opts.TargetPath).Msg("target workbook not found, starting an empty master table")
	}

	merged, inserted, updated := Merge(existing, incoming)
	result.Inserted = inserted
	result.Updated = updated
	result.Total = len(merged)

	if err := workbook.WriteMaster(m.opts.TargetPath, m.opts.TargetSheet, merged); err != nil {
		return result, fmt.Errorf("failed to write target: %w", err)
	}
	result.Written = true

	m.logger.Info().
		Int("eligible", result.Eligible).
		Int("inserted", inserted).
		Int("updated", updated).
		Int("total", result.Total).
		Str("path", m.opts.TargetPath).
		Msg("master table updated")
	return result, nil
}

// SourceRecords maps matcher output rows (or a superset with descriptive
// columns) onto the master schema. postcode falls back to input_postcode.
func SourceRecords(source *workbook.Table) []model.MasterRecord {
	records := workbook.ReadMasterRows(source)
	for i := range records {
		if records[i].Postcode == "" {
			records[i].Postcode = source.Row(i).Get("input_postcode")
		}
	}
	return records
}

// IsMatched reports whether status contains "matched", ignoring case.
func IsMatched(status string) bool {
	return strings.Contains(strings.ToLower(status), string(model.StatusMatched))
}

// Prepare keeps matched rows and derives Checks on each.
func Prepare(records []model.MasterRecord) []model.MasterRecord {
	out := make([]model.MasterRecord, 0, len(records))
	for _, r := range records {
		if !IsMatched(r.Status) {
			continue
		}
		r.Checks = SoldOnOrAfterInstruction(r.SoldDate, r.FirstInstructedDate)
		out = append(out, r)
	}
	return out
}

// Merge upserts incoming into existing by property_id and returns a new
// slice; existing is not modified. A matching row is replaced whole, in
// place. Other rows are appended in incoming order.
func Merge(existing, incoming []model.MasterRecord) (merged []model.MasterRecord, inserted, updated int) {
	merged = make([]model.MasterRecord, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	for _, r := range existing {
		key := strings.TrimSpace(r.PropertyID)
		if pos, ok := index[key]; ok {
			// collapse duplicate keys left by older files
			merged[pos] = r
			continue
		}
		index[key] = len(merged)
		merged = append(merged, r)
	}

	for _, r := range incoming {
		key := strings.TrimSpace(r.PropertyID)
		if pos, ok := index[key]; ok {
			merged[pos] = r
			updated++
			continue
		}
		index[key] = len(merged)
		merged = append(merged, r)
		inserted++
	}
	return merged, inserted, updated
}
