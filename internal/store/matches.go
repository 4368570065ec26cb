package store

import (
	"database/sql"
	"fmt"

	"landreg/internal/model"
)

// SaveMatches stores the matcher output of one run, row numbers starting at 1.
func (s *Store) SaveMatches(runID string, records []model.MatchedRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO run_matches (
			run_id, row_no, property_id, input_door_number, input_postcode,
			matched_address, sold_value, sold_date, category, status, error
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, r := range records {
		var soldValue sql.NullFloat64
		if r.SoldValue != nil {
			soldValue = sql.NullFloat64{Float64: *r.SoldValue, Valid: true}
		}
		_, err := stmt.Exec(
			runID, i+1, r.PropertyID, r.InputDoorNumber, r.InputPostcode,
			r.MatchedAddress, soldValue, r.SoldDate, r.Category, string(r.Status), r.Error,
		)
		if err != nil {
			return fmt.Errorf("failed to insert match row %d: %w", i+1, err)
		}
	}

	return tx.Commit()
}

// ListMatches returns the rows of one run in input order.
func (s *Store) ListMatches(runID string) ([]model.MatchedRecord, error) {
	rows, err := s.db.Query(`
		SELECT property_id, input_door_number, input_postcode, matched_address,
		       sold_value, sold_date, category, status, error
		FROM run_matches
		WHERE run_id = ?
		ORDER BY row_no
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	records := make([]model.MatchedRecord, 0)
	for rows.Next() {
		var (
			r         model.MatchedRecord
			soldValue sql.NullFloat64
			status    string
		)
		if err := rows.Scan(
			&r.PropertyID, &r.InputDoorNumber, &r.InputPostcode, &r.MatchedAddress,
			&soldValue, &r.SoldDate, &r.Category, &status, &r.Error,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		if soldValue.Valid {
			v := soldValue.Float64
			r.SoldValue = &v
		}
		r.Status = model.MatchStatus(status)
		records = append(records, r)
	}
	return records, rows.Err()
}
