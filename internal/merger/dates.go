package merger

import (
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// dayFirstLayouts are tried before the ISO forms the registry returns.
var dayFirstLayouts = []string{
	"02/01/2006",
	"2/1/2006",
	"02/01/2006 15:04:05",
	"02-01-2006",
}

var isoLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseDate reads a day/month/year date, falling back to ISO dates and Excel
// serial numbers. Unparseable input yields the zero time.
func ParseDate(raw string) time.Time {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}
	}

	for _, layout := range dayFirstLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SoldOnOrAfterInstruction is the Checks flag. It is false whenever either
// date is missing or unparseable.
func SoldOnOrAfterInstruction(soldDate, firstInstructedDate string) bool {
	sold := ParseDate(soldDate)
	instructed := ParseDate(firstInstructedDate)
	if sold.IsZero() || instructed.IsZero() {
		return false
	}
	return !sold.Before(instructed)
}
