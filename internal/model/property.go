package model

// MatchStatus outcome of a registry lookup for one property
type MatchStatus string

const (
	StatusMatched MatchStatus = "matched"
	StatusNoMatch MatchStatus = "no_match"
	StatusError   MatchStatus = "error"
)

// PropertyInput one property row of the input workbook
type PropertyInput struct {
	PropertyID string `json:"propertyId"`
	DoorNumber string `json:"doorNumber"`
	Postcode   string `json:"postcode"`
}

// LookupResult one sale returned by the Price Paid registry.
// Optional fields are empty when the registry omits them.
type LookupResult struct {
	PAON     string `json:"paon"`
	SAON     string `json:"saon,omitempty"`
	Street   string `json:"street,omitempty"`
	Town     string `json:"town,omitempty"`
	County   string `json:"county,omitempty"`
	Postcode string `json:"postcode"`
	Amount   string `json:"amount"` // decimal string
	Date     string `json:"date"`
	Category string `json:"category"`
}

// MatchedRecord one row of the matcher output workbook
type MatchedRecord struct {
	PropertyID      string      `json:"propertyId"`
	InputDoorNumber string      `json:"inputDoorNumber"`
	InputPostcode   string      `json:"inputPostcode"`
	MatchedAddress  string      `json:"matchedAddress,omitempty"`
	SoldValue       *float64    `json:"soldValue,omitempty"`
	SoldDate        string      `json:"soldDate,omitempty"`
	Category        string      `json:"category,omitempty"`
	Status          MatchStatus `json:"status"`
	Error           string      `json:"error,omitempty"`
}

// MatchedColumns column order of the matcher output workbook
var MatchedColumns = []string{
	"property_id",
	"input_door_number",
	"input_postcode",
	"matched_address",
	"sold_value",
	"sold_date",
	"category",
	"status",
	"error",
}
