package model

// MasterRecord one row of the long-lived master workbook, keyed by PropertyID
type MasterRecord struct {
	PropertyID          string `json:"propertyId"`
	Postcode            string `json:"postcode"`
	AddressDisplay      string `json:"addressDisplay"`
	PropertyStatus      string `json:"propertyStatus"`
	PaymentPlan         string `json:"paymentPlan"`
	FirstInstructedDate string `json:"firstInstructedDate"`
	FirstListedDate     string `json:"firstListedDate"`
	HouseNumberFinal    string `json:"houseNumberFinal"`
	RoadFinal           string `json:"roadFinal"`
	AddressClean        string `json:"addressClean"`
	MatchedAddress      string `json:"matchedAddress"`
	SoldValue           string `json:"soldValue"` // written as a number when it parses
	SoldDate            string `json:"soldDate"`
	Category            string `json:"category"`
	Status              string `json:"status"`
	Checks              bool   `json:"checks"` // sold on/after first instruction
}

// MasterColumns column order of the master workbook
var MasterColumns = []string{
	"property_id",
	"postcode",
	"address_display",
	"property_status",
	"payment_plan",
	"first_instructed_date",
	"first_listed_date",
	"house_number_final",
	"road_final",
	"address_clean",
	"matched_address",
	"sold_value",
	"sold_date",
	"category",
	"status",
	"Checks",
}

// Values returns the row cells in MasterColumns order, Checks excluded
func (r MasterRecord) Values() []string {
	return []string{
		r.PropertyID,
		r.Postcode,
		r.AddressDisplay,
		r.PropertyStatus,
		r.PaymentPlan,
		r.FirstInstructedDate,
		r.FirstListedDate,
		r.HouseNumberFinal,
		r.RoadFinal,
		r.AddressClean,
		r.MatchedAddress,
		r.SoldValue,
		r.SoldDate,
		r.Category,
		r.Status,
	}
}

// MasterRecordFromRow builds a record from a column lookup; unknown columns read as ""
func MasterRecordFromRow(get func(column string) string) MasterRecord {
	return MasterRecord{
		PropertyID:          get("property_id"),
		Postcode:            get("postcode"),
		AddressDisplay:      get("address_display"),
		PropertyStatus:      get("property_status"),
		PaymentPlan:         get("payment_plan"),
		FirstInstructedDate: get("first_instructed_date"),
		FirstListedDate:     get("first_listed_date"),
		HouseNumberFinal:    get("house_number_final"),
		RoadFinal:           get("road_final"),
		AddressClean:        get("address_clean"),
		MatchedAddress:      get("matched_address"),
		SoldValue:           get("sold_value"),
		SoldDate:            get("sold_date"),
		Category:            get("category"),
		Status:              get("status"),
	}
}
