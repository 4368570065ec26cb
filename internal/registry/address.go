package registry

import (
	"strings"

	"landreg/internal/model"
)

// FormatAddress joins the present address parts, most specific first.
func FormatAddress(r model.LookupResult) string {
	candidates := []string{r.SAON, r.PAON, r.Street, r.Town, r.County, r.Postcode}

	parts := make([]string, 0, len(candidates))
	for _, p := range candidates {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
