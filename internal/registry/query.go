package registry

import (
	"fmt"
	"strings"
)

const prefixes = `
prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#>
prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#>
prefix owl: <http://www.w3.org/2002/07/owl#>
prefix xsd: <http://www.w3.org/2001/XMLSchema#>
prefix sr: <http://data.ordnancesurvey.co.uk/ontology/spatialrelations/>
prefix ukhpi: <http://landregistry.data.gov.uk/def/ukhpi/>
prefix lrppi: <http://landregistry.data.gov.uk/def/ppi/>
prefix skos: <http://www.w3.org/2004/02/skos/core#>
prefix lrcommon: <http://landregistry.data.gov.uk/def/common/>
`

// pricePaidQuery selects every sale for one address, newest first.
// Two placeholders: postcode, then PAON.
const pricePaidQuery = prefixes + `
SELECT ?paon ?saon ?street ?town ?county ?postcode ?amount ?date ?category
WHERE
{
  VALUES ?postcode {"%s"^^xsd:string}
  VALUES ?paon     {"%s"^^xsd:string}

  ?addr lrcommon:postcode ?postcode ;
        lrcommon:paon ?paon .

  ?transx lrppi:propertyAddress ?addr ;
          lrppi:pricePaid ?amount ;
          lrppi:transactionDate ?date ;
          lrppi:transactionCategory/skos:prefLabel ?category.

  OPTIONAL {?addr lrcommon:county ?county}
  OPTIONAL {?addr lrcommon:saon ?saon}
  OPTIONAL {?addr lrcommon:street ?street}
  OPTIONAL {?addr lrcommon:town ?town}
}
ORDER BY DESC(?date)
`

var literalEscaper = strings.NewReplacer(
	`\`, `\\`,
	`"`, `\"`,
	"\n", `\n`,
	"\r", `\r`,
	"\t", `\t`,
)

// BuildQuery renders the Price Paid query for one postcode and door number.
// The postcode is normalized and the door number trimmed before substitution.
func BuildQuery(postcode, doorNumber string) string {
	return fmt.Sprintf(pricePaidQuery,
		literalEscaper.Replace(NormalizePostcode(postcode)),
		literalEscaper.Replace(strings.TrimSpace(doorNumber)),
	)
}
