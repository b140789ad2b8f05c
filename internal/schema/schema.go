// Package schema declares the canonical shape of the properties_data table
// and the authoritative mapping from source-side field names to canonical
// column names.
//
// Both the transformer and the loader consume this package; neither keeps a
// private copy of the mapping. Adding a column means touching Columns,
// SourceFields and (if the API name differs) Aliases together.
package schema

// Columns is the canonical column set of the destination table, in the exact
// order every transformed artifact and every destination write must use.
var Columns = []string{
	"id",
	"address",
	"city",
	"state",
	"state_fips",
	"zip_code",
	"county",
	"county_fips",
	"latitude",
	"longitude",
	"property_type",
	"bedrooms",
	"bathrooms",
	"square_footage",
	"year_built",
}

// SourceFields lists the API-side names of the canonical columns, in
// canonical order. The transformer projects exactly these fields out of the
// flattened payload.
var SourceFields = []string{
	"id",
	"formattedAddress",
	"city",
	"state",
	"stateFips",
	"zipCode",
	"county",
	"countyFips",
	"latitude",
	"longitude",
	"propertyType",
	"bedrooms",
	"bathrooms",
	"squareFootage",
	"yearBuilt",
}

// Aliases maps every known source or legacy column name to its canonical
// name. Names that are already canonical are not listed; CanonicalName
// passes them through unchanged.
//
// "county_Fips" shows up in artifacts written by an older producer and is
// recognized during loader reconciliation only.
var Aliases = map[string]string{
	"formattedAddress": "address",
	"stateFips":        "state_fips",
	"zipCode":          "zip_code",
	"countyFips":       "county_fips",
	"county_Fips":      "county_fips",
	"propertyType":     "property_type",
	"squareFootage":    "square_footage",
	"yearBuilt":        "year_built",
}

var columnIndex = func() map[string]int {
	m := make(map[string]int, len(Columns))
	for i, c := range Columns {
		m[c] = i
	}
	return m
}()

// CanonicalName resolves a column name to canonical form. Unknown names come
// back unchanged; whether to keep or drop them is the caller's decision.
func CanonicalName(name string) string {
	if c, ok := Aliases[name]; ok {
		return c
	}
	return name
}

// IsCanonical reports whether name is one of the canonical columns.
func IsCanonical(name string) bool {
	_, ok := columnIndex[name]
	return ok
}

// ColumnIndex returns the canonical position of name, or -1 when name is not
// a canonical column.
func ColumnIndex(name string) int {
	if i, ok := columnIndex[name]; ok {
		return i
	}
	return -1
}
