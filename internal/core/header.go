package core

// header.go maps the header row of an upload onto the customer schema.
//
// Header names are matched case-insensitively after cleanup, so "E-Mail",
// "email_address" and " Email " all resolve to the email field. Columns that
// do not map to a schema field are ignored.

import (
	"sort"
	"strings"
)

// HeaderIndex maps schema field names to their position in the upload row.
type HeaderIndex map[string]int

// headerAliases lists accepted spellings per schema field.
var headerAliases = map[string][]string{
	FieldExternalRef: {"external_ref", "external_reference", "external_id", "reference", "ref", "customer_ref", "customer_code", "code"},
	FieldEmail:       {"email", "email_address", "e_mail", "emailaddress", "mail"},
	FieldName:        {"name", "full_name", "customer_name", "fullname"},
	FieldPhone:       {"phone", "phone_number", "phonenumber", "mobile", "telephone", "tel"},
	FieldCompany:     {"company", "company_name", "organization", "organisation", "business"},
}

var aliasLookup = func() map[string]string {
	m := make(map[string]string)
	for field, aliases := range headerAliases {
		for _, a := range aliases {
			m[a] = field
		}
	}
	return m
}()

// CanonicalHeader normalizes a raw header cell for alias lookup.
func CanonicalHeader(h string) string {
	h = strings.ToLower(CleanCell(h))
	h = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '.', '\t':
			return '_'
		}
		return r
	}, h)
	for strings.Contains(h, "__") {
		h = strings.ReplaceAll(h, "__", "_")
	}
	return strings.Trim(h, "_")
}

// MakeHeaderIndex resolves header cells to schema fields.
// The second return value lists schema fields that appear more than once.
func MakeHeaderIndex(header []string) (HeaderIndex, []string) {
	idx := make(HeaderIndex, len(SchemaFields))
	var dup []string
	for i, h := range header {
		field, ok := aliasLookup[CanonicalHeader(h)]
		if !ok {
			continue
		}
		if _, seen := idx[field]; seen {
			dup = append(dup, field)
			continue
		}
		idx[field] = i
	}
	return idx, dup
}

// ValidateHeaders checks that all required fields are present exactly once.
// Returns a StructuralError listing the missing or duplicated columns.
func ValidateHeaders(line int, header []string, required []string) (HeaderIndex, error) {
	idx, dup := MakeHeaderIndex(header)
	if len(dup) > 0 {
		sort.Strings(dup)
		return nil, structuralf(line, nil, "duplicate columns: %s", strings.Join(dup, ", "))
	}

	var missing []string
	for _, field := range required {
		if _, ok := idx[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, structuralf(line, nil, "missing required columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

// Cell returns the value for field, or "" when the column is absent.
func (h HeaderIndex) Cell(row []string, field string) string {
	pos, ok := h[field]
	if !ok || pos >= len(row) {
		return ""
	}
	return row[pos]
}

// CleanCell removes common spreadsheet artifacts from a cell value:
// surrounding whitespace and the Excel text-formula wrapper (="...").
func CleanCell(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") && len(s) >= 3 {
		s = s[2 : len(s)-1]
	}
	return s
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
