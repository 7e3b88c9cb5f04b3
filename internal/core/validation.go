package core

// validation.go turns RowCandidates into NormalizedRecords.
//
// Rules run in a fixed order and the first failure wins:
//  0. Structural carry-over (column count, encoding) from the parser
//  1. Required fields: name and the natural-key field
//  2. Format checks per field in schema order, length before syntax
//  3. Coercion (trim, whitespace collapse, case folding), which never fails
//
// The Validator holds no cross-row state, so validating the same candidate
// twice gives the same result.

import (
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// FieldSpec describes the constraints for one schema field.
type FieldSpec struct {
	Name      string
	MaxLen    int                   // in characters
	Check     func(v string) error  // syntax check on the trimmed value
	Normalize func(v string) string // coercion applied after all checks pass
}

var externalRefPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]*$`)

// customerFields lists the field specs in schema order.
var customerFields = []FieldSpec{
	{
		Name:   FieldExternalRef,
		MaxLen: 64,
		Check: func(v string) error {
			if !externalRefPattern.MatchString(v) {
				return errors.New("must start with a letter or digit and contain only letters, digits, '.', '_' or '-'")
			}
			return nil
		},
		Normalize: strings.ToUpper,
	},
	{
		Name:      FieldEmail,
		MaxLen:    254,
		Check:     checkEmail,
		Normalize: strings.ToLower,
	},
	{
		Name:      FieldName,
		MaxLen:    200,
		Normalize: collapseSpaces,
	},
	{
		Name:   FieldPhone,
		MaxLen: 32,
		Check:  checkPhone,
	},
	{
		Name:      FieldCompany,
		MaxLen:    200,
		Normalize: collapseSpaces,
	},
}

// Validator applies the customer rules to candidates parsed with a given header.
type Validator struct {
	header   HeaderIndex
	required []string
	keyField string
}

// NewValidator creates a validator. keyField names the natural-key column
// (FieldEmail or FieldExternalRef).
func NewValidator(header HeaderIndex, keyField string) *Validator {
	return &Validator{
		header:   header,
		required: RequiredFields(keyField),
		keyField: keyField,
	}
}

// RequiredFields returns the schema fields that must be non-empty, in schema order.
func RequiredFields(keyField string) []string {
	var out []string
	for _, f := range SchemaFields {
		if f == FieldName || f == keyField {
			out = append(out, f)
		}
	}
	return out
}

// Validate checks a candidate and returns the normalized record,
// or the first rule violation.
func (v *Validator) Validate(c RowCandidate) (NormalizedRecord, *ValidationError) {
	if c.Err != nil {
		ve := *c.Err
		ve.Line = c.Line
		return NormalizedRecord{}, &ve
	}

	values := make(map[string]string, len(customerFields))
	for _, spec := range customerFields {
		values[spec.Name] = CleanCell(v.header.Cell(c.Fields, spec.Name))
	}

	for _, f := range v.required {
		if values[f] == "" {
			return NormalizedRecord{}, &ValidationError{
				Line:    c.Line,
				Field:   f,
				Kind:    KindRequired,
				Message: "required field is empty",
			}
		}
	}

	for _, spec := range customerFields {
		val := values[spec.Name]
		if val == "" {
			continue
		}
		if n := utf8.RuneCountInString(val); spec.MaxLen > 0 && n > spec.MaxLen {
			return NormalizedRecord{}, &ValidationError{
				Line:    c.Line,
				Field:   spec.Name,
				Kind:    KindLength,
				Message: fmt.Sprintf("exceeds %d characters", spec.MaxLen),
			}
		}
		if spec.Check != nil {
			if err := spec.Check(val); err != nil {
				return NormalizedRecord{}, &ValidationError{
					Line:    c.Line,
					Field:   spec.Name,
					Kind:    KindFormat,
					Message: err.Error(),
				}
			}
		}
	}

	for _, spec := range customerFields {
		if spec.Normalize != nil {
			values[spec.Name] = spec.Normalize(values[spec.Name])
		}
	}

	return NormalizedRecord{
		Line:       c.Line,
		NaturalKey: values[v.keyField],
		Profile: Profile{
			ExternalRef: values[FieldExternalRef],
			Email:       values[FieldEmail],
			Name:        values[FieldName],
			Phone:       values[FieldPhone],
			Company:     values[FieldCompany],
		},
	}, nil
}

func checkEmail(v string) error {
	addr, err := mail.ParseAddress(v)
	if err != nil || addr.Name != "" || addr.Address != v {
		return errors.New("invalid email address")
	}
	at := strings.LastIndexByte(v, '@')
	if !strings.Contains(v[at+1:], ".") {
		return errors.New("invalid email address: domain has no dot")
	}
	return nil
}

func checkPhone(v string) error {
	digits := 0
	for _, r := range v {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+', r == '(', r == ')', r == '-', r == '.', r == ' ':
		default:
			return fmt.Errorf("invalid character %q in phone number", r)
		}
	}
	if digits < 7 {
		return errors.New("phone number needs at least 7 digits")
	}
	return nil
}

func collapseSpaces(v string) string {
	return strings.Join(strings.FieldsFunc(v, unicode.IsSpace), " ")
}
