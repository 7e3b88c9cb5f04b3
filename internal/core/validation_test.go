package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fullHeader = HeaderIndex{
	FieldExternalRef: 0,
	FieldEmail:       1,
	FieldName:        2,
	FieldPhone:       3,
	FieldCompany:     4,
}

func candidate(line int, fields ...string) RowCandidate {
	return RowCandidate{Line: line, Fields: fields}
}

func TestValidator_Normalizes(t *testing.T) {
	v := NewValidator(fullHeader, FieldEmail)

	rec, verr := v.Validate(candidate(7, " ab-12.x ", " Ann@Example.COM ", "  Ann   \t Smith ", "+1 (555) 123-4567", " Acme   Corp "))
	require.Nil(t, verr)

	assert.Equal(t, NormalizedRecord{
		Line:       7,
		NaturalKey: "ann@example.com",
		Profile: Profile{
			ExternalRef: "AB-12.X",
			Email:       "ann@example.com",
			Name:        "Ann Smith",
			Phone:       "+1 (555) 123-4567",
			Company:     "Acme Corp",
		},
	}, rec)
}

func TestValidator_ExternalRefKey(t *testing.T) {
	v := NewValidator(fullHeader, FieldExternalRef)

	rec, verr := v.Validate(candidate(2, "c-100", "", "Ann", "", ""))
	require.Nil(t, verr)
	assert.Equal(t, "C-100", rec.NaturalKey)
	assert.Empty(t, rec.Profile.Email)

	_, verr = v.Validate(candidate(3, "", "ann@example.com", "Ann", "", ""))
	require.NotNil(t, verr)
	assert.Equal(t, FieldExternalRef, verr.Field)
	assert.Equal(t, KindRequired, verr.Kind)
}

func TestValidator_Rules(t *testing.T) {
	v := NewValidator(fullHeader, FieldEmail)

	tests := []struct {
		name      string
		fields    []string
		wantField string
		wantKind  string
	}{
		{
			name:      "missing name",
			fields:    []string{"", "ann@example.com", "  ", "", ""},
			wantField: FieldName,
			wantKind:  KindRequired,
		},
		{
			name:      "required checked before format",
			fields:    []string{"!!", "", "Ann", "", ""},
			wantField: FieldEmail,
			wantKind:  KindRequired,
		},
		{
			name:      "invalid email",
			fields:    []string{"", "not-an-email", "Ann", "", ""},
			wantField: FieldEmail,
			wantKind:  KindFormat,
		},
		{
			name:      "display name is not a bare address",
			fields:    []string{"", "Ann <ann@example.com>", "Ann", "", ""},
			wantField: FieldEmail,
			wantKind:  KindFormat,
		},
		{
			name:      "schema order puts external_ref first",
			fields:    []string{"-bad", "not-an-email", "Ann", "", ""},
			wantField: FieldExternalRef,
			wantKind:  KindFormat,
		},
		{
			name:      "length before syntax",
			fields:    []string{"", "ann@example.com", strings.Repeat("n", 201), "", ""},
			wantField: FieldName,
			wantKind:  KindLength,
		},
		{
			name:      "phone with letters",
			fields:    []string{"", "ann@example.com", "Ann", "555-CALL-NOW", ""},
			wantField: FieldPhone,
			wantKind:  KindFormat,
		},
		{
			name:      "phone too short",
			fields:    []string{"", "ann@example.com", "Ann", "12-34", ""},
			wantField: FieldPhone,
			wantKind:  KindFormat,
		},
		{
			name:      "company too long",
			fields:    []string{"", "ann@example.com", "Ann", "", strings.Repeat("c", 201)},
			wantField: FieldCompany,
			wantKind:  KindLength,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, verr := v.Validate(candidate(5, tt.fields...))
			require.NotNil(t, verr)
			assert.Equal(t, 5, verr.Line)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Equal(t, tt.wantKind, verr.Kind)
		})
	}
}

func TestValidator_CarriesStructuralRowError(t *testing.T) {
	v := NewValidator(fullHeader, FieldEmail)
	c := candidate(9, "a", "b")
	c.Err = &ValidationError{Line: 9, Kind: KindColumnCount, Message: "expected 5 columns, got 2"}

	_, verr := v.Validate(c)
	require.NotNil(t, verr)
	assert.Equal(t, KindColumnCount, verr.Kind)
	assert.Equal(t, 9, verr.Line)
}

func TestValidator_Deterministic(t *testing.T) {
	v := NewValidator(fullHeader, FieldEmail)
	inputs := []RowCandidate{
		candidate(2, "x1", "A@B.io", "Ann", "5551234567", "Acme"),
		candidate(3, "", "bad", "Bob", "", ""),
		candidate(4, "", "", "", "", ""),
	}

	for _, c := range inputs {
		rec1, err1 := v.Validate(c)
		rec2, err2 := v.Validate(c)
		assert.Equal(t, rec1, rec2)
		assert.Equal(t, err1, err2)
	}
}

func TestValidator_MissingOptionalColumns(t *testing.T) {
	v := NewValidator(HeaderIndex{FieldName: 0, FieldEmail: 1}, FieldEmail)

	rec, verr := v.Validate(candidate(2, "Ann", "ann@example.com"))
	require.Nil(t, verr)
	assert.Equal(t, Profile{Email: "ann@example.com", Name: "Ann"}, rec.Profile)
}
