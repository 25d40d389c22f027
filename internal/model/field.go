package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Field is the name of a canonical business-entity attribute.
type Field string

const (
	FieldCompanyName    Field = "company_name"
	FieldAddressLine1   Field = "address_line1"
	FieldAddressLine2   Field = "address_line2"
	FieldCity           Field = "city"
	FieldStateProvince  Field = "state_province"
	FieldPostalCode     Field = "postal_code"
	FieldCountry        Field = "country"
	FieldWebsite        Field = "website"
	FieldEmail          Field = "email"
	FieldPhone          Field = "phone"
	FieldVATID          Field = "vat_id"
	FieldRegistrationID Field = "registration_id"
	FieldIndustry       Field = "industry"
)

// AllFields lists every canonical field in canonical order.
var AllFields = []Field{
	FieldCompanyName,
	FieldAddressLine1,
	FieldAddressLine2,
	FieldCity,
	FieldStateProvince,
	FieldPostalCode,
	FieldCountry,
	FieldWebsite,
	FieldEmail,
	FieldPhone,
	FieldVATID,
	FieldRegistrationID,
	FieldIndustry,
}

var fieldOrder = func() map[Field]int {
	m := make(map[Field]int, len(AllFields))
	for i, f := range AllFields {
		m[f] = i
	}
	return m
}()

// ParseField returns the canonical field with the given name.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := fieldOrder[f]; !ok {
		return "", eris.Errorf("model: unknown canonical field %q", s)
	}
	return f, nil
}

// Valid reports whether f is a canonical field.
func (f Field) Valid() bool {
	_, ok := fieldOrder[f]
	return ok
}

// Order returns the position of f in canonical order, or len(AllFields) for
// unknown fields.
func (f Field) Order() int {
	if i, ok := fieldOrder[f]; ok {
		return i
	}
	return len(AllFields)
}

// Record maps canonical fields to nullable string values. Nil, empty and
// whitespace-only values are all treated as absent.
type Record map[Field]*string

// Get returns the trimmed value of f, or "" when absent.
func (r Record) Get(f Field) string {
	if r == nil {
		return ""
	}
	v := r[f]
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

// Has reports whether f holds non-blank content.
func (r Record) Has(f Field) bool {
	return r.Get(f) != ""
}

// Set stores v for f. A blank v clears the field.
func (r Record) Set(f Field, v string) {
	if strings.TrimSpace(v) == "" {
		r[f] = nil
		return
	}
	s := v
	r[f] = &s
}

// Ptr returns a copy of the value pointer for f, or nil when absent.
func (r Record) Ptr(f Field) *string {
	if !r.Has(f) {
		return nil
	}
	return StringPtr(r.Get(f))
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if v == nil {
			out[k] = nil
			continue
		}
		s := *v
		out[k] = &s
	}
	return out
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// Deref returns the value behind p, or "" for nil.
func Deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
