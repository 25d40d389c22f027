// Package validate checks and normalizes canonical records field by field
// using static tables. It performs no I/O.
package validate

import (
	"fmt"
	"strings"

	"github.com/sells-group/datafixer/internal/model"
)

// Result is the outcome of validating one record.
type Result struct {
	// Record is a copy of the input with in-place corrections applied.
	Record model.Record
	Issues []model.Issue
}

// requiredFields lists the fields that raise MISSING when mapped but empty.
var requiredFields = []struct {
	field    model.Field
	severity model.Severity
}{
	{model.FieldCompanyName, model.SeverityError},
	{model.FieldCountry, model.SeverityWarning},
}

// Validate runs every rule against rec. Fields not enabled in schema never
// produce MISSING issues. Validating the returned record again yields no
// further corrections.
func Validate(rec model.Record, schema model.Schema) Result {
	v := &validator{rec: rec.Clone()}

	v.country()
	v.postal()
	v.website()
	v.email()
	v.phone()
	v.vat()

	for _, req := range requiredFields {
		if schema.Enabled(req.field) && !v.rec.Has(req.field) {
			v.add(model.Issue{
				Field:    req.field,
				Type:     model.IssueMissing,
				Severity: req.severity,
				Message:  fmt.Sprintf("%s is required but empty", req.field),
			})
		}
	}

	return Result{Record: v.rec, Issues: v.issues}
}

type validator struct {
	rec    model.Record
	issues []model.Issue
}

func (v *validator) add(is model.Issue) {
	v.issues = append(v.issues, is)
}

// correct replaces the field value and records an INFO issue describing it.
func (v *validator) correct(f model.Field, typ model.IssueType, newValue, msg string) {
	orig := v.rec.Ptr(f)
	v.rec.Set(f, newValue)
	v.add(model.Issue{
		Field:          f,
		OriginalValue:  orig,
		Type:           typ,
		Severity:       model.SeverityInfo,
		Message:        msg,
		SuggestedValue: model.StringPtr(newValue),
	})
}

func (v *validator) country() {
	raw := v.rec.Get(model.FieldCountry)
	if raw == "" {
		return
	}

	code, ok := ResolveCountry(raw)
	if !ok {
		v.add(model.Issue{
			Field:         model.FieldCountry,
			OriginalValue: model.StringPtr(raw),
			Type:          model.IssueInvalid,
			Severity:      model.SeverityWarning,
			Message:       fmt.Sprintf("country %q is not a recognizable country", raw),
		})
		return
	}
	if code != raw {
		v.correct(model.FieldCountry, model.IssueFormatError, code,
			fmt.Sprintf("country %q normalized to ISO code %s", raw, code))
	}

	city := v.rec.Get(model.FieldCity)
	if city == "" {
		return
	}
	cityCode, known := CityCountry(city)
	if !known || cityCode == code {
		return
	}
	if isConfusable(code, cityCode) {
		orig := v.rec.Ptr(model.FieldCountry)
		v.rec.Set(model.FieldCountry, cityCode)
		v.add(model.Issue{
			Field:          model.FieldCountry,
			OriginalValue:  orig,
			Type:           model.IssueSuspicious,
			Severity:       model.SeverityInfo,
			Message:        fmt.Sprintf("country %s does not match city %s, corrected to %s", code, city, cityCode),
			SuggestedValue: model.StringPtr(cityCode),
		})
		return
	}
	v.add(model.Issue{
		Field:          model.FieldCountry,
		OriginalValue:  model.StringPtr(code),
		Type:           model.IssueSuspicious,
		Severity:       model.SeverityWarning,
		Message:        fmt.Sprintf("city %s is usually in %s, not %s", city, cityCode, code),
		SuggestedValue: model.StringPtr(cityCode),
	})
}

func (v *validator) postal() {
	postal := v.rec.Get(model.FieldPostalCode)
	country := v.rec.Get(model.FieldCountry)
	if postal == "" || country == "" || !IsCountryCode(country) {
		return
	}
	if _, known := postalPatterns[country]; !known || PostalFits(country, postal) {
		return
	}

	matches := PostalMatches(postal)
	if len(matches) == 0 {
		v.add(model.Issue{
			Field:         model.FieldPostalCode,
			OriginalValue: model.StringPtr(postal),
			Type:          model.IssueFormatError,
			Severity:      model.SeverityInfo,
			Message:       fmt.Sprintf("postal code %q matches no known postal format", postal),
		})
		return
	}

	cityHint, _ := CityCountry(v.rec.Get(model.FieldCity))
	alt, ok := suggestPostalCountry(country, cityHint, matches)
	is := model.Issue{
		Field:         model.FieldCountry,
		OriginalValue: model.StringPtr(country),
		Type:          model.IssueSuspicious,
		Severity:      model.SeverityWarning,
		Message: fmt.Sprintf("postal code %q does not fit %s but fits %s",
			postal, country, strings.Join(matches, ", ")),
	}
	if ok {
		is.SuggestedValue = model.StringPtr(alt)
	}
	v.add(is)
}

func (v *validator) website() {
	raw := v.rec.Get(model.FieldWebsite)
	if raw == "" {
		return
	}
	norm, ok := NormalizeWebsite(raw)
	if !ok {
		v.add(model.Issue{
			Field:         model.FieldWebsite,
			OriginalValue: model.StringPtr(raw),
			Type:          model.IssueInvalid,
			Severity:      model.SeverityWarning,
			Message:       fmt.Sprintf("website %q is not a valid URL", raw),
		})
		return
	}
	if norm != raw {
		v.correct(model.FieldWebsite, model.IssueFormatError, norm, "website normalized to https")
	}
}

func (v *validator) email() {
	raw := v.rec.Get(model.FieldEmail)
	if raw == "" {
		return
	}
	norm, ok := NormalizeEmail(raw)
	if !ok {
		v.add(model.Issue{
			Field:         model.FieldEmail,
			OriginalValue: model.StringPtr(raw),
			Type:          model.IssueInvalid,
			Severity:      model.SeverityWarning,
			Message:       fmt.Sprintf("email %q is not a valid address", raw),
		})
		return
	}
	if norm != raw {
		v.correct(model.FieldEmail, model.IssueFormatError, norm, "email normalized")
	}
}

func (v *validator) phone() {
	raw := v.rec.Get(model.FieldPhone)
	if raw == "" {
		return
	}
	country := v.rec.Get(model.FieldCountry)
	norm, plausible := NormalizePhone(raw, country)
	if norm != raw {
		v.correct(model.FieldPhone, model.IssueFormatError, norm, "phone normalized to international format")
	}
	if !plausible {
		v.add(model.Issue{
			Field:         model.FieldPhone,
			OriginalValue: model.StringPtr(norm),
			Type:          model.IssueFormatError,
			Severity:      model.SeverityInfo,
			Message:       "phone number has an unusual number of digits",
		})
	}
}

func (v *validator) vat() {
	raw := v.rec.Get(model.FieldVATID)
	if raw == "" {
		return
	}
	norm := NormalizeVAT(raw)
	if norm != raw {
		v.correct(model.FieldVATID, model.IssueFormatError, norm, "VAT id separators removed")
	}
	shapeOK, nationalOK := checkVATPattern(norm)
	switch {
	case !shapeOK:
		v.add(model.Issue{
			Field:         model.FieldVATID,
			OriginalValue: model.StringPtr(norm),
			Type:          model.IssueFormatError,
			Severity:      model.SeverityInfo,
			Message:       "VAT id does not start with a country prefix",
		})
	case !nationalOK:
		v.add(model.Issue{
			Field:         model.FieldVATID,
			OriginalValue: model.StringPtr(norm),
			Type:          model.IssueFormatError,
			Severity:      model.SeverityWarning,
			Message:       fmt.Sprintf("VAT id does not match the %s format", norm[:2]),
		})
	}
}
