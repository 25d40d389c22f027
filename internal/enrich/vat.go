package enrich

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/internal/validate"
	"github.com/sells-group/datafixer/pkg/vies"
)

// ReasonVATInvalid marks the VERIFIED change a VAT check emits for an id the
// registry rejects.
const ReasonVATInvalid = "registry reports id invalid"

const viesURL = "https://ec.europa.eu/taxation_customs/vies/"

const (
	vatNameConfidence    = 0.95
	vatAddressConfidence = 0.90
)

// IsVATInvalid reports whether c flags an id rejected by the VAT registry.
func IsVATInvalid(c model.FieldChange) bool {
	return c.Action == model.ActionVerified && c.Reasoning == ReasonVATInvalid
}

// VATAdapter checks the row's VAT id against VIES.
type VATAdapter struct {
	client vies.Client
	now    func() time.Time
}

// NewVATAdapter returns an adapter backed by client.
func NewVATAdapter(client vies.Client) *VATAdapter {
	return &VATAdapter{client: client, now: time.Now}
}

func (a *VATAdapter) Name() Source { return SourceVAT }

// VATIdentifier returns the VAT id of a record and the field it came from.
// A registration id is used when it has a VAT-style prefix.
func VATIdentifier(rec model.Record) (string, model.Field) {
	if v := validate.NormalizeVAT(rec.Get(model.FieldVATID)); v != "" {
		if _, _, ok := validate.SplitVAT(v); ok {
			return v, model.FieldVATID
		}
	}
	if v := validate.NormalizeVAT(rec.Get(model.FieldRegistrationID)); validate.LooksLikeVAT(v) {
		return v, model.FieldRegistrationID
	}
	return "", ""
}

func (a *VATAdapter) Enrich(ctx context.Context, in Input) (Result, error) {
	id, idField := VATIdentifier(in.Record)
	if id == "" {
		return Result{}, nil
	}
	prefix, number, _ := validate.SplitVAT(id)

	check, err := a.client.Check(ctx, prefix, number)
	if err != nil {
		return Result{}, eris.Wrapf(err, "enrich: vat check %s", id)
	}

	vctx := &VATContext{
		Valid:       check.Valid,
		Name:        check.TraderName(),
		Address:     check.TraderAddress(),
		CountryCode: prefix,
		Number:      number,
	}
	src := model.SourceRef{
		URL:         viesURL,
		Type:        model.SourceBusinessRegistry,
		RetrievedAt: a.now().UTC(),
		Snippet:     "VAT " + id,
	}

	res := Result{VAT: vctx}
	if !check.Valid {
		res.Changes = append(res.Changes, newChange(idField, in.Record.Ptr(idField), id,
			vatNameConfidence, model.ActionVerified, ReasonVATInvalid, src))
		return res, nil
	}

	rec := in.Record
	country := validate.VATCountry(prefix)
	if vctx.Name != "" {
		src.Snippet = vctx.Name
		res.Changes = addIfAbsent(res.Changes, rec, model.FieldCompanyName, vctx.Name,
			vatNameConfidence, "name registered for VAT id "+id, src)
		res.Candidates = append(res.Candidates, model.NameCandidate{
			Name: vctx.Name, Confidence: vatNameConfidence, Source: string(SourceVAT),
		})
	}
	res.Changes = addIfAbsent(res.Changes, rec, model.FieldCountry, country,
		vatNameConfidence, "country of VAT id prefix "+prefix, src)

	if vctx.Address != "" {
		src.Snippet = vctx.Address
		addr := ParseAddress(vctx.Address, country)
		reason := "address registered for VAT id " + id
		res.Changes = addIfAbsent(res.Changes, rec, model.FieldAddressLine1, addr.Line1, vatAddressConfidence, reason, src)
		res.Changes = addIfAbsent(res.Changes, rec, model.FieldPostalCode, addr.PostalCode, vatAddressConfidence, reason, src)
		res.Changes = addIfAbsent(res.Changes, rec, model.FieldCity, addr.City, vatAddressConfidence, reason, src)
	}
	return res, nil
}
