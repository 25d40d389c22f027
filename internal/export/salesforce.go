package export

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/model"
	sfpkg "github.com/sells-group/datafixer/pkg/salesforce"
)

// accountFields maps canonical fields onto Salesforce Account fields. The
// address lines share BillingStreet.
var accountFields = map[model.Field]string{
	model.FieldCompanyName:   "Name",
	model.FieldAddressLine1:  "BillingStreet",
	model.FieldAddressLine2:  "BillingStreet",
	model.FieldCity:          "BillingCity",
	model.FieldStateProvince: "BillingState",
	model.FieldPostalCode:    "BillingPostalCode",
	model.FieldCountry:       "BillingCountry",
	model.FieldWebsite:       "Website",
	model.FieldPhone:         "Phone",
	model.FieldIndustry:      "Industry",
}

// SalesforceExporter writes reconciled corrections back to matching Accounts.
type SalesforceExporter struct {
	client        sfpkg.Client
	createMissing bool
}

// NewSalesforceExporter returns an exporter. With createMissing, rows whose
// website matches no Account create one.
func NewSalesforceExporter(c sfpkg.Client, createMissing bool) *SalesforceExporter {
	return &SalesforceExporter{client: c, createMissing: createMissing}
}

// Export pushes the applied changes of ENRICHED rows. Accounts are matched by
// website domain; only fields the reconciliation changed and that differ from
// the Account are sent.
func (e *SalesforceExporter) Export(ctx context.Context, rows []model.Row) (Summary, error) {
	var sum Summary
	var updates []sfpkg.AccountUpdate
	var updateRows []string

	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if r.Status != model.RowStatusEnriched {
			sum.Skipped++
			continue
		}
		log := zap.L().With(zap.String("row_id", r.ID))
		rec := finalRecord(r)

		domain := websiteDomain(rec.Get(model.FieldWebsite))
		if domain == "" {
			log.Debug("export: row has no website, skipping salesforce")
			sum.Skipped++
			continue
		}

		acct, err := sfpkg.FindAccountByWebsite(ctx, e.client, domain)
		if err != nil {
			log.Warn("export: account lookup failed", zap.String("domain", domain), zap.Error(err))
			sum.Failed++
			continue
		}

		if acct == nil {
			if !e.createMissing {
				sum.Skipped++
				continue
			}
			id, err := sfpkg.CreateAccount(ctx, e.client, accountValues(rec))
			if err != nil {
				log.Warn("export: create account failed", zap.String("domain", domain), zap.Error(err))
				sum.Failed++
				continue
			}
			log.Info("export: account created", zap.String("account_id", id))
			sum.Exported++
			continue
		}

		fields := accountDiff(acct, rec, appliedChanges(r))
		if len(fields) == 0 {
			sum.Skipped++
			continue
		}
		updates = append(updates, sfpkg.AccountUpdate{ID: acct.ID, Fields: fields})
		updateRows = append(updateRows, r.ID)
	}

	results, err := sfpkg.BulkUpdateAccounts(ctx, e.client, updates)
	for i, res := range results {
		if res.Success {
			sum.Exported++
			continue
		}
		sum.Failed++
		zap.L().Warn("export: account update rejected",
			zap.String("row_id", updateRows[i]),
			zap.String("account_id", res.ID),
			zap.Strings("errors", res.Errors),
		)
	}
	if err != nil {
		sum.Failed += len(updates) - len(results)
		return sum, err
	}

	zap.L().Info("export: salesforce write-back complete",
		zap.Int("exported", sum.Exported),
		zap.Int("skipped", sum.Skipped),
		zap.Int("failed", sum.Failed),
	)
	return sum, nil
}

// accountValues maps every non-empty mapped field of rec.
func accountValues(rec model.Record) map[string]any {
	out := make(map[string]any)
	for f, sf := range accountFields {
		if sf == "BillingStreet" {
			continue
		}
		if v := rec.Get(f); v != "" {
			out[sf] = v
		}
	}
	if street := billingStreet(rec); street != "" {
		out["BillingStreet"] = street
	}
	return out
}

// accountDiff returns the Account fields touched by changes whose new value
// differs from what the Account holds.
func accountDiff(acct *sfpkg.Account, rec model.Record, changes []model.FieldChange) map[string]any {
	current := map[string]string{
		"Name":              acct.Name,
		"BillingStreet":     acct.BillingStreet,
		"BillingCity":       acct.BillingCity,
		"BillingState":      acct.BillingState,
		"BillingPostalCode": acct.BillingPostalCode,
		"BillingCountry":    acct.BillingCountry,
		"Website":           acct.Website,
		"Phone":             acct.Phone,
		"Industry":          acct.Industry,
	}

	out := make(map[string]any)
	for _, c := range changes {
		sf, ok := accountFields[c.Field]
		if !ok {
			continue
		}
		v := rec.Get(c.Field)
		if sf == "BillingStreet" {
			v = billingStreet(rec)
		}
		if v == "" || strings.EqualFold(strings.TrimSpace(current[sf]), v) {
			continue
		}
		out[sf] = v
	}
	return out
}

func billingStreet(rec model.Record) string {
	var lines []string
	for _, f := range []model.Field{model.FieldAddressLine1, model.FieldAddressLine2} {
		if v := rec.Get(f); v != "" {
			lines = append(lines, v)
		}
	}
	return strings.Join(lines, "\n")
}
