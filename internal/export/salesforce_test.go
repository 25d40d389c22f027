package export

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datafixer/internal/model"
	sfpkg "github.com/sells-group/datafixer/pkg/salesforce"
	"github.com/sells-group/datafixer/pkg/salesforce/mocks"
)

func soqlFor(domain string) any {
	return mock.MatchedBy(func(soql string) bool { return strings.Contains(soql, "'%"+domain+"%'") })
}

func returnAccounts(accts ...sfpkg.Account) func(mock.Arguments) {
	return func(args mock.Arguments) {
		*args.Get(2).(*[]sfpkg.Account) = accts
	}
}

func enrichedRow(id string, rec model.Record, changes ...model.FieldChange) model.Row {
	return model.Row{
		ID:     id,
		Status: model.RowStatusEnriched,
		Record: rec,
		Result: &model.RowResult{Record: rec, Changes: changes, Status: model.RowStatusEnriched},
	}
}

func TestSalesforceExporter_UpdatesChangedFields(t *testing.T) {
	ctx := context.Background()
	sf := mocks.NewMockClient(t)

	rows := []model.Row{
		enrichedRow("r1",
			record("company_name", "Acme GmbH", "website", "https://www.acme.de", "city", "Hamburg", "phone", "+49401234567"),
			change(model.FieldCity, "Hamburg", model.ActionAdded),
			change(model.FieldPhone, "+49401234567", model.ActionCorrected),
		),
		enrichedRow("r2", record("company_name", "No Site GmbH"), change(model.FieldCity, "Bonn", model.ActionAdded)),
		{ID: "r3", Status: model.RowStatusValidated, Record: record("website", "acme.de")},
		enrichedRow("r4", record("company_name", "Beta AG", "website", "beta.ch"), change(model.FieldCity, "Zurich", model.ActionAdded)),
		enrichedRow("r5", record("website", "gamma.io", "city", "Lyon"), change(model.FieldCity, "Lyon", model.ActionAdded)),
	}

	sf.On("Query", mock.Anything, soqlFor("acme.de"), mock.Anything).
		Run(returnAccounts(sfpkg.Account{ID: "001A", Phone: "040 1234567"})).Return(nil).Once()
	sf.On("Query", mock.Anything, soqlFor("beta.ch"), mock.Anything).
		Run(returnAccounts()).Return(nil).Once()
	sf.On("Query", mock.Anything, soqlFor("gamma.io"), mock.Anything).
		Run(returnAccounts(sfpkg.Account{ID: "001G", BillingCity: "lyon"})).Return(nil).Once()

	sf.On("UpdateCollection", mock.Anything, "Account", mock.MatchedBy(func(recs []sfpkg.CollectionRecord) bool {
		return len(recs) == 1 && recs[0].ID == "001A" && len(recs[0].Fields) == 2 &&
			recs[0].Fields["BillingCity"] == "Hamburg" && recs[0].Fields["Phone"] == "+49401234567"
	})).Return([]sfpkg.CollectionResult{{ID: "001A", Success: true}}, nil).Once()

	sum, err := NewSalesforceExporter(sf, false).Export(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, Summary{Exported: 1, Skipped: 4}, sum)
}

func TestSalesforceExporter_CreatesMissingAccount(t *testing.T) {
	sf := mocks.NewMockClient(t)

	rows := []model.Row{enrichedRow("r1",
		record("company_name", "Beta AG", "website", "beta.ch", "address_line1", "Bahnhofstrasse 1",
			"address_line2", "Postfach", "country", "CH"),
		change(model.FieldCountry, "CH", model.ActionCorrected),
	)}

	sf.On("Query", mock.Anything, soqlFor("beta.ch"), mock.Anything).Run(returnAccounts()).Return(nil).Once()
	sf.On("InsertOne", mock.Anything, "Account", mock.MatchedBy(func(fields map[string]any) bool {
		return fields["Name"] == "Beta AG" && fields["BillingCountry"] == "CH" &&
			fields["BillingStreet"] == "Bahnhofstrasse 1\nPostfach" && fields["Website"] == "beta.ch"
	})).Return("001new", nil).Once()

	sum, err := NewSalesforceExporter(sf, true).Export(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, Summary{Exported: 1}, sum)
}

func TestSalesforceExporter_CountsFailures(t *testing.T) {
	sf := mocks.NewMockClient(t)

	rows := []model.Row{
		enrichedRow("r1", record("website", "acme.de", "city", "Hamburg"), change(model.FieldCity, "Hamburg", model.ActionAdded)),
		enrichedRow("r2", record("website", "down.example", "city", "Bonn"), change(model.FieldCity, "Bonn", model.ActionAdded)),
	}

	sf.On("Query", mock.Anything, soqlFor("acme.de"), mock.Anything).
		Run(returnAccounts(sfpkg.Account{ID: "001A"})).Return(nil).Once()
	sf.On("Query", mock.Anything, soqlFor("down.example"), mock.Anything).Return(assert.AnError).Once()
	sf.On("UpdateCollection", mock.Anything, "Account", mock.Anything).
		Return([]sfpkg.CollectionResult{{ID: "001A", Success: false, Errors: []string{"FIELD_CUSTOM_VALIDATION_EXCEPTION"}}}, nil).Once()

	sum, err := NewSalesforceExporter(sf, false).Export(context.Background(), rows)
	require.NoError(t, err)
	assert.Equal(t, Summary{Failed: 2}, sum)
}

func TestAccountDiff_BillingStreet(t *testing.T) {
	rec := record("address_line1", "Hauptstr. 5", "address_line2", "3. OG")
	got := accountDiff(&sfpkg.Account{BillingStreet: "Hauptstr. 5"}, rec, []model.FieldChange{
		change(model.FieldAddressLine2, "3. OG", model.ActionAdded),
	})
	assert.Equal(t, map[string]any{"BillingStreet": "Hauptstr. 5\n3. OG"}, got)
}
