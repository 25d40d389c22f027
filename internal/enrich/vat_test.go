package enrich

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/datafixer/internal/model"
	"github.com/sells-group/datafixer/pkg/vies"
	viesmocks "github.com/sells-group/datafixer/pkg/vies/mocks"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testRecord(kv ...string) model.Record {
	rec := model.Record{}
	for i := 0; i+1 < len(kv); i += 2 {
		rec.Set(model.Field(kv[i]), kv[i+1])
	}
	return rec
}

func changeFor(changes []model.FieldChange, f model.Field) *model.FieldChange {
	for i := range changes {
		if changes[i].Field == f {
			return &changes[i]
		}
	}
	return nil
}

func TestVATAdapter_ValidProposesNameAndAddress(t *testing.T) {
	t.Parallel()

	client := viesmocks.NewMockClient(t)
	client.On("Check", mock.Anything, "DE", "123456789").Return(&vies.CheckResult{
		CountryCode: "DE",
		VATNumber:   "123456789",
		Valid:       true,
		Name:        "Acme GmbH",
		Address:     "Hauptstr. 5\n10115 Berlin",
	}, nil)

	a := NewVATAdapter(client)
	a.now = func() time.Time { return fixedNow }

	res, err := a.Enrich(context.Background(), Input{
		Record: testRecord("vat_id", "DE 123 456 789"),
	})
	require.NoError(t, err)

	require.NotNil(t, res.VAT)
	assert.True(t, res.VAT.Valid)
	assert.Equal(t, "Acme GmbH", res.VAT.Name)

	name := changeFor(res.Changes, model.FieldCompanyName)
	require.NotNil(t, name)
	assert.Equal(t, "Acme GmbH", name.Proposed())
	assert.InDelta(t, 0.95, name.Confidence, 1e-9)
	assert.Equal(t, model.ActionAdded, name.Action)
	assert.Equal(t, model.SourceBusinessRegistry, name.Sources[0].Type)
	assert.Equal(t, fixedNow, name.Sources[0].RetrievedAt)

	assert.Equal(t, "DE", changeFor(res.Changes, model.FieldCountry).Proposed())
	assert.Equal(t, "Hauptstr. 5", changeFor(res.Changes, model.FieldAddressLine1).Proposed())
	assert.Equal(t, "10115", changeFor(res.Changes, model.FieldPostalCode).Proposed())
	city := changeFor(res.Changes, model.FieldCity)
	assert.Equal(t, "Berlin", city.Proposed())
	assert.InDelta(t, 0.90, city.Confidence, 1e-9)

	require.Len(t, res.Candidates, 1)
	assert.Equal(t, "vat", res.Candidates[0].Source)
}

func TestVATAdapter_OnlyProposesAbsentFields(t *testing.T) {
	t.Parallel()

	client := viesmocks.NewMockClient(t)
	client.On("Check", mock.Anything, "DE", "123456789").Return(&vies.CheckResult{
		Valid: true, Name: "Acme GmbH", Address: "Hauptstr. 5\n10115 Berlin",
	}, nil)

	res, err := NewVATAdapter(client).Enrich(context.Background(), Input{
		Record: testRecord("vat_id", "DE123456789", "company_name", "ACME", "city", "Berlin", "country", "DE"),
	})
	require.NoError(t, err)

	assert.Nil(t, changeFor(res.Changes, model.FieldCompanyName))
	assert.Nil(t, changeFor(res.Changes, model.FieldCity))
	assert.Nil(t, changeFor(res.Changes, model.FieldCountry))
	assert.NotNil(t, changeFor(res.Changes, model.FieldPostalCode))
}

func TestVATAdapter_InvalidEmitsVerifiedFlag(t *testing.T) {
	t.Parallel()

	client := viesmocks.NewMockClient(t)
	client.On("Check", mock.Anything, "FR", "12345678901").Return(&vies.CheckResult{Valid: false}, nil)

	res, err := NewVATAdapter(client).Enrich(context.Background(), Input{
		Record: testRecord("vat_id", "FR12345678901", "company_name", "Exemple SA"),
	})
	require.NoError(t, err)

	require.Len(t, res.Changes, 1)
	c := res.Changes[0]
	assert.Equal(t, model.FieldVATID, c.Field)
	assert.Equal(t, model.ActionVerified, c.Action)
	assert.True(t, IsVATInvalid(c))
	assert.InDelta(t, 0.95, c.Confidence, 1e-9)
	assert.False(t, res.VAT.Valid)
}

func TestVATAdapter_RegistrationIDFallback(t *testing.T) {
	t.Parallel()

	client := viesmocks.NewMockClient(t)
	client.On("Check", mock.Anything, "AT", "U12345678").Return(&vies.CheckResult{Valid: true, Name: "---"}, nil)

	res, err := NewVATAdapter(client).Enrich(context.Background(), Input{
		Record: testRecord("registration_id", "ATU12345678"),
	})
	require.NoError(t, err)

	// Undisclosed name: only the country is derived.
	assert.Nil(t, changeFor(res.Changes, model.FieldCompanyName))
	assert.Equal(t, "AT", changeFor(res.Changes, model.FieldCountry).Proposed())
	assert.Empty(t, res.Candidates)
}

func TestVATAdapter_GreekPrefixMapsToGR(t *testing.T) {
	t.Parallel()

	client := viesmocks.NewMockClient(t)
	client.On("Check", mock.Anything, "EL", "123456789").Return(&vies.CheckResult{Valid: true}, nil)

	res, err := NewVATAdapter(client).Enrich(context.Background(), Input{
		Record: testRecord("vat_id", "EL123456789"),
	})
	require.NoError(t, err)
	assert.Equal(t, "GR", changeFor(res.Changes, model.FieldCountry).Proposed())
}

func TestVATAdapter_NoIdentifier(t *testing.T) {
	t.Parallel()

	client := viesmocks.NewMockClient(t)

	res, err := NewVATAdapter(client).Enrich(context.Background(), Input{
		Record: testRecord("company_name", "Acme", "registration_id", "HRB 12345"),
	})
	require.NoError(t, err)
	assert.True(t, res.Empty())
}

func TestVATAdapter_RegistryUnavailable(t *testing.T) {
	t.Parallel()

	client := viesmocks.NewMockClient(t)
	client.On("Check", mock.Anything, "DE", "123456789").Return(nil, vies.ErrUnavailable)

	res, err := NewVATAdapter(client).Enrich(context.Background(), Input{
		Record: testRecord("vat_id", "DE123456789"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vat check")
	assert.True(t, res.Empty())
}
