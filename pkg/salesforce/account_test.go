package salesforce

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindAccountByWebsite(t *testing.T) {
	t.Run("returns account when found", func(t *testing.T) {
		c := &mockClient{
			queryFn: func(_ context.Context, soql string, out any) error {
				assert.Contains(t, soql, "Website LIKE '%acme.de%'")
				assert.Contains(t, soql, "BillingPostalCode")
				*out.(*[]Account) = []Account{{ID: "001xx", Name: "Acme GmbH"}}
				return nil
			},
		}
		acct, err := FindAccountByWebsite(context.Background(), c, "acme.de")
		require.NoError(t, err)
		require.NotNil(t, acct)
		assert.Equal(t, "001xx", acct.ID)
	})

	t.Run("returns nil when not found", func(t *testing.T) {
		acct, err := FindAccountByWebsite(context.Background(), &mockClient{}, "nobody.example")
		require.NoError(t, err)
		assert.Nil(t, acct)
	})

	t.Run("wraps query errors", func(t *testing.T) {
		c := &mockClient{
			queryFn: func(context.Context, string, any) error { return errors.New("connection refused") },
		}
		_, err := FindAccountByWebsite(context.Background(), c, "acme.de")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "find account by website")
	})

	t.Run("rejects blank domain", func(t *testing.T) {
		_, err := FindAccountByWebsite(context.Background(), &mockClient{}, " ")
		require.Error(t, err)
	})
}

func TestCreateAccount(t *testing.T) {
	var got map[string]any
	c := &mockClient{
		insertOneFn: func(_ context.Context, obj string, rec map[string]any) (string, error) {
			assert.Equal(t, "Account", obj)
			got = rec
			return "001new", nil
		},
	}

	id, err := CreateAccount(context.Background(), c, map[string]any{"Name": "Acme GmbH", "BillingCity": "Hamburg"})
	require.NoError(t, err)
	assert.Equal(t, "001new", id)
	assert.Equal(t, "Hamburg", got["BillingCity"])

	_, err = CreateAccount(context.Background(), c, map[string]any{"BillingCity": "Hamburg"})
	require.Error(t, err)
}

func TestBulkUpdateAccounts(t *testing.T) {
	t.Run("empty input", func(t *testing.T) {
		results, err := BulkUpdateAccounts(context.Background(), &mockClient{}, nil)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("splits into batches of 200", func(t *testing.T) {
		var sizes []int
		c := &mockClient{
			updateCollectionFn: func(_ context.Context, obj string, records []CollectionRecord) ([]CollectionResult, error) {
				assert.Equal(t, "Account", obj)
				sizes = append(sizes, len(records))
				out := make([]CollectionResult, len(records))
				for i, r := range records {
					out[i] = CollectionResult{ID: r.ID, Success: true}
				}
				return out, nil
			},
		}

		updates := make([]AccountUpdate, 450)
		for i := range updates {
			updates[i] = AccountUpdate{ID: fmt.Sprintf("001%03d", i), Fields: map[string]any{"Phone": "+1"}}
		}
		results, err := BulkUpdateAccounts(context.Background(), c, updates)
		require.NoError(t, err)
		assert.Equal(t, []int{200, 200, 50}, sizes)
		assert.Len(t, results, 450)
	})

	t.Run("returns partial results on failure", func(t *testing.T) {
		calls := 0
		c := &mockClient{
			updateCollectionFn: func(_ context.Context, _ string, records []CollectionRecord) ([]CollectionResult, error) {
				calls++
				if calls == 2 {
					return nil, errors.New("boom")
				}
				return make([]CollectionResult, len(records)), nil
			},
		}
		results, err := BulkUpdateAccounts(context.Background(), c, make([]AccountUpdate, 250))
		require.Error(t, err)
		assert.Len(t, results, 200)
		assert.Contains(t, err.Error(), "batch 200-250")
	})
}

func TestEscapeSoql(t *testing.T) {
	assert.Equal(t, `o\'brien\_co\%`, escapeSoql(`o'brien_co%`))
}
