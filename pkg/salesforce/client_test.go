package salesforce

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// mockClient implements Client for testing.
type mockClient struct {
	queryFn            func(ctx context.Context, soql string, out any) error
	insertOneFn        func(ctx context.Context, sObjectName string, record map[string]any) (string, error)
	updateCollectionFn func(ctx context.Context, sObjectName string, records []CollectionRecord) ([]CollectionResult, error)
}

func (m *mockClient) Query(ctx context.Context, soql string, out any) error {
	if m.queryFn != nil {
		return m.queryFn(ctx, soql, out)
	}
	return nil
}

func (m *mockClient) InsertOne(ctx context.Context, sObjectName string, record map[string]any) (string, error) {
	if m.insertOneFn != nil {
		return m.insertOneFn(ctx, sObjectName, record)
	}
	return "001000000000001", nil
}

func (m *mockClient) UpdateCollection(ctx context.Context, sObjectName string, records []CollectionRecord) ([]CollectionResult, error) {
	if m.updateCollectionFn != nil {
		return m.updateCollectionFn(ctx, sObjectName, records)
	}
	results := make([]CollectionResult, len(records))
	for i, r := range records {
		results[i] = CollectionResult{ID: r.ID, Success: true}
	}
	return results, nil
}

func TestClientInterfaces(t *testing.T) {
	t.Parallel()
	var _ Client = (*mockClient)(nil)
	var _ Client = (*restClient)(nil)
}

func TestWithRateLimit(t *testing.T) {
	tests := []struct {
		name      string
		rps       float64
		wantNil   bool
		wantBurst int
	}{
		{name: "whole rate", rps: 10, wantBurst: 10},
		{name: "fractional rate", rps: 0.5, wantBurst: 1},
		{name: "zero disables", rps: 0, wantNil: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient(nil, WithRateLimit(tt.rps)).(*restClient)
			if tt.wantNil {
				assert.Nil(t, c.limiter)
				return
			}
			require.NotNil(t, c.limiter)
			assert.Equal(t, rate.Limit(tt.rps), c.limiter.Limit())
			assert.Equal(t, tt.wantBurst, c.limiter.Burst())
		})
	}
}

func TestAcquire_CancelledContext(t *testing.T) {
	c := &restClient{limiter: rate.NewLimiter(rate.Every(time.Hour), 0)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.UpdateCollection(ctx, "Account", []CollectionRecord{{ID: "001xx"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: rate limit")
}

func TestToSObjects(t *testing.T) {
	fields := map[string]any{"BillingCity": "Zurich"}
	objs := toSObjects([]CollectionRecord{
		{ID: "001xx", Fields: fields},
		{ID: "002xx"},
	})
	require.Len(t, objs, 2)
	assert.Equal(t, map[string]any{"Id": "001xx", "BillingCity": "Zurich"}, objs[0])
	assert.Equal(t, map[string]any{"Id": "002xx"}, objs[1])
	assert.NotContains(t, fields, "Id", "input fields are not mutated")
}
