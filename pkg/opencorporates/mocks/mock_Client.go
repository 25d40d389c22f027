// Package mocks provides test doubles for the opencorporates client.
package mocks

import (
	"context"

	opencorporates "github.com/sells-group/datafixer/pkg/opencorporates"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Lookup provides a mock function with given fields: ctx, jurisdiction, number
func (_m *MockClient) Lookup(ctx context.Context, jurisdiction string, number string) (*opencorporates.Company, error) {
	ret := _m.Called(ctx, jurisdiction, number)

	if len(ret) == 0 {
		panic("no return value specified for Lookup")
	}

	var r0 *opencorporates.Company
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*opencorporates.Company, error)); ok {
		return rf(ctx, jurisdiction, number)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *opencorporates.Company); ok {
		r0 = rf(ctx, jurisdiction, number)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*opencorporates.Company)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, jurisdiction, number)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Search provides a mock function with given fields: ctx, name, jurisdiction
func (_m *MockClient) Search(ctx context.Context, name string, jurisdiction string) ([]opencorporates.Company, error) {
	ret := _m.Called(ctx, name, jurisdiction)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 []opencorporates.Company
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) ([]opencorporates.Company, error)); ok {
		return rf(ctx, name, jurisdiction)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) []opencorporates.Company); ok {
		r0 = rf(ctx, name, jurisdiction)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]opencorporates.Company)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, name, jurisdiction)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// NewMockClient creates a new instance of MockClient. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
// The first argument is typically a *testing.T value.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
