// Package mocks provides test doubles for the gleif client.
package mocks

import (
	"context"

	gleif "github.com/sells-group/datafixer/pkg/gleif"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Lookup provides a mock function with given fields: ctx, lei
func (_m *MockClient) Lookup(ctx context.Context, lei string) (*gleif.Record, error) {
	ret := _m.Called(ctx, lei)

	if len(ret) == 0 {
		panic("no return value specified for Lookup")
	}

	var r0 *gleif.Record
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*gleif.Record, error)); ok {
		return rf(ctx, lei)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) *gleif.Record); ok {
		r0 = rf(ctx, lei)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*gleif.Record)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, lei)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Search provides a mock function with given fields: ctx, name, country
func (_m *MockClient) Search(ctx context.Context, name string, country string) ([]gleif.Record, error) {
	ret := _m.Called(ctx, name, country)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 []gleif.Record
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) ([]gleif.Record, error)); ok {
		return rf(ctx, name, country)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) []gleif.Record); ok {
		r0 = rf(ctx, name, country)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]gleif.Record)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, name, country)
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
