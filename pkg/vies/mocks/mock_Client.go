// Package mocks provides test doubles for the vies client.
package mocks

import (
	"context"

	vies "github.com/sells-group/datafixer/pkg/vies"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Check provides a mock function with given fields: ctx, countryCode, number
func (_m *MockClient) Check(ctx context.Context, countryCode string, number string) (*vies.CheckResult, error) {
	ret := _m.Called(ctx, countryCode, number)

	if len(ret) == 0 {
		panic("no return value specified for Check")
	}

	var r0 *vies.CheckResult
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, string) (*vies.CheckResult, error)); ok {
		return rf(ctx, countryCode, number)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string, string) *vies.CheckResult); ok {
		r0 = rf(ctx, countryCode, number)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*vies.CheckResult)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string, string) error); ok {
		r1 = rf(ctx, countryCode, number)
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
