package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/gaborage/go-tenantdb/directory"
)

// MockDirectory is a testify mock of directory.Directory.
type MockDirectory struct {
	mock.Mock
}

var _ directory.Directory = (*MockDirectory)(nil)

// Lookup implements directory.Directory
func (m *MockDirectory) Lookup(ctx context.Context, tenantID string) (directory.Descriptor, error) {
	arguments := m.Called(ctx, tenantID)
	desc, _ := arguments.Get(0).(directory.Descriptor)
	return desc, arguments.Error(1)
}

// List implements directory.Directory
func (m *MockDirectory) List(ctx context.Context) ([]directory.Descriptor, error) {
	arguments := m.Called(ctx)
	descs, _ := arguments.Get(0).([]directory.Descriptor)
	return descs, arguments.Error(1)
}

// ExpectLookup sets up a lookup expectation for tenantID
func (m *MockDirectory) ExpectLookup(tenantID string, desc directory.Descriptor, err error) *mock.Call {
	return m.On("Lookup", mock.Anything, tenantID).Return(desc, err)
}

// ExpectList sets up a list expectation
func (m *MockDirectory) ExpectList(descs []directory.Descriptor, err error) *mock.Call {
	return m.On("List", mock.Anything).Return(descs, err)
}
