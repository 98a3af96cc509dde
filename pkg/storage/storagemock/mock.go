package storagemock

import (
	"context"

	"github.com/raterudder/esplus/pkg/storage"
	"github.com/raterudder/esplus/pkg/types"
	"github.com/stretchr/testify/mock"
)

type MockStore struct {
	mock.Mock
}

var _ storage.Store = (*MockStore)(nil)

func (m *MockStore) ListEntries(ctx context.Context) ([]types.ConfigEntry, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]types.ConfigEntry), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockStore) GetEntry(ctx context.Context, id string) (types.ConfigEntry, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.ConfigEntry), args.Error(1)
}

func (m *MockStore) PutEntry(ctx context.Context, entry types.ConfigEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *MockStore) DeleteEntry(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
