package updater

import (
	"context"
	"sync"

	"github.com/raterudder/esplus/pkg/esplus"
	"github.com/stretchr/testify/mock"
)

type mockPortal struct {
	mock.Mock

	mu      sync.Mutex
	expired bool
}

func (m *mockPortal) Authenticate(ctx context.Context) error {
	args := m.Called(ctx)
	if args.Error(0) == nil {
		m.mu.Lock()
		m.expired = false
		m.mu.Unlock()
	}
	return args.Error(0)
}

func (m *mockPortal) IsTokenExpired() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expired
}

func (m *mockPortal) ResidentialObjects(ctx context.Context) ([]esplus.ResidentialObject, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]esplus.ResidentialObject), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPortal) Balance(ctx context.Context, accountID string) (esplus.AccountBalance, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(esplus.AccountBalance), args.Error(1)
}

func (m *mockPortal) Charges(ctx context.Context, accountID string) (esplus.AccountCharges, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(esplus.AccountCharges), args.Error(1)
}

func (m *mockPortal) LastPayment(ctx context.Context, accountID string) (*esplus.Payment, error) {
	args := m.Called(ctx, accountID)
	if v := args.Get(0); v != nil {
		return v.(*esplus.Payment), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPortal) Meters(ctx context.Context, accountID string) ([]esplus.Meter, error) {
	args := m.Called(ctx, accountID)
	// a request whose context ended fails like the real client
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v := args.Get(0); v != nil {
		return v.([]esplus.Meter), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPortal) MeterCharacteristics(ctx context.Context) ([]esplus.MeterCharacteristics, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]esplus.MeterCharacteristics), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockPortal) PushIndications(ctx context.Context, accountID, meterID string, indications map[string]float64) error {
	args := m.Called(ctx, accountID, meterID, indications)
	return args.Error(0)
}
