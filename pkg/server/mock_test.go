package server

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/raterudder/esplus/pkg/entity"
	"github.com/raterudder/esplus/pkg/esplus"
	"github.com/raterudder/esplus/pkg/log"
	"github.com/raterudder/esplus/pkg/storage/storagemock"
	"github.com/raterudder/esplus/pkg/types"
	"github.com/raterudder/esplus/pkg/updater"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	log.SetDefaultLogLevel(slog.LevelError)
}

func ptr[T any](v T) *T {
	return &v
}

type mockPortal struct {
	mock.Mock
}

func (m *mockPortal) Authenticate(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *mockPortal) IsTokenExpired() bool {
	return false
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

type mockBranches struct {
	mock.Mock
}

func (m *mockBranches) Branches(ctx context.Context) ([]esplus.Branch, error) {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.([]esplus.Branch), args.Error(1)
	}
	return nil, args.Error(1)
}

func testEntry(id string) types.ConfigEntry {
	return types.ConfigEntry{
		ID:       id,
		Branch:   "ul",
		Username: id + "@example.com",
		Password: "secret",
		Default:  types.AccountConfig{Options: types.DefaultOptions()},
	}
}

func testMeter() esplus.Meter {
	return esplus.Meter{
		ID:                 "m1",
		Number:             "111",
		SubmissionStartDay: 15,
		SubmissionEndDay:   25,
		Zones: []esplus.MeterZone{
			{ID: "t1", Accepted: ptr(90.0), Submitted: ptr(100.0)},
			{ID: "t2", Accepted: ptr(40.0)},
		},
	}
}

// stubPortal answers every call successfully.
func stubPortal(p *mockPortal) {
	stubPortalAccount(p, "acc1", "7700123456")
}

// stubPortalAccount answers every call successfully for a portal with a
// single account.
func stubPortalAccount(p *mockPortal, accountID, number string) {
	p.On("Authenticate", mock.Anything).Return(nil)
	p.On("ResidentialObjects", mock.Anything).Return([]esplus.ResidentialObject{{
		ID: "obj-" + accountID,
		Accounts: []esplus.Account{
			{ID: accountID, Number: number, HasMeters: true, ResidentialObjectID: "obj-" + accountID},
		},
	}}, nil)
	p.On("Balance", mock.Anything, mock.Anything).Return(esplus.AccountBalance{Balance: 10}, nil)
	p.On("Charges", mock.Anything, mock.Anything).Return(esplus.AccountCharges{
		Period:  time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
		Charged: 300,
		Services: []esplus.ServiceCharge{
			{ID: "s1", Code: "EE", Name: "Электроэнергия", Charged: 300},
		},
	}, nil)
	p.On("LastPayment", mock.Anything, mock.Anything).Return(nil, nil)
	p.On("Meters", mock.Anything, mock.Anything).Return([]esplus.Meter{testMeter()}, nil)
	p.On("MeterCharacteristics", mock.Anything).Return(nil, nil)
	p.On("PushIndications", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)
}

type testServer struct {
	*Server
	portal   *mockPortal
	portals  map[string]*mockPortal
	store    *storagemock.MockStore
	branches *mockBranches
}

// newTestServer returns a server whose manager creates sessions with the
// portal registered for the entry in portals, or with portal otherwise.
// Entries passed in are set up with the default portal before returning.
func newTestServer(t *testing.T, entries ...types.ConfigEntry) *testServer {
	t.Helper()
	ts := &testServer{
		portal:   &mockPortal{},
		portals:  make(map[string]*mockPortal),
		store:    &storagemock.MockStore{},
		branches: &mockBranches{},
	}
	newPortal := func(e types.ConfigEntry) updater.Portal {
		if p, ok := ts.portals[e.ID]; ok {
			return p
		}
		return ts.portal
	}
	m := updater.NewManager(updater.Config{}, newPortal, entity.NewRegistry(), nil)
	ts.Server = &Server{
		manager:    m,
		storage:    ts.store,
		branches:   ts.branches,
		bypassAuth: true,
		serverName: "esplus-test",
	}
	if len(entries) > 0 {
		stubPortal(ts.portal)
		for _, e := range entries {
			require.NoError(t, m.Setup(context.Background(), e))
		}
	}
	return ts
}
