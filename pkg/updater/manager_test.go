package updater

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raterudder/esplus/pkg/entity"
	"github.com/raterudder/esplus/pkg/types"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newTestManager(p *mockPortal) *Manager {
	return NewManager(Config{Lang: types.LangRU}, func(types.ConfigEntry) Portal {
		return p
	}, entity.NewRegistry(), NewEventLog(10))
}

func TestManagerSetup(t *testing.T) {
	ctx := context.Background()

	t.Run("Schedules Every Kind", func(t *testing.T) {
		p := new(mockPortal)
		stubPortal(p)
		m := newTestManager(p)
		entry := testEntry()
		entry.Default.Options.ScanInterval[types.KindMeters] = 5 * time.Minute

		require.NoError(t, m.Setup(ctx, entry))
		s, ok := m.Session("entry1")
		require.True(t, ok)
		assert.Equal(t, types.LangRU, s.lang)
		assert.NotEmpty(t, m.Registry().List(""), "setup runs a first refresh")

		entries := m.cron.Entries()
		require.Len(t, entries, len(types.Kinds))
		var delays []time.Duration
		for _, e := range entries {
			delays = append(delays, e.Schedule.(cron.ConstantDelaySchedule).Delay)
		}
		assert.Contains(t, delays, 5*time.Minute)
		assert.Contains(t, delays, time.Hour)
	})

	t.Run("Invalid Entry", func(t *testing.T) {
		p := new(mockPortal)
		m := newTestManager(p)
		entry := testEntry()
		entry.Password = ""

		var ce *types.ConfigurationError
		assert.ErrorAs(t, m.Setup(ctx, entry), &ce)
		p.AssertNotCalled(t, "Authenticate", mock.Anything)
	})

	t.Run("Not Ready Is Retried", func(t *testing.T) {
		p := new(mockPortal)
		p.On("Authenticate", mock.Anything).Return(errors.New("portal down")).Once()
		stubPortal(p)
		m := newTestManager(p)

		assert.ErrorIs(t, m.Setup(ctx, testEntry()), ErrNotReady)
		assert.Equal(t, []string{"entry1"}, m.Pending())
		_, ok := m.Session("entry1")
		assert.False(t, ok)

		m.retryPending()
		assert.Empty(t, m.Pending())
		_, ok = m.Session("entry1")
		assert.True(t, ok)
	})

	t.Run("Retry Skips Unloaded Entry", func(t *testing.T) {
		p := new(mockPortal)
		p.On("Authenticate", mock.Anything).Return(errors.New("portal down")).Once()
		var m *Manager
		// the entry is deleted while the retry is logging in
		p.On("ResidentialObjects", mock.Anything).Run(func(mock.Arguments) {
			m.Unload("entry1")
		}).Return(testObjects(), nil).Once()
		stubPortal(p)
		m = newTestManager(p)

		assert.ErrorIs(t, m.Setup(ctx, testEntry()), ErrNotReady)
		require.Equal(t, []string{"entry1"}, m.Pending())

		m.retryPending()
		assert.Empty(t, m.Pending())
		assert.Empty(t, m.Sessions())
		assert.Empty(t, m.cron.Entries())
		assert.Empty(t, m.Registry().List(""))
	})

	t.Run("Account Of Another Entry", func(t *testing.T) {
		p := new(mockPortal)
		stubPortal(p)
		m := newTestManager(p)
		require.NoError(t, m.Setup(ctx, testEntry()))
		before := m.Registry().List("")
		require.NotEmpty(t, before)

		other := testEntry()
		other.ID = "entry2"
		other.Username = "other@example.com"
		err := m.Setup(ctx, other)
		assert.ErrorIs(t, err, ErrAccountConflict)
		assert.Contains(t, err.Error(), "entry1")

		_, ok := m.Session("entry2")
		assert.False(t, ok)
		assert.Empty(t, m.Pending())
		assert.Len(t, m.cron.Entries(), len(types.Kinds))
		assert.Len(t, m.Registry().List(""), len(before))

		// the same entry may be set up again
		require.NoError(t, m.Setup(ctx, testEntry()))
	})
}

func TestManagerUnload(t *testing.T) {
	ctx := context.Background()
	p := new(mockPortal)
	stubPortal(p)
	m := newTestManager(p)
	require.NoError(t, m.Setup(ctx, testEntry()))
	require.NotEmpty(t, m.Registry().List(""))

	assert.True(t, m.Unload("entry1"))
	assert.Empty(t, m.Registry().List(""))
	assert.Empty(t, m.cron.Entries())
	assert.Empty(t, m.Sessions())
	assert.False(t, m.Unload("entry1"))

	require.NoError(t, m.Reload(ctx, testEntry()))
	assert.Len(t, m.Sessions(), 1)
	assert.Len(t, m.cron.Entries(), len(types.Kinds))
}

func TestManagerUpdate(t *testing.T) {
	ctx := context.Background()
	p := new(mockPortal)
	stubPortal(p)
	m := newTestManager(p)
	require.NoError(t, m.Setup(ctx, testEntry()))

	assert.ErrorIs(t, m.Update(ctx, "nope"), ErrUnknownEntry)
	assert.NoError(t, m.Update(ctx, "entry1"))
	assert.NoError(t, m.Update(ctx, ""))
	p.AssertNumberOfCalls(t, "Balance", 6)
}
