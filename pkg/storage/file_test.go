package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/raterudder/esplus/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEntriesYAML = `
- id: home
  branch: ul
  username: 79991234567
  password: secret
  lang: ru
  default:
    meters: true
    last_payment: false
    scan_interval: "00:10:00"
  accounts:
    "7700123456": false
- id: dacha
  branch: ul
  username: user@example.com
  password: other
`

func TestFileProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing File", func(t *testing.T) {
		f := NewFileProvider(filepath.Join(t.TempDir(), "esplus.yaml"))
		require.NoError(t, f.Validate())
		require.NoError(t, f.Init(ctx))
		entries, err := f.ListEntries(ctx)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})

	t.Run("Validate", func(t *testing.T) {
		assert.Error(t, NewFileProvider("").Validate())
	})

	t.Run("Load And Write Back", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "esplus.yaml")
		require.NoError(t, os.WriteFile(path, []byte(testEntriesYAML), 0o600))

		f := NewFileProvider(path)
		require.NoError(t, f.Init(ctx))

		entries, err := f.ListEntries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "dacha", entries[0].ID)
		assert.Equal(t, "home", entries[1].ID)

		home, err := f.GetEntry(ctx, "home")
		require.NoError(t, err)
		assert.Equal(t, "79991234567", home.Username)
		assert.Equal(t, types.LangRU, home.Lang)
		assert.False(t, home.Default.Options.IsEnabled(types.KindLastPayment))
		assert.Equal(t, 10*time.Minute, home.Default.Options.Interval(types.KindMeters))
		_, enabled := home.OptionsFor("7700123456")
		assert.False(t, enabled)

		home.Password = "changed"
		require.NoError(t, f.PutEntry(ctx, home))
		require.NoError(t, f.DeleteEntry(ctx, "dacha"))
		require.NoError(t, f.DeleteEntry(ctx, "dacha"))

		reloaded := NewFileProvider(path)
		require.NoError(t, reloaded.Init(ctx))
		entries, err = reloaded.ListEntries(ctx)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, home, entries[0])

		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	})

	t.Run("Not Found", func(t *testing.T) {
		f := NewFileProvider(filepath.Join(t.TempDir(), "esplus.yaml"))
		require.NoError(t, f.Init(ctx))
		_, err := f.GetEntry(ctx, "nope")
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})

	t.Run("Duplicate IDs", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "esplus.yaml")
		require.NoError(t, os.WriteFile(path, []byte("- id: a\n- id: a\n"), 0o600))
		assert.ErrorContains(t, NewFileProvider(path).Init(ctx), "duplicate")
	})

	t.Run("Empty ID", func(t *testing.T) {
		f := NewFileProvider(filepath.Join(t.TempDir(), "esplus.yaml"))
		require.NoError(t, f.Init(ctx))
		assert.Error(t, f.PutEntry(ctx, types.ConfigEntry{}))
	})
}
