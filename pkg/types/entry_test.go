package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestConfigEntryYAML(t *testing.T) {
	t.Run("Full Document", func(t *testing.T) {
		doc := `
id: entry1
branch: ul
username: 79991234567
password: secret
lang: RU
default: false
accounts:
  7700123456: true
  "7700654321":
    charges: false
    dev_presentation: true
    name_format: "Счёт {code}"
    scan_interval: "00:05:00"
  "7700000000":
    scan_interval:
      meters: 2m
`
		var e ConfigEntry
		require.NoError(t, yaml.Unmarshal([]byte(doc), &e))
		require.NoError(t, e.Validate())

		assert.Equal(t, "entry1", e.ID)
		assert.Equal(t, "79991234567", e.Username)
		assert.Equal(t, LangRU, e.Lang)
		assert.True(t, e.Default.Disabled)

		_, ok := e.OptionsFor("1111")
		assert.False(t, ok, "accounts fall back to the disabled default")

		o, ok := e.OptionsFor("7700123456")
		require.True(t, ok)
		assert.True(t, o.IsEnabled(KindCharges))
		assert.Equal(t, DefaultScanInterval, o.Interval(KindMeters))

		o, ok = e.OptionsFor("7700654321")
		require.True(t, ok)
		assert.False(t, o.IsEnabled(KindCharges))
		assert.True(t, o.IsEnabled(KindMeters))
		assert.True(t, o.DevPresentation)
		assert.Equal(t, "Счёт {code}", o.Format(KindAccounts))
		assert.Empty(t, o.Format(KindMeters))
		for _, k := range Kinds {
			assert.Equal(t, 5*time.Minute, o.Interval(k), k)
		}

		o, ok = e.OptionsFor("7700000000")
		require.True(t, ok)
		assert.Equal(t, 2*time.Minute, o.Interval(KindMeters))
		assert.Equal(t, DefaultScanInterval, o.Interval(KindCharges))
	})

	t.Run("Account List", func(t *testing.T) {
		var e ConfigEntry
		require.NoError(t, yaml.Unmarshal([]byte("branch: ul\nusername: u\npassword: p\naccounts: [7700123456, \"42\"]\n"), &e))
		require.Len(t, e.Accounts, 2)
		o, ok := e.OptionsFor("7700123456")
		require.True(t, ok)
		assert.True(t, o.IsEnabled(KindLastPayment))
		_, ok = e.OptionsFor("42")
		assert.True(t, ok)
	})

	t.Run("Unknown Option", func(t *testing.T) {
		var e ConfigEntry
		err := yaml.Unmarshal([]byte("branch: ul\nusername: u\npassword: p\ndefault:\n  bogus: true\n"), &e)
		var ce *ConfigurationError
		require.True(t, errors.As(err, &ce), "got %v", err)
		assert.Equal(t, "default.bogus", ce.Field)
	})
}

func TestConfigEntryJSON(t *testing.T) {
	e := ConfigEntry{
		ID:       "entry1",
		Branch:   "ul",
		Username: "user@example.com",
		Password: "secret",
		Default:  AccountConfig{Options: DefaultOptions()},
		Accounts: map[string]AccountConfig{
			"1": {Disabled: true},
		},
	}
	e.Default.Options.NameFormat[KindMeters] = "{code} {meter_code}"
	e.Default.Options.ScanInterval[KindCharges] = 90 * time.Second

	b, err := json.Marshal(e)
	require.NoError(t, err)

	var got ConfigEntry
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, e, got)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, false, raw["accounts"].(map[string]interface{})["1"])

	t.Run("Numeric Interval", func(t *testing.T) {
		var e ConfigEntry
		require.NoError(t, json.Unmarshal([]byte(`{"branch":"ul","username":"u","password":"p","default":{"scan_interval":120}}`), &e))
		assert.Equal(t, 2*time.Minute, e.Default.Options.Interval(KindAccounts))
	})
}

func TestValidate(t *testing.T) {
	valid := func() ConfigEntry {
		return ConfigEntry{
			ID:       "e1",
			Branch:   "ul",
			Username: "user",
			Password: "pass",
			Default:  AccountConfig{Options: DefaultOptions()},
		}
	}

	tests := []struct {
		name   string
		modify func(*ConfigEntry)
		field  string
	}{
		{"Missing Branch", func(e *ConfigEntry) { e.Branch = "" }, "branch"},
		{"Missing Password", func(e *ConfigEntry) { e.Password = " " }, "password"},
		{"Bad Login Type", func(e *ConfigEntry) { e.LoginType = "email" }, "login_type"},
		{"Bad Lang", func(e *ConfigEntry) { e.Lang = "de" }, "lang"},
		{"Short Interval", func(e *ConfigEntry) {
			e.Default.Options.ScanInterval[KindMeters] = 30 * time.Second
		}, "default.scan_interval.meters"},
		{"Short Account Interval", func(e *ConfigEntry) {
			o := DefaultOptions()
			o.ScanInterval[KindAccounts] = time.Second
			e.Accounts = map[string]AccountConfig{"123": {Options: o}}
		}, "accounts.123.scan_interval.accounts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := valid()
			tt.modify(&e)
			var ce *ConfigurationError
			require.ErrorAs(t, e.Validate(), &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("Duplicate Login", func(t *testing.T) {
		a, b := valid(), valid()
		b.ID = "e2"
		var ce *ConfigurationError
		require.ErrorAs(t, ValidateEntries([]ConfigEntry{a, b}), &ce)

		b.Branch = "other"
		assert.NoError(t, ValidateEntries([]ConfigEntry{a, b}))
	})
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   interface{}
		want time.Duration
	}{
		{"1h", time.Hour},
		{"01:02:03", time.Hour + 2*time.Minute + 3*time.Second},
		{"05:00", 5 * time.Minute},
		{"300", 5 * time.Minute},
		{90, 90 * time.Second},
		{90.0, 90 * time.Second},
	}
	for _, tt := range tests {
		got, err := parseDuration("x", tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []interface{}{"soon", "1:2:3:4", 0, "-5s", true} {
		_, err := parseDuration("x", bad)
		assert.Error(t, err, bad)
	}
}

func TestParseLang(t *testing.T) {
	l, err := ParseLang(" RU ")
	require.NoError(t, err)
	assert.Equal(t, LangRU, l)
	_, err = ParseLang("fr")
	assert.Error(t, err)
}
