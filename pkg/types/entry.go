package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Lang selects the default name templates and attribution text.
type Lang string

const (
	LangEN Lang = "en"
	LangRU Lang = "ru"
)

// ParseLang returns the language for s, accepting any case.
func ParseLang(s string) (Lang, error) {
	switch Lang(strings.ToLower(strings.TrimSpace(s))) {
	case LangEN:
		return LangEN, nil
	case LangRU:
		return LangRU, nil
	}
	return "", fmt.Errorf("unsupported language: %q", s)
}

// ConfigurationError is returned for an invalid config entry.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
}

// AccountConfig is either disabled or a set of options. In documents it is
// written as false, true (default options) or an options mapping.
type AccountConfig struct {
	Disabled bool
	Options  AccountOptions
}

func parseAccountConfig(field string, v interface{}) (AccountConfig, error) {
	switch t := v.(type) {
	case nil:
		return AccountConfig{Options: DefaultOptions()}, nil
	case bool:
		if !t {
			return AccountConfig{Disabled: true}, nil
		}
		return AccountConfig{Options: DefaultOptions()}, nil
	case map[string]interface{}:
		o, err := parseOptions(field, t)
		if err != nil {
			return AccountConfig{}, err
		}
		return AccountConfig{Options: o}, nil
	}
	return AccountConfig{}, &ConfigurationError{Field: field, Reason: "expected boolean or mapping"}
}

func (a AccountConfig) toValue() interface{} {
	if a.Disabled {
		return false
	}
	return a.Options.toMap()
}

// ConfigEntry is one configured portal login together with the options of
// its accounts.
type ConfigEntry struct {
	ID        string
	Branch    string
	Username  string
	Password  string
	LoginType string
	// Lang is empty when the process default applies.
	Lang Lang
	// Default applies to accounts without an entry in Accounts.
	Default  AccountConfig
	Accounts map[string]AccountConfig
}

// OptionsFor returns the options of the account with the given number and
// false if the account is disabled.
func (e ConfigEntry) OptionsFor(accountNumber string) (AccountOptions, bool) {
	c, ok := e.Accounts[accountNumber]
	if !ok {
		c = e.Default
	}
	if c.Disabled {
		return AccountOptions{}, false
	}
	return c.Options, true
}

// Key identifies the login of the entry. Two entries with the same key are
// not allowed.
func (e ConfigEntry) Key() string {
	return e.Branch + "/" + e.Username
}

// Validate checks required fields and option bounds.
func (e ConfigEntry) Validate() error {
	for _, f := range []struct {
		name, value string
	}{
		{"branch", e.Branch},
		{"username", e.Username},
		{"password", e.Password},
	} {
		if strings.TrimSpace(f.value) == "" {
			return &ConfigurationError{Field: f.name, Reason: "required"}
		}
	}
	switch e.LoginType {
	case "", "account", "contact":
	default:
		return &ConfigurationError{Field: "login_type", Reason: fmt.Sprintf("unsupported login type %q", e.LoginType)}
	}
	switch e.Lang {
	case "", LangEN, LangRU:
	default:
		return &ConfigurationError{Field: "lang", Reason: fmt.Sprintf("unsupported language %q", e.Lang)}
	}
	if err := validateAccountConfig("default", e.Default); err != nil {
		return err
	}
	for number, c := range e.Accounts {
		if err := validateAccountConfig("accounts."+number, c); err != nil {
			return err
		}
	}
	return nil
}

func validateAccountConfig(field string, c AccountConfig) error {
	if c.Disabled {
		return nil
	}
	for _, k := range Kinds {
		if d, ok := c.Options.ScanInterval[k]; ok && d < MinScanInterval {
			return &ConfigurationError{
				Field:  field + ".scan_interval." + string(k),
				Reason: fmt.Sprintf("must be at least %s", MinScanInterval),
			}
		}
	}
	return nil
}

// ValidateEntries validates every entry and rejects duplicate logins.
func ValidateEntries(entries []ConfigEntry) error {
	seen := make(map[string]string, len(entries))
	for _, e := range entries {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("entry %s: %w", e.ID, err)
		}
		if other, ok := seen[e.Key()]; ok {
			return &ConfigurationError{
				Field:  "username",
				Reason: fmt.Sprintf("entries %s and %s use the same login", other, e.ID),
			}
		}
		seen[e.Key()] = e.ID
	}
	return nil
}

func parseEntry(m map[string]interface{}) (ConfigEntry, error) {
	e := ConfigEntry{
		Default: AccountConfig{Options: DefaultOptions()},
	}
	for _, key := range sortedKeys(m) {
		v := m[key]
		switch key {
		case "id", "branch", "username", "password", "login_type", "lang":
			s, ok := scalarString(v)
			if !ok {
				return e, &ConfigurationError{Field: key, Reason: "expected string"}
			}
			switch key {
			case "id":
				e.ID = s
			case "branch":
				e.Branch = s
			case "username":
				e.Username = s
			case "password":
				e.Password = s
			case "login_type":
				e.LoginType = s
			case "lang":
				e.Lang = Lang(strings.ToLower(s))
			}
		case "default":
			c, err := parseAccountConfig("default", v)
			if err != nil {
				return e, err
			}
			e.Default = c
		case "accounts":
			accounts, err := parseAccounts(v)
			if err != nil {
				return e, err
			}
			e.Accounts = accounts
		default:
			return e, &ConfigurationError{Field: key, Reason: "unknown field"}
		}
	}
	return e, nil
}

// parseAccounts accepts a list of account numbers, each enabled with default
// options, or a mapping of account number to account config.
func parseAccounts(v interface{}) (map[string]AccountConfig, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		out := make(map[string]AccountConfig, len(t))
		for i, item := range t {
			number, ok := scalarString(item)
			if !ok || number == "" {
				return nil, &ConfigurationError{Field: fmt.Sprintf("accounts[%d]", i), Reason: "expected string"}
			}
			out[number] = AccountConfig{Options: DefaultOptions()}
		}
		return out, nil
	case map[string]interface{}:
		out := make(map[string]AccountConfig, len(t))
		for number, av := range t {
			c, err := parseAccountConfig("accounts."+number, av)
			if err != nil {
				return nil, err
			}
			out[number] = c
		}
		return out, nil
	}
	return nil, &ConfigurationError{Field: "accounts", Reason: "expected list or mapping"}
}

func (e ConfigEntry) toMap() map[string]interface{} {
	m := map[string]interface{}{
		"id":       e.ID,
		"branch":   e.Branch,
		"username": e.Username,
		"password": e.Password,
		"default":  e.Default.toValue(),
	}
	if e.LoginType != "" {
		m["login_type"] = e.LoginType
	}
	if e.Lang != "" {
		m["lang"] = string(e.Lang)
	}
	if len(e.Accounts) > 0 {
		accounts := make(map[string]interface{}, len(e.Accounts))
		for number, c := range e.Accounts {
			accounts[number] = c.toValue()
		}
		m["accounts"] = accounts
	}
	return m
}

func (e ConfigEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.toMap())
}

func (e *ConfigEntry) UnmarshalJSON(b []byte) error {
	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	parsed, err := parseEntry(m)
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

func (e ConfigEntry) MarshalYAML() (interface{}, error) {
	return e.toMap(), nil
}

func (e *ConfigEntry) UnmarshalYAML(value *yaml.Node) error {
	var m map[string]interface{}
	if err := value.Decode(&m); err != nil {
		return err
	}
	parsed, err := parseEntry(normalizeYAML(m).(map[string]interface{}))
	if err != nil {
		return err
	}
	*e = parsed
	return nil
}

// scalarString returns strings as is and numbers in their plain form, since
// phone numbers and account numbers are often written unquoted.
func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}

// normalizeYAML converts mappings with non-string keys, such as unquoted
// account numbers, into string-keyed mappings.
func normalizeYAML(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		for k, item := range t {
			t[k] = normalizeYAML(item)
		}
		return t
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, item := range t {
			out[fmt.Sprint(k)] = normalizeYAML(item)
		}
		return out
	case []interface{}:
		for i, item := range t {
			t[i] = normalizeYAML(item)
		}
		return t
	}
	return v
}

// Redacted returns a copy of the entry without the password.
func (e ConfigEntry) Redacted() ConfigEntry {
	e.Password = ""
	return e
}
