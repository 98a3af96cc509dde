package types

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Kind is a class of data refreshed for an account. Every kind has its own
// enable flag, name template and scan interval.
type Kind string

const (
	KindAccounts       Kind = "accounts"
	KindCharges        Kind = "charges"
	KindServiceCharges Kind = "service_charges"
	KindMeters         Kind = "meters"
	KindLastPayment    Kind = "last_payment"
)

// Kinds lists every kind in refresh order.
var Kinds = []Kind{
	KindAccounts,
	KindCharges,
	KindServiceCharges,
	KindMeters,
	KindLastPayment,
}

func parseKind(s string) (Kind, bool) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

const (
	// DefaultScanInterval is used for every kind without an explicit interval.
	DefaultScanInterval = time.Hour
	// MinScanInterval is the lowest interval accepted by Validate.
	MinScanInterval = time.Minute
)

// AccountOptions controls what is refreshed for an account and how the
// resulting entities are presented.
type AccountOptions struct {
	Enabled         map[Kind]bool
	DevPresentation bool
	// NameFormat holds name templates per kind. Kinds without a template use
	// the language default.
	NameFormat   map[Kind]string
	ScanInterval map[Kind]time.Duration
}

// DefaultOptions returns options with every kind enabled at the default
// interval.
func DefaultOptions() AccountOptions {
	o := AccountOptions{
		Enabled:      make(map[Kind]bool, len(Kinds)),
		NameFormat:   make(map[Kind]string),
		ScanInterval: make(map[Kind]time.Duration, len(Kinds)),
	}
	for _, k := range Kinds {
		o.Enabled[k] = true
		o.ScanInterval[k] = DefaultScanInterval
	}
	return o
}

// IsEnabled reports whether k is refreshed.
func (o AccountOptions) IsEnabled(k Kind) bool {
	return o.Enabled[k]
}

// Interval returns the scan interval of k.
func (o AccountOptions) Interval(k Kind) time.Duration {
	if d, ok := o.ScanInterval[k]; ok && d > 0 {
		return d
	}
	return DefaultScanInterval
}

// Format returns the configured name template of k or an empty string.
func (o AccountOptions) Format(k Kind) string {
	return o.NameFormat[k]
}

func (o AccountOptions) toMap() map[string]interface{} {
	m := map[string]interface{}{
		"dev_presentation": o.DevPresentation,
	}
	for _, k := range Kinds {
		m[string(k)] = o.Enabled[k]
	}
	if len(o.NameFormat) > 0 {
		nf := make(map[string]interface{}, len(o.NameFormat))
		for k, v := range o.NameFormat {
			nf[string(k)] = v
		}
		m["name_format"] = nf
	}
	si := make(map[string]interface{}, len(Kinds))
	for _, k := range Kinds {
		si[string(k)] = o.Interval(k).String()
	}
	m["scan_interval"] = si
	return m
}

func parseOptions(path string, m map[string]interface{}) (AccountOptions, error) {
	o := DefaultOptions()
	for _, key := range sortedKeys(m) {
		v := m[key]
		field := path + "." + key
		if k, ok := parseKind(key); ok {
			b, err := toBool(field, v)
			if err != nil {
				return o, err
			}
			o.Enabled[k] = b
			continue
		}
		switch key {
		case "dev_presentation":
			b, err := toBool(field, v)
			if err != nil {
				return o, err
			}
			o.DevPresentation = b
		case "name_format":
			if err := parseNameFormat(field, v, o.NameFormat); err != nil {
				return o, err
			}
		case "scan_interval":
			if err := parseScanInterval(field, v, o.ScanInterval); err != nil {
				return o, err
			}
		default:
			return o, &ConfigurationError{Field: field, Reason: "unknown option"}
		}
	}
	return o, nil
}

// parseNameFormat accepts a single template, which applies to accounts, or a
// map of templates per kind.
func parseNameFormat(field string, v interface{}, out map[Kind]string) error {
	switch t := v.(type) {
	case string:
		out[KindAccounts] = t
		return nil
	case map[string]interface{}:
		for key, fv := range t {
			k, ok := parseKind(key)
			if !ok {
				return &ConfigurationError{Field: field + "." + key, Reason: "unknown kind"}
			}
			s, ok := fv.(string)
			if !ok {
				return &ConfigurationError{Field: field + "." + key, Reason: "expected string"}
			}
			out[k] = s
		}
		return nil
	}
	return &ConfigurationError{Field: field, Reason: "expected string or mapping"}
}

// parseScanInterval accepts a single interval, which applies to every kind,
// or a map of intervals per kind.
func parseScanInterval(field string, v interface{}, out map[Kind]time.Duration) error {
	if t, ok := v.(map[string]interface{}); ok {
		for key, dv := range t {
			k, ok := parseKind(key)
			if !ok {
				return &ConfigurationError{Field: field + "." + key, Reason: "unknown kind"}
			}
			d, err := parseDuration(field+"."+key, dv)
			if err != nil {
				return err
			}
			out[k] = d
		}
		return nil
	}
	d, err := parseDuration(field, v)
	if err != nil {
		return err
	}
	for _, k := range Kinds {
		out[k] = d
	}
	return nil
}

// parseDuration accepts a Go duration ("90s", "1h"), a clock value
// ("HH:MM:SS" or "MM:SS") or a number of seconds.
func parseDuration(field string, v interface{}) (time.Duration, error) {
	var d time.Duration
	switch t := v.(type) {
	case int:
		d = time.Duration(t) * time.Second
	case int64:
		d = time.Duration(t) * time.Second
	case float64:
		d = time.Duration(t * float64(time.Second))
	case string:
		var err error
		d, err = parseDurationString(strings.TrimSpace(t))
		if err != nil {
			return 0, &ConfigurationError{Field: field, Reason: err.Error()}
		}
	default:
		return 0, &ConfigurationError{Field: field, Reason: "expected duration"}
	}
	if d <= 0 {
		return 0, &ConfigurationError{Field: field, Reason: "must be positive"}
	}
	return d, nil
}

func parseDurationString(s string) (time.Duration, error) {
	if !strings.Contains(s, ":") {
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		return time.ParseDuration(s)
	}
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid duration %q", s)
	}
	var d time.Duration
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid duration %q", s)
		}
		d = d*60 + time.Duration(n)
	}
	return d * time.Second, nil
}

func toBool(field string, v interface{}) (bool, error) {
	switch t := v.(type) {
	case bool:
		return t, nil
	case string:
		b, err := strconv.ParseBool(t)
		if err == nil {
			return b, nil
		}
	}
	return false, &ConfigurationError{Field: field, Reason: "expected boolean"}
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
