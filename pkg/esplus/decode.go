package esplus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout   = "02.01.2006"
	periodLayout = "01.2006"
)

// monthNames is the nominative capitalized month table used by the portal in
// "<Month> <Year>" period labels.
var monthNames = [12]string{
	"Январь",
	"Февраль",
	"Март",
	"Апрель",
	"Май",
	"Июнь",
	"Июль",
	"Август",
	"Сентябрь",
	"Октябрь",
	"Ноябрь",
	"Декабрь",
}

// fields is a decoded JSON object. Lookups never fail outright; the first
// failure is recorded and returned by err, so a decoder can read every field
// and check once at the end. Nested objects share the failure of their root.
type fields struct {
	record string
	path   string
	raw    map[string]json.RawMessage
	errp   *error
}

func parseFields(record string, data json.RawMessage) *fields {
	var err error
	f := &fields{record: record, errp: &err}
	if err := json.Unmarshal(data, &f.raw); err != nil {
		f.fail("", fmt.Errorf("%w: %v", errMalformed, err))
	} else if f.raw == nil {
		f.fail("", fmt.Errorf("%w: null object", errMalformed))
	}
	return f
}

// as returns f reporting failures against the given record type.
func (f *fields) as(record string) *fields {
	c := *f
	c.record = record
	return &c
}

func (f *fields) err() error {
	return *f.errp
}

func (f *fields) fail(field string, err error) {
	if *f.errp != nil {
		return
	}
	name := field
	if f.path != "" {
		if name == "" {
			name = f.path
		} else {
			name = f.path + "." + field
		}
	}
	*f.errp = &DecodeError{Record: f.record, Field: name, Err: err}
}

// lookup returns the raw value and whether it is present and not null.
func (f *fields) lookup(field string) (json.RawMessage, bool) {
	v, ok := f.raw[field]
	if !ok || isNull(v) {
		return nil, false
	}
	return v, true
}

func (f *fields) required(field string) (json.RawMessage, bool) {
	v, ok := f.raw[field]
	if !ok {
		f.fail(field, errMissing)
		return nil, false
	}
	return v, true
}

func isNull(v json.RawMessage) bool {
	return len(v) == 0 || bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

// scalar returns the textual form of a JSON string or number.
func scalar(v json.RawMessage) (string, error) {
	v = bytes.TrimSpace(v)
	if len(v) > 0 && v[0] == '"' {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

// String reads a required string. Numbers are accepted and kept in their
// textual form; null decodes to the empty string.
func (f *fields) String(field string) string {
	v, ok := f.required(field)
	if !ok || isNull(v) {
		return ""
	}
	s, err := scalar(v)
	if err != nil {
		f.fail(field, fmt.Errorf("%w: %v", errMalformed, err))
		return ""
	}
	return s
}

func (f *fields) Float(field string) float64 {
	v, ok := f.required(field)
	if !ok {
		return 0
	}
	n, err := parseFloat(v)
	if err != nil {
		f.fail(field, err)
		return 0
	}
	return n
}

// OptFloat reads a float that may be missing or null.
func (f *fields) OptFloat(field string) *float64 {
	v, ok := f.lookup(field)
	if !ok {
		return nil
	}
	n, err := parseFloat(v)
	if err != nil {
		f.fail(field, err)
		return nil
	}
	return &n
}

func parseFloat(v json.RawMessage) (float64, error) {
	if isNull(v) {
		return 0, fmt.Errorf("%w: null", errMalformed)
	}
	s, err := scalar(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errMalformed, err)
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return n, nil
}

func (f *fields) Int(field string) int {
	v, ok := f.required(field)
	if !ok {
		return 0
	}
	n, err := parseInt(v)
	if err != nil {
		f.fail(field, err)
		return 0
	}
	return n
}

// OptInt reads an int that may be missing or null.
func (f *fields) OptInt(field string) *int {
	v, ok := f.lookup(field)
	if !ok {
		return nil
	}
	n, err := parseInt(v)
	if err != nil {
		f.fail(field, err)
		return nil
	}
	return &n
}

func parseInt(v json.RawMessage) (int, error) {
	if isNull(v) {
		return 0, fmt.Errorf("%w: null", errMalformed)
	}
	s, err := scalar(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errMalformed, err)
	}
	s = strings.TrimSpace(s)
	n, err := strconv.Atoi(s)
	if err == nil {
		return n, nil
	}
	// some counters are sent as 3.0
	fl, ferr := strconv.ParseFloat(s, 64)
	if ferr != nil || fl != float64(int(fl)) {
		return 0, fmt.Errorf("%w: %v", errMalformed, err)
	}
	return int(fl), nil
}

// Bool reads a required boolean. null decodes to false.
func (f *fields) Bool(field string) bool {
	v, ok := f.required(field)
	if !ok || isNull(v) {
		return false
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		s, serr := scalar(v)
		if serr == nil {
			if pb, perr := strconv.ParseBool(strings.TrimSpace(s)); perr == nil {
				return pb
			}
		}
		f.fail(field, fmt.Errorf("%w: %v", errMalformed, err))
		return false
	}
	return b
}

// Date reads a required DD.MM.YYYY date.
func (f *fields) Date(field string) time.Time {
	s := f.String(field)
	if f.err() != nil {
		return time.Time{}
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		f.fail(field, fmt.Errorf("%w: %v", errMalformed, err))
		return time.Time{}
	}
	return t
}

// Period reads a required MM.YYYY label as the first day of that month.
func (f *fields) Period(field string) time.Time {
	s := f.String(field)
	if f.err() != nil {
		return time.Time{}
	}
	t, err := time.Parse(periodLayout, strings.TrimSpace(s))
	if err != nil {
		f.fail(field, fmt.Errorf("%w: %v", errMalformed, err))
		return time.Time{}
	}
	return t
}

// MonthPeriod reads a required "<Month> <Year>" label as the first day of
// that month.
func (f *fields) MonthPeriod(field string) time.Time {
	s := f.String(field)
	if f.err() != nil {
		return time.Time{}
	}
	t, err := parseMonthPeriod(s)
	if err != nil {
		f.fail(field, err)
		return time.Time{}
	}
	return t
}

func parseMonthPeriod(s string) (time.Time, error) {
	name, year, _ := strings.Cut(strings.TrimSpace(s), " ")
	month := 0
	for i, m := range monthNames {
		if m == name {
			month = i + 1
			break
		}
	}
	if month == 0 {
		return time.Time{}, fmt.Errorf("%w: unknown month name %q", errMalformed, name)
	}
	y, err := strconv.Atoi(strings.TrimSpace(year))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid year %q", errMalformed, year)
	}
	return time.Date(y, time.Month(month), 1, 0, 0, 0, 0, time.UTC), nil
}

// dash returns the trimmed raw string for a dash-or field, or false when the
// field is null or holds the "-" placeholder.
func (f *fields) dash(field string) (string, bool) {
	v, ok := f.required(field)
	if !ok || isNull(v) {
		return "", false
	}
	s, err := scalar(v)
	if err != nil {
		f.fail(field, fmt.Errorf("%w: %v", errMalformed, err))
		return "", false
	}
	if strings.TrimSpace(s) == "-" {
		return "", false
	}
	return s, true
}

// DashString reads a string where "-" means no value.
func (f *fields) DashString(field string) *string {
	s, ok := f.dash(field)
	if !ok {
		return nil
	}
	return &s
}

// DashInt reads an int where "-" means no value.
func (f *fields) DashInt(field string) *int {
	s, ok := f.dash(field)
	if !ok {
		return nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		f.fail(field, fmt.Errorf("%w: %v", errMalformed, err))
		return nil
	}
	return &n
}

// DashDate reads a DD.MM.YYYY date where "-" means no value.
func (f *fields) DashDate(field string) *time.Time {
	s, ok := f.dash(field)
	if !ok {
		return nil
	}
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		f.fail(field, fmt.Errorf("%w: %v", errMalformed, err))
		return nil
	}
	return &t
}

// Object reads a required nested object.
func (f *fields) Object(field string) *fields {
	child := &fields{record: f.record, path: f.childPath(field), errp: f.errp}
	v, ok := f.required(field)
	if !ok {
		return child
	}
	if err := json.Unmarshal(v, &child.raw); err != nil || child.raw == nil {
		f.fail(field, fmt.Errorf("%w: expected object", errMalformed))
	}
	return child
}

// OptObject reads a nested object that may be null. The key itself must be
// present.
func (f *fields) OptObject(field string) *fields {
	v, ok := f.required(field)
	if !ok || isNull(v) {
		return nil
	}
	return f.Object(field)
}

// List reads a required array of objects.
func (f *fields) List(field string) []*fields {
	v, ok := f.required(field)
	if !ok {
		return nil
	}
	if isNull(v) {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		f.fail(field, fmt.Errorf("%w: expected array", errMalformed))
		return nil
	}
	out := make([]*fields, 0, len(items))
	for i, item := range items {
		child := &fields{record: f.record, path: fmt.Sprintf("%s[%d]", f.childPath(field), i), errp: f.errp}
		if err := json.Unmarshal(item, &child.raw); err != nil || child.raw == nil {
			child.fail("", fmt.Errorf("%w: expected object", errMalformed))
		}
		out = append(out, child)
	}
	return out
}

func (f *fields) childPath(field string) string {
	if f.path == "" {
		return field
	}
	return f.path + "." + field
}

// zoneID returns the identifier of the i-th zone, counting from 1.
func zoneID(i int) string {
	return "t" + strconv.Itoa(i)
}

// orderedValues returns the values of a JSON object in document order. A
// JSON array is accepted as well since the portal sends [] for an empty
// mapping.
func orderedValues(data json.RawMessage) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if isNull(data) {
		return nil, nil
	}
	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}
	var out []json.RawMessage
	for dec.More() {
		// key
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
