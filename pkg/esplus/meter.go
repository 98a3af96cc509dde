package esplus

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// SubmitOptions relax the checks applied before readings are sent.
type SubmitOptions struct {
	// IgnorePeriod allows submitting outside of the submission period.
	IgnorePeriod bool `json:"ignore_period"`
	// IgnoreValues allows values below the previous maximum.
	IgnoreValues bool `json:"ignore_indications"`
	// Incremental treats values as consumption added to the previous maximum.
	Incremental bool `json:"incremental"`
}

// ZoneIDs returns the zone ids of the meter in order.
func (m Meter) ZoneIDs() []string {
	ids := make([]string, 0, len(m.Zones))
	for _, z := range m.Zones {
		ids = append(ids, z.ID)
	}
	return ids
}

// Zone returns the zone with the given id.
func (m Meter) Zone(id string) (MeterZone, bool) {
	for _, z := range m.Zones {
		if z.ID == id {
			return z, true
		}
	}
	return MeterZone{}, false
}

// dayInMonth returns the given day of the month of t, clamped to the last day
// of that month.
func dayInMonth(t time.Time, day int) time.Time {
	last := time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if day > last {
		day = last
	}
	if day < 1 {
		day = 1
	}
	return time.Date(t.Year(), t.Month(), day, 0, 0, 0, 0, t.Location())
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours()/24 + 0.5)
}

// SubmissionStart returns the first day of the submission period in the
// month of now.
func (m Meter) SubmissionStart(now time.Time) time.Time {
	return dayInMonth(now, m.SubmissionStartDay)
}

// SubmissionEnd returns the last day of the submission period in the month
// of now.
func (m Meter) SubmissionEnd(now time.Time) time.Time {
	return dayInMonth(now, m.SubmissionEndDay)
}

// SubmissionPeriodActive reports whether readings are accepted on the day of
// now.
func (m Meter) SubmissionPeriodActive(now time.Time) bool {
	return m.SubmissionStartDay <= now.Day() && now.Day() <= m.SubmissionEndDay
}

// RemainingDaysForSubmission returns the number of days left in an active
// submission period, or nil outside of it.
func (m Meter) RemainingDaysForSubmission(now time.Time) *int {
	if !m.SubmissionPeriodActive(now) {
		return nil
	}
	d := m.SubmissionEndDay - now.Day()
	return &d
}

// RemainingDaysUntilSubmission returns the number of days until the next
// submission period starts, or nil while one is in progress.
func (m Meter) RemainingDaysUntilSubmission(now time.Time) *int {
	today := truncateDay(now)
	start := m.SubmissionStart(today)
	if today.Before(start) {
		d := daysBetween(today, start)
		return &d
	}
	if today.Before(m.SubmissionEnd(today)) {
		return nil
	}
	next := dayInMonth(time.Date(today.Year(), today.Month()+1, 1, 0, 0, 0, 0, today.Location()), m.SubmissionStartDay)
	d := daysBetween(today, next)
	return &d
}

// PrepareIndications validates readings keyed by zone id and returns the
// absolute values to send.
func (m Meter) PrepareIndications(indications map[string]float64, opts SubmitOptions, now time.Time) (map[string]float64, error) {
	if len(indications) == 0 {
		return nil, &ValidationError{Reason: "at least one indication must be provided"}
	}

	var invalid []string
	for id := range indications {
		if _, ok := m.Zone(id); !ok {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, &ValidationError{Reason: "invalid zones provided: " + strings.Join(invalid, ",")}
	}

	if !opts.IgnorePeriod && !m.SubmissionPeriodActive(now) {
		return nil, &ValidationError{Reason: "submission period is not active"}
	}

	out := make(map[string]float64, len(indications))
	for _, z := range m.Zones {
		v, ok := indications[z.ID]
		if !ok {
			continue
		}
		floor := z.Max()
		if opts.Incremental {
			v += floor
		}
		if !opts.IgnoreValues && v < floor {
			return nil, &ValidationError{
				Zone:   z.ID,
				Reason: fmt.Sprintf("submitted value (%g) is less than zone max value (%g)", v, floor),
			}
		}
		out[z.ID] = v
	}
	return out, nil
}

// IndicationsFromList keys readings given in zone order as t1..tN.
func IndicationsFromList(values []float64) map[string]float64 {
	out := make(map[string]float64, len(values))
	for i, v := range values {
		out[zoneID(i+1)] = v
	}
	return out
}
