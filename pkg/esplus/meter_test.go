package esplus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMeter() Meter {
	return Meter{
		ID:                 "m1",
		SubmissionStartDay: 15,
		SubmissionEndDay:   25,
		Zones: []MeterZone{
			{ID: "t1", Accepted: ptr(90.0), Submitted: ptr(100.0)},
			{ID: "t2", Current: ptr(30.0)},
		},
	}
}

func TestPrepareIndications(t *testing.T) {
	inPeriod := time.Date(2024, time.March, 20, 12, 0, 0, 0, time.UTC)
	outOfPeriod := time.Date(2024, time.March, 5, 12, 0, 0, 0, time.UTC)

	t.Run("Below Maximum", func(t *testing.T) {
		_, err := testMeter().PrepareIndications(map[string]float64{"t1": 70}, SubmitOptions{}, inPeriod)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "t1", ve.Zone)
	})

	t.Run("Ignore Values", func(t *testing.T) {
		out, err := testMeter().PrepareIndications(map[string]float64{"t1": 70}, SubmitOptions{IgnoreValues: true}, inPeriod)
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"t1": 70}, out)
	})

	t.Run("Incremental", func(t *testing.T) {
		out, err := testMeter().PrepareIndications(map[string]float64{"t1": 5, "t2": 2.5}, SubmitOptions{Incremental: true}, inPeriod)
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"t1": 105, "t2": 32.5}, out)
	})

	t.Run("Equal To Maximum", func(t *testing.T) {
		out, err := testMeter().PrepareIndications(map[string]float64{"t1": 100}, SubmitOptions{}, inPeriod)
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"t1": 100}, out)
	})

	t.Run("Unknown Zones", func(t *testing.T) {
		_, err := testMeter().PrepareIndications(map[string]float64{"t9": 1, "t3": 1, "t1": 200}, SubmitOptions{IgnorePeriod: true}, inPeriod)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Equal(t, "invalid zones provided: t3,t9", ve.Reason)
	})

	t.Run("Empty", func(t *testing.T) {
		_, err := testMeter().PrepareIndications(nil, SubmitOptions{}, inPeriod)
		var ve *ValidationError
		assert.ErrorAs(t, err, &ve)
	})

	t.Run("Outside Period", func(t *testing.T) {
		_, err := testMeter().PrepareIndications(map[string]float64{"t1": 200}, SubmitOptions{}, outOfPeriod)
		var ve *ValidationError
		require.ErrorAs(t, err, &ve)
		assert.Empty(t, ve.Zone)

		out, err := testMeter().PrepareIndications(map[string]float64{"t1": 200}, SubmitOptions{IgnorePeriod: true}, outOfPeriod)
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{"t1": 200}, out)
	})
}

func TestSubmissionPeriod(t *testing.T) {
	m := testMeter()

	tests := []struct {
		name      string
		now       time.Time
		active    bool
		remaining *int
		until     *int
	}{
		{
			name:  "Before Period",
			now:   time.Date(2024, time.March, 10, 8, 0, 0, 0, time.UTC),
			until: ptr(5),
		},
		{
			name:      "First Day",
			now:       time.Date(2024, time.March, 15, 8, 0, 0, 0, time.UTC),
			active:    true,
			remaining: ptr(10),
		},
		{
			name:      "Last Day",
			now:       time.Date(2024, time.March, 25, 8, 0, 0, 0, time.UTC),
			active:    true,
			remaining: ptr(0),
			until:     ptr(21),
		},
		{
			name:  "After Period",
			now:   time.Date(2024, time.March, 28, 8, 0, 0, 0, time.UTC),
			until: ptr(18),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.active, m.SubmissionPeriodActive(tt.now))
			assert.Equal(t, tt.remaining, m.RemainingDaysForSubmission(tt.now))
			assert.Equal(t, tt.until, m.RemainingDaysUntilSubmission(tt.now))
		})
	}

	t.Run("Clamped To Month Length", func(t *testing.T) {
		m := Meter{SubmissionStartDay: 20, SubmissionEndDay: 31}
		now := time.Date(2024, time.February, 10, 0, 0, 0, 0, time.UTC)
		assert.Equal(t, time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC), m.SubmissionEnd(now))
		assert.Equal(t, time.Date(2024, time.February, 20, 0, 0, 0, 0, time.UTC), m.SubmissionStart(now))
	})
}

func TestZoneMax(t *testing.T) {
	assert.Zero(t, MeterZone{}.Max())
	assert.Equal(t, 12.5, MeterZone{Accepted: ptr(10.0), Submitted: ptr(12.5), Current: ptr(11.0)}.Max())
	assert.Zero(t, MeterZone{Current: ptr(-3.0)}.Max())
}

func TestIndicationsFromList(t *testing.T) {
	assert.Equal(t, map[string]float64{"t1": 1, "t2": 2.5}, IndicationsFromList([]float64{1, 2.5}))
	assert.Empty(t, IndicationsFromList(nil))
}
