package esplus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFields(t *testing.T) {
	t.Run("Dash Sentinel", func(t *testing.T) {
		f := parseFields("Test", json.RawMessage(`{"a": "-", "b": " - ", "c": null, "d": "12", "e": "01.05.2023"}`))
		assert.Nil(t, f.DashString("a"))
		assert.Nil(t, f.DashString("b"))
		assert.Nil(t, f.DashString("c"))
		require.NotNil(t, f.DashInt("d"))
		assert.Equal(t, 12, *f.DashInt("d"))
		d := f.DashDate("e")
		require.NotNil(t, d)
		assert.Equal(t, time.Date(2023, time.May, 1, 0, 0, 0, 0, time.UTC), *d)
		assert.NoError(t, f.err())
	})

	t.Run("First Failure Wins", func(t *testing.T) {
		f := parseFields("Test", json.RawMessage(`{"a": "x", "b": {"c": "y"}}`))
		f.Float("a")
		f.Object("b").Int("c")
		f.String("missing")
		var de *DecodeError
		require.ErrorAs(t, f.err(), &de)
		assert.Equal(t, "a", de.Field)
		assert.ErrorIs(t, f.err(), errMalformed)
	})

	t.Run("Nested Path", func(t *testing.T) {
		f := parseFields("Test", json.RawMessage(`{"items": [{"v": 1}, {"w": 2}]}`))
		for _, item := range f.List("items") {
			item.Int("v")
		}
		var de *DecodeError
		require.ErrorAs(t, f.err(), &de)
		assert.Equal(t, "items[1].v", de.Field)
		assert.ErrorIs(t, f.err(), errMissing)
	})

	t.Run("Lenient Scalars", func(t *testing.T) {
		f := parseFields("Test", json.RawMessage(`{"i": "3.0", "b": "true", "s": 42, "n": null}`))
		assert.Equal(t, 3, f.Int("i"))
		assert.True(t, f.Bool("b"))
		assert.Equal(t, "42", f.String("s"))
		assert.Empty(t, f.String("n"))
		assert.Nil(t, f.OptFloat("n"))
		assert.NoError(t, f.err())
	})

	t.Run("Not An Object", func(t *testing.T) {
		f := parseFields("Test", json.RawMessage(`[1, 2]`))
		assert.ErrorIs(t, f.err(), errMalformed)
	})
}

func TestParseMonthPeriod(t *testing.T) {
	for i, name := range monthNames {
		got, err := parseMonthPeriod(name + " 2024")
		require.NoError(t, err, name)
		assert.Equal(t, time.Date(2024, time.Month(i+1), 1, 0, 0, 0, 0, time.UTC), got, name)
	}

	_, err := parseMonthPeriod("March 2024")
	assert.ErrorIs(t, err, errMalformed)
	_, err = parseMonthPeriod("Март")
	assert.ErrorIs(t, err, errMalformed)
}

func TestOrderedValues(t *testing.T) {
	values, err := orderedValues(json.RawMessage(`{"b": 1, "a": {"x": [1, 2]}, "c": "s"}`))
	require.NoError(t, err)
	require.Len(t, values, 3)
	assert.JSONEq(t, `1`, string(values[0]))
	assert.JSONEq(t, `{"x": [1, 2]}`, string(values[1]))
	assert.JSONEq(t, `"s"`, string(values[2]))

	values, err = orderedValues(json.RawMessage(`[]`))
	require.NoError(t, err)
	assert.Empty(t, values)

	_, err = orderedValues(json.RawMessage(`"nope"`))
	assert.Error(t, err)
}
