package timeseries

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimeOfDay(t *testing.T) {
	tt := []struct {
		name    string
		in      string
		want    TimeOfDay
		wantErr bool
	}{
		{name: "morning", in: "06:00:00", want: TimeOfDay{Hour: 6}},
		{name: "evening", in: "18:30:15", want: TimeOfDay{Hour: 18, Minute: 30, Second: 15}},
		{name: "midnight", in: "00:00:00", want: TimeOfDay{}},
		{name: "out of range", in: "25:00:00", wantErr: true},
		{name: "garbage", in: "noon", wantErr: true},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseTimeOfDay(tc.in)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestTimeOfDayString(t *testing.T) {
	assert.Equal(t, "06:00:00", TimeOfDay{Hour: 6}.String())
	assert.Equal(t, "18:30:15", TimeOfDay{Hour: 18, Minute: 30, Second: 15}.String())
}

func TestTimeOfDayMatches(t *testing.T) {
	td := TimeOfDay{Hour: 6}

	tt := []struct {
		name string
		t    time.Time
		want bool
	}{
		{name: "exact", t: time.Date(2020, 3, 2, 6, 0, 0, 0, time.UTC), want: true},
		{name: "different day same clock", t: time.Date(2021, 12, 25, 6, 0, 0, 0, time.UTC), want: true},
		{name: "off by a minute", t: time.Date(2020, 3, 2, 6, 1, 0, 0, time.UTC), want: false},
		{name: "sub-second never matches", t: time.Date(2020, 3, 2, 6, 0, 0, 1, time.UTC), want: false},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, td.Matches(tc.t))
		})
	}
}

func TestMustTimeOfDayPanics(t *testing.T) {
	assert.Panics(t, func() { MustTimeOfDay("nope") })
	assert.NotPanics(t, func() { MustTimeOfDay("12:00:00") })
}
