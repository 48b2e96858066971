package interval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name string
		a, b Span
		want bool
	}{
		{"disjoint", Span{540, 570}, Span{600, 630}, false},
		{"touching endpoints", Span{540, 570}, Span{570, 600}, false},
		{"partial overlap", Span{600, 630}, Span{615, 645}, true},
		{"contained", Span{540, 720}, Span{600, 630}, true},
		{"identical", Span{540, 570}, Span{540, 570}, true},
		{"empty span never overlaps", Span{540, 540}, Span{0, MinutesPerDay}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Overlaps(tt.a, tt.b))
			assert.Equal(t, tt.want, Overlaps(tt.b, tt.a), "overlap must be symmetric")
		})
	}
}

func TestSubtract(t *testing.T) {
	day := Span{Start: 540, End: 1020} // 09:00-17:00

	t.Run("no breaks", func(t *testing.T) {
		assert.Equal(t, []Span{day}, Subtract(day, nil))
	})

	t.Run("lunch break splits in two", func(t *testing.T) {
		got := Subtract(day, []Span{{720, 780}}) // 12:00-13:00
		assert.Equal(t, []Span{{540, 720}, {780, 1020}}, got)
	})

	t.Run("break at opening leaves one span", func(t *testing.T) {
		got := Subtract(day, []Span{{540, 600}})
		assert.Equal(t, []Span{{600, 1020}}, got)
	})

	t.Run("break covering the whole span", func(t *testing.T) {
		got := Subtract(day, []Span{{0, MinutesPerDay}})
		assert.Empty(t, got)
	})

	t.Run("break outside the span is ignored", func(t *testing.T) {
		got := Subtract(day, []Span{{60, 120}})
		assert.Equal(t, []Span{day}, got)
	})

	t.Run("multiple breaks preserve order", func(t *testing.T) {
		got := Subtract(day, []Span{{600, 630}, {840, 900}})
		assert.Equal(t, []Span{{540, 600}, {630, 840}, {900, 1020}}, got)
	})
}

func TestToMinutes(t *testing.T) {
	m, err := ToMinutes("09:30")
	require.NoError(t, err)
	assert.Equal(t, 570, m)

	m, err = ToMinutes("00:00")
	require.NoError(t, err)
	assert.Equal(t, 0, m)

	m, err = ToMinutes("23:59")
	require.NoError(t, err)
	assert.Equal(t, EndOfDay, m)

	for _, bad := range []string{"", "9:30", "24:00", "12:60", "ab:cd", "12-30", "120:0"} {
		_, err := ToMinutes(bad)
		assert.ErrorIs(t, err, ErrBadClock, "input %q", bad)
	}
}

func TestFromMinutes(t *testing.T) {
	assert.Equal(t, "09:05", FromMinutes(545))
	assert.Equal(t, "00:00", FromMinutes(-10))
	assert.Equal(t, "23:59", FromMinutes(MinutesPerDay+5))
}

func TestAddMinutes(t *testing.T) {
	got, err := AddMinutes("10:15", 30)
	require.NoError(t, err)
	assert.Equal(t, "10:45", got)

	// No rollover into the next day.
	got, err = AddMinutes("23:30", 90)
	require.NoError(t, err)
	assert.Equal(t, "23:59", got)

	_, err = AddMinutes("25:00", 5)
	assert.Error(t, err)
}
