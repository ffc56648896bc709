package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func d(n int) time.Time { return AddDays(epoch, n) }

func iv(id string, start, end int) Interval {
	return Interval{ID: id, Start: d(start), End: d(end)}
}

func TestCanScheduleEmptyIndex(t *testing.T) {
	assert.True(t, CanSchedule(d(0), d(10), nil))
	assert.True(t, CanSchedule(d(0), d(10), Index{}))
}

func TestCanSchedule(t *testing.T) {
	idx := NewIndex([]Interval{
		iv("c", 40, 50),
		iv("a", 0, 10),
		iv("b", 20, 30),
	})

	tests := []struct {
		name       string
		start, end int
		want       bool
	}{
		{"before everything", -10, -1, true},
		{"touches first start", -10, 0, false},
		{"first gap", 11, 19, true},
		{"touches end of a", 10, 19, false},
		{"touches start of b", 11, 20, false},
		{"second gap", 31, 39, true},
		{"spans b", 11, 39, false},
		{"after everything", 51, 60, true},
		{"touches last end", 50, 60, false},
		{"inside a", 2, 8, false},
		{"covers all", -5, 70, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanSchedule(d(tt.start), d(tt.end), idx))
		})
	}
}

func TestCanScheduleSingleLoan(t *testing.T) {
	idx := NewIndex([]Interval{iv("a", 0, 10)})

	assert.False(t, CanSchedule(d(10), d(20), idx), "handover on the same instant is a conflict")
	assert.True(t, CanSchedule(d(11), d(20), idx))
	assert.True(t, CanSchedule(d(-20), d(-1), idx))
}

func TestCanScheduleStrictlyInsideGaps(t *testing.T) {
	// Any proposal strictly between two neighbouring bookings must fit.
	idx := NewIndex([]Interval{iv("a", 0, 10), iv("b", 20, 30), iv("c", 31, 35)})
	for i := 0; i < len(idx)-1; i++ {
		lo, hi := idx[i].End, idx[i+1].Start
		if !hi.After(lo.Add(2 * time.Second)) {
			continue
		}
		start := lo.Add(time.Second)
		end := hi.Add(-time.Second)
		assert.True(t, CanSchedule(start, end, idx), "gap after %s", idx[i].ID)
		assert.False(t, CanSchedule(lo, end, idx), "start on boundary after %s", idx[i].ID)
		assert.False(t, CanSchedule(start, hi, idx), "end on boundary before %s", idx[i+1].ID)
	}
}

func TestNewIndexOrdering(t *testing.T) {
	idx := NewIndex([]Interval{
		iv("02", 5, 6),
		iv("03", 0, 1),
		iv("01", 5, 9),
	})
	require.Len(t, idx, 3)
	assert.Equal(t, []string{"03", "01", "02"}, []string{idx[0].ID, idx[1].ID, idx[2].ID})
}

func TestIndexWithout(t *testing.T) {
	idx := NewIndex([]Interval{iv("a", 0, 10), iv("b", 11, 20)})
	rest := idx.Without("a")
	require.Len(t, rest, 1)
	assert.Equal(t, "b", rest[0].ID)
	assert.Len(t, idx, 2, "original index is left alone")
}

func TestIndexCovering(t *testing.T) {
	idx := NewIndex([]Interval{iv("a", 0, 10), iv("b", 20, 30)})

	got, ok := idx.Covering(d(10))
	require.True(t, ok)
	assert.Equal(t, "a", got.ID)

	got, ok = idx.Covering(d(25))
	require.True(t, ok)
	assert.Equal(t, "b", got.ID)

	_, ok = idx.Covering(d(15))
	assert.False(t, ok)
}

func TestDaysBetween(t *testing.T) {
	assert.Equal(t, 3, DaysBetween(d(0), d(3)))
	assert.Equal(t, -3, DaysBetween(d(3), d(0)))
	assert.Equal(t, 0, DaysBetween(d(0), d(0).Add(23*time.Hour)))
	assert.Equal(t, 0, DaysBetween(d(0).Add(23*time.Hour), d(0)))
	assert.Equal(t, -1, DaysBetween(d(0).Add(36*time.Hour), d(0)))
}
