// Package schedule decides whether a proposed loan period fits between the
// periods an item is already booked for.
package schedule

import (
	"sort"
	"time"
)

// Interval is one entry of an item's loan index. ID is the owning loan and
// only serves to order entries that start at the same instant.
type Interval struct {
	ID    string
	Start time.Time
	End   time.Time
}

// Index is an item's loan index, ordered by Start ascending.
type Index []Interval

// NewIndex copies and sorts intervals by Start, then ID.
func NewIndex(intervals []Interval) Index {
	idx := make(Index, len(intervals))
	copy(idx, intervals)
	sort.SliceStable(idx, func(i, j int) bool {
		if !idx[i].Start.Equal(idx[j].Start) {
			return idx[i].Start.Before(idx[j].Start)
		}
		return idx[i].ID < idx[j].ID
	})
	return idx
}

// Without returns a copy of the index with the entry for id removed.
func (idx Index) Without(id string) Index {
	out := make(Index, 0, len(idx))
	for _, iv := range idx {
		if iv.ID != id {
			out = append(out, iv)
		}
	}
	return out
}

// Covering returns the first entry whose period contains t (bounds inclusive).
func (idx Index) Covering(t time.Time) (Interval, bool) {
	for _, iv := range idx {
		if !t.Before(iv.Start) && !t.After(iv.End) {
			return iv, true
		}
	}
	return Interval{}, false
}

// CanSchedule reports whether [start, end] fits in a gap of idx. idx must be
// sorted (see NewIndex). Gaps are tried in chronological order and the first
// fit wins. Every comparison is strict, so a proposal that touches an
// existing boundary conflicts with it.
func CanSchedule(start, end time.Time, idx Index) bool {
	if len(idx) == 0 {
		return true
	}
	for i, cur := range idx {
		if i == 0 {
			if end.Before(cur.Start) {
				return true
			}
		} else if start.After(idx[i-1].End) && end.Before(cur.Start) {
			return true
		}
	}
	return start.After(idx[len(idx)-1].End)
}
