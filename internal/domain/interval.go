package domain

import (
	"sort"
	"time"
)

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func NewInterval(start, end time.Time) Interval {
	return Interval{Start: start, End: end}
}

// Valid reports whether the interval has a positive length.
func (i Interval) Valid() bool {
	return i.End.After(i.Start)
}

func (i Interval) Duration() time.Duration {
	if !i.Valid() {
		return 0
	}
	return i.End.Sub(i.Start)
}

// Overlaps reports whether a and b share any instant. Abutting intervals
// (a.End == b.Start) do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

func (i Interval) Overlaps(other Interval) bool {
	return Overlaps(i, other)
}

// Contains reports whether other lies entirely inside i.
func (i Interval) Contains(other Interval) bool {
	return !other.Start.Before(i.Start) && !other.End.After(i.End)
}

// Expand widens the interval by buffer on both ends. A non-positive
// buffer returns the interval unchanged.
func (i Interval) Expand(buffer time.Duration) Interval {
	if buffer <= 0 {
		return i
	}
	return Interval{Start: i.Start.Add(-buffer), End: i.End.Add(buffer)}
}

// Clamp cuts the interval down to bounds. The result may be invalid when
// the two do not overlap.
func (i Interval) Clamp(bounds Interval) Interval {
	out := i
	if out.Start.Before(bounds.Start) {
		out.Start = bounds.Start
	}
	if out.End.After(bounds.End) {
		out.End = bounds.End
	}
	return out
}

// Merge sorts the intervals and coalesces overlapping or touching ones.
// Invalid intervals are dropped.
func Merge(in []Interval) []Interval {
	valid := make([]Interval, 0, len(in))
	for _, iv := range in {
		if iv.Valid() {
			valid = append(valid, iv)
		}
	}

	sort.Slice(valid, func(a, b int) bool {
		return valid[a].Start.Before(valid[b].Start)
	})

	var out []Interval
	for _, iv := range valid {
		if n := len(out); n > 0 && !iv.Start.After(out[n-1].End) {
			if iv.End.After(out[n-1].End) {
				out[n-1].End = iv.End
			}
			continue
		}
		out = append(out, iv)
	}

	return out
}

// Subtract removes every occupied span from base and returns the free
// spans left over, in chronological order.
func Subtract(base Interval, occupied []Interval) []Interval {
	if !base.Valid() {
		return nil
	}

	var free []Interval
	cursor := base.Start

	for _, occ := range Merge(occupied) {
		occ = occ.Clamp(base)
		if !occ.Valid() {
			continue
		}
		if occ.Start.After(cursor) {
			free = append(free, Interval{Start: cursor, End: occ.Start})
		}
		if occ.End.After(cursor) {
			cursor = occ.End
		}
	}

	if base.End.After(cursor) {
		free = append(free, Interval{Start: cursor, End: base.End})
	}

	return free
}
