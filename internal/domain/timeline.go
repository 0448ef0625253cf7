package domain

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrIndexOutOfRange is returned when a timeline index falls outside the day range.
	ErrIndexOutOfRange = errors.New("timeline index out of range")
	// ErrUnknownMode is returned for unrecognized filtering modes.
	ErrUnknownMode = errors.New("unknown timeline mode")
)

// Mode is the timeline filtering policy.
type Mode string

const (
	// ModeCumulative shows every event up to and including the selected day.
	ModeCumulative Mode = "cumulative"
	// ModeDaily shows only the events of the selected day.
	ModeDaily Mode = "daily"
)

// ParseMode validates a mode name. Empty selects cumulative.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeCumulative:
		return ModeCumulative, nil
	case ModeDaily:
		return ModeDaily, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Timeline maps day indices onto a time-sorted earthquake list.
// It is immutable after construction and safe for concurrent reads.
type Timeline struct {
	quakes []Quake
	days   []time.Time
	loc    *time.Location
}

// NewTimeline sorts a copy of quakes by time and computes the contiguous day
// range from the first event day to the last, in loc (UTC when nil).
func NewTimeline(quakes []Quake, loc *time.Location) *Timeline {
	if loc == nil {
		loc = time.UTC
	}

	sorted := make([]Quake, len(quakes))
	copy(sorted, quakes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time.Before(sorted[j].Time)
	})

	tl := &Timeline{quakes: sorted, loc: loc}
	if len(sorted) == 0 {
		return tl
	}

	first := StartOfDay(sorted[0].Time, loc)
	last := StartOfDay(sorted[len(sorted)-1].Time, loc)
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		tl.days = append(tl.days, d)
	}
	return tl
}

// StartOfDay truncates t to local midnight in loc. Calendar arithmetic is used
// instead of Truncate so days shortened or lengthened by DST stay aligned.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// Len returns the number of days on the timeline.
func (tl *Timeline) Len() int { return len(tl.days) }

// Total returns the number of events on the timeline.
func (tl *Timeline) Total() int { return len(tl.quakes) }

// Location returns the location days are evaluated in.
func (tl *Timeline) Location() *time.Location { return tl.loc }

// Quakes returns the time-sorted events. Callers must not modify the slice.
func (tl *Timeline) Quakes() []Quake { return tl.quakes }

// Start returns the first day, or zero time for an empty timeline.
func (tl *Timeline) Start() time.Time {
	if len(tl.days) == 0 {
		return time.Time{}
	}
	return tl.days[0]
}

// End returns the last day, or zero time for an empty timeline.
func (tl *Timeline) End() time.Time {
	if len(tl.days) == 0 {
		return time.Time{}
	}
	return tl.days[len(tl.days)-1]
}

// DateAt returns the midnight starting day i.
func (tl *Timeline) DateAt(i int) (time.Time, error) {
	if i < 0 || i >= len(tl.days) {
		return time.Time{}, fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, i, len(tl.days))
	}
	return tl.days[i], nil
}

// IndexOf returns the index of the day containing t, clamped to the range ends.
// It returns -1 for an empty timeline.
func (tl *Timeline) IndexOf(t time.Time) int {
	if len(tl.days) == 0 {
		return -1
	}
	day := StartOfDay(t, tl.loc)
	i := sort.Search(len(tl.days), func(i int) bool { return !tl.days[i].Before(day) })
	if i >= len(tl.days) {
		return len(tl.days) - 1
	}
	if !tl.days[i].Equal(day) && i > 0 {
		return i - 1
	}
	return i
}

// Frame filters the events for day i under mode.
func (tl *Timeline) Frame(mode Mode, i int) (Frame, error) {
	day, err := tl.DateAt(i)
	if err != nil {
		return Frame{}, err
	}
	next := day.AddDate(0, 0, 1)

	var lo int
	switch mode {
	case ModeCumulative:
		lo = 0
	case ModeDaily:
		lo = tl.searchFrom(day)
	default:
		return Frame{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	hi := tl.searchFrom(next)

	quakes := make([]Quake, hi-lo)
	copy(quakes, tl.quakes[lo:hi])

	return Frame{
		Index:       i,
		Date:        day,
		Mode:        mode,
		Quakes:      quakes,
		Total:       len(tl.quakes),
		GeneratedAt: clock.Now(),
	}, nil
}

// searchFrom returns the index of the first event at or after t.
func (tl *Timeline) searchFrom(t time.Time) int {
	return sort.Search(len(tl.quakes), func(i int) bool {
		return !tl.quakes[i].Time.Before(t)
	})
}

// FilterRange returns the events whose time falls within the calendar days
// from..to inclusive, evaluated in loc (UTC when nil).
func FilterRange(quakes []Quake, from, to time.Time, loc *time.Location) []Quake {
	if loc == nil {
		loc = time.UTC
	}
	lo := StartOfDay(from, loc)
	hi := StartOfDay(to, loc).AddDate(0, 0, 1)

	out := make([]Quake, 0, len(quakes))
	for i := range quakes {
		t := quakes[i].Time
		if !t.Before(lo) && t.Before(hi) {
			out = append(out, quakes[i])
		}
	}
	return out
}
