package model

import "time"

// Date returns the civil date y-m-d as UTC midnight.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// Day truncates t to its civil date.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return Date(y, m, d)
}

// DayBefore returns the civil date preceding d.
func DayBefore(d time.Time) time.Time {
	return Day(d).AddDate(0, 0, -1)
}

// DayAfter returns the civil date following d.
func DayAfter(d time.Time) time.Time {
	return Day(d).AddDate(0, 0, 1)
}

// DatePtr is a convenience for optional dates.
func DatePtr(year int, month time.Month, day int) *time.Time {
	d := Date(year, month, day)
	return &d
}

// Period is a validity interval. End is inclusive; a nil End is open.
type Period struct {
	Start time.Time  `json:"start"`
	End   *time.Time `json:"end,omitempty"`
}

// Open reports whether the period has no end date.
func (p Period) Open() bool {
	return p.End == nil
}

// Contains reports whether day d falls inside the period.
func (p Period) Contains(d time.Time) bool {
	d = Day(d)
	if d.Before(Day(p.Start)) {
		return false
	}
	return p.End == nil || !d.After(Day(*p.End))
}

// Overlaps reports whether the two periods share at least one day.
func (p Period) Overlaps(o Period) bool {
	if p.End != nil && Day(*p.End).Before(Day(o.Start)) {
		return false
	}
	if o.End != nil && Day(*o.End).Before(Day(p.Start)) {
		return false
	}
	return true
}

// EndsBefore reports whether the period ends strictly before d.
func (p Period) EndsBefore(d time.Time) bool {
	return p.End != nil && Day(*p.End).Before(Day(d))
}

// Valid reports whether the end, if any, is not before the start.
func (p Period) Valid() bool {
	return p.End == nil || !Day(*p.End).Before(Day(p.Start))
}

// covers is shared by time-bounded relations where both ends may be open.
func covers(start, end *time.Time, d time.Time) bool {
	d = Day(d)
	if start != nil && Day(*start).After(d) {
		return false
	}
	return end == nil || !Day(*end).Before(d)
}
