// Package calendar decides which (date, time-of-day) slots the clinic offers.
//
// A Policy carries the clinic time zone, the weekdays the clinic is closed and
// the ordered grid of bookable times. All "today" comparisons are made in the
// policy's location, never in the server's local zone.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	_ "time/tzdata"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Common errors returned by slot validation.
var (
	ErrInvalidDate = errors.New("date must be formatted as YYYY-MM-DD")
	ErrInvalidTime = errors.New("time must be formatted as HH:MM")
	ErrPastDate    = errors.New("cannot book a date in the past")
	ErrBlockedDay  = errors.New("the clinic is closed on this day")
	ErrOffGrid     = errors.New("time is outside the clinic schedule")
)

// Slot is a candidate (date, time-of-day) pair. It is derived, never stored.
type Slot struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

func (s Slot) String() string {
	return s.Date + "T" + s.Time
}

// ParseSlot accepts "YYYY-MM-DDTHH:MM" or "YYYY-MM-DD HH:MM".
func ParseSlot(v string) (Slot, error) {
	v = strings.TrimSpace(v)
	sep := strings.IndexAny(v, "T ")
	if sep < 0 {
		return Slot{}, ErrInvalidTime
	}
	return Slot{Date: v[:sep], Time: v[sep+1:]}, nil
}

// Policy is the clinic calendar.
type Policy struct {
	Location        *time.Location
	BlockedWeekdays []time.Weekday
	Times           []string
}

// DefaultPolicy is Africa/Algiers, closed Friday and Saturday, 08:00 to 15:30
// every 30 minutes.
func DefaultPolicy() Policy {
	loc, err := time.LoadLocation("Africa/Algiers")
	if err != nil {
		loc = time.FixedZone("CET", 3600)
	}
	times, _ := NewGrid("08:00", "15:30", 30*time.Minute)
	return Policy{
		Location:        loc,
		BlockedWeekdays: []time.Weekday{time.Friday, time.Saturday},
		Times:           times,
	}
}

// NewGrid builds the ordered times from start to end inclusive.
func NewGrid(start, end string, interval time.Duration) ([]string, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("grid interval must be positive")
	}
	from, err := time.Parse(TimeLayout, start)
	if err != nil {
		return nil, fmt.Errorf("grid start: %w", ErrInvalidTime)
	}
	to, err := time.Parse(TimeLayout, end)
	if err != nil {
		return nil, fmt.Errorf("grid end: %w", ErrInvalidTime)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("grid end %s is before start %s", end, start)
	}
	var out []string
	for t := from; !t.After(to); t = t.Add(interval) {
		out = append(out, t.Format(TimeLayout))
	}
	return out, nil
}

// ParseWeekday accepts English day names or their three letter prefix.
func ParseWeekday(v string) (time.Weekday, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if v == name || (len(v) == 3 && strings.HasPrefix(name, v)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", v)
}

// IsBlocked reports whether the clinic is closed on the weekday.
func (p Policy) IsBlocked(d time.Weekday) bool {
	for _, b := range p.BlockedWeekdays {
		if b == d {
			return true
		}
	}
	return false
}

// InGrid reports whether the time of day is one of the bookable times.
func (p Policy) InGrid(hhmm string) bool {
	i := sort.SearchStrings(p.Times, hhmm)
	return i < len(p.Times) && p.Times[i] == hhmm
}

// Today returns midnight of the current day in the clinic location.
func (p Policy) Today(now time.Time) time.Time {
	n := now.In(p.Location)
	return time.Date(n.Year(), n.Month(), n.Day(), 0, 0, 0, 0, p.Location)
}

// ParseDate parses a YYYY-MM-DD date in the clinic location.
func (p Policy) ParseDate(v string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, v, p.Location)
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return d, nil
}

// Instant converts a slot to an absolute time without validating it.
func (p Policy) Instant(s Slot) (time.Time, error) {
	d, err := p.ParseDate(s.Date)
	if err != nil {
		return time.Time{}, err
	}
	tod, err := time.Parse(TimeLayout, s.Time)
	if err != nil {
		return time.Time{}, ErrInvalidTime
	}
	return time.Date(d.Year(), d.Month(), d.Day(), tod.Hour(), tod.Minute(), 0, 0, p.Location), nil
}

// SlotOf is the inverse of Instant.
func (p Policy) SlotOf(t time.Time) Slot {
	t = t.In(p.Location)
	return Slot{Date: t.Format(DateLayout), Time: t.Format(TimeLayout)}
}

// Validate checks a slot for booking or rescheduling and returns its instant.
// A date before today, a blocked weekday and a time outside the grid are all
// rejected. Later times on the current day are accepted.
func (p Policy) Validate(now time.Time, s Slot) (time.Time, error) {
	at, err := p.Instant(s)
	if err != nil {
		return time.Time{}, err
	}
	day := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, p.Location)
	if day.Before(p.Today(now)) {
		return time.Time{}, ErrPastDate
	}
	if p.IsBlocked(day.Weekday()) {
		return time.Time{}, fmt.Errorf("%w (%s)", ErrBlockedDay, day.Weekday())
	}
	if !p.InGrid(s.Time) {
		return time.Time{}, fmt.Errorf("%w: %s", ErrOffGrid, s.Time)
	}
	return at, nil
}

// TimeCell is one entry of a day's grid.
type TimeCell struct {
	Time       string `json:"time"`
	Selectable bool   `json:"selectable"`
}

// DaySchedule is the grid offered for one date.
type DaySchedule struct {
	Date       string     `json:"date"`
	Weekday    string     `json:"weekday"`
	Selectable bool       `json:"selectable"`
	Reason     string     `json:"reason,omitempty"`
	Times      []TimeCell `json:"times"`
}

// Day lists the grid for a date. Every time is unselectable when the date is
// in the past or on a blocked weekday.
func (p Policy) Day(now time.Time, date string) (DaySchedule, error) {
	d, err := p.ParseDate(date)
	if err != nil {
		return DaySchedule{}, err
	}
	out := DaySchedule{Date: date, Weekday: d.Weekday().String(), Selectable: true}
	switch {
	case d.Before(p.Today(now)):
		out.Selectable, out.Reason = false, ErrPastDate.Error()
	case p.IsBlocked(d.Weekday()):
		out.Selectable, out.Reason = false, ErrBlockedDay.Error()
	}
	out.Times = make([]TimeCell, 0, len(p.Times))
	for _, t := range p.Times {
		out.Times = append(out.Times, TimeCell{Time: t, Selectable: out.Selectable})
	}
	return out, nil
}
