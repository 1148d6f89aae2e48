package calendar

import (
	"fmt"
	"time"
)

const MonthLayout = "2006-01"

// Month identifies a calendar month.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) before(o Month) bool {
	return m.Year < o.Year || (m.Year == o.Year && m.Month < o.Month)
}

func (m Month) add(n int) Month {
	t := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	return Month{Year: t.Year(), Month: t.Month()}
}

// ParseMonth parses YYYY-MM.
func ParseMonth(v string) (Month, error) {
	t, err := time.Parse(MonthLayout, v)
	if err != nil {
		return Month{}, fmt.Errorf("month must be formatted as YYYY-MM")
	}
	return Month{Year: t.Year(), Month: t.Month()}, nil
}

// CurrentMonth is the month containing now in the clinic location.
func (p Policy) CurrentMonth(now time.Time) Month {
	n := now.In(p.Location)
	return Month{Year: n.Year(), Month: n.Month()}
}

// Step moves from current by step months. The result never precedes the
// current month, so going back from the current month is a no-op.
func (p Policy) Step(now time.Time, current Month, step int) Month {
	floor := p.CurrentMonth(now)
	next := current.add(step)
	if next.before(floor) {
		return floor
	}
	return next
}

// DayCell is one day of a month view.
type DayCell struct {
	Date       string `json:"date"`
	Weekday    string `json:"weekday"`
	Past       bool   `json:"past"`
	Blocked    bool   `json:"blocked"`
	Selectable bool   `json:"selectable"`
}

// MonthView is a month with its navigation state.
type MonthView struct {
	Month     string    `json:"month"`
	CanGoBack bool      `json:"can_go_back"`
	Days      []DayCell `json:"days"`
}

// View lays out the days of a month, marking past and blocked days.
func (p Policy) View(now time.Time, m Month) MonthView {
	today := p.Today(now)
	first := time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, p.Location)
	view := MonthView{
		Month:     m.String(),
		CanGoBack: p.CurrentMonth(now).before(m),
	}
	for d := first; d.Month() == m.Month; d = d.AddDate(0, 0, 1) {
		past := d.Before(today)
		blocked := p.IsBlocked(d.Weekday())
		view.Days = append(view.Days, DayCell{
			Date:       d.Format(DateLayout),
			Weekday:    d.Weekday().String(),
			Past:       past,
			Blocked:    blocked,
			Selectable: !past && !blocked,
		})
	}
	return view
}
