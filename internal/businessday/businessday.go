// Package businessday maps wall-clock instants onto a branch's accounting day.
//
// A business day runs from the branch's closing hour to the same hour on the
// next calendar day, in one fixed civil timezone. The zone is a fixed UTC
// offset: daylight-saving transitions are not modelled, so a deployment in a
// zone that observes DST would see a one-hour skew for part of the year.
package businessday

import (
	"fmt"
	"math"
	"strings"
	"time"
)

const (
	DefaultClosingHour = 6

	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02 15:04:05"
)

// Location is the restaurant's civil timezone (UTC+03:00, no DST).
var Location = time.FixedZone("UTC+03", 3*60*60)

// Window is the half-open interval [Start, End) of one business day. Label is
// always the calendar date of Start.
type Window struct {
	Label string    `json:"date"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (w Window) StartDate() string {
	return w.Start.Format(DateLayout)
}

func (w Window) EndDate() string {
	return w.End.Format(DateLayout)
}

func (w Window) StartTimestamp() string {
	return w.Start.Format(TimestampLayout)
}

func (w Window) EndTimestamp() string {
	return w.End.Format(TimestampLayout)
}

func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// NormalizeClosingHour returns h when it is a valid hour of day and the
// default closing hour otherwise.
func NormalizeClosingHour(h int) int {
	if h < 0 || h > 23 {
		return DefaultClosingHour
	}
	return h
}

func NormalizeClosingHourFloat(h float64) int {
	if math.IsNaN(h) || math.IsInf(h, 0) {
		return DefaultClosingHour
	}
	if h != math.Trunc(h) {
		return DefaultClosingHour
	}
	return NormalizeClosingHour(int(h))
}

type Calculator struct {
	loc *time.Location
	now func() time.Time
}

func New(loc *time.Location) *Calculator {
	if loc == nil {
		loc = Location
	}
	return &Calculator{loc: loc, now: time.Now}
}

// WithClock returns a copy of the calculator that reads "now" from clock.
func (c *Calculator) WithClock(clock func() time.Time) *Calculator {
	cp := *c
	if clock != nil {
		cp.now = clock
	}
	return &cp
}

func (c *Calculator) Current(closingHour int) Window {
	return c.At(c.now(), closingHour)
}

func (c *Calculator) At(t time.Time, closingHour int) Window {
	closingHour = NormalizeClosingHour(closingHour)
	local := t.In(c.loc)

	todayClose := time.Date(local.Year(), local.Month(), local.Day(), closingHour, 0, 0, 0, c.loc)
	start := todayClose
	if local.Hour()*60+local.Minute() < closingHour*60 {
		start = todayClose.AddDate(0, 0, -1)
	}
	return windowFrom(start)
}

// ForDate returns the business day labelled with the given YYYY-MM-DD date.
func (c *Calculator) ForDate(label string, closingHour int) (Window, error) {
	day, err := time.ParseInLocation(DateLayout, strings.TrimSpace(label), c.loc)
	if err != nil {
		return Window{}, fmt.Errorf("invalid business date %q: expected YYYY-MM-DD", label)
	}
	closingHour = NormalizeClosingHour(closingHour)
	return windowFrom(time.Date(day.Year(), day.Month(), day.Day(), closingHour, 0, 0, 0, c.loc)), nil
}

func windowFrom(start time.Time) Window {
	return Window{
		Label: start.Format(DateLayout),
		Start: start,
		End:   start.AddDate(0, 0, 1),
	}
}
