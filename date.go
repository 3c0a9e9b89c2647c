package rates

import (
	"encoding/json"
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// Date a calendar date accepted by queries: either a DateString already in wire form or a
// CalendarDate.
type Date interface {
	wireDate() string
}

// NormalizeDate returns the wire form (YYYY-MM-DD) of a date. Strings are returned unchanged.
func NormalizeDate(d Date) string {
	return d.wireDate()
}

// NormalizeDates normalizes each date in order.
func NormalizeDates(dates []Date) []string {
	out := make([]string, len(dates))
	for i, d := range dates {
		out[i] = NormalizeDate(d)
	}
	return out
}

// DateString a date already serialized by the caller. It is trusted as is.
type DateString string

func (s DateString) wireDate() string {
	return string(s)
}

// CalendarDate a naive calendar date, without time of day or location.
type CalendarDate struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location. The time of day is dropped.
func DateOf(t time.Time) CalendarDate {
	var d CalendarDate
	d.Year, d.Month, d.Day = t.Date()
	return d
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (CalendarDate, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return CalendarDate{}, err
	}
	return DateOf(t), nil
}

func (d CalendarDate) wireDate() string {
	return d.String()
}

// String returns the date in YYYY-MM-DD form.
func (d CalendarDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// AddDays returns the date n days after d. n may be negative.
func (d CalendarDate) AddDays(n int) CalendarDate {
	return DateOf(d.in(time.UTC).AddDate(0, 0, n))
}

// After reports whether d is after other.
func (d CalendarDate) After(other CalendarDate) bool {
	return d.in(time.UTC).After(other.in(time.UTC))
}

func (d CalendarDate) in(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d CalendarDate) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *CalendarDate) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// DateRange returns every calendar date of a timeframe, start and end included. It reports
// false when the end is omitted or either bound is not a parseable calendar date.
func DateRange(tf Timeframe) ([]string, bool) {
	if tf.Start == nil || tf.End == nil {
		return nil, false
	}
	start, err := ParseDate(NormalizeDate(tf.Start))
	if err != nil {
		return nil, false
	}
	end, err := ParseDate(NormalizeDate(tf.End))
	if err != nil {
		return nil, false
	}
	var dates []string
	for d := start; !d.After(end); d = d.AddDays(1) {
		dates = append(dates, d.String())
	}
	return dates, true
}
