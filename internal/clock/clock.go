package clock

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// MinLeadTime is the single lead-time policy: a reminder must resolve to an
// instant at least this far in the future. A wall time closer than this on the
// current day rolls over to tomorrow instead of being rejected.
const MinLeadTime = time.Minute

var (
	ErrInvalidHour     = errors.New("hour must be between 1 and 12")
	ErrInvalidMinute   = errors.New("minute must be between 0 and 59")
	ErrInvalidMeridiem = errors.New("meridiem must be AM or PM")
	ErrTooSoon         = errors.New("reminder time is in the past or too soon")
)

const (
	AM = "AM"
	PM = "PM"
)

// WallTime is a user-facing 12-hour clock reading.
type WallTime struct {
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Meridiem string `json:"meridiem"`
}

func (w WallTime) Validate() error {
	if w.Hour < 1 || w.Hour > 12 {
		return ErrInvalidHour
	}
	if w.Minute < 0 || w.Minute > 59 {
		return ErrInvalidMinute
	}
	if w.Meridiem != AM && w.Meridiem != PM {
		return ErrInvalidMeridiem
	}
	return nil
}

// Hour24 converts the 12-hour reading to a 24-hour value: 12 AM is 0,
// 12 PM stays 12, any other PM hour gains 12.
func (w WallTime) Hour24() int {
	h := w.Hour
	if w.Meridiem == PM && h != 12 {
		h += 12
	}
	if w.Meridiem == AM && h == 12 {
		h = 0
	}
	return h
}

func (w WallTime) String() string {
	return fmt.Sprintf("%02d:%02d %s", w.Hour, w.Minute, w.Meridiem)
}

// ParseWallTime parses "HH:MM" plus a meridiem into a WallTime.
func ParseWallTime(hhmm, meridiem string) (WallTime, error) {
	var h, m int
	if _, err := fmt.Sscanf(hhmm, "%d:%d", &h, &m); err != nil {
		return WallTime{}, fmt.Errorf("parse time %q: %w", hhmm, err)
	}
	w := WallTime{Hour: h, Minute: m, Meridiem: strings.ToUpper(strings.TrimSpace(meridiem))}
	if err := w.Validate(); err != nil {
		return WallTime{}, err
	}
	return w, nil
}

// Date is an explicit calendar day override.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate parses a "YYYY-MM-DD" date string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return Date{Year: t.Year(), Month: t.Month(), Day: t.Day()}, nil
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// Resolve turns a wall-clock reading into an absolute instant in now's
// location. Without an explicit date it uses today's date; if the result is
// less than MinLeadTime from now it advances exactly one day. With an explicit
// date there is no rollover: an instant closer than MinLeadTime is rejected
// with ErrTooSoon.
func Resolve(w WallTime, date *Date, now time.Time) (time.Time, error) {
	if err := w.Validate(); err != nil {
		return time.Time{}, err
	}

	loc := now.Location()

	if date != nil {
		at := time.Date(date.Year, date.Month, date.Day, w.Hour24(), w.Minute, 0, 0, loc)
		if at.Sub(now) < MinLeadTime {
			return time.Time{}, ErrTooSoon
		}
		return at, nil
	}

	at := time.Date(now.Year(), now.Month(), now.Day(), w.Hour24(), w.Minute, 0, 0, loc)
	if at.Sub(now) < MinLeadTime {
		at = at.AddDate(0, 0, 1)
	}
	return at, nil
}

// WallTimeOf reads the 12-hour wall clock off an absolute instant. Inverse of
// Hour24 for the hour component.
func WallTimeOf(t time.Time) WallTime {
	h := t.Hour()
	meridiem := AM
	switch {
	case h == 0:
		h = 12
	case h == 12:
		meridiem = PM
	case h > 12:
		h -= 12
		meridiem = PM
	}
	return WallTime{Hour: h, Minute: t.Minute(), Meridiem: meridiem}
}

// NextDaily returns the next occurrence of the wall time strictly after now,
// used for everyday-repeat reminders.
func NextDaily(w WallTime, now time.Time) time.Time {
	at := time.Date(now.Year(), now.Month(), now.Day(), w.Hour24(), w.Minute, 0, 0, now.Location())
	if !at.After(now) {
		at = at.AddDate(0, 0, 1)
	}
	return at
}
