// Package rtc reads the time of day for the clock face, either from a DS1302 real-time clock chip
// or from the host's clock.
package rtc

import (
	"fmt"
	"time"
)

// Time is a time of day split into the decimal digits the display shows, the way a BCD clock chip
// stores it.
type Time struct {
	TenYear, Year     uint8
	TenMonth, Month   uint8
	TenDay, Day       uint8
	Weekday           uint8 // 1-7
	TenHour, Hour     uint8
	TenMinute, Minute uint8
	TenSecond, Second uint8
	Hour12            bool // TenHour and Hour are 1-12, and PM is meaningful
	PM                bool
	Halted            bool // the oscillator is stopped
}

func (t Time) String() string {
	suffix := ""
	if t.Hour12 {
		suffix = " AM"
		if t.PM {
			suffix = " PM"
		}
	}
	return fmt.Sprintf("20%d%d-%d%d-%d%d %d%d:%d%d:%d%d%s", t.TenYear, t.Year, t.TenMonth, t.Month, t.TenDay, t.Day, t.TenHour, t.Hour, t.TenMinute, t.Minute, t.TenSecond, t.Second, suffix)
}

// Clock is something that knows what time it is.
type Clock interface {
	Now() (Time, error)
}

// FromTime splits t into digits.  If hour12 is set, hours are 1-12.
func FromTime(t time.Time, hour12 bool) Time {
	h, m, s := t.Clock()
	y, mon, d := t.Date()
	result := Time{
		TenYear:   uint8(y % 100 / 10),
		Year:      uint8(y % 10),
		TenMonth:  uint8(int(mon) / 10),
		Month:     uint8(int(mon) % 10),
		TenDay:    uint8(d / 10),
		Day:       uint8(d % 10),
		Weekday:   uint8(t.Weekday()) + 1,
		TenMinute: uint8(m / 10),
		Minute:    uint8(m % 10),
		TenSecond: uint8(s / 10),
		Second:    uint8(s % 10),
		Hour12:    hour12,
	}
	if hour12 {
		result.PM = h >= 12
		h %= 12
		if h == 0 {
			h = 12
		}
	}
	result.TenHour, result.Hour = uint8(h/10), uint8(h%10)
	return result
}

// System is a Clock that reads the host's clock.
type System struct {
	Location *time.Location // defaults to time.Local
	Hour12   bool
	now      func() time.Time
}

// Now implements Clock.
func (s *System) Now() (Time, error) {
	now := time.Now
	if s.now != nil {
		now = s.now
	}
	loc := s.Location
	if loc == nil {
		loc = time.Local
	}
	return FromTime(now().In(loc), s.Hour12), nil
}
