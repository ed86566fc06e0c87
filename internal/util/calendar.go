package util

import (
	"time"
)

// USSession describes the regular NYSE session: weekdays 9:30 to 16:00
// America/New_York. Exchange holidays are not modelled.
type USSession struct {
	loc *time.Location
}

// NewUSSession loads the New York time zone. If tzdata is unavailable it
// falls back to a fixed EST offset.
func NewUSSession() *USSession {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.FixedZone("EST", -5*60*60)
	}
	return &USSession{loc: loc}
}

func (s *USSession) bounds(day time.Time) (open, close time.Time) {
	y, m, d := day.Date()
	open = time.Date(y, m, d, 9, 30, 0, 0, s.loc)
	close = time.Date(y, m, d, 16, 0, 0, 0, s.loc)
	return open, close
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// IsOpen reports whether the regular session is open at t.
func (s *USSession) IsOpen(t time.Time) bool {
	local := t.In(s.loc)
	if isWeekend(local) {
		return false
	}
	open, close := s.bounds(local)
	return !local.Before(open) && local.Before(close)
}

// NextOpen returns the next session open strictly after t, or t's own open
// if t is earlier that day.
func (s *USSession) NextOpen(t time.Time) time.Time {
	local := t.In(s.loc)
	for i := 0; i < 8; i++ {
		day := local.AddDate(0, 0, i)
		if isWeekend(day) {
			continue
		}
		open, _ := s.bounds(day)
		if open.After(local) {
			return open
		}
	}
	return time.Time{}
}
