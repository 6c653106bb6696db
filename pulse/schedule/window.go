// Package schedule answers whether dispatch is permitted at a given instant
// and how long to wait between dispatches.
package schedule

import (
	"time"

	"github.com/Diomandeee/learnnko-sub000/am"
)

// Window is a compiled schedule: a calendar range, an hour range and a set of weekdays
type Window struct {
	loc       *time.Location
	start     time.Time // first active date, midnight
	end       time.Time // day after the last active date, midnight
	startHour int
	endHour   int
	days      map[time.Weekday]bool
}

// NewWindow compiles cfg. It fails on the same inputs Config.Validate rejects.
func NewWindow(cfg am.ScheduleConfig) (*Window, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	start, end, err := cfg.Dates(loc)
	if err != nil {
		return nil, err
	}
	days, err := cfg.Days()
	if err != nil {
		return nil, err
	}
	return &Window{
		loc:       loc,
		start:     start,
		end:       end.AddDate(0, 0, 1),
		startHour: cfg.ActiveHours.Start,
		endHour:   cfg.ActiveHours.End,
		days:      days,
	}, nil
}

// IsWithinSchedule reports whether now falls inside the window described by cfg.
// An invalid cfg never admits dispatch.
func IsWithinSchedule(now time.Time, cfg am.ScheduleConfig) bool {
	w, err := NewWindow(cfg)
	if err != nil {
		return false
	}
	return w.Contains(now)
}

// Contains reports whether now is inside the window
func (w *Window) Contains(now time.Time) bool {
	now = now.In(w.loc)
	if now.Before(w.start) || !now.Before(w.end) {
		return false
	}
	if h := now.Hour(); h < w.startHour || h >= w.endHour {
		return false
	}
	return w.days[now.Weekday()]
}

// Ended reports whether the calendar range is over at now
func (w *Window) Ended(now time.Time) bool {
	return !now.In(w.loc).Before(w.end)
}

// NextOpening returns the earliest instant >= now inside the window.
// ok is false when the window never opens again.
func (w *Window) NextOpening(now time.Time) (t time.Time, ok bool) {
	now = now.In(w.loc)
	if w.Contains(now) {
		return now, true
	}

	day := midnight(now)
	if day.Before(w.start) {
		day = w.start
	}
	for ; day.Before(w.end); day = day.AddDate(0, 0, 1) {
		if !w.days[day.Weekday()] {
			continue
		}
		open := at(day, w.startHour)
		closeAt := at(day, w.endHour)
		if open.Before(now) {
			open = now
		}
		if open.Before(closeAt) {
			return open, true
		}
	}
	return time.Time{}, false
}

// ActiveDates returns the dates in [from, window end) on which the window opens,
// stopping after limit entries. A non-positive limit means no limit.
func (w *Window) ActiveDates(from time.Time, limit int) []time.Time {
	var out []time.Time
	day := midnight(from.In(w.loc))
	if day.Before(w.start) {
		day = w.start
	}
	for ; day.Before(w.end); day = day.AddDate(0, 0, 1) {
		if !w.days[day.Weekday()] {
			continue
		}
		// today only counts while its active hours are still ahead
		if day.Equal(midnight(from.In(w.loc))) && !from.In(w.loc).Before(at(day, w.endHour)) {
			continue
		}
		out = append(out, day)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

// Location returns the window's time zone
func (w *Window) Location() *time.Location {
	return w.loc
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// at returns hour o'clock on day; hour 24 is the following midnight
func at(day time.Time, hour int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, hour, 0, 0, 0, day.Location())
}
