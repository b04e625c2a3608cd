// Package scheduler decides when task reminders fire and dispatches them
// at most once per (task, trigger kind, occurrence).
package scheduler

import (
	"fmt"
	"time"

	"famcal/internal/storage"
)

// TriggerKind names a reminder rule.
type TriggerKind string

const (
	TriggerDayBefore  TriggerKind = "day_before"
	TriggerHourBefore TriggerKind = "hour_before"
)

// Trigger identifies one reminder for one task occurrence. Tasks are
// non-recurring, so the occurrence is the task's date.
type Trigger struct {
	TaskID     int64
	Kind       TriggerKind
	Occurrence string
}

// morningCutoffHour bounds day-before reminders to the local morning so
// users are not woken at night.
const morningCutoffHour = 12

// Hour-before reminders fire while the distance to the start time is inside
// this window; the slack tolerates scan jitter.
const (
	hourBeforeMin = 0.5
	hourBeforeMax = 1.5
)

// Evaluate returns every trigger due for t at now. Pure; no I/O.
//
// The two rules are independent and may both fire in one scan. Evaluate does
// not dedupe across scans; that is the dispatch gate's job.
func Evaluate(now time.Time, t storage.Task) ([]Trigger, error) {
	date, err := time.ParseInLocation(storage.DateLayout, t.Date, now.Location())
	if err != nil {
		return nil, fmt.Errorf("task %d: bad date %q: %w", t.ID, t.Date, err)
	}

	var out []Trigger

	if t.NotifyBeforeDays != nil {
		tomorrow := now.AddDate(0, 0, 1)
		if sameDate(date, tomorrow) && now.Hour() < morningCutoffHour {
			out = append(out, Trigger{TaskID: t.ID, Kind: TriggerDayBefore, Occurrence: t.Date})
		}
	}

	if t.NotifyBeforeHours != nil && t.StartTime != nil {
		start, err := combine(date, *t.StartTime, now.Location())
		if err != nil {
			return out, fmt.Errorf("task %d: bad start time %q: %w", t.ID, *t.StartTime, err)
		}
		hours := start.Sub(now).Hours()
		if hours >= hourBeforeMin && hours <= hourBeforeMax {
			out = append(out, Trigger{TaskID: t.ID, Kind: TriggerHourBefore, Occurrence: t.Date})
		}
	}

	return out, nil
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// combine pins a stored clock value onto a calendar date.
func combine(date time.Time, clock string, loc *time.Location) (time.Time, error) {
	c, err := parseClock(clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		c.Hour(), c.Minute(), c.Second(), 0, loc), nil
}

func parseClock(s string) (time.Time, error) {
	for _, layout := range []string{storage.ClockLayout, "15:04:05"} {
		if c, err := time.Parse(layout, s); err == nil {
			return c, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized clock value %q", s)
}
