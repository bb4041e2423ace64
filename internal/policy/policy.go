// Package policy decides when a scraper job is due and when it runs next.
// All functions are pure; settings are assumed to be validated on write.
package policy

import (
	"fmt"
	"time"

	"owl_course/internal/model"
)

// RunTimeLayout is the wall-clock format of a daily run time.
const RunTimeLayout = "15:04"

// Bounds enforced when an administrator updates a schedule.
const (
	MinIntervalHours    = 1
	MaxIntervalHours    = 72
	MinIntervalDays     = 1
	MaxIntervalDays     = 30
	MinMaxPages         = 10
	MaxUdemyPages       = 200
	MaxStudyBulletPages = 711
	MinTimeoutMinutes   = 1
	MaxTimeoutMinutes   = 180
)

// Settings is the slice of persisted state the policy looks at for one kind.
type Settings struct {
	SystemActive  bool
	Enabled       bool
	IntervalHours int
	IntervalDays  int
	RunTime       string
	LastRun       *time.Time
}

// IsDue reports whether kind should run at now.
func IsDue(kind model.JobKind, s Settings, now time.Time) bool {
	if !s.SystemActive || !s.Enabled {
		return false
	}
	switch kind {
	case model.KindUdemy:
		if s.LastRun == nil {
			return true
		}
		return !now.Before(s.LastRun.Add(hours(s.IntervalHours)))
	case model.KindStudyBullet:
		h, m := runTimeOrDefault(s.RunTime)
		if s.LastRun == nil {
			return !now.Before(at(now, 0, h, m))
		}
		last := s.LastRun.In(now.Location())
		return !now.Before(at(last, s.IntervalDays, h, m))
	}
	return false
}

// NextRun returns the next due time of kind for a run that started at startedAt.
func NextRun(kind model.JobKind, s Settings, startedAt time.Time) time.Time {
	if kind == model.KindStudyBullet {
		h, m := runTimeOrDefault(s.RunTime)
		return at(startedAt, s.IntervalDays, h, m)
	}
	return startedAt.Add(hours(s.IntervalHours))
}

// ParseRunTime validates an "HH:MM" run time and returns its parts.
func ParseRunTime(v string) (hour, minute int, err error) {
	t, err := time.Parse(RunTimeLayout, v)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid run time %q: want HH:MM", v)
	}
	return t.Hour(), t.Minute(), nil
}

// ClampIntervalHours bounds an hourly interval to [1,72].
func ClampIntervalHours(n int) int { return clamp(n, MinIntervalHours, MaxIntervalHours) }

// ClampIntervalDays bounds a daily interval to [1,30].
func ClampIntervalDays(n int) int { return clamp(n, MinIntervalDays, MaxIntervalDays) }

// ClampTimeout bounds a scraper timeout to [1,180] minutes.
func ClampTimeout(n int) int { return clamp(n, MinTimeoutMinutes, MaxTimeoutMinutes) }

// ClampMaxPages bounds the page budget of kind.
func ClampMaxPages(kind model.JobKind, n int) int {
	if kind == model.KindStudyBullet {
		return clamp(n, MinMaxPages, MaxStudyBulletPages)
	}
	return clamp(n, MinMaxPages, MaxUdemyPages)
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}

func hours(n int) time.Duration {
	return time.Duration(n) * time.Hour
}

// at returns the date of t shifted by days, at hour:minute in t's location.
func at(t time.Time, days, hour, minute int) time.Time {
	y, mo, d := t.Date()
	return time.Date(y, mo, d+days, hour, minute, 0, 0, t.Location())
}

func runTimeOrDefault(v string) (int, int) {
	h, m, err := ParseRunTime(v)
	if err != nil {
		return 14, 0
	}
	return h, m
}
