package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"owl_course/internal/model"
	"owl_course/internal/policy"
	"owl_course/internal/settings"
)

// ErrNotSaved is returned when a settings update could not be persisted.
var ErrNotSaved = errors.New("settings not saved")

// KindStatus is the dashboard view of one job kind.
type KindStatus struct {
	Kind            model.JobKind `json:"kind"`
	Enabled         bool          `json:"enabled"`
	IntervalHours   int           `json:"interval_hours,omitempty"`
	IntervalDays    int           `json:"interval_days,omitempty"`
	RunTime         string        `json:"run_time,omitempty"`
	MaxPages        int           `json:"max_pages"`
	TimeoutMinutes  int           `json:"timeout_minutes"`
	LastRun         *time.Time    `json:"last_run"`
	NextRun         *time.Time    `json:"next_run"`
	RunsCount       int           `json:"runs_count"`
	SuccessRate     float64       `json:"success_rate"`
	LastResult      string        `json:"last_result"`
	LastExecutionID string        `json:"last_execution_id,omitempty"`
	Running         bool          `json:"running"`
}

// Status is a best-effort snapshot of the scheduler.
type Status struct {
	SystemActive     bool       `json:"system_active"`
	ThreadAlive      bool       `json:"thread_alive"`
	AutoTelegramPost bool       `json:"auto_telegram_post"`
	Hourly           KindStatus `json:"hourly"`
	Daily            KindStatus `json:"daily"`
}

// Status returns the current snapshot. Unknown values fall back to their
// defaults and "not yet run".
func (s *Scheduler) Status(ctx context.Context) Status {
	alive := s.Running()
	return Status{
		SystemActive:     alive && s.settings.Bool(ctx, settings.KeySystemActive, false),
		ThreadAlive:      alive,
		AutoTelegramPost: s.settings.Bool(ctx, settings.KeyAutoTelegramPost, false),
		Hourly:           s.kindStatus(ctx, model.KindUdemy),
		Daily:            s.kindStatus(ctx, model.KindStudyBullet),
	}
}

func (s *Scheduler) kindStatus(ctx context.Context, kind model.JobKind) KindStatus {
	key := func(suffix string) string { return settings.Key(kind, suffix) }

	st := KindStatus{
		Kind:            kind,
		Enabled:         s.settings.Bool(ctx, key(settings.SuffixEnabled), true),
		MaxPages:        s.settings.Int(ctx, key(settings.SuffixMaxPages), defaultMaxPages(kind)),
		TimeoutMinutes:  s.settings.Int(ctx, key(settings.SuffixTimeoutMinutes), defaultTimeout(kind)),
		LastRun:         s.settings.Time(ctx, key(settings.SuffixLastRun)),
		NextRun:         s.settings.Time(ctx, key(settings.SuffixNextRun)),
		RunsCount:       s.settings.Int(ctx, key(settings.SuffixRunsCount), 0),
		SuccessRate:     s.settings.Float(ctx, key(settings.SuffixSuccessRate), 0),
		LastResult:      s.settings.String(ctx, key(settings.SuffixLastResult), settings.NotYetRun),
		LastExecutionID: s.settings.String(ctx, key(settings.SuffixLastExecutionID), ""),
		Running:         s.running[kind].Load(),
	}
	if kind == model.KindStudyBullet {
		st.IntervalDays = s.settings.Int(ctx, key(settings.SuffixIntervalDays), settings.DefaultStudyBulletIntervalDays)
		st.RunTime = s.settings.String(ctx, key(settings.SuffixRunTime), settings.DefaultStudyBulletRunTime)
	} else {
		st.IntervalHours = s.settings.Int(ctx, key(settings.SuffixIntervalHours), settings.DefaultUdemyIntervalHours)
	}
	if st.LastResult == "" {
		st.LastResult = settings.NotYetRun
	}
	return st
}

// HourlySettings is an update of the hourly job policy. Zero MaxPages or
// TimeoutMinutes leave the stored value unchanged.
type HourlySettings struct {
	IntervalHours  int  `json:"interval_hours"`
	MaxPages       int  `json:"max_pages,omitempty"`
	TimeoutMinutes int  `json:"timeout_minutes,omitempty"`
	Enabled        bool `json:"enabled"`
}

// DailySettings is an update of the daily job policy. Zero MaxPages or
// TimeoutMinutes leave the stored value unchanged.
type DailySettings struct {
	IntervalDays   int    `json:"interval_days"`
	RunTime        string `json:"run_time"`
	MaxPages       int    `json:"max_pages,omitempty"`
	TimeoutMinutes int    `json:"timeout_minutes,omitempty"`
	Enabled        bool   `json:"enabled"`
}

// UpdateHourlySettings stores a clamped hourly policy and reschedules the
// next run from the last one.
func (s *Scheduler) UpdateHourlySettings(ctx context.Context, u HourlySettings) error {
	kind := model.KindUdemy
	values := []setting{
		{settings.SuffixIntervalHours, policy.ClampIntervalHours(u.IntervalHours)},
	}
	if u.MaxPages > 0 {
		values = append(values, setting{settings.SuffixMaxPages, policy.ClampMaxPages(kind, u.MaxPages)})
	}
	if u.TimeoutMinutes > 0 {
		values = append(values, setting{settings.SuffixTimeoutMinutes, policy.ClampTimeout(u.TimeoutMinutes)})
	}
	return s.updatePolicy(ctx, kind, u.Enabled, values)
}

// UpdateDailySettings validates the run time and stores a clamped daily
// policy.
func (s *Scheduler) UpdateDailySettings(ctx context.Context, u DailySettings) error {
	kind := model.KindStudyBullet
	h, m, err := policy.ParseRunTime(u.RunTime)
	if err != nil {
		return err
	}
	values := []setting{
		{settings.SuffixIntervalDays, policy.ClampIntervalDays(u.IntervalDays)},
		{settings.SuffixRunTime, fmt.Sprintf("%02d:%02d", h, m)},
	}
	if u.MaxPages > 0 {
		values = append(values, setting{settings.SuffixMaxPages, policy.ClampMaxPages(kind, u.MaxPages)})
	}
	if u.TimeoutMinutes > 0 {
		values = append(values, setting{settings.SuffixTimeoutMinutes, policy.ClampTimeout(u.TimeoutMinutes)})
	}
	return s.updatePolicy(ctx, kind, u.Enabled, values)
}

// updatePolicy writes values in order with the enabled flag last, then
// recomputes the next run from the last one. Disabling a job clears it.
func (s *Scheduler) updatePolicy(ctx context.Context, kind model.JobKind, enabled bool, values []setting) error {
	values = append(values, setting{settings.SuffixEnabled, enabled})
	if err := s.setAll(ctx, kind, values); err != nil {
		return err
	}

	var next *time.Time
	if ps := s.policySettings(ctx, kind); enabled && ps.LastRun != nil {
		t := policy.NextRun(kind, ps, *ps.LastRun)
		next = &t
	}
	if err := s.setAll(ctx, kind, []setting{{settings.SuffixNextRun, next}}); err != nil {
		return err
	}
	s.log.Info("schedule updated", "kind", kind, "enabled", enabled)
	return nil
}

func (s *Scheduler) setAll(ctx context.Context, kind model.JobKind, values []setting) error {
	for _, v := range values {
		if !s.settings.Set(ctx, settings.Key(kind, v.suffix), v.value) {
			return fmt.Errorf("%s %s: %w", kind, v.suffix, ErrNotSaved)
		}
	}
	return nil
}

// SetAutoPost toggles the opportunistic Telegram posting trigger.
func (s *Scheduler) SetAutoPost(ctx context.Context, enabled bool) error {
	if !s.settings.Set(ctx, settings.KeyAutoTelegramPost, enabled) {
		return fmt.Errorf("%s: %w", settings.KeyAutoTelegramPost, ErrNotSaved)
	}
	return nil
}

// ExecutionLogs returns recent log entries, most recent first. kind may be
// empty. Read failures are logged and yield an empty list.
func (s *Scheduler) ExecutionLogs(ctx context.Context, kind string, limit int) []model.ExecutionLogEntry {
	entries, err := s.logs.ListExecutionLogs(ctx, kind, limit)
	if err != nil {
		s.log.Error("list execution logs", "kind", kind, "error", err)
		return nil
	}
	return entries
}

// ClearOldLogs deletes log entries older than daysToKeep days (30 when not
// positive) and returns how many were removed.
func (s *Scheduler) ClearOldLogs(ctx context.Context, daysToKeep int) int {
	if daysToKeep <= 0 {
		daysToKeep = 30
	}
	n, err := s.logs.ClearOldLogs(ctx, daysToKeep)
	if err != nil {
		s.log.Error("clear old logs", "days", daysToKeep, "error", err)
		return 0
	}
	s.log.Info("old execution logs cleared", "days", daysToKeep, "deleted", n)
	return int(n)
}
