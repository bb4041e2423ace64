// Package settings provides typed, failure-tolerant access to the scheduler
// settings table. Reads fall back to the caller's default and writes report
// false whenever the backing store is unavailable.
package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"owl_course/internal/model"
	"owl_course/internal/storage"
)

// ErrUnavailable reports that the backing store could not be reached.
var ErrUnavailable = errors.New("settings store unavailable")

// Global keys.
const (
	KeySystemActive     = "system_active"
	KeyAutoTelegramPost = "auto_telegram_post"
)

// Per-kind key suffixes, joined as "{kind}_{suffix}".
const (
	SuffixEnabled         = "enabled"
	SuffixIntervalHours   = "interval_hours"
	SuffixIntervalDays    = "interval_days"
	SuffixRunTime         = "run_time"
	SuffixMaxPages        = "max_pages"
	SuffixTimeoutMinutes  = "timeout_minutes"
	SuffixLastRun         = "last_run"
	SuffixNextRun         = "next_run"
	SuffixRunsCount       = "runs_count"
	SuffixSuccessRate     = "success_rate"
	SuffixLastResult      = "last_result"
	SuffixLastExecutionID = "last_execution_id"
)

// Key returns the settings key of a per-kind value.
func Key(kind model.JobKind, suffix string) string {
	return string(kind) + "_" + suffix
}

// TimeLayout is the stored representation of timestamps.
const TimeLayout = time.RFC3339

// Backend is the persistence the Store reads and writes through.
type Backend interface {
	storage.Settings
	EnsureConnection(ctx context.Context) error
}

// Store is the typed settings accessor shared by the scheduler components.
type Store struct {
	backend Backend
	log     *slog.Logger
}

// New creates a Store on top of backend.
func New(backend Backend, log *slog.Logger) *Store {
	return &Store{backend: backend, log: log}
}

// raw returns the stored string and whether it was found.
func (s *Store) raw(ctx context.Context, key string) (string, bool) {
	if err := s.backend.EnsureConnection(ctx); err != nil {
		s.log.Warn("settings unavailable, using default", "key", key, "error", err)
		return "", false
	}
	v, err := s.backend.GetSetting(ctx, key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.log.Error("get setting", "key", key, "error", err)
		}
		return "", false
	}
	return v, true
}

// Get returns the stored value coerced the way the legacy settings table did:
// "true"/"false" become bool, all-digit strings become int, everything else is
// returned as a string. def is returned when the key is absent or unreadable.
func (s *Store) Get(ctx context.Context, key string, def any) any {
	v, ok := s.raw(ctx, key)
	if !ok {
		return def
	}
	return Coerce(v)
}

// Coerce converts a stored string to bool, int, float64 or string.
func Coerce(v string) any {
	switch strings.ToLower(v) {
	case "true":
		return true
	case "false":
		return false
	}
	if v != "" && strings.Trim(v, "0123456789") == "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil && strings.Contains(v, ".") {
		return f
	}
	return v
}

// String returns the stored value or def.
func (s *Store) String(ctx context.Context, key, def string) string {
	v, ok := s.raw(ctx, key)
	if !ok {
		return def
	}
	return v
}

// Bool returns the stored value parsed as a bool, or def.
func (s *Store) Bool(ctx context.Context, key string, def bool) bool {
	v, ok := s.raw(ctx, key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		s.log.Warn("malformed bool setting", "key", key, "value", v)
		return def
	}
	return b
}

// Int returns the stored value parsed as an int, or def.
func (s *Store) Int(ctx context.Context, key string, def int) int {
	v, ok := s.raw(ctx, key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		s.log.Warn("malformed int setting", "key", key, "value", v)
		return def
	}
	return n
}

// Float returns the stored value parsed as a float64, or def.
func (s *Store) Float(ctx context.Context, key string, def float64) float64 {
	v, ok := s.raw(ctx, key)
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		s.log.Warn("malformed float setting", "key", key, "value", v)
		return def
	}
	return f
}

// Time returns the stored timestamp, or nil when absent, empty or malformed.
func (s *Store) Time(ctx context.Context, key string) *time.Time {
	v, ok := s.raw(ctx, key)
	if !ok || v == "" {
		return nil
	}
	t, err := time.Parse(TimeLayout, v)
	if err != nil {
		s.log.Warn("malformed time setting", "key", key, "value", v)
		return nil
	}
	return &t
}

// Set stores value under key. bool, int, float64, time.Time and *time.Time
// values are formatted; a nil *time.Time clears the timestamp.
func (s *Store) Set(ctx context.Context, key string, value any) bool {
	if err := s.backend.EnsureConnection(ctx); err != nil {
		s.log.Warn("settings unavailable, write dropped", "key", key, "error", err)
		return false
	}
	if err := s.backend.SetSetting(ctx, key, Format(value)); err != nil {
		s.log.Error("set setting", "key", key, "error", err)
		return false
	}
	return true
}

// Format renders a value the way it is stored.
func Format(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.UTC().Format(TimeLayout)
	case *time.Time:
		if v == nil {
			return ""
		}
		return v.UTC().Format(TimeLayout)
	case nil:
		return ""
	}
	return fmt.Sprint(value)
}
