package settings

import (
	"context"
	"fmt"

	"owl_course/internal/model"
)

// Default policy values, also used as read fallbacks.
const (
	DefaultUdemyIntervalHours        = 3
	DefaultUdemyMaxPages             = 10
	DefaultUdemyTimeoutMinutes       = 30
	DefaultStudyBulletIntervalDays   = 1
	DefaultStudyBulletRunTime        = "14:00"
	DefaultStudyBulletMaxPages       = 50
	DefaultStudyBulletTimeoutMinutes = 45

	// NotYetRun is reported as the last result of a kind that never ran.
	NotYetRun = "not yet run"
)

// Defaults lists the values seeded at startup. Existing keys are never
// overwritten.
func Defaults() map[string]string {
	u, sb := model.KindUdemy, model.KindStudyBullet
	return map[string]string{
		KeySystemActive:     "false",
		KeyAutoTelegramPost: "false",

		Key(u, SuffixEnabled):        "true",
		Key(u, SuffixIntervalHours):  fmt.Sprint(DefaultUdemyIntervalHours),
		Key(u, SuffixMaxPages):       fmt.Sprint(DefaultUdemyMaxPages),
		Key(u, SuffixTimeoutMinutes): fmt.Sprint(DefaultUdemyTimeoutMinutes),
		Key(u, SuffixRunsCount):      "0",
		Key(u, SuffixSuccessRate):    "100",

		Key(sb, SuffixEnabled):        "true",
		Key(sb, SuffixIntervalDays):   fmt.Sprint(DefaultStudyBulletIntervalDays),
		Key(sb, SuffixRunTime):        DefaultStudyBulletRunTime,
		Key(sb, SuffixMaxPages):       fmt.Sprint(DefaultStudyBulletMaxPages),
		Key(sb, SuffixTimeoutMinutes): fmt.Sprint(DefaultStudyBulletTimeoutMinutes),
		Key(sb, SuffixRunsCount):      "0",
		Key(sb, SuffixSuccessRate):    "100",
	}
}

// Seed stores every default whose key is absent.
func (s *Store) Seed(ctx context.Context) error {
	if err := s.backend.EnsureConnection(ctx); err != nil {
		return fmt.Errorf("seed settings: %w: %w", ErrUnavailable, err)
	}
	for key, value := range Defaults() {
		if err := s.backend.SeedSetting(ctx, key, value); err != nil {
			return fmt.Errorf("seed settings: %w", err)
		}
	}
	return nil
}
