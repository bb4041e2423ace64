// Package model defines the domain types used across the application.
package model

import (
	"fmt"
	"time"
)

// JobKind identifies one of the two scraper jobs driven by the scheduler.
type JobKind string

// Supported job kinds.
const (
	// KindUdemy is the hourly-cadence UdemyFreebies scraper.
	KindUdemy JobKind = "udemy"
	// KindStudyBullet is the daily-cadence StudyBullet scraper.
	KindStudyBullet JobKind = "studybullet"
)

// JobKinds lists every kind in evaluation order.
var JobKinds = []JobKind{KindUdemy, KindStudyBullet}

// ParseJobKind converts a user-supplied string to a JobKind.
func ParseJobKind(s string) (JobKind, error) {
	switch JobKind(s) {
	case KindUdemy, KindStudyBullet:
		return JobKind(s), nil
	}
	return "", fmt.Errorf("unknown job kind %q, use: udemy, studybullet", s)
}

// ExecutionStatus is the status written to an execution log row.
type ExecutionStatus string

// Known execution statuses.
const (
	StatusStarted      ExecutionStatus = "started"
	StatusCompleted    ExecutionStatus = "completed"
	StatusScraperError ExecutionStatus = "scraper_error"
	StatusFailed       ExecutionStatus = "failed"
	StatusSuccess      ExecutionStatus = "success"
)

// ScraperTypeTelegram is the scraper type recorded for Telegram posting entries.
const ScraperTypeTelegram = "telegram_posting"

// Setting is a named scalar configuration or state value.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}

// ExecutionLogEntry is one row of the execution log.
type ExecutionLogEntry struct {
	ID              int64           `json:"id"`
	ExecutionID     string          `json:"execution_id"`
	ScraperType     string          `json:"scraper_type"`
	Status          ExecutionStatus `json:"status"`
	CoursesFound    int             `json:"courses_found"`
	PagesProcessed  int             `json:"pages_processed"`
	DurationSeconds float64         `json:"duration_seconds"`
	ErrorMessage    *string         `json:"error_message"`
	Details         map[string]any  `json:"details,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Course is a scraped course listing.
type Course struct {
	ID               int64
	Source           JobKind
	Title            string
	Slug             string
	Description      string
	Instructor       string
	Category         string
	ImageURL         string
	CourseURL        string
	UdemyURL         string
	CouponCode       string
	TelegramPosted   bool
	TelegramPostedAt *time.Time
	RecyclingCount   int
	CreatedAt        time.Time
}

// ScrapeResult is the normalized outcome of one scraper invocation.
type ScrapeResult struct {
	Success         bool
	CoursesFound    int
	PagesProcessed  int
	DurationSeconds float64
	Error           string
}

// SuccessRate returns coursesFound / pagesProcessed as a percentage,
// or 0 when no pages were processed.
func (r ScrapeResult) SuccessRate() float64 {
	if r.PagesProcessed <= 0 {
		return 0
	}
	return float64(r.CoursesFound) * 100 / float64(r.PagesProcessed)
}
