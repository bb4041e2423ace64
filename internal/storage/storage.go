// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"

	"owl_course/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Settings persists named scalar values.
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
	SeedSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) ([]model.Setting, error)
}

// ExecutionLogs is the append-only record of scraper runs.
type ExecutionLogs interface {
	LogExecution(ctx context.Context, executionID, scraperType string, status model.ExecutionStatus, details map[string]any) error
	ListExecutionLogs(ctx context.Context, scraperType string, limit int) ([]model.ExecutionLogEntry, error)
	ClearOldLogs(ctx context.Context, daysToKeep int) (int64, error)
}

// Courses persists scraped course listings.
type Courses interface {
	HasCourse(ctx context.Context, source model.JobKind, url string) (bool, error)
	InsertCourse(ctx context.Context, c *model.Course) error
	GetCourse(ctx context.Context, id int64) (*model.Course, error)
	FindNextUnposted(ctx context.Context) (*model.Course, bool, error)
	MarkPosted(ctx context.Context, id int64, recycled bool) error
	CountCourses(ctx context.Context, source model.JobKind) (int, error)
}

// Storage is the interface for all persistence operations.
type Storage interface {
	Settings
	ExecutionLogs
	Courses

	EnsureConnection(ctx context.Context) error
	Close() error
}
