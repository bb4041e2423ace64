package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gosimple/slug"
	"github.com/sethvargo/go-retry"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"owl_course/internal/model"
	"owl_course/migrations"
)

const (
	timeLayout = "2006-01-02T15:04:05Z"

	connectAttempts = 3
	maxSlugLength   = 100
)

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db      *sql.DB
	now     func() time.Time
	backoff time.Duration
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection: writers are serialized and :memory: databases stay shared.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, now: time.Now, backoff: time.Second}, nil
}

// SetClock overrides the clock used to stamp rows (useful for testing).
func (s *SQLite) SetClock(now func() time.Time) {
	s.now = now
}

// SetRetryBackoff overrides the delay between connection attempts.
func (s *SQLite) SetRetryBackoff(d time.Duration) {
	s.backoff = d
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// EnsureConnection pings the database, retrying up to three times.
// database/sql re-dials broken connections on the next attempt.
func (s *SQLite) EnsureConnection(ctx context.Context) error {
	b := retry.WithMaxRetries(connectAttempts-1, retry.NewConstant(s.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := s.db.PingContext(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ensure connection: %w", err)
	}
	return nil
}

func (s *SQLite) stamp() string {
	return s.now().UTC().Format(timeLayout)
}

// GetSetting returns the raw value stored under key, or ErrNotFound.
func (s *SQLite) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return value, nil
}

// SetSetting upserts key and stamps updated_at.
func (s *SQLite) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// SeedSetting stores value under key only if the key is absent.
func (s *SQLite) SeedSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
		key, value, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("seed setting %s: %w", key, err)
	}
	return nil
}

// ListSettings returns every stored setting ordered by key.
func (s *SQLite) ListSettings(ctx context.Context) ([]model.Setting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value, updated_at FROM settings ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Setting
	for rows.Next() {
		var st model.Setting
		var updated string
		if err := rows.Scan(&st.Key, &st.Value, &updated); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		st.UpdatedAt, _ = time.Parse(timeLayout, updated)
		out = append(out, st)
	}
	return out, rows.Err()
}

// LogExecution appends one execution log row. The known details keys
// courses_found, pages_processed, duration (or duration_seconds) and error
// are stored in their own columns; the remaining keys are kept as JSON.
func (s *SQLite) LogExecution(ctx context.Context, executionID, scraperType string, status model.ExecutionStatus, details map[string]any) error {
	var (
		coursesFound, pagesProcessed int
		duration                     float64
		errMsg                       *string
		rest                         = make(map[string]any)
	)
	for k, v := range details {
		switch k {
		case "courses_found":
			coursesFound = toInt(v)
		case "pages_processed":
			pagesProcessed = toInt(v)
		case "duration", "duration_seconds":
			duration = toFloat(v)
		case "error":
			if v != nil {
				msg := fmt.Sprint(v)
				errMsg = &msg
			}
		default:
			rest[k] = v
		}
	}

	var blob *string
	if len(rest) > 0 {
		b, err := json.Marshal(rest)
		if err != nil {
			return fmt.Errorf("marshal details: %w", err)
		}
		v := string(b)
		blob = &v
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO execution_logs
		 (execution_id, scraper_type, status, courses_found, pages_processed, duration_seconds, error_message, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		executionID, scraperType, string(status), coursesFound, pagesProcessed, duration, errMsg, blob, s.stamp(),
	)
	if err != nil {
		return fmt.Errorf("insert execution log: %w", err)
	}
	return nil
}

// ListExecutionLogs returns the most recent entries first, optionally
// filtered by scraper type.
func (s *SQLite) ListExecutionLogs(ctx context.Context, scraperType string, limit int) ([]model.ExecutionLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, execution_id, scraper_type, status, courses_found, pages_processed,
	                 duration_seconds, error_message, details, created_at
	          FROM execution_logs`
	args := []any{}
	if scraperType != "" {
		query += ` WHERE scraper_type = ?`
		args = append(args, scraperType)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query execution logs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ExecutionLogEntry
	for rows.Next() {
		var e model.ExecutionLogEntry
		var status, created string
		var errMsg, details sql.NullString
		if err := rows.Scan(&e.ID, &e.ExecutionID, &e.ScraperType, &status, &e.CoursesFound,
			&e.PagesProcessed, &e.DurationSeconds, &errMsg, &details, &created); err != nil {
			return nil, fmt.Errorf("scan execution log: %w", err)
		}
		e.Status = model.ExecutionStatus(status)
		if errMsg.Valid {
			v := errMsg.String
			e.ErrorMessage = &v
		}
		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &e.Details); err != nil {
				return nil, fmt.Errorf("decode details of %s: %w", e.ExecutionID, err)
			}
		}
		e.CreatedAt, _ = time.Parse(timeLayout, created)
		out = append(out, e)
	}
	return out, rows.Err()
}

// ClearOldLogs deletes entries created more than daysToKeep days ago and
// returns how many rows were removed.
func (s *SQLite) ClearOldLogs(ctx context.Context, daysToKeep int) (int64, error) {
	cutoff := s.now().UTC().AddDate(0, 0, -daysToKeep).Format(timeLayout)
	res, err := s.db.ExecContext(ctx, `DELETE FROM execution_logs WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete old logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// HasCourse reports whether a course of the given source is already stored
// under url, matched against both the Udemy URL and the source page URL.
func (s *SQLite) HasCourse(ctx context.Context, source model.JobKind, url string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM courses WHERE source = ? AND (udemy_url = ? OR course_url = ?)`,
		string(source), url, url,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check course: %w", err)
	}
	return count > 0, nil
}

// InsertCourse stores a new course with a unique slug derived from its title.
// TelegramPosted is always stored as false.
func (s *SQLite) InsertCourse(ctx context.Context, c *model.Course) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	base := courseSlug(c.Title)
	candidate := base
	for n := 1; ; n++ {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM courses WHERE slug = ?`, candidate).Scan(&count); err != nil {
			return fmt.Errorf("check slug: %w", err)
		}
		if count == 0 {
			break
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}

	now := s.stamp()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO courses (source, title, slug, description, instructor, category, image_url,
		                      course_url, udemy_url, coupon_code, telegram_posted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		string(c.Source), c.Title, candidate, c.Description, c.Instructor, c.Category, c.ImageURL,
		c.CourseURL, c.UdemyURL, c.CouponCode, now,
	)
	if err != nil {
		return fmt.Errorf("insert course: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit course: %w", err)
	}

	c.ID = id
	c.Slug = candidate
	c.TelegramPosted = false
	c.TelegramPostedAt = nil
	c.CreatedAt, _ = time.Parse(timeLayout, now)
	return nil
}

const courseColumns = `id, source, title, slug, description, instructor, category, image_url,
	course_url, udemy_url, coupon_code, telegram_posted, telegram_posted_at, recycling_count, created_at`

// GetCourse returns a single course by its ID.
func (s *SQLite) GetCourse(ctx context.Context, id int64) (*model.Course, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = ?`, id)
	c, err := scanCourse(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return c, err
}

// FindNextUnposted returns the next course to publish: the oldest unposted
// udemy course, then the oldest unposted studybullet course, then the
// studybullet course posted longest ago. The bool is true for the last case.
// It returns (nil, false, nil) when there is nothing to post.
func (s *SQLite) FindNextUnposted(ctx context.Context) (*model.Course, bool, error) {
	queries := []struct {
		sql      string
		args     []any
		recycled bool
	}{
		{
			sql:  `SELECT ` + courseColumns + ` FROM courses WHERE source = ? AND telegram_posted = 0 ORDER BY created_at, id LIMIT 1`,
			args: []any{string(model.KindUdemy)},
		},
		{
			sql:  `SELECT ` + courseColumns + ` FROM courses WHERE source = ? AND telegram_posted = 0 ORDER BY created_at, id LIMIT 1`,
			args: []any{string(model.KindStudyBullet)},
		},
		{
			sql:      `SELECT ` + courseColumns + ` FROM courses WHERE source = ? AND telegram_posted = 1 ORDER BY telegram_posted_at, id LIMIT 1`,
			args:     []any{string(model.KindStudyBullet)},
			recycled: true,
		},
	}

	for _, q := range queries {
		c, err := scanCourse(s.db.QueryRowContext(ctx, q.sql, q.args...))
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, false, err
		}
		return c, q.recycled, nil
	}
	return nil, false, nil
}

// MarkPosted flags a course as published. Recycled posts also bump the
// recycling counter.
func (s *SQLite) MarkPosted(ctx context.Context, id int64, recycled bool) error {
	bump := 0
	if recycled {
		bump = 1
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE courses SET telegram_posted = 1, telegram_posted_at = ?, recycling_count = recycling_count + ?
		 WHERE id = ?`,
		s.stamp(), bump, id,
	)
	if err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountCourses returns the number of stored courses for a source.
func (s *SQLite) CountCourses(ctx context.Context, source model.JobKind) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM courses WHERE source = ?`, string(source)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count courses: %w", err)
	}
	return count, nil
}

func courseSlug(title string) string {
	sl := slug.Make(title)
	if len(sl) > maxSlugLength {
		sl = sl[:maxSlugLength]
		for len(sl) > 0 && sl[len(sl)-1] == '-' {
			sl = sl[:len(sl)-1]
		}
	}
	if sl == "" {
		return "course"
	}
	return sl
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case time.Duration:
		return n.Seconds()
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanCourse(row scannable) (*model.Course, error) {
	var c model.Course
	var source, created string
	var posted int
	var postedAt sql.NullString
	err := row.Scan(&c.ID, &source, &c.Title, &c.Slug, &c.Description, &c.Instructor, &c.Category,
		&c.ImageURL, &c.CourseURL, &c.UdemyURL, &c.CouponCode, &posted, &postedAt, &c.RecyclingCount, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan course: %w", err)
	}
	c.Source = model.JobKind(source)
	c.TelegramPosted = posted == 1
	if postedAt.Valid {
		t, _ := time.Parse(timeLayout, postedAt.String)
		c.TelegramPostedAt = &t
	}
	c.CreatedAt, _ = time.Parse(timeLayout, created)
	return &c, nil
}
