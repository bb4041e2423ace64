// Package scraper defines the scraper contract and the invoker that runs a
// scraper with a wall-clock timeout.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"owl_course/internal/model"
)

// ErrTimeout is returned when a scraper exceeds its timeout.
var ErrTimeout = errors.New("timeout")

// Result is what a scraper reports, also on partial failure.
type Result struct {
	CoursesFound   int
	PagesProcessed int
}

// Scraper crawls up to maxPages listing pages, stores new courses and reports
// how many it added. Implementations deduplicate against stored courses and
// must return when ctx is done.
type Scraper interface {
	Scrape(ctx context.Context, maxPages int) (Result, error)
}

// CourseStore is the persistence scrapers deduplicate against and write to.
type CourseStore interface {
	HasCourse(ctx context.Context, source model.JobKind, url string) (bool, error)
	InsertCourse(ctx context.Context, c *model.Course) error
}

// Invoker runs the scraper registered for a job kind.
type Invoker struct {
	scrapers map[model.JobKind]Scraper
	log      *slog.Logger
	unit     time.Duration
}

// NewInvoker creates an Invoker over the given scrapers.
func NewInvoker(scrapers map[model.JobKind]Scraper, log *slog.Logger) *Invoker {
	return &Invoker{
		scrapers: scrapers,
		log:      log,
		unit:     time.Minute,
	}
}

// SetTimeoutUnit overrides the duration of one timeout "minute" (useful for testing).
func (i *Invoker) SetTimeoutUnit(d time.Duration) {
	i.unit = d
}

type outcome struct {
	res Result
	err error
}

// Run invokes the scraper of kind and normalizes its outcome. It never
// retries. When the timeout elapses Run returns at once with Error "timeout";
// the scraper's context is cancelled and its goroutine is left to wind down.
func (i *Invoker) Run(ctx context.Context, kind model.JobKind, maxPages, timeoutMinutes int) model.ScrapeResult {
	start := time.Now()

	s, ok := i.scrapers[kind]
	if !ok {
		return model.ScrapeResult{Error: fmt.Sprintf("no scraper registered for %s", kind)}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMinutes)*i.unit)

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("scraper panic: %v", r)}
			}
		}()
		res, err := s.Scrape(ctx, maxPages)
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		cancel()
		result := model.ScrapeResult{
			Success:         out.err == nil,
			CoursesFound:    out.res.CoursesFound,
			PagesProcessed:  out.res.PagesProcessed,
			DurationSeconds: time.Since(start).Seconds(),
		}
		if out.err != nil {
			result.Error = out.err.Error()
			if errors.Is(out.err, context.DeadlineExceeded) {
				result.Error = ErrTimeout.Error()
			}
		}
		return result
	case <-ctx.Done():
		err := ctx.Err()
		cancel()
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			i.log.Warn("scraper timed out", "kind", kind, "timeout_minutes", timeoutMinutes)
			msg = ErrTimeout.Error()
		}
		return model.ScrapeResult{
			Error:           msg,
			DurationSeconds: time.Since(start).Seconds(),
		}
	}
}
