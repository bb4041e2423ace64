// Package scheduler runs the scraper jobs on their configured cadence.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"owl_course/internal/model"
	"owl_course/internal/policy"
	"owl_course/internal/scraper"
	"owl_course/internal/settings"
	"owl_course/internal/storage"
)

const (
	lastResultLimit = 100
	executionLayout = "20060102_150405"
)

// Invoker runs the scraper of a job kind with a bounded page budget and timeout.
type Invoker interface {
	Run(ctx context.Context, kind model.JobKind, maxPages, timeoutMinutes int) model.ScrapeResult
}

// Poster publishes the next unposted course. It reports whether a course was posted.
type Poster interface {
	PostNext(ctx context.Context) (bool, error)
}

// setting is one per-kind value to persist, keyed by its suffix.
type setting struct {
	suffix string
	value  any
}

// Result is the outcome of a start or stop request.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Scheduler is the control loop that decides when each scraper runs and
// records what happened.
type Scheduler struct {
	settings *settings.Store
	logs     storage.ExecutionLogs
	invoker  Invoker
	poster   Poster
	log      *slog.Logger
	now      func() time.Time

	tick        time.Duration
	pauseWait   time.Duration
	errorWait   time.Duration
	stopTimeout time.Duration

	mu       sync.Mutex
	cancel   context.CancelFunc
	loopDone chan struct{}

	running map[model.JobKind]*atomic.Bool
	posting atomic.Bool
	jobs    sync.WaitGroup
}

// New creates a stopped Scheduler.
func New(store *settings.Store, logs storage.ExecutionLogs, invoker Invoker, log *slog.Logger) *Scheduler {
	running := make(map[model.JobKind]*atomic.Bool, len(model.JobKinds))
	for _, k := range model.JobKinds {
		running[k] = new(atomic.Bool)
	}
	return &Scheduler{
		settings:    store,
		logs:        logs,
		invoker:     invoker,
		log:         log,
		now:         time.Now,
		tick:        time.Minute,
		pauseWait:   30 * time.Second,
		errorWait:   time.Minute,
		stopTimeout: 3 * time.Second,
		running:     running,
	}
}

// SetPoster enables the opportunistic posting trigger.
func (s *Scheduler) SetPoster(p Poster) {
	s.poster = p
}

// SetClock overrides the clock (useful for testing).
func (s *Scheduler) SetClock(now func() time.Time) {
	s.now = now
}

// SetTickInterval overrides the one-minute tick. The pause and error waits
// scale with it.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	s.tick = d
	s.pauseWait = d / 2
	s.errorWait = d
}

// Start persists system_active=true and starts the control loop. Starting a
// running scheduler is a no-op that still succeeds.
func (s *Scheduler) Start(ctx context.Context) Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loopDone != nil {
		select {
		case <-s.loopDone:
		default:
			return Result{Success: true, Message: "scheduler already running"}
		}
	}

	if !s.settings.Set(ctx, settings.KeySystemActive, true) {
		s.log.Warn("system_active not persisted, starting anyway")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel, s.loopDone = cancel, done
	go s.run(loopCtx, done)

	s.log.Info("scheduler started")
	return Result{Success: true, Message: "scheduler started"}
}

// Stop persists system_active=false and stops the control loop, waiting up
// to three seconds for it to exit. Scraper runs already in flight are left
// to finish or time out on their own.
func (s *Scheduler) Stop(ctx context.Context) Result {
	if !s.settings.Set(ctx, settings.KeySystemActive, false) {
		s.log.Warn("system_active not persisted")
	}
	if !s.stopLoop() {
		return Result{Success: true, Message: "scheduler already stopped"}
	}
	s.log.Info("scheduler stopped")
	return Result{Success: true, Message: "scheduler stopped"}
}

// Shutdown stops the control loop without touching system_active, so the
// scheduler resumes on the next boot, and then waits for in-flight runs
// until ctx is done.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.stopLoop()

	done := make(chan struct{})
	go func() {
		s.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for running jobs: %w", ctx.Err())
	}
}

// stopLoop cancels the control loop and reports whether it was running.
func (s *Scheduler) stopLoop() bool {
	s.mu.Lock()
	cancel, done := s.cancel, s.loopDone
	s.cancel, s.loopDone = nil, nil
	if cancel != nil {
		cancel()
	}
	s.mu.Unlock()

	if cancel == nil {
		return false
	}
	select {
	case <-done:
	case <-time.After(s.stopTimeout):
		s.log.Warn("scheduler loop did not exit in time", "timeout", s.stopTimeout)
	}
	return true
}

// Running reports whether the control loop goroutine is alive.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loopDone == nil {
		return false
	}
	select {
	case <-s.loopDone:
		return false
	default:
		return true
	}
}

// Wait blocks until every scraper run and post started by the loop has returned.
func (s *Scheduler) Wait() {
	s.jobs.Wait()
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	s.log.Debug("scheduler loop running")

	for {
		wait := s.safeTick(ctx)
		select {
		case <-ctx.Done():
			s.log.Debug("scheduler loop exited")
			return
		case <-time.After(wait):
		}
	}
}

// safeTick runs one tick. A panic is logged and turned into the error wait.
func (s *Scheduler) safeTick(ctx context.Context) (wait time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler tick failed", "panic", r)
			wait = s.errorWait
		}
	}()
	return s.checkAll(ctx)
}

// checkAll evaluates both job kinds and the posting trigger once and returns
// how long to wait before the next tick.
func (s *Scheduler) checkAll(ctx context.Context) time.Duration {
	now := s.now()

	// Settings reads must not fail because the loop is being stopped: a
	// cancelled read would fall back to defaults and look like "never run".
	read := context.WithoutCancel(ctx)

	// Re-read on every tick: another process may have paused the system.
	if !s.settings.Bool(read, settings.KeySystemActive, true) {
		s.log.Debug("system inactive, skipping tick")
		return s.pauseWait
	}

	s.evaluate(ctx, read, model.KindUdemy, now)
	if now.Minute()%10 == 0 {
		s.evaluate(ctx, read, model.KindStudyBullet, now)
	}
	if now.Second()%30 == 0 && s.poster != nil && s.settings.Bool(read, settings.KeyAutoTelegramPost, false) {
		s.triggerPost(ctx)
	}

	return s.untilNextTick(s.now())
}

// untilNextTick aligns ticks to multiples of the tick interval on the wall clock.
func (s *Scheduler) untilNextTick(now time.Time) time.Duration {
	return now.Truncate(s.tick).Add(s.tick).Sub(now)
}

// evaluate starts a run of kind when it is due. loop is the control loop
// context and read a non-cancellable context for settings and the run itself.
func (s *Scheduler) evaluate(loop, read context.Context, kind model.JobKind, now time.Time) {
	ps := s.policySettings(read, kind)
	ps.SystemActive = true
	if loop.Err() != nil || !policy.IsDue(kind, ps, now) {
		return
	}

	guard := s.running[kind]
	if !guard.CompareAndSwap(false, true) {
		s.log.Info("previous run still in progress, skipping", "kind", kind)
		return
	}
	if !s.track(loop) {
		guard.Store(false)
		return
	}

	go func() {
		defer s.jobs.Done()
		defer guard.Store(false)
		s.runJob(read, kind, ps)
	}()
}

// track adds a job to the WaitGroup unless the loop has been stopped. It
// shares s.mu with stopLoop, so no job is added once a stop has cancelled
// the loop.
func (s *Scheduler) track(loop context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loop.Err() != nil {
		return false
	}
	s.jobs.Add(1)
	return true
}

func (s *Scheduler) policySettings(ctx context.Context, kind model.JobKind) policy.Settings {
	return policy.Settings{
		Enabled:       s.settings.Bool(ctx, settings.Key(kind, settings.SuffixEnabled), true),
		IntervalHours: s.settings.Int(ctx, settings.Key(kind, settings.SuffixIntervalHours), settings.DefaultUdemyIntervalHours),
		IntervalDays:  s.settings.Int(ctx, settings.Key(kind, settings.SuffixIntervalDays), settings.DefaultStudyBulletIntervalDays),
		RunTime:       s.settings.String(ctx, settings.Key(kind, settings.SuffixRunTime), settings.DefaultStudyBulletRunTime),
		LastRun:       s.settings.Time(ctx, settings.Key(kind, settings.SuffixLastRun)),
	}
}

func (s *Scheduler) runJob(ctx context.Context, kind model.JobKind, ps policy.Settings) {
	startedAt := s.now().Truncate(time.Second)
	execID := fmt.Sprintf("%s_%s", kind, startedAt.Format(executionLayout))
	maxPages := s.settings.Int(ctx, settings.Key(kind, settings.SuffixMaxPages), defaultMaxPages(kind))
	timeout := s.settings.Int(ctx, settings.Key(kind, settings.SuffixTimeoutMinutes), defaultTimeout(kind))

	s.logExecution(ctx, execID, kind, model.StatusStarted, map[string]any{
		"max_pages":       maxPages,
		"timeout_minutes": timeout,
	})
	s.log.Info("run scraper", "kind", kind, "execution_id", execID, "max_pages", maxPages, "timeout_minutes", timeout)

	res := s.invoker.Run(ctx, kind, maxPages, timeout)

	details := map[string]any{
		"courses_found":   res.CoursesFound,
		"pages_processed": res.PagesProcessed,
		"duration":        res.DurationSeconds,
	}
	if res.Success {
		s.logExecution(ctx, execID, kind, model.StatusCompleted, details)
		s.log.Info("scraper completed", "kind", kind, "execution_id", execID,
			"courses_found", res.CoursesFound, "pages_processed", res.PagesProcessed)
	} else {
		details["error"] = res.Error
		s.logExecution(ctx, execID, kind, model.StatusScraperError, details)
		s.logExecution(ctx, execID, kind, model.StatusFailed, map[string]any{
			"error":      res.Error,
			"error_type": errorType(res.Error),
			"duration":   res.DurationSeconds,
		})
		s.log.Error("scraper failed", "kind", kind, "execution_id", execID, "error", res.Error)
	}

	s.recordRun(ctx, kind, ps, startedAt, execID, res)
}

// recordRun advances the schedule of kind. Failed runs advance it too, so a
// failing upstream is retried only after the configured interval.
func (s *Scheduler) recordRun(ctx context.Context, kind model.JobKind, ps policy.Settings, startedAt time.Time, execID string, res model.ScrapeResult) {
	key := func(suffix string) string { return settings.Key(kind, suffix) }

	runs := s.settings.Int(ctx, key(settings.SuffixRunsCount), 0)
	values := []setting{
		{settings.SuffixLastRun, startedAt},
		{settings.SuffixNextRun, policy.NextRun(kind, ps, startedAt)},
		{settings.SuffixRunsCount, runs + 1},
		{settings.SuffixSuccessRate, res.SuccessRate()},
		{settings.SuffixLastResult, lastResult(res)},
		{settings.SuffixLastExecutionID, execID},
	}
	for _, v := range values {
		if !s.settings.Set(ctx, key(v.suffix), v.value) {
			s.log.Warn("run state not persisted", "kind", kind, "key", key(v.suffix))
		}
	}
}

func (s *Scheduler) logExecution(ctx context.Context, execID string, kind model.JobKind, status model.ExecutionStatus, details map[string]any) {
	if err := s.logs.LogExecution(ctx, execID, string(kind), status, details); err != nil {
		s.log.Error("write execution log", "execution_id", execID, "status", status, "error", err)
	}
}

func (s *Scheduler) triggerPost(ctx context.Context) {
	if !s.posting.CompareAndSwap(false, true) {
		return
	}
	if !s.track(ctx) {
		s.posting.Store(false)
		return
	}
	go func() {
		defer s.jobs.Done()
		defer s.posting.Store(false)

		posted, err := s.poster.PostNext(context.WithoutCancel(ctx))
		if err != nil {
			s.log.Error("post next course", "error", err)
			return
		}
		s.log.Debug("posting trigger done", "posted", posted)
	}()
}

func lastResult(res model.ScrapeResult) string {
	if res.Success {
		return "success"
	}
	msg := res.Error
	if r := []rune(msg); len(r) > lastResultLimit {
		msg = string(r[:lastResultLimit])
	}
	return "failed: " + msg
}

func errorType(msg string) string {
	if msg == scraper.ErrTimeout.Error() {
		return "timeout"
	}
	return "scraper_error"
}

func defaultMaxPages(kind model.JobKind) int {
	if kind == model.KindStudyBullet {
		return settings.DefaultStudyBulletMaxPages
	}
	return settings.DefaultUdemyMaxPages
}

func defaultTimeout(kind model.JobKind) int {
	if kind == model.KindStudyBullet {
		return settings.DefaultStudyBulletTimeoutMinutes
	}
	return settings.DefaultUdemyTimeoutMinutes
}
