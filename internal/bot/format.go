package bot

import (
	"fmt"
	"strings"
	"time"

	"owl_course/internal/model"
	"owl_course/internal/scheduler"
)

const timeLayout = "2006-01-02 15:04 UTC"

// FormatStatus formats the scheduler snapshot for display.
func FormatStatus(st scheduler.Status) string {
	var b strings.Builder
	state := "🔴 stopped"
	if st.SystemActive {
		state = "🟢 running"
	}
	fmt.Fprintf(&b, "Scheduler: %s\n", state)
	if !st.SystemActive && st.ThreadAlive {
		b.WriteString("Loop alive but paused.\n")
	}
	fmt.Fprintf(&b, "Auto posting: %s\n\n", onOff(st.AutoTelegramPost))
	b.WriteString(FormatKind(st.Hourly))
	b.WriteString("\n")
	b.WriteString(FormatKind(st.Daily))
	return b.String()
}

// FormatKind formats the schedule and run state of one job kind.
func FormatKind(k scheduler.KindStatus) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", k.Kind, onOff(k.Enabled))
	if k.Running {
		b.WriteString(" (running now)")
	}
	b.WriteString("\n")

	if k.Kind == model.KindStudyBullet {
		fmt.Fprintf(&b, "Every %d day(s) at %s\n", k.IntervalDays, k.RunTime)
	} else {
		fmt.Fprintf(&b, "Every %d hour(s)\n", k.IntervalHours)
	}
	fmt.Fprintf(&b, "Max pages: %d, timeout: %d min\n", k.MaxPages, k.TimeoutMinutes)
	fmt.Fprintf(&b, "Last run: %s\n", formatTime(k.LastRun))
	next := "next check"
	if k.NextRun != nil {
		next = formatTime(k.NextRun)
	}
	fmt.Fprintf(&b, "Next run: %s\n", next)
	fmt.Fprintf(&b, "Runs: %d, success rate: %.1f%%\n", k.RunsCount, k.SuccessRate)
	fmt.Fprintf(&b, "Last result: %s\n", k.LastResult)
	return b.String()
}

// FormatLogs formats execution log entries, most recent first.
func FormatLogs(entries []model.ExecutionLogEntry) string {
	if len(entries) == 0 {
		return "No execution logs."
	}
	var b strings.Builder
	b.WriteString("Recent executions:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n%s %s %s", e.CreatedAt.UTC().Format(timeLayout), e.ScraperType, e.Status)
		switch e.Status {
		case model.StatusCompleted, model.StatusScraperError:
			fmt.Fprintf(&b, " — %d courses, %d pages, %.1fs", e.CoursesFound, e.PagesProcessed, e.DurationSeconds)
		}
		if e.ErrorMessage != nil && e.Status == model.StatusFailed {
			fmt.Fprintf(&b, " — %s", *e.ErrorMessage)
		}
		b.WriteString("\n")
	}
	return b.String()
}

func formatResult(r scheduler.Result) string {
	if !r.Success {
		return "Failed: " + r.Message
	}
	if r.Message == "" {
		return "Done."
	}
	return strings.ToUpper(r.Message[:1]) + r.Message[1:] + "."
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(timeLayout)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
