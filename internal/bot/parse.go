package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"owl_course/internal/model"
	"owl_course/internal/scheduler"
)

const defaultLogLimit = 10

// ParseOnOff parses on/off style toggles.
func ParseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes", "1", "enable", "enabled":
		return true, nil
	case "off", "false", "no", "0", "disable", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("invalid toggle %q, use: on, off", s)
}

// ParseHourlyArgs parses arguments for /hourly.
// Format: <hours> <on|off> [max_pages] [timeout_minutes]
func ParseHourlyArgs(args string) (scheduler.HourlySettings, error) {
	const usage = "usage: /hourly <hours> <on|off> [pages] [timeout]"
	parts := strings.Fields(args)
	if len(parts) < 2 || len(parts) > 4 {
		return scheduler.HourlySettings{}, errors.New(usage)
	}

	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return scheduler.HourlySettings{}, fmt.Errorf("invalid interval %q: %s", parts[0], usage)
	}
	enabled, err := ParseOnOff(parts[1])
	if err != nil {
		return scheduler.HourlySettings{}, err
	}
	optional, err := parseInts(parts[2:])
	if err != nil {
		return scheduler.HourlySettings{}, err
	}

	u := scheduler.HourlySettings{IntervalHours: hours, Enabled: enabled}
	if len(optional) > 0 {
		u.MaxPages = optional[0]
	}
	if len(optional) > 1 {
		u.TimeoutMinutes = optional[1]
	}
	return u, nil
}

// ParseDailyArgs parses arguments for /daily.
// Format: <days> <HH:MM> <max_pages> <on|off> [timeout_minutes]
func ParseDailyArgs(args string) (scheduler.DailySettings, error) {
	const usage = "usage: /daily <days> <HH:MM> <pages> <on|off> [timeout]"
	parts := strings.Fields(args)
	if len(parts) < 4 || len(parts) > 5 {
		return scheduler.DailySettings{}, errors.New(usage)
	}

	days, err := strconv.Atoi(parts[0])
	if err != nil {
		return scheduler.DailySettings{}, fmt.Errorf("invalid interval %q: %s", parts[0], usage)
	}
	pages, err := strconv.Atoi(parts[2])
	if err != nil {
		return scheduler.DailySettings{}, fmt.Errorf("invalid page count %q: %s", parts[2], usage)
	}
	enabled, err := ParseOnOff(parts[3])
	if err != nil {
		return scheduler.DailySettings{}, err
	}

	u := scheduler.DailySettings{
		IntervalDays: days,
		RunTime:      parts[1],
		MaxPages:     pages,
		Enabled:      enabled,
	}
	if len(parts) == 5 {
		if u.TimeoutMinutes, err = strconv.Atoi(parts[4]); err != nil {
			return scheduler.DailySettings{}, fmt.Errorf("invalid timeout %q: %s", parts[4], usage)
		}
	}
	return u, nil
}

// ParseLogsArgs parses the optional scraper type and entry count of /logs.
func ParseLogsArgs(args string) (string, int, error) {
	kind, limit := "", defaultLogLimit
	for _, p := range strings.Fields(args) {
		if n, err := strconv.Atoi(p); err == nil {
			if n < 1 || n > 100 {
				return "", 0, fmt.Errorf("log count must be between 1 and 100")
			}
			limit = n
			continue
		}
		if p == model.ScraperTypeTelegram {
			kind = p
			continue
		}
		k, err := model.ParseJobKind(p)
		if err != nil {
			return "", 0, err
		}
		kind = string(k)
	}
	return kind, limit, nil
}

// ParseDaysArg parses the retention of /clearlogs. Empty means 30 days.
func ParseDaysArg(args string) (int, error) {
	s := strings.TrimSpace(args)
	if s == "" {
		return 30, nil
	}
	days, err := strconv.Atoi(s)
	if err != nil || days < 1 {
		return 0, fmt.Errorf("usage: /clearlogs [days], days must be a positive number")
	}
	return days, nil
}

func parseInts(parts []string) ([]int, error) {
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out = append(out, n)
	}
	return out, nil
}
