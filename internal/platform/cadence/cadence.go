package cadence

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Schedule yields the next activation strictly after a given time.
type Schedule interface {
	Next(after time.Time) time.Time
}

// Normalize turns a daily "HH:MM" clock into a cron expression and trims
// anything else.
func Normalize(expr string) (string, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return "", fmt.Errorf("empty schedule")
	}
	match := clockPattern.FindStringSubmatch(expr)
	if match == nil {
		return expr, nil
	}
	hour, _ := strconv.Atoi(match[1])
	minute, _ := strconv.Atoi(match[2])
	if hour > 23 || minute > 59 {
		return "", fmt.Errorf("invalid clock schedule %q", expr)
	}
	return fmt.Sprintf("%d %d * * *", minute, hour), nil
}

// Parse accepts "HH:MM", standard five-field cron and descriptors such as
// "@daily". Activations are computed in UTC.
func Parse(expr string) (Schedule, error) {
	normalized, err := Normalize(expr)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(normalized, "CRON_TZ=") && !strings.HasPrefix(normalized, "TZ=") {
		normalized = "CRON_TZ=UTC " + normalized
	}
	schedule, err := parser.Parse(normalized)
	if err != nil {
		return nil, fmt.Errorf("parse schedule %q: %w", expr, err)
	}
	return schedule, nil
}

// Every is a fixed interval schedule.
type Every time.Duration

func (e Every) Next(after time.Time) time.Time {
	return after.Add(time.Duration(e))
}
