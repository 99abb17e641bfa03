package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field cron specs plus @descriptors (@daily,
// @hourly, @every 1h30m, ...), matching what workflow triggers may declare.
var parser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validate checks a cron expression without scheduling anything.
func Validate(spec string) error {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return fmt.Errorf("cron expression is empty")
	}
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return nil
}

// NextRun returns the first activation of spec strictly after the given time.
func NextRun(spec string, after time.Time) (time.Time, error) {
	sched, err := parser.Parse(strings.TrimSpace(spec))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}
	return sched.Next(after), nil
}
