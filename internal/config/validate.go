package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks cfg after defaults are applied. All problems are reported,
// each prefixed with its field path.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	c := cfg.WithDefaults()
	var errs []error

	if _, _, err := ParseClock("reminder.daily_time", c.Reminder.DailyTime); err != nil {
		errs = append(errs, err)
	}
	if _, err := LoadLocation("reminder.timezone", c.Reminder.Timezone); err != nil {
		errs = append(errs, err)
	}
	if g := c.Reminder.DefaultGrowth; g < 1 || g > MaxGrowth {
		errs = append(errs, fmt.Errorf("reminder.default_growth: must be in [1, %g], got %g", MaxGrowth, g))
	}
	if c.Reminder.PruneAfterDays < 0 {
		errs = append(errs, fmt.Errorf("reminder.prune_after_days: must be >= 0"))
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "file", "json", "sqlite", "sqlite3":
	default:
		errs = append(errs, fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDurationField("notifier.retry_base", c.Notifier.RetryBase); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
