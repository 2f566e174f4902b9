package config

// Config is the bot configuration file (JSON, or YAML when the path ends in
// .yaml/.yml). Unknown keys are rejected.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Reminder ReminderConfig `json:"reminder"`
	Storage  StorageConfig  `json:"storage"`
	Notifier NotifierConfig `json:"notifier"`
	Logging  LoggingConfig  `json:"logging"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// ChatID receives the daily reminder.
	ChatID       int64   `json:"chat_id"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	GroupLog     string  `json:"group_log"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

// ReminderConfig controls the daily reminder and spaced scheduling.
//
// Defaults:
//   - daily_time: "09:00"
//   - timezone: "UTC"
//   - default_growth: 2
//   - prune_after_days: 0 (never prune automatically)
type ReminderConfig struct {
	DailyTime      string  `json:"daily_time"`
	Timezone       string  `json:"timezone"`
	DefaultGrowth  float64 `json:"default_growth"`
	PruneAfterDays int     `json:"prune_after_days,omitempty"`
}

// StorageConfig selects the calendar snapshot backend.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./calendar_db.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// NotifierConfig controls outgoing message delivery.
type NotifierConfig struct {
	RatePerSec int    `json:"rate_per_sec"`
	RetryMax   int    `json:"retry_max"`
	RetryBase  string `json:"retry_base"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

const (
	DefaultDailyTime   = "09:00"
	DefaultTimezone    = "UTC"
	DefaultGrowth      = 2.0
	MaxGrowth          = 5.0
	DefaultStoragePath = "./calendar_db.json"
)

// WithDefaults returns a copy of cfg with empty fields filled in.
func (c Config) WithDefaults() Config {
	if c.Reminder.DailyTime == "" {
		c.Reminder.DailyTime = DefaultDailyTime
	}
	if c.Reminder.Timezone == "" {
		c.Reminder.Timezone = DefaultTimezone
	}
	if c.Reminder.DefaultGrowth == 0 {
		c.Reminder.DefaultGrowth = DefaultGrowth
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "file"
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Notifier.RatePerSec <= 0 {
		c.Notifier.RatePerSec = 1
	}
	if c.Notifier.RetryMax <= 0 {
		c.Notifier.RetryMax = 3
	}
	if c.Notifier.RetryBase == "" {
		c.Notifier.RetryBase = "500ms"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	return c
}
