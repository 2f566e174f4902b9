package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleJSON = `{
  "telegram": {"token": "t", "chat_id": 42, "owner_user_ids": [7]},
  "reminder": {"daily_time": "08:30", "timezone": "Europe/Berlin", "default_growth": 1.5},
  "storage": {"driver": "file", "path": "/tmp/cal.json"},
  "notifier": {},
  "logging": {"level": "debug", "console": true}
}`

const sampleYAML = `
telegram:
  token: t
  chat_id: 42
  owner_user_ids: [7]
reminder:
  daily_time: "08:30"
  timezone: Europe/Berlin
  default_growth: 1.5
storage:
  driver: file
  path: /tmp/cal.json
logging:
  level: debug
  console: true
`

func TestDecodeJSONAndYAMLAgree(t *testing.T) {
	t.Parallel()
	j, err := Decode("bot.json", []byte(sampleJSON))
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	y, err := Decode("bot.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if hashConfig(j) != hashConfig(y) {
		t.Fatalf("json and yaml differ:\n%+v\n%+v", j, y)
	}
	if j.Telegram.ChatID != 42 || j.Reminder.DailyTime != "08:30" || j.Reminder.DefaultGrowth != 1.5 {
		t.Fatalf("unexpected decode: %+v", j)
	}
}

func TestDecodeDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Decode("bot.json", []byte(`{"telegram": {"token": "t"}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if cfg.Reminder.DailyTime != DefaultDailyTime || cfg.Reminder.Timezone != "UTC" || cfg.Reminder.DefaultGrowth != 2 {
		t.Fatalf("reminder defaults not applied: %+v", cfg.Reminder)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Path != DefaultStoragePath {
		t.Fatalf("storage defaults not applied: %+v", cfg.Storage)
	}
	if cfg.Notifier.RetryMax != 3 || cfg.Notifier.RetryBase != "500ms" {
		t.Fatalf("notifier defaults not applied: %+v", cfg.Notifier)
	}
}

func TestDecodeStrict(t *testing.T) {
	t.Parallel()
	cases := map[string]string{
		"unknown key":   `{"telegram": {"token": "t", "bogus": 1}}`,
		"unknown top":   `{"plugins": {}}`,
		"trailing data": `{"telegram": {}} {"telegram": {}}`,
		"wrong type":    `{"reminder": {"default_growth": "two"}}`,
	}
	for name, raw := range cases {
		if _, err := Decode("bot.json", []byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
	if _, err := Decode("bot.yml", []byte("reminder:\n  nope: 1\n")); err == nil {
		t.Fatalf("yaml unknown key: expected error")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	good, _ := Decode("bot.json", []byte(sampleJSON))
	if err := Validate(good); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name string
		mut  func(c *Config)
		path string
	}{
		{"daily time", func(c *Config) { c.Reminder.DailyTime = "25:00" }, "reminder.daily_time"},
		{"daily time short", func(c *Config) { c.Reminder.DailyTime = "9:00" }, "reminder.daily_time"},
		{"timezone", func(c *Config) { c.Reminder.Timezone = "Mars/Olympus" }, "reminder.timezone"},
		{"growth low", func(c *Config) { c.Reminder.DefaultGrowth = 0.5 }, "reminder.default_growth"},
		{"growth high", func(c *Config) { c.Reminder.DefaultGrowth = 9 }, "reminder.default_growth"},
		{"prune", func(c *Config) { c.Reminder.PruneAfterDays = -1 }, "reminder.prune_after_days"},
		{"driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"busy timeout", func(c *Config) { c.Storage.BusyTimeout = "soon" }, "storage.busy_timeout"},
		{"retry base", func(c *Config) { c.Notifier.RetryBase = "-1s" }, "notifier.retry_base"},
	}
	for _, tc := range cases {
		c := cloneConfig(good)
		tc.mut(c)
		err := Validate(c)
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.path) {
			t.Fatalf("%s: error %q does not name %s", tc.name, err, tc.path)
		}
	}
}

func TestParseClock(t *testing.T) {
	t.Parallel()
	h, m, err := ParseClock("x", "07:05")
	if err != nil || h != 7 || m != 5 {
		t.Fatalf("ParseClock: %d %d %v", h, m, err)
	}
	for _, bad := range []string{"", "7:05", "07:60", "24:00", "0705", "07:05:00"} {
		if _, _, err := ParseClock("x", bad); err == nil {
			t.Fatalf("ParseClock(%q): expected error", bad)
		}
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()
	if d, err := ParseDurationOrDefault("a", "", time.Second); err != nil || d != time.Second {
		t.Fatalf("default: %v %v", d, err)
	}
	if d, err := ParseDurationField("a", " 2m "); err != nil || d != 2*time.Minute {
		t.Fatalf("trim: %v %v", d, err)
	}
	if _, err := ParseDurationField("a.b", "-1s"); err == nil || !strings.HasPrefix(err.Error(), "a.b:") {
		t.Fatalf("negative: %v", err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"bot.json", "bot.yaml"} {
		path := filepath.Join(t.TempDir(), name)
		content := sampleJSON
		if strings.HasSuffix(name, ".yaml") {
			content = sampleYAML
		}
		writeFile(t, path, content)

		m := NewConfigManager(path)
		cfg, err := m.Load()
		if err != nil {
			t.Fatalf("%s: Load: %v", name, err)
		}
		next := cloneConfig(cfg)
		next.Reminder.DailyTime = "21:15"
		if err := m.Save(next); err != nil {
			t.Fatalf("%s: Save: %v", name, err)
		}

		reread, err := NewConfigManager(path).Load()
		if err != nil {
			t.Fatalf("%s: reload: %v", name, err)
		}
		if reread.Reminder.DailyTime != "21:15" || reread.Telegram.ChatID != 42 {
			t.Fatalf("%s: unexpected config after save: %+v", name, reread)
		}
		if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
			t.Fatalf("%s: temp file left behind", name)
		}
	}
}

func TestUpdatePublishesAndRejectsInvalid(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "bot.json")
	writeFile(t, path, sampleJSON)
	m := NewConfigManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)

	if _, err := m.Update(func(c *Config) { c.Reminder.DailyTime = "nope" }); err == nil {
		t.Fatalf("expected validation error")
	}
	if got := m.Get().Reminder.DailyTime; got != "08:30" {
		t.Fatalf("invalid update committed: %s", got)
	}

	if _, err := m.Update(func(c *Config) { c.Reminder.DailyTime = "06:00" }); err != nil {
		t.Fatalf("Update: %v", err)
	}
	select {
	case cfg := <-ch:
		if cfg.Reminder.DailyTime != "06:00" {
			t.Fatalf("published %s", cfg.Reminder.DailyTime)
		}
	default:
		t.Fatalf("update not published")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatalf("channel not closed")
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.json")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	if got := <-ch; got != b {
		t.Fatalf("expected newest config")
	}
}

func TestWatchPublishesChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.json")
	writeFile(t, path, sampleJSON)
	m := NewConfigManager(path)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	ch := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()

	changed := strings.Replace(sampleJSON, `"08:30"`, `"10:45"`, 1)
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case cfg := <-ch:
			if cfg.Reminder.DailyTime != "10:45" {
				t.Fatalf("unexpected daily_time %s", cfg.Reminder.DailyTime)
			}
			cancel()
			<-done
			return
		case <-tick.C:
			// the watcher may not be registered yet on the first write
			writeFile(t, path, changed)
		case <-deadline:
			t.Fatalf("no config published")
		}
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	a, _ := Decode("bot.json", []byte(sampleJSON))
	b := cloneConfig(a)
	b.Reminder.DailyTime = "07:00"
	b.Telegram.Token = "secret-2"

	changed, attrs := SummarizeConfigChange(a, b)
	if strings.Join(changed, ",") != "telegram,reminder" {
		t.Fatalf("changed = %v", changed)
	}
	if len(attrs) == 0 {
		t.Fatalf("expected attrs")
	}
	if !RequiresRestart(a, b) {
		t.Fatalf("token change should require restart")
	}
	b.Telegram.Token = a.Telegram.Token
	if RequiresRestart(a, b) {
		t.Fatalf("reminder change should apply in place")
	}
}
