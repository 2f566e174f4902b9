package app

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"topicbot/internal/calendar"
	"topicbot/internal/config"
	"topicbot/internal/transport"
)

type fakeAdapter struct {
	mu   sync.Mutex
	out  chan<- transport.Update
	sent []string
	menu []transport.BotCommand
	got  chan string
}

func newFakeAdapter() *fakeAdapter { return &fakeAdapter{got: make(chan string, 16)} }

func (f *fakeAdapter) Start(_ context.Context, out chan<- transport.Update) error {
	f.mu.Lock()
	f.out = out
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) Stop(context.Context) error { return nil }

func (f *fakeAdapter) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	f.got <- text
	return transport.MessageRef{ChatID: to.ChatID}, nil
}

func (f *fakeAdapter) UpdateMenuCommands(_ context.Context, cmds []transport.BotCommand) error {
	f.mu.Lock()
	f.menu = cmds
	f.mu.Unlock()
	return nil
}

func (f *fakeAdapter) push(text string) {
	f.mu.Lock()
	out := f.out
	f.mu.Unlock()
	out <- transport.Update{Message: &transport.Message{ChatID: 7, FromID: 1, Text: text}}
}

func (f *fakeAdapter) wait(t *testing.T) string {
	t.Helper()
	select {
	case s := <-f.got:
		return s
	case <-time.After(5 * time.Second):
		t.Fatalf("no reply")
		return ""
	}
}

func writeConfig(t *testing.T, dir string, extra map[string]any) string {
	t.Helper()
	cfg := map[string]any{
		"telegram": map[string]any{"token": "x", "chat_id": 42},
		"reminder": map[string]any{"daily_time": "09:00", "timezone": "UTC"},
		"storage":  map[string]any{"driver": "file", "path": filepath.Join(dir, "calendar_db.json")},
		"logging":  map[string]any{"level": "error"},
	}
	for k, v := range extra {
		cfg[k] = v
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, b, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func fixedClock() time.Time { return time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC) }

func TestAppEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, nil)
	ad := newFakeAdapter()

	a, err := NewApp(path, WithAdapter(ad), WithClock(fixedClock), WithConfigWatch(false))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer func() { _ = a.Stop(context.Background(), StopAppStop) }()

	ad.push("/add Review X")
	if got := ad.wait(t); !strings.HasPrefix(got, "Scheduled 'Review X' on 14 dates") {
		t.Fatalf("unexpected reply %q", got)
	}

	b, err := os.ReadFile(filepath.Join(dir, "calendar_db.json"))
	if err != nil {
		t.Fatalf("calendar not written: %v", err)
	}
	if !strings.Contains(string(b), `"2024-01-04"`) {
		t.Fatalf("unexpected calendar file %s", b)
	}

	ad.push("/settime 7:15")
	if got := ad.wait(t); got != "Time updated successfully! New time: 07:15 UTC" {
		t.Fatalf("unexpected reply %q", got)
	}
	cb, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(cb), `"07:15"`) {
		t.Fatalf("config not saved: %s", cb)
	}

	ad.push("/remind")
	// The reminder itself and the confirmation both go through the adapter.
	first, second := ad.wait(t), ad.wait(t)
	if first != "All topics to remember on 2024-01-01:\n- Review X" || second != "Manual reminder sent successfully!" {
		t.Fatalf("unexpected replies %q / %q", first, second)
	}
}

func TestNewAppRejectsCorruptCalendar(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, nil)
	if err := os.WriteFile(filepath.Join(dir, "calendar_db.json"), []byte(`{"someday": ["x"]}`), 0o600); err != nil {
		t.Fatal(err)
	}

	_, err := NewApp(path, WithAdapter(newFakeAdapter()), WithConfigWatch(false))
	if !errors.Is(err, calendar.ErrLoadCorruption) {
		t.Fatalf("expected ErrLoadCorruption, got %v", err)
	}
}

func TestNewAppRejectsBadConfig(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, map[string]any{
		"reminder": map[string]any{"daily_time": "25:00"},
	})
	if _, err := NewApp(path, WithAdapter(newFakeAdapter())); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestMapStorageConfig(t *testing.T) {
	cases := []struct {
		driver, path, busy string
		ok                 bool
	}{
		{"", "", "", true},
		{"file", "x.json", "", true},
		{"sqlite", "x.db", "2s", true},
		{"sqlite", "", "", false},
		{"sqlite", "x.db", "soon", false},
		{"mongo", "x", "", false},
	}
	for _, tc := range cases {
		cfg := config.Config{Storage: config.StorageConfig{Driver: tc.driver, Path: tc.path, BusyTimeout: tc.busy}}
		sc, err := mapStorageConfig(&cfg)
		if (err == nil) != tc.ok {
			t.Fatalf("%s/%s: err=%v", tc.driver, tc.path, err)
		}
		if tc.ok && tc.driver == "" && sc.Driver != "file" {
			t.Fatalf("empty driver must map to file, got %q", sc.Driver)
		}
	}
}

func TestMapNotifierConfig(t *testing.T) {
	cfg := config.Config{}.WithDefaults()
	nc, err := mapNotifierConfig(&cfg)
	if err != nil {
		t.Fatal(err)
	}
	if nc.RatePerSec != 1 || nc.RetryMax != 3 || nc.RetryBase != 500*time.Millisecond {
		t.Fatalf("unexpected notifier config %+v", nc)
	}
	cfg.Notifier.RetryBase = "fast"
	if _, err := mapNotifierConfig(&cfg); err == nil {
		t.Fatalf("expected duration error")
	}
}
