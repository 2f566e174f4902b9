package bot

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"topicbot/internal/config"
	"topicbot/internal/eventbus"
	"topicbot/internal/storage"
)

func TestAddSchedulesAndReportsSummary(t *testing.T) {
	f := newFixture(t, nil)
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()
	f.deps.Bus = bus

	reply := f.send(t, 1, "/add Review X")
	if !strings.HasPrefix(reply, "Scheduled 'Review X' on 14 dates (growth 2).\nAdded: 14, already present: 0.\nFrom 2024-01-01 to 2046-06-05.") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got := f.send(t, 1, "/show 2024-01-04"); got != "All topics to remember on 2024-01-04:\n- Review X" {
		t.Fatalf("unexpected show %q", got)
	}

	select {
	case ev := <-events:
		data, ok := ev.Data.(eventbus.ScheduleData)
		if ev.Type != eventbus.ScheduleCreated || !ok || data.Added != 14 || data.RequestID == "" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("no schedule event")
	}

	reply = f.send(t, 1, "/add Review X")
	if !strings.Contains(reply, "Added: 0, already present: 14.") {
		t.Fatalf("second run must be all duplicates, got %q", reply)
	}
}

func TestAddWithGrowthAndErrors(t *testing.T) {
	f := newFixture(t, nil)

	reply := f.send(t, 1, `/add "Graph theory" 1.5`)
	if !strings.HasPrefix(reply, "Scheduled 'Graph theory' on ") || !strings.Contains(reply, "(growth 1.5)") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if got := f.send(t, 1, "/add"); got != "Please provide at least one argument: a topic." {
		t.Fatalf("unexpected reply %q", got)
	}
	reply = f.send(t, 1, "/add Psalm 23")
	if !strings.HasPrefix(reply, "Scheduled 'Psalm 23' on 14 dates (growth 2).") {
		t.Fatalf("out-of-range number must stay in the topic, got %q", reply)
	}
	if text, _ := f.deps.Store.Query("2024-01-02"); !strings.Contains(text, "- Psalm 23") {
		t.Fatalf("expected 'Psalm 23' on 2024-01-02, got %q", text)
	}
}

func TestAddRunsWithoutRouterDeadline(t *testing.T) {
	f := newFixture(t, nil)
	f.router.defaultTimeout = time.Nanosecond

	reply := f.send(t, 1, "/add Review X")
	if !strings.HasPrefix(reply, "Scheduled 'Review X' on 14 dates (growth 2).") {
		t.Fatalf("unexpected reply %q", reply)
	}
	if f.backend.deadlines != 0 {
		t.Fatalf("%d saves ran under a deadline", f.backend.deadlines)
	}

	if got := f.send(t, 1, "/show 2046-06-05"); got != "All topics to remember on 2046-06-05:\n- Review X" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestShowDefaultsToToday(t *testing.T) {
	f := newFixture(t, storage.Snapshot{"2024-01-01": {"a", "b"}})

	if got := f.send(t, 1, "/show"); got != "All topics to remember on 2024-01-01:\n- a\n- b" {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := f.send(t, 1, "/show 2024-01-02"); got != "No events found for 2024-01-02." {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := f.send(t, 1, "/show 2024-13-01"); got != "Invalid date format. Please use 'YYYY-MM-DD'." {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestRemind(t *testing.T) {
	f := newFixture(t, storage.Snapshot{"2024-01-01": {"a"}, "2024-01-05": {"b"}})

	if got := f.send(t, 1, "/remind"); got != "Manual reminder sent successfully!" {
		t.Fatalf("unexpected reply %q", got)
	}
	if len(f.notify.sent) != 1 || f.notify.sent[0].Target.ChatID != 42 || f.notify.sent[0].Text != "All topics to remember on 2024-01-01:\n- a" {
		t.Fatalf("unexpected delivery %+v", f.notify.sent)
	}
	if !f.notify.sent[0].SkipDedup {
		t.Fatal("manual reminders must bypass the dedup window")
	}

	if got := f.send(t, 1, "/remind 2024-01-05"); got != "Manual reminder sent successfully!" {
		t.Fatalf("unexpected reply %q", got)
	}
	if f.notify.sent[1].Text != "All topics to remember on 2024-01-05:\n- b" {
		t.Fatalf("unexpected delivery %q", f.notify.sent[1].Text)
	}

	// An invalid date falls back to today.
	if got := f.send(t, 1, "/remind soon"); got != "Manual reminder sent successfully!" {
		t.Fatalf("unexpected reply %q", got)
	}
	if f.notify.sent[2].Text != f.notify.sent[0].Text {
		t.Fatalf("expected today's reminder, got %q", f.notify.sent[2].Text)
	}

	if got := f.send(t, 1, "/remind 2024-01-02"); got != "No events found for 2024-01-02." {
		t.Fatalf("unexpected reply %q", got)
	}
	if len(f.notify.sent) != 3 {
		t.Fatalf("empty dates must not be delivered")
	}

	f.notify.err = errors.New("telegram down")
	if got := f.send(t, 1, "/remind"); got != "Failed to send manual reminder: telegram down" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestRemindWithoutChat(t *testing.T) {
	f := newFixture(t, storage.Snapshot{"2024-01-01": {"a"}})
	f.config.cfg.Telegram.ChatID = 0

	if got := f.send(t, 1, "/remind"); !strings.HasPrefix(got, "Failed to send manual reminder: ") {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestSetTime(t *testing.T) {
	f := newFixture(t, nil)

	if got := f.send(t, 1, "/settime 9:30"); got != "Time updated successfully! New time: 09:30 UTC" {
		t.Fatalf("unexpected reply %q", got)
	}
	if f.config.cfg.Reminder.DailyTime != "09:30" || f.trigger.At() != "09:30" {
		t.Fatalf("time not applied: cfg=%q trigger=%q", f.config.cfg.Reminder.DailyTime, f.trigger.At())
	}

	if got := f.send(t, 1, "/settime"); got != "Error: Please provide exactly one argument (time in HH:MM format).\nUsage: /settime HH:MM" {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := f.send(t, 1, "/settime noon"); !strings.HasPrefix(got, "Error: ") {
		t.Fatalf("unexpected reply %q", got)
	}

	f.config.err = errors.New("read-only config")
	if got := f.send(t, 1, "/settime 10:00"); got != "An error occurred: read-only config" {
		t.Fatalf("unexpected reply %q", got)
	}
	if f.trigger.At() != "09:30" {
		t.Fatalf("trigger must be restored, got %q", f.trigger.At())
	}
}

func TestPruneIsOwnerOnly(t *testing.T) {
	f := newFixture(t, storage.Snapshot{"2023-12-01": {"old"}, "2024-01-01": {"new"}})
	f.router.SetOwners([]int64{1})

	if got := f.send(t, 2, "/prune 2024-01-01"); got != "unauthorized" {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := f.send(t, 1, "/prune 2024-01-01"); got != "Removed all events before 2024-01-01." {
		t.Fatalf("unexpected reply %q", got)
	}
	if f.deps.Store.Len() != 1 {
		t.Fatalf("prune did not apply")
	}
	if got := f.send(t, 1, "/prune a b"); got != "Usage: /prune [YYYY-MM-DD]" {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := f.send(t, 1, "/prune 2024-02-30"); got != "Invalid date format. Please use 'YYYY-MM-DD'." {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestUpcomingAndNext(t *testing.T) {
	f := newFixture(t, storage.Snapshot{
		"2023-12-31": {"past"},
		"2024-01-02": {"b"},
		"2024-01-09": {"c"},
	})

	if got := f.send(t, 1, "/upcoming 1"); got != "All topics to remember on 2024-01-02:\n- b" {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := f.send(t, 1, "/upcoming"); !strings.Contains(got, "2024-01-09") || strings.Contains(got, "past") {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := f.send(t, 1, "/upcoming x"); got != "Usage: /upcoming [n]" {
		t.Fatalf("unexpected reply %q", got)
	}
	if got := f.send(t, 1, "/next"); got != "Next reminder: 2024-01-01 09:00 (UTC)" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestDailyJobSendsAndPrunes(t *testing.T) {
	f := newFixture(t, storage.Snapshot{
		"2023-11-01": {"old"},
		"2024-01-01": {"today"},
	})
	f.config.cfg.Reminder.PruneAfterDays = 30

	if err := f.deps.DailyJob(context.Background()); err != nil {
		t.Fatalf("daily job: %v", err)
	}
	if len(f.notify.sent) != 1 || f.notify.sent[0].SkipDedup {
		t.Fatalf("expected one deduplicated reminder, got %+v", f.notify.sent)
	}
	if f.deps.Store.Len() != 1 {
		t.Fatalf("old dates must be pruned, %d left", f.deps.Store.Len())
	}

	f.config.cfg = config.Config{Telegram: config.TelegramConfig{ChatID: 42}}
	f.notify.err = errors.New("down")
	if err := f.deps.DailyJob(context.Background()); err == nil {
		t.Fatalf("delivery failure must surface")
	}
}
