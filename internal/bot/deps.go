package bot

import (
	"context"
	"fmt"
	"time"

	"topicbot/internal/calendar"
	"topicbot/internal/config"
	"topicbot/internal/eventbus"
	"topicbot/internal/spaced"
	"topicbot/internal/transport"
	logx "topicbot/pkg/logx"
)

// Deliverer sends one message and reports the final outcome.
type Deliverer interface {
	Deliver(ctx context.Context, n transport.Notification) error
}

// DailyClock is the daily trigger as seen by commands.
type DailyClock interface {
	SetTime(at string) error
	At() string
	Next() time.Time
	Location() *time.Location
}

// ConfigSource reads the live config and persists runtime changes.
type ConfigSource interface {
	Get() *config.Config
	Update(fn func(cfg *config.Config)) (*config.Config, error)
}

// Deps is the application context shared by command handlers and the daily
// job.
type Deps struct {
	Store     *calendar.Store
	Scheduler *spaced.Scheduler
	Notifier  Deliverer
	Trigger   DailyClock
	Config    ConfigSource
	Bus       eventbus.Bus
	Log       logx.Logger
	Now       func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) bus() eventbus.Bus {
	if d.Bus == nil {
		return eventbus.Nop{}
	}
	return d.Bus
}

func (d *Deps) cfg() config.Config {
	if d.Config != nil {
		if c := d.Config.Get(); c != nil {
			return c.WithDefaults()
		}
	}
	return config.Config{}.WithDefaults()
}

// Location is the reminder zone: the trigger's when running, else config.
func (d *Deps) Location() *time.Location {
	if d.Trigger != nil {
		if loc := d.Trigger.Location(); loc != nil {
			return loc
		}
	}
	loc, err := config.LoadLocation("reminder.timezone", d.cfg().Reminder.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Today is the current calendar day in the reminder zone.
func (d *Deps) Today() calendar.Date {
	return calendar.Today(d.now(), d.Location())
}

// resolveDate returns raw when it is a valid date, else today. The second
// result is false when raw was given but invalid.
func (d *Deps) resolveDate(raw string) (string, bool) {
	if raw == "" {
		return d.Today().String(), true
	}
	if _, err := calendar.ParseDate(raw); err != nil {
		return d.Today().String(), false
	}
	return raw, true
}

// SendReminder delivers the reminder for date to the configured chat when
// that date has events. An empty or invalid date means today. It reports
// whether a message went out.
func (d *Deps) SendReminder(ctx context.Context, date string, manual bool) (bool, error) {
	day, ok := d.resolveDate(date)
	if !ok {
		d.Log.Warn("invalid reminder date; using today", logx.String("date", date), logx.String("today", day))
	}
	text, hasEvents := d.Store.Query(day)
	if !hasEvents {
		d.Log.Debug("no events for reminder", logx.String("date", day))
		return false, nil
	}

	chatID := d.cfg().Telegram.ChatID
	if chatID == 0 {
		return false, fmt.Errorf("telegram.chat_id is not set")
	}
	// An explicit /remind is always delivered, even right after the last one.
	err := d.Notifier.Deliver(ctx, transport.Notification{
		Kind:      "reminder",
		Target:    transport.ChatTarget{ChatID: chatID},
		Text:      text,
		Options:   &transport.SendOptions{DisablePreview: true},
		SkipDedup: manual,
	})
	data := eventbus.ReminderData{Date: day, ChatID: chatID, Manual: manual}
	if err != nil {
		data.Err = err.Error()
		d.bus().Publish(eventbus.Event{Type: eventbus.ReminderFailed, Data: data})
		return false, err
	}
	d.bus().Publish(eventbus.Event{Type: eventbus.ReminderSent, Data: data})
	d.Log.Info("reminder sent", logx.String("date", day), logx.Bool("manual", manual))
	return true, nil
}

// DailyJob is run by the trigger: send today's reminder, then drop history
// older than reminder.prune_after_days when that is set.
func (d *Deps) DailyJob(ctx context.Context) error {
	_, sendErr := d.SendReminder(ctx, "", false)

	days := d.cfg().Reminder.PruneAfterDays
	if days <= 0 {
		return sendErr
	}
	cutoff := d.Today().AddDays(-days).String()
	out, err := d.Store.PruneBefore(ctx, cutoff)
	if err != nil {
		if sendErr != nil {
			return fmt.Errorf("%w; prune: %w", sendErr, err)
		}
		return err
	}
	if out.Removed > 0 {
		d.bus().Publish(eventbus.Event{Type: eventbus.CalendarPruned, Data: eventbus.PruneData{Cutoff: cutoff, Removed: out.Removed}})
	}
	return sendErr
}
