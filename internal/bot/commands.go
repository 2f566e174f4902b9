package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"topicbot/internal/calendar"
	"topicbot/internal/config"
	"topicbot/internal/eventbus"
	logx "topicbot/pkg/logx"
)

const (
	noTopicText  = "Please provide at least one argument: a topic."
	setTimeUsage = "Error: Please provide exactly one argument (time in HH:MM format).\nUsage: /settime HH:MM"
	previewDates = 5
	upcomingMax  = 20
)

// Commands returns the chat commands backed by d.
func Commands(d *Deps) []Command {
	return []Command{
		{
			Name:        "add",
			Description: "Schedule a topic on an exponential spacing. A last argument between 1 and 5 sets the growth, any other is part of the topic",
			Usage:       "/add <topic> [growth]",
			Timeout:     NoTimeout,
			Handle:      d.handleAdd,
		},
		{
			Name:        "remind",
			Description: "Send the reminder for a date now (default today)",
			Usage:       "/remind [YYYY-MM-DD]",
			Handle:      d.handleRemind,
		},
		{
			Name:        "show",
			Description: "Show the topics for a date (default today)",
			Usage:       "/show [YYYY-MM-DD]",
			Handle:      d.handleShow,
		},
		{
			Name:        "upcoming",
			Description: "List the next dates that have topics",
			Usage:       "/upcoming [n]",
			Handle:      d.handleUpcoming,
		},
		{
			Name:        "prune",
			Description: "Remove every date before the given one (default today)",
			Usage:       "/prune [YYYY-MM-DD]",
			Access:      AccessOwnerOnly,
			Handle:      d.handlePrune,
		},
		{
			Name:        "settime",
			Description: "Set the daily reminder time",
			Usage:       "/settime HH:MM",
			Access:      AccessOwnerOnly,
			Handle:      d.handleSetTime,
		},
		{
			Name:        "next",
			Description: "Show when the next daily reminder fires",
			Usage:       "/next",
			Handle:      d.handleNext,
		},
	}
}

func (d *Deps) handleAdd(ctx context.Context, req *Request) error {
	topic, growth, err := ParseAddArgs(req.Args, d.cfg().Reminder.DefaultGrowth)
	if errors.Is(err, errNoTopic) {
		return req.Reply(ctx, noTopicText)
	}
	if err != nil {
		return req.Reply(ctx, fmt.Sprintf("An error occurred: %v", err))
	}

	today := d.Today()
	res, err := d.Scheduler.ScheduleExponential(ctx, topic, growth, &today)
	data := eventbus.ScheduleData{
		RequestID: req.ReqID,
		Event:     topic,
		Growth:    growth,
		Added:     res.Count(calendar.Added),
		Duplicate: res.Count(calendar.Duplicate),
	}
	if err != nil {
		req.Logger.Error("spaced run failed", logx.String("topic", topic), logx.Int("added", data.Added), logx.Err(err))
		if data.Added > 0 {
			d.bus().Publish(eventbus.Event{Type: eventbus.ScheduleCreated, Data: data})
		}
		text := fmt.Sprintf("An error occurred: %v", err)
		if data.Added > 0 {
			text = res.Summary(0) + "\n" + text
		}
		_ = req.Reply(ctx, text)
		return err
	}
	d.bus().Publish(eventbus.Event{Type: eventbus.ScheduleCreated, Data: data})
	return req.Reply(ctx, res.Summary(previewDates))
}

func (d *Deps) handleRemind(ctx context.Context, req *Request) error {
	date := ""
	if len(req.Args) > 0 {
		date = req.Args[0]
	}
	sent, err := d.SendReminder(ctx, date, true)
	if err != nil {
		_ = req.Reply(ctx, fmt.Sprintf("Failed to send manual reminder: %v", err))
		return err
	}
	if !sent {
		day, _ := d.resolveDate(date)
		return req.Reply(ctx, fmt.Sprintf("No events found for %s.", day))
	}
	return req.Reply(ctx, "Manual reminder sent successfully!")
}

func (d *Deps) handleShow(ctx context.Context, req *Request) error {
	date := d.Today().String()
	if len(req.Args) > 0 {
		date = req.Args[0]
	}
	text, _ := d.Store.Query(date)
	return req.Reply(ctx, text)
}

func (d *Deps) handleUpcoming(ctx context.Context, req *Request) error {
	n := previewDates
	if len(req.Args) > 0 {
		if v, err := strconv.Atoi(req.Args[0]); err == nil && v > 0 {
			n = v
		} else {
			return req.Reply(ctx, "Usage: /upcoming [n]")
		}
		if n > upcomingMax {
			n = upcomingMax
		}
	}
	today := d.Today()
	var b strings.Builder
	count := 0
	d.Store.Each(func(day calendar.Date, events []string) bool {
		if day.Before(today) {
			return true
		}
		if count > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(calendar.FormatReminder(day.String(), events))
		count++
		return count < n
	})
	if count == 0 {
		return req.Reply(ctx, "Nothing scheduled from "+today.String()+" on.")
	}
	return req.Reply(ctx, b.String())
}

func (d *Deps) handlePrune(ctx context.Context, req *Request) error {
	if len(req.Args) > 1 {
		return req.Reply(ctx, "Usage: /prune [YYYY-MM-DD]")
	}
	cutoff := d.Today().String()
	if len(req.Args) == 1 {
		cutoff = req.Args[0]
	}
	out, err := d.Store.PruneBefore(ctx, cutoff)
	if err != nil {
		_ = req.Reply(ctx, fmt.Sprintf("An error occurred: %v", err))
		return err
	}
	if out.Status == calendar.Pruned {
		d.bus().Publish(eventbus.Event{Type: eventbus.CalendarPruned, Data: eventbus.PruneData{Cutoff: out.Date, Removed: out.Removed}})
	}
	return req.Reply(ctx, out.String())
}

func (d *Deps) handleSetTime(ctx context.Context, req *Request) error {
	if len(req.Args) != 1 {
		return req.Reply(ctx, setTimeUsage)
	}
	prev := d.Trigger.At()
	if err := d.Trigger.SetTime(req.Args[0]); err != nil {
		return req.Reply(ctx, fmt.Sprintf("Error: %v\nUsage: /settime HH:MM", err))
	}
	at := d.Trigger.At()

	if d.Config != nil {
		_, err := d.Config.Update(func(cfg *config.Config) { cfg.Reminder.DailyTime = at })
		if err != nil {
			_ = d.Trigger.SetTime(prev)
			_ = req.Reply(ctx, fmt.Sprintf("An error occurred: %v", err))
			return err
		}
	}
	next := d.Trigger.Next()
	d.bus().Publish(eventbus.Event{Type: eventbus.TriggerRetimed, Data: eventbus.RetimeData{DailyTime: at, Next: next.Format(time.RFC3339)}})
	req.Logger.Info("daily reminder retimed", logx.String("from", prev), logx.String("to", at))
	return req.Reply(ctx, fmt.Sprintf("Time updated successfully! New time: %s %s", at, d.Location().String()))
}

func (d *Deps) handleNext(ctx context.Context, req *Request) error {
	next := d.Trigger.Next()
	if next.IsZero() {
		return req.Reply(ctx, "The daily reminder is not scheduled.")
	}
	return req.Reply(ctx, fmt.Sprintf("Next reminder: %s (%s)", next.Format("2006-01-02 15:04"), d.Location().String()))
}
