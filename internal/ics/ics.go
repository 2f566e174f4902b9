// Package ics moves calendar contents to and from iCalendar files, one
// all-day VEVENT per (date, event) pair.
package ics

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
	"github.com/google/uuid"

	"topicbot/internal/calendar"
	logx "topicbot/pkg/logx"
)

const productID = "-//topicbot//spaced reminders//EN"

// uidSpace namespaces event UIDs so the same pair always exports with the
// same UID.
var uidSpace = uuid.MustParse("5b0c3c2e-6f1e-4d8e-9a57-3f0f1d4b7a21")

// Source is the read side of a calendar store.
type Source interface {
	Each(fn func(d calendar.Date, events []string) bool)
}

// Adder is the write side of a calendar store.
type Adder interface {
	Add(ctx context.Context, date, event string) (calendar.Outcome, error)
}

// UID returns the stable UID of one (date, event) pair.
func UID(date, event string) string {
	return uuid.NewSHA1(uidSpace, []byte(date+"\x00"+event)).String() + "@topicbot"
}

// Export writes every stored event as an all-day VEVENT. stamp is used as
// DTSTAMP; pass time.Now() outside tests.
func Export(w io.Writer, src Source, stamp time.Time) (int, error) {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)

	n := 0
	src.Each(func(d calendar.Date, events []string) bool {
		day := d.Time()
		for _, text := range events {
			ev := cal.AddEvent(UID(d.String(), text))
			ev.SetDtStampTime(stamp.UTC())
			ev.SetAllDayStartAt(day)
			ev.SetAllDayEndAt(day.AddDate(0, 0, 1))
			ev.SetSummary(text)
			n++
		}
		return true
	})
	if err := cal.SerializeTo(w); err != nil {
		return n, fmt.Errorf("write ics: %w", err)
	}
	return n, nil
}

// ImportResult counts what Import did with each VEVENT.
type ImportResult struct {
	Added     int
	Duplicate int
	Skipped   int
}

// Import adds the SUMMARY of every VEVENT under the day of its DTSTART.
// Timed events are placed on their day in loc. Events without a summary or
// a usable start are skipped and logged.
func Import(ctx context.Context, r io.Reader, dst Adder, loc *time.Location, log logx.Logger) (ImportResult, error) {
	var res ImportResult
	if loc == nil {
		loc = time.UTC
	}
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return res, fmt.Errorf("parse ics: %w", err)
	}
	for _, ve := range cal.Events() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		summary := ""
		if p := ve.GetProperty(ical.ComponentPropertySummary); p != nil {
			summary = strings.TrimSpace(p.Value)
		}
		day, ok := startDay(ve, loc)
		if summary == "" || !ok {
			res.Skipped++
			log.Warn("ics event skipped", logx.String("uid", ve.Id()), logx.String("summary", summary))
			continue
		}
		out, err := dst.Add(ctx, day.String(), summary)
		if err != nil {
			return res, fmt.Errorf("import %s: %w", day, err)
		}
		switch out.Status {
		case calendar.Added:
			res.Added++
		case calendar.Duplicate:
			res.Duplicate++
		default:
			res.Skipped++
		}
	}
	log.Info("ics imported", logx.Int("added", res.Added), logx.Int("duplicate", res.Duplicate), logx.Int("skipped", res.Skipped))
	return res, nil
}

// startDay reads DTSTART. A DATE value is taken as is; a DATE-TIME is
// converted to loc first.
func startDay(ve *ical.VEvent, loc *time.Location) (calendar.Date, bool) {
	p := ve.GetProperty(ical.ComponentPropertyDtStart)
	if p == nil {
		return calendar.Date{}, false
	}
	val := strings.TrimSpace(p.Value)
	if !strings.Contains(val, "T") {
		t, err := time.Parse("20060102", val)
		if err != nil {
			return calendar.Date{}, false
		}
		return calendar.DateOf(t), true
	}
	t, err := ve.GetStartAt()
	if err != nil {
		return calendar.Date{}, false
	}
	return calendar.DateOf(t.In(loc)), true
}
