package spaced

import (
	"context"
	"fmt"
	"strings"
	"time"

	"topicbot/internal/calendar"
	logx "topicbot/pkg/logx"
)

// Adder records one event on one date. *calendar.Store implements it.
type Adder interface {
	Add(ctx context.Context, date, event string) (calendar.Outcome, error)
}

type Scheduler struct {
	adder Adder
	now   func() time.Time
	loc   *time.Location
	years int
	log   logx.Logger
}

type Option func(*Scheduler)

// WithClock sets the clock used to pick today when no start date is given.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLocation sets the zone that decides which calendar day "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithHorizon(years int) Option {
	return func(s *Scheduler) {
		if years > 0 {
			s.years = years
		}
	}
}

func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

func New(adder Adder, opts ...Option) *Scheduler {
	s := &Scheduler{
		adder: adder,
		now:   time.Now,
		loc:   time.UTC,
		years: DefaultHorizonYears,
		log:   logx.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Today returns the current day in the scheduler's zone.
func (s *Scheduler) Today() calendar.Date {
	return calendar.Today(s.now(), s.loc)
}

// ScheduleExponential adds event on every date of the run starting at start
// (today when nil). Duplicate and InvalidDate outcomes are recorded and the
// run continues. An Add error stops the run; the outcomes gathered so far
// are returned with it.
func (s *Scheduler) ScheduleExponential(ctx context.Context, event string, growth float64, start *calendar.Date) (Result, error) {
	if err := ValidateGrowth(growth); err != nil {
		return Result{}, err
	}
	day := s.Today()
	if start != nil {
		day = *start
	}
	res := Result{
		Event:   event,
		Growth:  growth,
		Start:   day,
		Horizon: day.AddYears(s.years),
	}

	dates, err := Plan(day, growth, s.years)
	if err != nil {
		return res, err
	}
	res.Outcomes = make([]calendar.Outcome, 0, len(dates))

	log := s.log.With(logx.String("event", event), logx.Float64("growth", growth))
	for _, d := range dates {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		out, err := s.adder.Add(ctx, d.String(), event)
		if err != nil {
			log.Error("spaced run aborted", logx.String("date", d.String()), logx.Int("done", len(res.Outcomes)), logx.Err(err))
			return res, fmt.Errorf("schedule %s: %w", d, err)
		}
		res.Outcomes = append(res.Outcomes, out)
	}
	log.Info("spaced run scheduled",
		logx.String("start", day.String()),
		logx.Int("dates", len(res.Outcomes)),
		logx.Int("added", res.Count(calendar.Added)),
		logx.Int("duplicate", res.Count(calendar.Duplicate)),
	)
	return res, nil
}

// Result is one outcome per generated date, in date order.
type Result struct {
	Event    string
	Growth   float64
	Start    calendar.Date
	Horizon  calendar.Date
	Outcomes []calendar.Outcome
}

func (r Result) Count(st calendar.Status) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == st {
			n++
		}
	}
	return n
}

// Dates returns the date strings of every outcome.
func (r Result) Dates() []string {
	out := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		out[i] = o.Date
	}
	return out
}

// Summary renders a short chat reply: counts, the date range and the first
// few dates.
func (r Result) Summary(preview int) string {
	if len(r.Outcomes) == 0 {
		return fmt.Sprintf("Nothing scheduled for '%s'.", r.Event)
	}
	dates := r.Dates()
	var b strings.Builder
	fmt.Fprintf(&b, "Scheduled '%s' on %d dates (growth %g).\n", r.Event, len(dates), r.Growth)
	fmt.Fprintf(&b, "Added: %d, already present: %d.\n", r.Count(calendar.Added), r.Count(calendar.Duplicate))
	fmt.Fprintf(&b, "From %s to %s.", dates[0], dates[len(dates)-1])
	if preview > 0 {
		if preview > len(dates) {
			preview = len(dates)
		}
		b.WriteString("\nNext: ")
		b.WriteString(strings.Join(dates[:preview], ", "))
		if preview < len(dates) {
			b.WriteString(", ...")
		}
	}
	return b.String()
}
