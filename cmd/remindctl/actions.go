package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli"

	"topicbot/internal/calendar"
	"topicbot/internal/config"
	"topicbot/internal/ics"
	"topicbot/internal/spaced"
	"topicbot/internal/storage"
	logx "topicbot/pkg/logx"
)

// now is swapped by tests.
var now = time.Now

type session struct {
	store   *calendar.Store
	backend storage.Store
	log     logx.Logger
	loc     *time.Location
}

func (s *session) Close() { _ = s.backend.Close() }

func (s *session) today() calendar.Date { return calendar.Today(now(), s.loc) }

func open(c *cli.Context) (*session, error) {
	log := logx.NewConsole(c.GlobalString("log-level")).With(logx.String("comp", "remindctl"))
	sc := storage.Config{Driver: c.GlobalString("driver"), Path: c.GlobalString("db")}
	loc := time.UTC

	if path := c.GlobalString("config"); path != "" {
		cfg, err := config.NewConfigManager(path).Load()
		if err != nil {
			return nil, err
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
		if err != nil {
			return nil, err
		}
		sc = storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path, BusyTimeout: busy}
		if loc, err = config.LoadLocation("reminder.timezone", cfg.Reminder.Timezone); err != nil {
			return nil, err
		}
	}

	backend, err := storage.Open(sc, log)
	if err != nil {
		return nil, err
	}
	store, err := calendar.Open(context.Background(), backend, calendar.WithLogger(log))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return &session{store: store, backend: backend, log: log, loc: loc}, nil
}

func dateOr(c *cli.Context, name string, def calendar.Date) string {
	if v := strings.TrimSpace(c.String(name)); v != "" {
		return v
	}
	return def.String()
}

func add(c *cli.Context) error {
	event := c.String("event")
	if strings.TrimSpace(event) == "" {
		return errors.New("--event is required")
	}
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := s.store.Add(context.Background(), dateOr(c, "date", s.today()), event)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, out.String())
	return nil
}

func show(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()

	date := dateOr(c, "date", s.today())
	events, err := s.store.Lookup(date)
	if err != nil {
		return fmt.Errorf("--date %q: %w", date, err)
	}
	if len(events) == 0 {
		fmt.Fprintf(c.App.Writer, "No events found for %s.\n", date)
		return nil
	}
	fmt.Fprintln(c.App.Writer, calendar.FormatReminder(date, events))
	return nil
}

func list(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()

	var from calendar.Date
	if raw := c.String("from"); raw != "" {
		if from, err = calendar.ParseDate(raw); err != nil {
			return err
		}
	}
	n := 0
	s.store.Each(func(d calendar.Date, events []string) bool {
		if d.Before(from) {
			return true
		}
		fmt.Fprintf(c.App.Writer, "%s\t%s\n", d, strings.Join(events, "; "))
		n++
		return true
	})
	if n == 0 {
		fmt.Fprintln(c.App.Writer, "Calendar is empty.")
	}
	return nil
}

func prune(c *cli.Context) error {
	cutoff := c.String("before")
	if cutoff == "" {
		return errors.New("--before is required")
	}
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()

	out, err := s.store.PruneBefore(context.Background(), cutoff)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, out.String())
	if out.Status == calendar.Pruned {
		fmt.Fprintf(c.App.Writer, "%d date(s) removed.\n", out.Removed)
	}
	return nil
}

func schedule(c *cli.Context) error {
	event := strings.TrimSpace(c.String("event"))
	if event == "" {
		return errors.New("--event is required")
	}
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()

	start := s.today()
	if raw := c.String("start"); raw != "" {
		if start, err = calendar.ParseDate(raw); err != nil {
			return err
		}
	}
	sched := spaced.New(s.store, spaced.WithLogger(s.log))
	res, err := sched.ScheduleExponential(context.Background(), event, c.Float64("growth"), &start)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, res.Summary(0))
	if c.Bool("dates") {
		for _, o := range res.Outcomes {
			fmt.Fprintf(c.App.Writer, "%s\t%s\n", o.Date, o.Status)
		}
	}
	return nil
}

func export(c *cli.Context) error {
	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()

	path := c.String("out")
	if path == "" {
		_, err := ics.Export(c.App.Writer, s.store, now())
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	n, err := exportClose(f, s.store)
	if err != nil {
		return fmt.Errorf("export %s: %w", path, err)
	}
	fmt.Fprintf(c.App.Writer, "Exported %d event(s) to %s.\n", n, path)
	return nil
}

// exportClose writes the calendar to wc and closes it. A failed close means
// the file may be incomplete and is reported like a failed write.
func exportClose(wc io.WriteCloser, src ics.Source) (int, error) {
	n, err := ics.Export(wc, src, now())
	if cerr := wc.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}
	return n, nil
}

func importICS(c *cli.Context) error {
	path := c.String("in")
	if path == "" {
		return errors.New("--in is required")
	}
	loc, err := config.LoadLocation("timezone", c.String("timezone"))
	if err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	s, err := open(c)
	if err != nil {
		return err
	}
	defer s.Close()

	res, err := ics.Import(context.Background(), f, s.store, loc, s.log)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "Imported %d event(s), %d already present, %d skipped.\n", res.Added, res.Duplicate, res.Skipped)
	return nil
}
