// Package trigger fires a job once a day at a wall-clock time in a given
// zone, on top of robfig/cron. The time can be changed while running.
package trigger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "topicbot/pkg/logx"
)

// Job is the work run at each firing.
type Job func(ctx context.Context) error

type Daily struct {
	mu      sync.Mutex
	c       *cron.Cron
	entry   cron.EntryID
	sched   cron.Schedule
	ctx     context.Context
	parser  cron.Parser
	hour    int
	minute  int
	loc     *time.Location
	job     Job
	timeout time.Duration
	now     func() time.Time
	log     logx.Logger
}

type Option func(*Daily)

func WithTimeout(d time.Duration) Option { return func(t *Daily) { t.timeout = d } }

func WithClock(now func() time.Time) Option { return func(t *Daily) { t.now = now } }

func WithLogger(log logx.Logger) Option { return func(t *Daily) { t.log = log } }

// NewDaily builds a stopped trigger firing job at "HH:MM" in loc (UTC when nil).
func NewDaily(at string, loc *time.Location, job Job, opts ...Option) (*Daily, error) {
	if job == nil {
		return nil, errors.New("trigger: nil job")
	}
	h, m, err := ParseHHMM(at)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}
	t := &Daily{
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
		hour:    h,
		minute:  m,
		loc:     loc,
		job:     job,
		timeout: 5 * time.Minute,
		now:     time.Now,
		log:     logx.Nop(),
		ctx:     context.Background(),
	}
	for _, o := range opts {
		o(t)
	}
	t.sched, err = t.parser.Parse(t.specLocked())
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (t *Daily) specLocked() string { return fmt.Sprintf("%d %d * * *", t.minute, t.hour) }

// Start begins firing. Jobs run with a context derived from ctx; a firing
// that finds the previous run still going is skipped.
func (t *Daily) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.c != nil {
		return nil
	}
	t.ctx = ctx
	if err := t.startLocked(); err != nil {
		return err
	}
	t.log.Info("daily trigger started", logx.String("at", t.atLocked()), logx.String("tz", t.loc.String()), logx.Time("next", t.nextLocked()))
	return nil
}

func (t *Daily) startLocked() error {
	cl := cronLogger{log: t.log}
	t.c = cron.New(
		cron.WithParser(t.parser),
		cron.WithLocation(t.loc),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	id, err := t.c.AddFunc(t.specLocked(), t.fire)
	if err != nil {
		t.c = nil
		return err
	}
	t.entry = id
	t.c.Start()
	return nil
}

func (t *Daily) fire() {
	t.mu.Lock()
	parent, timeout, job := t.ctx, t.timeout, t.job
	t.mu.Unlock()
	if parent.Err() != nil {
		return
	}
	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}
	start := time.Now()
	if err := job(ctx); err != nil {
		t.log.Error("daily job failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		return
	}
	t.log.Debug("daily job done", logx.Duration("took", time.Since(start)))
}

// Stop stops firing and waits for a running job until ctx is done.
func (t *Daily) Stop(ctx context.Context) {
	t.mu.Lock()
	c := t.c
	t.c = nil
	t.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// SetTime moves the firing time. It takes effect immediately when running.
func (t *Daily) SetTime(at string) error {
	h, m, err := ParseHHMM(at)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if h == t.hour && m == t.minute {
		return nil
	}
	t.hour, t.minute = h, m
	t.sched, err = t.parser.Parse(t.specLocked())
	if err != nil {
		return err
	}
	if t.c != nil {
		t.c.Remove(t.entry)
		id, err := t.c.AddFunc(t.specLocked(), t.fire)
		if err != nil {
			return err
		}
		t.entry = id
	}
	t.log.Info("daily trigger retimed", logx.String("at", t.atLocked()), logx.Time("next", t.nextLocked()))
	return nil
}

// SetLocation changes the zone. A running cron is rebuilt, since the
// location is fixed per cron instance.
func (t *Daily) SetLocation(loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if loc.String() == t.loc.String() {
		return nil
	}
	t.loc = loc
	if t.c == nil {
		return nil
	}
	// Stop returns at once; a job already running finishes on its own.
	t.c.Stop()
	return t.startLocked()
}

// At returns the configured time as "HH:MM".
func (t *Daily) At() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.atLocked()
}

func (t *Daily) atLocked() string { return fmt.Sprintf("%02d:%02d", t.hour, t.minute) }

func (t *Daily) Location() *time.Location {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loc
}

// Next returns the next firing time after now, in the trigger's zone.
func (t *Daily) Next() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.nextLocked()
}

func (t *Daily) nextLocked() time.Time {
	return t.sched.Next(t.now().In(t.loc))
}

// RunNow runs the job synchronously, outside the cron schedule.
func (t *Daily) RunNow(ctx context.Context) error {
	t.mu.Lock()
	job := t.job
	t.mu.Unlock()
	return job(ctx)
}

// ParseHHMM parses a 24h "HH:MM" string. A single-digit hour is accepted.
func ParseHHMM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	hs, ms, ok := strings.Cut(s, ":")
	if !ok || hs == "" || len(hs) > 2 || len(ms) != 2 || !digits(hs) || !digits(ms) {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	hour, err = strconv.Atoi(hs)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err = strconv.Atoi(ms)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}

func digits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// cronLogger routes robfig/cron's logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Trace("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
