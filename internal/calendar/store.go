package calendar

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"topicbot/internal/storage"
	logx "topicbot/pkg/logx"
)

// Store is the durable event store: a resident Calendar plus a storage
// backend that receives the full snapshot after every mutation.
//
// Every method holds one mutex across parse, mutate and persist, so callers
// on different goroutines (command dispatch, daily trigger) never interleave
// a half-applied mutation with a snapshot write.
type Store struct {
	mu      sync.Mutex
	cal     *Calendar
	backend storage.Store
	log     logx.Logger
}

type Option func(*Store)

func WithLogger(log logx.Logger) Option {
	return func(s *Store) { s.log = log }
}

// Open loads the snapshot from backend. A missing snapshot yields an empty
// calendar; a key that is not a date yields ErrLoadCorruption.
func Open(ctx context.Context, backend storage.Store, opts ...Option) (*Store, error) {
	s := &Store{backend: backend}
	for _, o := range opts {
		o(s)
	}
	if s.log.IsZero() {
		s.log = logx.Nop()
	}

	snap, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load calendar: %w", err)
	}
	cal, err := FromSnapshot(snap)
	if err != nil {
		return nil, err
	}
	s.cal = cal
	s.log.Info("calendar loaded", logx.Int("dates", cal.Len()))
	return s, nil
}

// Add records event under date. Bad dates give an InvalidDate outcome and a
// repeated (date, event) pair gives Duplicate; neither touches storage. On
// Added the snapshot has been written before Add returns.
func (s *Store) Add(ctx context.Context, date, event string) (Outcome, error) {
	out := Outcome{Date: date, Event: event}
	d, err := ParseDate(date)
	if err != nil {
		out.Status = InvalidDate
		return out, nil
	}
	if event == "" {
		return out, ErrEmptyEvent
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cal.Append(d, event) {
		out.Status = Duplicate
		return out, nil
	}
	if err := s.persistLocked(ctx); err != nil {
		s.cal.undoAppend(d)
		return out, err
	}
	out.Status = Added
	s.log.Debug("event added", logx.String("date", date), logx.String("event", event))
	return out, nil
}

// Query renders the events for date as a reminder message. hasEvents is false
// for a bad date, an absent date and a date with an empty list alike, which is
// exactly the "should I notify" signal the bot needs.
func (s *Store) Query(date string) (text string, hasEvents bool) {
	events, err := s.Lookup(date)
	if err != nil {
		return invalidDateText, false
	}
	if len(events) == 0 {
		return fmt.Sprintf("No events found for %s.", date), false
	}
	return FormatReminder(date, events), true
}

// FormatReminder renders the reminder message for a day.
func FormatReminder(date string, events []string) string {
	var b strings.Builder
	b.WriteString("All topics to remember on ")
	b.WriteString(date)
	b.WriteString(":")
	for _, e := range events {
		b.WriteString("\n- ")
		b.WriteString(e)
	}
	return b.String()
}

// Lookup returns the events for date. Unlike Query it keeps a bad date
// (ErrInvalidDate) apart from a day without events (nil, nil).
func (s *Store) Lookup(date string) ([]string, error) {
	d, err := ParseDate(date)
	if err != nil {
		return nil, err
	}
	return s.Events(d), nil
}

// Events returns a copy of the events listed under d.
func (s *Store) Events(d Date) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cal.Events(d)
}

// PruneBefore deletes every date strictly before cutoff and persists the
// result. Removing nothing is still a Pruned outcome.
func (s *Store) PruneBefore(ctx context.Context, cutoff string) (Outcome, error) {
	out := Outcome{Date: cutoff}
	c, err := ParseDate(cutoff)
	if err != nil {
		out.Status = InvalidDate
		return out, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.cal.DeleteBefore(c)
	if err := s.persistLocked(ctx); err != nil {
		s.cal.restore(removed)
		return out, err
	}
	out.Status = Pruned
	out.Removed = len(removed)
	s.log.Info("calendar pruned", logx.String("cutoff", cutoff), logx.Int("removed", len(removed)))
	return out, nil
}

// Dates returns every date key in ascending order.
func (s *Store) Dates() []Date {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cal.Dates()
}

// Len returns the number of date keys.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cal.Len()
}

// Each calls fn for every non-empty date in ascending order. fn runs with the
// store locked and must not call back into the Store.
func (s *Store) Each(fn func(d Date, events []string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cal.Ascend(func(d Date, events []string) bool {
		if len(events) == 0 {
			return true
		}
		return fn(d, append([]string(nil), events...))
	})
}

// Snapshot returns the current persisted form.
func (s *Store) Snapshot() storage.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cal.Snapshot()
}

func (s *Store) persistLocked(ctx context.Context) error {
	if err := s.backend.Save(ctx, s.cal.Snapshot()); err != nil {
		s.log.Error("calendar persist failed", logx.Err(err))
		return fmt.Errorf("%w: %w", ErrPersist, err)
	}
	return nil
}
