package bot

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"topicbot/internal/calendar"
	"topicbot/internal/config"
	"topicbot/internal/spaced"
	"topicbot/internal/storage"
	"topicbot/internal/transport"
	logx "topicbot/pkg/logx"
)

var fixedNow = time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)

type sent struct {
	To   transport.ChatTarget
	Text string
}

type fakeSender struct {
	mu  sync.Mutex
	out []sent
}

func (s *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, _ *transport.SendOptions) (transport.MessageRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.out = append(s.out, sent{To: to, Text: text})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(s.out)}, nil
}

func (s *fakeSender) last(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.out) == 0 {
		t.Fatalf("nothing sent")
	}
	return s.out[len(s.out)-1].Text
}

type fakeDeliverer struct {
	mu   sync.Mutex
	err  error
	sent []transport.Notification
}

func (d *fakeDeliverer) Deliver(_ context.Context, n transport.Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, n)
	return nil
}

type fakeTrigger struct {
	mu  sync.Mutex
	at  string
	loc *time.Location
}

func (f *fakeTrigger) SetTime(at string) error {
	if len(at) < 4 || at[len(at)-3] != ':' {
		return errors.New("time must be HH:MM")
	}
	if len(at) == 4 {
		at = "0" + at
	}
	f.mu.Lock()
	f.at = at
	f.mu.Unlock()
	return nil
}

func (f *fakeTrigger) At() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.at
}

func (f *fakeTrigger) Next() time.Time {
	return time.Date(2024, 1, 1, 9, 0, 0, 0, f.Location())
}

func (f *fakeTrigger) Location() *time.Location {
	if f.loc == nil {
		return time.UTC
	}
	return f.loc
}

type fakeConfig struct {
	mu      sync.Mutex
	cfg     config.Config
	err     error
	updates int
}

func (c *fakeConfig) Get() *config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := c.cfg
	return &cp
}

func (c *fakeConfig) Update(fn func(cfg *config.Config)) (*config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	fn(&c.cfg)
	c.updates++
	cp := c.cfg
	return &cp, nil
}

type memBackend struct {
	snap      storage.Snapshot
	deadlines int // saves that ran under a context deadline
}

func (b *memBackend) Load(context.Context) (storage.Snapshot, error) {
	if b.snap == nil {
		return storage.Snapshot{}, nil
	}
	return b.snap.Clone(), nil
}

func (b *memBackend) Save(ctx context.Context, snap storage.Snapshot) error {
	if _, ok := ctx.Deadline(); ok {
		b.deadlines++
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.snap = snap.Clone()
	return nil
}

func (b *memBackend) Close() error { return nil }

type fixture struct {
	deps    *Deps
	sender  *fakeSender
	notify  *fakeDeliverer
	trigger *fakeTrigger
	config  *fakeConfig
	router  *Router
	backend *memBackend
}

func newFixture(t *testing.T, seed storage.Snapshot) *fixture {
	t.Helper()
	backend := &memBackend{snap: seed}
	store, err := calendar.Open(context.Background(), backend)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	now := func() time.Time { return fixedNow }
	f := &fixture{
		sender:  &fakeSender{},
		notify:  &fakeDeliverer{},
		trigger: &fakeTrigger{at: "09:00"},
		config:  &fakeConfig{cfg: config.Config{Telegram: config.TelegramConfig{ChatID: 42}}.WithDefaults()},
		backend: backend,
	}
	f.deps = &Deps{
		Store:     store,
		Scheduler: spaced.New(store, spaced.WithClock(now)),
		Notifier:  f.notify,
		Trigger:   f.trigger,
		Config:    f.config,
		Now:       now,
	}
	f.router = NewRouter(f.sender, logx.Nop(), nil)
	f.router.Register(Commands(f.deps)...)
	return f
}

func (f *fixture) send(t *testing.T, from int64, text string) string {
	t.Helper()
	f.router.Dispatch(context.Background(), transport.Update{Message: &transport.Message{
		ChatID: 7,
		FromID: from,
		Text:   text,
	}})
	return f.sender.last(t)
}
