// Package app wires the calendar, scheduler, trigger and chat transport into
// one running bot.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"topicbot/internal/bot"
	"topicbot/internal/calendar"
	"topicbot/internal/config"
	"topicbot/internal/eventbus"
	"topicbot/internal/notifier"
	"topicbot/internal/runtime/supervisor"
	"topicbot/internal/spaced"
	"topicbot/internal/storage"
	"topicbot/internal/transport"
	"topicbot/internal/transport/telegram"
	"topicbot/internal/trigger"
	logx "topicbot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	backend storage.Store
	store   *calendar.Store

	adapter transport.Adapter
	notif   *notifier.Service
	daily   *trigger.Daily
	deps    *bot.Deps
	router  *bot.Router

	updates chan transport.Update

	stopOnce sync.Once
	watch    bool
}

type Option func(*options)

type options struct {
	adapter transport.Adapter
	now     func() time.Time
	watch   bool
}

// WithAdapter replaces the Telegram adapter (tests, other transports).
func WithAdapter(a transport.Adapter) Option { return func(o *options) { o.adapter = a } }

// WithClock sets the clock used for "today".
func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// WithConfigWatch toggles hot reload of the config file. On by default.
func WithConfigWatch(enabled bool) Option { return func(o *options) { o.watch = enabled } }

// NewApp loads the config and the calendar and builds every component. A
// calendar file with a bad date key fails with calendar.ErrLoadCorruption.
func NewApp(cfgPath string, opts ...Option) (*App, error) {
	o := options{now: time.Now, watch: true}
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	ad := o.adapter
	if ad == nil {
		pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, logx.NewConsole("INFO").With(logx.String("comp", "telegram")))
		if err != nil {
			return nil, err
		}
		ad = tg
	}

	// Start with Telegram logging off: the target is set first so Apply does
	// not warn about a missing chat.
	logCfg := mapLogConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	logSvc.SetTelegramTarget(groupLogChat(cfg), cfg.Logging.Telegram.ThreadID)
	logSvc.Apply(logCfg)
	log = log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	bus := eventbus.New()

	sc, err := mapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	store, err := calendar.Open(context.Background(), backend, calendar.WithLogger(log.With(logx.String("comp", "calendar"))))
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	loc, err := config.LoadLocation("reminder.timezone", cfg.Reminder.Timezone)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	notif := notifier.New(ncfg, ad, log.With(logx.String("comp", "notifier")), bus)

	sched := spaced.New(store,
		spaced.WithClock(o.now),
		spaced.WithLocation(loc),
		spaced.WithLogger(log.With(logx.String("comp", "spaced"))),
	)

	deps := &bot.Deps{
		Store:     store,
		Scheduler: sched,
		Notifier:  notif,
		Config:    cfgm,
		Bus:       bus,
		Log:       log.With(logx.String("comp", "reminder")),
		Now:       o.now,
	}
	daily, err := trigger.NewDaily(cfg.Reminder.DailyTime, loc, deps.DailyJob,
		trigger.WithClock(o.now),
		trigger.WithTimeout(2*time.Minute),
		trigger.WithLogger(log.With(logx.String("comp", "trigger"))),
	)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	deps.Trigger = daily

	router := bot.NewRouter(ad, log.With(logx.String("comp", "commands")), cfg.Telegram.OwnerUserIDs)
	router.Register(bot.Commands(deps)...)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		backend: backend,
		store:   store,
		adapter: ad,
		notif:   notif,
		daily:   daily,
		deps:    deps,
		router:  router,
		updates: make(chan transport.Update, 256),
		watch:   o.watch,
	}, nil
}

func (a *App) Store() *calendar.Store { return a.store }

func (a *App) Deps() *bot.Deps { return a.deps }

func (a *App) Bus() eventbus.Bus { return a.bus }

// Done is closed when the app supervisor is cancelled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if err := config.Validate(cfg); err != nil {
			return err
		}
		if _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		_, err := mapNotifierConfig(cfg)
		return err
	})

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	a.notif.Start(a.sup.Context())
	if err := a.daily.Start(a.sup.Context()); err != nil {
		return err
	}

	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	if up, ok := a.adapter.(transport.CommandMenuUpdater); ok {
		menu := a.router.MenuCommands()
		a.sup.Go0("telegram.menu.update", func(c context.Context) {
			cctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				a.log.Warn("menu update failed", logx.Err(err))
			}
		})
	}

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		a.eventLoop(c, events)
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	if a.watch {
		a.sup.Go("config.watch", a.cfgm.Watch)
	}

	a.log.Info("bot started",
		logx.Int("dates", a.store.Len()),
		logx.String("daily_time", a.daily.At()),
		logx.String("timezone", a.daily.Location().String()),
		logx.Time("next", a.daily.Next()),
	)
	return nil
}

// eventLoop logs every event and reports failed daily reminders to the
// log group.
func (a *App) eventLoop(ctx context.Context, events <-chan eventbus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			if e.Type != eventbus.ReminderFailed {
				continue
			}
			data, _ := e.Data.(eventbus.ReminderData)
			chatID := groupLogChat(a.cfgm.Get())
			if chatID == 0 || data.Manual {
				continue
			}
			err := a.notif.Notify(ctx, transport.Notification{
				Kind:   "notice",
				Target: transport.ChatTarget{ChatID: chatID, ThreadID: a.cfgm.Get().Logging.Telegram.ThreadID},
				Text:   fmt.Sprintf("Daily reminder for %s failed: %s", data.Date, data.Err),
			})
			if err != nil {
				a.log.Warn("failure notice not queued", logx.Err(err))
			}
		}
	}
}

// Stop shuts components down in reverse start order.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	var errs []error
	a.stopOnce.Do(func() {
		a.log.Info("bot stopping", logx.String("reason", string(reason)))
		if a.daily != nil {
			a.daily.Stop(ctx)
		}
		if a.adapter != nil {
			if err := a.adapter.Stop(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if a.notif != nil {
			a.notif.Stop(ctx)
		}
		if a.sup != nil {
			if err := a.sup.Stop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("goroutines still running at stop", logx.Int64("active", a.sup.Counters().Active), logx.Err(err))
				errs = append(errs, err)
			}
		}
		if err := a.backend.Close(); err != nil {
			errs = append(errs, err)
		}
		a.log.Info("bot stopped")
		if err := a.logs.Close(); err != nil {
			errs = append(errs, err)
		}
	})
	return errors.Join(errs...)
}
