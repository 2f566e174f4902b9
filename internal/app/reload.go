package app

import (
	"context"
	"strings"

	"topicbot/internal/config"
	"topicbot/internal/eventbus"
	logx "topicbot/pkg/logx"
)

// reloadLoop applies published configs (file edits and /settime) to the
// running components.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *config.Config) {
	last := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case next, ok := <-sub:
			if !ok {
				return
			}
			// Coalesce bursts: only the newest config matters.
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						next = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(last, next)
			last = next
		}
	}
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config change applied", fields...)
	if config.RequiresRestart(prev, next) {
		a.log.Warn("telegram token or storage changed; restart required for changes to take effect")
	}

	a.logs.SetTelegramTarget(groupLogChat(next), next.Logging.Telegram.ThreadID)
	a.logs.Apply(mapLogConfig(next))

	a.router.SetOwners(next.Telegram.OwnerUserIDs)

	if loc, err := config.LoadLocation("reminder.timezone", next.Reminder.Timezone); err != nil {
		a.log.Warn("invalid timezone; keeping previous", logx.Err(err))
	} else if err := a.daily.SetLocation(loc); err != nil {
		a.log.Warn("timezone not applied", logx.Err(err))
	}
	if err := a.daily.SetTime(next.Reminder.DailyTime); err != nil {
		a.log.Warn("daily time not applied", logx.Err(err))
	}

	if ncfg, err := mapNotifierConfig(next); err != nil {
		a.log.Warn("invalid notifier config; keeping previous", logx.Err(err))
	} else {
		a.notif.Apply(ncfg)
	}

	a.bus.Publish(eventbus.Event{Type: eventbus.ConfigReloaded, Data: sections})
}
