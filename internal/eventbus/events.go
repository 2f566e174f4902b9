package eventbus

// Event types published by the bot.
const (
	CalendarPruned  = "calendar.pruned"
	ScheduleCreated = "schedule.created"
	ReminderSent    = "reminder.sent"
	ReminderFailed  = "reminder.failed"
	TriggerRetimed  = "trigger.retimed"
	ConfigReloaded  = "config.reloaded"
)

type ScheduleData struct {
	RequestID string
	Event     string
	Growth    float64
	Added     int
	Duplicate int
}

type ReminderData struct {
	Date   string
	ChatID int64
	Manual bool
	Err    string
}

type PruneData struct {
	Cutoff  string
	Removed int
}

type RetimeData struct {
	DailyTime string
	Next      string
}

// Notifier lifecycle events; Data is notifier.DeliveryEvent.
const (
	NotifierSent    = "notifier.sent"
	NotifierFailed  = "notifier.failed"
	NotifierDropped = "notifier.dropped"
)
