package notifier

import "time"

type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	// DedupWindow suppresses an identical (kind, target, text) message sent
	// again within the window. 0 disables it.
	DedupWindow time.Duration
}

// DeliveryEvent is published on the bus after each delivery attempt run.
type DeliveryEvent struct {
	Kind     string
	ChatID   int64
	ThreadID int
	Attempts int
	Error    string
}
