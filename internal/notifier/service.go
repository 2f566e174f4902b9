package notifier

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"topicbot/internal/eventbus"
	"topicbot/internal/runtime/supervisor"
	"topicbot/internal/transport"
	logx "topicbot/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
	ErrNoSender  = errors.New("notifier has no sender")
)

// Service is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender transport.Sender
	bus    eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan transport.Notification
	sup       *supervisor.Supervisor

	dmu   sync.Mutex
	dedup map[uint64]time.Time

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(cfg Config, sender transport.Sender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if bus == nil {
		bus = eventbus.Nop{}
	}
	s := &Service{
		sender: sender,
		log:    log,
		bus:    bus,
		dedup:  map[uint64]time.Time{},
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	s.applyLocked(cfg)
	return s
}

// Apply swaps rate and retry settings; queue size and worker count take
// effect on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	s.cfg = cfg
	// burst = rate, so a short spike does not stall
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Start launches the background workers used by Notify. It is idempotent.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	q := make(chan transport.Notification, s.cfg.QueueSize)
	s.queue = q
	s.accepting = true
	workers := s.cfg.Workers
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log.With(logx.String("comp", "notifier"))))
	sup := s.sup
	s.mu.Unlock()

	for i := 0; i < workers; i++ {
		sup.Go0(fmt.Sprintf("worker.%d", i), func(c context.Context) {
			for {
				select {
				case <-c.Done():
					return
				case n, ok := <-q:
					if !ok {
						return
					}
					if err := s.Deliver(c, n); err != nil && !errors.Is(err, context.Canceled) {
						s.log.Warn("notification dropped", logx.String("kind", n.Kind), logx.Err(err))
					}
				}
			}
		})
	}
}

// Stop refuses new notifications and drains the queue until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.sup = nil
	s.mu.Unlock()

	s.sendWG.Wait()
	close(q)
	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
		s.log.Warn("notifier stop timed out", logx.Err(err), logx.Int("pending", len(q)))
	}
}

// Notify enqueues n for background delivery.
func (s *Service) Notify(ctx context.Context, n transport.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	select {
	case q <- n:
		return nil
	default:
		s.publish(eventbus.NotifierDropped, n, 0, ErrQueueFull)
		return ErrQueueFull
	}
}

// Deliver sends n now, waiting on the rate limiter and retrying failed sends.
// A message suppressed by the dedup window counts as delivered unless it
// sets SkipDedup.
func (s *Service) Deliver(ctx context.Context, n transport.Notification) error {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return ErrNoSender
	}
	if !n.SkipDedup && !s.dedupAllow(n, cfg.DedupWindow) {
		s.log.Debug("notification suppressed (duplicate)", logx.String("kind", n.Kind), logx.Int64("chat_id", n.Target.ChatID))
		return nil
	}

	attempts := 1 + cfg.RetryMax
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			s.forget(n)
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		_, err := sender.SendText(callCtx, n.Target, n.Text, n.Options)
		cancel()
		if err == nil {
			s.publish(eventbus.NotifierSent, n, attempt, nil)
			return nil
		}
		lastErr = err
		s.log.Debug("send failed", logx.String("kind", n.Kind), logx.Int("attempt", attempt), logx.Int("max", attempts), logx.Err(err))
		if attempt == attempts {
			break
		}
		t := time.NewTimer(s.retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			s.forget(n)
			return ctx.Err()
		}
	}
	s.forget(n)
	s.publish(eventbus.NotifierFailed, n, attempts, lastErr)
	return fmt.Errorf("send %s after %d attempts: %w", n.Kind, attempts, lastErr)
}

func (s *Service) publish(typ string, n transport.Notification, attempts int, err error) {
	ev := DeliveryEvent{Kind: n.Kind, ChatID: n.Target.ChatID, ThreadID: n.Target.ThreadID, Attempts: attempts}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: ev})
}

func dedupKey(n transport.Notification) uint64 {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%s|%d:%d|", n.Kind, n.Target.ChatID, n.Target.ThreadID)
	_, _ = h.Write([]byte(n.Text))
	return h.Sum64()
}

func (s *Service) dedupAllow(n transport.Notification, window time.Duration) bool {
	if window <= 0 {
		return true
	}
	now := time.Now()
	key := dedupKey(n)

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	s.dedup[key] = now.Add(window)
	return true
}

// forget clears the dedup entry of a message that was not delivered, so a
// retry by the caller is not suppressed.
func (s *Service) forget(n transport.Notification) {
	s.dmu.Lock()
	delete(s.dedup, dedupKey(n))
	s.dmu.Unlock()
}

// retryDelay is base * 2^(attempt-1), capped, with 0.7..1.3 jitter.
func (s *Service) retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	s.rngMu.Lock()
	j := 0.7 + s.rng.Float64()*0.6
	s.rngMu.Unlock()
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	return d
}
