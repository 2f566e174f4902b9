package bot

import (
	"context"
	"runtime"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"topicbot/internal/runtime/supervisor"
	"topicbot/internal/transport"
	logx "topicbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

// NoTimeout runs a command without a deadline of its own; it still stops
// when the dispatch context is cancelled.
const NoTimeout time.Duration = -1

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // 0: router default, NoTimeout: none
	Handle      HandlerFunc
}

type Request struct {
	Chat    transport.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger

	sender transport.Sender
}

// Reply sends text back to the chat (and forum thread) the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.sender.SendText(ctx, r.Chat, text, &transport.SendOptions{DisablePreview: true})
	return err
}

// Router maps "/name args" messages to commands and runs them on a bounded
// worker pool.
type Router struct {
	mu     sync.RWMutex
	cmds   map[string]*Command
	order  []string
	owners []int64

	log            logx.Logger
	sender         transport.Sender
	defaultTimeout time.Duration

	jobs chan func()
}

func NewRouter(sender transport.Sender, log logx.Logger, owners []int64) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := &Router{
		cmds:           map[string]*Command{},
		owners:         append([]int64(nil), owners...),
		log:            log,
		sender:         sender,
		defaultTimeout: 30 * time.Second,
		jobs:           make(chan func(), 64),
	}
	r.Register(Command{
		Name:        "start",
		Aliases:     []string{"help"},
		Description: "Start the bot and list the commands",
		Usage:       "/start",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.helpText())
		},
	})
	return r
}

// Register adds or replaces commands. Names are matched case-insensitively.
func (r *Router) Register(cmds ...Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		if _, exists := r.cmds[name]; !exists {
			r.order = append(r.order, name)
		}
		r.cmds[name] = &cc
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a != "" && a != name {
				r.cmds[a] = &cc
			}
		}
	}
}

// Commands returns the registered commands in registration order.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.cmds[name])
	}
	return out
}

// MenuCommands is the command list for the platform's "/" menu.
func (r *Router) MenuCommands() []transport.BotCommand {
	cmds := r.Commands()
	out := make([]transport.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		out = append(out, transport.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

func (r *Router) helpText() string {
	var b strings.Builder
	b.WriteString("Welcome! Here are the available commands:\n")
	for _, c := range r.Commands() {
		b.WriteString("\n")
		b.WriteString(c.Usage)
		b.WriteString(": ")
		b.WriteString(c.Description)
	}
	return b.String()
}

// SetOwners replaces the owner list. Safe to call during hot reload.
func (r *Router) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	r.mu.Lock()
	r.owners = cp
	r.mu.Unlock()
}

// isOwner treats an empty owner list as "everyone".
func (r *Router) isOwner(id int64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if len(r.owners) == 0 {
		return true
	}
	for _, o := range r.owners {
		if o == id {
			return true
		}
	}
	return false
}

// Dispatch routes one update and runs the command on the calling goroutine.
func (r *Router) Dispatch(ctx context.Context, up transport.Update) {
	if job := r.prepare(ctx, up); job != nil {
		job()
	}
}

// DispatchLoop consumes updates until ctx is done or updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan transport.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	if workers > 8 {
		workers = 8
	}
	sup := supervisor.New(ctx,
		supervisor.WithLogger(r.log.With(logx.String("comp", "bot.router"))),
		supervisor.WithCancelOnError(false),
	)
	r.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}, supervisor.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := r.prepare(ctx, up)
			if job == nil {
				continue
			}
			select {
			case r.jobs <- job:
			default:
				r.replyTo(ctx, up.Message, "busy, try again")
			}
		}
	}
}

// prepare parses and authorizes an update. It answers unknown and
// unauthorized commands directly and returns nil for anything not to run.
func (r *Router) prepare(ctx context.Context, up transport.Update) func() {
	msg := up.Message
	if msg == nil {
		return nil
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil
	}
	parts := tokenize(text)
	if len(parts) == 0 {
		return nil
	}
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)

	r.mu.RLock()
	cmd, ok := r.cmds[word]
	r.mu.RUnlock()
	if !ok {
		r.replyTo(ctx, msg, "Unknown command. Try /start")
		return nil
	}
	if cmd.Access == AccessOwnerOnly && !r.isOwner(msg.FromID) {
		r.replyTo(ctx, msg, "unauthorized")
		return nil
	}

	rid := uuid.NewString()
	req := &Request{
		Chat:    transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID},
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    parts[1:],
		ReqID:   rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
		sender: r.sender,
	}
	timeout := cmd.Timeout
	if timeout == 0 {
		timeout = r.defaultTimeout
	}
	final := Chain(
		cmd.Handle,
		MWPanicRecover(r.log),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
	return func() { _ = final(ctx, req) }
}

func (r *Router) replyTo(ctx context.Context, msg *transport.Message, text string) {
	if msg == nil {
		return
	}
	_, _ = r.sender.SendText(ctx, transport.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, text, nil)
}
