package bot

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	logx "topicbot/pkg/logx"
)

const (
	panicReply = "An error occurred. Please try again."
	slowReq    = 750 * time.Millisecond
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that m[0] runs first.
func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

// MWTimeout bounds a command to d. d <= 0 leaves the context as it is, which
// is how NoTimeout commands get through.
func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		if d <= 0 {
			return next
		}
		return func(ctx context.Context, req *Request) error {
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			err := next(cctx, req)
			if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
				return fmt.Errorf("/%s gave up after %s: %w", req.Command, d, err)
			}
			return err
		}
	}
}

// MWPanicRecover turns a handler panic into an error and tells the chat
// something went wrong, so a user is never left without a reply.
func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				reqLog(log, req).Error("command panicked",
					logx.Any("panic", rec),
					logx.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("panic in /%s: %v", req.Command, rec)
				if req.sender != nil {
					_ = req.Reply(context.WithoutCancel(ctx), panicReply)
				}
			}()
			return next(ctx, req)
		}
	}
}

// MWRequestLog logs each command once it returns. Fast successes go to DEBUG;
// slow ones, such as a long /add run, stay visible at INFO.
func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			err := next(ctx, req)
			d := time.Since(start)

			l := reqLog(log, req)
			fields := []logx.Field{
				logx.Int("thread_id", req.Chat.ThreadID),
				logx.Int("args", len(req.Args)),
				logx.Duration("dur", d),
			}
			switch {
			case err != nil:
				l.Warn("command failed", append(fields, logx.Err(err))...)
			case d >= slowReq:
				l.Info("command done", fields...)
			default:
				l.Debug("command done", fields...)
			}
			return err
		}
	}
}

func reqLog(fallback logx.Logger, req *Request) logx.Logger {
	if req != nil && !req.Logger.IsZero() {
		return req.Logger
	}
	return fallback
}
