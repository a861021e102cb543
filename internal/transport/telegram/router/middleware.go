package router

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"doggobot/internal/metrics"
	logx "doggobot/pkg/logx"
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Middleware func(next HandlerFunc) HandlerFunc

// ErrDenied is returned when an access check rejected the request. The
// sender has already been told why.
var ErrDenied = errors.New("access denied")

const (
	MsgGroupOnly = "This command only works in groups."
	msgAdminOnly = "You must be an admin to use /%s."
	msgOwnerOnly = "This command is reserved for the bot owner."
)

func Chain(h HandlerFunc, m ...Middleware) HandlerFunc {
	for i := len(m) - 1; i >= 0; i-- {
		h = m[i](h)
	}
	return h
}

func MWTimeout(d time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			if d <= 0 {
				return next(ctx, req)
			}
			cctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next(cctx, req)
		}
	}
}

func MWPanicRecover(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger := log
					if req != nil && !req.Logger.IsZero() {
						logger = req.Logger
					}
					logger.Error("panic recovered",
						logx.Any("panic", r),
						logx.String("stack", string(debug.Stack())),
					)
					err = fmt.Errorf("panic: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}

func MWRequestLog(log logx.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			start := time.Now()
			logger := log
			if req != nil && !req.Logger.IsZero() {
				logger = req.Logger
			}
			err := next(ctx, req)
			d := time.Since(start)

			fields := []logx.Field{
				logx.String("kind", string(req.Update.Kind)),
				logx.Int64("chat_id", req.Chat.ChatID),
				logx.Int64("from_id", req.From.ID),
				logx.String("cmd", req.Command),
				logx.Duration("dur", d),
			}
			switch {
			case errors.Is(err, ErrDenied):
				logger.Debug("request denied", fields...)
			case err != nil:
				logger.Warn("request failed", append(fields, logx.Err(err))...)
			case d >= 750*time.Millisecond:
				logger.Info("request ok", fields...)
			default:
				logger.Debug("request ok", fields...)
			}
			return err
		}
	}
}

// MWAccess enforces the command's group-only and privilege requirements,
// replying to the sender when the check fails. Checks run in that order.
func MWAccess(cmd Command) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			msg := req.Message
			if cmd.GroupOnly && (msg == nil || !msg.IsGroup()) {
				_ = req.Reply(ctx, MsgGroupOnly)
				return ErrDenied
			}
			switch cmd.Access {
			case AccessOwnerOnly:
				if !req.IsOwner() {
					_ = req.Reply(ctx, msgOwnerOnly)
					return ErrDenied
				}
			case AccessAdmin:
				if !isChatAdmin(ctx, req) {
					_ = req.Reply(ctx, fmt.Sprintf(msgAdminOnly, cmd.Name))
					return ErrDenied
				}
			}
			return next(ctx, req)
		}
	}
}

// isChatAdmin asks the platform for the sender's status. Owners always pass;
// a failed lookup counts as not admin.
func isChatAdmin(ctx context.Context, req *Request) bool {
	if req.IsOwner() {
		return true
	}
	if req.Message == nil || !req.Message.IsGroup() {
		return false
	}
	member, err := req.Adapter.ChatMember(ctx, req.Chat.ChatID, req.From.ID)
	if err != nil {
		metrics.PlatformErrorsTotal.WithLabelValues("chat_member").Inc()
		req.Logger.Debug("admin lookup failed", logx.Err(err))
		return false
	}
	return member.IsAdmin()
}

func MWMetrics(command string) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *Request) error {
			err := next(ctx, req)
			outcome := "ok"
			switch {
			case errors.Is(err, ErrDenied):
				outcome = "denied"
			case err != nil:
				outcome = "error"
			}
			metrics.CommandsTotal.WithLabelValues(command, outcome).Inc()
			return err
		}
	}
}
