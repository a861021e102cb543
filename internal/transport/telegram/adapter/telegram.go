package adapter

import (
	"bytes"
	"context"
	"errors"
	"hash/fnv"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"doggobot/internal/metrics"
	rtsup "doggobot/internal/runtime/supervisor"
	kit "doggobot/internal/transport"
	logx "doggobot/pkg/logx"
)

type Config struct {
	Token string
	// PollTimeout is the long-poll wait of one getUpdates call.
	PollTimeout time.Duration
	// RequestTimeout bounds every Bot API HTTP request.
	RequestTimeout time.Duration
	// RetryDelay is the first backoff after the poll loop crashed.
	RetryDelay time.Duration
}

type Adapter struct {
	cfg Config
	log logx.Logger

	bot     *tele.Bot
	out     atomic.Value // chan<- kit.Update
	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	// updates dropped because the router was slower than the poller
	droppedUpdates uint64

	menuMu   sync.Mutex
	menuHash uint64
}

// New connects to the Bot API. telebot calls getMe here, so a bad token
// fails fast.
func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = cfg.PollTimeout + 10*time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	a := &Adapter{cfg: cfg, log: log}

	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
		Client: &http.Client{Timeout: cfg.RequestTimeout},
		OnError: func(err error, c tele.Context) {
			a.log.Warn("telebot handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, convertError("getMe", err)
	}
	a.bot = b

	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.registerHandlers()
	if b.Me != nil {
		log.Info("connected", logx.String("bot", "@"+b.Me.Username), logx.Int64("bot_id", b.Me.ID))
	}
	return a, nil
}

// BotUsername is the bot's handle without "@".
func (a *Adapter) BotUsername() string {
	if a.bot == nil || a.bot.Me == nil {
		return ""
	}
	return a.bot.Me.Username
}

func (a *Adapter) registerHandlers() {
	// Handlers forward to the current output channel; Start may swap it.
	// Commands without a registered telebot endpoint also arrive as OnText.
	a.bot.Handle(tele.OnText, func(c tele.Context) error {
		if m := convertMessage(c.Message()); m != nil {
			a.sendUpdate(kit.Update{Kind: kit.UpdateMessage, Message: m})
		}
		return nil
	})
	a.bot.Handle(tele.OnUserJoined, func(c tele.Context) error {
		m := convertMessage(c.Message())
		if m == nil || len(m.NewMembers) == 0 {
			return nil
		}
		a.sendUpdate(kit.Update{Kind: kit.UpdateJoin, Message: m})
		return nil
	})
}

func (a *Adapter) sendUpdate(up kit.Update) {
	out, _ := a.out.Load().(chan<- kit.Update)
	if out == nil {
		return
	}
	select {
	case out <- up:
	default:
		atomic.AddUint64(&a.droppedUpdates, 1)
	}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error {
	a.runMu.Lock()
	if a.running {
		a.runMu.Unlock()
		return nil
	}
	a.running = true
	a.out.Store(out)
	a.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(a.log.With(logx.String("comp", "telegram.adapter"))),
		rtsup.WithCancelOnError(false),
	)
	sup := a.sup
	a.runMu.Unlock()

	sup.Go0("updates.drop_report", func(c context.Context) {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		flush := func() {
			if n := atomic.SwapUint64(&a.droppedUpdates, 0); n > 0 {
				a.log.Warn("incoming updates dropped (channel full)", logx.Uint64("count", n), logx.Int("chan_cap", cap(out)))
			}
		}
		for {
			select {
			case <-c.Done():
				flush()
				return
			case <-ticker.C:
				flush()
			}
		}
	})

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		a.bot.Stop()
	})

	// bot.Start blocks until Stop. If it returns or panics while we are
	// still running, poll again after a backoff.
	sup.GoRestart0("telebot.poll", func(c context.Context) {
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	},
		rtsup.WithRestartBackoff(a.cfg.RetryDelay, 6*a.cfg.RetryDelay),
		rtsup.WithPublishFirstError(true),
		rtsup.WithStopOnCleanExit(false),
	)
	return nil
}

func (a *Adapter) Stop(ctx context.Context) error {
	a.runMu.Lock()
	sup := a.sup
	a.sup = nil
	wasRunning := a.running
	a.running = false
	var nilOut chan<- kit.Update
	a.out.Store(nilOut)
	a.runMu.Unlock()

	if !wasRunning || sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.Uint64("dropped_updates_pending", atomic.LoadUint64(&a.droppedUpdates)))
	sup.Cancel()

	// Don't hold shutdown on a long-poll that is still waiting.
	grace := 2 * time.Second
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem > 0 && rem < grace {
			grace = rem
		}
	}
	wctx, cancel := context.WithTimeout(ctx, grace)
	defer cancel()
	if err := sup.Wait(wctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			a.log.Warn("telegram stop timed out", logx.Err(err))
			return nil
		}
		a.log.Debug("telegram stopped with supervisor error", logx.Err(err))
	}
	return nil
}

// call runs fn (a telebot request, which takes no context) and gives up
// waiting when ctx is done. The HTTP client timeout still bounds fn itself.
func (a *Adapter) call(ctx context.Context, op string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return &kit.PlatformError{Op: op, Err: kit.ErrPlatformTimeout}
	}
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		if err != nil {
			metrics.PlatformErrorsTotal.WithLabelValues(op).Inc()
			return convertError(op, err)
		}
		return nil
	case <-ctx.Done():
		metrics.PlatformErrorsTotal.WithLabelValues(op).Inc()
		return &kit.PlatformError{Op: op, Err: kit.ErrPlatformTimeout}
	}
}

func (a *Adapter) sendOptions(to kit.ChatTarget, opt *kit.SendOptions) *tele.SendOptions {
	so := &tele.SendOptions{ThreadID: to.ThreadID}
	if opt == nil {
		return so
	}
	so.ParseMode = tele.ParseMode(opt.ParseMode)
	so.DisableWebPagePreview = opt.DisablePreview
	if opt.ReplyTo != 0 {
		so.ReplyTo = &tele.Message{ID: opt.ReplyTo, Chat: &tele.Chat{ID: to.ChatID}}
	}
	return so
}

// SendText sends text, split into several messages when it is too long.
// Only the first chunk replies to opt.ReplyTo.
func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	if opt == nil {
		opt = &kit.SendOptions{}
	}
	chunks := splitTelegramText(text, telegramTextLimit, opt.ParseMode)
	chat := &tele.Chat{ID: to.ChatID}

	var first kit.MessageRef
	for i, chunk := range chunks {
		so := a.sendOptions(to, opt)
		if i > 0 {
			so.ReplyTo = nil
		}
		var msg *tele.Message
		err := a.call(ctx, "send_text", func() (err error) {
			msg, err = a.bot.Send(chat, chunk, so)
			return err
		})
		if err != nil {
			return first, err
		}
		if i == 0 {
			first = kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}
		}
	}
	return first, nil
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, p kit.Photo, opt *kit.SendOptions) (kit.MessageRef, error) {
	photo := &tele.Photo{File: tele.FromReader(bytes.NewReader(p.Data)), Caption: p.Caption}
	so := a.sendOptions(to, opt)

	var msg *tele.Message
	err := a.call(ctx, "send_photo", func() (err error) {
		msg, err = a.bot.Send(&tele.Chat{ID: to.ChatID}, photo, so)
		return err
	})
	if err != nil {
		return kit.MessageRef{}, err
	}
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: msg.ID}, nil
}

// SendLog implements logx.ChatSender.
func (a *Adapter) SendLog(ctx context.Context, chatID int64, threadID int, text string) error {
	_, err := a.SendText(ctx, kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}

func (a *Adapter) ChatMember(ctx context.Context, chatID, userID int64) (kit.Member, error) {
	var cm *tele.ChatMember
	err := a.call(ctx, "chat_member", func() (err error) {
		cm, err = a.bot.ChatMemberOf(&tele.Chat{ID: chatID}, &tele.User{ID: userID})
		return err
	})
	if err != nil {
		return kit.Member{}, err
	}
	return convertMember(cm), nil
}

// Restrict removes every send right until the given time.
func (a *Adapter) Restrict(ctx context.Context, chatID, userID int64, until time.Time) error {
	member := &tele.ChatMember{
		User:            &tele.User{ID: userID},
		Rights:          tele.NoRights(),
		RestrictedUntil: until.Unix(),
	}
	return a.call(ctx, "restrict", func() error {
		return a.bot.Restrict(&tele.Chat{ID: chatID}, member)
	})
}

// Ban removes the user from the chat permanently.
func (a *Adapter) Ban(ctx context.Context, chatID, userID int64) error {
	member := &tele.ChatMember{User: &tele.User{ID: userID}}
	return a.call(ctx, "ban", func() error {
		return a.bot.Ban(&tele.Chat{ID: chatID}, member)
	})
}

// UpdateMenuCommands replaces the bot's command menu. Calls with an unchanged
// list are skipped.
func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.menuMu.Lock()
	defer a.menuMu.Unlock()

	sum := menuHash(cmds)
	if sum == a.menuHash {
		return nil
	}
	tc := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Command == "" {
			continue
		}
		tc = append(tc, tele.Command{Text: c.Command, Description: c.Description})
	}
	if err := a.call(ctx, "set_commands", func() error { return a.bot.SetCommands(tc) }); err != nil {
		return err
	}
	a.menuHash = sum
	a.log.Info("menu commands updated", logx.Int("count", len(tc)))
	return nil
}

func menuHash(cmds []kit.BotCommand) uint64 {
	h := fnv.New64a()
	for _, c := range cmds {
		h.Write([]byte(c.Command))
		h.Write([]byte{0})
		h.Write([]byte(c.Description))
		h.Write([]byte{0})
	}
	return h.Sum64()
}
