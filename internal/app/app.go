// Package app wires the bot process: config, logging, the punishment log,
// the Telegram adapter, command routing, the digest, and optionally the
// website and a metrics listener.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"doggobot/internal/accounts"
	"doggobot/internal/config"
	"doggobot/internal/moderation"
	"doggobot/internal/punish"
	"doggobot/internal/report"
	"doggobot/internal/runtime/supervisor"
	"doggobot/internal/storage"
	kit "doggobot/internal/transport"
	telegram "doggobot/internal/transport/telegram/adapter"
	"doggobot/internal/transport/telegram/router"
	"doggobot/internal/web"
	logx "doggobot/pkg/logx"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log  logx.Logger
	logs *logx.Service

	store    storage.Store
	punish   *punish.Service
	adapter  kit.Adapter
	cmdm     *router.CommandManager
	mod      *moderation.Module
	report   *report.Service
	web      *web.Server
	accounts *accounts.Store

	metricsAddr string
	updates     chan kit.Update
}

// NewApp loads cfgPath, connects to Telegram and builds every component.
// Nothing runs until Start.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return nil, err
	}
	token, err := config.ResolveToken(cfg.Telegram)
	if err != nil {
		return nil, err
	}
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{Token: token, PollTimeout: pollTimeout}, bootLog)
	if err != nil {
		return nil, err
	}
	return build(cfgm, cfg, ad, ad.BotUsername())
}

// build assembles the app around an already connected adapter.
func build(cfgm *config.ConfigManager, cfg *config.Config, ad kit.Adapter, botUsername string) (*App, error) {
	// logx.New applies immediately and warns about a Telegram sink without
	// a target, so the sink is enabled only after the target is set.
	logCfg := mapLoggingConfig(cfg)
	tgEnabled := logCfg.Telegram.Enabled
	logCfg.Telegram.Enabled = false
	sender, _ := ad.(logx.ChatSender)
	logSvc, root := logx.New(logCfg, sender)
	log := root.With(logx.String("comp", "app"))
	if chatID, threadID, err := config.ParseGroupLog(cfg.Telegram.GroupLog); err == nil && chatID != 0 {
		if threadID == 0 {
			threadID = cfg.Logging.Telegram.ThreadID
		}
		logSvc.SetTelegramTarget(chatID, threadID)
	}
	logCfg.Telegram.Enabled = tgEnabled
	logSvc.Apply(logCfg)
	cfgm.SetLogger(root)

	loc, err := config.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(mapStorageConfig(cfg), root.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	psvc := punish.NewService(store, root, punish.WithLocation(loc))
	log.Info("punishment log ready", logx.String("driver", cfg.Storage.Driver), logx.String("tz", loc.String()))

	modCfg, err := mapModerationConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	repCfg, err := mapReportConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	cmdm := router.NewCommandManager(root.With(logx.String("comp", "commands")), ad, cfg.Telegram.OwnerUserIDs)
	cmdm.SetBotUsername(botUsername)
	mod := moderation.New(psvc, root, modCfg)
	rep := report.New(repCfg, psvc, ad, root)
	mod.Register(cmdm, rep.Command())

	a := &App{
		cfgm:        cfgm,
		log:         log,
		logs:        logSvc,
		store:       store,
		punish:      psvc,
		adapter:     ad,
		cmdm:        cmdm,
		mod:         mod,
		report:      rep,
		metricsAddr: strings.TrimSpace(cfg.Metrics.Addr),
		updates:     make(chan kit.Update, 256),
	}
	if cfg.Web.Embedded {
		srv, acct, err := OpenWeb(cfg, psvc, root)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		a.web, a.accounts = srv, acct
	}
	return a, nil
}

// OpenWeb opens the accounts database and builds the website over svc.
func OpenWeb(cfg *config.Config, svc *punish.Service, log logx.Logger) (*web.Server, *accounts.Store, error) {
	acct, err := accounts.Open(cfg.Web.AccountsDB, log)
	if err != nil {
		return nil, nil, fmt.Errorf("open accounts: %w", err)
	}
	srv, err := web.New(MapWebConfig(cfg), svc, acct, log)
	if err != nil {
		_ = acct.Close()
		return nil, nil, err
	}
	return srv, acct, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	c := a.sup.Context()

	if err := a.adapter.Start(c, a.updates); err != nil {
		return err
	}
	a.sup.Go("commands.dispatch", func(c context.Context) error {
		return a.cmdm.DispatchLoop(c, a.updates)
	})
	if err := a.report.Start(c); err != nil {
		return err
	}
	if a.web != nil {
		a.sup.Go("web", a.web.Run)
	}
	if a.metricsAddr != "" {
		addr := a.metricsAddr
		a.sup.Go("metrics", func(c context.Context) error {
			return ServeMetrics(c, addr, a.log)
		})
	}

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		a.reloadLoop(c, sub)
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	notifyReady(a.log)
	a.log.Info("app started")
	return nil
}

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
			// keep only the newest of a burst
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

// applyConfig re-applies the hot-reloadable parts of next: logging, owners,
// moderation knobs and the digest schedule.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	chatID, threadID, _ := config.ParseGroupLog(next.Telegram.GroupLog)
	if threadID == 0 {
		threadID = next.Logging.Telegram.ThreadID
	}
	a.logs.SetTelegramTarget(chatID, threadID)
	a.logs.Apply(mapLoggingConfig(next))

	a.cmdm.SetOwners(next.Telegram.OwnerUserIDs)

	if mc, err := mapModerationConfig(next); err != nil {
		a.log.Warn("invalid moderation config; keeping previous", logx.Err(err))
	} else {
		a.mod.SetConfig(mc)
		a.cmdm.SetDefaultTimeout(mc.PlatformTimeout)
	}
	if rc, err := mapReportConfig(next); err != nil {
		a.log.Warn("invalid report config; keeping previous", logx.Err(err))
	} else if err := a.report.Apply(rc); err != nil {
		a.log.Warn("report reschedule failed", logx.Err(err))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	notifyStopping(a.log)
	a.sup.Cancel()

	var errs []error
	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		sctx, cancel := context.WithTimeout(ctx, max)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	}

	step("report", 2*time.Second, func(c context.Context) error { a.report.Stop(c); return nil })
	step("adapter", 3*time.Second, a.adapter.Stop)
	step("supervisor", 6*time.Second, a.sup.Wait)
	step("storage", time.Second, func(context.Context) error { return a.store.Close() })
	if a.accounts != nil {
		step("accounts", time.Second, func(context.Context) error { return a.accounts.Close() })
	}

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return errors.Join(errs...)
}
