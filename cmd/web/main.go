// Command web serves the admin website over the bot's punishment log.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	"doggobot/internal/app"
	"doggobot/internal/config"
	"doggobot/internal/punish"
	"doggobot/internal/storage"
	logx "doggobot/pkg/logx"
)

func main() {
	var (
		cfgPath string
		addr    string
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json or yaml")
	flag.StringVar(&addr, "addr", "", "listen address (overrides web.addr)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfgPath, addr); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfgPath, addr string) error {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(addr) != "" {
		cfg.Web.Addr = addr
	}
	if cfg.Storage.Driver == "bolt" {
		return fmt.Errorf("storage.driver %q is only served by the bot's embedded website", cfg.Storage.Driver)
	}

	logs, root := logx.New(logx.Config{Level: cfg.Logging.Level, Console: true}, nil)
	defer logs.Close()
	cfgm.SetLogger(root)
	log := root.With(logx.String("comp", "webmain"))

	loc, err := config.LoadLocation(cfg.Timezone)
	if err != nil {
		return err
	}
	store, err := storage.Open(storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path}, root.With(logx.String("comp", "storage")))
	if err != nil {
		return err
	}
	defer store.Close()
	svc := punish.NewService(store, root, punish.WithLocation(loc))

	srv, acct, err := app.OpenWeb(cfg, svc, root)
	if err != nil {
		return err
	}
	defer acct.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	if a := strings.TrimSpace(cfg.Metrics.Addr); a != "" {
		g.Go(func() error { return app.ServeMetrics(gctx, a, log) })
	}
	sub := cfgm.Subscribe(4)
	g.Go(func() error { return cfgm.Watch(gctx) })
	g.Go(func() error {
		defer cfgm.Unsubscribe(sub)
		for {
			select {
			case <-gctx.Done():
				return nil
			case next, ok := <-sub:
				if !ok {
					return nil
				}
				logs.Apply(logx.Config{Level: next.Logging.Level, Console: true})
				log.Info("log level applied", logx.String("level", next.Logging.Level))
			}
		}
	})
	log.Info("website started", logx.String("addr", cfg.Web.Addr))
	return g.Wait()
}
