package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"doggobot/internal/app"
	"doggobot/internal/config"
)

func main() {
	var (
		cfgPath    string
		checkToken bool
	)
	flag.StringVar(&cfgPath, "config", "./config.json", "path to config json or yaml")
	flag.BoolVar(&checkToken, "check-token", false, "validate the bot token from env/config and exit")
	flag.Parse()

	if checkToken {
		os.Exit(runCheckToken(cfgPath))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	a, err := app.NewApp(ctx, cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}

	reason := app.StopUnknown
	select {
	case sig := <-sigCh:
		reason = app.StopSIGTERM
		if sig == os.Interrupt {
			reason = app.StopSIGINT
		}
	case <-a.Done():
		reason = app.StopFatalError
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)
	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}

func runCheckToken(cfgPath string) int {
	cfg := &config.Config{}
	if _, err := os.Stat(cfgPath); err == nil {
		c, err := config.NewConfigManager(cfgPath).Parse()
		if err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			return 1
		}
		cfg = c
	}
	if _, err := config.ResolveToken(cfg.Telegram); err != nil {
		fmt.Fprintln(os.Stderr, "token:", err)
		return 1
	}
	fmt.Println("token ok")
	return 0
}
