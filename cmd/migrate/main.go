// Command migrate backfills chat_id (and absent user fields) on legacy
// punishment rows.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"doggobot/internal/config"
	"doggobot/internal/punish"
	"doggobot/internal/storage"
	logx "doggobot/pkg/logx"
)

func main() {
	var (
		cfgPath string
		driver  string
		path    string
		chatID  int64
		dryRun  bool
	)
	flag.StringVar(&cfgPath, "config", "", "config file to take storage settings from")
	flag.StringVar(&driver, "driver", "", "storage driver (file or bolt); overrides config")
	flag.StringVar(&path, "path", "", "storage path; overrides config")
	flag.Int64Var(&chatID, "chat-id", 0, "chat id to assign to rows without one (required)")
	flag.BoolVar(&dryRun, "dry-run", false, "report what would change without saving")
	flag.Parse()

	if chatID == 0 {
		fmt.Fprintln(os.Stderr, "-chat-id is required")
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sc := storage.Config{Driver: "file", Path: storage.DefaultPath}
	if cfgPath != "" {
		cfg, err := config.NewConfigManager(cfgPath).Parse()
		if err != nil {
			fmt.Fprintln(os.Stderr, "config:", err)
			os.Exit(1)
		}
		sc = storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path}
	}
	if driver != "" {
		sc.Driver = driver
	}
	if path != "" {
		sc.Path = path
	}

	log := logx.NewConsole("info").With(logx.String("comp", "migrate"))
	res, err := run(ctx, sc, chatID, dryRun, log)
	if err != nil {
		log.Error("migration failed", logx.Err(err))
		os.Exit(1)
	}
	fmt.Printf("chat_id set: %d, user_id added: %d, username added: %d, skipped: %d%s\n",
		res.ChatIDs, res.UserIDs, res.Usernames, res.Skipped, dryRunSuffix(dryRun))
}

func dryRunSuffix(dry bool) string {
	if dry {
		return " (dry run, nothing saved)"
	}
	return ""
}

func run(ctx context.Context, sc storage.Config, chatID int64, dryRun bool, log logx.Logger) (punish.BackfillResult, error) {
	if sc.Driver == "memory" {
		return punish.BackfillResult{}, fmt.Errorf("nothing to migrate in the memory driver")
	}
	store, err := storage.Open(sc, log)
	if err != nil {
		return punish.BackfillResult{}, err
	}
	defer store.Close()
	return migrate(ctx, store, chatID, dryRun)
}

func migrate(ctx context.Context, store storage.Store, chatID int64, dryRun bool) (punish.BackfillResult, error) {
	doc, err := store.Load(ctx)
	if err != nil {
		return punish.BackfillResult{}, err
	}
	res, err := punish.Backfill(doc, chatID)
	if err != nil {
		return res, err
	}
	if dryRun || !res.Changed() {
		return res, nil
	}
	if err := store.Save(ctx, doc); err != nil {
		return res, fmt.Errorf("save: %w", err)
	}
	return res, nil
}
