package app

import (
	"time"

	"doggobot/internal/config"
	"doggobot/internal/moderation"
	"doggobot/internal/report"
	"doggobot/internal/storage"
	"doggobot/internal/web"
	logx "doggobot/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	return storage.Config{Driver: cfg.Storage.Driver, Path: cfg.Storage.Path}
}

func mapModerationConfig(cfg *config.Config) (moderation.Config, error) {
	mc := cfg.Moderation
	mute, err := config.ParseDurationOrDefault("moderation.mute_duration", mc.MuteDuration, moderation.DefaultMuteDuration)
	if err != nil {
		return moderation.Config{}, err
	}
	timeout, err := config.ParseDurationOrDefault("moderation.platform_timeout", mc.PlatformTimeout, moderation.DefaultPlatformTimeout)
	if err != nil {
		return moderation.Config{}, err
	}
	window, err := config.ParseWindowField("moderation.default_window", mc.DefaultWindow, moderation.DefaultWindow)
	if err != nil {
		return moderation.Config{}, err
	}
	out := moderation.Config{
		MuteDuration:    mute,
		DefaultWindow:   window,
		PlatformTimeout: timeout,
		Welcome:         mc.Welcome == nil || *mc.Welcome,
		ChatterReply:    moderation.DefaultChatterReply,
	}
	if mc.ChatterReply != nil {
		out.ChatterReply = *mc.ChatterReply
	}
	return out, nil
}

func mapReportConfig(cfg *config.Config) (report.Config, error) {
	rc := cfg.Report
	window, err := config.ParseWindowField("report.window", rc.Window, 7*24*time.Hour)
	if err != nil {
		return report.Config{}, err
	}
	timeout, err := config.ParseDurationField("report.timeout", rc.Timeout)
	if err != nil {
		return report.Config{}, err
	}
	tz := rc.Timezone
	if tz == "" {
		tz = cfg.Timezone
	}
	return report.Config{
		Enabled:     rc.Enabled,
		Schedule:    rc.Schedule,
		Timezone:    tz,
		Window:      window,
		ChatID:      rc.ChatID,
		ThreadID:    rc.ThreadID,
		ScopeChatID: rc.ScopeChatID,
		Timeout:     timeout,
	}, nil
}

// MapWebConfig is shared with cmd/web.
func MapWebConfig(cfg *config.Config) web.Config {
	w := cfg.Web
	return web.Config{
		Addr:            w.Addr,
		StaticDir:       w.StaticDir,
		LoginRatePerMin: w.LoginRatePerMin,
		ExposeMetrics:   w.ExposeMetrics,
		TrustedProxies:  w.TrustedProxies,
		Debug:           w.Debug,
	}
}
