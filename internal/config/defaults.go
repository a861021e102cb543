package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"doggobot/internal/report"
)

const (
	DefaultStoragePath = "data/punishments.json"
	DefaultPollTimeout = "10s"
	DefaultWebAddr     = ":5000"
	DefaultStaticDir   = "web"
	DefaultAccountsDB  = "doggobot.db"
	DefaultLoginRate   = 10

	TokenEnv = "BOT_TOKEN"
)

var ErrInvalidToken = errors.New("bot token is missing or malformed")

var tokenRe = regexp.MustCompile(`^[0-9]+:[A-Za-z0-9_-]+$`)

// ApplyDefaults fills omitted fields in place.
func ApplyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Logging.Level) == "" {
		cfg.Logging.Level = "info"
	}
	if strings.TrimSpace(cfg.Telegram.PollTimeout) == "" {
		cfg.Telegram.PollTimeout = DefaultPollTimeout
	}
	if strings.TrimSpace(cfg.Storage.Driver) == "" {
		cfg.Storage.Driver = "file"
	}
	if strings.TrimSpace(cfg.Storage.Path) == "" && cfg.Storage.Driver != "memory" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Moderation.Welcome == nil {
		on := true
		cfg.Moderation.Welcome = &on
	}
	if strings.TrimSpace(cfg.Report.Schedule) == "" {
		cfg.Report.Schedule = report.DefaultSchedule
	}
	if strings.TrimSpace(cfg.Web.Addr) == "" {
		cfg.Web.Addr = DefaultWebAddr
	}
	if strings.TrimSpace(cfg.Web.StaticDir) == "" {
		cfg.Web.StaticDir = DefaultStaticDir
	}
	if strings.TrimSpace(cfg.Web.AccountsDB) == "" {
		cfg.Web.AccountsDB = DefaultAccountsDB
	}
	if cfg.Web.LoginRatePerMin == 0 {
		cfg.Web.LoginRatePerMin = DefaultLoginRate
	}
}

// Validate checks a defaulted config. The token is not checked here; see
// ResolveToken.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	_, err := ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	add(err)
	if _, _, err := ParseGroupLog(cfg.Telegram.GroupLog); err != nil {
		add(fmt.Errorf("telegram.group_log: %w", err))
	}
	if cfg.Logging.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.GroupLog) == "" {
		add(errors.New("logging.telegram.enabled requires telegram.group_log"))
	}

	switch cfg.Storage.Driver {
	case "file", "bolt", "memory":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	if cfg.Storage.Driver == "bolt" && !cfg.Web.Embedded {
		// bbolt holds an exclusive file lock, so cmd/web cannot open it alongside the bot.
		add(errors.New("storage.driver \"bolt\" requires web.embedded"))
	}

	_, err = ParseDurationField("moderation.mute_duration", cfg.Moderation.MuteDuration)
	add(err)
	_, err = ParseDurationField("moderation.platform_timeout", cfg.Moderation.PlatformTimeout)
	add(err)
	_, err = ParseWindowField("moderation.default_window", cfg.Moderation.DefaultWindow, 0)
	add(err)

	if err := report.ValidateSchedule(cfg.Report.Schedule); err != nil {
		add(fmt.Errorf("report.schedule: %w", err))
	}
	_, err = ParseWindowField("report.window", cfg.Report.Window, 0)
	add(err)
	_, err = ParseDurationField("report.timeout", cfg.Report.Timeout)
	add(err)
	if cfg.Report.Enabled && cfg.Report.ChatID == 0 {
		add(errors.New("report.enabled requires report.chat_id"))
	}
	for _, tz := range []struct{ path, v string }{
		{"timezone", cfg.Timezone},
		{"report.timezone", cfg.Report.Timezone},
	} {
		if _, err := LoadLocation(tz.v); err != nil {
			add(fmt.Errorf("%s: %w", tz.path, err))
		}
	}
	return errors.Join(errs...)
}

// ValidateContext adapts Validate to the manager's validator hook.
func ValidateContext(_ context.Context, cfg *Config) error {
	ApplyDefaults(cfg)
	return Validate(cfg)
}

// LoadLocation resolves an IANA zone name; empty is time.Local.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}

// ParseGroupLog parses "<chat_id>" or "<chat_id>:<thread_id>". Empty is 0, 0.
func ParseGroupLog(raw string) (chatID int64, threadID int, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, 0, nil
	}
	chat, thread, hasThread := strings.Cut(raw, ":")
	chatID, err = strconv.ParseInt(strings.TrimSpace(chat), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid chat id %q", chat)
	}
	if hasThread {
		threadID, err = strconv.Atoi(strings.TrimSpace(thread))
		if err != nil || threadID < 0 {
			return 0, 0, fmt.Errorf("invalid thread id %q", thread)
		}
	}
	return chatID, threadID, nil
}

// ResolveToken picks the bot token from BOT_TOKEN, then telegram.token, then
// telegram.token_file, and checks its shape.
func ResolveToken(cfg TelegramConfig) (string, error) {
	tok := strings.TrimSpace(os.Getenv(TokenEnv))
	if tok == "" {
		tok = strings.TrimSpace(cfg.Token)
	}
	if tok == "" && strings.TrimSpace(cfg.TokenFile) != "" {
		b, err := os.ReadFile(strings.TrimSpace(cfg.TokenFile))
		if err != nil {
			return "", fmt.Errorf("read token_file: %w", err)
		}
		tok = strings.TrimSpace(string(b))
	}
	if !tokenRe.MatchString(tok) {
		return "", ErrInvalidToken
	}
	return tok, nil
}
