// Package report posts a scheduled digest of the most warned users, with a
// per-day chart, to a configured chat.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"doggobot/internal/chart"
	"doggobot/internal/metrics"
	"doggobot/internal/moderation"
	"doggobot/internal/punish"
	kit "doggobot/internal/transport"
	"doggobot/internal/transport/telegram/router"
	logx "doggobot/pkg/logx"
)

const DefaultSchedule = "0 9 * * 1"

type Config struct {
	Enabled  bool
	Schedule string
	Timezone string
	Window   time.Duration
	ChatID   int64
	ThreadID int
	// ScopeChatID limits the digest to one chat; 0 covers all chats.
	ScopeChatID int64
	Timeout     time.Duration
}

var ErrNoChat = errors.New("report: chat_id is not set")

// SecondOptional accepts both 5-field and 6-field (with seconds) specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule checks a cron spec without scheduling it.
func ValidateSchedule(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	_, err := parser.Parse(spec)
	return err
}

type Service struct {
	log logx.Logger
	svc *punish.Service
	ad  kit.Adapter

	mu  sync.Mutex
	cfg Config
	c   *cron.Cron
	ctx context.Context
}

func New(cfg Config, svc *punish.Service, ad kit.Adapter, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: withDefaults(cfg), svc: svc, ad: ad, log: log.With(logx.String("comp", "report"))}
}

func withDefaults(cfg Config) Config {
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.Window <= 0 {
		cfg.Window = 7 * punish.Day
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return cfg
}

// Start begins cron triggering when the digest is enabled. Jobs run with a
// context derived from ctx.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ctx = ctx
	return s.startLocked()
}

func (s *Service) startLocked() error {
	if s.c != nil || !s.cfg.Enabled {
		return nil
	}
	if s.cfg.ChatID == 0 {
		return ErrNoChat
	}
	loc := time.Local
	if tz := strings.TrimSpace(s.cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("report timezone %q: %w", tz, err)
		}
		loc = l
	}
	c := cron.New(cron.WithParser(parser), cron.WithLocation(loc), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.cfg.Schedule, s.tick); err != nil {
		return fmt.Errorf("report schedule %q: %w", s.cfg.Schedule, err)
	}
	c.Start()
	s.c = c
	s.log.Info("digest scheduled", logx.String("schedule", s.cfg.Schedule), logx.String("tz", loc.String()), logx.Int64("chat_id", s.cfg.ChatID))
	return nil
}

// Stop stops triggering and waits for a running digest, bounded by ctx.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
}

// Apply swaps the config and reschedules if the service was started.
func (s *Service) Apply(cfg Config) error {
	cfg = withDefaults(cfg)
	s.mu.Lock()
	old := s.c
	s.c = nil
	s.cfg = cfg
	started := s.ctx != nil
	var err error
	if started {
		err = s.startLocked()
	}
	s.mu.Unlock()

	if old != nil {
		old.Stop()
	}
	return err
}

func (s *Service) tick() {
	s.mu.Lock()
	cfg := s.cfg
	parent := s.ctx
	s.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithTimeout(parent, cfg.Timeout)
	defer cancel()

	to := kit.ChatTarget{ChatID: cfg.ChatID, ThreadID: cfg.ThreadID}
	if err := s.Send(ctx, to); err != nil {
		s.log.Warn("digest failed", logx.Err(err))
	}
}

// Send posts the digest to the given chat now.
func (s *Service) Send(ctx context.Context, to kit.ChatTarget) error {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	err := s.send(ctx, cfg, to)
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ReportsSentTotal.WithLabelValues(status).Inc()
	return err
}

func (s *Service) send(ctx context.Context, cfg Config, to kit.ChatTarget) error {
	since := s.svc.Now().Add(-cfg.Window)
	days := punish.Days(cfg.Window)
	var scope *int64
	if cfg.ScopeChatID != 0 {
		scope = &cfg.ScopeChatID
	}

	top, err := s.svc.TopWarned(ctx, punish.TopQuery{ChatID: scope, Since: since})
	if err != nil {
		return fmt.Errorf("top warned: %w", err)
	}
	if _, err := moderation.Leaderboard(top, days).Send(ctx, s.ad, to, 0); err != nil {
		return fmt.Errorf("send leaderboard: %w", err)
	}

	series, err := s.svc.WarningsPerDay(ctx, punish.DailyQuery{ChatID: scope, Since: since})
	if err != nil {
		return fmt.Errorf("warnings per day: %w", err)
	}
	if len(series) == 0 {
		return nil
	}
	img, err := chart.RenderDaily(series, chart.Options{})
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err = s.ad.SendPhoto(ctx, to, kit.Photo{
		Data:     img,
		Filename: "digest.png",
		Caption:  fmt.Sprintf("Warnings per day, last %d day(s)", days),
	}, nil)
	if err != nil {
		return fmt.Errorf("send chart: %w", err)
	}
	s.log.Info("digest sent", logx.Int64("chat_id", to.ChatID), logx.Int("rows", len(top)))
	return nil
}

// Command is the owner-only /digest, which posts the digest to the
// requesting chat.
func (s *Service) Command() router.Command {
	return router.Command{
		Name:        "digest",
		Description: "Post the warn digest here now",
		Access:      router.AccessOwnerOnly,
		Timeout:     30 * time.Second,
		Handle: func(ctx context.Context, req *router.Request) error {
			return s.Send(ctx, req.Chat)
		},
	}
}
