// Package moderation implements the bot's chat commands: warn, mute and ban
// with their punishment log entries, the warn chart and leaderboard, and the
// greeting and chatter replies.
package moderation

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"doggobot/internal/chart"
	"doggobot/internal/punish"
	kit "doggobot/internal/transport"
	"doggobot/internal/transport/telegram/router"
	logx "doggobot/pkg/logx"
	"doggobot/pkg/tgui"
)

const (
	msgStart   = "My name is Doggo and I’ll be assisting this group with moderation!"
	msgWelcome = "👋 Welcome %s! Please read the group rules."
	msgWarned  = "⚠️ %s has been warned. Reason: %s\nTotal warns: %d"
	msgMuted   = "🔇 %s is muted for %s. Reason: %s"
	msgBanned  = "🚫 %s has been banned. Reason: %s"
	msgFailed  = "❌ Could not %s user: %s"
	msgCaption = "Warns for %s in last %d day(s)"
)

type Module struct {
	log logx.Logger
	svc *punish.Service
	cfg atomic.Pointer[Config]
}

func New(svc *punish.Service, log logx.Logger, cfg Config) *Module {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &Module{svc: svc, log: log.With(logx.String("comp", "moderation"))}
	m.SetConfig(cfg)
	return m
}

// SetConfig swaps the knobs used by subsequent commands.
func (m *Module) SetConfig(cfg Config) {
	cfg = cfg.withDefaults()
	m.cfg.Store(&cfg)
}

func (m *Module) config() Config { return *m.cfg.Load() }

// Register installs the commands and the text and join handlers, plus any
// extra commands owned by other packages.
func (m *Module) Register(cm *router.CommandManager, extra ...router.Command) {
	cm.SetDefaultTimeout(m.config().PlatformTimeout)
	cm.OnText(m.handleText)
	cm.OnJoin(m.handleJoin)
	cm.SetRegistry(append(m.Commands(), extra...))
}

func (m *Module) Commands() []router.Command {
	return []router.Command{
		{Name: "start", Description: "Introduce the bot", Handle: m.handleStart},
		{Name: "warn", Description: "Warn a user (reply or tap their name)", Usage: "/warn [reason]", Access: router.AccessAdmin, GroupOnly: true, Handle: m.handleWarn},
		{Name: "mute", Description: "Mute a user for a while", Usage: "/mute [reason]", Access: router.AccessAdmin, GroupOnly: true, Handle: m.handleMute},
		{Name: "ban", Description: "Ban a user", Usage: "/ban [reason]", Access: router.AccessAdmin, GroupOnly: true, Handle: m.handleBan},
		{Name: "warnchart", Aliases: []string{"warns"}, Description: "Chart a user's warnings per day", Usage: "/warnchart [30d|4w|1m] @user", Access: router.AccessAdmin, GroupOnly: true, Handle: m.handleWarnChart},
		{Name: "topwarns", Description: "Most warned users in this chat", Usage: "/topwarns [30d]", Access: router.AccessAdmin, GroupOnly: true, Handle: m.handleTopWarns},
	}
}

func (m *Module) handleStart(ctx context.Context, req *router.Request) error {
	return req.Reply(ctx, msgStart)
}

func (m *Module) handleText(ctx context.Context, req *router.Request) error {
	reply := m.config().ChatterReply
	if reply == "" {
		return nil
	}
	return req.Reply(ctx, reply)
}

func (m *Module) handleJoin(ctx context.Context, req *router.Request) error {
	if !m.config().Welcome {
		return nil
	}
	for _, u := range req.Message.NewMembers {
		if _, err := req.Adapter.SendText(ctx, req.Chat, fmt.Sprintf(msgWelcome, u.Mention()), nil); err != nil {
			return fmt.Errorf("welcome %d: %w", u.ID, err)
		}
	}
	return nil
}

func (m *Module) handleWarn(ctx context.Context, req *router.Request) error {
	target, err := resolveTarget(ctx, req.Adapter, req.Message, false)
	if err != nil {
		return req.Reply(ctx, msgNeedUser)
	}
	reason := parseReason(req.Message, req.Rest)
	if err := m.record(ctx, req, target, punish.ActionWarned, reason); err != nil {
		return err
	}
	total, err := m.svc.CountUserWarnings(ctx, req.Chat.ChatID, target.ID, time.Time{})
	if err != nil {
		return fmt.Errorf("count warnings: %w", err)
	}
	return req.Reply(ctx, fmt.Sprintf(msgWarned, target.DisplayName(), reason, total))
}

func (m *Module) handleMute(ctx context.Context, req *router.Request) error {
	target, err := resolveTarget(ctx, req.Adapter, req.Message, false)
	if err != nil {
		return req.Reply(ctx, msgNeedUser)
	}
	reason := parseReason(req.Message, req.Rest)
	d := m.config().MuteDuration

	if err := req.Adapter.Restrict(ctx, req.Chat.ChatID, target.ID, m.svc.Now().Add(d)); err != nil {
		_ = req.Reply(ctx, fmt.Sprintf(msgFailed, "mute", kit.Describe(err)))
		return fmt.Errorf("restrict %d: %w", target.ID, err)
	}
	if err := m.record(ctx, req, target, punish.ActionMuted, reason); err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf(msgMuted, target.DisplayName(), humanDuration(d), reason))
}

func (m *Module) handleBan(ctx context.Context, req *router.Request) error {
	target, err := resolveTarget(ctx, req.Adapter, req.Message, false)
	if err != nil {
		return req.Reply(ctx, msgNeedUser)
	}
	reason := parseReason(req.Message, req.Rest)

	if err := req.Adapter.Ban(ctx, req.Chat.ChatID, target.ID); err != nil {
		_ = req.Reply(ctx, fmt.Sprintf(msgFailed, "ban", kit.Describe(err)))
		return fmt.Errorf("ban %d: %w", target.ID, err)
	}
	if err := m.record(ctx, req, target, punish.ActionBanned, reason); err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf(msgBanned, target.DisplayName(), reason))
}

// record appends the entry. A failed append is reported to the moderator;
// a platform action that already happened is not undone.
//
// The append is detached from the command deadline: once the platform call
// succeeded the entry must be written even if the handler ran out of time.
func (m *Module) record(ctx context.Context, req *router.Request, target kit.User, action punish.Action, reason string) error {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()
	_, err := m.svc.Append(actx, punish.Punishment{
		ChatID:    req.Chat.ChatID,
		UserID:    target.ID,
		Username:  target.Username,
		Moderator: moderatorLabel(req.From),
		Action:    action,
		Reason:    reason,
	})
	if err != nil {
		_ = req.Reply(ctx, fmt.Sprintf(msgFailed, verb(action), "the punishment log could not be saved"))
		return fmt.Errorf("append %s: %w", action, err)
	}
	req.Logger.Info("punishment recorded",
		logx.String("action", string(action)),
		logx.Int64("target_id", target.ID),
		logx.String("reason", reason),
	)
	return nil
}

func (m *Module) handleWarnChart(ctx context.Context, req *router.Request) error {
	target, err := resolveTarget(ctx, req.Adapter, req.Message, true)
	if err != nil {
		return req.Reply(ctx, msgNeedUser)
	}
	window := punish.FindWindow(req.Args, m.config().DefaultWindow)
	chatID := req.Chat.ChatID
	q := punish.DailyQuery{ChatID: &chatID, Since: m.svc.Now().Add(-window)}
	if target.ID != 0 {
		q.UserID = &target.ID
	} else {
		q.Username = target.Username
	}

	series, err := m.svc.WarningsPerDay(ctx, q)
	if err != nil {
		return fmt.Errorf("warnings per day: %w", err)
	}
	img, err := chart.RenderDaily(series, chart.Options{})
	if err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	_, err = req.Adapter.SendPhoto(ctx, req.Chat, kit.Photo{
		Data:     img,
		Filename: "warnchart.png",
		Caption:  fmt.Sprintf(msgCaption, captionLabel(target), punish.Days(window)),
	}, nil)
	return err
}

func (m *Module) handleTopWarns(ctx context.Context, req *router.Request) error {
	window := punish.FindWindow(req.Args, m.config().DefaultWindow)
	chatID := req.Chat.ChatID
	top, err := m.svc.TopWarned(ctx, punish.TopQuery{ChatID: &chatID, Since: m.svc.Now().Add(-window)})
	if err != nil {
		return fmt.Errorf("top warned: %w", err)
	}
	_, err = Leaderboard(top, punish.Days(window)).Send(ctx, req.Adapter, req.Chat, req.Message.ID)
	return err
}

// Leaderboard renders TopWarned rows as an HTML message.
func Leaderboard(top []punish.LabelCount, days int) tgui.Message {
	b := tgui.New().Title("🏆", fmt.Sprintf("Most warned, last %d day(s)", days))
	if len(top) == 0 {
		return b.Line("No warnings recorded.").Build()
	}
	rows := make([]tgui.RankRow, len(top))
	total := 0
	for i, lc := range top {
		rows[i] = tgui.RankRow{Label: lc.Label, Count: lc.Count}
		total += lc.Count
	}
	return b.KV("Warnings", strconv.Itoa(total)).Blank().Ranked(rows).Build()
}

func verb(a punish.Action) string {
	switch a {
	case punish.ActionMuted:
		return "mute"
	case punish.ActionBanned:
		return "ban"
	default:
		return "warn"
	}
}

// humanDuration renders whole hours or minutes: "10 minutes", "1 hour".
func humanDuration(d time.Duration) string {
	plural := func(n int64, unit string) string {
		if n == 1 {
			return "1 " + unit
		}
		return fmt.Sprintf("%d %ss", n, unit)
	}
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute:
		return plural(int64(d/time.Minute), "minute")
	default:
		return plural(int64(d/time.Second), "second")
	}
}
