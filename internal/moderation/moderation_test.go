package moderation

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"doggobot/internal/punish"
	"doggobot/internal/storage"
	kit "doggobot/internal/transport"
	"doggobot/internal/transport/telegram/router"
	"doggobot/internal/transport/transporttest"
	logx "doggobot/pkg/logx"
)

const chatID = -1001

var (
	fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	mod      = kit.User{ID: 1, Username: "mod", FirstName: "Mo"}
	alice    = kit.User{ID: 42, Username: "alice", FirstName: "Alice"}
)

type harness struct {
	store *storage.Memory
	svc   *punish.Service
	fake  *transporttest.Adapter
	cm    *router.CommandManager
	mod   *Module
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{store: storage.NewMemory(), fake: transporttest.New()}
	h.fake.Members[mod.ID] = kit.MemberAdministrator
	h.svc = punish.NewService(h.store, logx.Nop(),
		punish.WithLocation(time.UTC),
		punish.WithClock(func() time.Time { return fixedNow }),
	)
	h.cm = router.NewCommandManager(logx.Nop(), h.fake, nil)
	h.mod = New(h.svc, logx.Nop(), cfg)
	h.mod.Register(h.cm)
	return h
}

// replyTo sends text from mod as a reply to a message by alice.
func (h *harness) replyTo(text string) {
	msg := transporttest.GroupMessage(chatID, mod, text)
	msg.ReplyFrom = &alice
	h.cm.Process(context.Background(), transporttest.Update(msg))
}

func (h *harness) entries(t *testing.T) []punish.Entry {
	t.Helper()
	log, err := h.svc.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var out []punish.Entry
	for _, k := range []string{"42", "alice", "unknown"} {
		out = append(out, log[k]...)
	}
	return out
}

func TestWarnByReply(t *testing.T) {
	h := newHarness(t, Config{})
	h.replyTo("/warn spamming links")
	h.replyTo("/warn")

	want := "⚠️ Alice has been warned. Reason: No reason provided\nTotal warns: 2"
	if got := h.fake.LastText(); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
	es := h.entries(t)
	if len(es) != 2 {
		t.Fatalf("entries = %d, want 2", len(es))
	}
	e := es[0]
	if e.Action != punish.ActionWarned || *e.Reason != "spamming links" || *e.Moderator != "@mod" || *e.UserID != 42 || *e.ChatID != chatID {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.TS != fixedNow.Unix() {
		t.Fatalf("ts = %d", e.TS)
	}
}

func TestWarnByTextMention(t *testing.T) {
	h := newHarness(t, Config{})
	bob := kit.User{ID: 7, FirstName: "Bob"}
	msg := transporttest.GroupMessage(chatID, mod, "/warn Bob be nice")
	msg.Entities = []kit.Entity{
		{Kind: kit.EntityCommand, Offset: 0, Length: 5},
		{Kind: kit.EntityTextMention, Offset: 6, Length: 3, User: &bob},
	}
	h.cm.Process(context.Background(), transporttest.Update(msg))

	want := "⚠️ Bob has been warned. Reason: be nice\nTotal warns: 1"
	if got := h.fake.LastText(); got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
	log, _ := h.svc.Load(context.Background())
	if len(log["7"]) != 1 || log["7"][0].Username != nil {
		t.Fatalf("group 7 = %+v", log["7"])
	}
}

func TestWarnWithoutTarget(t *testing.T) {
	h := newHarness(t, Config{})
	h.cm.Process(context.Background(), transporttest.Update(transporttest.GroupMessage(chatID, mod, "/warn @alice")))
	if got := h.fake.LastText(); got != msgNeedUser {
		t.Fatalf("reply = %q", got)
	}
	if h.store.Saves() != 0 {
		t.Fatal("nothing should be saved")
	}
}

func TestMute(t *testing.T) {
	h := newHarness(t, Config{})
	h.replyTo("/mute flooding")

	rs := h.fake.Restrictions()
	if len(rs) != 1 || rs[0].UserID != 42 || rs[0].ChatID != chatID || !rs[0].Until.Equal(fixedNow.Add(10*time.Minute)) {
		t.Fatalf("restrictions = %+v", rs)
	}
	if got, want := h.fake.LastText(), "🔇 Alice is muted for 10 minutes. Reason: flooding"; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
	if es := h.entries(t); len(es) != 1 || es[0].Action != punish.ActionMuted {
		t.Fatalf("entries = %+v", es)
	}
}

func TestPlatformFailureSkipsAppend(t *testing.T) {
	tests := []struct {
		cmd  string
		set  func(a *transporttest.Adapter, err error)
		want string
	}{
		{"/mute", func(a *transporttest.Adapter, err error) { a.RestrictErr = err }, "❌ Could not mute user: Bad Request: not enough rights"},
		{"/ban", func(a *transporttest.Adapter, err error) { a.BanErr = err }, "❌ Could not ban user: Bad Request: not enough rights"},
	}
	for _, tc := range tests {
		t.Run(tc.cmd, func(t *testing.T) {
			h := newHarness(t, Config{})
			tc.set(h.fake, &kit.PlatformError{Op: "x", Code: 400, Description: "Bad Request: not enough rights"})
			h.replyTo(tc.cmd + " reason")
			if got := h.fake.LastText(); got != tc.want {
				t.Fatalf("reply = %q, want %q", got, tc.want)
			}
			if h.store.Saves() != 0 {
				t.Fatal("append should be skipped")
			}
		})
	}
}

func TestBanRecordedAfterDeadline(t *testing.T) {
	h := newHarness(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := transporttest.GroupMessage(chatID, mod, "/ban too late")
	msg.ReplyFrom = &alice
	req := &router.Request{
		Message: msg,
		Chat:    kit.ChatTarget{ChatID: chatID},
		From:    mod,
		Command: "ban",
		Args:    []string{"too", "late"},
		Rest:    "too late",
		Adapter: h.fake,
		Logger:  logx.Nop(),
	}
	if err := h.mod.handleBan(ctx, req); err != nil {
		t.Fatalf("handleBan() = %v", err)
	}
	if len(h.fake.Bans()) != 1 {
		t.Fatalf("bans = %v", h.fake.Bans())
	}
	es := h.entries(t)
	if len(es) != 1 || es[0].Action != punish.ActionBanned || *es[0].Reason != "too late" {
		t.Fatalf("entries = %+v", es)
	}
}

func TestBan(t *testing.T) {
	h := newHarness(t, Config{})
	h.replyTo("/ban")
	if bans := h.fake.Bans(); len(bans) != 1 || bans[0] != [2]int64{chatID, 42} {
		t.Fatalf("bans = %v", bans)
	}
	if got, want := h.fake.LastText(), "🚫 Alice has been banned. Reason: No reason provided"; got != want {
		t.Fatalf("reply = %q, want %q", got, want)
	}
}

func TestWarnChart(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	for _, at := range []time.Time{fixedNow.Add(-48 * time.Hour), fixedNow.Add(-40 * 24 * time.Hour)} {
		if _, err := h.svc.Append(ctx, punish.Punishment{ChatID: chatID, UserID: 42, Username: "alice", Action: punish.ActionWarned, At: at}); err != nil {
			t.Fatal(err)
		}
	}

	msg := transporttest.GroupMessage(chatID, mod, "/warns @alice 2w")
	msg.Entities = []kit.Entity{{Kind: kit.EntityMention, Offset: 7, Length: 6}}
	h.cm.Process(ctx, transporttest.Update(msg))

	sent := h.fake.Sent()
	last := sent[len(sent)-1]
	if last.Photo == nil {
		t.Fatalf("expected a photo, got %+v", last)
	}
	if last.Photo.Caption != "Warns for @alice in last 14 day(s)" {
		t.Fatalf("caption = %q", last.Photo.Caption)
	}
	if !bytes.HasPrefix(last.Photo.Data, []byte("\x89PNG")) {
		t.Fatal("not a PNG")
	}
}

func TestWarnChartCaptionForID(t *testing.T) {
	h := newHarness(t, Config{DefaultWindow: 7 * 24 * time.Hour})
	bob := kit.User{ID: 7, FirstName: "Bob"}
	msg := transporttest.GroupMessage(chatID, mod, "/warnchart Bob")
	msg.Entities = []kit.Entity{{Kind: kit.EntityTextMention, Offset: 11, Length: 3, User: &bob}}
	h.cm.Process(context.Background(), transporttest.Update(msg))

	if got := h.fake.LastText(); got != "Warns for id 7 in last 7 day(s)" {
		t.Fatalf("caption = %q", got)
	}
}

func TestTopWarns(t *testing.T) {
	h := newHarness(t, Config{})
	ctx := context.Background()
	for _, p := range []punish.Punishment{
		{ChatID: chatID, UserID: 42, Username: "alice", Action: punish.ActionWarned},
		{ChatID: chatID, UserID: 42, Username: "alice", Action: punish.ActionWarned},
		{ChatID: chatID, UserID: 7, Action: punish.ActionWarned},
		{ChatID: 5, UserID: 9, Username: "other", Action: punish.ActionWarned},
	} {
		if _, err := h.svc.Append(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	h.cm.Process(ctx, transporttest.Update(transporttest.GroupMessage(chatID, mod, "/topwarns")))

	got := h.fake.LastText()
	want := "🏆 <b>Most warned, last 30 day(s)</b>\n• <b>Warnings</b>: 3\n\n1. <b>@alice</b>: 2\n2. <b>7</b>: 1"
	if got != want {
		t.Fatalf("leaderboard =\n%s\nwant\n%s", got, want)
	}
}

func TestWelcomeAndChatter(t *testing.T) {
	h := newHarness(t, Config{Welcome: true, ChatterReply: DefaultChatterReply})
	ctx := context.Background()

	h.cm.Process(ctx, kit.Update{Kind: kit.UpdateJoin, Message: &kit.Message{
		ChatID: chatID, ChatType: kit.ChatSupergroup,
		NewMembers: []kit.User{alice, {ID: 8, FirstName: "Neo"}},
	}})
	sent := h.fake.Sent()
	if len(sent) != 2 || sent[0].Text != "👋 Welcome @alice! Please read the group rules." || sent[1].Text != "👋 Welcome Neo! Please read the group rules." {
		t.Fatalf("welcome = %+v", sent)
	}

	h.cm.Process(ctx, transporttest.Update(transporttest.GroupMessage(chatID, alice, "hi doggo")))
	if got := h.fake.LastText(); got != DefaultChatterReply {
		t.Fatalf("chatter = %q", got)
	}

	h.mod.SetConfig(Config{})
	before := len(h.fake.Sent())
	h.cm.Process(ctx, transporttest.Update(transporttest.GroupMessage(chatID, alice, "hello again")))
	if len(h.fake.Sent()) != before {
		t.Fatal("chatter reply should be disabled")
	}
}

func TestStart(t *testing.T) {
	h := newHarness(t, Config{})
	h.cm.Process(context.Background(), transporttest.Update(&kit.Message{ID: 1, ChatID: 5, ChatType: kit.ChatPrivate, From: alice, Text: "/start"}))
	if got := h.fake.LastText(); got != msgStart {
		t.Fatalf("reply = %q", got)
	}
}

func TestParseReason(t *testing.T) {
	msg := &kit.Message{Text: "/warn @bob stop it", Entities: []kit.Entity{{Kind: kit.EntityMention, Offset: 6, Length: 4}}}
	if got := parseReason(msg, "@bob stop it"); got != "stop it" {
		t.Fatalf("parseReason = %q", got)
	}
	if got := parseReason(&kit.Message{}, "  "); got != punish.DefaultReason {
		t.Fatalf("parseReason = %q", got)
	}
	if got := parseReason(&kit.Message{}, "rude @bob"); got != "rude @bob" {
		t.Fatalf("parseReason = %q", got)
	}
}

func TestHumanDuration(t *testing.T) {
	tests := map[time.Duration]string{
		10 * time.Minute: "10 minutes",
		time.Minute:      "1 minute",
		time.Hour:        "1 hour",
		90 * time.Minute: "90 minutes",
		24 * time.Hour:   "24 hours",
		30 * time.Second: "30 seconds",
	}
	for d, want := range tests {
		if got := humanDuration(d); got != want {
			t.Errorf("humanDuration(%v) = %q, want %q", d, got, want)
		}
	}
}

func TestLeaderboardEmpty(t *testing.T) {
	m := Leaderboard(nil, 1)
	if !strings.Contains(m.Text, "No warnings recorded.") {
		t.Fatalf("text = %q", m.Text)
	}
}
