// Package transporttest provides an in-memory chat adapter for handler tests.
package transporttest

import (
	"context"
	"sync"
	"time"

	kit "doggobot/internal/transport"
)

type Sent struct {
	To    kit.ChatTarget
	Text  string
	Photo *kit.Photo
	Opt   kit.SendOptions
}

type Restriction struct {
	ChatID, UserID int64
	Until          time.Time
}

// Adapter records every call. Members maps user id to status; users not
// listed are plain members. Set the *Err fields to make calls fail.
type Adapter struct {
	mu sync.Mutex

	Members map[int64]kit.MemberStatus

	MemberErr   error
	RestrictErr error
	BanErr      error
	SendErr     error

	sent         []Sent
	restrictions []Restriction
	bans         [][2]int64
	menu         []kit.BotCommand
	nextID       int
}

func New() *Adapter {
	return &Adapter{Members: map[int64]kit.MemberStatus{}}
}

func (a *Adapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (a *Adapter) Stop(ctx context.Context) error                         { return nil }

func (a *Adapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.record(to, Sent{To: to, Text: text}, opt)
}

func (a *Adapter) SendPhoto(ctx context.Context, to kit.ChatTarget, p kit.Photo, opt *kit.SendOptions) (kit.MessageRef, error) {
	return a.record(to, Sent{To: to, Photo: &p, Text: p.Caption}, opt)
}

func (a *Adapter) record(to kit.ChatTarget, s Sent, opt *kit.SendOptions) (kit.MessageRef, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.SendErr != nil {
		return kit.MessageRef{}, a.SendErr
	}
	if opt != nil {
		s.Opt = *opt
	}
	a.sent = append(a.sent, s)
	a.nextID++
	return kit.MessageRef{ChatID: to.ChatID, ThreadID: to.ThreadID, MessageID: a.nextID}, nil
}

func (a *Adapter) ChatMember(ctx context.Context, chatID, userID int64) (kit.Member, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.MemberErr != nil {
		return kit.Member{}, a.MemberErr
	}
	st, ok := a.Members[userID]
	if !ok {
		st = kit.MemberMember
	}
	return kit.Member{User: kit.User{ID: userID}, Status: st}, nil
}

func (a *Adapter) Restrict(ctx context.Context, chatID, userID int64, until time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.RestrictErr != nil {
		return a.RestrictErr
	}
	a.restrictions = append(a.restrictions, Restriction{ChatID: chatID, UserID: userID, Until: until})
	return nil
}

func (a *Adapter) Ban(ctx context.Context, chatID, userID int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.BanErr != nil {
		return a.BanErr
	}
	a.bans = append(a.bans, [2]int64{chatID, userID})
	return nil
}

func (a *Adapter) UpdateMenuCommands(ctx context.Context, cmds []kit.BotCommand) error {
	a.mu.Lock()
	a.menu = append([]kit.BotCommand(nil), cmds...)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) Sent() []Sent {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Sent(nil), a.sent...)
}

// LastText is the text (or caption) of the most recent send, or "".
func (a *Adapter) LastText() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.sent) == 0 {
		return ""
	}
	return a.sent[len(a.sent)-1].Text
}

func (a *Adapter) Restrictions() []Restriction {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Restriction(nil), a.restrictions...)
}

func (a *Adapter) Bans() [][2]int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][2]int64(nil), a.bans...)
}

func (a *Adapter) Menu() []kit.BotCommand {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]kit.BotCommand(nil), a.menu...)
}

// GroupMessage builds a supergroup text message from the given user.
func GroupMessage(chatID int64, from kit.User, text string) *kit.Message {
	return &kit.Message{ID: 100, ChatID: chatID, ChatType: kit.ChatSupergroup, From: from, Text: text}
}

// Update wraps m as a message update.
func Update(m *kit.Message) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: m}
}
