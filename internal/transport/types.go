package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf16"
)

type UpdateKind string

const (
	UpdateMessage UpdateKind = "message"
	UpdateJoin    UpdateKind = "join"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
}

type ChatType string

const (
	ChatPrivate    ChatType = "private"
	ChatGroup      ChatType = "group"
	ChatSupergroup ChatType = "supergroup"
	ChatChannel    ChatType = "channel"
)

type User struct {
	ID        int64
	Username  string
	FirstName string
	IsBot     bool
}

// Mention is "@username" when the user has one, else the first name.
func (u User) Mention() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	if u.FirstName != "" {
		return u.FirstName
	}
	return fmt.Sprintf("id %d", u.ID)
}

// DisplayName prefers the first name, as replies address people by it.
func (u User) DisplayName() string {
	if u.FirstName != "" {
		return u.FirstName
	}
	return u.Mention()
}

type EntityKind string

const (
	EntityMention     EntityKind = "mention"      // "@username" typed in the text
	EntityTextMention EntityKind = "text_mention" // tapped name of a user without username
	EntityCommand     EntityKind = "bot_command"
)

// Entity is a formatted span. Offset and Length are in UTF-16 code units.
type Entity struct {
	Kind   EntityKind
	Offset int
	Length int
	User   *User // text_mention only
}

type Message struct {
	ID       int
	ChatID   int64
	ChatType ChatType
	ThreadID int // telegram forum topic thread id (0 if none)

	From     User
	Text     string
	Entities []Entity

	// ReplyFrom is the sender of the message this one replies to.
	ReplyFrom *User

	// NewMembers is set on join updates.
	NewMembers []User
}

func (m *Message) IsGroup() bool {
	return m.ChatType == ChatGroup || m.ChatType == ChatSupergroup
}

// EntityText returns the text covered by e.
func (m *Message) EntityText(e Entity) string {
	u := utf16.Encode([]rune(m.Text))
	if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(u) {
		return ""
	}
	return string(utf16.Decode(u[e.Offset : e.Offset+e.Length]))
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

func (m *Message) Target() ChatTarget {
	return ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
	ReplyTo        int // message id to reply to, 0 for none
}

// Photo is an in-memory image upload.
type Photo struct {
	Data     []byte
	Filename string
	Caption  string
}

type MemberStatus string

const (
	MemberCreator       MemberStatus = "creator"
	MemberAdministrator MemberStatus = "administrator"
	MemberMember        MemberStatus = "member"
	MemberRestricted    MemberStatus = "restricted"
	MemberLeft          MemberStatus = "left"
	MemberKicked        MemberStatus = "kicked"
)

type Member struct {
	User   User
	Status MemberStatus
}

func (m Member) IsAdmin() bool {
	return m.Status == MemberCreator || m.Status == MemberAdministrator
}

// Adapter is a chat platform connection.
type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	SendPhoto(ctx context.Context, to ChatTarget, p Photo, opt *SendOptions) (MessageRef, error)

	ChatMember(ctx context.Context, chatID, userID int64) (Member, error)
	Restrict(ctx context.Context, chatID, userID int64, until time.Time) error
	Ban(ctx context.Context, chatID, userID int64) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to update platform-specific bot command menus (e.g. Telegram /menu list).
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}

// PlatformError is a failed platform call. Description is the
// platform's human-readable reason and is safe to show to moderators.
type PlatformError struct {
	Op          string
	Code        int
	Description string
	Err         error
}

func (e *PlatformError) Error() string {
	if e.Description != "" {
		return e.Op + ": " + e.Description
	}
	if e.Err != nil {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Op + ": failed"
}

func (e *PlatformError) Unwrap() error { return e.Err }

// ErrPlatformTimeout is wrapped by PlatformError when a call exceeded its deadline.
var ErrPlatformTimeout = errors.New("platform call timed out")

// Describe returns the moderator-facing reason for err.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var pe *PlatformError
	if errors.As(err, &pe) {
		if pe.Description != "" {
			return pe.Description
		}
		if errors.Is(pe.Err, ErrPlatformTimeout) {
			return "request timed out"
		}
		if pe.Err != nil {
			return pe.Err.Error()
		}
	}
	return strings.TrimSpace(err.Error())
}
