package adapter

import (
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	kit "doggobot/internal/transport"
)

func TestSplitTelegramText(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		in    string
		limit int
		mode  string
		want  []string
	}{
		{name: "short", in: "hello", limit: 10, want: []string{"hello"}},
		{name: "hard cut", in: "abcdefghij", limit: 4, want: []string{"abcd", "efgh", "ij"}},
		{name: "newline preferred", in: "aaaa\nbbbbbbb", limit: 8, want: []string{"aaaa", "bbbbbbb"}},
		{name: "html tag kept whole", in: "abcdef<b>x</b>", limit: 8, mode: "HTML", want: []string{"abcdef", "<b>x</b>"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := splitTelegramText(tc.in, tc.limit, tc.mode)
			if strings.Join(got, "|") != strings.Join(tc.want, "|") {
				t.Fatalf("split = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestConvertMessage(t *testing.T) {
	t.Parallel()

	target := &tele.User{ID: 7, FirstName: "Ann"}
	m := &tele.Message{
		ID:     10,
		Chat:   &tele.Chat{ID: -100, Type: tele.ChatSuperGroup},
		Sender: &tele.User{ID: 1, Username: "mod", FirstName: "Mo"},
		Text:   "/warn Ann spam",
		Entities: []tele.MessageEntity{
			{Type: tele.EntityCommand, Offset: 0, Length: 5},
			{Type: tele.EntityTMention, Offset: 6, Length: 3, User: target},
		},
		ReplyTo: &tele.Message{ID: 9, Sender: &tele.User{ID: 2, FirstName: "Bo"}},
	}

	got := convertMessage(m)
	if got == nil {
		t.Fatal("convertMessage returned nil")
	}
	if !got.IsGroup() || got.ChatID != -100 || got.From.Username != "mod" {
		t.Fatalf("unexpected message: %+v", got)
	}
	if len(got.Entities) != 2 || got.Entities[1].Kind != kit.EntityTextMention || got.Entities[1].User.ID != 7 {
		t.Fatalf("entities = %+v", got.Entities)
	}
	if got.EntityText(got.Entities[1]) != "Ann" {
		t.Fatalf("entity text = %q", got.EntityText(got.Entities[1]))
	}
	if got.ReplyFrom == nil || got.ReplyFrom.ID != 2 {
		t.Fatalf("reply from = %+v", got.ReplyFrom)
	}
}

func TestConvertJoin(t *testing.T) {
	t.Parallel()

	m := &tele.Message{
		Chat:        &tele.Chat{ID: -1, Type: tele.ChatGroup},
		UserJoined:  &tele.User{ID: 3},
		UsersJoined: []tele.User{{ID: 3}, {ID: 4}},
	}
	got := convertMessage(m)
	if len(got.NewMembers) != 2 || got.NewMembers[1].ID != 4 {
		t.Fatalf("new members = %+v", got.NewMembers)
	}
}

func TestConvertError(t *testing.T) {
	t.Parallel()

	err := convertError("restrict", &tele.Error{Code: 400, Description: "Bad Request: not enough rights"})
	var pe *kit.PlatformError
	if !errors.As(err, &pe) || pe.Code != 400 {
		t.Fatalf("convertError = %#v", err)
	}
	if got := kit.Describe(err); got != "Bad Request: not enough rights" {
		t.Fatalf("Describe = %q", got)
	}
}

func TestMenuHashChangesWithContent(t *testing.T) {
	t.Parallel()

	a := menuHash([]kit.BotCommand{{Command: "warn", Description: "Warn a user"}})
	b := menuHash([]kit.BotCommand{{Command: "warn", Description: "Warn someone"}})
	if a == b {
		t.Fatal("hash did not change")
	}
}
