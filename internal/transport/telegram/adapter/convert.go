package adapter

import (
	"errors"

	tele "gopkg.in/telebot.v4"

	kit "doggobot/internal/transport"
)

func convertUser(u *tele.User) kit.User {
	if u == nil {
		return kit.User{}
	}
	return kit.User{ID: u.ID, Username: u.Username, FirstName: u.FirstName, IsBot: u.IsBot}
}

func convertMessage(m *tele.Message) *kit.Message {
	if m == nil || m.Chat == nil {
		return nil
	}
	out := &kit.Message{
		ID:       m.ID,
		ChatID:   m.Chat.ID,
		ChatType: kit.ChatType(m.Chat.Type),
		ThreadID: m.ThreadID,
		From:     convertUser(m.Sender),
		Text:     m.Text,
	}
	for _, e := range m.Entities {
		ent := kit.Entity{Kind: kit.EntityKind(e.Type), Offset: e.Offset, Length: e.Length}
		if e.User != nil {
			u := convertUser(e.User)
			ent.User = &u
		}
		out.Entities = append(out.Entities, ent)
	}
	if m.ReplyTo != nil && m.ReplyTo.Sender != nil {
		u := convertUser(m.ReplyTo.Sender)
		out.ReplyFrom = &u
	}
	// A single join fills UserJoined; a batch fills UsersJoined.
	switch {
	case len(m.UsersJoined) > 0:
		for i := range m.UsersJoined {
			out.NewMembers = append(out.NewMembers, convertUser(&m.UsersJoined[i]))
		}
	case m.UserJoined != nil:
		out.NewMembers = []kit.User{convertUser(m.UserJoined)}
	}
	return out
}

func convertMember(cm *tele.ChatMember) kit.Member {
	if cm == nil {
		return kit.Member{}
	}
	return kit.Member{User: convertUser(cm.User), Status: kit.MemberStatus(cm.Role)}
}

// convertError keeps the Bot API description, which moderators see verbatim.
func convertError(op string, err error) error {
	if err == nil {
		return nil
	}
	pe := &kit.PlatformError{Op: op, Err: err}
	var te *tele.Error
	if errors.As(err, &te) {
		pe.Code = te.Code
		pe.Description = te.Description
	}
	return pe
}
