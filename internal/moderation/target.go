package moderation

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"doggobot/internal/punish"
	kit "doggobot/internal/transport"
)

const msgNeedUser = "you need to specify the user (reply to the user or tap their name so it becomes a mention)"

var errNoTarget = errors.New("no target user")

// captionLabel is how chart captions name a target: "@username", else "id <n>".
func captionLabel(u kit.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return "id " + strconv.FormatInt(u.ID, 10)
}

// resolveTarget picks the user a command acts on: a tapped name
// (text_mention) that is still a chat member, else the author of the
// replied-to message.
//
// For charts the member lookup is skipped (banned users have history too)
// and a plain @mention also counts, which only yields a username (ID zero).
func resolveTarget(ctx context.Context, ad kit.Adapter, msg *kit.Message, forChart bool) (kit.User, error) {
	for _, e := range msg.Entities {
		if e.Kind != kit.EntityTextMention || e.User == nil || e.User.ID == 0 {
			continue
		}
		if forChart {
			return *e.User, nil
		}
		m, err := ad.ChatMember(ctx, msg.ChatID, e.User.ID)
		if err != nil {
			break
		}
		u := *e.User
		// the lookup is fresher than the entity
		if m.User.Username != "" {
			u.Username = m.User.Username
		}
		if m.User.FirstName != "" {
			u.FirstName = m.User.FirstName
		}
		return u, nil
	}

	if msg.ReplyFrom != nil && msg.ReplyFrom.ID != 0 {
		return *msg.ReplyFrom, nil
	}

	if forChart {
		for _, e := range msg.Entities {
			if e.Kind != kit.EntityMention {
				continue
			}
			if name := strings.TrimPrefix(msg.EntityText(e), "@"); name != "" {
				return kit.User{Username: name}, nil
			}
		}
	}
	return kit.User{}, errNoTarget
}

// parseReason is the text after the command with a leading mention of the
// target removed, or the default reason.
func parseReason(msg *kit.Message, rest string) string {
	rest = strings.TrimSpace(rest)
	for _, e := range msg.Entities {
		if e.Kind != kit.EntityMention && e.Kind != kit.EntityTextMention {
			continue
		}
		if mt := msg.EntityText(e); mt != "" && strings.HasPrefix(rest, mt) {
			rest = strings.TrimSpace(strings.TrimPrefix(rest, mt))
			break
		}
	}
	if rest == "" {
		return punish.DefaultReason
	}
	return rest
}

// moderatorLabel identifies who issued an action: "@username", else the id.
func moderatorLabel(u kit.User) string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return strconv.FormatInt(u.ID, 10)
}
