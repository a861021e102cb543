// Package punish implements the punishment log: its entry model, the
// normalization applied to legacy rows on every read, and the append and
// aggregation operations used by the bot and the website.
package punish

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Action is the tag of a moderation event. The set is open: unknown tags are
// stored and returned unchanged, they are just never counted as warnings.
type Action string

const (
	ActionWarned Action = "warned"
	ActionMuted  Action = "muted"
	ActionBanned Action = "banned"
)

// DefaultReason is recorded when the moderator gives no reason.
const DefaultReason = "No reason provided"

// LegacyTimeLayout is the human-readable timestamp older rows carry instead of ts.
const LegacyTimeLayout = "2006-01-02 15:04:05"

// unknownKey is the group key used when neither user id nor username is known.
const unknownKey = "unknown"

// Entry is one recorded moderation event.
//
// A nil pointer is JSON null. ChatID == nil and UserID == nil act as
// wildcards in queries (see Log.CountUserWarnings), unless the stored value
// was present but unreadable: such a row matches no id at all.
type Entry struct {
	TS        int64
	Timestamp string // legacy, written for older readers
	ChatID    *int64
	UserID    *int64
	Username  *string
	Action    Action // "" is null
	Moderator *string
	Reason    *string

	// set by UnmarshalJSON when the key was absent, cleared by normalization
	noTS       bool
	noUsername bool

	// present, non-null ids that did not decode as integers
	badChatID bool
	badUserID bool
}

// Log is the decoded document: group key -> entries in append order.
type Log map[string][]Entry

type entryWire struct {
	Timestamp string  `json:"timestamp,omitempty"`
	TS        int64   `json:"ts"`
	ChatID    *int64  `json:"chat_id"`
	UserID    *int64  `json:"user_id"`
	Username  *string `json:"username"`
	Action    *string `json:"action"`
	Moderator *string `json:"moderator"`
	Reason    *string `json:"reason"`
}

func (e Entry) MarshalJSON() ([]byte, error) {
	w := entryWire{
		Timestamp: e.Timestamp,
		TS:        e.TS,
		ChatID:    e.ChatID,
		UserID:    e.UserID,
		Username:  e.Username,
		Moderator: e.Moderator,
		Reason:    e.Reason,
	}
	if e.Action != "" {
		a := string(e.Action)
		w.Action = &a
	}
	return marshalRaw(w)
}

// marshalRaw is json.Marshal without HTML escaping, so usernames such as
// "<b>" stay readable in the document.
func marshalRaw(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

var errNotObject = errors.New("entry is not a JSON object")

// UnmarshalJSON is lenient about legacy value types: ids may be numbers or
// numeric strings. An id of any other type decodes as nil and is marked
// unreadable; other fields of the wrong type decode as null.
func (e *Entry) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw == nil {
		return errNotObject
	}

	*e = Entry{}
	if v, ok := raw["ts"]; ok && !isNull(v) {
		if n, ok := decodeInt(v); ok {
			e.TS = n
		} else {
			e.noTS = true
		}
	} else {
		e.noTS = true
	}
	if v, ok := raw["timestamp"]; ok {
		if s := decodeString(v); s != nil {
			e.Timestamp = *s
		}
	}
	if v, ok := raw["chat_id"]; ok && !isNull(v) {
		if n, ok := decodeInt(v); ok {
			e.ChatID = &n
		} else {
			e.badChatID = true
		}
	}
	if v, ok := raw["user_id"]; ok && !isNull(v) {
		if n, ok := decodeInt(v); ok {
			e.UserID = &n
		} else {
			e.badUserID = true
		}
	}
	if v, ok := raw["username"]; ok {
		e.Username = decodeString(v)
	} else {
		e.noUsername = true
	}
	if v, ok := raw["action"]; ok {
		if s := decodeString(v); s != nil {
			e.Action = Action(*s)
		}
	}
	if v, ok := raw["moderator"]; ok {
		e.Moderator = decodeString(v)
	}
	if v, ok := raw["reason"]; ok {
		e.Reason = decodeString(v)
	}
	return nil
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}

func decodeInt(v json.RawMessage) (int64, bool) {
	var n json.Number
	if err := json.Unmarshal(v, &n); err != nil {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return 0, false
		}
		n = json.Number(strings.TrimSpace(s))
	}
	if i, err := n.Int64(); err == nil {
		return i, true
	}
	if f, err := n.Float64(); err == nil {
		return int64(f), true
	}
	return 0, false
}

func decodeString(v json.RawMessage) *string {
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil
	}
	return &s
}

// IsWarning reports whether e counts towards warn totals.
func (e Entry) IsWarning() bool { return e.Action == ActionWarned }

// Label is the display name used by leaderboards: "@username", else the user
// id, else "unknown".
func (e Entry) Label() string {
	if e.Username != nil {
		if u := strings.TrimLeft(*e.Username, "@"); u != "" {
			return "@" + u
		}
	}
	if e.UserID != nil && *e.UserID != 0 {
		return strconv.FormatInt(*e.UserID, 10)
	}
	return unknownKey
}

// GroupKey selects the storage bucket for a new entry. It is a layout detail,
// not an identity: legacy documents may group the same user under several keys.
func GroupKey(userID int64, username string) string {
	if userID != 0 {
		return strconv.FormatInt(userID, 10)
	}
	if username != "" {
		return username
	}
	return unknownKey
}

// Int64 returns a pointer to v, for building entries and queries.
func Int64(v int64) *int64 { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }
