package punish

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// Wildcard policy
//
// Rows recorded before the bot knew about chats or user ids carry a null
// chat_id or user_id. Queries treat such a null as matching any requested
// value. A legacy row can therefore be counted for several chats or users;
// this is accepted until those rows are backfilled (see cmd/migrate).

// LabelCount is one leaderboard row. It encodes as [label, count].
type LabelCount struct {
	Label string
	Count int
}

func (lc LabelCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{lc.Label, lc.Count})
}

// DayCount is the number of warnings on one calendar date (YYYY-MM-DD).
type DayCount struct {
	Date  string `json:"date"`
	Count int    `json:"count"`
}

// TopQuery filters TopWarned. A nil ChatID aggregates across all chats.
type TopQuery struct {
	ChatID *int64
	Since  time.Time // zero: no lower bound
	Limit  int       // <= 0: DefaultTopLimit
}

// DailyQuery filters WarningsPerDay. UserID takes precedence over Username.
type DailyQuery struct {
	ChatID   *int64
	Since    time.Time
	UserID   *int64
	Username string
}

const DefaultTopLimit = 10

// matchWildcard reports whether a stored id matches want: null matches
// everything, an unreadable id matches nothing.
func matchWildcard(stored *int64, bad bool, want int64) bool {
	if bad {
		return false
	}
	return stored == nil || *stored == want
}

func afterSince(e Entry, since time.Time) bool {
	return since.IsZero() || e.TS >= since.Unix()
}

// each visits entries with groups in key order, so results that depend on
// first-seen order are deterministic.
func (l Log) each(fn func(e Entry)) {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, e := range l[k] {
			fn(e)
		}
	}
}

// CountUserWarnings counts warnings for userID in chatID, honouring the
// wildcard policy on both ids.
func (l Log) CountUserWarnings(chatID, userID int64, since time.Time) int {
	total := 0
	l.each(func(e Entry) {
		if e.IsWarning() && matchWildcard(e.ChatID, e.badChatID, chatID) && matchWildcard(e.UserID, e.badUserID, userID) && afterSince(e, since) {
			total++
		}
	})
	return total
}

// TopWarned ranks display labels by warning count, highest first. Equal
// counts keep first-seen order.
func (l Log) TopWarned(q TopQuery) []LabelCount {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultTopLimit
	}
	idx := map[string]int{}
	var rows []LabelCount
	l.each(func(e Entry) {
		if !e.IsWarning() || !afterSince(e, q.Since) {
			return
		}
		if q.ChatID != nil && !matchWildcard(e.ChatID, e.badChatID, *q.ChatID) {
			return
		}
		label := e.Label()
		i, ok := idx[label]
		if !ok {
			i = len(rows)
			idx[label] = i
			rows = append(rows, LabelCount{Label: label})
		}
		rows[i].Count++
	})
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Count > rows[j].Count })
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// WarningsPerDay buckets warnings by calendar date in loc. The series is
// sparse (days without warnings are absent) and sorted ascending.
func (l Log) WarningsPerDay(q DailyQuery, loc *time.Location) []DayCount {
	if loc == nil {
		loc = time.Local
	}
	wantName := strings.ToLower(strings.TrimLeft(q.Username, "@"))
	perDay := map[string]int{}
	l.each(func(e Entry) {
		if !e.IsWarning() || !afterSince(e, q.Since) {
			return
		}
		if q.ChatID != nil && !matchWildcard(e.ChatID, e.badChatID, *q.ChatID) {
			return
		}
		switch {
		case q.UserID != nil:
			if !matchWildcard(e.UserID, e.badUserID, *q.UserID) {
				return
			}
		case q.Username != "":
			var got string
			if e.Username != nil {
				got = strings.ToLower(strings.TrimLeft(*e.Username, "@"))
			}
			if got != wantName {
				return
			}
		}
		perDay[time.Unix(e.TS, 0).In(loc).Format(time.DateOnly)]++
	})

	out := make([]DayCount, 0, len(perDay))
	for d, n := range perDay {
		out = append(out, DayCount{Date: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}
