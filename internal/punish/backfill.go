package punish

import (
	"encoding/json"
	"fmt"
	"strconv"

	"doggobot/internal/storage"
)

// BackfillResult summarizes a Backfill run.
type BackfillResult struct {
	ChatIDs   int // rows that got chatID
	UserIDs   int // rows that got an explicit null user_id
	Usernames int // rows that got a username key
	Skipped   int // groups or rows that are not lists/objects
}

func (r BackfillResult) Changed() bool {
	return r.ChatIDs+r.UserIDs+r.Usernames > 0
}

// Backfill assigns chatID to every row whose chat_id is absent or null, and
// adds absent user_id/username keys with the same defaults as normalization.
// Rows are edited as raw objects so fields this package does not know about
// survive. doc is modified in place.
func Backfill(doc storage.Document, chatID int64) (BackfillResult, error) {
	var res BackfillResult
	chatRaw := json.RawMessage(strconv.FormatInt(chatID, 10))

	for key, raw := range doc {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			res.Skipped++
			continue
		}
		changed := false
		for i, it := range items {
			var row map[string]json.RawMessage
			if err := json.Unmarshal(it, &row); err != nil || row == nil {
				res.Skipped++
				continue
			}
			rowChanged := false
			if v, ok := row["chat_id"]; !ok || isNull(v) {
				row["chat_id"] = chatRaw
				res.ChatIDs++
				rowChanged = true
			}
			if _, ok := row["user_id"]; !ok {
				row["user_id"] = json.RawMessage("null")
				res.UserIDs++
				rowChanged = true
			}
			if _, ok := row["username"]; !ok {
				row["username"] = json.RawMessage("null")
				if key != "" && key != unknownKey {
					b, err := json.Marshal(key)
					if err != nil {
						return res, err
					}
					row["username"] = b
				}
				res.Usernames++
				rowChanged = true
			}
			if !rowChanged {
				continue
			}
			b, err := marshalRaw(row)
			if err != nil {
				return res, fmt.Errorf("encode row in %q: %w", key, err)
			}
			items[i] = b
			changed = true
		}
		if !changed {
			continue
		}
		b, err := marshalRaw(items)
		if err != nil {
			return res, fmt.Errorf("encode group %q: %w", key, err)
		}
		doc[key] = b
	}
	return res, nil
}
