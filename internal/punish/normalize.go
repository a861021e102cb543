package punish

import (
	"encoding/json"
	"time"

	"doggobot/internal/storage"
)

// DecodeLog decodes the raw document. Groups that are not arrays and entries
// that are not objects are skipped; skipped counts them.
func DecodeLog(doc storage.Document) (log Log, skipped int) {
	log = make(Log, len(doc))
	for key, raw := range doc {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			skipped++
			continue
		}
		entries := make([]Entry, 0, len(items))
		for _, it := range items {
			var e Entry
			if err := json.Unmarshal(it, &e); err != nil {
				skipped++
				continue
			}
			entries = append(entries, e)
		}
		log[key] = entries
	}
	return log, skipped
}

// Normalize backfills legacy rows in place so every entry carries all fields,
// using the local time zone and the current time. It returns log.
func Normalize(log Log) Log {
	return normalizeAt(log, time.Local, time.Now())
}

// normalizeAt is Normalize with an explicit zone for legacy timestamps and an
// explicit "now" for rows that carry no time at all.
//
// Rules, applied only to absent fields:
//   - ts: parsed from the legacy timestamp, else now
//   - username: the group key, unless the key is "unknown"
//
// Absent chat_id, user_id, moderator, action and reason already decode as null.
// Running it twice changes nothing.
func normalizeAt(log Log, loc *time.Location, now time.Time) Log {
	if loc == nil {
		loc = time.Local
	}
	for key, entries := range log {
		for i := range entries {
			e := &entries[i]
			if e.noTS {
				e.TS = now.Unix()
				if e.Timestamp != "" {
					if t, err := time.ParseInLocation(LegacyTimeLayout, e.Timestamp, loc); err == nil {
						e.TS = t.Unix()
					}
				}
				e.noTS = false
			}
			if e.noUsername {
				if key != unknownKey {
					e.Username = String(key)
				}
				e.noUsername = false
			}
		}
	}
	return log
}
