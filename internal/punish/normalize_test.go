package punish

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"doggobot/internal/storage"
)

func decodeDoc(t *testing.T, raw string) storage.Document {
	t.Helper()
	var doc storage.Document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("decode document: %v", err)
	}
	return doc
}

func encodeLog(t *testing.T, log Log) storage.Document {
	t.Helper()
	b, err := json.Marshal(log)
	if err != nil {
		t.Fatalf("marshal log: %v", err)
	}
	return decodeDoc(t, string(b))
}

const legacyDoc = `{
  "alice": [{"timestamp": "2023-01-02 03:04:05", "action": "warned", "reason": "spam"}],
  "unknown": [{"action": "muted"}],
  "7": [{"ts": 5, "chat_id": 1, "user_id": 7, "username": null, "action": "warned", "moderator": null, "reason": null}],
  "bob": [{"ts": "1700000000", "user_id": "42", "action": "banned", "timestamp": "garbage"}]
}`

func TestNormalizeBackfillsLegacyRows(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	log, skipped := DecodeLog(decodeDoc(t, legacyDoc))
	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0", skipped)
	}
	normalizeAt(log, time.UTC, now)

	alice := log["alice"][0]
	if want := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC).Unix(); alice.TS != want {
		t.Fatalf("alice ts = %d, want %d", alice.TS, want)
	}
	if alice.Username == nil || *alice.Username != "alice" {
		t.Fatalf("alice username = %v, want group key", alice.Username)
	}
	if alice.ChatID != nil || alice.UserID != nil || alice.Moderator != nil {
		t.Fatalf("missing ids should stay null: %+v", alice)
	}

	unk := log["unknown"][0]
	if unk.TS != now.Unix() {
		t.Fatalf("unknown ts = %d, want now", unk.TS)
	}
	if unk.Username != nil {
		t.Fatalf("unknown group must not become a username, got %q", *unk.Username)
	}
	if unk.Reason != nil {
		t.Fatalf("absent reason should be null")
	}

	seven := log["7"][0]
	if seven.TS != 5 || seven.Username != nil {
		t.Fatalf("explicit values overwritten: ts=%d username=%v", seven.TS, seven.Username)
	}

	bob := log["bob"][0]
	if bob.TS != 1700000000 || bob.UserID == nil || *bob.UserID != 42 {
		t.Fatalf("string-typed legacy values not decoded: %+v", bob)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()
	first := normalizeAt(mustDecode(t, legacyDoc), time.UTC, time.Unix(1000, 0))
	once := encodeLog(t, first)

	// A later clock must not matter once every row carries ts.
	again, _ := DecodeLog(once)
	second := normalizeAt(again, time.UTC, time.Unix(999999, 0))
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("normalize not idempotent:\nfirst  %+v\nsecond %+v", first, second)
	}
	third := normalizeAt(second, time.UTC, time.Unix(5, 0))
	if !reflect.DeepEqual(first, third) {
		t.Fatal("normalizing in place twice changed the log")
	}
}

func TestDecodeLogSkipsMalformed(t *testing.T) {
	t.Parallel()
	log, skipped := DecodeLog(decodeDoc(t, `{"bad": 5, "odd": {"a": 1}, "x": [1, "s", {"ts": 1, "action": "warned"}]}`))
	if skipped != 4 {
		t.Fatalf("skipped = %d, want 4", skipped)
	}
	if _, ok := log["bad"]; ok {
		t.Fatal("non-list group should be skipped")
	}
	if len(log["x"]) != 1 || !log["x"][0].IsWarning() {
		t.Fatalf("x = %+v", log["x"])
	}
}

func TestEntryJSONShape(t *testing.T) {
	t.Parallel()
	e := Entry{TS: 10, ChatID: Int64(-100), UserID: Int64(7), Username: String("bob"), Action: ActionWarned}
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"ts":10,"chat_id":-100,"user_id":7,"username":"bob","action":"warned","moderator":null,"reason":null}`
	if string(b) != want {
		t.Fatalf("json = %s\nwant   %s", b, want)
	}

	b, _ = json.Marshal(Entry{TS: 1})
	if want := `{"ts":1,"chat_id":null,"user_id":null,"username":null,"action":null,"moderator":null,"reason":null}`; string(b) != want {
		t.Fatalf("json = %s", b)
	}
}

func mustDecode(t *testing.T, raw string) Log {
	t.Helper()
	log, _ := DecodeLog(decodeDoc(t, raw))
	return log
}
