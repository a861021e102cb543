package storage

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	logx "doggobot/pkg/logx"
)

func sampleDocument(t *testing.T) Document {
	t.Helper()
	var doc Document
	raw := `{
  "42": [{"ts": 1700000000, "chat_id": -100, "user_id": 42, "username": "bob", "action": "warned", "moderator": "@mod", "reason": "spam"}],
  "alice": [{"timestamp": "2023-01-02 03:04:05", "action": "muted", "reason": "flood"}]
}`
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	return doc
}

// equalDocuments compares documents by decoded JSON value, ignoring layout.
func equalDocuments(t *testing.T, a, b Document) bool {
	t.Helper()
	norm := func(d Document) map[string]any {
		out := map[string]any{}
		for k, v := range d {
			var x any
			if err := json.Unmarshal(v, &x); err != nil {
				t.Fatalf("unmarshal group %q: %v", k, err)
			}
			out[k] = x
		}
		return out
	}
	return reflect.DeepEqual(norm(a), norm(b))
}

func TestFileLoadMissingReturnsEmpty(t *testing.T) {
	t.Parallel()
	s, err := NewFile(filepath.Join(t.TempDir(), "data", "punishments.json"), logx.Nop())
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	doc, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc) != 0 {
		t.Fatalf("expected empty document, got %d groups", len(doc))
	}
	if _, ok, err := s.Export(context.Background()); err != nil || ok {
		t.Fatalf("Export on missing file: ok=%v err=%v", ok, err)
	}
}

func TestFileLoadCorruptReturnsEmpty(t *testing.T) {
	t.Parallel()
	for _, content := range []string{"{not json", "[1,2,3]", "null", ""} {
		path := filepath.Join(t.TempDir(), "punishments.json")
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
		s, err := NewFile(path, logx.Nop())
		if err != nil {
			t.Fatal(err)
		}
		doc, err := s.Load(context.Background())
		if err != nil {
			t.Fatalf("Load(%q): %v", content, err)
		}
		if len(doc) != 0 {
			t.Fatalf("Load(%q): expected empty document", content)
		}
	}
}

func TestFileRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "punishments.json")
	s, err := NewFile(path, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	want := sampleDocument(t)
	if err := s.Save(ctx, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !equalDocuments(t, want, got) {
		t.Fatalf("round trip mismatch:\nwant %s\ngot  %s", mustJSON(t, want), mustJSON(t, got))
	}

	raw, ok, err := s.Export(ctx)
	if err != nil || !ok {
		t.Fatalf("Export: ok=%v err=%v", ok, err)
	}
	if !strings.Contains(string(raw), "\n  \"42\": [") {
		t.Fatalf("expected two-space pretty print, got:\n%s", raw)
	}
}

func TestFileCrashBeforeRenameKeepsPrevious(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "punishments.json")
	s, err := NewFile(path, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	prev := sampleDocument(t)
	if err := s.Save(ctx, prev); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	crash := errors.New("power lost")
	s.rename = func(string, string) error { return crash }

	next := maps.Clone(prev)
	next["99"] = json.RawMessage(`[{"ts": 1, "action": "banned"}]`)
	if err := s.Save(ctx, next); !errors.Is(err, crash) {
		t.Fatalf("Save error = %v, want %v", err, crash)
	}

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(after) != string(before) {
		t.Fatalf("document changed after failed replace")
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equalDocuments(t, prev, got) {
		t.Fatalf("previous document not readable after crash")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".tmp_") {
			t.Fatalf("temp file %s left behind", e.Name())
		}
	}
}

func TestFileIgnoresStrayTempFile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "punishments.json")
	s, err := NewFile(path, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	prev := sampleDocument(t)
	if err := s.Save(ctx, prev); err != nil {
		t.Fatal(err)
	}
	// A hard crash leaves a half-written temp file next to the target.
	if err := os.WriteFile(filepath.Join(dir, ".tmp_123"), []byte(`{"42": [{"ts"`), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equalDocuments(t, prev, got) {
		t.Fatalf("stray temp file affected Load")
	}
}

func TestMemoryRoundTripAndCorrupt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m := NewMemory()
	if _, ok, _ := m.Export(ctx); ok {
		t.Fatal("fresh memory store should report no document")
	}
	want := sampleDocument(t)
	if err := m.Save(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := m.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equalDocuments(t, want, got) {
		t.Fatal("memory round trip mismatch")
	}
	m.SetRaw([]byte("garbage"))
	got, err = m.Load(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("corrupt memory document: len=%d err=%v", len(got), err)
	}
}

func TestBoltRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	st, err := Open(Config{Driver: "bolt", Path: filepath.Join(t.TempDir(), "punishments.json")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open bolt: %v", err)
	}
	defer st.Close()

	doc, err := st.Load(ctx)
	if err != nil || len(doc) != 0 {
		t.Fatalf("empty bolt Load: len=%d err=%v", len(doc), err)
	}
	want := sampleDocument(t)
	if err := st.Save(ctx, want); err != nil {
		t.Fatal(err)
	}
	got, err := st.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !equalDocuments(t, want, got) {
		t.Fatal("bolt round trip mismatch")
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	t.Parallel()
	if _, err := Open(Config{Driver: "mongo"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}
