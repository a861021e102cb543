package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"doggobot/internal/accounts"
	"doggobot/internal/punish"
	"doggobot/internal/storage"
	logx "doggobot/pkg/logx"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fixture struct {
	srv    *Server
	svc    *punish.Service
	static string
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	svc := punish.NewService(storage.NewMemory(), logx.Nop(),
		punish.WithLocation(time.UTC),
		punish.WithClock(func() time.Time { return fixedNow }),
	)
	acct, err := accounts.Open(filepath.Join(t.TempDir(), "accounts.db"), logx.Nop(), accounts.WithCost(bcrypt.MinCost))
	require.NoError(t, err)
	t.Cleanup(func() { _ = acct.Close() })

	if cfg.StaticDir == "" {
		cfg.StaticDir = t.TempDir()
	}
	require.NoError(t, os.WriteFile(filepath.Join(cfg.StaticDir, "index.html"), []byte("<h1>doggo</h1>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.StaticDir, "admin.html"), []byte("admin"), 0o644))

	srv, err := New(cfg, svc, acct, logx.Nop())
	require.NoError(t, err)
	return &fixture{srv: srv, svc: svc, static: cfg.StaticDir}
}

func (f *fixture) do(method, target string, form url.Values) *httptest.ResponseRecorder {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func registration(name, email, pw, confirm string) url.Values {
	return url.Values{"name": {name}, "email": {email}, "password": {pw}, "confirm": {confirm}}
}

func TestRegister(t *testing.T) {
	f := newFixture(t, Config{})

	tests := []struct {
		name     string
		form     url.Values
		status   int
		body     string
		location string
	}{
		{"missing", registration("", "a@x.io", "pw", "pw"), http.StatusBadRequest, "Missing fields", ""},
		{"mismatch", registration("A", "a@x.io", "pw", "nope"), http.StatusBadRequest, "Passwords do not match", ""},
		{"ok", registration("A", "a@x.io", "pw", "pw"), http.StatusFound, "", "/login.html"},
		{"duplicate", registration("B", "A@X.io ", "pw2", "pw2"), http.StatusBadRequest, "Email is already registered", ""},
		{"password too long", registration("C", "c@x.io", strings.Repeat("p", 80), strings.Repeat("p", 80)), http.StatusBadRequest, "Password is too long", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.do(http.MethodPost, "/register", tc.form)
			assert.Equal(t, tc.status, rec.Code)
			if tc.body != "" {
				assert.Equal(t, tc.body, rec.Body.String())
			}
			if tc.location != "" {
				assert.Equal(t, tc.location, rec.Header().Get("Location"))
			}
		})
	}
}

func TestLogin(t *testing.T) {
	f := newFixture(t, Config{})
	require.Equal(t, http.StatusFound, f.do(http.MethodPost, "/register", registration("A", "a@x.io", "secret", "secret")).Code)

	rec := f.do(http.MethodPost, "/login", url.Values{"email": {"a@x.io"}, "password": {"secret"}})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin.html", rec.Header().Get("Location"))

	for _, form := range []url.Values{
		{"email": {"a@x.io"}, "password": {"wrong"}},
		{"email": {"nobody@x.io"}, "password": {"secret"}},
		{"email": {""}, "password": {""}},
	} {
		rec := f.do(http.MethodPost, "/login", form)
		assert.Equal(t, http.StatusFound, rec.Code)
		assert.Equal(t, "/login.html?error=1", rec.Header().Get("Location"))
	}
}

func TestLoginRateLimited(t *testing.T) {
	f := newFixture(t, Config{LoginRatePerMin: 2})
	require.Equal(t, http.StatusFound, f.do(http.MethodPost, "/register", registration("A", "a@x.io", "secret", "secret")).Code)

	good := url.Values{"email": {"a@x.io"}, "password": {"secret"}}
	assert.Equal(t, "/admin.html", f.do(http.MethodPost, "/login", good).Header().Get("Location"))
	assert.Equal(t, "/admin.html", f.do(http.MethodPost, "/login", good).Header().Get("Location"))
	assert.Equal(t, "/login.html?error=1", f.do(http.MethodPost, "/login", good).Header().Get("Location"))
}

func TestLimiterRefills(t *testing.T) {
	l := newLoginLimiter(1)
	now := fixedNow
	l.now = func() time.Time { return now }

	assert.True(t, l.allow("1.1.1.1"))
	assert.False(t, l.allow("1.1.1.1"))
	assert.True(t, l.allow("2.2.2.2"))

	now = now.Add(time.Minute)
	assert.True(t, l.allow("1.1.1.1"))

	assert.True(t, newLoginLimiter(0).allow("1.1.1.1"))
}

func TestSyncPunishmentsRedirects(t *testing.T) {
	f := newFixture(t, Config{})
	rec := f.do(http.MethodPost, "/api/sync_punishments", url.Values{})
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin.html", rec.Header().Get("Location"))
}

func TestExportJSON(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/api/export_json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"No punishments logged yet.","data":{}}`, rec.Body.String())

	_, err := f.svc.Append(context.Background(), punish.Punishment{
		ChatID: -100, UserID: 7, Username: "alice", Action: punish.ActionWarned, At: fixedNow,
	})
	require.NoError(t, err)

	rec = f.do(http.MethodGet, "/api/export_json", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "punishments.json")
	var doc map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &doc))
	require.Len(t, doc["7"], 1)
	assert.Equal(t, "alice", doc["7"][0]["username"])
}

func TestTopWarns(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/api/top_warns", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"days":30,"top":[]}`, rec.Body.String())

	ctx := context.Background()
	for _, p := range []punish.Punishment{
		{ChatID: 1, UserID: 7, Username: "alice", Action: punish.ActionWarned, At: fixedNow.Add(-time.Hour)},
		{ChatID: 1, UserID: 7, Username: "alice", Action: punish.ActionWarned, At: fixedNow.Add(-2 * time.Hour)},
		{ChatID: 1, UserID: 8, Username: "bob", Action: punish.ActionWarned, At: fixedNow.Add(-3 * punish.Day)},
	} {
		_, err := f.svc.Append(ctx, p)
		require.NoError(t, err)
	}

	rec = f.do(http.MethodGet, "/api/top_warns?days=1", nil)
	assert.JSONEq(t, `{"days":1,"top":[["@alice",2]]}`, rec.Body.String())

	rec = f.do(http.MethodGet, "/api/top_warns?days=bogus", nil)
	assert.JSONEq(t, `{"days":30,"top":[["@alice",2],["@bob",1]]}`, rec.Body.String())
}

func TestGenerateGraph(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.svc.Append(context.Background(), punish.Punishment{
		ChatID: 1, UserID: 7, Username: "alice", Action: punish.ActionWarned, At: fixedNow,
	})
	require.NoError(t, err)

	for _, target := range []string{"/api/generate_graph", "/api/generate_graph?days=7"} {
		rec := f.do(http.MethodGet, target, nil)
		require.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
		assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))
	}
}

func TestStatic(t *testing.T) {
	f := newFixture(t, Config{})

	rec := f.do(http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>doggo</h1>", rec.Body.String())

	rec = f.do(http.MethodGet, "/admin.html", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/missing.html", nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/index.html", url.Values{}).Code)
}

func TestResolveStaticRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	for _, p := range []string{"/../etc/passwd", "/a/../../x", "/x\x00.html"} {
		_, ok := resolveStatic(dir, p)
		assert.False(t, ok, p)
	}
	full, ok := resolveStatic(dir, "/")
	require.True(t, ok)
	assert.Equal(t, "index.html", filepath.Base(full))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Config{ExposeMetrics: true})
	rec := f.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	f = newFixture(t, Config{})
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/metrics", nil).Code)
}
