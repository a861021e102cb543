package web

import (
	"errors"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"doggobot/internal/accounts"
	"doggobot/internal/chart"
	"doggobot/internal/metrics"
	"doggobot/internal/punish"
	logx "doggobot/pkg/logx"
)

const (
	loginPage      = "/login.html"
	loginErrorPage = "/login.html?error=1"
	adminPage      = "/admin.html"
)

func (s *Server) register(c *gin.Context) {
	name := c.PostForm("name")
	email := c.PostForm("email")
	password := c.PostForm("password")
	confirm := c.PostForm("confirm")

	if name == "" || email == "" || password == "" || confirm == "" {
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		c.String(http.StatusBadRequest, "Missing fields")
		return
	}
	if password != confirm {
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		c.String(http.StatusBadRequest, "Passwords do not match")
		return
	}

	_, err := s.accounts.Register(c.Request.Context(), name, email, password)
	switch {
	case errors.Is(err, accounts.ErrEmailTaken):
		metrics.RegistrationsTotal.WithLabelValues("duplicate").Inc()
		c.String(http.StatusBadRequest, "Email is already registered")
		return
	case errors.Is(err, accounts.ErrMissingFields):
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		c.String(http.StatusBadRequest, "Missing fields")
		return
	case errors.Is(err, accounts.ErrPasswordTooLong):
		metrics.RegistrationsTotal.WithLabelValues("invalid").Inc()
		c.String(http.StatusBadRequest, "Password is too long")
		return
	case err != nil:
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		s.log.Error("register failed", logx.Err(err))
		c.String(http.StatusInternalServerError, "Internal error")
		return
	}
	metrics.RegistrationsTotal.WithLabelValues("ok").Inc()
	c.Redirect(http.StatusFound, loginPage)
}

func (s *Server) login(c *gin.Context) {
	if !s.limiter.allow(c.ClientIP()) {
		metrics.AuthLoginsTotal.WithLabelValues("limited").Inc()
		c.Redirect(http.StatusFound, loginErrorPage)
		return
	}
	email := c.PostForm("email")
	password := c.PostForm("password")
	if email == "" || password == "" {
		metrics.AuthLoginsTotal.WithLabelValues("invalid").Inc()
		c.Redirect(http.StatusFound, loginErrorPage)
		return
	}

	_, err := s.accounts.Authenticate(c.Request.Context(), email, password)
	if err != nil {
		status := "invalid"
		if !errors.Is(err, accounts.ErrInvalidCredentials) {
			status = "error"
			s.log.Error("login failed", logx.Err(err))
		}
		metrics.AuthLoginsTotal.WithLabelValues(status).Inc()
		c.Redirect(http.StatusFound, loginErrorPage)
		return
	}
	metrics.AuthLoginsTotal.WithLabelValues("ok").Inc()
	c.Redirect(http.StatusFound, adminPage)
}

// syncPunishments is kept for admin pages that still post to it; the log is
// always read fresh, so there is nothing to sync.
func (s *Server) syncPunishments(c *gin.Context) {
	c.Redirect(http.StatusFound, adminPage)
}

// windowDays reads ?days=N; missing, invalid or non-positive gives 30.
func windowDays(c *gin.Context) int {
	n, err := strconv.Atoi(c.Query("days"))
	if err != nil || n <= 0 || n > 36500 {
		return defaultWindowDays
	}
	return n
}

func (s *Server) since(days int) time.Time {
	return s.svc.Now().Add(-time.Duration(days) * punish.Day)
}

func (s *Server) generateGraph(c *gin.Context) {
	days := windowDays(c)
	series, err := s.svc.WarningsPerDay(c.Request.Context(), punish.DailyQuery{Since: s.since(days)})
	if err != nil {
		s.fail(c, "warnings per day", err)
		return
	}
	img, err := chart.RenderDaily(series, chart.Options{})
	if err != nil {
		s.fail(c, "render chart", err)
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "image/png", img)
}

func (s *Server) exportJSON(c *gin.Context) {
	b, ok, err := s.svc.Export(c.Request.Context())
	if err != nil {
		s.fail(c, "export", err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"message": "No punishments logged yet.", "data": gin.H{}})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="punishments.json"`)
	c.Data(http.StatusOK, "application/json", b)
}

func (s *Server) topWarns(c *gin.Context) {
	days := windowDays(c)
	top, err := s.svc.TopWarned(c.Request.Context(), punish.TopQuery{Since: s.since(days), Limit: punish.DefaultTopLimit})
	if err != nil {
		s.fail(c, "top warned", err)
		return
	}
	if top == nil {
		top = []punish.LabelCount{}
	}
	c.JSON(http.StatusOK, gin.H{"days": days, "top": top})
}

func (s *Server) fail(c *gin.Context, op string, err error) {
	s.log.Error(op+" failed", logx.Err(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}

// static serves files from the static dir; "/" is index.html. Paths that
// resolve outside the dir are rejected.
func (s *Server) static(c *gin.Context) {
	if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead {
		c.Status(http.StatusNotFound)
		return
	}
	full, ok := resolveStatic(s.cfg.StaticDir, c.Request.URL.Path)
	if !ok {
		c.Status(http.StatusNotFound)
		return
	}
	fi, err := os.Stat(full)
	if err != nil || fi.IsDir() {
		c.Status(http.StatusNotFound)
		return
	}
	c.File(full)
}

func resolveStatic(dir, urlPath string) (string, bool) {
	if strings.Contains(urlPath, "\x00") {
		return "", false
	}
	for _, seg := range strings.Split(urlPath, "/") {
		if seg == ".." {
			return "", false
		}
	}
	clean := path.Clean("/" + urlPath)
	if clean == "/" {
		clean = "/index.html"
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	full := filepath.Join(root, filepath.FromSlash(clean))
	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return full, true
}
