// Package web serves the admin website: static pages, account registration
// and login, and read-only reporting endpoints over the punishment log.
package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"doggobot/internal/accounts"
	"doggobot/internal/punish"
	logx "doggobot/pkg/logx"
)

type Config struct {
	Addr      string
	StaticDir string
	// LoginRatePerMin caps login attempts per client IP; <= 0 disables.
	LoginRatePerMin int
	// ExposeMetrics mounts /metrics on this server.
	ExposeMetrics bool
	// TrustedProxies are allowed to set X-Forwarded-For. Empty trusts none.
	TrustedProxies []string
	Debug          bool
}

const (
	DefaultAddr        = ":5000"
	DefaultStaticDir   = "web"
	defaultWindowDays  = 30
	DefaultLoginPerMin = 10
)

type Server struct {
	cfg      Config
	log      logx.Logger
	svc      *punish.Service
	accounts *accounts.Store
	limiter  *loginLimiter
	engine   *gin.Engine
}

func New(cfg Config, svc *punish.Service, acct *accounts.Store, log logx.Logger) (*Server, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = DefaultAddr
	}
	if strings.TrimSpace(cfg.StaticDir) == "" {
		cfg.StaticDir = DefaultStaticDir
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if svc == nil || acct == nil {
		return nil, errors.New("web: punishment log and accounts store are required")
	}
	s := &Server{
		cfg:      cfg,
		log:      log.With(logx.String("comp", "web")),
		svc:      svc,
		accounts: acct,
		limiter:  newLoginLimiter(cfg.LoginRatePerMin),
	}

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	if err := r.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		return nil, err
	}
	r.Use(requestLogger(s.log))
	r.Use(recovery(s.log))
	s.routes(r)
	s.engine = r
	return s, nil
}

func (s *Server) routes(r *gin.Engine) {
	r.POST("/register", s.register)
	r.POST("/login", s.login)

	api := r.Group("/api")
	api.POST("/sync_punishments", s.syncPunishments)
	api.GET("/generate_graph", s.generateGraph)
	api.GET("/export_json", s.exportJSON)
	api.GET("/top_warns", s.topWarns)

	if s.cfg.ExposeMetrics {
		r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	r.GET("/", s.static)
	r.NoRoute(s.static)
}

func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", logx.String("addr", s.cfg.Addr), logx.String("static_dir", s.cfg.StaticDir))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	s.log.Info("stopped")
	return nil
}
