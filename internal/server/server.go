package server

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"pmintel/internal/config"
	"pmintel/internal/dashboard"
	"pmintel/internal/history"
	"pmintel/internal/metrics"
	"pmintel/internal/refresh"
	"pmintel/internal/strategy"
)

//go:embed templates/*.html
var templateFS embed.FS

// SnapshotSource exposes the latest snapshot and a way to ask for a new one.
// *scheduler.Scheduler implements it.
type SnapshotSource interface {
	Latest() *refresh.Snapshot
	Trigger()
}

// HistorySource summarizes stored refreshes. *history.Tracker implements it.
type HistorySource interface {
	Generate(ctx context.Context) (*history.Report, error)
}

// Server serves the dashboard page and the JSON API.
type Server struct {
	addr    string
	engine  *gin.Engine
	source  SnapshotSource
	history HistorySource
}

// New builds the gin engine. hist and reg may be nil.
func New(cfg config.ServerConfig, source SnapshotSource, hist HistorySource, reg *metrics.Registry) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())

	tmpl := template.Must(template.New("").Funcs(template.FuncMap{
		"alertLine": dashboard.AlertLine,
		"newsLine":  dashboard.NewsLine,
		"number":    dashboard.FormatNumber,
		"optional": func(v *float64) string {
			if v == nil {
				return "n/a"
			}
			return fmt.Sprintf("%.2f", *v)
		},
		"change": func(v *float64) string {
			if v == nil {
				return "n/a"
			}
			return fmt.Sprintf("%+.2f", *v)
		},
		"lower": func(s strategy.Signal) string { return strings.ToLower(string(s)) },
		"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	}).ParseFS(templateFS, "templates/*.html"))
	engine.SetHTMLTemplate(tmpl)

	s := &Server{
		addr:    cfg.Addr,
		engine:  engine,
		source:  source,
		history: hist,
	}
	s.register(reg)
	return s
}

func (s *Server) register(reg *metrics.Registry) {
	s.engine.GET("/", s.index)
	s.engine.GET("/healthz", s.health)
	if reg != nil {
		s.engine.GET("/metrics", gin.WrapH(reg.Handler()))
	}

	group := s.engine.Group("/api")
	group.GET("/snapshot", s.snapshot)
	group.GET("/markets", s.markets)
	group.GET("/alerts", s.alerts)
	group.GET("/news", s.news)
	group.POST("/refresh", s.refresh)
	group.GET("/history", s.historyReport)
}

// Handler returns the engine as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	slog.Info("http server stopped")
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func (s *Server) index(c *gin.Context) {
	snap := s.source.Latest()
	status := http.StatusOK
	if snap == nil {
		status = http.StatusServiceUnavailable
	}
	c.HTML(status, "index.html", gin.H{
		"Title":    dashboard.Title,
		"NoAlerts": dashboard.NoAlerts,
		"Snap":     snap,
	})
}

func (s *Server) health(c *gin.Context) {
	status := "ok"
	if s.source.Latest() == nil {
		status = "warming_up"
	}
	c.JSON(http.StatusOK, gin.H{"status": status})
}

func (s *Server) snapshot(c *gin.Context) {
	snap := s.source.Latest()
	if snap == nil {
		notReady(c)
		return
	}
	ok(c, http.StatusOK, snap, nil)
}

func (s *Server) markets(c *gin.Context) {
	snap := s.source.Latest()
	if snap == nil {
		notReady(c)
		return
	}

	filter := strings.ToUpper(strings.TrimSpace(c.Query("signal")))
	switch strategy.Signal(filter) {
	case "":
		ok(c, http.StatusOK, snap.Markets, meta(snap, len(snap.Markets)))
		return
	case strategy.Buy, strategy.Sell, strategy.Hold:
	default:
		fail(c, http.StatusBadRequest, "signal must be BUY, SELL or HOLD")
		return
	}

	items := make([]strategy.Scored, 0, len(snap.Markets))
	for _, m := range snap.Markets {
		if string(m.Signal) == filter {
			items = append(items, m)
		}
	}
	ok(c, http.StatusOK, items, meta(snap, len(items)))
}

func (s *Server) alerts(c *gin.Context) {
	snap := s.source.Latest()
	if snap == nil {
		notReady(c)
		return
	}
	ok(c, http.StatusOK, snap.Alerts, meta(snap, len(snap.Alerts)))
}

func (s *Server) news(c *gin.Context) {
	snap := s.source.Latest()
	if snap == nil {
		notReady(c)
		return
	}
	ok(c, http.StatusOK, snap.News, meta(snap, len(snap.News)))
}

func (s *Server) refresh(c *gin.Context) {
	s.source.Trigger()
	ok(c, http.StatusAccepted, gin.H{"status": "refresh scheduled"}, nil)
}

func (s *Server) historyReport(c *gin.Context) {
	if s.history == nil {
		fail(c, http.StatusNotFound, "history is disabled")
		return
	}
	r, err := s.history.Generate(c.Request.Context())
	if err != nil {
		slog.Error("generating history report", "error", err)
		fail(c, http.StatusInternalServerError, "history unavailable")
		return
	}
	ok(c, http.StatusOK, r, nil)
}

func meta(snap *refresh.Snapshot, total int) map[string]any {
	return map[string]any{
		"refresh_id":   snap.ID.String(),
		"completed_at": snap.CompletedAt,
		"total":        total,
	}
}
