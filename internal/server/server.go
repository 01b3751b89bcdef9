// Package server exposes sources, outcomes, alerts and the scheduler over a
// JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/TobiSchelling/feedwatch/internal/database"
	"github.com/TobiSchelling/feedwatch/internal/extract"
	"github.com/TobiSchelling/feedwatch/internal/metrics"
	"github.com/TobiSchelling/feedwatch/internal/pipeline"
	"github.com/TobiSchelling/feedwatch/internal/scheduler"
)

// Scheduler is the part of the scheduler the API controls.
// *scheduler.Scheduler satisfies it.
type Scheduler interface {
	Start() error
	Stop()
	Reconfigure(interval time.Duration) error
	Status() scheduler.Status
}

// Server is the HTTP API.
type Server struct {
	db     *database.DB
	pipe   *pipeline.Pipeline
	sched  Scheduler
	log    *zap.Logger
	engine *gin.Engine

	metrics *metrics.Recorder
}

// New creates a server. sched may be nil when no scheduler runs.
func New(db *database.DB, pipe *pipeline.Pipeline, sched Scheduler, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))

	s := &Server{db: db, pipe: pipe, sched: sched, log: log, engine: r}
	s.RegisterRoutes(r)
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ExposeMetrics serves rec at /metrics. Call before serving.
func (s *Server) ExposeMetrics(rec *metrics.Recorder) {
	s.metrics = rec
	s.engine.GET("/metrics", gin.WrapH(rec.Handler()))
}

// RegisterRoutes mounts the health check and the /api routes on r.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.health)

	api := r.Group("/api")
	{
		api.GET("/stats", s.stats)

		api.GET("/sources", s.listSources)
		api.POST("/sources", s.addSource)
		api.PUT("/sources/:id", s.updateSource)
		api.POST("/sources/:id/toggle", s.toggleSource)
		api.DELETE("/sources/:id", s.deleteSource)
		api.POST("/sources/:id/check", s.checkSource)
		api.GET("/sources/:id/health", s.sourceHealth)
		api.GET("/sources/:id/trend", s.sourceTrend)
		api.GET("/sources/:id/extraction-stats", s.extractionStats)
		api.GET("/sources/:id/items", s.sourceItems)

		api.POST("/check-all", s.checkAll)
		api.POST("/validate", s.validate)
		api.POST("/preview", s.preview)
		api.POST("/suggest-hints", s.suggestHints)

		api.GET("/alerts", s.listAlerts)
		api.POST("/alerts/:id/read", s.readAlert)
		api.POST("/alerts/read-all", s.readAllAlerts)

		api.GET("/scheduler", s.schedulerStatus)
		api.POST("/scheduler/restart", s.restartScheduler)
		api.PUT("/settings", s.updateSettings)
	}
}

func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func fail(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, gin.H{"error": msg})
}

// failErr maps store errors onto status codes.
func (s *Server) failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, database.ErrNotFound):
		fail(c, http.StatusNotFound, "not found")
	case errors.Is(err, database.ErrDuplicateRoute):
		fail(c, http.StatusConflict, err.Error())
	default:
		s.log.Error("request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		fail(c, http.StatusInternalServerError, "internal server error")
	}
}

func paramID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, def int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func queryBool(c *gin.Context, key string) bool {
	b, _ := strconv.ParseBool(c.Query(key))
	return b
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.db.GetStats()
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) listSources(c *gin.Context) {
	sources, err := s.db.ListSources(database.SourceFilter{
		ActiveOnly: queryBool(c, "active"),
		Category:   c.Query("category"),
	})
	if err != nil {
		s.failErr(c, err)
		return
	}
	if sources == nil {
		sources = []database.Source{}
	}
	c.JSON(http.StatusOK, gin.H{"data": sources})
}

type sourceRequest struct {
	Name            string `json:"name" binding:"required"`
	Description     string `json:"description"`
	Category        string `json:"category"`
	Route           string `json:"route" binding:"required"`
	OriginalURL     string `json:"original_url"`
	CustomSelectors string `json:"custom_selectors"`
	CheckFrequency  int    `json:"check_frequency"`
	IsActive        *bool  `json:"is_active"`
}

func (s *Server) addSource(c *gin.Context) {
	var req sourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	req.Route = strings.TrimSpace(req.Route)
	if _, err := extract.ParseHints(req.CustomSelectors); err != nil {
		fail(c, http.StatusBadRequest, "Invalid custom selectors JSON")
		return
	}
	if ok, msg := s.pipe.Validate(c.Request.Context(), req.Route); !ok {
		fail(c, http.StatusBadRequest, "Route validation failed: "+msg)
		return
	}

	src := database.Source{
		Name:            strings.TrimSpace(req.Name),
		Description:     req.Description,
		Category:        req.Category,
		Route:           req.Route,
		OriginalURL:     strings.TrimSpace(req.OriginalURL),
		CustomSelectors: req.CustomSelectors,
		CheckFrequency:  req.CheckFrequency,
		IsActive:        req.IsActive == nil || *req.IsActive,
	}
	id, err := s.db.InsertSource(src)
	if err != nil {
		s.failErr(c, err)
		return
	}
	created, err := s.db.GetSource(id)
	if err != nil {
		s.failErr(c, err)
		return
	}
	s.log.Info("source added", zap.Int64("id", id), zap.String("route", created.Route))
	c.JSON(http.StatusCreated, created)
}

func (s *Server) toggleSource(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	active, err := s.db.ToggleSource(id)
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": active})
}

// sourceUpdate carries the fields an edit may change; absent fields keep
// their stored value.
type sourceUpdate struct {
	Name            *string `json:"name"`
	Description     *string `json:"description"`
	Category        *string `json:"category"`
	Route           *string `json:"route"`
	OriginalURL     *string `json:"original_url"`
	CustomSelectors *string `json:"custom_selectors"`
	CheckFrequency  *int    `json:"check_frequency"`
	IsActive        *bool   `json:"is_active"`
}

func (s *Server) updateSource(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var req sourceUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	src, err := s.db.GetSource(id)
	if err != nil {
		s.failErr(c, err)
		return
	}

	if req.Route != nil {
		route := strings.TrimSpace(*req.Route)
		if route == "" {
			fail(c, http.StatusBadRequest, "route must not be empty")
			return
		}
		if route != src.Route {
			if ok, msg := s.pipe.Validate(c.Request.Context(), route); !ok {
				fail(c, http.StatusBadRequest, "Route validation failed: "+msg)
				return
			}
		}
		src.Route = route
	}
	if req.CustomSelectors != nil {
		if _, err := extract.ParseHints(*req.CustomSelectors); err != nil {
			fail(c, http.StatusBadRequest, "Invalid custom selectors JSON")
			return
		}
		src.CustomSelectors = *req.CustomSelectors
	}
	if req.Name != nil {
		if name := strings.TrimSpace(*req.Name); name != "" {
			src.Name = name
		}
	}
	if req.Description != nil {
		src.Description = *req.Description
	}
	if req.Category != nil {
		src.Category = *req.Category
	}
	if req.OriginalURL != nil {
		src.OriginalURL = strings.TrimSpace(*req.OriginalURL)
	}
	if req.CheckFrequency != nil {
		src.CheckFrequency = *req.CheckFrequency
	}
	if req.IsActive != nil {
		src.IsActive = *req.IsActive
	}

	if err := s.db.UpdateSource(*src); err != nil {
		s.failErr(c, err)
		return
	}
	updated, err := s.db.GetSource(id)
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (s *Server) deleteSource(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := s.db.DeleteSource(id); err != nil {
		s.failErr(c, err)
		return
	}
	if s.metrics != nil {
		s.metrics.Forget(id)
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "deleted": true})
}

func (s *Server) checkSource(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	src, err := s.db.GetSource(id)
	if err != nil {
		s.failErr(c, err)
		return
	}
	res := s.pipe.Check(c.Request.Context(), *src, !queryBool(c, "dry_run"))
	c.JSON(http.StatusOK, res)
}

func (s *Server) sourceHealth(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if _, err := s.db.GetSource(id); err != nil {
		s.failErr(c, err)
		return
	}
	h, err := s.db.GetSourceHealth(id, queryInt(c, "limit", database.DefaultHealthWindow))
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, h)
}

func (s *Server) sourceTrend(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	days := queryInt(c, "days", 7)
	points, err := s.db.GetSourceTrend(id, time.Now().UTC().AddDate(0, 0, -days))
	if err != nil {
		s.failErr(c, err)
		return
	}
	if points == nil {
		points = []database.TrendPoint{}
	}
	c.JSON(http.StatusOK, gin.H{"data": points, "days": days})
}

func (s *Server) extractionStats(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	st, err := s.db.GetExtractionStats(id)
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) sourceItems(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	items, err := s.db.GetItems(database.ItemFilter{SourceID: id, Limit: uint64(queryInt(c, "limit", 50))})
	if err != nil {
		s.failErr(c, err)
		return
	}
	if items == nil {
		items = []database.Item{}
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) checkAll(c *gin.Context) {
	n, err := s.pipe.RunAll(c.Request.Context())
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"checked": n})
}

type routeRequest struct {
	Route string `json:"route" binding:"required"`
	Limit int    `json:"limit"`
}

func (s *Server) validate(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	ok, msg := s.pipe.Validate(c.Request.Context(), strings.TrimSpace(req.Route))
	c.JSON(http.StatusOK, gin.H{"valid": ok, "message": msg})
}

func (s *Server) preview(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	items, err := s.pipe.Preview(c.Request.Context(), strings.TrimSpace(req.Route), req.Limit)
	if err != nil {
		fail(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) suggestHints(c *gin.Context) {
	var req struct {
		URL string `json:"url" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	hints, err := s.pipe.SuggestHints(c.Request.Context(), strings.TrimSpace(req.URL))
	if err != nil {
		fail(c, http.StatusBadGateway, err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"hints": hints, "custom_selectors": hints.JSON()})
}

func (s *Server) listAlerts(c *gin.Context) {
	alerts, err := s.db.ListAlerts(database.AlertFilter{
		UnreadOnly: queryBool(c, "unread"),
		Limit:      uint64(queryInt(c, "limit", 100)),
	})
	if err != nil {
		s.failErr(c, err)
		return
	}
	if alerts == nil {
		alerts = []database.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"data": alerts})
}

func (s *Server) readAlert(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := s.db.MarkAlertRead(id); err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_read": true})
}

func (s *Server) readAllAlerts(c *gin.Context) {
	n, err := s.db.MarkAllAlertsRead()
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": n})
}

func (s *Server) schedulerStatus(c *gin.Context) {
	if s.sched == nil {
		c.JSON(http.StatusOK, scheduler.Status{})
		return
	}
	c.JSON(http.StatusOK, s.sched.Status())
}

func (s *Server) restartScheduler(c *gin.Context) {
	if s.sched == nil {
		fail(c, http.StatusServiceUnavailable, "scheduler is not running in this process")
		return
	}
	s.sched.Stop()
	if err := s.sched.Start(); err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, s.sched.Status())
}

type settingsRequest struct {
	CheckInterval *int    `json:"check_interval"`
	RSSHubBaseURL *string `json:"rsshub_base_url"`
}

func (s *Server) updateSettings(c *gin.Context) {
	var req settingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err.Error())
		return
	}
	if req.CheckInterval != nil && *req.CheckInterval < 1 {
		fail(c, http.StatusBadRequest, "check_interval must be at least 1 minute")
		return
	}

	if req.RSSHubBaseURL != nil {
		base := strings.TrimSpace(*req.RSSHubBaseURL)
		if err := s.db.SetSetting(database.SettingRSSHubBaseURL, base); err != nil {
			s.failErr(c, err)
			return
		}
		s.pipe.SetBaseURL(base)
	}
	if req.CheckInterval != nil {
		if err := s.db.SetSetting(database.SettingCheckInterval, strconv.Itoa(*req.CheckInterval)); err != nil {
			s.failErr(c, err)
			return
		}
		if s.sched != nil {
			if err := s.sched.Reconfigure(time.Duration(*req.CheckInterval) * time.Minute); err != nil {
				fail(c, http.StatusBadRequest, err.Error())
				return
			}
		}
	}

	settings, err := s.db.AllSettings()
	if err != nil {
		s.failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"settings": settings})
}

// Serve runs the API on port until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("server listening", zap.String("addr", "http://"+srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
