package web

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/slickofficials/autoposter/internal/analytics"
	"github.com/slickofficials/autoposter/internal/domain"
	"github.com/slickofficials/autoposter/internal/logger"
	"github.com/slickofficials/autoposter/internal/queue"
	"github.com/slickofficials/autoposter/internal/storage"
)

// Package web exposes the status and manual-trigger HTTP surface. Handlers
// return short detail strings only; internal errors never leak stack traces
// or vendor payloads to callers.

const defaultPostsLimit = 50

// Pipeline is the surface of the application the dashboard drives.
type Pipeline interface {
	DiscoverAndEnqueue(ctx context.Context) (int, error)
	PublishCycle(ctx context.Context) (queue.CycleResult, error)
	Status() (Status, error)
	RecentPosts(limit int) ([]domain.Post, error)
	PendingProgrammes() ([]domain.Programme, error)
	ApproveProgramme(ctx context.Context, network, externalID string) (int, error)
}

// Analytics is the optional event-recording surface. A nil Analytics disables
// the /events and /analytics routes with 404s.
type Analytics interface {
	RecordClick(link, platform string) error
	RecordConversion(link, network string, amountCents int64) error
	Summary() ([]analytics.LinkSummary, error)
}

// Status is the dashboard snapshot served by GET /status.
type Status struct {
	App               string      `json:"app"`
	Env               string      `json:"env"`
	Queue             queue.Stats `json:"queue"`
	PendingProgrammes int         `json:"pending_programmes"`
	NextDiscoverAt    time.Time   `json:"next_discover_at,omitzero"`
	NextPublishAt     time.Time   `json:"next_publish_at,omitzero"`
}

// Server serves the dashboard API.
type Server struct {
	engine   *gin.Engine
	srv      *http.Server
	pipeline Pipeline
	stats    Analytics
	token    string
	log      logger.Logger
}

// NewServer builds the gin engine and wires all routes. token may be empty,
// which leaves the API open (intended for local use only).
func NewServer(addr, token string, pipeline Pipeline, stats Analytics, log logger.Logger) *Server {
	if log == nil {
		log = logger.NopLogger{}
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		engine:   engine,
		pipeline: pipeline,
		stats:    stats,
		token:    strings.TrimSpace(token),
		log:      log,
	}

	engine.GET("/healthz", s.handleHealthz)

	api := engine.Group("/", s.authMiddleware())
	api.GET("/status", s.handleStatus)
	api.GET("/posts", s.handlePosts)
	api.POST("/run/discover", s.handleRunDiscover)
	api.POST("/run/publish", s.handleRunPublish)
	api.GET("/programmes/pending", s.handlePendingProgrammes)
	api.POST("/programmes/approve", s.handleApproveProgramme)
	if stats != nil {
		api.POST("/events/click", s.handleClick)
		api.POST("/events/conversion", s.handleConversion)
		api.GET("/analytics/summary", s.handleSummary)
	}

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the underlying engine. Used by tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	err := s.srv.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.token == "" {
			c.Next()
			return
		}
		header := c.GetHeader("Authorization")
		want := "Bearer " + s.token
		if header != want {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleStatus(c *gin.Context) {
	st, err := s.pipeline.Status()
	if err != nil {
		s.log.ErrorObj("status snapshot failed", "web_error", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "status unavailable"})
		return
	}
	c.JSON(http.StatusOK, st)
}

func (s *Server) handlePosts(c *gin.Context) {
	limit := defaultPostsLimit
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = n
	}

	posts, err := s.pipeline.RecentPosts(limit)
	if err != nil {
		s.log.ErrorObj("posts listing failed", "web_error", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "posts unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"posts": posts, "count": len(posts)})
}

func (s *Server) handleRunDiscover(c *gin.Context) {
	added, err := s.pipeline.DiscoverAndEnqueue(c.Request.Context())
	if err != nil {
		s.log.ErrorObj("manual discover failed", "web_error", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "discover run failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

func (s *Server) handleRunPublish(c *gin.Context) {
	res, err := s.pipeline.PublishCycle(c.Request.Context())
	if err != nil {
		s.log.ErrorObj("manual publish failed", "web_error", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "publish run failed"})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handlePendingProgrammes(c *gin.Context) {
	progs, err := s.pipeline.PendingProgrammes()
	if err != nil {
		s.log.ErrorObj("pending programmes listing failed", "web_error", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "programmes unavailable"})
		return
	}
	if progs == nil {
		progs = []domain.Programme{}
	}
	c.JSON(http.StatusOK, gin.H{"programmes": progs, "count": len(progs)})
}

type approveRequest struct {
	Network    string `json:"network" binding:"required"`
	ExternalID string `json:"external_id" binding:"required"`
}

func (s *Server) handleApproveProgramme(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "network and external_id are required"})
		return
	}

	added, err := s.pipeline.ApproveProgramme(c.Request.Context(), req.Network, req.ExternalID)
	if err != nil {
		if errors.Is(err, storage.ErrProgrammeNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "programme not tracked"})
			return
		}
		s.log.ErrorObj("programme approval failed", "web_error", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "approval failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"added": added})
}

type clickRequest struct {
	Link     string `json:"link" binding:"required"`
	Platform string `json:"platform"`
}

func (s *Server) handleClick(c *gin.Context) {
	var req clickRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "link is required"})
		return
	}
	if err := s.stats.RecordClick(req.Link, req.Platform); err != nil {
		s.log.ErrorObj("click record failed", "web_error", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "click not recorded"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

type conversionRequest struct {
	Link        string `json:"link" binding:"required"`
	Network     string `json:"network"`
	AmountCents int64  `json:"amount_cents"`
}

func (s *Server) handleConversion(c *gin.Context) {
	var req conversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "link is required"})
		return
	}
	if req.AmountCents < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "amount_cents must not be negative"})
		return
	}
	if err := s.stats.RecordConversion(req.Link, req.Network, req.AmountCents); err != nil {
		s.log.ErrorObj("conversion record failed", "web_error", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "conversion not recorded"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "recorded"})
}

func (s *Server) handleSummary(c *gin.Context) {
	summaries, err := s.stats.Summary()
	if err != nil {
		s.log.ErrorObj("analytics summary failed", "web_error", map[string]any{"error": err.Error()})
		c.JSON(http.StatusInternalServerError, gin.H{"error": "summary unavailable"})
		return
	}
	if summaries == nil {
		summaries = []analytics.LinkSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"links": summaries})
}
