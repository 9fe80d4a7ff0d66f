// Package api provides the broker daemon's debug/status HTTP surface.
// Endpoints:
//
//	GET  {basePath}/status    all managed servers
//	GET  {basePath}/journal   recent lifecycle events (404 without a journal)
//	POST {basePath}/shutdown  stop all servers; query: hard=1, timeout=10s
//	GET  {basePath}/healthz
//	GET  {basePath}/metrics   Prometheus metrics
package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sublime-ycmd/sublime-ycmd/internal/manager"
	"github.com/sublime-ycmd/sublime-ycmd/internal/metrics"
	"github.com/sublime-ycmd/sublime-ycmd/internal/store"
)

// Router provides embeddable HTTP handlers for inspecting the broker.
type Router struct {
	mgr      *manager.Manager
	journal  *store.Journal
	basePath string
}

// NewRouter constructs a Router with a configurable basePath ("" or "/v1").
// journal may be nil.
func NewRouter(mgr *manager.Manager, journal *store.Journal, basePath string) *Router {
	return &Router{mgr: mgr, journal: journal, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/journal", r.handleJournal)
	group.POST("/shutdown", r.handleShutdown)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

// NewServer starts a standalone HTTP server on addr using this router.
func NewServer(addr, basePath string, mgr *manager.Manager, journal *store.Journal) *http.Server {
	r := NewRouter(mgr, journal, basePath)
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() { _ = server.ListenAndServe() }()
	return server
}

type errorResp struct {
	Error string `json:"error"`
}

func (r *Router) handleStatus(c *gin.Context) {
	infos := r.mgr.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"count":   len(infos),
		"servers": infos,
	})
}

func (r *Router) handleJournal(c *gin.Context) {
	if r.journal == nil {
		c.JSON(http.StatusNotFound, errorResp{Error: "no journal configured"})
		return
	}
	limit := 50
	if q := c.Query("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid limit"})
			return
		}
		limit = n
	}
	entries, err := r.journal.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, errorResp{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

func (r *Router) handleShutdown(c *gin.Context) {
	hard := c.Query("hard") == "1" || strings.EqualFold(c.Query("hard"), "true")
	timeout := 10 * time.Second
	if q := c.Query("timeout"); q != "" {
		d, err := time.ParseDuration(q)
		if err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, errorResp{Error: "invalid timeout"})
			return
		}
		timeout = d
	}
	clean := r.mgr.Shutdown(hard, timeout)
	c.JSON(http.StatusOK, gin.H{"clean": clean})
}

func (r *Router) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func sanitizeBase(basePath string) string {
	bp := strings.TrimSpace(basePath)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimSuffix(bp, "/")
}
