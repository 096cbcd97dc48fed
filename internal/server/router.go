package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vigil-sh/vigil/internal/metrics"
	"github.com/vigil-sh/vigil/internal/supervisor"
)

// Router exposes the supervisor's status over HTTP.
// Endpoints:
//
//	GET {basePath}/status   current supervisor snapshot
//	GET {basePath}/healthz  200 while the child is running, 503 otherwise
//	GET {basePath}/metrics  Prometheus metrics
type Router struct {
	sup      *supervisor.Supervisor
	basePath string
}

// NewRouter constructs a Router with a configurable basePath
// (e.g. "/api" results in /api/status, /api/healthz, /api/metrics).
func NewRouter(sup *supervisor.Supervisor, basePath string) *Router {
	return &Router{sup: sup, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any
// server or mux.
func (r *Router) Handler() http.Handler {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/status", r.handleStatus)
	group.GET("/healthz", r.handleHealthz)
	group.GET("/metrics", gin.WrapH(metrics.Handler()))
	return g
}

func (r *Router) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, r.sup.Snapshot())
}

func (r *Router) handleHealthz(c *gin.Context) {
	snap := r.sup.Snapshot()
	if snap.Running {
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}
	c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "state": snap.State})
}

// NewServer starts a standalone HTTP server on addr using this router. The
// server runs in its own goroutine; callers shut it down via http.Server.Close.
func NewServer(addr, basePath string, sup *supervisor.Supervisor) *http.Server {
	r := NewRouter(sup, basePath)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Default().Error("status endpoint unavailable", "addr", addr, "error", err)
		}
	}()
	return srv
}

func sanitizeBase(basePath string) string {
	bp := strings.TrimSpace(basePath)
	if bp == "" || bp == "/" {
		return ""
	}
	if !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	return strings.TrimRight(bp, "/")
}
