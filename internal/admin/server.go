// Package admin serves the rendezvous server's operator HTTP surface.
package admin

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/danmuck/punchctl/internal/auth"
	"github.com/danmuck/punchctl/internal/directory"
	"github.com/danmuck/punchctl/internal/observability"
)

const version = "0.1.0"

// PeerSource reads the directory. Implementations hop onto the reactor.
type PeerSource func(ctx context.Context) ([]directory.Snapshot, error)

type Server struct {
	ID      string
	Addr    string
	Started time.Time

	peers  PeerSource
	guard  auth.Validator
	router *gin.Engine
	http   *http.Server
	ready  atomic.Bool
}

// New builds the admin router. When guard is non-nil, /peers requires a
// bearer token; probes and metrics stay open.
func New(id, addr string, corsOrigins []string, peers PeerSource, guard auth.Validator) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:      id,
		Addr:    addr,
		Started: time.Now(),
		peers:   peers,
		guard:   guard,
		router:  r,
	}
	s.http = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// SetReady flips the /ready probe once the reactor is serving.
func (s *Server) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Started).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/ready", func(c *gin.Context) {
		status := http.StatusOK
		if !s.ready.Load() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":   s.ready.Load(),
			"uptime":  time.Since(s.Started).String(),
			"service": s.ID,
			"version": version,
		})
	})

	s.router.GET("/peers", auth.Require(s.guard), func(c *gin.Context) {
		if s.peers == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "directory unavailable"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		peers, err := s.peers(ctx)
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		if peers == nil {
			peers = []directory.Snapshot{}
		}
		c.JSON(http.StatusOK, gin.H{
			"count": len(peers),
			"peers": peers,
		})
	})
}

// ListenAndServe blocks until Shutdown. A clean shutdown, including one that
// happened before the listener opened, returns nil.
func (s *Server) ListenAndServe() error {
	log.Info().Str("addr", s.Addr).Msg("admin.Server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
