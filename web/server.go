// Package web serves read-only sync status over HTTP and a websocket stream.
package web

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	unifiederrors "cellar/errors"
	"cellar/logger"
)

const broadcastInterval = time.Second

// Server is the status server
type Server struct {
	router    *gin.Engine
	server    *http.Server
	hub       *Hub
	handlers  *Handlers
	port      int
	interval  time.Duration
	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	log       *logger.Logger
}

// NewServer builds the router. Nil deps.Errors falls back to the global registry
// and a nil gatherer to the default prometheus registry.
func NewServer(port int, deps Dependencies, gatherer prometheus.Gatherer) *Server {
	if os.Getenv("GIN_MODE") == "" && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Errors == nil {
		deps.Errors = unifiederrors.Get()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		hub:      NewHub(),
		handlers: NewHandlers(deps),
		port:     port,
		interval: broadcastInterval,
		log:      logger.New("Web"),
	}

	router.Use(s.requestLogger())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	router.Use(cors.New(corsConfig))

	s.setupRoutes(gatherer)
	return s
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/ws" {
			return
		}
		s.log.Trace("request", "%s %s %d %s", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}

func (s *Server) setupRoutes(gatherer prometheus.Gatherer) {
	s.router.GET("/healthz", s.handlers.HandleHealthz)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handlers.HandleStatus)
		api.GET("/errors", s.handlers.HandleErrors)
	}

	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	s.router.GET("/ws", HandleWebSocket(s.hub, func(ctx context.Context) interface{} {
		return s.handlers.status(ctx)
	}))
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the port and serves in the background until Stop or ctx ends
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.isRunning {
		return fmt.Errorf("server already running")
	}

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.port, err)
	}
	s.server = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(ctx)
	go s.broadcastStatus(ctx)
	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.NetworkError("Serve", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()

	s.isRunning = true
	s.log.Info("Start", "status server listening on %s", listener.Addr())
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isRunning {
		return
	}
	s.cancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		s.log.Warning("Stop", "shutdown: %v", err)
	}
	s.isRunning = false
	s.log.Info("Stop", "status server stopped")
}

// broadcastStatus pushes the status to websocket clients while any are connected
func (s *Server) broadcastStatus(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if s.hub.ClientCount() == 0 {
				continue
			}
			s.hub.Broadcast("status", s.handlers.status(ctx))
		}
	}
}
