package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"landreg/internal/pipeline"
	"landreg/internal/store"
)

// ErrRunInProgress a match or merge is already running
var ErrRunInProgress = errors.New("a run is already in progress")

// Server HTTP API over the match and merge pipelines
type Server struct {
	router *gin.Engine
	coord  *pipeline.Coordinator
	store  *store.Store
	logger zerolog.Logger

	running sync.Mutex
}

// NewServer creates the API server
func NewServer(coord *pipeline.Coordinator, st *store.Store, logger zerolog.Logger, devMode bool) *Server {
	if !devMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router: gin.New(),
		coord:  coord,
		store:  st,
		logger: logger,
	}
	s.router.Use(gin.Recovery(), s.requestLogger())

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// CORS
	s.router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	})

	api := s.router.Group("/api")
	{
		api.GET("/status", s.GetStatus)
		api.GET("/lookup", s.Lookup)
		api.POST("/match", s.Match)
		api.POST("/merge", s.Merge)
		api.GET("/runs", s.ListRuns)
		api.GET("/runs/:id", s.GetRun)
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.logger.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Msg("request")
	}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ShutdownTimeout bounds how long Serve waits for open requests after ctx ends.
const ShutdownTimeout = 10 * time.Second

// Serve handles requests on ln until ctx is cancelled, then shuts down and
// waits for any match or merge in flight. Request contexts derive from ctx,
// so a running match stops at its next property.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.Handler(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)

	// wait for a match or merge still holding the run lock
	s.running.Lock()
	s.running.Unlock() //nolint:staticcheck

	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return serveErr
	}
	return nil
}

// tryLock serialises pipeline runs; the caller must unlock on success.
func (s *Server) tryLock() error {
	if !s.running.TryLock() {
		return ErrRunInProgress
	}
	return nil
}
