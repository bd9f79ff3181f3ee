// Package admin exposes the manager's status over HTTP for operators
// and monitoring. It is an observability collaborator of the core, not
// part of it: it only reads manager state.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/tcp-responder/internal/server"
	"github.com/sirosfoundation/tcp-responder/pkg/config"
)

// StatusResponse is the JSON document served on /status and /health.
type StatusResponse struct {
	Status  string         `json:"status"`
	Service string         `json:"service"`
	State   string         `json:"state"`
	Servers []ServerStatus `json:"servers"`
}

// ServerStatus reports the state of one managed server.
type ServerStatus struct {
	Port  int    `json:"port"`
	State string `json:"state"`
}

// Server is the admin HTTP server.
type Server struct {
	cfg config.AdminConfig
	log *zap.Logger
	mgr *server.Manager
	srv *http.Server
}

// New creates an admin server reading status from the given manager.
func New(cfg config.AdminConfig, mgr *server.Manager, logger *zap.Logger) *Server {
	return &Server{
		cfg: cfg,
		log: logger.Named("admin"),
		mgr: mgr,
	}
}

// Start binds the admin port and begins serving. The bind happens
// synchronously so a conflicting port surfaces at startup.
func (s *Server) Start() error {
	gin.SetMode(gin.ReleaseMode)

	ln, err := net.Listen("tcp", s.cfg.Address())
	if err != nil {
		return fmt.Errorf("admin listen on %s: %w", s.cfg.Address(), err)
	}

	s.srv = &http.Server{
		Handler:      s.router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		s.log.Info("admin server listening", zap.String("address", ln.Addr().String()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("admin server error", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin server shutdown: %w", err)
	}
	return nil
}

// router builds the admin router with common middleware.
func (s *Server) router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/health", s.handleStatus)
	router.GET("/status", s.handleStatus)
	return router
}

func (s *Server) handleStatus(c *gin.Context) {
	snapshot := s.mgr.Status()

	servers := make([]ServerStatus, 0, len(snapshot))
	for port, state := range snapshot {
		servers = append(servers, ServerStatus{Port: port, State: string(state)})
	}
	sort.Slice(servers, func(a, b int) bool { return servers[a].Port < servers[b].Port })

	c.JSON(http.StatusOK, StatusResponse{
		Status:  "ok",
		Service: "tcp-responder",
		State:   string(s.mgr.State()),
		Servers: servers,
	})
}
