// Package web serves the teleoperation status dashboard.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-teach/internal/log"
	"github.com/teslashibe/go-teach/pkg/hub"
	"github.com/teslashibe/go-teach/pkg/teleop"
)

// DefaultPushInterval is how often the status feed is pushed.
const DefaultPushInterval = 200 * time.Millisecond

// StatusSource provides teleoperator snapshots.
type StatusSource interface {
	Status() teleop.Status
}

// Server is the dashboard server.
type Server struct {
	app      *fiber.App
	addr     string
	source   StatusSource
	interval time.Duration
	logger   *slog.Logger

	statusHub *hub.Hub
}

// NewServer creates a dashboard for source listening on addr (host:port).
func NewServer(addr string, source StatusSource, logger *slog.Logger) *Server {
	logger = log.OrDefault(logger).With("component", "web")
	s := &Server{
		addr:      addr,
		source:    source,
		interval:  DefaultPushInterval,
		logger:    logger,
		statusHub: hub.New("status", logger),
	}

	app := fiber.New(fiber.Config{
		AppName:               "teach dashboard",
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/status", s.handleStatus)
	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true, "clients": s.statusHub.ClientCount()})
	})

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/status", websocket.New(s.handleStatusWS))

	s.app = app
	return s
}

// SetPushInterval changes the status feed period. Call before Start.
func (s *Server) SetPushInterval(d time.Duration) {
	if d > 0 {
		s.interval = d
	}
}

// App returns the underlying Fiber app.
func (s *Server) App() *fiber.App { return s.app }

// Start listens on the configured address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("dashboard listen: %w", err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	go s.statusHub.Run(ctx)
	go s.pushLoop(ctx)
	go func() {
		<-ctx.Done()
		if err := s.app.Shutdown(); err != nil {
			s.logger.Warn("dashboard shutdown", "error", err)
		}
	}()

	s.logger.Info("dashboard listening", "addr", ln.Addr().String())
	return s.app.Listener(ln)
}

func (s *Server) pushLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.statusHub.BroadcastJSON(s.source.Status()); err != nil {
				s.logger.Warn("encode status", "error", err)
			}
		}
	}
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	return c.JSON(s.source.Status())
}

// handleStatusWS sends the current status, then every pushed update.
func (s *Server) handleStatusWS(c *websocket.Conn) {
	initial, err := json.Marshal(s.source.Status())
	if err != nil {
		return
	}
	hub.NewClient(s.statusHub, c, initial).Run()
}
