// Package web exposes a live session engine over HTTP: REST endpoints for
// control and snapshots, websocket streams for state and transcript
// updates, and Prometheus metrics.
package web

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-live/pkg/hub"
	"github.com/teslashibe/go-live/pkg/metrics"
	"github.com/teslashibe/go-live/pkg/session"
	"github.com/teslashibe/go-live/pkg/transcript"
)

// Engine is the session control surface the server drives.
type Engine interface {
	Connect(ctx context.Context, language string) error
	Disconnect()
	ToggleMute() bool
	SetMuted(muted bool)
	State() session.State
	Transcript() []transcript.Turn
	Grounding() []session.GroundingReference
	Subscribe(buffer int) (<-chan session.Event, func())
}

var _ Engine = (*session.Engine)(nil)

// Config configures the server.
type Config struct {
	// Address is the listen address, e.g. ":8080".
	Address string

	// CORSOrigins is passed to the CORS middleware.
	CORSOrigins string

	// ConnectTimeout bounds POST /api/connect. Zero means no bound beyond
	// the transport's own setup timeout.
	ConnectTimeout time.Duration

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server is the HTTP surface for an Engine.
type Server struct {
	app    *fiber.App
	engine Engine
	config Config
	logger *slog.Logger

	stateHub      *hub.Hub
	transcriptHub *hub.Hub

	startOnce sync.Once
	cancel    context.CancelFunc
	forwarded chan struct{}
}

// NewServer creates a server for engine. Call Start before serving
// websocket clients.
func NewServer(engine Engine, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.CORSOrigins == "" {
		cfg.CORSOrigins = "*"
	}
	logger := cfg.Logger.With("component", "web")

	s := &Server{
		engine:        engine,
		config:        cfg,
		logger:        logger,
		stateHub:      hub.New("state", cfg.Logger),
		transcriptHub: hub.New("transcript", cfg.Logger),
		forwarded:     make(chan struct{}),
	}

	app := fiber.New(fiber.Config{
		AppName:               "go-live",
		DisableStartupMessage: true,
	})

	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Content-Type",
	}))

	app.Get("/health", s.handleHealth)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api")
	api.Get("/state", s.handleState)
	api.Get("/transcript", s.handleTranscript)
	api.Get("/grounding", s.handleGrounding)
	api.Post("/connect", s.handleConnect)
	api.Post("/disconnect", s.handleDisconnect)
	api.Post("/mute", s.handleMute)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/state", websocket.New(s.handleStateWS))
	app.Get("/ws/transcript", newTranscriptHandler(s))

	s.app = app
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the hubs and forwards engine events to them until ctx is
// cancelled or Shutdown is called. It does not listen.
func (s *Server) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.cancel = cancel

		go s.stateHub.Run(ctx)
		go s.transcriptHub.Run(ctx)

		events, unsubscribe := s.engine.Subscribe(256)
		go func() {
			defer close(s.forwarded)
			defer unsubscribe()
			s.forward(ctx, events)
		}()
	})
}

func (s *Server) forward(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case session.EventTurn:
				if ev.Turn != nil {
					s.transcriptHub.BroadcastJSON(ev.Turn)
				}
			default:
				s.stateHub.BroadcastJSON(ev)
			}
		}
	}
}

// ListenAndServe starts the server and listens on the configured address.
// It blocks until the server stops.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.Start(ctx)
	s.logger.Info("web server listening", "address", s.config.Address)
	return s.app.Listen(s.config.Address)
}

// Serve starts the server on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.Start(ctx)
	return s.app.Listener(ln)
}

// Shutdown stops the hubs and gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
		<-s.forwarded
	}
	return s.app.ShutdownWithContext(ctx)
}
