// live - Real-time voice conversation with a Gemini Live agent.
// Streams microphone audio to the agent, plays its replies, and exposes the
// session over HTTP for a browser UI.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teslashibe/go-live/internal/config"
	"github.com/teslashibe/go-live/internal/log"
	"github.com/teslashibe/go-live/pkg/audioio"
	"github.com/teslashibe/go-live/pkg/metrics"
	"github.com/teslashibe/go-live/pkg/session"
	"github.com/teslashibe/go-live/pkg/web"
)

type options struct {
	configPath string
	envPath    string
	language   string
	voice      string
	transport  string
	backend    string
	addr       string
	connect    bool
	noHTTP     bool
	muted      bool
	debug      bool
}

func main() {
	opts := parseFlags()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses command line flags.
func parseFlags() options {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Path to YAML config file")
	flag.StringVar(&o.envPath, "env", ".env", "Path to .env file (ignored if missing)")
	flag.StringVar(&o.language, "language", "", "Conversation language (overrides LIVE_LANGUAGE)")
	flag.StringVar(&o.voice, "voice", "", "Agent voice: Puck, Charon, Kore, Fenrir, Zephyr")
	flag.StringVar(&o.transport, "transport", "", "Transport: gemini or genai")
	flag.StringVar(&o.backend, "audio", "", "Audio backend: auto, device, mock")
	flag.StringVar(&o.addr, "addr", "", "HTTP listen address (overrides LIVE_HTTP_ADDR)")
	flag.BoolVar(&o.connect, "connect", false, "Connect immediately instead of waiting for POST /api/connect")
	flag.BoolVar(&o.noHTTP, "no-http", false, "Disable the HTTP surface (implies -connect)")
	flag.BoolVar(&o.muted, "muted", false, "Start with the microphone muted")
	flag.BoolVar(&o.debug, "debug", false, "Enable debug logging")
	flag.Parse()
	return o
}

// loadConfig reads the config file and environment, then applies flags.
func loadConfig(o options) (*config.Config, error) {
	if err := config.LoadDotEnv(o.envPath); err != nil {
		return nil, fmt.Errorf("load %s: %w", o.envPath, err)
	}

	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	if o.language != "" {
		cfg.Session.Language = o.language
	}
	if o.voice != "" {
		cfg.Session.Voice = o.voice
	}
	if o.transport != "" {
		cfg.API.Transport = o.transport
	}
	if o.backend != "" {
		cfg.Audio.Capture.Backend = audioio.Backend(o.backend)
		cfg.Audio.Playback.Backend = audioio.Backend(o.backend)
	}
	if o.addr != "" {
		cfg.HTTP.Address = o.addr
	}
	if o.noHTTP {
		cfg.HTTP.Enabled = false
	}
	if o.muted {
		cfg.Session.StartMuted = true
	}
	if o.debug {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, o options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}

	logger := log.Init(cfg.Logging.Level)
	m := metrics.New("live")

	ecfg, err := cfg.EngineConfig()
	if err != nil {
		return err
	}
	ecfg.Logger = logger
	ecfg.Metrics = m

	engine, err := session.New(ecfg)
	if err != nil {
		return err
	}
	defer engine.Close()
	engine.SetMuted(cfg.Session.StartMuted)

	fmt.Println()
	fmt.Println("🎙️  go-live")
	fmt.Printf("   Language:  %s\n", cfg.Session.Language)
	fmt.Printf("   Voice:     %s\n", cfg.Session.Voice)
	fmt.Printf("   Transport: %s\n", cfg.API.Transport)
	fmt.Println()

	if cfg.API.Key == "" {
		logger.Warn("no API key configured; set " + config.EnvAPIKey)
	}

	go logTurns(ctx, engine, logger)

	var srv *web.Server
	serveErr := make(chan error, 1)
	if cfg.HTTP.Enabled {
		srv = web.NewServer(engine, web.Config{
			Address:        cfg.HTTP.Address,
			CORSOrigins:    cfg.HTTP.CORSOrigins,
			ConnectTimeout: cfg.API.Timeout,
			Metrics:        m,
			Logger:         logger,
		})
		go func() { serveErr <- srv.ListenAndServe(ctx) }()
		fmt.Printf("🌐 http://localhost%s  (POST /api/connect to start)\n", cfg.HTTP.Address)
	}

	if o.connect || !cfg.HTTP.Enabled {
		if err := engine.Connect(ctx, cfg.Session.Language); err != nil {
			if !cfg.HTTP.Enabled {
				return fmt.Errorf("connect failed: %w", err)
			}
			logger.Error("connect failed", "error", err)
		}
	}

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("web server stopped", "error", err)
		}
	}

	fmt.Println("\n👋 Shutting down...")
	engine.Disconnect()

	if srv != nil {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := srv.Shutdown(sctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("web shutdown", "error", err)
		}
	}
	return nil
}

// logTurns prints finalized turns and errors while the process runs.
func logTurns(ctx context.Context, engine *session.Engine, logger *slog.Logger) {
	events, unsubscribe := engine.Subscribe(64)
	defer unsubscribe()

	var lastErr string
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
					fmt.Printf("[%s] %s\n", ev.Turn.Speaker, ev.Turn.Text)
				}
			case session.EventState:
				if ev.State != nil && ev.State.Error != "" && ev.State.Error != lastErr {
					logger.Error("session error", "error", ev.State.Error)
				}
				if ev.State != nil {
					lastErr = ev.State.Error
				}
			}
		}
	}
}
