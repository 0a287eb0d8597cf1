package web

import (
	"context"
	"errors"

	contribws "github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-live/pkg/hub"
	"github.com/teslashibe/go-live/pkg/session"
)

// ConnectRequest is the body of POST /api/connect.
type ConnectRequest struct {
	Language string `json:"language"`
}

// MuteRequest is the optional body of POST /api/mute. Without a body the
// mute flag is toggled.
type MuteRequest struct {
	Muted *bool `json:"muted"`
}

// ErrorResponse is returned for failed requests.
type ErrorResponse struct {
	Error string        `json:"error"`
	State session.State `json:"state"`
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":             "ok",
		"session":            s.engine.State().Status,
		"state_clients":      s.stateHub.ClientCount(),
		"transcript_clients": s.transcriptHub.ClientCount(),
	})
}

func (s *Server) handleState(c *fiber.Ctx) error {
	return c.JSON(s.engine.State())
}

func (s *Server) handleTranscript(c *fiber.Ctx) error {
	return c.JSON(s.engine.Transcript())
}

func (s *Server) handleGrounding(c *fiber.Ctx) error {
	return c.JSON(s.engine.Grounding())
}

func (s *Server) handleConnect(c *fiber.Ctx) error {
	var req ConnectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: "invalid request body: " + err.Error(),
				State: s.engine.State(),
			})
		}
	}

	ctx := c.UserContext()
	if s.config.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ConnectTimeout)
		defer cancel()
	}

	if err := s.engine.Connect(ctx, req.Language); err != nil {
		s.logger.Warn("connect request failed", "error", err)
		return c.Status(connectStatus(err)).JSON(ErrorResponse{
			Error: err.Error(),
			State: s.engine.State(),
		})
	}
	return c.JSON(s.engine.State())
}

// connectStatus maps a Connect error to an HTTP status.
func connectStatus(err error) int {
	switch {
	case errors.Is(err, session.ErrAlreadyConnected), errors.Is(err, session.ErrConnectCancelled):
		return fiber.StatusConflict
	case errors.Is(err, session.ErrMissingCredential):
		return fiber.StatusPreconditionFailed
	case errors.Is(err, session.ErrDeviceAccess):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, session.ErrTransport):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}

func (s *Server) handleDisconnect(c *fiber.Ctx) error {
	s.engine.Disconnect()
	return c.JSON(s.engine.State())
}

func (s *Server) handleMute(c *fiber.Ctx) error {
	var req MuteRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
				Error: "invalid request body: " + err.Error(),
				State: s.engine.State(),
			})
		}
	}

	if req.Muted != nil {
		s.engine.SetMuted(*req.Muted)
	} else {
		s.engine.ToggleMute()
	}
	return c.JSON(fiber.Map{"muted": s.engine.State().Muted})
}

// handleStateWS streams state, grounding and status events, starting with
// the current snapshot.
func (s *Server) handleStateWS(c *websocket.Conn) {
	state := s.engine.State()
	initial, err := hub.EncodeJSON(session.Event{Type: session.EventState, State: &state})
	if err != nil {
		s.logger.Error("encode state snapshot", "error", err)
		return
	}
	hub.NewClient(s.stateHub, c).Run(initial)
}

// newTranscriptHandler streams finalized turns, replaying the transcript so
// far on connect.
func newTranscriptHandler(s *Server) fiber.Handler {
	return contribws.New(func(c *contribws.Conn) {
		turns := s.engine.Transcript()
		initial := make([]hub.Message, 0, len(turns))
		for i := range turns {
			msg, err := hub.EncodeJSON(&turns[i])
			if err != nil {
				s.logger.Error("encode turn", "error", err)
				return
			}
			initial = append(initial, msg)
		}
		hub.NewClient(s.transcriptHub, c).Run(initial...)
	})
}
