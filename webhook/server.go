package webhook

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clinicflow/clinicflow/logging"
)

// Server exposes one authenticated endpoint per provider source
// (voice-call events, eligibility events, AI-completion events).
type Server struct {
	verifier *Verifier
	secrets  KeyLookup
	handler  Handler
	logger   logging.Logger
}

// ServerOptions configure a Server.
type ServerOptions struct {
	Verifier *Verifier
	Logger   logging.Logger
}

// NewServer creates a webhook Server dispatching verified events to handler.
func NewServer(secrets KeyLookup, handler Handler, optFns ...func(o *ServerOptions)) *Server {
	opts := ServerOptions{Verifier: NewVerifier(), Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Server{verifier: opts.Verifier, secrets: secrets, handler: handler, logger: opts.Logger}
}

// RegisterRoutes mounts the webhook endpoints on a gin router.
func (s *Server) RegisterRoutes(r gin.IRouter) {
	r.POST("/webhooks/:source", s.handle)
}

func (s *Server) handle(c *gin.Context) {
	source := c.Param("source")

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	if err := s.verifier.Verify(source, c.Request.Header, rawBody, s.secrets); err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, ErrUnknownSource) {
			status = http.StatusBadRequest
		}
		s.logger.Warn("webhook rejected", "source", source, "error", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	// Only a verified payload is ever parsed and dispatched.
	ev, err := ParseEvent(source, rawBody)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.handler.HandleEvent(c.Request.Context(), ev); err != nil {
		s.logger.Error("webhook handler failed", "source", source, "event_type", ev.Type, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event handling failed"})
		return
	}

	s.logger.Debug("webhook accepted", "source", source, "event_type", ev.Type)
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
