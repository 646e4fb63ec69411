package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/identity"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/session"
	"go.uber.org/zap"
)

// Server exposes sessions over HTTP and WebSocket.
type Server struct {
	sessions *session.Manager
	auth     *identity.Authenticator
	catalog  *advantage.Catalog
	ws       WebSocketOptions
	upgrader websocket.Upgrader
	logger   *zap.Logger
}

// New creates the HTTP server handlers.
func New(sessions *session.Manager, auth *identity.Authenticator, catalog *advantage.Catalog, ws WebSocketOptions, logger *zap.Logger) *Server {
	if catalog == nil {
		catalog = advantage.DefaultCatalog()
	}
	ws = ws.withDefaults()
	return &Server{
		sessions: sessions,
		auth:     auth,
		catalog:  catalog,
		ws:       ws,
		upgrader: newUpgrader(ws.AllowedOrigins),
		logger:   logger,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(RecoveryMiddleware(s.logger), LoggingMiddleware(s.logger))

	r.GET("/healthz", s.handleHealth)

	api := r.Group("/api")
	api.GET("/catalog", s.handleCatalog)
	api.GET("/sessions/:id", s.handleSession)

	r.GET("/ws/:id", s.handleWebSocket)
	return r
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": s.sessions.Count(),
	})
}

func (s *Server) handleCatalog(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"actions": s.catalog.List()})
}

func (s *Server) handleSession(c *gin.Context) {
	snap, err := s.sessions.Snapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// handleWebSocket authenticates the participant, upgrades the connection and
// runs the client until it disconnects.
func (s *Server) handleWebSocket(c *gin.Context) {
	sessionID := c.Param("id")
	if !session.ValidID(sessionID) {
		s.writeError(c, session.ErrInvalidSessionID)
		return
	}

	participant, err := s.auth.Authenticate(c.Query("name"), c.Query("passphrase"))
	if err != nil {
		s.writeError(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx := c.Request.Context()
	cl := newClient(conn, participant, sessionID, s.ws, s.logger)
	cl.enqueue(Frame{Type: FrameWelcome, Participant: &participant})

	if err := s.joinSession(ctx, sessionID, cl); err != nil {
		s.logger.Error("failed to join session",
			zap.String("session_id", sessionID),
			zap.Error(err),
		)
		cl.sendError("join", err)
		go cl.writePump()
		time.AfterFunc(s.ws.WriteWait, cl.close)
		return
	}
	defer cl.session.Leave(participant.ID)

	go cl.writePump()
	cl.readPump(ctx)
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := errorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case CodeBadRequest:
		status = http.StatusBadRequest
	case CodeUnauthorized:
		status = http.StatusUnauthorized
	case CodePermissionDenied:
		status = http.StatusForbidden
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		message = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": ErrorBody{Code: code, Message: message}})
}

// LoggingMiddleware logs each request with zap.
func LoggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}
		logger.Debug("http request", fields...)
	}
}

// RecoveryMiddleware turns handler panics into 500 responses.
func RecoveryMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				if err, ok := r.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(r)
				}
				logger.Error("panic recovered",
					zap.Any("panic", r),
					zap.String("path", c.Request.URL.Path),
					zap.Stack("stack"),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": ErrorBody{Code: CodeInternal, Message: "internal error"},
				})
			}
		}()
		c.Next()
	}
}
