package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/identity"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/session"
	"go.uber.org/zap"
)

const intentTimeout = 5 * time.Second

// WebSocketOptions tunes participant connections.
type WebSocketOptions struct {
	PingPeriod     time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
	SendBuffer     int
	AllowedOrigins []string
}

func (o WebSocketOptions) withDefaults() WebSocketOptions {
	if o.PingPeriod <= 0 {
		o.PingPeriod = 30 * time.Second
	}
	if o.PongWait <= o.PingPeriod {
		o.PongWait = 2 * o.PingPeriod
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 4096
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	return o
}

func newUpgrader(allowed []string) websocket.Upgrader {
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		origins[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(origins) == 0 {
				return true
			}
			return origins[r.Header.Get("Origin")]
		},
	}
}

// client is one participant's WebSocket connection. It renders the
// participant's controller view by pushing frames.
type client struct {
	conn        *websocket.Conn
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	participant identity.Participant
	session     *session.Session
	ctrl        *advantage.Controller
	opts        WebSocketOptions
	logger      *zap.Logger
}

func newClient(conn *websocket.Conn, participant identity.Participant, sessionID string, opts WebSocketOptions, logger *zap.Logger) *client {
	return &client{
		conn:        conn,
		send:        make(chan []byte, opts.SendBuffer),
		done:        make(chan struct{}),
		participant: participant,
		opts:        opts,
		logger: logger.With(
			zap.String("session_id", sessionID),
			zap.String("participant_id", participant.ID),
		),
	}
}

// ViewChanged implements advantage.Observer.
func (c *client) ViewChanged(v advantage.View) {
	c.enqueue(Frame{Type: FrameView, View: &v})
}

// Notified implements advantage.Observer.
func (c *client) Notified(e advantage.SpendEvent) {
	c.enqueue(Frame{Type: FrameNotification, Notification: &e})
}

func (c *client) enqueue(frame Frame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		c.logger.Error("failed to encode frame", zap.String("frame_type", frame.Type), zap.Error(err))
		return
	}
	select {
	case <-c.done:
	case c.send <- payload:
	default:
		c.logger.Warn("send buffer full; dropping frame", zap.String("frame_type", frame.Type))
	}
}

func (c *client) sendError(intent string, err error) {
	c.enqueue(Frame{Type: FrameError, Error: &ErrorBody{
		Code:    errorCode(err),
		Message: err.Error(),
		Intent:  intent,
	}})
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

// readPump handles intents one at a time until the connection fails.
func (c *client) readPump(ctx context.Context) {
	defer c.close()

	c.conn.SetReadLimit(c.opts.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var in Intent
		if err := json.Unmarshal(message, &in); err != nil {
			c.sendError("", fmt.Errorf("%w: %v", errBadIntent, err))
			continue
		}
		if err := c.handle(ctx, in); err != nil {
			if errorCode(err) == CodeInternal {
				c.logger.Error("intent failed", zap.String("intent", in.Type), zap.Error(err))
			}
			c.sendError(in.Type, err)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.opts.WriteWait))
			return
		}
	}
}

func (c *client) handle(parent context.Context, in Intent) error {
	ctx, cancel := context.WithTimeout(parent, intentTimeout)
	defer cancel()

	switch in.Type {
	case IntentSpend:
		kind, err := advantage.ParseKind(in.Kind)
		if err != nil {
			return err
		}
		_, err = c.ctrl.Spend(ctx, kind, in.Action)
		return err

	case IntentAdjust:
		kind, err := advantage.ParseKind(in.Kind)
		if err != nil {
			return err
		}
		if in.Delta == 0 {
			return fmt.Errorf("%w: delta is required", errBadIntent)
		}
		_, err = c.ctrl.Adjust(ctx, kind, in.Delta)
		return err

	case IntentSet:
		kind, err := advantage.ParseKind(in.Kind)
		if err != nil {
			return err
		}
		if in.Value == nil {
			return fmt.Errorf("%w: value is required", errBadIntent)
		}
		_, err = c.ctrl.SetValue(ctx, kind, *in.Value)
		return err

	case IntentToggleMenu:
		kind, err := advantage.ParseKind(in.Kind)
		if err != nil {
			return err
		}
		_, err = c.ctrl.ToggleMenu(kind)
		return err

	case IntentShow:
		return c.ctrl.Show(ctx)

	case IntentHide:
		c.ctrl.Hide()
		return nil

	case IntentRoundAdvanced:
		if !c.participant.Privileged {
			return advantage.ErrPermissionDenied
		}
		return c.session.AdvanceRound(ctx, in.Round)

	case IntentSessionEnded:
		if !c.participant.Privileged {
			return advantage.ErrPermissionDenied
		}
		return c.session.End(ctx)

	case IntentPing:
		c.enqueue(Frame{Type: FramePong})
		return nil

	default:
		return fmt.Errorf("%w: unknown intent %q", errBadIntent, in.Type)
	}
}

// joinSession attaches the client to sess, retrying once if the session was
// reaped between lookup and join.
func (s *Server) joinSession(ctx context.Context, sessionID string, c *client) error {
	for attempt := 0; attempt < 2; attempt++ {
		sess, err := s.sessions.GetOrCreate(sessionID)
		if err != nil {
			return err
		}
		c.session = sess
		ctrl, err := sess.Join(ctx, c.participant, c)
		if errors.Is(err, session.ErrSessionClosed) {
			continue
		}
		if err != nil {
			return err
		}
		c.ctrl = ctrl
		return nil
	}
	return session.ErrSessionClosed
}
