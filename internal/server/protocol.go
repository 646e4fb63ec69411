package server

import (
	"errors"

	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/identity"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/session"
)

// Inbound intents sent by a connected participant.
const (
	IntentSpend         = "spend"
	IntentAdjust        = "adjust"
	IntentSet           = "set"
	IntentToggleMenu    = "toggle_menu"
	IntentShow          = "show"
	IntentHide          = "hide"
	IntentRoundAdvanced = "round_advanced"
	IntentSessionEnded  = "session_ended"
	IntentPing          = "ping"
)

// Outbound frame types.
const (
	FrameWelcome      = "welcome"
	FrameView         = "view"
	FrameNotification = "notification"
	FrameError        = "error"
	FramePong         = "pong"
)

// Error codes carried by error frames.
const (
	CodeInsufficientPoints = "insufficient_points"
	CodeNegativeResult     = "negative_result"
	CodePermissionDenied   = "permission_denied"
	CodeUnknownAction      = "unknown_action"
	CodeBadRequest         = "bad_request"
	CodeUnauthorized       = "unauthorized"
	CodeInternal           = "internal"
)

// Intent is one inbound JSON frame.
type Intent struct {
	Type   string `json:"type"`
	Kind   string `json:"kind,omitempty"`
	Action string `json:"action,omitempty"`
	Delta  int    `json:"delta,omitempty"`
	Value  *int   `json:"value,omitempty"`
	Round  int    `json:"round,omitempty"`
}

// Frame is one outbound JSON frame.
type Frame struct {
	Type         string                `json:"type"`
	Participant  *identity.Participant `json:"participant,omitempty"`
	View         *advantage.View       `json:"view,omitempty"`
	Notification *advantage.SpendEvent `json:"notification,omitempty"`
	Error        *ErrorBody            `json:"error,omitempty"`
}

// ErrorBody describes a rejected intent.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Intent  string `json:"intent,omitempty"`
}

// errorCode maps domain errors to wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, advantage.ErrInsufficientPoints):
		return CodeInsufficientPoints
	case errors.Is(err, advantage.ErrNegativeResult):
		return CodeNegativeResult
	case errors.Is(err, advantage.ErrPermissionDenied):
		return CodePermissionDenied
	case errors.Is(err, advantage.ErrUnknownAction):
		return CodeUnknownAction
	case errors.Is(err, advantage.ErrUnknownKind),
		errors.Is(err, errBadIntent),
		errors.Is(err, session.ErrInvalidSessionID),
		errors.Is(err, identity.ErrNameRequired),
		errors.Is(err, identity.ErrNameTooLong):
		return CodeBadRequest
	case errors.Is(err, identity.ErrInvalidPassphrase):
		return CodeUnauthorized
	default:
		return CodeInternal
	}
}

var errBadIntent = errors.New("malformed intent")
