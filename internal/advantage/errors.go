package advantage

import "errors"

var (
	// ErrInsufficientPoints is returned when a spend would drive a counter below zero.
	ErrInsufficientPoints = errors.New("insufficient advantage points")
	// ErrNegativeResult is returned when a manual change would leave a counter negative.
	ErrNegativeResult = errors.New("counter cannot be negative")
	// ErrPermissionDenied marks an operation reserved for the session owner.
	ErrPermissionDenied = errors.New("permission denied")
	ErrUnknownAction    = errors.New("unknown action")
	ErrUnknownKind      = errors.New("unknown counter kind")
)
