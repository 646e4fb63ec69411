// Package identity decides who a connecting participant is and whether they
// own the session.
package identity

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// DefaultOwnerName is used when the owner connects without a display name.
const DefaultOwnerName = "Game Master"

const maxNameLength = 64

var (
	ErrNameRequired      = errors.New("participant name is required")
	ErrNameTooLong       = errors.New("participant name is too long")
	ErrInvalidPassphrase = errors.New("invalid owner passphrase")
)

// Participant is one connected member of a session.
type Participant struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Privileged bool   `json:"privileged"`
}

// ParticipantID returns the unique participant ID.
func (p Participant) ParticipantID() string { return p.ID }

// DisplayName returns the name shown in spend notifications.
func (p Participant) DisplayName() string { return p.Name }

// IsPrivileged reports whether p owns the session.
func (p Participant) IsPrivileged() bool { return p.Privileged }

// HashPassphrase produces the bcrypt hash stored in configuration.
func HashPassphrase(passphrase string) (string, error) {
	if passphrase == "" {
		return "", errors.New("passphrase is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(passphrase), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash passphrase: %w", err)
	}
	return string(hash), nil
}

// Authenticator turns connection credentials into a Participant.
type Authenticator struct {
	ownerHash []byte
	logger    *zap.Logger
}

// NewAuthenticator validates the owner hash. An empty hash means nobody can
// claim ownership.
func NewAuthenticator(ownerHash string, logger *zap.Logger) (*Authenticator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ownerHash = strings.TrimSpace(ownerHash)
	if ownerHash != "" {
		if _, err := bcrypt.Cost([]byte(ownerHash)); err != nil {
			return nil, fmt.Errorf("owner passphrase hash: %w", err)
		}
	} else {
		logger.Warn("owner passphrase not configured; no participant can persist counters")
	}
	return &Authenticator{ownerHash: []byte(ownerHash), logger: logger}, nil
}

// OwnerConfigured reports whether an owner passphrase is set.
func (a *Authenticator) OwnerConfigured() bool {
	return len(a.ownerHash) > 0
}

// Authenticate returns a participant with a fresh ID. A non-empty passphrase
// must match the owner hash; an empty one yields a named viewer.
func (a *Authenticator) Authenticate(name, passphrase string) (Participant, error) {
	name = strings.TrimSpace(name)
	if len(name) > maxNameLength {
		return Participant{}, ErrNameTooLong
	}

	if passphrase != "" {
		if !a.OwnerConfigured() {
			return Participant{}, ErrInvalidPassphrase
		}
		if err := bcrypt.CompareHashAndPassword(a.ownerHash, []byte(passphrase)); err != nil {
			a.logger.Warn("owner authentication failed", zap.String("name", name))
			return Participant{}, ErrInvalidPassphrase
		}
		if name == "" {
			name = DefaultOwnerName
		}
		return Participant{ID: uuid.NewString(), Name: name, Privileged: true}, nil
	}

	if name == "" {
		return Participant{}, ErrNameRequired
	}
	return Participant{ID: uuid.NewString(), Name: name}, nil
}
