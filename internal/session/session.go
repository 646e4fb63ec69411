package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/broadcast"
	"go.uber.org/zap"
)

var (
	ErrSessionClosed = errors.New("session closed")
	ErrAlreadyJoined = errors.New("participant already joined")
)

// Options configures every session created by a Manager.
type Options struct {
	OwnerLabel        string
	NotificationLimit int
	BufferSize        int
}

// Snapshot is the authoritative persisted state of a session.
type Snapshot struct {
	ID           string `json:"id"`
	Allies       int    `json:"allies"`
	Adversaries  int    `json:"adversaries"`
	Shown        bool   `json:"shown"`
	Participants int    `json:"participants"`
}

// Session is the explicit context shared by everyone in one encounter: the
// store scope, the broadcast hub and one controller per joined participant.
type Session struct {
	ID string

	store   advantage.Store
	catalog *advantage.Catalog
	hub     *broadcast.Hub
	opts    Options
	logger  *zap.Logger

	mu           sync.RWMutex
	controllers  map[string]*advantage.Controller
	closed       bool
	createdAt    time.Time
	lastActivity time.Time
}

// New creates a session bound to the given store.
func New(id string, store advantage.Store, catalog *advantage.Catalog, opts Options, logger *zap.Logger) *Session {
	if logger == nil {
		logger = zap.NewNop()
	}
	if catalog == nil {
		catalog = advantage.DefaultCatalog()
	}
	logger = logger.With(zap.String("session_id", id))
	now := time.Now()
	return &Session{
		ID:           id,
		store:        store,
		catalog:      catalog,
		hub:          broadcast.NewHub(opts.BufferSize, logger),
		opts:         opts,
		logger:       logger,
		controllers:  make(map[string]*advantage.Controller),
		createdAt:    now,
		lastActivity: now,
	}
}

// Join creates the participant's controller, subscribes it to the session
// hub and loads the persisted state into its view.
func (s *Session) Join(ctx context.Context, participant advantage.Identity, observer advantage.Observer) (*advantage.Controller, error) {
	ctrl, err := advantage.NewController(advantage.Config{
		SessionID:         s.ID,
		Identity:          participant,
		Store:             s.store,
		Catalog:           s.catalog,
		Publisher:         s.hub,
		Observer:          observer,
		OwnerLabel:        s.opts.OwnerLabel,
		NotificationLimit: s.opts.NotificationLimit,
		Logger:            s.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create controller: %w", err)
	}

	id := participant.ParticipantID()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	if _, exists := s.controllers[id]; exists {
		s.mu.Unlock()
		return nil, ErrAlreadyJoined
	}
	s.controllers[id] = ctrl
	s.lastActivity = time.Now()
	s.mu.Unlock()

	if err := s.hub.Subscribe(id, ctrl); err != nil {
		s.drop(id)
		return nil, fmt.Errorf("subscribe participant: %w", err)
	}
	if err := ctrl.SessionStarted(ctx); err != nil {
		s.Leave(id)
		return nil, err
	}

	s.logger.Info("participant joined",
		zap.String("participant_id", id),
		zap.String("name", participant.DisplayName()),
		zap.Bool("privileged", participant.IsPrivileged()),
	)
	return ctrl, nil
}

// Leave unsubscribes and forgets a participant.
func (s *Session) Leave(participantID string) {
	s.hub.Unsubscribe(participantID)
	if s.drop(participantID) {
		s.logger.Info("participant left", zap.String("participant_id", participantID))
	}
}

// Controller returns a joined participant's controller.
func (s *Session) Controller(participantID string) (*advantage.Controller, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ctrl, ok := s.controllers[participantID]
	return ctrl, ok
}

// AdvanceRound relays a new encounter round to every participant.
func (s *Session) AdvanceRound(ctx context.Context, round int) error {
	var errs []error
	for _, ctrl := range s.joined() {
		if err := ctrl.RoundAdvanced(ctx, round); err != nil {
			errs = append(errs, fmt.Errorf("participant %s: %w", ctrl.ParticipantID(), err))
		}
	}
	s.touch()
	return errors.Join(errs...)
}

// End relays the end of the encounter to every participant. The persisted
// state is reset even when no owner is connected to do it.
func (s *Session) End(ctx context.Context) error {
	var errs []error
	ownerPresent := false
	for _, ctrl := range s.joined() {
		if ctrl.Privileged() {
			ownerPresent = true
		}
		if err := ctrl.SessionEnded(ctx); err != nil {
			errs = append(errs, fmt.Errorf("participant %s: %w", ctrl.ParticipantID(), err))
		}
	}
	if !ownerPresent {
		if err := s.store.ResetAll(ctx, s.ID); err != nil {
			errs = append(errs, fmt.Errorf("reset session: %w", err))
		}
	}
	s.touch()
	s.logger.Info("session ended", zap.Bool("owner_present", ownerPresent))
	return errors.Join(errs...)
}

// Snapshot reads the persisted state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{ID: s.ID, Participants: s.Participants()}
	var err error
	if snap.Allies, err = s.store.Get(ctx, s.ID, advantage.Allies); err != nil {
		return Snapshot{}, err
	}
	if snap.Adversaries, err = s.store.Get(ctx, s.ID, advantage.Adversaries); err != nil {
		return Snapshot{}, err
	}
	if snap.Shown, err = s.store.Visibility(ctx, s.ID); err != nil {
		return Snapshot{}, err
	}
	return snap, nil
}

// Participants returns the number of joined participants.
func (s *Session) Participants() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.controllers)
}

// Idle reports whether the session has had no participants for at least ttl.
func (s *Session) Idle(now time.Time, ttl time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.controllers) == 0 && now.Sub(s.lastActivity) >= ttl
}

// Close disconnects everyone. The persisted state is left as is.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.controllers = make(map[string]*advantage.Controller)
	s.mu.Unlock()

	s.hub.Close()
	s.logger.Info("session closed", zap.Duration("age", time.Since(s.createdAt)))
}

func (s *Session) joined() []*advantage.Controller {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*advantage.Controller, 0, len(s.controllers))
	for _, ctrl := range s.controllers {
		out = append(out, ctrl)
	}
	return out
}

func (s *Session) drop(participantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.controllers[participantID]; !ok {
		return false
	}
	delete(s.controllers, participantID)
	s.lastActivity = time.Now()
	return true
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}
