// Package memory keeps counters in process memory. State is lost on restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
)

type record struct {
	counters map[advantage.Kind]int
	shown    bool
}

// Store is a mutex-guarded in-memory advantage.Store.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*record
}

// New creates an empty store.
func New() *Store {
	return &Store{sessions: make(map[string]*record)}
}

// Get returns the counter value, 0 when unset.
func (s *Store) Get(ctx context.Context, session string, kind advantage.Kind) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", advantage.ErrUnknownKind, kind)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[session]
	if !ok {
		return 0, nil
	}
	return rec.counters[kind], nil
}

// Set overwrites the counter value.
func (s *Store) Set(ctx context.Context, session string, kind advantage.Kind, value int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", advantage.ErrUnknownKind, kind)
	}
	if value < 0 {
		return advantage.ErrNegativeResult
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(session).counters[kind] = value
	return nil
}

// Visibility returns the shared display flag.
func (s *Store) Visibility(ctx context.Context, session string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.sessions[session]
	return ok && rec.shown, nil
}

// SetVisibility stores the shared display flag.
func (s *Store) SetVisibility(ctx context.Context, session string, shown bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(session).shown = shown
	return nil
}

// ResetAll zeroes both counters and hides the display.
func (s *Store) ResetAll(ctx context.Context, session string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.recordLocked(session)
	for _, kind := range advantage.Kinds {
		rec.counters[kind] = 0
	}
	rec.shown = false
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}

func (s *Store) recordLocked(session string) *record {
	rec, ok := s.sessions[session]
	if !ok {
		rec = &record{counters: make(map[advantage.Kind]int, len(advantage.Kinds))}
		s.sessions[session] = rec
	}
	return rec
}

var _ advantage.Store = (*Store)(nil)
