package advantage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/broadcast"
	"go.uber.org/zap"
)

// DefaultOwnerLabel attributes spends made by the session owner.
const DefaultOwnerLabel = "Adversary"

// DefaultNotificationLimit bounds the local notification history.
const DefaultNotificationLimit = 20

// Store is the durable, session-scoped home of the counters. Only the
// controller's privilege guard calls the write methods.
type Store interface {
	Get(ctx context.Context, session string, kind Kind) (int, error)
	Set(ctx context.Context, session string, kind Kind, value int) error
	Visibility(ctx context.Context, session string) (bool, error)
	SetVisibility(ctx context.Context, session string, shown bool) error
	ResetAll(ctx context.Context, session string) error
}

// Identity describes the participant a controller acts for.
type Identity interface {
	ParticipantID() string
	DisplayName() string
	IsPrivileged() bool
}

// Publisher relays messages to the other participants of a session.
// Publishing is fire-and-forget.
type Publisher interface {
	Publish(ctx context.Context, msg broadcast.Message) int
}

// Config wires a Controller to its collaborators.
type Config struct {
	SessionID         string
	Identity          Identity
	Store             Store
	Catalog           *Catalog
	Publisher         Publisher
	Observer          Observer
	OwnerLabel        string
	NotificationLimit int
	Logger            *zap.Logger
}

// Controller applies one participant's intents to the shared counters and
// replays what other participants broadcast into the local view.
//
// Operations are serialized: each intent or inbound message runs to
// completion before the next starts.
type Controller struct {
	mu sync.Mutex

	sessionID  string
	identity   Identity
	store      Store
	catalog    *Catalog
	publisher  Publisher
	observer   Observer
	ownerLabel string
	logger     *zap.Logger
	now        func() time.Time

	view *localView
}

// NewController validates cfg and returns a controller with a hidden, zeroed view.
func NewController(cfg Config) (*Controller, error) {
	if cfg.SessionID == "" {
		return nil, errors.New("session id is required")
	}
	if cfg.Identity == nil {
		return nil, errors.New("identity is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Publisher == nil {
		return nil, errors.New("publisher is required")
	}
	if cfg.Catalog == nil {
		cfg.Catalog = DefaultCatalog()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.OwnerLabel == "" {
		cfg.OwnerLabel = DefaultOwnerLabel
	}
	if cfg.NotificationLimit <= 0 {
		cfg.NotificationLimit = DefaultNotificationLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Controller{
		sessionID:  cfg.SessionID,
		identity:   cfg.Identity,
		store:      cfg.Store,
		catalog:    cfg.Catalog,
		publisher:  cfg.Publisher,
		observer:   cfg.Observer,
		ownerLabel: cfg.OwnerLabel,
		logger: cfg.Logger.With(
			zap.String("session_id", cfg.SessionID),
			zap.String("participant_id", cfg.Identity.ParticipantID()),
		),
		now:  time.Now,
		view: newLocalView(cfg.NotificationLimit),
	}, nil
}

// ParticipantID returns the ID of the participant this controller acts for.
func (c *Controller) ParticipantID() string {
	return c.identity.ParticipantID()
}

// Privileged reports whether the controller may persist changes.
func (c *Controller) Privileged() bool {
	return c.identity.IsPrivileged()
}

// Snapshot returns the current local view.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked(c.identity.IsPrivileged())
}

// ==================== Local intents ====================

// Spend buys actionName with points from kind. It fails with
// ErrInsufficientPoints, changing nothing, when the cost exceeds the current
// value. On success the new value is persisted (owner only), synced to the
// other participants, and a SpendEvent is shown locally and broadcast.
func (c *Controller) Spend(ctx context.Context, kind Kind, actionName string) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	action, ok := c.catalog.Lookup(actionName)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownAction, actionName)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	privileged := c.identity.IsPrivileged()
	current := Counter{Kind: kind, Value: c.view.values[kind]}
	if kind == Adversaries && !privileged {
		return current.Value, ErrPermissionDenied
	}

	next, err := current.Sub(action.Cost)
	if err != nil {
		c.logger.Debug("spend rejected",
			zap.String("kind", kind.String()),
			zap.String("action", action.Name),
			zap.Int("cost", action.Cost),
			zap.Int("current", current.Value),
		)
		return current.Value, err
	}

	if err := c.persistLocked(ctx, privileged, func(ctx context.Context) error {
		return c.store.Set(ctx, c.sessionID, kind, next.Value)
	}); err != nil && !errors.Is(err, ErrPermissionDenied) {
		return current.Value, fmt.Errorf("spend %s: %w", kind, err)
	}

	c.view.values[kind] = next.Value
	c.view.menu = ""
	c.publishLocked(ctx, broadcast.NewValueSync(c.sessionID, c.identity.ParticipantID(), kind.String(), next.Value))

	event := SpendEvent{
		ID:         uuid.NewString(),
		ActorLabel: c.actorLabel(privileged),
		Kind:       kind,
		Cost:       action.Cost,
		ActionName: action.Name,
		At:         c.now(),
	}
	c.view.record(event)
	c.observer.Notified(event)
	c.publishLocked(ctx, broadcast.NewSpendNotification(c.sessionID, c.identity.ParticipantID(), toNotification(event)))
	c.changedLocked(privileged)

	c.logger.Info("advantage spent",
		zap.String("kind", kind.String()),
		zap.String("action", action.Name),
		zap.Int("cost", action.Cost),
		zap.Int("value", next.Value),
		zap.Bool("persisted", privileged),
	)
	return next.Value, nil
}

// Adjust applies a manual increment or decrement. A result below zero is
// rejected with ErrNegativeResult; otherwise it behaves like SetValue.
func (c *Controller) Adjust(ctx context.Context, kind Kind, delta int) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	current := Counter{Kind: kind, Value: c.view.values[kind]}
	next, err := current.Add(delta)
	if err != nil {
		return current.Value, err
	}
	return c.commitLocked(ctx, c.identity.IsPrivileged(), kind, next.Value)
}

// SetValue overrides a counter. The owner's change is persisted and synced;
// anyone else only changes their own display.
func (c *Controller) SetValue(ctx context.Context, kind Kind, value int) (int, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if value < 0 {
		return c.view.values[kind], ErrNegativeResult
	}
	return c.commitLocked(ctx, c.identity.IsPrivileged(), kind, value)
}

// ToggleMenu opens or closes the spend menu for kind and returns whether it
// is now open. Only the owner may open the adversaries menu.
func (c *Controller) ToggleMenu(kind Kind) (bool, error) {
	if !kind.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	privileged := c.identity.IsPrivileged()
	if kind == Adversaries && !privileged {
		return false, ErrPermissionDenied
	}
	if c.view.menu == kind {
		c.view.menu = ""
	} else {
		c.view.menu = kind
	}
	c.changedLocked(privileged)
	return c.view.menu == kind, nil
}

// Show displays the tracker. The owner also persists the visibility flag so
// participants joining later start with it shown.
func (c *Controller) Show(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.showLocked(ctx, c.identity.IsPrivileged())
}

// Hide closes the local display without touching the shared flag.
func (c *Controller) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.view.display == Hidden {
		return
	}
	c.view.display = Hidden
	c.view.menu = ""
	c.changedLocked(c.identity.IsPrivileged())
}

// ==================== Session lifecycle ====================

// SessionStarted loads the persisted counters and shows the display if the
// shared visibility flag is set.
func (c *Controller) SessionStarted(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, kind := range Kinds {
		value, err := c.store.Get(ctx, c.sessionID, kind)
		if err != nil {
			return fmt.Errorf("load %s: %w", kind, err)
		}
		c.view.values[kind] = value
	}
	shown, err := c.store.Visibility(ctx, c.sessionID)
	if err != nil {
		return fmt.Errorf("load visibility: %w", err)
	}
	if shown {
		c.view.display = Shown
	}
	c.changedLocked(c.identity.IsPrivileged())
	return nil
}

// RoundAdvanced shows a hidden display once the encounter is past round zero.
func (c *Controller) RoundAdvanced(ctx context.Context, round int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if round <= 0 || c.view.display == Shown {
		return nil
	}
	return c.showLocked(ctx, c.identity.IsPrivileged())
}

// SessionEnded hides the display and zeroes the counters. The owner also
// resets the persisted state.
func (c *Controller) SessionEnded(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	privileged := c.identity.IsPrivileged()
	err := c.persistLocked(ctx, privileged, func(ctx context.Context) error {
		return c.store.ResetAll(ctx, c.sessionID)
	})
	if err != nil && !errors.Is(err, ErrPermissionDenied) {
		return fmt.Errorf("reset session: %w", err)
	}
	c.view.clear()
	c.changedLocked(privileged)
	return nil
}

// ==================== Remote replay ====================

// ApplyRemoteValue shows a value another participant published. It is never
// persisted; the publishing owner already did that.
func (c *Controller) ApplyRemoteValue(kind Kind, value int) {
	if !kind.Valid() || value < 0 {
		c.logger.Debug("ignoring invalid remote value",
			zap.String("kind", string(kind)),
			zap.Int("value", value),
		)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.values[kind] = value
	c.changedLocked(c.identity.IsPrivileged())
}

// ApplyRemoteNotification surfaces another participant's spend locally.
func (c *Controller) ApplyRemoteNotification(event SpendEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.view.record(event)
	c.observer.Notified(event)
	c.changedLocked(c.identity.IsPrivileged())
}

// Receive routes a broadcast message to the matching replay operation.
func (c *Controller) Receive(msg broadcast.Message) {
	if msg.Session != c.sessionID {
		return
	}
	switch msg.Type {
	case broadcast.MessageValueSync:
		c.ApplyRemoteValue(Kind(msg.Kind), msg.Value)
	case broadcast.MessageSpendNotification:
		if msg.Notification == nil {
			return
		}
		c.ApplyRemoteNotification(fromNotification(*msg.Notification))
	default:
		c.logger.Debug("ignoring unknown broadcast", zap.String("message_type", string(msg.Type)))
	}
}

// ==================== Internals ====================

// persistLocked is the single privilege guard for store writes. Callers
// treat ErrPermissionDenied as a local-only change.
func (c *Controller) persistLocked(ctx context.Context, privileged bool, write func(context.Context) error) error {
	if !privileged {
		return ErrPermissionDenied
	}
	return write(ctx)
}

func (c *Controller) commitLocked(ctx context.Context, privileged bool, kind Kind, value int) (int, error) {
	err := c.persistLocked(ctx, privileged, func(ctx context.Context) error {
		return c.store.Set(ctx, c.sessionID, kind, value)
	})
	switch {
	case errors.Is(err, ErrPermissionDenied):
		c.view.values[kind] = value
		c.changedLocked(privileged)
		c.logger.Debug("local-only counter change",
			zap.String("kind", kind.String()),
			zap.Int("value", value),
		)
		return value, nil
	case err != nil:
		return c.view.values[kind], fmt.Errorf("set %s: %w", kind, err)
	}

	c.view.values[kind] = value
	c.publishLocked(ctx, broadcast.NewValueSync(c.sessionID, c.identity.ParticipantID(), kind.String(), value))
	c.changedLocked(privileged)
	return value, nil
}

func (c *Controller) showLocked(ctx context.Context, privileged bool) error {
	err := c.persistLocked(ctx, privileged, func(ctx context.Context) error {
		return c.store.SetVisibility(ctx, c.sessionID, true)
	})
	if err != nil && !errors.Is(err, ErrPermissionDenied) {
		return fmt.Errorf("show tracker: %w", err)
	}
	if c.view.display != Shown {
		c.view.display = Shown
		c.changedLocked(privileged)
	}
	return nil
}

func (c *Controller) publishLocked(ctx context.Context, msg broadcast.Message) {
	delivered := c.publisher.Publish(ctx, msg)
	c.logger.Debug("broadcast published",
		zap.String("message_type", string(msg.Type)),
		zap.String("message_id", msg.ID),
		zap.Int("delivered", delivered),
	)
}

func (c *Controller) changedLocked(privileged bool) {
	c.observer.ViewChanged(c.snapshotLocked(privileged))
}

func (c *Controller) snapshotLocked(privileged bool) View {
	notifications := make([]SpendEvent, len(c.view.notifications))
	copy(notifications, c.view.notifications)
	return View{
		Session:       c.sessionID,
		Allies:        c.view.values[Allies],
		Adversaries:   c.view.values[Adversaries],
		Display:       c.view.display,
		Menu:          c.view.menu,
		CanEdit:       privileged,
		Actions:       c.catalog.List(),
		Notifications: notifications,
	}
}

func (c *Controller) actorLabel(privileged bool) string {
	if privileged {
		return c.ownerLabel
	}
	return c.identity.DisplayName()
}

func toNotification(e SpendEvent) broadcast.Notification {
	return broadcast.Notification{
		ID:         e.ID,
		ActorLabel: e.ActorLabel,
		Kind:       e.Kind.String(),
		Cost:       e.Cost,
		ActionName: e.ActionName,
		At:         e.At,
	}
}

func fromNotification(n broadcast.Notification) SpendEvent {
	return SpendEvent{
		ID:         n.ID,
		ActorLabel: n.ActorLabel,
		Kind:       Kind(n.Kind),
		Cost:       n.Cost,
		ActionName: n.ActionName,
		At:         n.At,
	}
}
