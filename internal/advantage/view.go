package advantage

import (
	"fmt"
	"time"
)

// DisplayState is the lifecycle of the counter display: Hidden -> Shown -> Hidden.
type DisplayState int

const (
	Hidden DisplayState = iota
	Shown
)

func (s DisplayState) String() string {
	switch s {
	case Hidden:
		return "hidden"
	case Shown:
		return "shown"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s DisplayState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *DisplayState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "hidden":
		*s = Hidden
	case "shown":
		*s = Shown
	default:
		return fmt.Errorf("unknown display state %q", text)
	}
	return nil
}

// SpendEvent records a successful point expenditure. It is display-only and
// never persisted.
type SpendEvent struct {
	ID         string    `json:"id"`
	ActorLabel string    `json:"actor_label"`
	Kind       Kind      `json:"kind"`
	Cost       int       `json:"cost"`
	ActionName string    `json:"action_name"`
	At         time.Time `json:"at"`
}

// View is what a renderer needs to draw one participant's tracker.
type View struct {
	Session       string             `json:"session"`
	Allies        int                `json:"allies"`
	Adversaries   int                `json:"adversaries"`
	Display       DisplayState       `json:"display"`
	Menu          Kind               `json:"menu,omitempty"`
	CanEdit       bool               `json:"can_edit"`
	Actions       []ActionDefinition `json:"actions"`
	Notifications []SpendEvent       `json:"notifications"`
}

// Value returns the displayed value for kind.
func (v View) Value(kind Kind) int {
	if kind == Adversaries {
		return v.Adversaries
	}
	return v.Allies
}

// Observer is notified whenever a controller's local view changes. Callbacks
// run while the controller is busy and must not call back into it.
type Observer interface {
	ViewChanged(View)
	Notified(SpendEvent)
}

type nopObserver struct{}

func (nopObserver) ViewChanged(View)    {}
func (nopObserver) Notified(SpendEvent) {}

// localView holds one participant's displayed state.
type localView struct {
	values        map[Kind]int
	display       DisplayState
	menu          Kind
	notifications []SpendEvent
	limit         int
}

func newLocalView(limit int) *localView {
	return &localView{
		values: map[Kind]int{Allies: 0, Adversaries: 0},
		limit:  limit,
	}
}

func (v *localView) record(event SpendEvent) {
	v.notifications = append(v.notifications, event)
	if v.limit > 0 && len(v.notifications) > v.limit {
		v.notifications = v.notifications[len(v.notifications)-v.limit:]
	}
}

func (v *localView) clear() {
	v.values[Allies] = 0
	v.values[Adversaries] = 0
	v.display = Hidden
	v.menu = ""
}
