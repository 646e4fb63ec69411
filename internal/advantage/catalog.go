package advantage

import (
	"fmt"
	"strings"
)

// ActionDefinition describes an action that can be bought with advantage.
type ActionDefinition struct {
	Name        string `json:"name"`
	Cost        int    `json:"cost"`
	Description string `json:"description"`
}

// Catalog is the fixed, ordered menu of spendable actions.
// It is immutable once built.
type Catalog struct {
	actions []ActionDefinition
	byName  map[string]int
}

// NewCatalog builds a catalog, rejecting non-positive costs and duplicate names.
func NewCatalog(actions ...ActionDefinition) (*Catalog, error) {
	c := &Catalog{
		actions: make([]ActionDefinition, 0, len(actions)),
		byName:  make(map[string]int, len(actions)),
	}
	for _, action := range actions {
		name := strings.TrimSpace(action.Name)
		if name == "" {
			return nil, fmt.Errorf("action name is required")
		}
		if action.Cost <= 0 {
			return nil, fmt.Errorf("action %q: cost must be positive, got %d", name, action.Cost)
		}
		key := strings.ToLower(name)
		if _, exists := c.byName[key]; exists {
			return nil, fmt.Errorf("action %q defined twice", name)
		}
		action.Name = name
		c.byName[key] = len(c.actions)
		c.actions = append(c.actions, action)
	}
	return c, nil
}

// DefaultCatalog returns the standard group advantage actions.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(defaultActions...)
	if err != nil {
		panic(fmt.Sprintf("advantage: invalid default catalog: %v", err))
	}
	return c
}

// List returns the actions in menu order. The slice is a copy.
func (c *Catalog) List() []ActionDefinition {
	out := make([]ActionDefinition, len(c.actions))
	copy(out, c.actions)
	return out
}

// Lookup finds an action by name, ignoring case and surrounding space.
func (c *Catalog) Lookup(name string) (ActionDefinition, bool) {
	idx, ok := c.byName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return ActionDefinition{}, false
	}
	return c.actions[idx], true
}

// Len returns the number of actions.
func (c *Catalog) Len() int {
	return len(c.actions)
}

var defaultActions = []ActionDefinition{
	{
		Name:        "Batter",
		Cost:        1,
		Description: "Perform an opposed Str test, whoever has the highest SL wins. If you win, your opponent gains the prone condition and gains 1 advantage. If you fail, your opponent gains 1 advantage and your action is over. You do not gain advantage from winning this test.",
	},
	{
		Name:        "Trick",
		Cost:        1,
		Description: "Perform an opposed Ag test, whoever has the highest SL wins. If you win you gain 1 advantage. If the circumstances suit, the GM may also add a condition (Ablaze, Blinded or Entangled). If you lose, your opponent gains 1 advantage and your action is over. You do not gain advantage from winning this test.",
	},
	{
		Name:        "Additional effort",
		Cost:        2,
		Description: "You gain a 10% bonus to any test. Each additional advantage spent increases this by 10% (3 advantage for 20%, 4 advantage for 30% and so on). You do not generate advantage when performing this action.",
	},
	{
		Name:        "Flee from harm",
		Cost:        2,
		Description: "You may move away from your opponent without penalty.",
	},
	{
		Name:        "Additional action",
		Cost:        4,
		Description: "You perform an additional action. This never generates advantage for the character performing it. Limit: once per turn.",
	},
}
