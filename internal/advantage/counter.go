package advantage

import (
	"fmt"
	"strings"
)

// Kind identifies one of the two group advantage tallies.
type Kind string

const (
	Allies      Kind = "allies"
	Adversaries Kind = "adversaries"
)

// Kinds lists every counter kind in display order.
var Kinds = []Kind{Allies, Adversaries}

// Valid reports whether k names a known counter.
func (k Kind) Valid() bool {
	return k == Allies || k == Adversaries
}

func (k Kind) String() string {
	return string(k)
}

// ParseKind converts a wire or config value into a Kind.
func ParseKind(value string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(value)))
	if !k.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, value)
	}
	return k, nil
}

// Counter is the value of one tally. Value is never negative.
type Counter struct {
	Kind  Kind `json:"kind"`
	Value int  `json:"value"`
}

// Sub returns the counter reduced by amount, or ErrInsufficientPoints when
// the result would drop below zero. The receiver is left untouched.
func (c Counter) Sub(amount int) (Counter, error) {
	if c.Value-amount < 0 {
		return c, ErrInsufficientPoints
	}
	return Counter{Kind: c.Kind, Value: c.Value - amount}, nil
}

// Add applies a signed delta, rejecting results below zero with ErrNegativeResult.
func (c Counter) Add(delta int) (Counter, error) {
	if c.Value+delta < 0 {
		return c, ErrNegativeResult
	}
	return Counter{Kind: c.Kind, Value: c.Value + delta}, nil
}
