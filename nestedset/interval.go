package nestedset

import (
	"math"
)

// Unbounded is the upper limit of a Shift that runs to the end of the scope.
const Unbounded int64 = math.MaxInt64

// Interval is the [Lft, Rgt] pair of a node.
type Interval struct {
	Lft int64
	Rgt int64
}

func (iv Interval) Width() int64 {
	return iv.Rgt - iv.Lft + 1
}

// Shift moves every endpoint (lft or rgt) in [From, To] by Delta.
type Shift struct {
	From  int64
	To    int64
	Delta int64
}

func (s Shift) Contains(v int64) bool {
	return v >= s.From && v <= s.To
}

// Endpoints is the number of endpoints this shift touches in a valid scope whose largest rgt
// is max. The endpoints of a valid scope are exactly 1..max, each used once.
func (s Shift) Endpoints(max int64) int64 {
	lo := s.From
	if lo < 1 {
		lo = 1
	}
	hi := s.To
	if hi > max {
		hi = max
	}
	if hi < lo {
		return 0
	}
	return hi - lo + 1
}

// Apply returns v moved by the first shift containing it, or v unchanged.
func Apply(v int64, shifts []Shift) int64 {
	for _, s := range shifts {
		if s.Contains(v) {
			return v + s.Delta
		}
	}
	return v
}

// PredictEndpoints sums Endpoints over shifts.
func PredictEndpoints(shifts []Shift, max int64) int64 {
	var n int64
	for _, s := range shifts {
		n += s.Endpoints(max)
	}
	return n
}

// Sibling is an existing child considered when placing a new node.
type Sibling[K any] struct {
	Interval
	Key K
}

// InsertionPoint returns the lft for a new node under a parent whose lft is parentLft: right
// after the largest rgt among siblings whose key sorts before or equal to key, or
// parentLft+1 when none does. Passing parentLft 0 places among the roots of a scope.
func InsertionPoint[K any](parentLft int64, siblings []Sibling[K], key K, cmp func(a, b K) int) int64 {
	pos := parentLft + 1
	for _, s := range siblings {
		if cmp(s.Key, key) <= 0 && s.Rgt+1 > pos {
			pos = s.Rgt + 1
		}
	}
	return pos
}

// OpenGap makes room for width endpoints starting at at.
func OpenGap(at, width int64) Shift {
	return Shift{From: at, To: Unbounded, Delta: width}
}

// CloseGap pulls everything right of a removed [lft, rgt] interval back by its width.
func CloseGap(lft, rgt int64) Shift {
	return Shift{From: rgt + 1, To: Unbounded, Delta: -(rgt - lft + 1)}
}

// Collapse removes a single node at [lft, rgt] while keeping its descendants: they move up one
// level and everything right of the node closes a gap of two.
func Collapse(lft, rgt int64) []Shift {
	shifts := []Shift{}
	if rgt-lft > 1 {
		shifts = append(shifts, Shift{From: lft + 1, To: rgt - 1, Delta: -1})
	}
	return append(shifts, Shift{From: rgt + 1, To: Unbounded, Delta: -2})
}

// MoveWithinScope relocates the subtree at [lft, rgt] so that it starts at target, where
// target is expressed in coordinates before the move. The subtree moves by its displacement
// and the region it passes over moves the opposite way by the subtree width. A target inside
// the subtree is a cycle; a target at either edge of the subtree leaves it where it is and
// returns no shifts.
func MoveWithinScope(lft, rgt, target int64) ([]Shift, error) {
	width := rgt - lft + 1
	switch {
	case target > lft && target <= rgt:
		return nil, ErrCycle
	case target == lft || target == rgt+1:
		return nil, nil
	case target > rgt:
		return []Shift{
			{From: lft, To: rgt, Delta: target - rgt - 1},
			{From: rgt + 1, To: target - 1, Delta: -width},
		}, nil
	default:
		return []Shift{
			{From: lft, To: rgt, Delta: target - lft},
			{From: target, To: lft - 1, Delta: width},
		}, nil
	}
}
