package nestedset

import (
	"cmp"
	"testing"

	"github.com/stretchr/testify/assert"
)

type InsertionFixture struct {
	ParentLft int64
	Siblings  []Sibling[int]
	Key       int
	Lft       int64
}

func TestInsertionPoint(t *testing.T) {
	assert := assert.New(t)

	fixtures := []InsertionFixture{
		// no children: first slot inside the parent
		InsertionFixture{ParentLft: 1, Key: 5, Lft: 2},
		// roots of an empty scope
		InsertionFixture{ParentLft: 0, Key: 5, Lft: 1},
		// after every preceding sibling
		InsertionFixture{ParentLft: 1, Siblings: []Sibling[int]{{Interval{2, 3}, 1}, {Interval{4, 7}, 2}}, Key: 3, Lft: 8},
		// between siblings
		InsertionFixture{ParentLft: 1, Siblings: []Sibling[int]{{Interval{2, 3}, 1}, {Interval{4, 7}, 9}}, Key: 3, Lft: 4},
		// before every sibling
		InsertionFixture{ParentLft: 10, Siblings: []Sibling[int]{{Interval{11, 12}, 4}, {Interval{13, 14}, 6}}, Key: 3, Lft: 11},
		// equal keys go after
		InsertionFixture{ParentLft: 1, Siblings: []Sibling[int]{{Interval{2, 3}, 3}}, Key: 3, Lft: 4},
		// unsorted siblings still resolve to the largest preceding rgt
		InsertionFixture{ParentLft: 1, Siblings: []Sibling[int]{{Interval{6, 7}, 2}, {Interval{2, 5}, 1}}, Key: 2, Lft: 8},
	}

	for _, f := range fixtures {
		assert.Equal(f.Lft, InsertionPoint(f.ParentLft, f.Siblings, f.Key, cmp.Compare[int]))
	}
}

func TestGapShifts(t *testing.T) {
	assert := assert.New(t)

	open := OpenGap(4, 2)
	assert.Equal(Shift{From: 4, To: Unbounded, Delta: 2}, open)
	// A(1,6) B(2,3) C(4,5): endpoints 4, 5, 6 move
	assert.Equal(int64(3), open.Endpoints(6))
	assert.Equal(int64(0), OpenGap(7, 2).Endpoints(6))

	cl := CloseGap(2, 3)
	assert.Equal(Shift{From: 4, To: Unbounded, Delta: -2}, cl)
	assert.Equal(int64(3), cl.Endpoints(6))

	assert.Equal(int64(6), Apply(4, []Shift{open}))
	assert.Equal(int64(3), Apply(3, []Shift{open}))

	// a leaf only closes the right-hand side
	assert.Equal([]Shift{{From: 4, To: Unbounded, Delta: -2}}, Collapse(2, 3))
	assert.Equal([]Shift{{From: 3, To: 6, Delta: -1}, {From: 8, To: Unbounded, Delta: -2}}, Collapse(2, 7))
}

type MoveFixture struct {
	Lft, Rgt, Target int64
	Shifts           []Shift
	Cycle            bool
}

func TestMoveWithinScope(t *testing.T) {
	assert := assert.New(t)

	fixtures := []MoveFixture{
		// C(4,5) under B(2,3): left move to target 3
		MoveFixture{Lft: 4, Rgt: 5, Target: 3, Shifts: []Shift{{From: 4, To: 5, Delta: -1}, {From: 3, To: 3, Delta: 2}}},
		// B(2,3) under C(4,5): right move to target 5
		MoveFixture{Lft: 2, Rgt: 3, Target: 5, Shifts: []Shift{{From: 2, To: 3, Delta: 1}, {From: 4, To: 4, Delta: -2}}},
		// edges of the subtree: already there
		MoveFixture{Lft: 2, Rgt: 5, Target: 2},
		MoveFixture{Lft: 2, Rgt: 5, Target: 6},
		// inside itself
		MoveFixture{Lft: 2, Rgt: 7, Target: 4, Cycle: true},
		MoveFixture{Lft: 2, Rgt: 7, Target: 7, Cycle: true},
	}

	for _, f := range fixtures {
		shifts, err := MoveWithinScope(f.Lft, f.Rgt, f.Target)
		if f.Cycle {
			assert.ErrorIs(err, ErrCycle)
			continue
		}
		assert.NoError(err)
		assert.Equal(f.Shifts, shifts)
	}
}

func ptr(v uint64) *uint64 {
	return &v
}

// applyToNodes runs shifts over an in-memory scope, the way the bulk updates do.
func applyToNodes(nodes []Node, shifts []Shift) []Node {
	out := make([]Node, len(nodes))
	for i, n := range nodes {
		n.Lft = Apply(n.Lft, shifts)
		n.Rgt = Apply(n.Rgt, shifts)
		out[i] = n
	}
	return out
}

func TestMoveWithinScopeKeepsNesting(t *testing.T) {
	assert := assert.New(t)

	// 1 ( 2 (3 4) 5 ) 6 ( 7 8 ) 9 10
	//   A(1,10) B(2,5) C(3,4) D(6,9) E(7,8)
	nodes := []Node{
		{ID: 1, ScopeID: 1, Lft: 1, Rgt: 10},
		{ID: 2, ScopeID: 1, ParentID: ptr(1), Lft: 2, Rgt: 5},
		{ID: 3, ScopeID: 1, ParentID: ptr(2), Lft: 3, Rgt: 4},
		{ID: 4, ScopeID: 1, ParentID: ptr(1), Lft: 6, Rgt: 9},
		{ID: 5, ScopeID: 1, ParentID: ptr(4), Lft: 7, Rgt: 8},
	}
	assert.Empty(CheckNodes(nodes, Forest))

	// B (with C) to the end of D's children: target is D.rgt = 9
	shifts, err := MoveWithinScope(2, 5, 9)
	assert.NoError(err)
	moved := applyToNodes(nodes, shifts)
	moved[1].ParentID = ptr(4)
	assert.Empty(CheckNodes(moved, Forest))
	assert.Equal(int64(7), PredictEndpoints(shifts, 10))

	// E to the front of A's children: target is A.lft+1 = 2
	shifts, err = MoveWithinScope(7, 8, 2)
	assert.NoError(err)
	moved = applyToNodes(nodes, shifts)
	moved[4].ParentID = ptr(1)
	assert.Empty(CheckNodes(moved, Forest))
	assert.Equal(Node{ID: 5, ScopeID: 1, ParentID: ptr(1), Lft: 2, Rgt: 3}, moved[4])
}
