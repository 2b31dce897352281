package nestedset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type CheckFixture struct {
	Name  string
	Mode  ScopeMode
	Nodes []Node
	// substring expected in one of the problems; empty for a valid set
	Problem string
}

func TestCheckNodes(t *testing.T) {
	assert := assert.New(t)

	fixtures := []CheckFixture{
		CheckFixture{
			Name: "valid forest",
			Mode: Forest,
			Nodes: []Node{
				{ID: 1, ScopeID: 1, Lft: 1, Rgt: 4},
				{ID: 2, ScopeID: 1, ParentID: ptr(1), Lft: 2, Rgt: 3},
				{ID: 3, ScopeID: 3, Lft: 1, Rgt: 2},
			},
		},
		CheckFixture{
			Name: "valid single tree with two roots",
			Mode: SingleTree,
			Nodes: []Node{
				{ID: 4, Lft: 1, Rgt: 2},
				{ID: 9, Lft: 3, Rgt: 6},
				{ID: 2, ParentID: ptr(9), Lft: 4, Rgt: 5},
			},
		},
		CheckFixture{
			Name:    "inverted interval",
			Mode:    Forest,
			Nodes:   []Node{{ID: 1, ScopeID: 1, Lft: 2, Rgt: 1}},
			Problem: "not below rgt",
		},
		CheckFixture{
			Name:    "odd width",
			Mode:    Forest,
			Nodes:   []Node{{ID: 1, ScopeID: 1, Lft: 1, Rgt: 3}},
			Problem: "odd width",
		},
		CheckFixture{
			Name: "shared endpoint",
			Mode: SingleTree,
			Nodes: []Node{
				{ID: 1, Lft: 1, Rgt: 4},
				{ID: 2, ParentID: ptr(1), Lft: 2, Rgt: 4},
			},
			Problem: "shared with node 1",
		},
		CheckFixture{
			Name: "partial overlap",
			Mode: SingleTree,
			Nodes: []Node{
				{ID: 1, Lft: 1, Rgt: 4},
				{ID: 2, ParentID: ptr(1), Lft: 2, Rgt: 6},
				{ID: 3, Lft: 3, Rgt: 5},
			},
			Problem: "partially overlaps",
		},
		CheckFixture{
			Name: "wrong parent",
			Mode: SingleTree,
			Nodes: []Node{
				{ID: 1, Lft: 1, Rgt: 6},
				{ID: 2, ParentID: ptr(1), Lft: 2, Rgt: 5},
				{ID: 3, ParentID: ptr(1), Lft: 3, Rgt: 4},
			},
			Problem: "enclosed by node 2",
		},
		CheckFixture{
			Name: "top-level node with parent",
			Mode: SingleTree,
			Nodes: []Node{
				{ID: 1, Lft: 1, Rgt: 2},
				{ID: 2, ParentID: ptr(1), Lft: 3, Rgt: 4},
			},
			Problem: "top-level interval",
		},
		CheckFixture{
			Name:    "forest root in foreign scope",
			Mode:    Forest,
			Nodes:   []Node{{ID: 5, ScopeID: 1, Lft: 1, Rgt: 2}},
			Problem: "does not own its scope",
		},
		CheckFixture{
			Name: "gap in endpoints",
			Mode: SingleTree,
			Nodes: []Node{
				{ID: 1, Lft: 1, Rgt: 2},
				{ID: 2, Lft: 5, Rgt: 6},
			},
			Problem: "endpoint 3 unused",
		},
	}

	for _, f := range fixtures {
		problems := CheckNodes(f.Nodes, f.Mode)
		if f.Problem == "" {
			assert.Empty(problems, f.Name)
			continue
		}
		found := false
		for _, p := range problems {
			if strings.Contains(p.Msg, f.Problem) {
				found = true
			}
		}
		assert.True(found, "%s: %v", f.Name, problems)
	}
}

func TestNodeRelations(t *testing.T) {
	assert := assert.New(t)

	root := Node{ID: 1, ScopeID: 1, Lft: 1, Rgt: 8}
	mid := Node{ID: 2, ScopeID: 1, ParentID: ptr(1), Lft: 2, Rgt: 5}
	leaf := Node{ID: 3, ScopeID: 1, ParentID: ptr(2), Lft: 3, Rgt: 4}
	elsewhere := Node{ID: 4, ScopeID: 4, Lft: 1, Rgt: 2}

	assert.True(root.IsRoot())
	assert.False(root.IsLeaf())
	assert.True(leaf.IsLeaf())
	assert.Equal(int64(3), root.DescendantCount())
	assert.Equal(int64(0), leaf.DescendantCount())
	assert.Equal(Interval{Lft: 2, Rgt: 5}, mid.Interval())

	assert.True(root.IsAncestorOf(leaf))
	assert.True(leaf.IsDescendantOf(mid))
	assert.False(mid.IsAncestorOf(mid))
	// same numbers, different scope
	assert.False(root.IsAncestorOf(Node{ID: 9, ScopeID: elsewhere.ScopeID, Lft: 3, Rgt: 4}))

	assert.True(root.HasParent(nil))
	assert.True(mid.HasParent(ptr(1)))
	assert.False(mid.HasParent(ptr(2)))
	assert.False(mid.HasParent(nil))
}
