package models

import (
	"context"
	"testing"

	"github.com/bluesky-social/hierarchy/nestedset"
	"github.com/bluesky-social/hierarchy/util/cliutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	db, err := cliutil.SetupDatabase("sqlite://:memory:", 1)
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestIssueTombstones(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	db := testDB(t)

	tree, err := NewIssueTree(db, TreeOptions{Tombstones: true})
	require.NoError(t, err)
	assert.Equal("issue", tree.Table())
	assert.Equal(nestedset.Forest, tree.Mode())

	epic := &Issue{Subject: "ship the importer"}
	require.NoError(t, tree.InsertRoot(ctx, epic))
	task := &Issue{Subject: "parse csv"}
	require.NoError(t, tree.InsertChild(ctx, task, epic.ID))
	keep := &Issue{Subject: "unrelated"}
	require.NoError(t, tree.InsertRoot(ctx, keep))

	require.NoError(t, tree.Delete(ctx, epic.ID, nestedset.PolicyDefault))

	var stones []IssueTombstone
	require.NoError(t, db.Order("id").Find(&stones).Error)
	require.Len(t, stones, 2)
	assert.Equal(task.ID, stones[0].IssueID)
	assert.Equal(epic.ID, *stones[0].ParentID)
	assert.Equal("parse csv", stones[0].Subject)
	assert.Equal(epic.ID, stones[1].IssueID)
	assert.Nil(stones[1].ParentID)

	var left int64
	require.NoError(t, db.Model(&Issue{}).Count(&left).Error)
	assert.Equal(int64(1), left)
}

func TestProjectsOrderedByName(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	db := testDB(t)

	tree, err := NewProjectTree(db, TreeOptions{DeletePolicy: nestedset.ReparentChildren})
	require.NoError(t, err)
	assert.Equal(nestedset.SingleTree, tree.Mode())

	for _, name := range []string{"Zeta", "alpha", "Mu"} {
		require.NoError(t, tree.InsertRoot(ctx, &Project{Name: name}))
	}
	roots, err := tree.Roots(ctx)
	require.NoError(t, err)
	names := make([]string, len(roots))
	for i, r := range roots {
		names[i] = r.Name
	}
	assert.Equal([]string{"alpha", "Mu", "Zeta"}, names)

	// the reparent policy from the options keeps children of deleted projects
	mu := roots[1]
	child := &Project{Name: "mu-child"}
	require.NoError(t, tree.InsertChild(ctx, child, mu.ID))
	require.NoError(t, tree.Delete(ctx, mu.ID, nestedset.PolicyDefault))

	child, err = tree.Get(ctx, child.ID)
	require.NoError(t, err)
	assert.True(child.IsRoot())

	problems, err := tree.Verify(ctx, nil)
	require.NoError(t, err)
	assert.Empty(problems)
}
