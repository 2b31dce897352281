package main

import (
	"context"
	"strings"
	"testing"

	"github.com/bluesky-social/hierarchy/models"
	"github.com/bluesky-social/hierarchy/nestedset"
	"github.com/bluesky-social/hierarchy/util/cliutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKind(t *testing.T) treeKind {
	db, err := cliutil.SetupDatabase("sqlite://:memory:", 1)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	tree, err := models.NewIssueTree(db, models.TreeOptions{})
	require.NoError(t, err)
	return &kindAdapter[models.Issue, *models.Issue]{
		tree:  tree,
		build: func(label string) *models.Issue { return &models.Issue{Subject: label} },
		label: func(iss *models.Issue) string { return iss.Subject },
	}
}

func TestRender(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	k := testKind(t)

	epic, err := k.Add(ctx, "epic", nil)
	require.NoError(t, err)
	story, err := k.Add(ctx, "story", &epic)
	require.NoError(t, err)
	_, err = k.Add(ctx, "task", &story)
	require.NoError(t, err)
	_, err = k.Add(ctx, "chore", nil)
	require.NoError(t, err)

	out, err := k.Render(ctx, nil)
	require.NoError(t, err)
	text := out.String()
	for _, label := range []string{"issue", "epic [id=1 1..6]", "story [id=2 2..5]", "task [id=3 3..4]", "chore [id=4 1..2]"} {
		assert.Contains(text, label)
	}
	assert.Less(strings.Index(text, "epic"), strings.Index(text, "story"))

	out, err = k.Render(ctx, &story)
	require.NoError(t, err)
	assert.NotContains(out.String(), "epic")
	assert.Contains(out.String(), "task")
}

func TestKindMoveAndRebuild(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	k := testKind(t)

	a, err := k.Add(ctx, "a", nil)
	require.NoError(t, err)
	b, err := k.Add(ctx, "b", nil)
	require.NoError(t, err)

	n, err := k.Move(ctx, b, &a)
	require.NoError(t, err)
	assert.Equal(a, n.ScopeID)

	report, err := k.Rebuild(ctx, nil)
	require.NoError(t, err)
	assert.Equal(2, report.Nodes)
	assert.Equal(0, report.Updated)

	problems, err := k.Verify(ctx, &a)
	require.NoError(t, err)
	assert.Empty(problems)

	require.NoError(t, k.Delete(ctx, a, nestedset.Cascade))
	out, err := k.Render(ctx, nil)
	require.NoError(t, err)
	assert.NotContains(out.String(), "id=")
}
