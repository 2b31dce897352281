package nestedset

import (
	"context"
	"strings"
	"testing"

	"github.com/bluesky-social/hierarchy/util/cliutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testIssue struct {
	Node
	Subject string
}

func (testIssue) TableName() string {
	return "test_issue"
}

type testProject struct {
	Node
	Name string
}

func (testProject) TableName() string {
	return "test_project"
}

type issueTree = Tree[testIssue, *testIssue]
type projectTree = Tree[testProject, *testProject]

func testDB(t *testing.T) *gorm.DB {
	db, err := cliutil.SetupDatabase("sqlite://:memory:", 1)
	require.NoError(t, err)
	return db
}

func testIssueTree(t *testing.T, db *gorm.DB, opts ...func(*Config[testIssue])) *issueTree {
	cfg := DefaultConfig[testIssue]()
	for _, o := range opts {
		o(cfg)
	}
	tree, err := NewTree[testIssue](db, cfg)
	require.NoError(t, err)
	require.NoError(t, tree.Migrate())
	return tree
}

func testProjectTree(t *testing.T, db *gorm.DB, opts ...func(*Config[testProject])) *projectTree {
	cfg := DefaultConfig[testProject]()
	cfg.Mode = SingleTree
	cfg.OrderColumn = "LOWER(name)"
	cfg.Compare = func(a, b *testProject) int {
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	}
	for _, o := range opts {
		o(cfg)
	}
	tree, err := NewTree[testProject](db, cfg)
	require.NoError(t, err)
	require.NoError(t, tree.Migrate())
	return tree
}

func addRoot(t *testing.T, tree *issueTree, subject string) *testIssue {
	iss := &testIssue{Subject: subject}
	require.NoError(t, tree.InsertRoot(context.Background(), iss))
	return iss
}

func addChild(t *testing.T, tree *issueTree, parent *testIssue, subject string) *testIssue {
	iss := &testIssue{Subject: subject}
	require.NoError(t, tree.InsertChild(context.Background(), iss, parent.ID))
	return iss
}

func reload[T any, PT Record[T]](t *testing.T, tree *Tree[T, PT], rec PT) PT {
	out, err := tree.Get(context.Background(), rec.TreeNode().ID)
	require.NoError(t, err)
	return out
}

// span returns the reloaded [lft, rgt] of rec.
func span[T any, PT Record[T]](t *testing.T, tree *Tree[T, PT], rec PT) [2]int64 {
	n := reload(t, tree, rec).TreeNode()
	return [2]int64{n.Lft, n.Rgt}
}

func requireValid[T any, PT Record[T]](t *testing.T, tree *Tree[T, PT]) {
	t.Helper()
	problems, err := tree.Verify(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, problems)
}

func allNodes[T any, PT Record[T]](t *testing.T, tree *Tree[T, PT]) []Node {
	var nodes []Node
	require.NoError(t, tree.db.Model(new(T)).Select("id, parent_id, scope_id, lft, rgt").Order("scope_id, lft").Scan(&nodes).Error)
	return nodes
}

func ids[T any, PT Record[T]](recs []PT) []uint64 {
	out := make([]uint64, len(recs))
	for i, r := range recs {
		out[i] = r.TreeNode().ID
	}
	return out
}

func subjects(recs []*testIssue) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.Subject
	}
	return out
}
