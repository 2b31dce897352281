package main

import (
	"context"
	"fmt"

	"github.com/bluesky-social/hierarchy/nestedset"

	"github.com/xlab/treeprint"
)

// treeKind hides the record type of a tree from the commands.
type treeKind interface {
	Table() string
	Add(ctx context.Context, label string, parent *uint64) (uint64, error)
	Move(ctx context.Context, id uint64, parent *uint64) (nestedset.Node, error)
	Delete(ctx context.Context, id uint64, policy nestedset.DeletePolicy) error
	Rebuild(ctx context.Context, scope *uint64) (*nestedset.RebuildReport, error)
	Verify(ctx context.Context, scope *uint64) ([]nestedset.Problem, error)
	Render(ctx context.Context, id *uint64) (treeprint.Tree, error)
}

type kindAdapter[T any, PT nestedset.Record[T]] struct {
	tree  *nestedset.Tree[T, PT]
	build func(label string) PT
	label func(PT) string
}

func (k *kindAdapter[T, PT]) Table() string {
	return k.tree.Table()
}

func (k *kindAdapter[T, PT]) Add(ctx context.Context, label string, parent *uint64) (uint64, error) {
	rec := k.build(label)
	var err error
	if parent == nil {
		err = k.tree.InsertRoot(ctx, rec)
	} else {
		err = k.tree.InsertChild(ctx, rec, *parent)
	}
	if err != nil {
		return 0, err
	}
	return rec.TreeNode().ID, nil
}

func (k *kindAdapter[T, PT]) Move(ctx context.Context, id uint64, parent *uint64) (nestedset.Node, error) {
	rec, err := k.tree.Move(ctx, id, parent)
	if err != nil {
		return nestedset.Node{}, err
	}
	return *rec.TreeNode(), nil
}

func (k *kindAdapter[T, PT]) Delete(ctx context.Context, id uint64, policy nestedset.DeletePolicy) error {
	return k.tree.Delete(ctx, id, policy)
}

func (k *kindAdapter[T, PT]) Rebuild(ctx context.Context, scope *uint64) (*nestedset.RebuildReport, error) {
	if scope == nil {
		return k.tree.RebuildAll(ctx)
	}
	return k.tree.Rebuild(ctx, *scope)
}

func (k *kindAdapter[T, PT]) Verify(ctx context.Context, scope *uint64) ([]nestedset.Problem, error) {
	return k.tree.Verify(ctx, scope)
}

// Render draws the subtree under id, or every root of the table when id is nil.
func (k *kindAdapter[T, PT]) Render(ctx context.Context, id *uint64) (treeprint.Tree, error) {
	var roots []PT
	if id != nil {
		rec, err := k.tree.Get(ctx, *id)
		if err != nil {
			return nil, err
		}
		roots = []PT{rec}
	} else {
		var err error
		if roots, err = k.tree.Roots(ctx); err != nil {
			return nil, err
		}
	}

	out := treeprint.NewWithRoot(k.tree.Table())
	type open struct {
		rgt    int64
		branch treeprint.Tree
	}
	for _, root := range roots {
		rows, err := k.tree.SelfAndDescendants(ctx, root)
		if err != nil {
			return nil, err
		}
		var stack []open
		for _, r := range rows {
			n := r.TreeNode()
			for len(stack) > 0 && stack[len(stack)-1].rgt < n.Lft {
				stack = stack[:len(stack)-1]
			}
			parent := out
			if len(stack) > 0 {
				parent = stack[len(stack)-1].branch
			}
			text := fmt.Sprintf("%s [id=%d %d..%d]", k.label(r), n.ID, n.Lft, n.Rgt)
			if n.IsLeaf() {
				parent.AddNode(text)
				continue
			}
			stack = append(stack, open{rgt: n.Rgt, branch: parent.AddBranch(text)})
		}
	}
	return out, nil
}
