package nestedset

import (
	"context"

	"gorm.io/gorm"
)

// Read queries take no locks; they see whatever committed state the database's isolation
// level provides. An empty result is a valid answer.

func (t *Tree[T, PT]) Get(ctx context.Context, id uint64) (PT, error) {
	return t.load(t.db.WithContext(ctx), id)
}

func (t *Tree[T, PT]) find(ctx context.Context, op string, build func(q *gorm.DB) *gorm.DB) ([]PT, error) {
	ctx, span := t.startSpan(ctx, op)
	defer span.End()

	var out []PT
	if err := build(t.db.WithContext(ctx)).Order("lft").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Children returns the direct children of rec, in sibling order.
func (t *Tree[T, PT]) Children(ctx context.Context, rec PT) ([]PT, error) {
	n := rec.TreeNode()
	return t.find(ctx, "Children", func(q *gorm.DB) *gorm.DB {
		return q.Where("scope_id = ? AND parent_id = ?", n.ScopeID, n.ID)
	})
}

// Siblings returns the other children of rec's parent. For roots, the other roots of the same
// scope (none in a forest).
func (t *Tree[T, PT]) Siblings(ctx context.Context, rec PT) ([]PT, error) {
	n := rec.TreeNode()
	return t.find(ctx, "Siblings", func(q *gorm.DB) *gorm.DB {
		q = q.Where("scope_id = ? AND id <> ?", n.ScopeID, n.ID)
		if n.ParentID == nil {
			return q.Where("parent_id IS NULL")
		}
		return q.Where("parent_id = ?", *n.ParentID)
	})
}

func (t *Tree[T, PT]) Ancestors(ctx context.Context, rec PT) ([]PT, error) {
	n := rec.TreeNode()
	return t.find(ctx, "Ancestors", func(q *gorm.DB) *gorm.DB {
		return q.Where("scope_id = ? AND lft < ? AND rgt > ?", n.ScopeID, n.Lft, n.Rgt)
	})
}

func (t *Tree[T, PT]) SelfAndAncestors(ctx context.Context, rec PT) ([]PT, error) {
	n := rec.TreeNode()
	return t.find(ctx, "SelfAndAncestors", func(q *gorm.DB) *gorm.DB {
		return q.Where("scope_id = ? AND lft <= ? AND rgt >= ?", n.ScopeID, n.Lft, n.Rgt)
	})
}

func (t *Tree[T, PT]) Descendants(ctx context.Context, rec PT) ([]PT, error) {
	n := rec.TreeNode()
	return t.find(ctx, "Descendants", func(q *gorm.DB) *gorm.DB {
		return q.Where("scope_id = ? AND lft > ? AND rgt < ?", n.ScopeID, n.Lft, n.Rgt)
	})
}

func (t *Tree[T, PT]) SelfAndDescendants(ctx context.Context, rec PT) ([]PT, error) {
	n := rec.TreeNode()
	return t.find(ctx, "SelfAndDescendants", func(q *gorm.DB) *gorm.DB {
		return q.Where("scope_id = ? AND lft >= ? AND rgt <= ?", n.ScopeID, n.Lft, n.Rgt)
	})
}

// Hierarchy returns rec with all of its ancestors and descendants, in one query.
func (t *Tree[T, PT]) Hierarchy(ctx context.Context, rec PT) ([]PT, error) {
	n := rec.TreeNode()
	return t.find(ctx, "Hierarchy", func(q *gorm.DB) *gorm.DB {
		return q.Where("scope_id = ? AND ((lft <= ? AND rgt >= ?) OR (lft > ? AND rgt < ?))", n.ScopeID, n.Lft, n.Rgt, n.Lft, n.Rgt)
	})
}

// Leaves returns the descendants of rec that have no children.
func (t *Tree[T, PT]) Leaves(ctx context.Context, rec PT) ([]PT, error) {
	n := rec.TreeNode()
	return t.find(ctx, "Leaves", func(q *gorm.DB) *gorm.DB {
		return q.Where("scope_id = ? AND lft > ? AND rgt < ? AND rgt = lft + 1", n.ScopeID, n.Lft, n.Rgt)
	})
}

// Roots returns every root of the table, grouped by scope.
func (t *Tree[T, PT]) Roots(ctx context.Context) ([]PT, error) {
	ctx, span := t.startSpan(ctx, "Roots")
	defer span.End()

	var out []PT
	if err := t.db.WithContext(ctx).Where("parent_id IS NULL").Order("scope_id").Order("lft").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Root returns the root of the tree containing rec (rec itself for a root).
func (t *Tree[T, PT]) Root(ctx context.Context, rec PT) (PT, error) {
	n := rec.TreeNode()
	if n.IsRoot() {
		return rec, nil
	}
	roots, err := t.find(ctx, "Root", func(q *gorm.DB) *gorm.DB {
		return q.Where("scope_id = ? AND parent_id IS NULL AND lft < ? AND rgt > ?", n.ScopeID, n.Lft, n.Rgt)
	})
	if err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, ErrNodeNotFound
	}
	return roots[0], nil
}

// Level is the depth of rec: 0 for roots.
func (t *Tree[T, PT]) Level(ctx context.Context, rec PT) (int64, error) {
	ctx, span := t.startSpan(ctx, "Level")
	defer span.End()

	n := rec.TreeNode()
	var count int64
	err := t.db.WithContext(ctx).Model(new(T)).
		Where("scope_id = ? AND lft < ? AND rgt > ?", n.ScopeID, n.Lft, n.Rgt).
		Count(&count).Error
	return count, err
}

// IsAncestorOf compares two loaded records without touching the database.
func IsAncestorOf[T any, PT Record[T]](a, b PT) bool {
	return a.TreeNode().IsAncestorOf(*b.TreeNode())
}
