package nestedset

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// InsertRoot creates rec as a new root. In a forest it becomes the root of its own scope; in a
// single tree it is placed among the existing roots by sibling order.
func (t *Tree[T, PT]) InsertRoot(ctx context.Context, rec PT) error {
	n := rec.TreeNode()
	n.ParentID = nil

	if t.cfg.Mode == Forest {
		// a fresh scope is invisible to everyone else until commit, so there is nothing to lock
		return t.mutate(ctx, "InsertRoot", noScopes, func(tx *gorm.DB) error {
			n.Lft, n.Rgt = 1, 2
			n.ScopeID = n.ID
			if err := tx.Create(rec).Error; err != nil {
				return err
			}
			if n.ScopeID == n.ID {
				return nil
			}
			n.ScopeID = n.ID
			return tx.Model(rec).UpdateColumn("scope_id", n.ID).Error
		})
	}

	return t.mutate(ctx, "InsertRoot", singleScope, func(tx *gorm.DB) error {
		st, err := t.loadStats(tx, "InsertRoot", SingleScope)
		if err != nil {
			return err
		}
		if t.cfg.SingleRoot && st.Count > 0 {
			return ErrRootNotAllowed
		}
		roots, err := t.childrenOf(tx, SingleScope, nil)
		if err != nil {
			return err
		}
		pos := InsertionPoint(0, t.siblings(roots), rec, t.compare)
		if err := t.applyShifts(tx, "InsertRoot", SingleScope, st.MaxRgt, []Shift{OpenGap(pos, 2)}); err != nil {
			return err
		}
		n.ScopeID = SingleScope
		n.Lft, n.Rgt = pos, pos+1
		return tx.Create(rec).Error
	})
}

// InsertChild creates rec as a child of parentID, placed among its siblings by sibling order.
func (t *Tree[T, PT]) InsertChild(ctx context.Context, rec PT, parentID uint64) error {
	n := rec.TreeNode()
	return t.mutate(ctx, "InsertChild", t.scopeOf(parentID), func(tx *gorm.DB) error {
		parent, err := t.load(tx, parentID)
		if err != nil {
			return fmt.Errorf("parent: %w", err)
		}
		p := parent.TreeNode()
		st, err := t.loadStats(tx, "InsertChild", p.ScopeID)
		if err != nil {
			return err
		}
		children, err := t.childrenOf(tx, p.ScopeID, &p.ID)
		if err != nil {
			return err
		}
		pos := InsertionPoint(p.Lft, t.siblings(children), rec, t.compare)
		if err := t.applyShifts(tx, "InsertChild", p.ScopeID, st.MaxRgt, []Shift{OpenGap(pos, 2)}); err != nil {
			return err
		}
		pid := p.ID
		n.ParentID = &pid
		n.ScopeID = p.ScopeID
		n.Lft, n.Rgt = pos, pos+1
		return tx.Create(rec).Error
	})
}

func noScopes(*gorm.DB) ([]uint64, error) {
	return nil, nil
}

func singleScope(*gorm.DB) ([]uint64, error) {
	return []uint64{SingleScope}, nil
}
