package nestedset

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Move re-parents the subtree rooted at id under newParentID, or makes it a root when
// newParentID is nil. Moving under the node itself or one of its descendants fails with
// ErrCycle before anything is written; moving under the current parent writes nothing.
func (t *Tree[T, PT]) Move(ctx context.Context, id uint64, newParentID *uint64) (PT, error) {
	var out PT
	resolve := func(db *gorm.DB) ([]uint64, error) {
		rec, err := t.load(db, id)
		if err != nil {
			return nil, err
		}
		scopes := []uint64{rec.TreeNode().ScopeID}
		if newParentID != nil {
			parent, err := t.load(db, *newParentID)
			if err != nil {
				return nil, fmt.Errorf("new parent: %w", err)
			}
			scopes = append(scopes, parent.TreeNode().ScopeID)
		}
		return scopes, nil
	}

	err := t.mutate(ctx, "Move", resolve, func(tx *gorm.DB) error {
		rec, err := t.load(tx, id)
		if err != nil {
			return err
		}
		n := rec.TreeNode()
		out = rec

		var parent PT
		if newParentID != nil {
			if *newParentID == n.ID {
				return ErrCycle
			}
			if parent, err = t.load(tx, *newParentID); err != nil {
				return fmt.Errorf("new parent: %w", err)
			}
			if n.IsAncestorOf(*parent.TreeNode()) {
				return ErrCycle
			}
		}
		if n.HasParent(newParentID) {
			return nil
		}

		src := n.ScopeID
		dst := src
		switch {
		case parent != nil:
			dst = parent.TreeNode().ScopeID
		case t.cfg.Mode == Forest:
			dst = n.ID
		}

		if src == dst {
			err = t.moveWithinScope(tx, rec, parent)
		} else {
			err = t.moveAcrossScopes(tx, rec, parent, dst)
		}
		if err != nil {
			return err
		}
		if err := tx.Model(rec).UpdateColumn("parent_id", newParentID).Error; err != nil {
			return err
		}
		out, err = t.load(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// insertionTarget finds where the subtree of rec lands under parent (or among the roots of
// scope when parent is nil), in coordinates before the move.
func (t *Tree[T, PT]) insertionTarget(tx *gorm.DB, rec, parent PT, scope uint64) (int64, error) {
	var parentLft int64
	var parentID *uint64
	if parent != nil {
		p := parent.TreeNode()
		parentLft = p.Lft
		parentID = &p.ID
	}
	siblings, err := t.childrenOf(tx, scope, parentID)
	if err != nil {
		return 0, err
	}
	id := rec.TreeNode().ID
	others := siblings[:0]
	for _, s := range siblings {
		if s.TreeNode().ID != id {
			others = append(others, s)
		}
	}
	return InsertionPoint(parentLft, t.siblings(others), rec, t.compare), nil
}

func (t *Tree[T, PT]) moveWithinScope(tx *gorm.DB, rec, parent PT) error {
	n := rec.TreeNode()
	st, err := t.loadStats(tx, "Move", n.ScopeID)
	if err != nil {
		return err
	}
	target, err := t.insertionTarget(tx, rec, parent, n.ScopeID)
	if err != nil {
		return err
	}
	shifts, err := MoveWithinScope(n.Lft, n.Rgt, target)
	if err != nil {
		return err
	}
	return t.applyShifts(tx, "Move", n.ScopeID, st.MaxRgt, shifts)
}

// moveAcrossScopes opens a gap in dst, carries the subtree rows over, then closes the hole
// left in the source scope. The subtree has to leave the source before that gap closes, or
// right-hand siblings would slide into its old interval.
func (t *Tree[T, PT]) moveAcrossScopes(tx *gorm.DB, rec, parent PT, dst uint64) error {
	n := rec.TreeNode()
	src := n.ScopeID
	width := n.Width()

	srcStats, err := t.loadStats(tx, "Move", src)
	if err != nil {
		return err
	}
	dstStats, err := t.loadStats(tx, "Move", dst)
	if err != nil {
		return err
	}

	target, err := t.insertionTarget(tx, rec, parent, dst)
	if err != nil {
		return err
	}
	if err := t.applyShifts(tx, "Move", dst, dstStats.MaxRgt, []Shift{OpenGap(target, width)}); err != nil {
		return err
	}

	offset := target - n.Lft
	res := tx.Model(new(T)).
		Where("scope_id = ? AND lft >= ? AND rgt <= ?", src, n.Lft, n.Rgt).
		UpdateColumns(map[string]any{
			"scope_id": dst,
			"lft":      gorm.Expr("lft + ?", offset),
			"rgt":      gorm.Expr("rgt + ?", offset),
		})
	if res.Error != nil {
		return res.Error
	}
	if expected := width / 2; res.RowsAffected != expected {
		shiftMismatches.WithLabelValues(t.table, "Move").Inc()
		return &ShiftMismatchError{Table: t.table, Scope: src, Op: "Move subtree", Expected: expected, Got: res.RowsAffected}
	}

	if err := t.applyShifts(tx, "Move", src, srcStats.MaxRgt, []Shift{CloseGap(n.Lft, n.Rgt)}); err != nil {
		return err
	}
	n.ScopeID = dst
	return nil
}
