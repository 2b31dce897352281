package nestedset

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// Delete removes the node at id. Cascade removes its whole subtree; ReparentChildren hands its
// children to its parent and removes the node alone. PolicyDefault uses the tree's configured
// policy.
func (t *Tree[T, PT]) Delete(ctx context.Context, id uint64, policy DeletePolicy) error {
	if policy == PolicyDefault {
		policy = t.cfg.DeletePolicy
	}
	return t.mutate(ctx, "Delete", t.scopeOf(id), func(tx *gorm.DB) error {
		rec, err := t.load(tx, id)
		if err != nil {
			return err
		}
		switch policy {
		case Cascade:
			return t.deleteSubtree(tx, rec)
		case ReparentChildren:
			return t.deletePromotingChildren(tx, rec)
		default:
			return fmt.Errorf("unknown delete policy %d", policy)
		}
	})
}

func (t *Tree[T, PT]) deleteSubtree(tx *gorm.DB, rec PT) error {
	n := rec.TreeNode()
	st, err := t.loadStats(tx, "Delete", n.ScopeID)
	if err != nil {
		return err
	}

	expected := n.Width() / 2
	var deleted int64
	if t.cfg.BeforeDelete != nil {
		// deepest first, so every hook still sees its parent row
		var rows []PT
		err := tx.Where("scope_id = ? AND lft >= ? AND rgt <= ?", n.ScopeID, n.Lft, n.Rgt).
			Order("lft DESC").
			Find(&rows).Error
		if err != nil {
			return err
		}
		for _, r := range rows {
			if err := t.deleteOne(tx, r); err != nil {
				return err
			}
			deleted++
		}
	} else {
		res := tx.Where("scope_id = ? AND lft >= ? AND rgt <= ?", n.ScopeID, n.Lft, n.Rgt).Delete(new(T))
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
	}
	if deleted != expected {
		shiftMismatches.WithLabelValues(t.table, "Delete").Inc()
		return &ShiftMismatchError{Table: t.table, Scope: n.ScopeID, Op: "Delete subtree", Expected: expected, Got: deleted}
	}

	return t.applyShifts(tx, "Delete", n.ScopeID, st.MaxRgt, []Shift{CloseGap(n.Lft, n.Rgt)})
}

func (t *Tree[T, PT]) deletePromotingChildren(tx *gorm.DB, rec PT) error {
	n := rec.TreeNode()
	st, err := t.loadStats(tx, "Delete", n.ScopeID)
	if err != nil {
		return err
	}

	if t.cfg.Mode == Forest && n.IsRoot() {
		return t.splitScope(tx, rec)
	}

	err = tx.Model(new(T)).
		Where("scope_id = ? AND parent_id = ?", n.ScopeID, n.ID).
		UpdateColumn("parent_id", n.ParentID).Error
	if err != nil {
		return err
	}
	if err := t.deleteOne(tx, rec); err != nil {
		return err
	}
	if err := t.applyShifts(tx, "Delete", n.ScopeID, st.MaxRgt, Collapse(n.Lft, n.Rgt)); err != nil {
		return err
	}
	if n.Width() == 2 {
		return nil
	}
	return t.reslot(tx, n.ScopeID, n.ParentID, st.MaxRgt-2)
}

// reslot puts the children of parent (the roots of scope when parent is nil) back into
// sibling order after promoted children joined them. Each sibling is moved up behind the
// one before it; siblings already in place are not written.
func (t *Tree[T, PT]) reslot(tx *gorm.DB, scope uint64, parent *uint64, max int64) error {
	want, err := t.childrenOf(tx, scope, parent)
	if err != nil {
		return err
	}
	sort.SliceStable(want, func(i, j int) bool { return t.compare(want[i], want[j]) < 0 })

	var pos int64 = 1
	if parent != nil {
		p, err := t.load(tx, *parent)
		if err != nil {
			return err
		}
		pos = p.TreeNode().Lft + 1
	}
	for _, w := range want {
		cur, err := t.load(tx, w.TreeNode().ID)
		if err != nil {
			return err
		}
		c := cur.TreeNode()
		shifts, err := MoveWithinScope(c.Lft, c.Rgt, pos)
		if err != nil {
			return err
		}
		if err := t.applyShifts(tx, "Delete", scope, max, shifts); err != nil {
			return err
		}
		pos += c.Width()
	}
	return nil
}

// splitScope deletes a forest root whose children survive: every child subtree becomes the
// root of a scope of its own.
func (t *Tree[T, PT]) splitScope(tx *gorm.DB, rec PT) error {
	n := rec.TreeNode()
	children, err := t.childrenOf(tx, n.ScopeID, &n.ID)
	if err != nil {
		return err
	}
	for _, child := range children {
		c := child.TreeNode()
		offset := 1 - c.Lft
		res := tx.Model(new(T)).
			Where("scope_id = ? AND lft >= ? AND rgt <= ?", n.ScopeID, c.Lft, c.Rgt).
			UpdateColumns(map[string]any{
				"scope_id": c.ID,
				"lft":      gorm.Expr("lft + ?", offset),
				"rgt":      gorm.Expr("rgt + ?", offset),
			})
		if res.Error != nil {
			return res.Error
		}
		if expected := c.Width() / 2; res.RowsAffected != expected {
			shiftMismatches.WithLabelValues(t.table, "Delete").Inc()
			return &ShiftMismatchError{Table: t.table, Scope: n.ScopeID, Op: "Delete split", Expected: expected, Got: res.RowsAffected}
		}
		if err := tx.Model(new(T)).Where("id = ?", c.ID).UpdateColumn("parent_id", nil).Error; err != nil {
			return err
		}
		t.logger.Debug("child subtree split into its own scope", "node", c.ID, "formerRoot", n.ID)
	}
	return t.deleteOne(tx, rec)
}

func (t *Tree[T, PT]) deleteOne(tx *gorm.DB, rec PT) error {
	if t.cfg.BeforeDelete != nil {
		if err := t.cfg.BeforeDelete(tx, (*T)(rec)); err != nil {
			return fmt.Errorf("delete hook for %d: %w", rec.TreeNode().ID, err)
		}
	}
	res := tx.Where("id = ?", rec.TreeNode().ID).Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return fmt.Errorf("%w: %s id %d", ErrNodeNotFound, t.table, rec.TreeNode().ID)
	}
	return nil
}
