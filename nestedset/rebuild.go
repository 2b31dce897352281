package nestedset

import (
	"context"
	"fmt"
	"sort"

	"gorm.io/gorm"
)

// RebuildReport summarizes a rebuild.
type RebuildReport struct {
	Nodes    int
	Updated  int
	Scopes   int
	Repaired []InconsistentTreeError
}

// row as read by rebuild; endpoints may be NULL in a damaged table
type rebuildRow struct {
	ID       uint64
	ParentID *uint64
	ScopeID  uint64
	Lft      *int64
	Rgt      *int64
}

type placement struct {
	parent *uint64
	scope  uint64
	lft    int64
	rgt    int64
}

// Rebuild renumbers one scope from its parent_id links alone. Stored lft/rgt values are
// ignored. In single-tree mode the scope argument is ignored, the one scope is rebuilt.
func (t *Tree[T, PT]) Rebuild(ctx context.Context, scope uint64) (*RebuildReport, error) {
	if t.cfg.Mode == SingleTree {
		scope = SingleScope
	}
	var report *RebuildReport
	resolve := func(*gorm.DB) ([]uint64, error) { return []uint64{scope}, nil }
	err := t.mutate(ctx, "Rebuild", resolve, func(tx *gorm.DB) error {
		var rows []rebuildRow
		if err := t.orderedRows(tx.Where("scope_id = ?", scope)).Scan(&rows).Error; err != nil {
			return err
		}
		var err error
		report, err = t.renumber(tx, rows)
		return err
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}

// RebuildAll renumbers every row of the table, recomputing forest scopes as well. It holds the
// table-wide lock, so it waits for all in-flight mutations of this table.
func (t *Tree[T, PT]) RebuildAll(ctx context.Context) (*RebuildReport, error) {
	ctx, span := t.startSpan(ctx, "RebuildAll")
	defer span.End()

	release, err := t.locks.AcquireTable(ctx, t.table, t.cfg.LockTimeout)
	if err != nil {
		lockTimeouts.WithLabelValues(t.table).Inc()
		return nil, err
	}
	defer release()

	var report *RebuildReport
	err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := t.lockTable(tx); err != nil {
			return err
		}
		var rows []rebuildRow
		if err := t.orderedRows(tx).Scan(&rows).Error; err != nil {
			return err
		}
		var err error
		report, err = t.renumber(tx, rows)
		return err
	})
	if err != nil {
		mutationsCounter.WithLabelValues(t.table, "RebuildAll", "error").Inc()
		return nil, fmt.Errorf("%s RebuildAll: %w", t.table, translateStoreError(err))
	}
	mutationsCounter.WithLabelValues(t.table, "RebuildAll", "ok").Inc()
	return report, nil
}

func (t *Tree[T, PT]) orderedRows(q *gorm.DB) *gorm.DB {
	q = q.Model(new(T)).Select("id, parent_id, scope_id, lft, rgt").Order(t.cfg.OrderColumn)
	if t.cfg.OrderColumn != "id" {
		q = q.Order("id")
	}
	return q
}

// renumber assigns fresh intervals to rows (already in sibling order) and writes back the ones
// that changed.
func (t *Tree[T, PT]) renumber(tx *gorm.DB, rows []rebuildRow) (*RebuildReport, error) {
	placed, repaired, scopes := layout(rows, t.cfg.Mode)

	report := &RebuildReport{Nodes: len(rows), Scopes: scopes, Repaired: repaired}
	for _, r := range repaired {
		t.logger.Warn("inconsistent tree repaired during rebuild", "node", r.NodeID, "parent", r.ParentID, "reason", r.Reason)
	}
	rebuildReroots.WithLabelValues(t.table).Add(float64(len(repaired)))

	for _, r := range rows {
		p := placed[r.ID]
		unchanged := r.Lft != nil && *r.Lft == p.lft &&
			r.Rgt != nil && *r.Rgt == p.rgt &&
			r.ScopeID == p.scope &&
			Node{ParentID: r.ParentID}.HasParent(p.parent)
		if unchanged {
			continue
		}
		err := tx.Model(new(T)).Where("id = ?", r.ID).UpdateColumns(map[string]any{
			"parent_id": p.parent,
			"scope_id":  p.scope,
			"lft":       p.lft,
			"rgt":       p.rgt,
		}).Error
		if err != nil {
			return nil, err
		}
		report.Updated++
	}
	rebuildNodes.WithLabelValues(t.table).Add(float64(report.Updated))
	t.logger.Info("rebuilt tree", "nodes", report.Nodes, "updated", report.Updated, "scopes", report.Scopes, "repaired", len(report.Repaired))
	return report, nil
}

// layout computes pre-order intervals for rows from parent links alone. rows must already be in
// sibling order; roots keep that order too. Rows whose parent is missing from the set, or
// which sit on a parent cycle, are cut loose and become roots. In a forest every root starts
// its own scope numbered from 1; in a single tree all roots share SingleScope.
func layout(rows []rebuildRow, mode ScopeMode) (map[uint64]placement, []InconsistentTreeError, int) {
	present := make(map[uint64]bool, len(rows))
	for _, r := range rows {
		present[r.ID] = true
	}

	parent := make(map[uint64]*uint64, len(rows))
	children := make(map[uint64][]uint64, len(rows))
	var roots []uint64
	var repaired []InconsistentTreeError
	for _, r := range rows {
		switch {
		case r.ParentID == nil:
			roots = append(roots, r.ID)
		case *r.ParentID == r.ID || !present[*r.ParentID]:
			reason := "parent not in tree scope"
			if *r.ParentID == r.ID {
				reason = "node is its own parent"
			}
			repaired = append(repaired, InconsistentTreeError{NodeID: r.ID, ParentID: *r.ParentID, Reason: reason})
			roots = append(roots, r.ID)
		default:
			pid := *r.ParentID
			parent[r.ID] = &pid
			children[pid] = append(children[pid], r.ID)
		}
	}

	placed := make(map[uint64]placement, len(rows))
	var next int64 = 1
	scopes := 0
	number := func(root uint64) {
		scope := SingleScope
		if mode == Forest {
			scope = root
			next = 1
		}
		if mode == Forest || scopes == 0 {
			scopes++
		}
		type frame struct {
			id  uint64
			lft int64
			i   int
		}
		stack := []frame{{id: root, lft: next}}
		next++
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if kids := children[top.id]; top.i < len(kids) {
				c := kids[top.i]
				top.i++
				stack = append(stack, frame{id: c, lft: next})
				next++
				continue
			}
			placed[top.id] = placement{parent: parent[top.id], scope: scope, lft: top.lft, rgt: next}
			next++
			stack = stack[:len(stack)-1]
		}
	}

	for _, root := range roots {
		number(root)
	}

	// whatever is left is a cycle or hangs off one; cut the cycle at its
	// lowest id and walk from there
	for len(placed) < len(rows) {
		var pending []uint64
		for _, r := range rows {
			if _, ok := placed[r.ID]; !ok {
				pending = append(pending, r.ID)
			}
		}
		sort.Slice(pending, func(i, j int) bool { return pending[i] < pending[j] })
		cut := cycleMin(pending[0], parent)
		old := *parent[cut]
		repaired = append(repaired, InconsistentTreeError{NodeID: cut, ParentID: old, Reason: "parent cycle"})
		delete(parent, cut)
		kids := children[old]
		for i, k := range kids {
			if k == cut {
				children[old] = append(kids[:i:i], kids[i+1:]...)
				break
			}
		}
		number(cut)
	}

	return placed, repaired, scopes
}

// cycleMin follows parent links from id until one repeats and returns the
// lowest id on the cycle it lands in.
func cycleMin(id uint64, parent map[uint64]*uint64) uint64 {
	seen := make(map[uint64]bool)
	for !seen[id] {
		seen[id] = true
		id = *parent[id]
	}
	low := id
	for cur := *parent[id]; cur != id; cur = *parent[cur] {
		if cur < low {
			low = cur
		}
	}
	return low
}
