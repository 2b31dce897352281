package nestedset

import (
	"context"
	"fmt"
	"sort"
)

// Problem is one invariant violation found by CheckNodes.
type Problem struct {
	Scope  uint64
	NodeID uint64
	Msg    string
}

func (p Problem) String() string {
	return fmt.Sprintf("scope %d node %d: %s", p.Scope, p.NodeID, p.Msg)
}

// CheckNodes validates the nested-interval invariants over a set of rows: per scope, every
// interval is well formed and even, intervals nest without partial overlap, endpoints are
// exactly 1..2n, and each parent_id names the innermost enclosing interval. Forest roots must
// own their scope.
func CheckNodes(nodes []Node, mode ScopeMode) []Problem {
	var problems []Problem
	report := func(scope, id uint64, format string, args ...any) {
		problems = append(problems, Problem{Scope: scope, NodeID: id, Msg: fmt.Sprintf(format, args...)})
	}

	byScope := make(map[uint64][]Node)
	for _, n := range nodes {
		byScope[n.ScopeID] = append(byScope[n.ScopeID], n)
	}
	scopes := make([]uint64, 0, len(byScope))
	for s := range byScope {
		scopes = append(scopes, s)
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i] < scopes[j] })

	for _, scope := range scopes {
		rows := byScope[scope]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Lft < rows[j].Lft })

		seen := make(map[int64]uint64, 2*len(rows))
		var stack []Node
		for _, n := range rows {
			if n.Lft >= n.Rgt {
				report(scope, n.ID, "lft %d not below rgt %d", n.Lft, n.Rgt)
				continue
			}
			if n.Width()%2 != 0 {
				report(scope, n.ID, "odd width %d", n.Width())
			}
			for _, v := range []int64{n.Lft, n.Rgt} {
				if other, ok := seen[v]; ok {
					report(scope, n.ID, "endpoint %d shared with node %d", v, other)
				}
				seen[v] = n.ID
			}

			for len(stack) > 0 && stack[len(stack)-1].Rgt < n.Lft {
				stack = stack[:len(stack)-1]
			}
			var enclosing *Node
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				if n.Rgt > top.Rgt {
					report(scope, n.ID, "interval [%d,%d] partially overlaps node %d [%d,%d]", n.Lft, n.Rgt, top.ID, top.Lft, top.Rgt)
				}
				enclosing = &top
			}

			switch {
			case enclosing == nil && n.ParentID != nil:
				report(scope, n.ID, "top-level interval but parent_id is %d", *n.ParentID)
			case enclosing != nil && (n.ParentID == nil || *n.ParentID != enclosing.ID):
				report(scope, n.ID, "enclosed by node %d but parent_id is %s", enclosing.ID, fmtParent(n.ParentID))
			}
			if n.ParentID == nil && mode == Forest && n.ID != scope {
				report(scope, n.ID, "forest root does not own its scope")
			}
			stack = append(stack, n)
		}

		max := int64(2 * len(rows))
		for v := int64(1); v <= max; v++ {
			if _, ok := seen[v]; !ok {
				report(scope, 0, "endpoint %d unused (expected 1..%d)", v, max)
				break
			}
		}
		if len(seen) > int(max) {
			report(scope, 0, "endpoints exceed %d", max)
		}
	}
	return problems
}

func fmtParent(p *uint64) string {
	if p == nil {
		return "NULL"
	}
	return fmt.Sprintf("%d", *p)
}

// Verify loads the rows of one scope (or every row when scope is nil) and runs CheckNodes.
func (t *Tree[T, PT]) Verify(ctx context.Context, scope *uint64) ([]Problem, error) {
	ctx, span := t.startSpan(ctx, "Verify")
	defer span.End()

	var nodes []Node
	q := t.db.WithContext(ctx).Model(new(T)).Select("id, parent_id, scope_id, COALESCE(lft, 0) AS lft, COALESCE(rgt, 0) AS rgt")
	if scope != nil {
		q = q.Where("scope_id = ?", *scope)
	}
	if err := q.Scan(&nodes).Error; err != nil {
		return nil, err
	}
	return CheckNodes(nodes, t.cfg.Mode), nil
}
