package nestedset

import (
	"errors"
	"fmt"
)

var (
	ErrNodeNotFound    = errors.New("tree node not found")
	ErrCycle           = errors.New("new parent is the node itself or one of its descendants")
	ErrLockTimeout     = errors.New("timed out waiting for tree scope lock")
	ErrRootNotAllowed  = errors.New("tree already has a root")
	ErrRebuildRequired = errors.New("tree scope is inconsistent and needs a rebuild")

	// returned internally when a node changed scope between lookup and locking; callers only
	// see it once retries run out
	ErrScopeChanged = errors.New("node moved to another scope concurrently")
)

// ShiftMismatchError is returned when a bulk update touched a different number of rows or
// endpoints than the interval arithmetic predicted. The transaction is rolled back and the
// scope should be rebuilt.
type ShiftMismatchError struct {
	Table    string
	Scope    uint64
	Op       string
	Expected int64
	Got      int64
}

func (e *ShiftMismatchError) Error() string {
	return fmt.Sprintf("%s on %s scope %d: expected %d updates, got %d (rebuild required)", e.Op, e.Table, e.Scope, e.Expected, e.Got)
}

func (e *ShiftMismatchError) Is(target error) bool {
	return target == ErrRebuildRequired
}

// InconsistentTreeError describes a parent link that rebuild had to cut. It is logged and
// reported, never returned.
type InconsistentTreeError struct {
	NodeID   uint64
	ParentID uint64
	Reason   string
}

func (e *InconsistentTreeError) Error() string {
	return fmt.Sprintf("node %d re-rooted (parent %d): %s", e.NodeID, e.ParentID, e.Reason)
}
