package nestedset

import (
	"log/slog"
	"time"

	"gorm.io/gorm"
)

type ScopeMode int

const (
	// every root owns a scope (scope_id = root id); trees are independent shards
	Forest ScopeMode = iota
	// one implicit scope (SingleScope) holding all rows, roots ordered by the order key
	SingleTree
)

func (m ScopeMode) String() string {
	switch m {
	case Forest:
		return "forest"
	case SingleTree:
		return "single"
	default:
		return "unknown"
	}
}

type DeletePolicy int

const (
	// resolves to Config.DeletePolicy
	PolicyDefault DeletePolicy = iota
	// delete the node and all of its descendants
	Cascade
	// promote children to the node's parent, then delete the node alone
	ReparentChildren
)

func (p DeletePolicy) String() string {
	switch p {
	case PolicyDefault:
		return "default"
	case Cascade:
		return "cascade"
	case ReparentChildren:
		return "reparent"
	default:
		return "unknown"
	}
}

type Config[T any] struct {
	Mode ScopeMode

	// SQL expression siblings are ordered by during rebuild; ties broken by id. Must agree
	// with Compare.
	OrderColumn string

	// Go-side sibling order used when inserting and moving. nil orders by id, with unsaved
	// records (id 0) last.
	Compare func(a, b *T) int

	// only meaningful for SingleTree: reject a second root
	SingleRoot bool

	DeletePolicy DeletePolicy

	// called for every deleted row, inside the transaction. When set, cascading deletes run
	// row by row (deepest first) instead of as one bulk statement.
	BeforeDelete func(tx *gorm.DB, rec *T) error

	// bound on waiting for scope locks, both in-process and in the database
	LockTimeout time.Duration

	// attempts when a node changes scope between lookup and locking
	ScopeRetries int

	// shared coordinator; trees on the same table in one process should share one. nil
	// creates a private one.
	Locker *ScopeLocker

	Logger *slog.Logger
}

func DefaultConfig[T any]() *Config[T] {
	return &Config[T]{
		Mode:         Forest,
		OrderColumn:  "id",
		DeletePolicy: Cascade,
		LockTimeout:  5 * time.Second,
		ScopeRetries: 3,
	}
}
