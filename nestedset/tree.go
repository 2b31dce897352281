package nestedset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

var tracer = otel.Tracer("nestedset")

// Record is implemented by pointers to structs embedding Node.
type Record[T any] interface {
	*T
	TreeNode() *Node
}

// Tree runs nested-interval operations against the table backing T.
type Tree[T any, PT Record[T]] struct {
	db     *gorm.DB
	table  string
	cfg    Config[T]
	locks  *ScopeLocker
	logger *slog.Logger
}

func NewTree[T any, PT Record[T]](db *gorm.DB, config *Config[T]) (*Tree[T, PT], error) {
	if config == nil {
		config = DefaultConfig[T]()
	}
	cfg := *config
	if cfg.OrderColumn == "" {
		cfg.OrderColumn = "id"
	}
	if cfg.DeletePolicy == PolicyDefault {
		cfg.DeletePolicy = Cascade
	}
	if cfg.LockTimeout <= 0 {
		cfg.LockTimeout = 5 * time.Second
	}
	if cfg.ScopeRetries <= 0 {
		cfg.ScopeRetries = 3
	}
	if cfg.Locker == nil {
		cfg.Locker = NewScopeLocker()
	}

	stmt := &gorm.Statement{DB: db}
	if err := stmt.Parse(new(T)); err != nil {
		return nil, fmt.Errorf("parsing tree model: %w", err)
	}
	table := stmt.Schema.Table

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("system", "nestedset", "table", table, "mode", cfg.Mode.String())

	return &Tree[T, PT]{
		db:     db,
		table:  table,
		cfg:    cfg,
		locks:  cfg.Locker,
		logger: logger,
	}, nil
}

func (t *Tree[T, PT]) Table() string {
	return t.table
}

func (t *Tree[T, PT]) Mode() ScopeMode {
	return t.cfg.Mode
}

func (t *Tree[T, PT]) Migrate() error {
	return t.db.AutoMigrate(new(T))
}

func (t *Tree[T, PT]) compare(a, b PT) int {
	if t.cfg.Compare != nil {
		if c := t.cfg.Compare((*T)(a), (*T)(b)); c != 0 {
			return c
		}
	}
	return compareIDs(a.TreeNode().ID, b.TreeNode().ID)
}

// unsaved records (id 0) sort after everything
func compareIDs(a, b uint64) int {
	switch {
	case a == b:
		return 0
	case a == 0:
		return 1
	case b == 0:
		return -1
	case a < b:
		return -1
	default:
		return 1
	}
}

func (t *Tree[T, PT]) siblings(recs []PT) []Sibling[PT] {
	out := make([]Sibling[PT], len(recs))
	for i, r := range recs {
		out[i] = Sibling[PT]{Interval: r.TreeNode().Interval(), Key: r}
	}
	return out
}

func (t *Tree[T, PT]) load(db *gorm.DB, id uint64) (PT, error) {
	rec := PT(new(T))
	if err := db.Where("id = ?", id).First(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s id %d", ErrNodeNotFound, t.table, id)
		}
		return nil, err
	}
	return rec, nil
}

// childrenOf loads the direct children of parent, or the roots of scope when parent is nil.
func (t *Tree[T, PT]) childrenOf(db *gorm.DB, scope uint64, parent *uint64) ([]PT, error) {
	var out []PT
	q := db.Where("scope_id = ?", scope)
	if parent == nil {
		q = q.Where("parent_id IS NULL")
	} else {
		q = q.Where("parent_id = ?", *parent)
	}
	if err := q.Order("lft").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type scopeStats struct {
	Count  int64
	MinLft int64
	MaxRgt int64
}

// loadStats reads the row count and endpoint range of a locked scope, and refuses to touch a
// scope that already breaks the 1..2n endpoint layout.
func (t *Tree[T, PT]) loadStats(tx *gorm.DB, op string, scope uint64) (scopeStats, error) {
	var st scopeStats
	err := tx.Model(new(T)).
		Select("COUNT(*) AS count, COALESCE(MIN(lft), 0) AS min_lft, COALESCE(MAX(rgt), 0) AS max_rgt").
		Where("scope_id = ?", scope).
		Scan(&st).Error
	if err != nil {
		return st, err
	}
	if st.Count == 0 && st.MaxRgt == 0 {
		return st, nil
	}
	if st.MinLft != 1 || st.MaxRgt != 2*st.Count {
		shiftMismatches.WithLabelValues(t.table, op).Inc()
		return st, &ShiftMismatchError{Table: t.table, Scope: scope, Op: op + " precheck", Expected: 2 * st.Count, Got: st.MaxRgt}
	}
	return st, nil
}

// mutate locks the scopes named by resolve and runs fn in a single transaction. resolve runs
// once before locking (on the plain connection pool) and again inside the transaction; if the
// answers differ a concurrent operation moved the node and the whole attempt is retried.
func (t *Tree[T, PT]) mutate(ctx context.Context, op string, resolve func(db *gorm.DB) ([]uint64, error), fn func(tx *gorm.DB) error) (err error) {
	ctx, span := t.startSpan(ctx, op)
	defer span.End()

	start := time.Now()
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		mutationsCounter.WithLabelValues(t.table, op, result).Inc()
		mutationDuration.WithLabelValues(t.table, op).Observe(time.Since(start).Seconds())
	}()

	for attempt := 0; ; attempt++ {
		scopes, err := resolve(t.db.WithContext(ctx))
		if err != nil {
			return err
		}
		scopes = normalizeScopes(scopes)

		release, err := t.locks.Acquire(ctx, t.table, scopes, t.cfg.LockTimeout)
		if err != nil {
			return err
		}
		err = t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := t.lockRows(tx, scopes); err != nil {
				return err
			}
			current, err := resolve(tx)
			if err != nil {
				return err
			}
			if !slices.Equal(normalizeScopes(current), scopes) {
				return ErrScopeChanged
			}
			return fn(tx)
		})
		release()

		if errors.Is(err, ErrScopeChanged) && attempt+1 < t.cfg.ScopeRetries {
			t.logger.Debug("scope changed while locking, retrying", "op", op, "attempt", attempt)
			continue
		}
		if err != nil {
			err = translateStoreError(err)
			if errors.Is(err, ErrLockTimeout) {
				lockTimeouts.WithLabelValues(t.table).Inc()
			}
			return fmt.Errorf("%s %s: %w", t.table, op, err)
		}
		return nil
	}
}

func (t *Tree[T, PT]) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attribute.String("table", t.table)))
}

func normalizeScopes(scopes []uint64) []uint64 {
	out := slices.Clone(scopes)
	slices.Sort(out)
	return slices.Compact(out)
}

// scopeOf resolves the scope of a single node.
func (t *Tree[T, PT]) scopeOf(id uint64) func(db *gorm.DB) ([]uint64, error) {
	return func(db *gorm.DB) ([]uint64, error) {
		rec, err := t.load(db, id)
		if err != nil {
			return nil, err
		}
		return []uint64{rec.TreeNode().ScopeID}, nil
	}
}
