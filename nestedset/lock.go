package nestedset

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// weight of an exclusive table lock; any scope lock holds 1 unit of it
const tableWeight int64 = 1 << 30

// ScopeLocker serializes structural mutations per tree scope within one process. Several
// scopes are always taken in ascending order, so two cross-scope moves in opposite
// directions cannot deadlock. A table-wide exclusive lock (for full rebuilds) waits for every
// scope lock of that table to drain.
type ScopeLocker struct {
	tables *xsync.MapOf[string, *semaphore.Weighted]
	scopes *xsync.MapOf[scopeKey, *scopeEntry]
}

type scopeKey struct {
	table string
	scope uint64
}

// refs counts holders and waiters; the entry is dropped when it reaches zero
type scopeEntry struct {
	sem  *semaphore.Weighted
	refs int
}

func NewScopeLocker() *ScopeLocker {
	return &ScopeLocker{
		tables: xsync.NewMapOf[string, *semaphore.Weighted](),
		scopes: xsync.NewMapOf[scopeKey, *scopeEntry](),
	}
}

func (l *ScopeLocker) table(name string) *semaphore.Weighted {
	sem, _ := l.tables.LoadOrCompute(name, func() *semaphore.Weighted {
		return semaphore.NewWeighted(tableWeight)
	})
	return sem
}

func (l *ScopeLocker) ref(k scopeKey) *semaphore.Weighted {
	e, _ := l.scopes.Compute(k, func(e *scopeEntry, loaded bool) (*scopeEntry, bool) {
		if !loaded {
			e = &scopeEntry{sem: semaphore.NewWeighted(1)}
		}
		e.refs++
		return e, false
	})
	return e.sem
}

func (l *ScopeLocker) unref(k scopeKey) {
	l.scopes.Compute(k, func(e *scopeEntry, loaded bool) (*scopeEntry, bool) {
		if !loaded {
			return nil, true
		}
		e.refs--
		return e, e.refs <= 0
	})
}

// held reports how many scope entries are live; used by tests to check that releases clean up.
func (l *ScopeLocker) held() int {
	return l.scopes.Size()
}

// Acquire takes exclusive locks on the given scopes of a table, in ascending scope order, and
// returns a function releasing them. It gives up with ErrLockTimeout after timeout; a
// cancelled ctx returns the context error instead.
func (l *ScopeLocker) Acquire(ctx context.Context, table string, scopes []uint64, timeout time.Duration) (func(), error) {
	ordered := slices.Clone(scopes)
	slices.Sort(ordered)
	ordered = slices.Compact(ordered)

	start := time.Now()
	defer func() {
		lockWaitDuration.WithLabelValues(table).Observe(time.Since(start).Seconds())
	}()

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tsem := l.table(table)
	if err := tsem.Acquire(wctx, 1); err != nil {
		return nil, lockError(ctx, table, err)
	}

	type holding struct {
		key scopeKey
		sem *semaphore.Weighted
	}
	var taken []holding
	release := func() {
		for i := len(taken) - 1; i >= 0; i-- {
			taken[i].sem.Release(1)
			l.unref(taken[i].key)
		}
		tsem.Release(1)
	}

	for _, s := range ordered {
		k := scopeKey{table: table, scope: s}
		sem := l.ref(k)
		if err := sem.Acquire(wctx, 1); err != nil {
			l.unref(k)
			release()
			return nil, lockError(ctx, table, err)
		}
		taken = append(taken, holding{key: k, sem: sem})
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

// AcquireTable takes every scope of a table at once.
func (l *ScopeLocker) AcquireTable(ctx context.Context, table string, timeout time.Duration) (func(), error) {
	start := time.Now()
	defer func() {
		lockWaitDuration.WithLabelValues(table).Observe(time.Since(start).Seconds())
	}()

	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	tsem := l.table(table)
	if err := tsem.Acquire(wctx, tableWeight); err != nil {
		return nil, lockError(ctx, table, err)
	}
	var once sync.Once
	return func() { once.Do(func() { tsem.Release(tableWeight) }) }, nil
}

func lockError(parent context.Context, table string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	return fmt.Errorf("%w: %s: %v", ErrLockTimeout, table, err)
}

// lockRows takes row locks on every row of the given scopes inside tx, one scope at a time in
// ascending order. sqlite has no row locks; its single writer lock covers the transaction.
func (t *Tree[T, PT]) lockRows(tx *gorm.DB, scopes []uint64) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	ms := t.cfg.LockTimeout.Milliseconds()
	if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = %d", ms)).Error; err != nil {
		return err
	}
	for _, s := range scopes {
		var ids []uint64
		err := tx.Model(new(T)).
			Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("scope_id = ?", s).
			Order("id").
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// lockTable locks the whole table for a full rebuild.
func (t *Tree[T, PT]) lockTable(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	ms := t.cfg.LockTimeout.Milliseconds()
	if err := tx.Exec(fmt.Sprintf("SET LOCAL lock_timeout = %d", ms)).Error; err != nil {
		return err
	}
	return tx.Exec(fmt.Sprintf("LOCK TABLE %s IN SHARE ROW EXCLUSIVE MODE", tx.Statement.Quote(t.table))).Error
}

// translateStoreError maps database lock failures onto ErrLockTimeout.
func translateStoreError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03", "40P01": // lock_not_available, deadlock_detected
			return fmt.Errorf("%w: %s", ErrLockTimeout, pgErr.Message)
		}
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		switch sqErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked:
			return fmt.Errorf("%w: %s", ErrLockTimeout, sqErr.Error())
		}
	}
	return err
}
