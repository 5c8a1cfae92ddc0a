package storage

import (
	"context"
	"sync"
)

// MemoryRunner implements the Runner contract without a database, for unit
// tests. Rollback is simulated with a compensation log: in-memory repositories
// register undo closures as they mutate shared state, and row locks acquired
// through HoldRowLock are held until the outermost unit finishes, mirroring
// SELECT ... FOR UPDATE semantics.
type MemoryRunner struct{}

// NewMemoryRunner returns a Runner for in-memory repositories.
func NewMemoryRunner() *MemoryRunner {
	return &MemoryRunner{}
}

type memTx struct {
	parent *memTx
	undo   []func()

	// held row locks, tracked on the root unit only
	mu    sync.Mutex
	locks []*sync.Mutex
	held  map[*sync.Mutex]bool
}

type memTxKeyType struct{}

var memTxKey memTxKeyType

func (t *memTx) root() *memTx {
	r := t
	for r.parent != nil {
		r = r.parent
	}
	return r
}

func (t *memTx) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memTx) releaseLocks() {
	t.mu.Lock()
	locks := t.locks
	t.locks = nil
	t.held = nil
	t.mu.Unlock()
	for i := len(locks) - 1; i >= 0; i-- {
		locks[i].Unlock()
	}
}

// WithinTx runs fn inside a simulated atomic unit. A nested call behaves like
// a savepoint: its compensation log is replayed on error without disturbing
// the outer unit, and merged into the outer unit on success.
func (r *MemoryRunner) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	parent, _ := ctx.Value(memTxKey).(*memTx)
	cur := &memTx{parent: parent}
	if parent == nil {
		cur.held = make(map[*sync.Mutex]bool)
	}

	err := fn(context.WithValue(ctx, memTxKey, cur))
	if err != nil {
		cur.rollback()
		if parent == nil {
			cur.releaseLocks()
		}
		return err
	}

	if parent != nil {
		parent.undo = append(parent.undo, cur.undo...)
		return nil
	}
	cur.releaseLocks()
	return nil
}

// OnRollback registers an undo closure with the current unit. It reports false
// when no unit is open, in which case the mutation is immediately final.
func OnRollback(ctx context.Context, undo func()) bool {
	tx, ok := ctx.Value(memTxKey).(*memTx)
	if !ok {
		return false
	}
	tx.undo = append(tx.undo, undo)
	return true
}

// HoldRowLock acquires mu and keeps it held until the outermost unit commits
// or rolls back. Re-acquiring a lock already held by the same unit chain is a
// no-op, matching FOR UPDATE re-reads inside one transaction. Outside any unit
// the lock is taken and released immediately.
func HoldRowLock(ctx context.Context, mu *sync.Mutex) {
	tx, ok := ctx.Value(memTxKey).(*memTx)
	if !ok {
		mu.Lock()
		//lint:ignore SA2001 momentary acquisition orders the caller after in-flight units
		mu.Unlock()
		return
	}
	root := tx.root()
	root.mu.Lock()
	if root.held[mu] {
		root.mu.Unlock()
		return
	}
	root.mu.Unlock()

	mu.Lock()

	root.mu.Lock()
	root.held[mu] = true
	root.locks = append(root.locks, mu)
	root.mu.Unlock()
}

// InUnit reports whether ctx is inside an open memory unit.
func InUnit(ctx context.Context) bool {
	_, ok := ctx.Value(memTxKey).(*memTx)
	return ok
}
