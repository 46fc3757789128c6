// Package lock implements a page-level lock table: shared/exclusive
// locking with upgrade, a waits-for graph, and DFS-based deadlock
// detection. A lone holder of a Shared lock can always upgrade to
// Exclusive without blocking, since self-held locks are excluded from
// conflict and waits-for computation (see DESIGN.md for the grounding
// bug this fixes).
package lock

import (
	"errors"
	"sync"

	"github.com/relcore/txnstore/internal/telemetry"
	"github.com/relcore/txnstore/pagestore"
	"github.com/relcore/txnstore/txn"
)

// ErrDeadlock is returned by Acquire when granting the request would
// complete a cycle in the waits-for graph.
var ErrDeadlock = errors.New("lock: deadlock detected")

// Mode is the lock strength requested on a page.
type Mode int

const (
	// Shared permits concurrent readers; compatible with other
	// Shared holders, incompatible with any Exclusive holder.
	Shared Mode = iota
	// Exclusive permits read and write; incompatible with any other
	// holder, Shared or Exclusive.
	Exclusive
)

func (m Mode) String() string {
	if m == Exclusive {
		return "X"
	}
	return "S"
}

// waiter is one pending Acquire call blocked on a page.
type waiter struct {
	tid  txn.ID
	mode Mode
}

// pageState is the per-page lock table entry: who currently holds the
// lock (and at what mode) and who is waiting.
type pageState struct {
	holders map[txn.ID]Mode
	waiters []*waiter
}

// LockManager is a page-level S/X lock table. All state is protected
// by a single monitor lock with one shared condition variable: every
// waiter blocks on the same Cond and every release broadcasts, so a
// woken waiter always re-runs its grant check from scratch rather than
// trusting a targeted wakeup.
type LockManager struct {
	mu    sync.Mutex
	cond  *sync.Cond
	pages map[pagestore.ID]*pageState

	// waitsFor[waiter] is the set of transactions waiter is currently
	// blocked behind. Ephemeral: edges exist only while a request is
	// parked in Acquire.
	waitsFor map[txn.ID]map[txn.ID]bool

	log *telemetry.Logger
}

// New returns an empty lock manager. A nil logger is replaced with a
// no-op one.
func New(log *telemetry.Logger) *LockManager {
	if log == nil {
		log = telemetry.Noop()
	}
	lm := &LockManager{
		pages:    make(map[pagestore.ID]*pageState),
		waitsFor: make(map[txn.ID]map[txn.ID]bool),
		log:      log,
	}
	lm.cond = sync.NewCond(&lm.mu)
	return lm
}

func (lm *LockManager) stateFor(pid pagestore.ID) *pageState {
	ps, ok := lm.pages[pid]
	if !ok {
		ps = &pageState{holders: make(map[txn.ID]Mode)}
		lm.pages[pid] = ps
	}
	return ps
}

// tryGrant attempts to grant tid a lock of mode on pid given the
// current holder set, excluding tid itself from conflict
// consideration. On success it mutates ps.holders. On failure it
// returns the set of other transactions tid must wait behind.
func tryGrant(ps *pageState, tid txn.ID, mode Mode) (granted bool, blockers []txn.ID) {
	selfMode, selfHeld := ps.holders[tid]

	if selfHeld && selfMode == Exclusive {
		// Already holds X: S or X requests are no-ops.
		return true, nil
	}

	var others []txn.ID
	othersHaveX := false
	for t, m := range ps.holders {
		if t == tid {
			continue
		}
		others = append(others, t)
		if m == Exclusive {
			othersHaveX = true
		}
	}

	if mode == Shared {
		if othersHaveX {
			return false, others
		}
		if !selfHeld {
			ps.holders[tid] = Shared
		}
		return true, nil
	}

	// mode == Exclusive
	if len(others) == 0 {
		// Either a fresh grant or an upgrade where tid is the sole
		// holder.
		ps.holders[tid] = Exclusive
		return true, nil
	}
	return false, others
}

// Acquire blocks tid until it holds a lock of at least mode on pid, or
// returns ErrDeadlock.
func (lm *LockManager) Acquire(tid txn.ID, pid pagestore.ID, mode Mode) error {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	for {
		ps := lm.stateFor(pid)
		granted, blockers := tryGrant(ps, tid, mode)
		if granted {
			lm.log.LockGranted(tid.String(), pid.String(), mode.String())
			return nil
		}

		// Step 2: add waits-for edges tid -> each blocker.
		edges := lm.waitsFor[tid]
		if edges == nil {
			edges = make(map[txn.ID]bool)
			lm.waitsFor[tid] = edges
		}
		for _, h := range blockers {
			edges[h] = true
		}
		w := &waiter{tid: tid, mode: mode}
		ps.waiters = append(ps.waiters, w)

		// Step 3: cycle check.
		if lm.hasCycle(tid) {
			lm.removeWaiter(ps, w)
			delete(lm.waitsFor, tid)
			lm.log.DeadlockDetected(tid.String(), pid.String())
			return ErrDeadlock
		}

		holderStrs := make([]string, 0, len(blockers))
		for _, h := range blockers {
			holderStrs = append(holderStrs, h.String())
		}
		lm.log.LockBlocked(tid.String(), pid.String(), mode.String(), holderStrs)

		// Step 4: suspend on the monitor's condition variable.
		lm.cond.Wait()

		// Step 5: on wake, drop tid's waits-for edges and retry.
		lm.removeWaiter(ps, w)
		delete(lm.waitsFor, tid)
	}
}

func (lm *LockManager) removeWaiter(ps *pageState, target *waiter) {
	for i, w := range ps.waiters {
		if w == target {
			ps.waiters = append(ps.waiters[:i], ps.waiters[i+1:]...)
			return
		}
	}
}

// hasCycle runs DFS from tid over the waits-for graph, using a
// recursion-path set distinct from the visited set so a DAG with
// multiple paths to the same node isn't mistaken for a cycle.
func (lm *LockManager) hasCycle(start txn.ID) bool {
	visited := make(map[txn.ID]bool)
	onPath := make(map[txn.ID]bool)

	var dfs func(t txn.ID) bool
	dfs = func(t txn.ID) bool {
		visited[t] = true
		onPath[t] = true
		for next := range lm.waitsFor[t] {
			if !visited[next] {
				if dfs(next) {
					return true
				}
			} else if onPath[next] {
				return true
			}
		}
		onPath[t] = false
		return false
	}
	return dfs(start)
}

// Release drops any lock tid holds on pid and wakes every waiter.
// Releasing a lock tid does not hold is a no-op.
func (lm *LockManager) Release(tid txn.ID, pid pagestore.ID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	lm.releaseLocked(tid, pid)
	lm.cond.Broadcast()
}

func (lm *LockManager) releaseLocked(tid txn.ID, pid pagestore.ID) {
	ps, ok := lm.pages[pid]
	if !ok {
		return
	}
	delete(ps.holders, tid)
}

// ReleaseAll releases every lock tid holds across every page and
// wakes all waiters. This is strict 2PL's single release point,
// called only from transaction_complete.
func (lm *LockManager) ReleaseAll(tid txn.ID) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	for _, ps := range lm.pages {
		delete(ps.holders, tid)
	}
	delete(lm.waitsFor, tid)
	for _, edges := range lm.waitsFor {
		delete(edges, tid)
	}
	lm.log.LocksReleased(tid.String())
	lm.cond.Broadcast()
}

// Holds reports whether tid currently holds any lock on pid.
func (lm *LockManager) Holds(tid txn.ID, pid pagestore.ID) bool {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	ps, ok := lm.pages[pid]
	if !ok {
		return false
	}
	_, held := ps.holders[tid]
	return held
}
