package lock

import (
	"testing"
	"time"

	"github.com/relcore/txnstore/pagestore"
	"github.com/relcore/txnstore/txn"
	"github.com/stretchr/testify/require"
)

func TestSharedSharedDoNotBlock(t *testing.T) {
	lm := New(nil)
	p := pagestore.ID{TableID: 1, PageNo: 1}
	t1, t2 := txn.New(), txn.New()

	require.NoError(t, lm.Acquire(t1, p, Shared))
	require.NoError(t, lm.Acquire(t2, p, Shared))

	lm.Release(t1, p)
	lm.Release(t2, p)

	require.False(t, lm.Holds(t1, p))
	require.False(t, lm.Holds(t2, p))
}

func TestSharedBlocksExclusiveUntilReleased(t *testing.T) {
	lm := New(nil)
	p := pagestore.ID{TableID: 1, PageNo: 1}
	t1, t2 := txn.New(), txn.New()

	require.NoError(t, lm.Acquire(t1, p, Shared))

	acquired := make(chan error, 1)
	go func() { acquired <- lm.Acquire(t2, p, Exclusive) }()

	select {
	case <-acquired:
		t.Fatal("t2 acquired X before t1 released S")
	case <-time.After(50 * time.Millisecond):
	}

	lm.Release(t1, p)

	select {
	case err := <-acquired:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("t2 never acquired X after t1 released")
	}
	require.True(t, lm.Holds(t2, p))
}

func TestUpgradeSingleHolderIsImmediate(t *testing.T) {
	lm := New(nil)
	p := pagestore.ID{TableID: 1, PageNo: 1}
	tid := txn.New()

	require.NoError(t, lm.Acquire(tid, p, Shared))

	done := make(chan error, 1)
	go func() { done <- lm.Acquire(tid, p, Exclusive) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("solo upgrade should never block")
	}
	require.True(t, lm.Holds(tid, p))
}

func TestUpgradeDeadlockAbortsExactlyOne(t *testing.T) {
	lm := New(nil)
	p := pagestore.ID{TableID: 1, PageNo: 1}
	t1, t2 := txn.New(), txn.New()

	require.NoError(t, lm.Acquire(t1, p, Shared))
	require.NoError(t, lm.Acquire(t2, p, Shared))

	type outcome struct {
		tid txn.ID
		err error
	}
	results := make(chan outcome, 2)
	attempt := func(tid txn.ID) {
		err := lm.Acquire(tid, p, Exclusive)
		if err == ErrDeadlock {
			// A caller that sees ErrDeadlock must abort tid, releasing
			// its locks so whichever transaction survived can proceed.
			lm.ReleaseAll(tid)
		}
		results <- outcome{tid, err}
	}
	go attempt(t1)
	go attempt(t2)

	first := <-results
	second := <-results

	deadlocks := 0
	successes := 0
	for _, o := range []outcome{first, second} {
		if o.err == ErrDeadlock {
			deadlocks++
		} else if o.err == nil {
			successes++
		}
	}
	require.Equal(t, 1, deadlocks)
	require.Equal(t, 1, successes)
}

func TestReleaseAllDropsEveryLock(t *testing.T) {
	lm := New(nil)
	p1 := pagestore.ID{TableID: 1, PageNo: 1}
	p2 := pagestore.ID{TableID: 1, PageNo: 2}
	tid := txn.New()

	require.NoError(t, lm.Acquire(tid, p1, Shared))
	require.NoError(t, lm.Acquire(tid, p2, Exclusive))

	lm.ReleaseAll(tid)

	require.False(t, lm.Holds(tid, p1))
	require.False(t, lm.Holds(tid, p2))
}

func TestReleaseOfUnheldLockIsNoop(t *testing.T) {
	lm := New(nil)
	p := pagestore.ID{TableID: 1, PageNo: 1}
	tid := txn.New()

	require.NotPanics(t, func() { lm.Release(tid, p) })
	require.False(t, lm.Holds(tid, p))
}

func TestFreshTransactionCanAcquireAfterRelease(t *testing.T) {
	lm := New(nil)
	p := pagestore.ID{TableID: 1, PageNo: 1}
	t1, t2 := txn.New(), txn.New()

	require.NoError(t, lm.Acquire(t1, p, Exclusive))
	lm.Release(t1, p)
	require.NoError(t, lm.Acquire(t2, p, Exclusive))
}
