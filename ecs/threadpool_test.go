package ecs

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// Fewer worker slots than submitted tasks forces the pending queue and
// the runTask re-dispatch path to actually run; before the Submit/
// dispatch split this double-counted notFinalized for re-queued tasks
// and Drain never returned.
func TestThreadPoolDrainUnderContention(t *testing.T) {
	tp := newThreadPool(2)
	const taskCount = 20

	var completed int32
	for i := 0; i < taskCount; i++ {
		tp.Submit(poolTask{
			groupID: 1,
			run: func() {
				time.Sleep(time.Millisecond)
			},
			finalize: func() {
				atomic.AddInt32(&completed, 1)
			},
		})
	}

	done := make(chan struct{})
	go func() {
		tp.Drain(1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Drain did not return under contention")
	}

	assert.EqualValues(t, taskCount, completed)
}

// Drain must not observe a group as finished until finalize has
// actually returned for every task in it, per the pool's own "has both
// run and been finalized" contract.
func TestThreadPoolDrainWaitsForFinalize(t *testing.T) {
	tp := newThreadPool(1)

	var finalizeDone int32
	tp.Submit(poolTask{
		groupID: 1,
		run:     func() {},
		finalize: func() {
			time.Sleep(20 * time.Millisecond)
			atomic.StoreInt32(&finalizeDone, 1)
		},
	})

	tp.Drain(1)

	assert.EqualValues(t, 1, atomic.LoadInt32(&finalizeDone))
}

// Drain's task-stealing path (used when Drain is called with no free
// worker slot, e.g. from within another task's own finalize) must also
// wait for finalize before decrementing the group's counters.
func TestThreadPoolDrainStealsWhenNoSlotFree(t *testing.T) {
	tp := newThreadPool(1)

	// Occupy the only worker slot with a task from another group so the
	// task under test has to wait in the pending queue.
	blockCh := make(chan struct{})
	tp.Submit(poolTask{groupID: 2, run: func() { <-blockCh }})

	var order []string
	tp.Submit(poolTask{
		groupID: 1,
		run: func() {
			order = append(order, "run")
		},
		finalize: func() {
			order = append(order, "finalize")
		},
	})

	// With the slot held, Drain can only complete by stealing the queued
	// task and running it, then its finalize, on its own goroutine.
	done := make(chan struct{})
	go func() {
		tp.Drain(1)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Drain did not return")
	}

	assert.Equal(t, []string{"run", "finalize"}, order)

	close(blockCh)
	tp.Drain(2)
}

// Groups are independent: Drain on one group must not be affected by
// pending or in-flight work belonging to another.
func TestThreadPoolGroupsAreIndependent(t *testing.T) {
	tp := newThreadPool(1)

	blockCh := make(chan struct{})
	tp.Submit(poolTask{
		groupID: 1,
		run: func() {
			<-blockCh
		},
	})

	var groupTwoFinalized int32
	tp.Submit(poolTask{
		groupID: 2,
		run:     func() {},
		finalize: func() {
			atomic.AddInt32(&groupTwoFinalized, 1)
		},
	})

	done := make(chan struct{})
	go func() {
		tp.Drain(2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Drain on an independent group did not return")
	}
	assert.EqualValues(t, 1, atomic.LoadInt32(&groupTwoFinalized))

	close(blockCh)
	tp.Drain(1)
}

// Submit after Shutdown reports an invariant violation instead of
// running the task, and never blocks Drain on a group that will now
// never receive it.
func TestThreadPoolSubmitAfterShutdown(t *testing.T) {
	tp := newThreadPool(2)
	tp.Shutdown()

	var violations int32
	SetErrorHandler(func(kind ErrorKind, msg string) {
		if kind == ErrInvariantViolation {
			atomic.AddInt32(&violations, 1)
		}
	})
	defer SetErrorHandler(nil)

	tp.Submit(poolTask{groupID: 1, run: func() {}})

	assert.EqualValues(t, 1, atomic.LoadInt32(&violations))
}
