package ecs

import (
	"sync"

	"github.com/kamstrup/intmap"
	"golang.org/x/sync/semaphore"
)

// poolTask is one unit of dispatch: run executes the system once, and
// finalize runs right after it on the same goroutine that ran it (the
// pool worker, or the Drain caller when Drain stole the task). finalize
// is not handed back to the submitting goroutine.
type poolTask struct {
	groupID  int
	run      func()
	finalize func()
}

// threadPool is a small worker pool bounded by a weighted semaphore sized
// to the pool's worker count (SchedulerConfig.MaxConcurrent), which caps
// in-flight goroutines; a system's own SystemOptions.MaxConcurrent is
// applied separately by its systemLimiter. Submit blocks the caller only long
// enough to hand off the task; the task itself runs on a pool worker.
// Drain blocks until every task submitted under a group id has both run
// and been finalized, stealing and running tasks inline if every worker
// is currently busy so a Drain call can never deadlock against a full
// queue.
type threadPool struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup

	mu           sync.Mutex
	cond         *sync.Cond
	notFinalized *intmap.Map[int64, int64]
	notStarted   *intmap.Map[int64, int64]
	pending      []poolTask
	shuttingDown bool
}

func newThreadPool(maxConcurrent int64) *threadPool {
	tp := &threadPool{
		sem:          semaphore.NewWeighted(maxConcurrent),
		notFinalized: intmap.New[int64, int64](8),
		notStarted:   intmap.New[int64, int64](8),
	}
	tp.cond = sync.NewCond(&tp.mu)
	return tp
}

func bump(m *intmap.Map[int64, int64], key int64, delta int64) int64 {
	v, _ := m.Get(key)
	v += delta
	m.Put(key, v)
	return v
}

func peek(m *intmap.Map[int64, int64], key int64) int64 {
	v, _ := m.Get(key)
	return v
}

// Submit enqueues t, counting it against its group's notStarted/
// notFinalized totals. If a worker slot is immediately available it
// runs inline on a new goroutine right away; otherwise it queues for
// the next Drain or freed slot. Submit after Shutdown reports an
// invariant violation and drops the task instead of starting it.
func (tp *threadPool) Submit(t poolTask) {
	tp.mu.Lock()
	if tp.shuttingDown {
		tp.mu.Unlock()
		reportError(ErrInvariantViolation, "thread pool: submit called after shutdown")
		return
	}
	bump(tp.notStarted, int64(t.groupID), 1)
	bump(tp.notFinalized, int64(t.groupID), 1)
	tp.mu.Unlock()

	tp.dispatch(t)
}

// dispatch starts t on a new goroutine if a worker slot is free,
// otherwise queues it in pending. Unlike Submit, it never touches the
// per-group counters: every caller (Submit, and runTask re-queuing a
// task that was already sitting in pending) has already accounted for
// t exactly once at its original Submit call.
func (tp *threadPool) dispatch(t poolTask) {
	tp.mu.Lock()
	if tp.sem.TryAcquire(1) {
		tp.mu.Unlock()
		tp.wg.Add(1)
		go func() {
			defer tp.wg.Done()
			tp.runTask(t)
		}()
		return
	}

	tp.pending = append(tp.pending, t)
	tp.mu.Unlock()
}

// Shutdown stops the pool from accepting new work and blocks until
// every worker goroutine it has already spawned finishes. Only safe to
// call between ticks, when the scheduler is not mid-dispatch: calling
// it while a Tick is running can leave that tick's Drain waiting on
// tasks Submit now refuses to start.
func (tp *threadPool) Shutdown() {
	tp.mu.Lock()
	tp.shuttingDown = true
	tp.mu.Unlock()
	tp.wg.Wait()
}

func (tp *threadPool) runTask(t poolTask) {
	tp.mu.Lock()
	bump(tp.notStarted, int64(t.groupID), -1)
	tp.mu.Unlock()

	t.run()

	if t.finalize != nil {
		t.finalize()
	}

	tp.mu.Lock()
	bump(tp.notFinalized, int64(t.groupID), -1)
	tp.cond.Broadcast()
	// Free this worker's permit under the same lock dispatch queues
	// under, so a task queued by dispatch is either picked up here or
	// finds the permit free.
	tp.sem.Release(1)
	remaining := tp.pending
	tp.pending = nil
	tp.mu.Unlock()

	// Re-queue anything that was pending when this worker's slot freed:
	// a freed permit should immediately try to pick up queued work
	// rather than wait for the next external Submit. dispatch, not
	// Submit: these tasks were already counted at their original Submit.
	for _, next := range remaining {
		tp.dispatch(next)
	}
}

// Drain blocks the calling goroutine until every task in groupID has
// finalized. While waiting, if no worker slot exists, the caller steals
// and runs a queued task itself; this guarantees a Drain from within a
// task's own finalize (or from a single-goroutine test) cannot deadlock
// waiting on a permit that will never free.
func (tp *threadPool) Drain(groupID int) {
	for {
		tp.mu.Lock()
		if peek(tp.notFinalized, int64(groupID)) == 0 {
			tp.mu.Unlock()
			return
		}
		var stolen *poolTask
		if len(tp.pending) > 0 {
			t := tp.pending[len(tp.pending)-1]
			tp.pending = tp.pending[:len(tp.pending)-1]
			stolen = &t
		}
		tp.mu.Unlock()

		if stolen != nil {
			stolen.run()
			if stolen.finalize != nil {
				stolen.finalize()
			}
			tp.mu.Lock()
			bump(tp.notFinalized, int64(stolen.groupID), -1)
			bump(tp.notStarted, int64(stolen.groupID), -1)
			tp.cond.Broadcast()
			tp.mu.Unlock()
			continue
		}

		tp.mu.Lock()
		for peek(tp.notFinalized, int64(groupID)) != 0 && len(tp.pending) == 0 {
			tp.cond.Wait()
		}
		tp.mu.Unlock()
	}
}
