package ecs

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// systemLimiter bounds concurrent Update invocations of one system to
// its registered MaxConcurrent.
type systemLimiter struct {
	sem *semaphore.Weighted
}

func newSystemLimiter(maxConcurrent int32) *systemLimiter {
	if maxConcurrent <= 0 {
		return nil
	}
	return &systemLimiter{sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

func (l *systemLimiter) acquire() {
	if l == nil {
		return
	}
	_ = l.sem.Acquire(context.Background(), 1)
}

func (l *systemLimiter) release() {
	if l == nil {
		return
	}
	l.sem.Release(1)
}

// System is implemented by every unit of per-tick logic. Update runs
// once per tick with the storage each of the system's declared tokens
// was bound against; a system must only touch storage through its
// declared token fields; direct storage access defeats the scheduler's
// conflict analysis and is a programming error.
type System interface {
	Update(dt float64)
}

// SystemOptions configures how a system is placed into the dependency
// graph at registration time. All fields are optional; the zero value
// means "no explicit ordering, unlimited concurrency, default order".
type SystemOptions struct {
	// CustomOrder breaks ties between systems that conflict but declare
	// no explicit Before/After relationship: among eligible systems with
	// the same distance-to-sink, the lower value runs first. Systems that
	// never conflict with anything are unaffected by it.
	CustomOrder int32
	// Before lists system names (see Scheduler.Register's name argument)
	// that must not start until this system has finished.
	Before []string
	// After lists system names that must finish before this system may
	// start.
	After []string
	// IncompatibleWith lists system names this system must never run
	// concurrently with, beyond what static access analysis already
	// forbids (e.g. two systems that both touch unrelated data but share
	// a non-component invariant).
	IncompatibleWith []string
	// MaxConcurrent bounds how many task instances of this specific system
	// the scheduler will let run at once; 0 means unlimited (bounded only
	// by the scheduler's overall worker count). A single Tick never runs a
	// system's Update more than once, so this only bites if a slow tick's
	// dispatch for this system is still draining when the next Tick call
	// starts one for it again.
	MaxConcurrent int32
}

// registeredSystem pairs a System instance with the name and options it
// was registered under.
type registeredSystem struct {
	name    string
	sys     System
	options SystemOptions
	access  accessDescriptor
	limiter *systemLimiter

	entityRemovers []*EntityRemover
	transferers    []*EntityTransferer
}
