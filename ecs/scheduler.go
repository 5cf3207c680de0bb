package ecs

import (
	"context"
	"reflect"
	"runtime"
	"sync"
	"time"
)

// Scheduler drives one storage's systems tick by tick, computing a
// dependency/conflict graph once from their declared access tokens and
// then dispatching as many mutually compatible systems concurrently as
// the graph and worker pool allow. It never inspects a system's body:
// every scheduling decision comes from the accessDescriptor each
// system's tokens report at registration time.
type Scheduler struct {
	storage *Storage
	pool    *threadPool

	graph    *DependencyGraph
	systems  []*registeredSystem
	tracer   *dependencyTracer
	built    bool

	observer SchedulerObserver
	stats    []*systemStatsInternal
	tick     int64

	mu   sync.Mutex
	cond *sync.Cond
}

// SchedulerConfig bounds the scheduler's worker pool. MaxConcurrent
// defaults to runtime.GOMAXPROCS(0) when zero.
type SchedulerConfig struct {
	MaxConcurrent int
}

// NewScheduler creates a scheduler over storage. Call Register for each
// system before the first Tick; the dependency graph is built lazily on
// first use so registration order need not matter for Before/After
// references to later-registered systems.
func NewScheduler(storage *Storage, cfg SchedulerConfig) *Scheduler {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.GOMAXPROCS(0)
	}
	s := &Scheduler{
		storage:  storage,
		pool:     newThreadPool(int64(maxConcurrent)),
		graph:    newDependencyGraph(),
		observer: noopObserver{},
	}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// SetObserver installs an observer for per-tick and per-system timing.
// Passing nil restores the default no-op observer.
func (s *Scheduler) SetObserver(o SchedulerObserver) {
	if o == nil {
		o = noopObserver{}
	}
	s.observer = o
}

// Register binds a system's declared tokens against the scheduler's
// storage, computes its static access descriptor, and adds it to the
// dependency graph under name. name must be unique; registering the
// same name twice is reported as an invariant violation.
func (s *Scheduler) Register(name string, sys System, opts SystemOptions) {
	if s.built {
		reportError(ErrInvariantViolation, "system registered after scheduler build finished")
	}
	if _, dup := s.graph.byName[name]; dup {
		reportError(ErrInvariantViolation, "system \""+name+"\" registered twice")
	}

	access := initTokens(sys, s.storage)

	rs := &registeredSystem{name: name, sys: sys, options: opts, access: access, limiter: newSystemLimiter(opts.MaxConcurrent)}
	collectDeferredTokens(rs, sys)

	id := s.graph.addNode(name, access, opts.CustomOrder, opts.Before, opts.After, opts.IncompatibleWith, opts.MaxConcurrent)
	if int(id) != len(s.systems) {
		reportError(ErrInvariantViolation, "system graph and system list diverged")
	}
	s.systems = append(s.systems, rs)
	s.stats = append(s.stats, newSystemStatsInternal(name))
}

// collectDeferredTokens walks sys's fields looking for EntityRemover and
// EntityTransferer tokens so the scheduler can flush them at the next
// quiescent point, the same reflection walk tokens.go uses to find
// accessToken fields.
func collectDeferredTokens(rs *registeredSystem, sys System) {
	v := reflect.ValueOf(sys)
	if v.Kind() != reflect.Ptr || v.Elem().Kind() != reflect.Struct {
		return
	}
	elem := v.Elem()
	elemType := elem.Type()
	for i := 0; i < elem.NumField(); i++ {
		field := elem.Field(i)
		if !field.CanAddr() || elemType.Field(i).PkgPath != "" {
			continue
		}
		switch ptr := field.Addr().Interface().(type) {
		case *EntityRemover:
			rs.entityRemovers = append(rs.entityRemovers, ptr)
		case *EntityTransferer:
			rs.transferers = append(rs.transferers, ptr)
		}
	}
}

func (s *Scheduler) ensureBuilt() {
	if s.built {
		return
	}
	s.graph.Build()
	s.tracer = newDependencyTracer(s.graph)
	s.built = true
}

// Tick runs every registered system exactly once, honoring the
// dependency/conflict graph. Every deferred storage mutation scheduled
// so far is applied the moment the running set drains to empty, before
// the next wave is allowed to start, so a system reading a component
// added earlier in the same tick by an already-finished writer sees it.
// dt is passed through to each System's Update unchanged.
func (s *Scheduler) Tick(dt float64) {
	s.ensureBuilt()

	s.mu.Lock()
	s.tick++
	tickNum := s.tick
	s.tracer.reset()
	s.mu.Unlock()

	s.observer.OnTickStart(tickNum)
	tickStart := time.Now()

	groupID := int(tickNum)

	s.mu.Lock()
	for !s.tracer.allDone() {
		if len(s.tracer.running) == 0 {
			s.mu.Unlock()
			s.applyDeferred()
			s.mu.Lock()
		}
		runnable := s.tracer.runnable()
		if len(runnable) == 0 {
			s.cond.Wait()
			continue
		}
		for _, id := range runnable {
			s.tracer.start(id)
			node := s.systems[id]
			s.mu.Unlock()
			s.dispatch(groupID, id, node, dt, tickNum)
			s.mu.Lock()
		}
	}
	s.mu.Unlock()

	s.pool.Drain(groupID)

	// Final quiescent point: the tick's last wave has finished, so apply
	// whatever it deferred before reporting the tick complete.
	s.applyDeferred()

	s.observer.OnTickEnd(tickNum, time.Since(tickStart))
}

// applyDeferred runs every scheduled storage mutation and flushes every
// queued EntityRemover/EntityTransferer. Safe to call whenever no
// system is running, including more than once per tick; a call with
// nothing queued is a no-op.
func (s *Scheduler) applyDeferred() {
	s.storage.ExecuteScheduledActions()
	for _, rs := range s.systems {
		for _, er := range rs.entityRemovers {
			er.flush()
		}
		for _, tr := range rs.transferers {
			tr.flush()
		}
	}
}

func (s *Scheduler) dispatch(groupID int, id NodeID, rs *registeredSystem, dt float64, tickNum int64) {
	s.observer.OnSystemStart(rs.name, tickNum)
	start := time.Now()

	s.pool.Submit(poolTask{
		groupID: groupID,
		run: func() {
			rs.limiter.acquire()
			defer rs.limiter.release()
			rs.sys.Update(dt)
		},
		finalize: func() {
			d := time.Since(start)
			s.observer.OnSystemFinish(rs.name, tickNum, d)

			s.mu.Lock()
			s.stats[id].record(d)
			s.tracer.finish(id)
			s.cond.Broadcast()
			s.mu.Unlock()
		},
	})
}

// Run ticks the scheduler repeatedly at interval until ctx is
// cancelled, mirroring a fixed-timestep game loop.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			last = now
			s.Tick(dt)
		}
	}
}

// Shutdown stops the scheduler's worker pool and waits for every
// in-flight worker goroutine to finish. Must be called between ticks —
// never concurrently with Tick or Run — after which the scheduler must
// not be ticked again.
func (s *Scheduler) Shutdown() {
	s.pool.Shutdown()
}

// GetStats returns a snapshot of accumulated per-system timing.
func (s *Scheduler) GetStats() *SchedulerStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := &SchedulerStats{
		SystemCount: len(s.systems),
		Ticks:       s.tick,
		Systems:     make([]SystemStats, len(s.stats)),
	}
	var total int64
	for i, st := range s.stats {
		out.Systems[i] = st.snapshot()
		total += st.executionCount
	}
	out.TotalExecutions = total
	return out
}
