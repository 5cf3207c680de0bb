package ecs

import "time"

// SchedulerObserver is an optional hook a caller can install to watch
// tick and per-system timing without the scheduler itself depending on
// any particular metrics or tracing library. The default is a no-op;
// installing one never changes scheduling decisions.
type SchedulerObserver interface {
	OnTickStart(tick int64)
	OnTickEnd(tick int64, d time.Duration)
	OnSystemStart(name string, tick int64)
	OnSystemFinish(name string, tick int64, d time.Duration)
}

type noopObserver struct{}

func (noopObserver) OnTickStart(int64)                        {}
func (noopObserver) OnTickEnd(int64, time.Duration)            {}
func (noopObserver) OnSystemStart(string, int64)               {}
func (noopObserver) OnSystemFinish(string, int64, time.Duration) {}

// SchedulerStats summarizes accumulated per-system timing, the same
// shape the scheduler always tracks internally regardless of whether an
// observer is installed.
type SchedulerStats struct {
	SystemCount     int
	TotalExecutions int64
	Ticks           int64
	Systems         []SystemStats
}

// SystemStats reports one system's accumulated execution timing.
type SystemStats struct {
	Name           string
	ExecutionCount int64
	MinDuration    time.Duration
	MaxDuration    time.Duration
	AvgDuration    time.Duration
	LastDuration   time.Duration
	TotalDuration  time.Duration
}

type systemStatsInternal struct {
	name           string
	executionCount int64
	minDuration    time.Duration
	maxDuration    time.Duration
	totalDuration  time.Duration
	lastDuration   time.Duration
}

func newSystemStatsInternal(name string) *systemStatsInternal {
	return &systemStatsInternal{name: name, minDuration: time.Duration(1<<63 - 1)}
}

func (s *systemStatsInternal) record(d time.Duration) {
	s.executionCount++
	s.lastDuration = d
	s.totalDuration += d
	if d < s.minDuration {
		s.minDuration = d
	}
	if d > s.maxDuration {
		s.maxDuration = d
	}
}

func (s *systemStatsInternal) snapshot() SystemStats {
	avg := time.Duration(0)
	if s.executionCount > 0 {
		avg = s.totalDuration / time.Duration(s.executionCount)
	}
	min := s.minDuration
	if s.executionCount == 0 {
		min = 0
	}
	return SystemStats{
		Name:           s.name,
		ExecutionCount: s.executionCount,
		MinDuration:    min,
		MaxDuration:    s.maxDuration,
		AvgDuration:    avg,
		LastDuration:   s.lastDuration,
		TotalDuration:  s.totalDuration,
	}
}
