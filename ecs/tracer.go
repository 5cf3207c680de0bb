package ecs

import "sort"

// dependencyTracer walks one tick's worth of a DependencyGraph: it
// tracks which nodes are finished, which are currently running, and
// exposes the eligible set a scheduler may start next. All state is
// tick-local; a fresh tracer is created (or reset) at the start of
// every tick.
type dependencyTracer struct {
	graph    *DependencyGraph
	resolved []bool
	running  map[NodeID]bool
}

func newDependencyTracer(g *DependencyGraph) *dependencyTracer {
	return &dependencyTracer{
		graph:    g,
		resolved: make([]bool, len(g.nodes)),
		running:  make(map[NodeID]bool),
	}
}

func (t *dependencyTracer) reset() {
	for i := range t.resolved {
		t.resolved[i] = false
	}
	for k := range t.running {
		delete(t.running, k)
	}
}

// hasUnfinished reports whether any node is not yet resolved, whether
// still running or not yet started; it is the negation of allDone.
func (t *dependencyTracer) hasUnfinished() bool {
	if len(t.running) > 0 {
		return true
	}
	for _, r := range t.resolved {
		if !r {
			return true
		}
	}
	return false
}

func (t *dependencyTracer) allDone() bool {
	if len(t.running) > 0 {
		return false
	}
	for _, r := range t.resolved {
		if !r {
			return false
		}
	}
	return true
}

// runnable returns every node that could legally start right now: not
// yet resolved or running, every dependency resolved, and incompatible
// with nothing currently running or with anything else this call
// selects. If any currently running node is exclusive, the result is
// empty until the running set drains; an exclusive node is only
// returned while nothing else runs. Since Build only wires edges for explicit
// Before/After declarations, two systems that conflict without one may
// both reach eligibility at once; the candidates are ranked by (distance
// to sink descending, custom order ascending, node id ascending) and
// then greedily accepted in that order, skipping any candidate that
// conflicts with one already accepted, so the schedule stays
// deterministic and favors the longest remaining critical-path chains
// first.
func (t *dependencyTracer) runnable() []NodeID {
	for id := range t.running {
		if t.graph.nodes[id].access.exclusive {
			return nil
		}
	}

	var eligible []NodeID
	for i, node := range t.graph.nodes {
		id := NodeID(i)
		if t.resolved[id] || t.running[id] {
			continue
		}
		ready := true
		for _, dep := range node.dependenciesBefore {
			if !t.resolved[dep] {
				ready = false
				break
			}
		}
		if !ready {
			continue
		}
		if node.access.exclusive && len(t.running) > 0 {
			continue
		}
		blocked := false
		for rid := range t.running {
			if t.graph.isIncompatible(id, rid) {
				blocked = true
				break
			}
		}
		if blocked {
			continue
		}
		eligible = append(eligible, id)
	}

	sort.Slice(eligible, func(i, j int) bool {
		ni, nj := t.graph.nodes[eligible[i]], t.graph.nodes[eligible[j]]
		if ni.distanceToSink != nj.distanceToSink {
			return ni.distanceToSink > nj.distanceToSink
		}
		if ni.customOrder != nj.customOrder {
			return ni.customOrder < nj.customOrder
		}
		return eligible[i] < eligible[j]
	})

	var out []NodeID
	for _, id := range eligible {
		conflict := false
		for _, chosen := range out {
			if t.graph.isIncompatible(id, chosen) {
				conflict = true
				break
			}
		}
		if !conflict {
			out = append(out, id)
		}
	}
	return out
}

// start marks v as currently running. Caller must have obtained v from
// runnable() (or otherwise verified eligibility) since start performs
// no re-validation.
func (t *dependencyTracer) start(v NodeID) {
	t.running[v] = true
}

// finish marks v resolved and no longer running.
func (t *dependencyTracer) finish(v NodeID) {
	delete(t.running, v)
	t.resolved[v] = true
}
