package ecs

import "reflect"

// NodeID indexes a system within a DependencyGraph, in registration
// order.
type NodeID int

// systemNode is one system's static scheduling facts: its declared
// access footprint plus the ordering/incompatibility hints supplied at
// registration.
type systemNode struct {
	name             string
	access           accessDescriptor
	customOrder      int32
	before           []string
	after            []string
	incompatibleWith []string
	maxConcurrent    int32

	dependenciesBefore []NodeID
	dependentsAfter    []NodeID
	distanceToSink     int32
}

// DependencyGraph derives a partial order and a conflict relation over a
// fixed set of systems from their declared access descriptors and
// explicit before/after/incompatible-with hints. It never inspects a
// system's body.
type DependencyGraph struct {
	nodes       []*systemNode
	byName      map[string]NodeID
	incompatSet map[[2]NodeID]bool
	built       bool
}

func newDependencyGraph() *DependencyGraph {
	return &DependencyGraph{byName: make(map[string]NodeID)}
}

func (g *DependencyGraph) addNode(name string, access accessDescriptor, customOrder int32, before, after, incompatibleWith []string, maxConcurrent int32) NodeID {
	id := NodeID(len(g.nodes))
	g.nodes = append(g.nodes, &systemNode{
		name:             name,
		access:           access,
		customOrder:      customOrder,
		before:           before,
		after:            after,
		incompatibleWith: incompatibleWith,
		maxConcurrent:    maxConcurrent,
	})
	g.byName[name] = id
	return id
}

// conflicts reports whether two systems' static access descriptors
// require serialization: two readers of the same type are compatible,
// but a writer conflicts with any other reader or writer of that type,
// and any exclusive-global system conflicts with everything. A system
// holding an entity token (touchesEntities) conflicts with any other
// such system and with every system that reads or writes components.
func conflicts(a, b accessDescriptor) bool {
	if a.exclusive || b.exclusive {
		return true
	}
	touches := func(d accessDescriptor, t reflect.Type) (read, write bool) {
		for _, r := range d.reads {
			if r == t {
				read = true
			}
		}
		for _, w := range d.writes {
			if w == t {
				write = true
			}
		}
		return
	}
	seen := map[reflect.Type]bool{}
	for _, t := range append(append([]reflect.Type{}, a.reads...), a.writes...) {
		seen[t] = true
	}
	for _, t := range append(append([]reflect.Type{}, b.reads...), b.writes...) {
		seen[t] = true
	}
	for t := range seen {
		aRead, aWrite := touches(a, t)
		bRead, bWrite := touches(b, t)
		if !aRead && !aWrite {
			continue
		}
		if !bRead && !bWrite {
			continue
		}
		if aWrite || bWrite {
			return true
		}
		// both read-only on t: compatible
	}
	touchesComponents := func(d accessDescriptor) bool { return len(d.reads) > 0 || len(d.writes) > 0 }
	if a.touchesEntities && (b.touchesEntities || touchesComponents(b)) {
		return true
	}
	if b.touchesEntities && touchesComponents(a) {
		return true
	}
	return false
}

// Build computes dependency edges from explicit before/after
// declarations only, and separately records every conflicting pair
// (whether declared via IncompatibleWith or implied by overlapping
// access) in the incompatibility set. A conflicting pair with no
// explicit order is left unordered in the graph itself: distanceToSink
// is computed over the explicit DAG alone, and it is the tracer's job
// to keep two mutually incompatible systems from both becoming
// runnable in the same wave. Reports an invariant violation through the
// error surface if the explicit before/after declarations contain a
// cycle; the graph
// remains usable but every node's distance is left at 0 in that case.
func (g *DependencyGraph) Build() {
	g.incompatSet = make(map[[2]NodeID]bool)

	key := func(a, b NodeID) [2]NodeID {
		if a < b {
			return [2]NodeID{a, b}
		}
		return [2]NodeID{b, a}
	}

	addEdge := func(before, after NodeID) {
		g.nodes[after].dependenciesBefore = appendUnique(g.nodes[after].dependenciesBefore, before)
		g.nodes[before].dependentsAfter = appendUnique(g.nodes[before].dependentsAfter, after)
	}

	for i, n := range g.nodes {
		for _, name := range n.before {
			if j, ok := g.byName[name]; ok {
				addEdge(NodeID(i), j)
			}
		}
		for _, name := range n.after {
			if j, ok := g.byName[name]; ok {
				addEdge(j, NodeID(i))
			}
		}
	}

	for i := 0; i < len(g.nodes); i++ {
		for j := i + 1; j < len(g.nodes); j++ {
			a, b := g.nodes[i], g.nodes[j]
			named := containsStr(a.incompatibleWith, b.name) || containsStr(b.incompatibleWith, a.name)
			dataConflict := conflicts(a.access, b.access)
			if named || dataConflict {
				g.incompatSet[key(NodeID(i), NodeID(j))] = true
			}
		}
	}

	if cycle := g.detectCycle(); cycle {
		reportError(ErrInvariantViolation, "system dependency graph contains a cycle")
		g.built = true
		return
	}

	g.computeDistances()
	g.built = true
}

func (g *DependencyGraph) detectCycle() bool {
	const white, gray, black = 0, 1, 2
	color := make([]int, len(g.nodes))
	var visit func(NodeID) bool
	visit = func(v NodeID) bool {
		color[v] = gray
		for _, w := range g.nodes[v].dependentsAfter {
			if color[w] == gray {
				return true
			}
			if color[w] == white && visit(w) {
				return true
			}
		}
		color[v] = black
		return false
	}
	for i := range g.nodes {
		if color[i] == white {
			if visit(NodeID(i)) {
				return true
			}
		}
	}
	return false
}

// computeDistances runs a backward pass: a sink (no dependents) has
// distance 0, every other node's distance is one more than its farthest
// dependent. Larger distance means more work is chained after this
// system finishes, so the tracer prefers running it first when several
// are eligible.
func (g *DependencyGraph) computeDistances() {
	memo := make([]int32, len(g.nodes))
	done := make([]bool, len(g.nodes))
	var dist func(NodeID) int32
	dist = func(v NodeID) int32 {
		if done[v] {
			return memo[v]
		}
		var best int32
		for _, w := range g.nodes[v].dependentsAfter {
			if d := dist(w) + 1; d > best {
				best = d
			}
		}
		memo[v] = best
		done[v] = true
		return best
	}
	for i := range g.nodes {
		g.nodes[i].distanceToSink = dist(NodeID(i))
	}
}

func (g *DependencyGraph) isIncompatible(a, b NodeID) bool {
	if a == b {
		return false
	}
	k := [2]NodeID{a, b}
	if a > b {
		k = [2]NodeID{b, a}
	}
	return g.incompatSet[k]
}

func appendUnique(s []NodeID, v NodeID) []NodeID {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

func containsStr(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
