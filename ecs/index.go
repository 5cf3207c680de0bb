package ecs

import (
	"unsafe"

	"github.com/kamstrup/intmap"
)

const invalidDensePos int32 = -1

// Index is a sparse-set specialized to one query signature: sparse maps
// a raw id to its position in dense, dense holds live raw ids in
// insertion order, and cached holds the pre-resolved component pointers
// (one slice per dense position, parallel to signature order) so a query
// never has to touch the component map on the hot path.
type Index struct {
	signature Signature
	sparse    []int32
	dense     []uint32
	cached    [][]unsafe.Pointer
}

func newIndex(sig Signature) *Index {
	return &Index{signature: sig}
}

func (ix *Index) has(rawID uint32) bool {
	return int(rawID) < len(ix.sparse) && ix.sparse[rawID] != invalidDensePos
}

func (ix *Index) ensureSparse(rawID uint32) {
	if int(rawID) < len(ix.sparse) {
		return
	}
	old := len(ix.sparse)
	ix.sparse = append(ix.sparse, make([]int32, int(rawID)+1-old)...)
	for i := old; i < len(ix.sparse); i++ {
		ix.sparse[i] = invalidDensePos
	}
}

// tryAdd re-checks the full signature against the component map and, if
// satisfied, inserts rawID. Returns whether it was inserted.
func (ix *Index) tryAdd(rawID uint32, m *ComponentMap) bool {
	if ix.has(rawID) {
		return false
	}

	ptrs := make([]unsafe.Pointer, len(ix.signature))
	for i, tid := range ix.signature {
		ptr := m.Get(tid, rawID)
		if ptr == nil {
			return false
		}
		ptrs[i] = ptr
	}

	pos := int32(len(ix.dense))
	ix.dense = append(ix.dense, rawID)
	ix.cached = append(ix.cached, ptrs)
	ix.ensureSparse(rawID)
	ix.sparse[rawID] = pos
	return true
}

// tryRemove drops rawID via the sparse-set swap-remove: the last dense
// element takes rawID's slot, sparse is repointed, and both dense/cached
// are popped.
func (ix *Index) tryRemove(rawID uint32) bool {
	if !ix.has(rawID) {
		return false
	}

	p := ix.sparse[rawID]
	q := int32(len(ix.dense) - 1)
	lastRaw := ix.dense[q]

	ix.dense[p] = lastRaw
	ix.cached[p] = ix.cached[q]
	ix.sparse[lastRaw] = p
	ix.sparse[rawID] = invalidDensePos

	ix.dense = ix.dense[:q]
	ix.cached = ix.cached[:q]
	return true
}

// rebuild fully repopulates the index by scanning every live entity.
func (ix *Index) rebuild(m *ComponentMap, table *entityTable) {
	ix.sparse = nil
	ix.dense = nil
	ix.cached = nil
	for rawID := uint32(0); rawID < uint32(table.len()); rawID++ {
		if !table.alive[rawID] {
			continue
		}
		ix.tryAdd(rawID, m)
	}
}

// Dense returns the live raw ids in insertion order. The slice is owned
// by the index; callers must not retain it across structural mutation.
func (ix *Index) Dense() []uint32 { return ix.dense }

// Cached returns the pre-resolved component pointer tuples, parallel to
// Dense.
func (ix *Index) Cached() [][]unsafe.Pointer { return ix.cached }

// Len reports how many entities currently satisfy the signature.
func (ix *Index) Len() int { return len(ix.dense) }

// IndexEngine keeps every live per-signature Index coherent with storage
// mutation and lazily constructs new ones on first query.
type IndexEngine struct {
	byHash *intmap.Map[uint64, []*Index]
	byType map[ComponentTypeID][]*Index
	all    []*Index
}

func newIndexEngine() *IndexEngine {
	return &IndexEngine{
		byHash: intmap.New[uint64, []*Index](16),
		byType: make(map[ComponentTypeID][]*Index),
	}
}

// GetOrCreate returns the index for sig, building it by full scan the
// first time it is requested for this signature.
func (e *IndexEngine) GetOrCreate(sig Signature, m *ComponentMap, table *entityTable) *Index {
	h := sig.hash()
	if bucket, ok := e.byHash.Get(h); ok {
		for _, ix := range bucket {
			if ix.signature.Equal(sig) {
				return ix
			}
		}
	}

	ix := newIndex(sig)
	ix.rebuild(m, table)

	bucket, _ := e.byHash.Get(h)
	bucket = append(bucket, ix)
	e.byHash.Put(h, bucket)
	e.all = append(e.all, ix)
	for _, tid := range sig {
		e.byType[tid] = append(e.byType[tid], ix)
	}
	return ix
}

// OnComponentAdded notifies every index containing tid to re-check rawID.
func (e *IndexEngine) OnComponentAdded(tid ComponentTypeID, rawID uint32, m *ComponentMap) {
	for _, ix := range e.byType[tid] {
		ix.tryAdd(rawID, m)
	}
}

// OnComponentRemoved notifies every index containing tid to drop rawID.
func (e *IndexEngine) OnComponentRemoved(tid ComponentTypeID, rawID uint32) {
	for _, ix := range e.byType[tid] {
		ix.tryRemove(rawID)
	}
}

// OnEntityRemoved drops rawID from every index.
func (e *IndexEngine) OnEntityRemoved(rawID uint32) {
	for _, ix := range e.all {
		ix.tryRemove(rawID)
	}
}

// Rebuild fully repopulates every index from the component map, for use
// after bulk storage reordering. Storage.Clear does not call it; it drops
// every index with Clear instead.
func (e *IndexEngine) Rebuild(m *ComponentMap, table *entityTable) {
	for _, ix := range e.all {
		ix.rebuild(m, table)
	}
}

// Clear drops every index.
func (e *IndexEngine) Clear() {
	e.byHash = intmap.New[uint64, []*Index](16)
	e.byType = make(map[ComponentTypeID][]*Index)
	e.all = nil
}
