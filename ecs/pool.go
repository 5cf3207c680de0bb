package ecs

import "unsafe"

const defaultInitialChunkSize = 64

// GrowthPolicy computes the size of the next chunk given the pool's
// current total capacity. The default doubles capacity every chunk.
type GrowthPolicy func(currentCapacity int) int

func doublingGrowth(currentCapacity int) int {
	if currentCapacity == 0 {
		return defaultInitialChunkSize
	}
	return currentCapacity
}

// ComponentPool is a slab allocator for a single component type. It hands
// out stable raw addresses: once returned from Acquire, an address never
// moves and is never reused until the matching Release call. Slots are
// carved out of chunks allocated in growing batches (doubling by
// default); a chunk, once allocated, is never reallocated, so pointers
// into it stay valid for the pool's lifetime.
//
// Empty (zero-sized) component types bypass slab allocation entirely:
// Acquire returns one shared sentinel address and Release is a no-op,
// since there is no per-instance state to distinguish.
type ComponentPool[T any] struct {
	chunks   [][]T
	freeList []*T
	growth   GrowthPolicy
	capacity int

	isEmpty  bool
	sentinel *T
}

// NewComponentPool creates a pool with the default doubling growth
// policy and no pre-allocated chunks; the first Acquire call allocates
// the initial chunk.
func NewComponentPool[T any]() *ComponentPool[T] {
	return NewComponentPoolWithGrowth[T](doublingGrowth)
}

// NewComponentPoolWithGrowth creates a pool with a custom growth policy.
func NewComponentPoolWithGrowth[T any](growth GrowthPolicy) *ComponentPool[T] {
	p := &ComponentPool[T]{growth: growth}
	var zero T
	if unsafe.Sizeof(zero) == 0 {
		p.isEmpty = true
		p.sentinel = new(T)
	}
	return p
}

// Acquire returns the raw address of a zero-valued T slot. Callers are
// expected to construct the value in place (directly, or via a
// ComponentFactory construct callback) immediately after acquiring it.
func (p *ComponentPool[T]) Acquire() *T {
	if p.isEmpty {
		return p.sentinel
	}

	if n := len(p.freeList); n > 0 {
		slot := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		var zero T
		*slot = zero
		return slot
	}

	return p.growAndAcquire()
}

func (p *ComponentPool[T]) growAndAcquire() (result *T) {
	defer func() {
		if r := recover(); r != nil {
			reportError(ErrResourceExhaustion, "component pool allocation failed")
			result = nil
		}
	}()

	size := p.growth(p.capacity)
	if size <= 0 {
		size = defaultInitialChunkSize
	}
	chunk := make([]T, size)
	p.chunks = append(p.chunks, chunk)
	p.capacity += size

	for i := 1; i < size; i++ {
		p.freeList = append(p.freeList, &chunk[i])
	}
	return &chunk[0]
}

// Release destroys the instance at addr (the caller is responsible for
// running any destroy callback before calling Release) and reclaims its
// slot for a future Acquire.
func (p *ComponentPool[T]) Release(addr *T) {
	if p.isEmpty || addr == nil {
		return
	}
	p.freeList = append(p.freeList, addr)
}

// Len returns the number of slots currently allocated out of the pool
// (capacity minus free slots). Useful for diagnostics and tests.
func (p *ComponentPool[T]) Len() int {
	if p.isEmpty {
		return 0
	}
	return p.capacity - len(p.freeList)
}

// Cap returns total slab capacity across all chunks.
func (p *ComponentPool[T]) Cap() int {
	return p.capacity
}
