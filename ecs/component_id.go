package ecs

// ComponentTypeID is the opaque scalar identifying a registered component
// type. It is handed out sequentially by a ComponentFactory and is dense
// enough to index directly into slices, as the factory's per-type table
// does.
type ComponentTypeID uint32

// invalidComponentTypeID marks "no such type" in call sites that need a
// sentinel rather than a (id, ok) pair.
const invalidComponentTypeID ComponentTypeID = ^ComponentTypeID(0)
