package ecs

import "log"

// ErrorKind classifies a failure reported through the error surface.
// The core never panics or returns an error value from its hot-path
// operations; it reports through this surface instead, per the
// propagation policy of the runtime's error handling design.
type ErrorKind int

const (
	// ErrInvariantViolation covers double-adds, stale removals, duplicate
	// system registration and cyclic dependency graphs.
	ErrInvariantViolation ErrorKind = iota
	// ErrResourceExhaustion covers pool allocation failure and entity
	// version wraparound.
	ErrResourceExhaustion
	// ErrProgrammingError covers operations on nonexistent entities,
	// self-transfer, and tokens minted outside registration.
	ErrProgrammingError
	// ErrLookupMiss covers unknown component type ids and unknown system
	// ids.
	ErrLookupMiss
)

func (k ErrorKind) String() string {
	switch k {
	case ErrInvariantViolation:
		return "invariant violation"
	case ErrResourceExhaustion:
		return "resource exhaustion"
	case ErrProgrammingError:
		return "programming error"
	case ErrLookupMiss:
		return "lookup miss"
	default:
		return "unknown error kind"
	}
}

// ErrorHandler is the shape of a process-wide error surface. The host
// installs one with SetErrorHandler; the core calls it and continues
// running per the post-state rules documented for each operation.
type ErrorHandler func(kind ErrorKind, message string)

var currentErrorHandler ErrorHandler = defaultErrorHandler

func defaultErrorHandler(kind ErrorKind, message string) {
	log.Printf("[ecs] %s: %s", kind, message)
}

// SetErrorHandler installs the process-wide error surface. It is not
// safe to call concurrently with any other operation on this package;
// hosts should install their handler once during startup, before any
// Storage or Scheduler is used.
func SetErrorHandler(handler ErrorHandler) {
	if handler == nil {
		currentErrorHandler = defaultErrorHandler
		return
	}
	currentErrorHandler = handler
}

func reportError(kind ErrorKind, message string) {
	currentErrorHandler(kind, message)
}
