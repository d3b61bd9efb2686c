// Package pool manages a bounded set of expensive, stateful browser workers
// shared across concurrent extraction requests.
//
// A worker is exclusively owned by the pool while idle and lent to exactly
// one caller at a time. Acquisition prefers warm, recently released workers
// (LIFO), creates new workers while capacity remains, and queues callers
// FIFO when the pool is saturated. Broken workers are detected on acquire
// and release and disposed of, idle workers are reclaimed down to a
// configured floor, and shutdown drains busy workers for a grace period
// before destroying every outstanding handle.
//
// The pool consumes a narrow Launcher capability to create workers and
// exposes Acquire/Release/Shutdown to its callers. It holds no global
// state: construct one pool per process and inject it where needed.
package pool
