// Package parallel runs compute-style dispatches on CPU goroutines.
//
// It is the execution substrate of the software backend:
//
//   - WorkerPool runs workgroups with per-worker queues and work stealing
//   - Bitmask is a lock-free bitmap set with atomic OR, like a GPU storage
//     buffer of u32 words
//   - Tiles partitions a 2D target into disjoint 64x64 regions that can be
//     written concurrently
//
// Nothing here waits on another workgroup's result inside one dispatch;
// Dispatch returning is the barrier between stages.
package parallel
