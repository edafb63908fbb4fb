// Package workqueue runs casework tasks one at a time in FIFO order.
//
// Producers (the CLI over IPC, the poll scheduler, automation dispatch)
// append to an unbounded in-memory queue; a single worker goroutine pops
// tasks and hands them to the handler registered for their kind. Every task
// publishes its state transitions, byte progress, and a completion event on
// the shared events.Bus, and leaves a row in the store's task history.
//
// After each task the daemon publishes TaskCompleted, then the reduced
// queue depth, then a Mode none progress event that clears any indicator.
// Bus subscribers run on the worker goroutine and must not enqueue.
package workqueue
