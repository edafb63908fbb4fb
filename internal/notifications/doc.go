// Package notifications pushes daemon events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured.
// Attach subscribes a Service to the event bus so failed tasks and poll passes
// that discover new remote files are delivered without blocking publishers.
package notifications
