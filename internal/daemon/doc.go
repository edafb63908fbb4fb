// Package daemon coordinates the long-running casework process.
//
// It wires the store, the automation registry, the work daemon with its
// handlers, the poll scheduler and the metrics endpoint into a single
// lifecycle, using a flock-based lock to prevent multiple instances. Task
// execution lives in workqueue; the daemon only handles startup, shutdown
// and the entry points the IPC server exposes.
package daemon
