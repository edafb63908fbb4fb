// Package main hosts the casework CLI entrypoint and command graph.
//
// Commands that change daemon state (enqueue, poll, automations) go through
// the IPC socket. Inventory commands (case, scan, unpack) work directly on the
// store and the filesystem so they remain usable without a running daemon.
package main
