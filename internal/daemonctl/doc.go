// Package daemonctl starts, stops and inspects the background casework
// daemon on behalf of the CLI.
//
// The daemon is a detached `casework daemon` process. Start waits for the IPC
// socket to answer; stop signals the pid reported over IPC (or recorded in the
// state directory) and escalates to SIGKILL after a grace period. Status
// snapshots fall back to the task history in the store when no daemon is
// reachable.
package daemonctl
