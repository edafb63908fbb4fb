// Package daemonrun hosts the foreground daemon process behind
// `casework daemon`: logger setup, preflight warnings, the pid file, the
// daemon itself and the IPC server, all torn down on SIGINT or SIGTERM.
package daemonrun
