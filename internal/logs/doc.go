// Package logs tails the daemon log file for `casework logs` and the IPC
// LogTail call.
//
// Offsets are byte positions in the file. A negative offset reads the last
// Limit lines; follow mode polls until new lines appear or the wait expires.
// A Match string keeps only lines containing it, typically a task or case id.
package logs
