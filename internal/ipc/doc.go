// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The service is registered as "Casework". Request and response types live in
// types.go; status and task DTOs are shared with the HTTP status API so both
// surfaces report the same shape.
package ipc
