// Package preflight checks filesystem access and tool availability before
// casework touches a case tree.
//
// The daemon calls RunAll at startup and the CLI status command renders the
// same results. Transfer and unpack handlers call RequireReadable and
// RequireWritableDir so permission problems surface as services.ErrAccess
// before any bytes move.
package preflight
