// Package config loads, normalizes, and validates casework configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// CASEWORK_ARCHIVE_PASSWORD. The Config type centralizes every knob the daemon
// and CLI need: where cases live remotely and locally, which external tools the
// unpack chains invoke, and how often the poll daemon runs.
package config
