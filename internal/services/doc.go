// Package services defines shared utilities consumed by the task handlers and
// external tool integrations.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, case IDs, task kinds, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so every terminal failure
//     classifies as integrity, tool, access, or partial-stage.
//   - An Executor abstraction that runs external tools and captures their
//     stderr for diagnosis.
package services
