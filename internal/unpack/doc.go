// Package unpack converts vendor support bundles into browsable directories.
//
// Three chains are dispatched by file extension:
//
//   - nested: a plain .zip is CRC-tested, extracted next to itself, and the
//     extracted tree is searched for encrypted bundles which are unpacked in
//     turn.
//   - two-stage: an external tool decrypts the bundle into a
//     password-protected zip, the configured extractor opens it with the
//     shared password, and the single inner zip is extracted.
//   - single-stage: an external tool decrypts the bundle in place, leaving a
//     sibling .tgz that is extracted and then removed.
//
// Every attempt works in its own hidden temp directory beside the archive and
// only renames the finished tree to the destination once every stage
// succeeded. A destination that already exists and is non-empty is treated
// as already unpacked and no tool runs.
package unpack
