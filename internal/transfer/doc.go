// Package transfer streams files and directory trees between the remote case
// share and the local workspace.
//
// Copies go to a ".part" sibling in fixed-size chunks and are renamed into
// place only after every byte landed, so an interrupted transfer never leaves
// a truncated file at the destination. A destination that already exists is
// treated as transferred and left untouched. Progress is reported after every
// chunk through a caller-supplied callback; BytesDone never decreases and the
// final report equals BytesTotal.
package transfer
