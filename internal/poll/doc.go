// Package poll watches registered cases for new remote files and asks an
// external status source about each case.
//
// A pass compares the number of entries at the root of each case's remote
// tree with the count stored at the previous pass and reports the growth.
// The Scheduler only enqueues poll tasks; the work daemon runs the pass so
// polling never overlaps transfers.
package poll
