// Package sqlite contains the SQLite archive for the compliance vision
// core: completed tracks and per-frame summaries.
//
// All database read/write operations belong here rather than in
// internal/vision. The hot path never touches SQL; the pipeline hands
// finished tracks and frame records to the ArchiveStore write-behind, and
// the report tooling reads aggregates back out.
package sqlite
