// Package findings defines the data model shared by every pipeline stage.
//
// A Finding is created by the parser with status raw and moves exactly once
// into a terminal status (hard-filtered-out, semantic-filtered-out or kept).
// Decisions record each exit for audit. IDs are the first 16 hex characters
// of a SHA-256 over path, line range and category, so the same issue reported
// by two scan units gets the same ID.
package findings
