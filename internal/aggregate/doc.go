// Package aggregate merges per-unit finding lists into one ordered,
// deduplicated report and computes the new-findings subset against a
// baseline. It is the only point where results of concurrent scan units meet.
package aggregate
