// Package artifact defines the persisted record of a pipeline run and
// where it lives.
//
// An artifact carries the kept findings, the new findings relative to a
// baseline, every excluded or merged finding with the decision log that
// explains it, and the run metadata (timestamps, provider, model and rule
// set version). Stores write it as JSON, optionally gzip or zstd
// compressed, to a local path or an S3 object. A prior artifact doubles as
// the baseline for the next run.
package artifact
