// Package output renders run artifacts for display or machine consumption.
//
// Four formats are supported:
//   - text: human-readable terminal summary (default)
//   - json: the full artifact, decision log included
//   - markdown: a PR-comment body for the comment-posting step
//   - sarif: SARIF v2.1.0 for upload to code scanning
//
// Use [GetWriter] to obtain a [Writer] for a format name, or
// [WriteArtifact] to render straight to a file or stdout.
package output
