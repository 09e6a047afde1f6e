// Package diff splits unified git diffs into per-file sections and answers
// which files a change touched.
package diff
