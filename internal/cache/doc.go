// Package cache stores semantic-filter verdicts between runs.
//
// Entries are keyed by a SHA-256 hash of the model, the filtering
// instructions and the finding's content, so re-running on an unchanged
// diff costs no provider calls. Two backends exist: a directory of JSON
// files with a TTL ($XDG_CACHE_HOME/secreview by default), and redis for
// runners that share verdicts. All key material has been through secret
// redaction.
package cache
