// Package parse turns free-form model output into validated findings.
//
// Recovery is an ordered chain of pure strategies tried strictest first:
// strict JSON, unwrapping code fences and prose, bracket repair of an
// unterminated document, and truncation back to the longest prefix that
// balances. The first strategy that yields a record container wins. Records
// are then validated one at a time so a bad record is dropped without
// failing its batch.
//
// The same chain parses semantic filter verdicts (ParseVerdicts).
package parse
