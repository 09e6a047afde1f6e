// Package pipeline runs the findings pipeline end to end.
//
// Each scan unit's raw model output is parsed, passed through the hard rules
// and then the semantic filter. Units run concurrently on a bounded worker
// group, and a unit whose output cannot be recovered is recorded as failed
// without stopping the others. The survivors of every unit are merged,
// ranked and compared against an optional baseline by package aggregate.
package pipeline
