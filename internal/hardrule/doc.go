// Package hardrule is the deterministic first filter stage.
//
// Rules are data: a Rule names a conjunction of predicates over finding
// fields and the reason recorded when it fires. The built-in defaults come
// first and user directives (YAML rules, excluded directories, disabled
// categories, confidence floors) are appended after them, so user input can
// only narrow what is kept.
package hardrule
