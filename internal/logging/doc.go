// Package logging builds the zerolog logger used throughout a run.
package logging
