package findings

import "time"

// Stage names the pipeline stage that recorded a Decision.
type Stage string

const (
	StageHardRule  Stage = "hard-rule"
	StageSemantic  Stage = "semantic"
	StageAggregate Stage = "aggregate"
)

// Decision records why a finding left the pipeline, or why it was kept when
// the semantic stage judged it. Decisions are retained for discarded findings.
type Decision struct {
	FindingID string    `json:"finding_id"`
	Stage     Stage     `json:"stage"`
	Reason    string    `json:"rule_or_reason"`
	Outcome   Status    `json:"outcome"`
	Unit      string    `json:"unit,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Clock returns the current time. Stages take one so tests can pin timestamps.
type Clock func() time.Time

// SystemClock is the wall clock in UTC.
func SystemClock() time.Time { return time.Now().UTC() }
