package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ottosulin/claude-code-security-review/internal/aggregate"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
	"github.com/ottosulin/claude-code-security-review/internal/parse"
	"github.com/ottosulin/claude-code-security-review/internal/pipeline"
)

// SchemaVersion is bumped on incompatible layout changes.
const SchemaVersion = 1

// Tool names the producer in every artifact.
const Tool = "secreview"

// ErrUnsupportedSchema is returned when loading an artifact written by a
// newer schema.
var ErrUnsupportedSchema = errors.New("unsupported artifact schema")

// Artifact is the persisted record of one run.
type Artifact struct {
	SchemaVersion    int                   `json:"schema_version"`
	Tool             string                `json:"tool"`
	Version          string                `json:"version"`
	RunID            string                `json:"run_id"`
	StartedAt        time.Time             `json:"started_at"`
	FinishedAt       time.Time             `json:"finished_at"`
	Provider         string                `json:"provider,omitempty"`
	Model            string                `json:"model,omitempty"`
	RuleSetVersion   string                `json:"rule_set_version"`
	FindingsCount    int                   `json:"findings_count"`
	NewFindingsCount int                   `json:"new_findings_count"`
	Summary          aggregate.Summary     `json:"summary"`
	Findings         []findings.Finding    `json:"findings"`
	NewFindings      []findings.Finding    `json:"new_findings"`
	Excluded         []findings.Finding    `json:"excluded"`
	Merged           []aggregate.Duplicate `json:"merged"`
	Decisions        []findings.Decision   `json:"decisions"`
	FailedUnits      []pipeline.FailedUnit `json:"failed_units"`
	Diagnostics      []parse.Diagnostic    `json:"diagnostics"`
	SemanticCalls    int                   `json:"semantic_calls"`
	Unverified       int                   `json:"unverified"`
}

// Meta is the run metadata that does not come from the pipeline.
type Meta struct {
	Version        string
	Provider       string
	Model          string
	RuleSetVersion string
}

// New builds an artifact from a pipeline result. Nil slices are replaced
// with empty ones so consumers always see arrays.
func New(res *pipeline.Result, meta Meta) *Artifact {
	a := &Artifact{
		SchemaVersion:  SchemaVersion,
		Tool:           Tool,
		Version:        meta.Version,
		RunID:          uuid.NewString(),
		Provider:       meta.Provider,
		Model:          meta.Model,
		RuleSetVersion: meta.RuleSetVersion,
	}
	if res != nil {
		a.StartedAt = res.StartedAt.UTC()
		a.FinishedAt = res.FinishedAt.UTC()
		a.FindingsCount = res.Count
		a.NewFindingsCount = res.NewCount
		a.Findings = res.Findings
		a.NewFindings = res.NewFindings
		a.Excluded = res.Excluded
		a.Merged = res.Merged
		a.Decisions = res.Decisions
		a.FailedUnits = res.FailedUnits
		a.Diagnostics = res.Diagnostics
		a.SemanticCalls = res.SemanticCalls
		a.Unverified = res.Unverified
	}
	a.normalize()
	a.Summary = aggregate.Summarize(a.Findings)
	return a
}

func (a *Artifact) normalize() {
	if a.Findings == nil {
		a.Findings = []findings.Finding{}
	}
	if a.NewFindings == nil {
		a.NewFindings = []findings.Finding{}
	}
	if a.Excluded == nil {
		a.Excluded = []findings.Finding{}
	}
	if a.Merged == nil {
		a.Merged = []aggregate.Duplicate{}
	}
	if a.Decisions == nil {
		a.Decisions = []findings.Decision{}
	}
	if a.FailedUnits == nil {
		a.FailedUnits = []pipeline.FailedUnit{}
	}
	if a.Diagnostics == nil {
		a.Diagnostics = []parse.Diagnostic{}
	}
}

// Duration is the wall time of the run.
func (a *Artifact) Duration() time.Duration {
	return a.FinishedAt.Sub(a.StartedAt)
}

// Encode writes the artifact as indented JSON.
func (a *Artifact) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(a, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling artifact: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses an artifact. A bare JSON array is accepted as a findings
// list so hand-written baselines work.
func Decode(data []byte) (*Artifact, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, errors.New("empty artifact")
	}
	if trimmed[0] == '[' {
		var list []findings.Finding
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("parsing findings list: %w", err)
		}
		a := &Artifact{SchemaVersion: SchemaVersion, Tool: Tool, Findings: list, FindingsCount: len(list)}
		a.normalize()
		return a, nil
	}
	var a Artifact
	if err := json.Unmarshal(trimmed, &a); err != nil {
		return nil, fmt.Errorf("parsing artifact: %w", err)
	}
	if a.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: %d (max %d)", ErrUnsupportedSchema, a.SchemaVersion, SchemaVersion)
	}
	a.normalize()
	return &a, nil
}
