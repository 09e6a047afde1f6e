package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ottosulin/claude-code-security-review/internal/artifact"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

const (
	sarifVersion   = "2.1.0"
	sarifSchema    = "https://raw.githubusercontent.com/oasis-tcs/sarif-spec/main/sarif-2.1/schema/sarif-schema-2.1.0.json"
	informationURI = "https://github.com/ottosulin/claude-code-security-review"
)

// SARIFWriter outputs kept findings in SARIF v2.1.0 format.
type SARIFWriter struct{}

func (s *SARIFWriter) Write(w io.Writer, a *artifact.Artifact) error {
	data, err := json.MarshalIndent(buildSARIF(a), "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling SARIF: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing SARIF: %w", err)
	}
	_, err = fmt.Fprintln(w)
	return err
}

// SARIF schema types (v2.1.0)

type sarifLog struct {
	Version string     `json:"version"`
	Schema  string     `json:"$schema"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool       sarifTool          `json:"tool"`
	Results    []sarifResult      `json:"results"`
	Properties sarifRunProperties `json:"properties"`
}

type sarifRunProperties struct {
	RunID          string `json:"runId"`
	RuleSetVersion string `json:"ruleSetVersion"`
	Model          string `json:"model,omitempty"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	Name             string              `json:"name"`
	ShortDescription sarifMessage        `json:"shortDescription"`
	DefaultConfig    sarifDefaultConfig  `json:"defaultConfiguration"`
	Properties       sarifRuleProperties `json:"properties,omitempty"`
}

type sarifDefaultConfig struct {
	Level string `json:"level"`
}

type sarifRuleProperties struct {
	Tags []string `json:"tags,omitempty"`
}

type sarifResult struct {
	RuleID              string                `json:"ruleId"`
	Level               string                `json:"level"`
	Message             sarifMessage          `json:"message"`
	Locations           []sarifLocation       `json:"locations,omitempty"`
	PartialFingerprints map[string]string     `json:"partialFingerprints,omitempty"`
	Fixes               []sarifFix            `json:"fixes,omitempty"`
	Properties          sarifResultProperties `json:"properties"`
}

type sarifResultProperties struct {
	Severity   string  `json:"severity"`
	Confidence float64 `json:"confidence"`
	Unverified bool    `json:"unverified,omitempty"`
	New        bool    `json:"new"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLocation struct {
	PhysicalLocation sarifPhysicalLocation `json:"physicalLocation"`
}

type sarifPhysicalLocation struct {
	ArtifactLocation sarifArtifactLocation `json:"artifactLocation"`
	Region           *sarifRegion          `json:"region,omitempty"`
}

type sarifArtifactLocation struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine int `json:"startLine"`
	EndLine   int `json:"endLine"`
}

type sarifFix struct {
	Description sarifMessage `json:"description"`
}

func buildSARIF(a *artifact.Artifact) sarifLog {
	isNew := make(map[string]bool, len(a.NewFindings))
	for _, f := range a.NewFindings {
		isNew[f.ID] = true
	}

	var rules []sarifRule
	seen := make(map[string]bool)
	results := []sarifResult{}
	for _, f := range a.Findings {
		rid := ruleID(f.Category)
		if !seen[rid] {
			seen[rid] = true
			rules = append(rules, sarifRule{
				ID:               rid,
				Name:             string(f.Category),
				ShortDescription: sarifMessage{Text: "Security finding: " + string(f.Category)},
				DefaultConfig:    sarifDefaultConfig{Level: severityToLevel(f.Severity)},
				Properties:       sarifRuleProperties{Tags: []string{"security", string(f.Category)}},
			})
		}

		text := f.Description
		if f.Title != "" {
			text = f.Title + ": " + f.Description
		}
		loc := sarifPhysicalLocation{ArtifactLocation: sarifArtifactLocation{URI: f.FilePath}}
		// SARIF lines are 1-based; 0 means the location is the whole file.
		if f.LineStart > 0 {
			loc.Region = &sarifRegion{StartLine: f.LineStart, EndLine: max(f.LineEnd, f.LineStart)}
		}
		result := sarifResult{
			RuleID:              rid,
			Level:               severityToLevel(f.Severity),
			Message:             sarifMessage{Text: text},
			Locations:           []sarifLocation{{PhysicalLocation: loc}},
			PartialFingerprints: map[string]string{"secreviewFindingId/v1": f.ID},
			Properties: sarifResultProperties{
				Severity:   string(f.Severity),
				Confidence: f.Confidence,
				Unverified: f.HasAnnotation(findings.AnnotationUnverified),
				New:        isNew[f.ID],
			},
		}
		if f.Remediation != "" {
			result.Fixes = append(result.Fixes, sarifFix{Description: sarifMessage{Text: f.Remediation}})
		}
		results = append(results, result)
	}

	return sarifLog{
		Version: sarifVersion,
		Schema:  sarifSchema,
		Runs: []sarifRun{
			{
				Tool: sarifTool{
					Driver: sarifDriver{
						Name:           a.Tool,
						Version:        a.Version,
						InformationURI: informationURI,
						Rules:          rules,
					},
				},
				Results: results,
				Properties: sarifRunProperties{
					RunID:          a.RunID,
					RuleSetVersion: a.RuleSetVersion,
					Model:          a.Model,
				},
			},
		},
	}
}

// severityToLevel maps severity to a SARIF level.
func severityToLevel(s findings.Severity) string {
	switch s {
	case findings.SeverityCritical, findings.SeverityHigh:
		return "error"
	case findings.SeverityMedium:
		return "warning"
	default:
		return "note"
	}
}

func ruleID(c findings.Category) string {
	return "secreview/" + string(c)
}
