package aggregate

import "github.com/ottosulin/claude-code-security-review/internal/findings"

// Counts tallies findings per severity.
type Counts struct {
	Low      int `json:"low"`
	Medium   int `json:"medium"`
	High     int `json:"high"`
	Critical int `json:"critical"`
}

// Summary is the headline of a report.
type Summary struct {
	Counts          Counts            `json:"counts"`
	Total           int               `json:"total"`
	HighestSeverity findings.Severity `json:"highest_severity,omitempty"`
	Unverified      int               `json:"unverified"`
}

// Summarize computes the summary for a finding list.
func Summarize(list []findings.Finding) Summary {
	s := Summary{Total: len(list)}
	for _, f := range list {
		switch f.Severity {
		case findings.SeverityLow:
			s.Counts.Low++
		case findings.SeverityMedium:
			s.Counts.Medium++
		case findings.SeverityHigh:
			s.Counts.High++
		case findings.SeverityCritical:
			s.Counts.Critical++
		}
		if f.Severity.Rank() > s.HighestSeverity.Rank() {
			s.HighestSeverity = f.Severity
		}
		if f.HasAnnotation(findings.AnnotationUnverified) {
			s.Unverified++
		}
	}
	return s
}

// AnyAtOrAbove reports whether a finding meets the fail-on threshold.
func AnyAtOrAbove(list []findings.Finding, threshold string) bool {
	for _, f := range list {
		if findings.MeetsThreshold(f.Severity, threshold) {
			return true
		}
	}
	return false
}
