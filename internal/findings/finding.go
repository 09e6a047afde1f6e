package findings

import (
	"errors"
	"fmt"
	"strings"
)

// Severity is the ordinal severity of a finding.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns a numeric rank for sorting (higher = more severe). Unknown severities rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// ParseSeverity normalizes a model-supplied severity label. The second return
// value is false when the label is not one of the known severities.
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical", "crit":
		return SeverityCritical, true
	case "high", "error":
		return SeverityHigh, true
	case "medium", "med", "moderate", "warning":
		return SeverityMedium, true
	case "low", "info", "informational", "minor":
		return SeverityLow, true
	default:
		return "", false
	}
}

// MeetsThreshold returns true if severity is at or above the threshold.
func MeetsThreshold(s Severity, threshold string) bool {
	if threshold == "none" || threshold == "" {
		return false
	}
	t, ok := ParseSeverity(threshold)
	if !ok {
		return false
	}
	return s.Rank() >= t.Rank()
}

// Status is the lifecycle tag of a finding inside one pipeline invocation.
type Status string

const (
	StatusRaw                 Status = "raw"
	StatusHardFilteredOut     Status = "hard-filtered-out"
	StatusSemanticFilteredOut Status = "semantic-filtered-out"
	StatusKept                Status = "kept"
)

// Terminal reports whether the status is one of the three end states.
func (s Status) Terminal() bool {
	return s == StatusHardFilteredOut || s == StatusSemanticFilteredOut || s == StatusKept
}

// AnnotationUnverified marks a finding the semantic filter could not judge.
const AnnotationUnverified = "filter-unverified"

// ErrIllegalTransition is returned when a status change would leave a terminal state.
var ErrIllegalTransition = errors.New("illegal status transition")

// Finding is one candidate vulnerability reported by the model.
type Finding struct {
	ID              string   `json:"id"`
	FilePath        string   `json:"file_path" validate:"required"`
	LineStart       int      `json:"line_start" validate:"gte=0"`
	LineEnd         int      `json:"line_end" validate:"gtefield=LineStart"`
	Category        Category `json:"category" validate:"required,category"`
	Severity        Severity `json:"severity" validate:"required,oneof=low medium high critical"`
	Title           string   `json:"title,omitempty"`
	Description     string   `json:"description" validate:"required"`
	Remediation     string   `json:"remediation,omitempty"`
	ExploitScenario string   `json:"exploit_scenario,omitempty"`
	Confidence      float64  `json:"confidence" validate:"gte=0,lte=1"`
	Tags            []string `json:"tags,omitempty"`
	Status          Status   `json:"status"`
	Annotations     []string `json:"annotations,omitempty"`
	Unit            string   `json:"unit,omitempty"`
}

// Transition moves a raw finding into a terminal status. Any other move,
// including re-entering the current terminal state, is rejected.
func (f *Finding) Transition(to Status) error {
	if !to.Terminal() {
		return fmt.Errorf("%w: %s is not a terminal status", ErrIllegalTransition, to)
	}
	if f.Status != StatusRaw && f.Status != "" {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, f.Status, to)
	}
	f.Status = to
	return nil
}

// Annotate appends an annotation once.
func (f *Finding) Annotate(a string) {
	for _, existing := range f.Annotations {
		if existing == a {
			return
		}
	}
	f.Annotations = append(f.Annotations, a)
}

// HasAnnotation reports whether a is present.
func (f Finding) HasAnnotation(a string) bool {
	for _, existing := range f.Annotations {
		if existing == a {
			return true
		}
	}
	return false
}

// HasTag reports whether the model tagged the finding with tag (case-insensitive).
func (f Finding) HasTag(tag string) bool {
	for _, t := range f.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Overlaps reports whether the line ranges of a and b overlap once each is
// widened by tolerance lines.
func Overlaps(a, b Finding, tolerance int) bool {
	if tolerance < 0 {
		tolerance = 0
	}
	return a.LineStart <= b.LineEnd+tolerance && b.LineStart <= a.LineEnd+tolerance
}

// SameKey reports whether a and b share a dedup key: same file, same category
// and overlapping line ranges.
func SameKey(a, b Finding, tolerance int) bool {
	return a.FilePath == b.FilePath && a.Category == b.Category && Overlaps(a, b, tolerance)
}

// Clone returns a deep copy so callers can hand findings across stages
// without sharing slices.
func (f Finding) Clone() Finding {
	c := f
	if f.Tags != nil {
		c.Tags = append([]string(nil), f.Tags...)
	}
	if f.Annotations != nil {
		c.Annotations = append([]string(nil), f.Annotations...)
	}
	return c
}
