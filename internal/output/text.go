package output

import (
	"fmt"
	"io"
	"strings"

	"github.com/ottosulin/claude-code-security-review/internal/artifact"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

// severityOrder is the display order, most severe first.
var severityOrder = []findings.Severity{
	findings.SeverityCritical,
	findings.SeverityHigh,
	findings.SeverityMedium,
	findings.SeverityLow,
}

// TextWriter outputs a human-readable summary.
type TextWriter struct{}

func (t *TextWriter) Write(w io.Writer, a *artifact.Artifact) error {
	ew := &errWriter{w: w}
	c := a.Summary.Counts

	ew.printf("Security review (%s", a.Tool)
	if a.Version != "" {
		ew.printf(" %s", a.Version)
	}
	ew.println(")")
	if a.Model != "" {
		ew.printf("Model: %s/%s\n", a.Provider, a.Model)
	}
	ew.println(strings.Repeat("─", 60))
	ew.printf("Findings: %d total, %d new", a.FindingsCount, a.NewFindingsCount)
	if a.FindingsCount > 0 {
		ew.printf(" (%d critical, %d high, %d medium, %d low)", c.Critical, c.High, c.Medium, c.Low)
	}
	ew.println("")
	ew.printf("Filtered: %d excluded, %d merged", len(a.Excluded), len(a.Merged))
	if a.Unverified > 0 {
		ew.printf(", %d kept unverified", a.Unverified)
	}
	ew.println("")
	ew.println(strings.Repeat("─", 60))

	if len(a.FailedUnits) > 0 {
		ew.printf("\n%d scan unit(s) could not be parsed:\n", len(a.FailedUnits))
		for _, u := range a.FailedUnits {
			ew.printf("  %s: %s\n", u.Unit, u.Error)
		}
	}

	if a.FindingsCount == 0 {
		ew.println("\nNo security findings.")
		ew.printf("\n%s\n", strings.Repeat("─", 60))
		ew.printf("Completed in %dms\n", a.Duration().Milliseconds())
		return ew.err
	}

	grouped := groupBySeverity(a.Findings)
	for _, sev := range severityOrder {
		list := grouped[sev]
		if len(list) == 0 {
			continue
		}

		ew.printf("\n%s %s\n", severityIcon(sev), strings.ToUpper(string(sev)))
		ew.println(strings.Repeat("─", 40))

		for _, f := range list {
			ew.printf("\n  %s:%d-%d  %s\n", f.FilePath, f.LineStart, f.LineEnd, title(f))
			ew.printf("  Category: %s | Confidence: %.0f%%", f.Category, f.Confidence*100)
			if f.HasAnnotation(findings.AnnotationUnverified) {
				ew.printf(" | unverified")
			}
			ew.println("")

			for _, line := range wrapText(f.Description, 70) {
				ew.printf("    %s\n", line)
			}
			if f.ExploitScenario != "" {
				ew.println("  Exploit scenario:")
				for _, line := range wrapText(f.ExploitScenario, 70) {
					ew.printf("    %s\n", line)
				}
			}
			if f.Remediation != "" {
				ew.println("  Remediation:")
				for _, line := range wrapText(f.Remediation, 70) {
					ew.printf("    %s\n", line)
				}
			}
		}
	}

	ew.printf("\n%s\n", strings.Repeat("─", 60))
	ew.printf("Completed in %dms (%d semantic call(s))\n", a.Duration().Milliseconds(), a.SemanticCalls)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first error.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func (ew *errWriter) println(s string) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintln(ew.w, s)
}

// groupBySeverity buckets findings, keeping the artifact's order within
// each bucket.
func groupBySeverity(list []findings.Finding) map[findings.Severity][]findings.Finding {
	m := make(map[findings.Severity][]findings.Finding)
	for _, f := range list {
		m[f.Severity] = append(m[f.Severity], f)
	}
	return m
}

// title falls back to the category when the model gave no title.
func title(f findings.Finding) string {
	if f.Title != "" {
		return f.Title
	}
	return string(f.Category)
}

func severityIcon(s findings.Severity) string {
	switch s {
	case findings.SeverityCritical:
		return "[!!!]"
	case findings.SeverityHigh:
		return "[!!]"
	case findings.SeverityMedium:
		return "[!]"
	case findings.SeverityLow:
		return "[-]"
	default:
		return "[?]"
	}
}

func wrapText(text string, width int) []string {
	if len(text) <= width {
		return []string{text}
	}
	var lines []string
	var current strings.Builder
	for _, word := range strings.Fields(text) {
		if current.Len()+len(word)+1 > width && current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}
