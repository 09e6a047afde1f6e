package output

import (
	"html"
	"io"
	"path/filepath"
	"strings"

	"github.com/ottosulin/claude-code-security-review/internal/artifact"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

// MarkdownWriter outputs a PR-comment body. New findings are listed in
// full; findings already in the baseline are only counted.
type MarkdownWriter struct{}

func (m *MarkdownWriter) Write(w io.Writer, a *artifact.Artifact) error {
	ew := &errWriter{w: w}
	c := a.Summary.Counts

	ew.printf("## Security Review\n\n")
	ew.printf("| Severity | Count |\n")
	ew.printf("|----------|-------|\n")
	ew.printf("| Critical | %d |\n", c.Critical)
	ew.printf("| High | %d |\n", c.High)
	ew.printf("| Medium | %d |\n", c.Medium)
	ew.printf("| Low | %d |\n", c.Low)
	ew.printf("| **Total** | **%d** (%d new) |\n\n", a.FindingsCount, a.NewFindingsCount)

	if len(a.FailedUnits) > 0 {
		ew.printf("> :warning: %d scan unit(s) returned unparseable output and were skipped.\n\n", len(a.FailedUnits))
	}

	if a.NewFindingsCount == 0 {
		if a.FindingsCount > 0 {
			ew.println("No new security findings. Existing findings are unchanged from the baseline.")
		} else {
			ew.println("No security findings. :white_check_mark:")
		}
		return ew.err
	}

	grouped := groupBySeverity(a.NewFindings)
	for _, sev := range severityOrder {
		list := grouped[sev]
		if len(list) == 0 {
			continue
		}

		ew.printf("<details>\n<summary>%s %s (%d)</summary>\n\n", mdSeverityIcon(sev), strings.ToUpper(string(sev)), len(list))

		for _, f := range list {
			ew.printf("### %s\n\n", html.EscapeString(title(f)))
			ew.printf("**`%s:%d-%d`** | %s | Confidence: %.0f%%\n\n",
				f.FilePath, f.LineStart, f.LineEnd, f.Category, f.Confidence*100)
			if f.HasAnnotation(findings.AnnotationUnverified) {
				ew.printf("_Not verified by the false-positive filter._\n\n")
			}
			ew.printf("%s\n\n", html.EscapeString(f.Description))

			if f.ExploitScenario != "" {
				ew.printf("**Exploit scenario:** %s\n\n", html.EscapeString(f.ExploitScenario))
			}
			if f.Remediation != "" {
				ew.printf("**Remediation:**\n\n")
				if looksLikeCode(f.Remediation) {
					ew.printf("```%s\n%s\n```\n\n", inferLang(f.FilePath), f.Remediation)
				} else {
					ew.printf("> %s\n\n", strings.ReplaceAll(html.EscapeString(f.Remediation), "\n", "\n> "))
				}
			}

			ew.printf("---\n\n")
		}

		ew.printf("</details>\n\n")
	}

	ew.printf("*%d excluded as false positives, %d merged as duplicates. Reviewed in %dms.*\n",
		len(a.Excluded), len(a.Merged), a.Duration().Milliseconds())

	return ew.err
}

func mdSeverityIcon(s findings.Severity) string {
	switch s {
	case findings.SeverityCritical:
		return ":rotating_light:"
	case findings.SeverityHigh:
		return ":red_circle:"
	case findings.SeverityMedium:
		return ":orange_circle:"
	case findings.SeverityLow:
		return ":yellow_circle:"
	default:
		return ":white_circle:"
	}
}

func looksLikeCode(s string) bool {
	for _, indicator := range []string{
		"func ", "return ", "const ", "def ", "import ",
		"{", "}", "=>", ":=", "==", "();",
	} {
		if strings.Contains(s, indicator) {
			return true
		}
	}
	return false
}

var langByExt = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".ts":   "typescript",
	".tsx":  "tsx",
	".jsx":  "jsx",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
	".c":    "c",
	".cpp":  "cpp",
	".cs":   "csharp",
	".php":  "php",
	".sh":   "bash",
	".sql":  "sql",
	".yaml": "yaml",
	".yml":  "yaml",
	".tf":   "hcl",
}

func inferLang(path string) string {
	return langByExt[strings.ToLower(filepath.Ext(path))]
}
