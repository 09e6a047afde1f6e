package semantic

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

const systemPrompt = `You are a senior application security engineer triaging candidate findings from an automated security review of a pull request.

For each finding decide whether it is a real, exploitable vulnerability introduced by the change that a security team should act on.

Exclude a finding when any of the following holds:
1. It is a denial-of-service, resource exhaustion or rate-limiting concern.
2. It is a memory safety issue in a memory-safe language.
3. It concerns documentation, comments, tests or example code only.
4. It is theoretical: no concrete attacker-controlled input reaches the sink.
5. It describes missing hardening or best practice with no demonstrated impact.
6. It depends on secrets stored on disk, environment variables or trusted configuration.
7. It is a regex injection, log spoofing or open redirect without demonstrated impact.

Rate your confidence that the finding is a true positive from 1 (certainly false) to 10 (certainly true).

You MUST respond with ONLY a JSON array, one object per finding, in this exact structure. No markdown, no preamble.
[
  {
    "id": "the finding id as given",
    "keep_finding": true,
    "confidence_score": 1-10,
    "exclusion_reason": "why the finding is excluded, or empty",
    "justification": "one or two sentences"
  }
]`

// PRContext is optional pull request metadata shown to the model.
type PRContext struct {
	Repository  string `json:"repo_name,omitempty"`
	Number      int    `json:"pr_number,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

func (p *PRContext) empty() bool {
	return p == nil || (p.Repository == "" && p.Number == 0 && p.Title == "" && p.Description == "")
}

// promptFinding is the subset of a finding the model sees.
type promptFinding struct {
	ID              string   `json:"id"`
	File            string   `json:"file"`
	LineStart       int      `json:"line_start"`
	LineEnd         int      `json:"line_end"`
	Category        string   `json:"category"`
	Severity        string   `json:"severity"`
	Title           string   `json:"title,omitempty"`
	Description     string   `json:"description"`
	ExploitScenario string   `json:"exploit_scenario,omitempty"`
	Remediation     string   `json:"remediation,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// SystemPrompt returns the system prompt. Custom instructions are appended
// after the built-in exclusion criteria.
func SystemPrompt(instructions string) string {
	instructions = strings.TrimSpace(instructions)
	if instructions == "" {
		return systemPrompt
	}
	return systemPrompt + "\n\nAdditional filtering instructions from the repository owners:\n" + instructions
}

// UserPrompt renders one batch. excerpts maps file paths to the diff
// context for that file; files appear in the order first referenced.
func UserPrompt(batch []findings.Finding, excerpts map[string]string, pr *PRContext) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Triage the following %d finding(s).\n", len(batch))

	if !pr.empty() {
		b.WriteString("\nPull request:\n")
		if pr.Repository != "" {
			fmt.Fprintf(&b, "Repository: %s\n", pr.Repository)
		}
		if pr.Number > 0 {
			fmt.Fprintf(&b, "Number: %d\n", pr.Number)
		}
		if pr.Title != "" {
			fmt.Fprintf(&b, "Title: %s\n", pr.Title)
		}
		if pr.Description != "" {
			fmt.Fprintf(&b, "Description:\n%s\n", pr.Description)
		}
	}

	list := make([]promptFinding, len(batch))
	for i, f := range batch {
		list[i] = promptFinding{
			ID:              f.ID,
			File:            f.FilePath,
			LineStart:       f.LineStart,
			LineEnd:         f.LineEnd,
			Category:        string(f.Category),
			Severity:        string(f.Severity),
			Title:           f.Title,
			Description:     f.Description,
			ExploitScenario: f.ExploitScenario,
			Remediation:     f.Remediation,
			Tags:            f.Tags,
		}
	}
	data, _ := json.MarshalIndent(list, "", "  ")
	b.WriteString("\n--- BEGIN FINDINGS ---\n")
	b.Write(data)
	b.WriteString("\n--- END FINDINGS ---\n")

	seen := make(map[string]bool)
	for _, f := range batch {
		if seen[f.FilePath] {
			continue
		}
		seen[f.FilePath] = true
		ctx := excerpts[f.FilePath]
		if ctx == "" {
			continue
		}
		fmt.Fprintf(&b, "\n--- BEGIN DIFF %s ---\n", f.FilePath)
		b.WriteString(ctx)
		if !strings.HasSuffix(ctx, "\n") {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "--- END DIFF %s ---\n", f.FilePath)
	}
	return b.String()
}
