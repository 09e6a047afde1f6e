package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/ottosulin/claude-code-security-review/internal/artifact"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
	"github.com/ottosulin/claude-code-security-review/internal/pipeline"
)

func TestMarkdownWriter_NoFindings(t *testing.T) {
	var buf bytes.Buffer
	w := &MarkdownWriter{}
	if err := w.Write(&buf, artifact.New(&pipeline.Result{}, artifact.Meta{})); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "## Security Review") {
		t.Error("Missing heading")
	}
	if !strings.Contains(out, "No security findings") {
		t.Error("Missing no-findings message")
	}
	if strings.Contains(out, "<details>") {
		t.Error("No sections expected")
	}
}

func TestMarkdownWriter_OnlyNewFindingsListed(t *testing.T) {
	var buf bytes.Buffer
	w := &MarkdownWriter{}
	if err := w.Write(&buf, sampleArtifact()); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"| Critical | 1 |",
		"| **Total** | **2** (1 new) |",
		":warning: 1 scan unit(s)",
		"<summary>:rotating_light: CRITICAL (1)</summary>",
		"**`api/crypto.go:20-20`**",
		"_Not verified by the false-positive filter._",
		"**Exploit scenario:**",
		"1 excluded as false positives",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "SQL injection") {
		t.Error("Baseline finding should not be listed")
	}
}

func TestMarkdownWriter_NothingNew(t *testing.T) {
	a := sampleArtifact()
	a.NewFindings = []findings.Finding{}
	a.NewFindingsCount = 0

	var buf bytes.Buffer
	if err := (&MarkdownWriter{}).Write(&buf, a); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if !strings.Contains(buf.String(), "No new security findings") {
		t.Errorf("unexpected output:\n%s", buf.String())
	}
}

func TestMarkdownWriter_CodeRemediation(t *testing.T) {
	f := finding("db/query.go", 3, findings.CategoryInjection, findings.SeverityHigh, "sqli")
	f.Remediation = `db.Query("SELECT * FROM t WHERE id = $1", id)` + "\nreturn err == nil"
	a := artifact.New(&pipeline.Result{
		Findings:    []findings.Finding{f},
		Count:       1,
		NewFindings: []findings.Finding{f},
		NewCount:    1,
	}, artifact.Meta{})

	var buf bytes.Buffer
	if err := (&MarkdownWriter{}).Write(&buf, a); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if !strings.Contains(buf.String(), "```go\n") {
		t.Errorf("code remediation should be fenced as go:\n%s", buf.String())
	}
}

func TestMarkdownWriter_EscapesMarkup(t *testing.T) {
	f := finding("web/view.go", 8, findings.CategoryXSS, findings.SeverityHigh, "name is written into <div> via innerHTML when n > 0")
	f.ExploitScenario = "<img src=x onerror=alert(1)>"
	a := artifact.New(&pipeline.Result{
		Findings:    []findings.Finding{f},
		Count:       1,
		NewFindings: []findings.Finding{f},
		NewCount:    1,
	}, artifact.Meta{})

	var buf bytes.Buffer
	if err := (&MarkdownWriter{}).Write(&buf, a); err != nil {
		t.Fatalf("Write error: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "<div>") || strings.Contains(out, "<img") {
		t.Errorf("markup should be escaped:\n%s", out)
	}
	for _, want := range []string{"&lt;div&gt; via innerHTML when n &gt; 0", "&lt;img src=x onerror=alert(1)&gt;"} {
		if !strings.Contains(out, want) {
			t.Errorf("Output missing %q:\n%s", want, out)
		}
	}
}

func TestInferLang(t *testing.T) {
	tests := map[string]string{
		"main.go":      "go",
		"app/views.PY": "python",
		"infra/x.tf":   "hcl",
		"README":       "",
	}
	for path, want := range tests {
		if got := inferLang(path); got != want {
			t.Errorf("inferLang(%q) = %q, want %q", path, got, want)
		}
	}
}
