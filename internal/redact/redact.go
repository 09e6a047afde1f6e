package redact

import (
	"regexp"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ottosulin/claude-code-security-review/internal/config"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

// Placeholder replaces every redacted span.
const Placeholder = "[REDACTED]"

// secretPatterns are regex heuristics for common secret shapes.
var secretPatterns = []*regexp.Regexp{
	// key/secret assignments
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|api[_-]?secret)\s*[:=]\s*["']?([A-Za-z0-9/+=_-]{20,})["']?`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`(?i)(aws[_-]?secret[_-]?access[_-]?key)\s*[:=]\s*["']?([A-Za-z0-9/+=]{40})["']?`),
	regexp.MustCompile(`(?i)(secret|token|password|passwd|credential)\s*[:=]\s*["']([^"']{8,})["']`),
	regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._-]{20,}`),
	// JWT
	regexp.MustCompile(`eyJ[A-Za-z0-9_-]{10,}\.eyJ[A-Za-z0-9_-]{10,}\.[A-Za-z0-9_-]{10,}`),
	regexp.MustCompile(`-----BEGIN\s+(?:RSA\s+|EC\s+|OPENSSH\s+)?PRIVATE KEY-----`),
	regexp.MustCompile(`gh[pousr]_[A-Za-z0-9_]{36,}`),
	regexp.MustCompile(`xox[bporas]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_-]{20,}`),
	regexp.MustCompile(`AIza[0-9A-Za-z_-]{35}`),
	regexp.MustCompile(`(?i)(postgres|postgresql|mysql|mongodb(?:\+srv)?|redis|amqp)://[^:\s/]+:[^@\s]+@`),
	regexp.MustCompile(`(?i)(key|secret|token)\s*[:=]\s*["']?[0-9a-f]{32,}["']?`),
}

// Secrets replaces detected secrets in text with Placeholder.
func Secrets(text string) string {
	result := text
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllLiteralString(result, Placeholder)
	}
	return result
}

// Redactor scrubs content before it is sent to a provider or written to a
// cache. The zero value passes content through unchanged.
type Redactor struct {
	secrets bool
	paths   *ignore.GitIgnore
}

// New builds a Redactor from the privacy configuration.
func New(p config.PrivacyConfig) *Redactor {
	r := &Redactor{secrets: p.RedactSecrets}
	if len(p.RedactPaths) > 0 {
		r.paths = ignore.CompileIgnoreLines(p.RedactPaths...)
	}
	return r
}

// PathRedacted reports whether path matches a redaction pattern, in which
// case none of the file's content may leave the process.
func (r *Redactor) PathRedacted(path string) bool {
	if r == nil || r.paths == nil {
		return false
	}
	return r.paths.MatchesPath(strings.TrimPrefix(path, "./"))
}

// Content redacts the content of one file.
func (r *Redactor) Content(path, content string) string {
	if r == nil {
		return content
	}
	if r.PathRedacted(path) {
		return Placeholder + " (file content redacted by path policy)\n"
	}
	if r.secrets {
		return Secrets(content)
	}
	return content
}

// Finding returns a copy of f whose free text has been scrubbed. Model
// descriptions routinely quote the offending line, secret included.
func (r *Redactor) Finding(f findings.Finding) findings.Finding {
	c := f.Clone()
	if r == nil || !r.secrets {
		return c
	}
	c.Title = Secrets(c.Title)
	c.Description = Secrets(c.Description)
	c.Remediation = Secrets(c.Remediation)
	c.ExploitScenario = Secrets(c.ExploitScenario)
	return c
}

// Mask shortens a credential for display: the first four characters stay,
// the rest become asterisks.
func Mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + strings.Repeat("*", 8)
}
