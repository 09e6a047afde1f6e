package findings

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// MaxTextLen caps free-text fields after sanitization.
const MaxTextLen = 4000

// SanitizeText normalizes model-produced text before it is stored. It applies
// NFKC, drops control and zero-width characters except newline and tab, and
// truncates to maxLen bytes without splitting a rune. Markup is kept as
// written; writers that render HTML escape it.
func SanitizeText(text string, maxLen int) string {
	text = normalizeUnicode(text)
	text = strings.TrimSpace(text)
	if maxLen > 0 && len(text) > maxLen {
		cut := maxLen
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}
	return text
}

func normalizeUnicode(text string) string {
	t := transform.Chain(
		norm.NFKC,
		runes.Remove(runes.Predicate(func(r rune) bool {
			if r == '\n' || r == '\t' {
				return false
			}
			if unicode.IsControl(r) {
				return true
			}
			switch r {
			case '\u200B', '\u200C', '\u200D', '\uFEFF':
				return true
			}
			return r >= '\u202A' && r <= '\u202E'
		})),
	)
	out, _, err := transform.String(t, text)
	if err != nil {
		return text
	}
	return out
}

// Sanitize cleans every free-text field of f in place.
func (f *Finding) Sanitize() {
	f.Title = SanitizeText(f.Title, 300)
	f.Description = SanitizeText(f.Description, MaxTextLen)
	f.Remediation = SanitizeText(f.Remediation, MaxTextLen)
	f.ExploitScenario = SanitizeText(f.ExploitScenario, MaxTextLen)
	for i, t := range f.Tags {
		f.Tags[i] = strings.ToLower(SanitizeText(t, 64))
	}
}
