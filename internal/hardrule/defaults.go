package hardrule

import "github.com/ottosulin/claude-code-security-review/internal/findings"

// DefaultsVersion identifies the built-in rule list in run metadata.
const DefaultsVersion = "defaults-v1"

var (
	cFamilyExtensions = []string{".c", ".cc", ".cpp", ".cxx", ".c++", ".h", ".hh", ".hpp", ".hxx", ".m", ".mm"}
	docExtensions     = []string{".md", ".markdown", ".mdx", ".rst", ".txt", ".adoc", ".asciidoc"}
	markupExtensions  = []string{".html", ".htm", ".jsx", ".tsx", ".vue", ".svelte"}

	// concreteImpact lists phrases that show an input-validation finding
	// leads somewhere. Findings describing none of them are generic.
	concreteImpact = []string{
		`inject`, `execut`, `\brce\b`, `travers`, `bypass`, `overflow`, `\bxss\b`, `cross.site`,
		`\bsql\b`, `command`, `redirect`, `ssrf`, `deserializ`, `escalat`, `exfiltrat`,
		`leak`, `disclos`, `arbitrary (file|code|read|write)`, `takeover`, `hijack`, `spoof`,
	}
)

// Defaults returns the built-in exclusion rules in evaluation order.
func Defaults() []Rule {
	return []Rule{
		{
			Name:   "dos-class",
			Reason: "denial-of-service, rate-limiting and resource-exhaustion findings are out of scope",
			Match: Match{Categories: []findings.Category{
				findings.CategoryDenialOfService,
				findings.CategoryRateLimiting,
				findings.CategoryResourceExhaustion,
			}},
		},
		{
			Name:   "memory-safety-in-safe-language",
			Reason: "memory-safety claim outside the C/C++ family",
			Match: Match{
				Categories:    []findings.Category{findings.CategoryMemorySafety},
				NotExtensions: cFamilyExtensions,
			},
		},
		{
			Name:   "documentation-file",
			Reason: "finding in a documentation file",
			Match:  Match{Extensions: docExtensions},
		},
		{
			Name:   "ssrf-in-client-markup",
			Reason: "SSRF in client-rendered markup has no server execution context",
			Match: Match{
				Categories: []findings.Category{findings.CategorySSRF},
				Extensions: markupExtensions,
			},
		},
		{
			Name:   "input-validation-no-impact",
			Reason: "input validation finding tagged as having no impact",
			Match: Match{
				Categories: []findings.Category{findings.CategoryInputValidation},
				TagsAny:    []string{"no-impact", "no_impact", "theoretical"},
			},
		},
		{
			Name:   "input-validation-generic",
			Reason: "generic input validation finding without a demonstrated concrete impact",
			Match: Match{
				Categories:      []findings.Category{findings.CategoryInputValidation},
				DescriptionNone: concreteImpact,
			},
		},
	}
}
