package hardrule

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ottosulin/claude-code-security-review/internal/config"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

var now = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func finding(path string, cat findings.Category, desc string) findings.Finding {
	f := findings.Finding{
		FilePath:    path,
		LineStart:   1,
		LineEnd:     2,
		Category:    cat,
		Severity:    findings.SeverityHigh,
		Description: desc,
		Confidence:  0.9,
		Status:      findings.StatusRaw,
	}
	f.AssignID()
	return f
}

func defaults(t *testing.T) *RuleSet {
	t.Helper()
	rs, err := New(Directives{})
	require.NoError(t, err)
	return rs
}

func TestDefaults_DenialOfServiceAlwaysExcluded(t *testing.T) {
	rs := defaults(t)
	severities := []findings.Severity{findings.SeverityLow, findings.SeverityCritical}
	paths := []string{"main.c", "app.py", "server.go", "index.html"}
	for _, sev := range severities {
		for _, p := range paths {
			f := finding(p, findings.CategoryDenialOfService, "unbounded loop leads to command execution")
			f.Severity = sev
			f.Confidence = 1
			f.Tags = []string{"critical"}
			rule, hit := rs.Evaluate(f)
			assert.True(t, hit, "%s/%s", p, sev)
			assert.Equal(t, "dos-class", rule.Name)
		}
	}
	for _, cat := range []findings.Category{findings.CategoryRateLimiting, findings.CategoryResourceExhaustion} {
		_, hit := rs.Evaluate(finding("api.go", cat, "no limit"))
		assert.True(t, hit, cat)
	}
}

func TestDefaults_MemorySafetyByExtension(t *testing.T) {
	rs := defaults(t)
	for _, p := range []string{"a.py", "b.js", "c.md", "d.go", "e.rs"} {
		_, hit := rs.Evaluate(finding(p, findings.CategoryMemorySafety, "buffer overflow"))
		assert.True(t, hit, "%s should be excluded", p)
	}
	for _, p := range []string{"a.c", "b.cpp", "c.h", "d.HPP", "src/e.cc"} {
		_, hit := rs.Evaluate(finding(p, findings.CategoryMemorySafety, "buffer overflow"))
		assert.False(t, hit, "%s should be retained", p)
	}
}

func TestDefaults_DocumentationFiles(t *testing.T) {
	rs := defaults(t)
	for _, p := range []string{"README.md", "docs/guide.rst", "NOTES.txt", "a/b.MARKDOWN"} {
		rule, hit := rs.Evaluate(finding(p, findings.CategoryInjection, "sql injection"))
		require.True(t, hit, p)
		assert.Equal(t, "documentation-file", rule.Name)
	}
}

func TestDefaults_SSRFInMarkup(t *testing.T) {
	rs := defaults(t)
	_, hit := rs.Evaluate(finding("web/page.tsx", findings.CategorySSRF, "fetch to user url"))
	assert.True(t, hit)
	_, hit = rs.Evaluate(finding("server/proxy.go", findings.CategorySSRF, "fetch to user url"))
	assert.False(t, hit)
}

func TestDefaults_InputValidation(t *testing.T) {
	rs := defaults(t)

	tagged := finding("api.go", findings.CategoryInputValidation, "allows path traversal to read secrets")
	tagged.Tags = []string{"no-impact"}
	rule, hit := rs.Evaluate(tagged)
	require.True(t, hit)
	assert.Equal(t, "input-validation-no-impact", rule.Name)

	generic := finding("api.go", findings.CategoryInputValidation, "parameter is not validated")
	rule, hit = rs.Evaluate(generic)
	require.True(t, hit)
	assert.Equal(t, "input-validation-generic", rule.Name)

	concrete := finding("api.go", findings.CategoryInputValidation, "enables path traversal outside the upload dir")
	_, hit = rs.Evaluate(concrete)
	assert.False(t, hit)

	viaScenario := finding("api.go", findings.CategoryInputValidation, "parameter is not validated")
	viaScenario.ExploitScenario = "attacker injects a header"
	_, hit = rs.Evaluate(viaScenario)
	assert.False(t, hit)
}

func TestDefaults_KeepByDefault(t *testing.T) {
	rs := defaults(t)
	_, hit := rs.Evaluate(finding("db.py", findings.CategoryInjection, "SQL injection via id"))
	assert.False(t, hit)
}

func TestApply_PartitionAndDecisions(t *testing.T) {
	rs := defaults(t)
	in := []findings.Finding{
		finding("db.py", findings.CategoryInjection, "SQL injection via id"),
		finding("api.go", findings.CategoryDenialOfService, "regex backtracking"),
		finding("README.md", findings.CategoryAuth, "token in docs"),
	}
	in[0].Unit = "u1"
	in[1].Unit = "u1"

	out := rs.Apply(in, now)
	require.Len(t, out.Kept, 1)
	require.Len(t, out.Excluded, 2)
	require.Len(t, out.Decisions, 2)

	assert.Equal(t, findings.StatusRaw, out.Kept[0].Status)
	for _, ex := range out.Excluded {
		assert.Equal(t, findings.StatusHardFilteredOut, ex.Status)
	}
	d := out.Decisions[0]
	assert.Equal(t, in[1].ID, d.FindingID)
	assert.Equal(t, findings.StageHardRule, d.Stage)
	assert.True(t, strings.HasPrefix(d.Reason, "dos-class: "))
	assert.Equal(t, "u1", d.Unit)
	assert.Equal(t, now, d.Timestamp)

	assert.Equal(t, findings.StatusRaw, in[1].Status, "input must not be mutated")
}

func TestApply_Idempotent(t *testing.T) {
	rs := defaults(t)
	in := []findings.Finding{
		finding("a.py", findings.CategoryMemorySafety, "use after free"),
		finding("a.c", findings.CategoryMemorySafety, "use after free"),
		finding("b.go", findings.CategoryXSS, "reflected xss"),
	}
	first := rs.Apply(in, now)
	second := rs.Apply(in, now)
	assert.Equal(t, first, second)
}

func TestDirectives_AdditiveOnly(t *testing.T) {
	d := Directives{
		ExcludeDirectories: []string{"vendor/", "third_party"},
		DisabledCategories: []string{"crypto", "cross_site_scripting"},
		MinConfidence:      map[string]float64{"injection": 0.8, "*": 0.3},
		Rules: []Rule{{
			Name:   "no-tests",
			Reason: "test fixtures",
			Match:  Match{Paths: []string{"**/testdata/**", "*_test.go"}},
		}},
	}
	rs, err := New(d)
	require.NoError(t, err)
	assert.Len(t, rs.Rules(), len(Defaults())+1+2+2+2)
	assert.Equal(t, 7, rs.UserRules())

	// defaults still come first
	assert.Equal(t, "dos-class", rs.Rules()[0].Name)

	cases := []struct {
		f    findings.Finding
		rule string
	}{
		{finding("vendor/lib/x.go", findings.CategoryAuth, "bypass"), "excluded-directory:vendor"},
		{finding("third_party/y.go", findings.CategoryAuth, "bypass"), "excluded-directory:third_party"},
		{finding("pkg/testdata/z.go", findings.CategoryAuth, "bypass"), "no-tests"},
		{finding("pkg/a_test.go", findings.CategoryAuth, "bypass"), "no-tests"},
		{finding("main.go", findings.CategoryCrypto, "md5"), "disabled-category:crypto"},
		{finding("main.go", findings.CategoryXSS, "xss"), "disabled-category:xss"},
	}
	for _, c := range cases {
		rule, hit := rs.Evaluate(c.f)
		require.True(t, hit, c.f.FilePath)
		assert.Equal(t, c.rule, rule.Name, c.f.FilePath)
	}

	low := finding("main.go", findings.CategoryInjection, "sql injection")
	low.Confidence = 0.7
	rule, hit := rs.Evaluate(low)
	require.True(t, hit)
	assert.Equal(t, "min-confidence:injection", rule.Name)

	low.Confidence = 0.85
	_, hit = rs.Evaluate(low)
	assert.False(t, hit)

	other := finding("main.go", findings.CategoryAuth, "bypass")
	other.Confidence = 0.2
	rule, hit = rs.Evaluate(other)
	require.True(t, hit)
	assert.Equal(t, "min-confidence:*", rule.Name)

	_, hit = rs.Evaluate(finding("vendored/x.go", findings.CategoryAuth, "bypass"))
	assert.False(t, hit, "directory prefix must not match sibling names")

	// every finding the defaults exclude is still excluded under directives
	base := defaults(t)
	for _, f := range []findings.Finding{
		finding("a.py", findings.CategoryMemorySafety, "overflow"),
		finding("a.md", findings.CategoryAuth, "x"),
		finding("a.go", findings.CategoryDenialOfService, "x"),
	} {
		_, byDefault := base.Evaluate(f)
		_, byUser := rs.Evaluate(f)
		assert.Equal(t, byDefault, byUser)
	}
}

func TestVersion(t *testing.T) {
	rs := defaults(t)
	assert.Equal(t, DefaultsVersion, rs.Version())

	d := Directives{DisabledCategories: []string{"crypto"}}
	a, err := New(d)
	require.NoError(t, err)
	b, err := New(d)
	require.NoError(t, err)
	assert.Equal(t, a.Version(), b.Version())
	assert.True(t, strings.HasPrefix(a.Version(), DefaultsVersion+"+"))
	assert.Len(t, a.Version(), len(DefaultsVersion)+1+8)

	c, err := New(Directives{DisabledCategories: []string{"auth"}})
	require.NoError(t, err)
	assert.NotEqual(t, a.Version(), c.Version())
}

func TestNew_InvalidConfiguration(t *testing.T) {
	tests := []struct {
		name string
		d    Directives
	}{
		{"no predicates", Directives{Rules: []Rule{{Name: "empty"}}}},
		{"bad regex", Directives{Rules: []Rule{{Name: "re", Match: Match{DescriptionAny: []string{"("}}}}}},
		{"unknown category", Directives{Rules: []Rule{{Name: "cat", Match: Match{Categories: []findings.Category{"quantum"}}}}}},
		{"unknown disabled category", Directives{DisabledCategories: []string{"quantum"}}},
		{"bad severity", Directives{Rules: []Rule{{Name: "sev", Match: Match{Severities: []findings.Severity{"urgent"}}}}}},
		{"confidence out of range", Directives{MinConfidence: map[string]float64{"auth": 1.5}}},
		{"duplicate name", Directives{Rules: []Rule{{Name: "dos-class", Match: Match{TagsAny: []string{"x"}}}}}},
		{"empty glob", Directives{Rules: []Rule{{Name: "g", Match: Match{Paths: []string{" "}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.d)
			assert.ErrorIs(t, err, config.ErrInvalidConfiguration)
		})
	}
}

func TestLoadDirectives(t *testing.T) {
	d, err := LoadDirectives("")
	require.NoError(t, err)
	assert.Empty(t, d.Rules)

	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := `
exclude_directories: [generated]
disabled_categories: [supply-chain]
min_confidence:
  auth: 0.6
rules:
  - name: fixtures
    reason: test fixtures are not shipped
    match:
      path_prefixes: [fixtures]
      severities: [low, medium]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	d, err = LoadDirectives(path)
	require.NoError(t, err)
	require.Len(t, d.Rules, 1)
	assert.Equal(t, "fixtures", d.Rules[0].Name)
	assert.Equal(t, []findings.Severity{"low", "medium"}, d.Rules[0].Match.Severities)
	assert.Equal(t, []string{"generated"}, d.ExcludeDirectories)
	assert.InDelta(t, 0.6, d.MinConfidence["auth"], 1e-9)

	rs, err := New(d)
	require.NoError(t, err)
	f := finding("fixtures/x.go", findings.CategoryAuth, "bypass")
	f.Severity = findings.SeverityLow
	rule, hit := rs.Evaluate(f)
	require.True(t, hit)
	assert.Equal(t, "fixtures", rule.Name)

	f.Severity = findings.SeverityHigh
	_, hit = rs.Evaluate(f)
	assert.False(t, hit)
}

func TestLoadDirectives_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("include_categories: [dos]\n"), 0o644))
	_, err := LoadDirectives(path)
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)
}

func TestLoadDirectives_Missing(t *testing.T) {
	_, err := LoadDirectives(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	a := Directives{ExcludeDirectories: []string{"a"}, MinConfidence: map[string]float64{"auth": 0.5}}
	b := Directives{ExcludeDirectories: []string{"b"}, MinConfidence: map[string]float64{"auth": 0.7, "xss": 0.4}}
	m := a.Merge(b)
	assert.Equal(t, []string{"a", "b"}, m.ExcludeDirectories)
	assert.InDelta(t, 0.7, m.MinConfidence["auth"], 1e-9)
	assert.InDelta(t, 0.4, m.MinConfidence["xss"], 1e-9)
	assert.Len(t, a.ExcludeDirectories, 1, "merge must not modify the receiver")
}
