package hardrule

import (
	"fmt"
	"path"
	"regexp"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ottosulin/claude-code-security-review/internal/config"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

// Rule is one exclusion predicate with the reason recorded when it fires.
type Rule struct {
	Name   string `yaml:"name" json:"name"`
	Reason string `yaml:"reason" json:"reason"`
	Match  Match  `yaml:"match" json:"match"`
}

// Match is a conjunction of predicates over typed finding fields. Empty
// predicates are ignored; a finding matches when every set predicate holds.
type Match struct {
	Categories      []findings.Category `yaml:"categories,omitempty" json:"categories,omitempty"`
	Extensions      []string            `yaml:"extensions,omitempty" json:"extensions,omitempty"`
	NotExtensions   []string            `yaml:"not_extensions,omitempty" json:"not_extensions,omitempty"`
	Paths           []string            `yaml:"paths,omitempty" json:"paths,omitempty"`
	PathPrefixes    []string            `yaml:"path_prefixes,omitempty" json:"path_prefixes,omitempty"`
	DescriptionAny  []string            `yaml:"description_any,omitempty" json:"description_any,omitempty"`
	DescriptionNone []string            `yaml:"description_none,omitempty" json:"description_none,omitempty"`
	TagsAny         []string            `yaml:"tags_any,omitempty" json:"tags_any,omitempty"`
	Severities      []findings.Severity `yaml:"severities,omitempty" json:"severities,omitempty"`
	BelowConfidence float64             `yaml:"below_confidence,omitempty" json:"below_confidence,omitempty"`
}

func (m Match) empty() bool {
	return len(m.Categories) == 0 && len(m.Extensions) == 0 && len(m.NotExtensions) == 0 &&
		len(m.Paths) == 0 && len(m.PathPrefixes) == 0 && len(m.DescriptionAny) == 0 &&
		len(m.DescriptionNone) == 0 && len(m.TagsAny) == 0 && len(m.Severities) == 0 &&
		m.BelowConfidence == 0
}

// compiled is a Rule with its patterns prepared for evaluation.
type compiled struct {
	Rule
	categories map[findings.Category]struct{}
	exts       map[string]struct{}
	notExts    map[string]struct{}
	paths      *ignore.GitIgnore
	descAny    []*regexp.Regexp
	descNone   []*regexp.Regexp
	severities map[findings.Severity]struct{}
}

func compile(r Rule) (*compiled, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, fmt.Errorf("%w: rule without a name", config.ErrInvalidConfiguration)
	}
	if r.Match.empty() {
		return nil, fmt.Errorf("%w: rule %q has no predicates", config.ErrInvalidConfiguration, r.Name)
	}
	if r.Match.BelowConfidence < 0 || r.Match.BelowConfidence > 1 {
		return nil, fmt.Errorf("%w: rule %q: below_confidence %v outside [0,1]", config.ErrInvalidConfiguration, r.Name, r.Match.BelowConfidence)
	}
	c := &compiled{Rule: r}
	if len(r.Match.Categories) > 0 {
		c.categories = make(map[findings.Category]struct{}, len(r.Match.Categories))
		for _, label := range r.Match.Categories {
			cat, err := parseCategory(string(label))
			if err != nil {
				return nil, fmt.Errorf("%w: rule %q: %v", config.ErrInvalidConfiguration, r.Name, err)
			}
			c.categories[cat] = struct{}{}
		}
	}
	c.exts = extSet(r.Match.Extensions)
	c.notExts = extSet(r.Match.NotExtensions)
	if len(r.Match.Paths) > 0 {
		for _, p := range r.Match.Paths {
			if strings.TrimSpace(p) == "" {
				return nil, fmt.Errorf("%w: rule %q: empty path pattern", config.ErrInvalidConfiguration, r.Name)
			}
		}
		c.paths = ignore.CompileIgnoreLines(r.Match.Paths...)
	}
	var err error
	if c.descAny, err = compileAll(r.Name, r.Match.DescriptionAny); err != nil {
		return nil, err
	}
	if c.descNone, err = compileAll(r.Name, r.Match.DescriptionNone); err != nil {
		return nil, err
	}
	if len(r.Match.Severities) > 0 {
		c.severities = make(map[findings.Severity]struct{}, len(r.Match.Severities))
		for _, s := range r.Match.Severities {
			sev, ok := findings.ParseSeverity(string(s))
			if !ok {
				return nil, fmt.Errorf("%w: rule %q: unknown severity %q", config.ErrInvalidConfiguration, r.Name, s)
			}
			c.severities[sev] = struct{}{}
		}
	}
	return c, nil
}

// parseCategory accepts taxonomy names and their aliases but rejects labels
// that would only normalize to other.
func parseCategory(label string) (findings.Category, error) {
	cat := findings.NormalizeCategory(label)
	if cat == "" || (cat == findings.CategoryOther && !strings.EqualFold(strings.TrimSpace(label), string(findings.CategoryOther))) {
		return "", fmt.Errorf("unknown category %q", label)
	}
	return cat, nil
}

func compileAll(rule string, patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, fmt.Errorf("%w: rule %q: pattern %q: %v", config.ErrInvalidConfiguration, rule, p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func extSet(exts []string) map[string]struct{} {
	if len(exts) == 0 {
		return nil
	}
	s := make(map[string]struct{}, len(exts))
	for _, e := range exts {
		e = strings.ToLower(strings.TrimSpace(e))
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		s[e] = struct{}{}
	}
	return s
}

// matches reports whether every set predicate holds for f.
func (c *compiled) matches(f findings.Finding) bool {
	m := c.Match
	if c.categories != nil {
		if _, ok := c.categories[f.Category]; !ok {
			return false
		}
	}
	ext := strings.ToLower(path.Ext(f.FilePath))
	if c.exts != nil {
		if _, ok := c.exts[ext]; !ok {
			return false
		}
	}
	if c.notExts != nil {
		if _, ok := c.notExts[ext]; ok {
			return false
		}
	}
	if c.paths != nil && !c.paths.MatchesPath(f.FilePath) {
		return false
	}
	if len(m.PathPrefixes) > 0 && !hasAnyPrefix(f.FilePath, m.PathPrefixes) {
		return false
	}
	text := f.Description
	if f.ExploitScenario != "" {
		text += "\n" + f.ExploitScenario
	}
	if len(c.descAny) > 0 && !anyMatch(c.descAny, text) {
		return false
	}
	if len(c.descNone) > 0 && anyMatch(c.descNone, text) {
		return false
	}
	if len(m.TagsAny) > 0 {
		hit := false
		for _, t := range m.TagsAny {
			if f.HasTag(t) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if c.severities != nil {
		if _, ok := c.severities[f.Severity]; !ok {
			return false
		}
	}
	if m.BelowConfidence > 0 && f.Confidence >= m.BelowConfidence {
		return false
	}
	return true
}

// hasAnyPrefix treats each prefix as a directory: "vendor" matches
// vendor/x.go but not vendored/x.go.
func hasAnyPrefix(p string, prefixes []string) bool {
	for _, pre := range prefixes {
		dir := strings.Trim(strings.TrimPrefix(strings.TrimSpace(pre), "./"), "/")
		if dir == "" {
			continue
		}
		if p == dir || strings.HasPrefix(p, dir+"/") {
			return true
		}
	}
	return false
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
