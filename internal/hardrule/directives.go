package hardrule

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ottosulin/claude-code-security-review/internal/config"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

// Directives are user amendments to the default rules. Every directive only
// adds exclusions; nothing here can re-admit a finding a default rule drops.
type Directives struct {
	Rules              []Rule             `yaml:"rules,omitempty"`
	ExcludeDirectories []string           `yaml:"exclude_directories,omitempty"`
	DisabledCategories []string           `yaml:"disabled_categories,omitempty"`
	MinConfidence      map[string]float64 `yaml:"min_confidence,omitempty"`
}

// FromConfig lifts the filter section of the run configuration into directives.
func FromConfig(f config.Filter) Directives {
	return Directives{
		ExcludeDirectories: f.ExcludeDirectories,
		DisabledCategories: f.DisabledCategories,
		MinConfidence:      f.MinConfidence,
	}
}

// LoadDirectives reads a YAML directives file. An empty path returns no directives.
func LoadDirectives(path string) (Directives, error) {
	if path == "" {
		return Directives{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Directives{}, fmt.Errorf("reading rules file: %w", err)
	}
	var d Directives
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&d); err != nil && !errors.Is(err, io.EOF) {
		return Directives{}, fmt.Errorf("%w: parsing rules file %s: %v", config.ErrInvalidConfiguration, path, err)
	}
	return d, nil
}

// Merge appends o to d. When both set a minimum confidence for the same
// category the stricter (higher) one wins.
func (d Directives) Merge(o Directives) Directives {
	out := Directives{
		Rules:              append(append([]Rule(nil), d.Rules...), o.Rules...),
		ExcludeDirectories: append(append([]string(nil), d.ExcludeDirectories...), o.ExcludeDirectories...),
		DisabledCategories: append(append([]string(nil), d.DisabledCategories...), o.DisabledCategories...),
	}
	if len(d.MinConfidence)+len(o.MinConfidence) > 0 {
		out.MinConfidence = make(map[string]float64, len(d.MinConfidence)+len(o.MinConfidence))
		for _, src := range []map[string]float64{d.MinConfidence, o.MinConfidence} {
			for k, v := range src {
				if v > out.MinConfidence[k] {
					out.MinConfidence[k] = v
				}
			}
		}
	}
	return out
}

// compileRules expands directives into rules in a stable order: explicit
// rules, excluded directories, disabled categories, then confidence floors
// sorted by category.
func (d Directives) compileRules() ([]Rule, error) {
	var out []Rule
	for i, r := range d.Rules {
		if strings.TrimSpace(r.Name) == "" {
			r.Name = fmt.Sprintf("user-rule-%d", i+1)
		}
		if r.Reason == "" {
			r.Reason = "excluded by user rule " + r.Name
		}
		out = append(out, r)
	}
	for _, dir := range d.ExcludeDirectories {
		dir = strings.Trim(strings.TrimSpace(dir), "/")
		if dir == "" {
			continue
		}
		out = append(out, Rule{
			Name:   "excluded-directory:" + dir,
			Reason: "file is under excluded directory " + dir,
			Match:  Match{PathPrefixes: []string{dir}},
		})
	}
	for _, label := range d.DisabledCategories {
		if strings.TrimSpace(label) == "" {
			continue
		}
		cat, err := parseCategory(label)
		if err != nil {
			return nil, fmt.Errorf("%w: disabled_categories: %v", config.ErrInvalidConfiguration, err)
		}
		out = append(out, Rule{
			Name:   "disabled-category:" + string(cat),
			Reason: "category " + string(cat) + " is disabled",
			Match:  Match{Categories: []findings.Category{cat}},
		})
	}

	keys := make([]string, 0, len(d.MinConfidence))
	for k := range d.MinConfidence {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		floor := d.MinConfidence[k]
		if floor <= 0 || floor > 1 {
			return nil, fmt.Errorf("%w: min_confidence[%s] = %v, want (0,1]", config.ErrInvalidConfiguration, k, floor)
		}
		r := Rule{
			Name:   "min-confidence:" + k,
			Reason: fmt.Sprintf("confidence below %.2f", floor),
			Match:  Match{BelowConfidence: floor},
		}
		if k != "*" && k != "default" {
			cat, err := parseCategory(k)
			if err != nil {
				return nil, fmt.Errorf("%w: min_confidence: %v", config.ErrInvalidConfiguration, err)
			}
			r.Name = "min-confidence:" + string(cat)
			r.Reason = fmt.Sprintf("%s confidence below %.2f", cat, floor)
			r.Match.Categories = []findings.Category{cat}
		}
		out = append(out, r)
	}
	return out, nil
}
