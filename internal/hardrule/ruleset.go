package hardrule

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ottosulin/claude-code-security-review/internal/config"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

// RuleSet is the ordered, compiled rule list. Evaluation is first match
// wins and the default is keep. A RuleSet is immutable and safe to share
// between concurrent scan units.
type RuleSet struct {
	rules   []*compiled
	user    int
	version string
}

// New compiles the defaults followed by the rules expanded from d.
func New(d Directives) (*RuleSet, error) {
	user, err := d.compileRules()
	if err != nil {
		return nil, err
	}
	all := append(Defaults(), user...)
	rs := &RuleSet{rules: make([]*compiled, 0, len(all)), user: len(user)}
	seen := make(map[string]struct{}, len(all))
	for _, r := range all {
		if _, dup := seen[r.Name]; dup {
			return nil, fmt.Errorf("%w: rule %q defined twice", config.ErrInvalidConfiguration, r.Name)
		}
		seen[r.Name] = struct{}{}
		c, err := compile(r)
		if err != nil {
			return nil, err
		}
		rs.rules = append(rs.rules, c)
	}
	rs.version = DefaultsVersion
	if len(user) > 0 {
		data, _ := json.Marshal(user)
		h := sha256.Sum256(data)
		rs.version = fmt.Sprintf("%s+%x", DefaultsVersion, h[:4])
	}
	return rs, nil
}

// Version identifies the rule set for run metadata.
func (rs *RuleSet) Version() string { return rs.version }

// Rules returns the rules in evaluation order.
func (rs *RuleSet) Rules() []Rule {
	out := make([]Rule, len(rs.rules))
	for i, c := range rs.rules {
		out[i] = c.Rule
	}
	return out
}

// UserRules reports how many rules came from directives.
func (rs *RuleSet) UserRules() int { return rs.user }

// Evaluate returns the first rule that excludes f.
func (rs *RuleSet) Evaluate(f findings.Finding) (Rule, bool) {
	for _, c := range rs.rules {
		if c.matches(f) {
			return c.Rule, true
		}
	}
	return Rule{}, false
}

// Outcome is the partition produced by Apply.
type Outcome struct {
	Kept      []findings.Finding
	Excluded  []findings.Finding
	Decisions []findings.Decision
}

// Apply partitions list. Inputs are not modified: excluded findings are
// copies moved to hard-filtered-out, kept findings stay raw for the next
// stage.
func (rs *RuleSet) Apply(list []findings.Finding, now time.Time) Outcome {
	var out Outcome
	for _, f := range list {
		f = f.Clone()
		rule, hit := rs.Evaluate(f)
		if !hit {
			out.Kept = append(out.Kept, f)
			continue
		}
		if err := f.Transition(findings.StatusHardFilteredOut); err != nil {
			// only raw findings are decided here; others pass through untouched
			out.Kept = append(out.Kept, f)
			continue
		}
		out.Excluded = append(out.Excluded, f)
		out.Decisions = append(out.Decisions, findings.Decision{
			FindingID: f.ID,
			Stage:     findings.StageHardRule,
			Reason:    rule.Name + ": " + rule.Reason,
			Outcome:   findings.StatusHardFilteredOut,
			Unit:      f.Unit,
			Timestamp: now,
		})
	}
	return out
}
