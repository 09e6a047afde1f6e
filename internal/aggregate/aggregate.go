package aggregate

import (
	"sort"
	"time"

	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

// Duplicate is a finding folded into another during Merge.
type Duplicate struct {
	Finding    findings.Finding `json:"finding"`
	MergedInto string           `json:"merged_into"`
}

// Report is the merged, ordered result of one or more scan passes.
type Report struct {
	Findings  []findings.Finding  `json:"findings"`
	Merged    []Duplicate         `json:"merged,omitempty"`
	Decisions []findings.Decision `json:"decisions,omitempty"`
}

// Merge folds partial result lists into one deduplicated list. Findings on
// the same file and category whose line ranges overlap (after widening by
// tolerance) form a cluster; overlap chains, so A~B and B~C put all three
// in one cluster. Each cluster keeps its best member and records the rest.
func Merge(partials [][]findings.Finding, tolerance int, now time.Time) Report {
	type groupKey struct {
		path     string
		category findings.Category
	}
	groups := make(map[groupKey][]findings.Finding)
	var order []groupKey
	for _, part := range partials {
		for _, f := range part {
			k := groupKey{f.FilePath, f.Category}
			if _, ok := groups[k]; !ok {
				order = append(order, k)
			}
			groups[k] = append(groups[k], f.Clone())
		}
	}

	var rep Report
	for _, k := range order {
		g := groups[k]
		sort.SliceStable(g, func(i, j int) bool {
			if g[i].LineStart != g[j].LineStart {
				return g[i].LineStart < g[j].LineStart
			}
			if g[i].LineEnd != g[j].LineEnd {
				return g[i].LineEnd < g[j].LineEnd
			}
			return g[i].ID < g[j].ID
		})
		for start := 0; start < len(g); {
			end, maxEnd := start+1, g[start].LineEnd
			for end < len(g) && g[end].LineStart <= maxEnd+max(tolerance, 0) {
				maxEnd = max(maxEnd, g[end].LineEnd)
				end++
			}
			keep, dups := pick(g[start:end])
			rep.Findings = append(rep.Findings, keep)
			for _, d := range dups {
				rep.Merged = append(rep.Merged, Duplicate{Finding: d, MergedInto: keep.ID})
				rep.Decisions = append(rep.Decisions, findings.Decision{
					FindingID: d.ID,
					Stage:     findings.StageAggregate,
					Reason:    "merged-into:" + keep.ID,
					Outcome:   d.Status,
					Unit:      d.Unit,
					Timestamp: now,
				})
			}
			start = end
		}
	}

	Sort(rep.Findings)
	sort.SliceStable(rep.Merged, func(i, j int) bool {
		if rep.Merged[i].MergedInto != rep.Merged[j].MergedInto {
			return rep.Merged[i].MergedInto < rep.Merged[j].MergedInto
		}
		return rep.Merged[i].Finding.ID < rep.Merged[j].Finding.ID
	})
	sort.SliceStable(rep.Decisions, func(i, j int) bool {
		if rep.Decisions[i].Reason != rep.Decisions[j].Reason {
			return rep.Decisions[i].Reason < rep.Decisions[j].Reason
		}
		return rep.Decisions[i].FindingID < rep.Decisions[j].FindingID
	})
	return rep
}

// pick returns the retained member of a cluster and the others.
func pick(cluster []findings.Finding) (findings.Finding, []findings.Finding) {
	best := 0
	for i := 1; i < len(cluster); i++ {
		if better(cluster[i], cluster[best]) {
			best = i
		}
	}
	dups := make([]findings.Finding, 0, len(cluster)-1)
	for i, f := range cluster {
		if i != best {
			dups = append(dups, f)
		}
	}
	return cluster[best], dups
}

// better orders cluster members: higher severity, then higher confidence,
// then lower id.
func better(a, b findings.Finding) bool {
	if ra, rb := a.Severity.Rank(), b.Severity.Rank(); ra != rb {
		return ra > rb
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return a.ID < b.ID
}

// Sort orders findings by severity (critical first), then path, then start
// line, with id as the final tie break.
func Sort(list []findings.Finding) {
	sort.SliceStable(list, func(i, j int) bool {
		ri, rj := list[i].Severity.Rank(), list[j].Severity.Rank()
		if ri != rj {
			return ri > rj
		}
		if list[i].FilePath != list[j].FilePath {
			return list[i].FilePath < list[j].FilePath
		}
		if list[i].LineStart != list[j].LineStart {
			return list[i].LineStart < list[j].LineStart
		}
		return list[i].ID < list[j].ID
	})
}

// NewFindings returns the members of current with no baseline finding on
// the same dedup key. Order of current is preserved.
func NewFindings(current, baseline []findings.Finding, tolerance int) []findings.Finding {
	byFile := make(map[string][]findings.Finding, len(baseline))
	for _, b := range baseline {
		byFile[b.FilePath] = append(byFile[b.FilePath], b)
	}
	out := []findings.Finding{}
	for _, f := range current {
		seen := false
		for _, b := range byFile[f.FilePath] {
			if findings.SameKey(f, b, tolerance) {
				seen = true
				break
			}
		}
		if !seen {
			out = append(out, f)
		}
	}
	return out
}
