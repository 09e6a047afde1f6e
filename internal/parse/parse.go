package parse

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ottosulin/claude-code-security-review/internal/diff"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

// ErrMalformedOutput is returned when no strategy recovers structured content.
var ErrMalformedOutput = errors.New("malformed output")

// Options controls one Parse call.
type Options struct {
	// Unit is stamped on every finding for traceability.
	Unit string
	// Files restricts file_path to the analyzed diff. Nil disables the check.
	Files diff.FileSet
	// Chain overrides DefaultChain.
	Chain []Strategy
}

// Result is the outcome of parsing one model response.
type Result struct {
	Findings []findings.Finding
	Strategy string
	Records  int
	Dropped  []findings.SchemaViolation
}

// Diagnostic summarizes which strategy succeeded and what was dropped.
type Diagnostic struct {
	Unit     string   `json:"unit,omitempty"`
	Strategy string   `json:"strategy"`
	Records  int      `json:"records"`
	Kept     int      `json:"kept"`
	Dropped  int      `json:"dropped"`
	Reasons  []string `json:"reasons,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Diagnostic returns the observability record for r.
func (r *Result) Diagnostic(unit string) Diagnostic {
	d := Diagnostic{
		Unit:     unit,
		Strategy: r.Strategy,
		Records:  r.Records,
		Kept:     len(r.Findings),
		Dropped:  len(r.Dropped),
	}
	for i := range r.Dropped {
		d.Reasons = append(d.Reasons, r.Dropped[i].Error())
	}
	return d
}

// Parse turns raw model output into validated findings. Records that violate
// the schema are dropped individually and reported in Result.Dropped.
func Parse(text string, opts Options) (*Result, error) {
	recs, strategy, err := recoverRecords(text, opts.Chain, findingKeys)
	if err != nil {
		return nil, err
	}
	res := &Result{Strategy: strategy, Records: len(recs), Findings: make([]findings.Finding, 0, len(recs))}
	for i, rec := range recs {
		f, err := decodeFinding(rec, i, opts)
		if err != nil {
			var sv *findings.SchemaViolation
			if !errors.As(err, &sv) {
				sv = &findings.SchemaViolation{Index: i, Reason: err.Error()}
			}
			res.Dropped = append(res.Dropped, *sv)
			continue
		}
		res.Findings = append(res.Findings, f)
	}
	return res, nil
}

func decodeFinding(rec json.RawMessage, index int, opts Options) (findings.Finding, error) {
	flds, err := decodeFields(rec)
	if err != nil {
		return findings.Finding{}, &findings.SchemaViolation{Index: index, Reason: "record is not an object"}
	}
	f, err := toFinding(flds, index)
	if err != nil {
		return findings.Finding{}, err
	}
	f.FilePath = diff.CleanPath(f.FilePath)
	f.Sanitize()
	f.Unit = opts.Unit
	if err := findings.Validate(f, index); err != nil {
		return findings.Finding{}, err
	}
	if !opts.Files.Contains(f.FilePath) {
		return findings.Finding{}, &findings.SchemaViolation{Index: index, Field: "file_path", Reason: fmt.Sprintf("%s is not in the analyzed diff", f.FilePath)}
	}
	f.AssignID()
	return f, nil
}

// recoverRecords runs the chain and returns the records of the first
// document that splits into records under keys.
func recoverRecords(text string, chain []Strategy, keys []string) ([]json.RawMessage, string, error) {
	if strings.TrimSpace(text) == "" {
		return nil, "", fmt.Errorf("%w: empty response", ErrMalformedOutput)
	}
	if len(chain) == 0 {
		chain = DefaultChain()
	}
	for _, s := range chain {
		doc, ok := s.Recover(text)
		if !ok {
			continue
		}
		recs, ok := records(doc, keys)
		if !ok {
			continue
		}
		return recs, s.Name, nil
	}
	return nil, "", fmt.Errorf("%w: no strategy recovered structured content from %d bytes", ErrMalformedOutput, len(text))
}
