package parse

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Verdict is the semantic filter's judgment of one finding.
type Verdict struct {
	ID              string  `json:"id"`
	KeepFinding     bool    `json:"keep_finding"`
	ConfidenceScore float64 `json:"confidence_score"`
	// Scored is false when the response carried no usable score.
	Scored          bool   `json:"scored,omitempty"`
	ExclusionReason string `json:"exclusion_reason,omitempty"`
	Justification   string `json:"justification,omitempty"`
}

// Confidence returns ConfidenceScore on a 0..1 scale. Scores are requested on
// a 1..10 scale.
func (v Verdict) Confidence() float64 {
	c := v.ConfidenceScore / 10
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}

// VerdictResult is the outcome of ParseVerdicts.
type VerdictResult struct {
	Verdicts []Verdict
	Strategy string
	Dropped  int
}

// ParseVerdicts recovers verdicts from a semantic filter response with the
// same strategy chain Parse uses. Records without a keep decision are
// dropped. A verdict may omit its id when the request held one finding.
func ParseVerdicts(text string) (*VerdictResult, error) {
	recs, strategy, err := recoverRecords(text, nil, verdictKeys)
	if err != nil {
		return nil, err
	}
	res := &VerdictResult{Strategy: strategy}
	for _, rec := range recs {
		v, ok := decodeVerdict(rec)
		if !ok {
			res.Dropped++
			continue
		}
		res.Verdicts = append(res.Verdicts, v)
	}
	return res, nil
}

func decodeVerdict(rec json.RawMessage) (Verdict, bool) {
	f, err := decodeFields(rec)
	if err != nil {
		return Verdict{}, false
	}
	v := Verdict{
		ID:              strings.TrimSpace(f.str("id", "finding_id", "findingId")),
		ExclusionReason: f.str("exclusion_reason", "reason"),
		Justification:   f.str("justification", "explanation", "rationale"),
	}
	keep, ok := boolField(f, "keep_finding", "keep", "is_true_positive", "actionable")
	if !ok {
		verdict := strings.ToLower(f.str("verdict", "decision"))
		switch verdict {
		case "keep", "true_positive", "true-positive", "valid", "actionable":
			keep, ok = true, true
		case "drop", "exclude", "false_positive", "false-positive", "invalid", "not_actionable":
			keep, ok = false, true
		}
	}
	if !ok {
		return Verdict{}, false
	}
	v.KeepFinding = keep
	if s := f.str("confidence_score", "confidence", "score"); s != "" {
		if n, err := strconv.ParseFloat(s, 64); err == nil {
			v.ConfidenceScore = n
			v.Scored = true
		}
	}
	return v, true
}

func boolField(f fields, keys ...string) (bool, bool) {
	raw, ok := f.raw(keys...)
	if !ok {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes":
			return true, true
		case "no":
			return false, true
		}
	}
	return false, false
}

// String is used in decision reasons.
func (v Verdict) String() string {
	conf := "no confidence score"
	if v.Scored {
		conf = fmt.Sprintf("confidence %.1f/10", v.ConfidenceScore)
	}
	if v.KeepFinding {
		return "keep (" + conf + ")"
	}
	reason := v.ExclusionReason
	if reason == "" {
		reason = "not actionable"
	}
	return fmt.Sprintf("exclude: %s (%s)", reason, conf)
}
