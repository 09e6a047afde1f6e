package parse

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

// Wrapper keys that hold the record list when the model returns an object.
var (
	findingKeys = []string{"findings", "vulnerabilities", "results", "issues"}
	verdictKeys = []string{"verdicts", "results", "analyses", "findings"}
)

// records splits a container into its record objects. An object carrying
// one of keys is a wrapper; any other object is a single record.
func records(doc json.RawMessage, keys []string) ([]json.RawMessage, bool) {
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 {
		return nil, false
	}
	if doc[0] == '[' {
		var list []json.RawMessage
		if err := json.Unmarshal(doc, &list); err != nil {
			return nil, false
		}
		return list, true
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(doc, &obj); err != nil {
		return nil, false
	}
	for _, k := range keys {
		inner, ok := obj[k]
		if !ok {
			continue
		}
		var list []json.RawMessage
		if err := json.Unmarshal(inner, &list); err != nil {
			return nil, false
		}
		return list, true
	}
	return []json.RawMessage{doc}, true
}

// fields is one decoded record with alias-aware accessors.
type fields map[string]json.RawMessage

func decodeFields(rec json.RawMessage) (fields, error) {
	var f fields
	if err := json.Unmarshal(rec, &f); err != nil {
		return nil, err
	}
	return f, nil
}

// raw returns the first present, non-null value among keys.
func (f fields) raw(keys ...string) (json.RawMessage, bool) {
	for _, k := range keys {
		if v, ok := f[k]; ok && string(bytes.TrimSpace(v)) != "null" {
			return v, true
		}
	}
	return nil, false
}

func (f fields) str(keys ...string) string {
	v, ok := f.raw(keys...)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		return s
	}
	// numbers and booleans are kept in their literal form
	t := strings.TrimSpace(string(v))
	if t != "" && t[0] != '{' && t[0] != '[' {
		return t
	}
	return ""
}

func (f fields) list(keys ...string) []string {
	v, ok := f.raw(keys...)
	if !ok {
		return nil
	}
	var list []string
	if err := json.Unmarshal(v, &list); err == nil {
		return list
	}
	var one string
	if err := json.Unmarshal(v, &one); err == nil && one != "" {
		return strings.Split(one, ",")
	}
	return nil
}

// lines reads a line number or a "start-end" range. ok is false when a value
// is present but cannot be read as a line.
func (f fields) lines(keys ...string) (start, end int, present, ok bool) {
	v, has := f.raw(keys...)
	if !has {
		return 0, 0, false, true
	}
	var n float64
	if err := json.Unmarshal(v, &n); err == nil {
		return int(n), int(n), true, n >= 0
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, 0, true, false
	}
	s = strings.TrimPrefix(strings.TrimSpace(s), "L")
	if a, b, found := strings.Cut(s, "-"); found {
		x, err1 := strconv.Atoi(strings.TrimSpace(a))
		y, err2 := strconv.Atoi(strings.TrimPrefix(strings.TrimSpace(b), "L"))
		if err1 != nil || err2 != nil {
			return 0, 0, true, false
		}
		return x, y, true, x >= 0
	}
	x, err := strconv.Atoi(s)
	if err != nil {
		return 0, 0, true, false
	}
	return x, x, true, x >= 0
}

// toFinding maps one model record onto a raw Finding. Field names vary across
// prompts and models, so each field accepts its common aliases.
func toFinding(f fields, index int) (findings.Finding, error) {
	out := findings.Finding{Status: findings.StatusRaw}

	out.FilePath = f.str("file_path", "file", "path", "filename", "filepath")

	// a record without any line is file-level and keeps 0-0
	start, end, _, ok := f.lines("line_start", "start_line", "startLine", "line")
	if !ok {
		return out, &findings.SchemaViolation{Index: index, Field: "line_start", Reason: "not a line number"}
	}
	if e, _, hasEnd, ok := f.lines("line_end", "end_line", "endLine"); hasEnd {
		if !ok {
			return out, &findings.SchemaViolation{Index: index, Field: "line_end", Reason: "not a line number"}
		}
		end = e
	}
	out.LineStart, out.LineEnd = start, end

	label := f.str("category", "type", "vulnerability_type", "vuln_type", "class")
	if strings.TrimSpace(label) == "" {
		return out, &findings.SchemaViolation{Index: index, Field: "category", Reason: "required"}
	}
	out.Category = findings.NormalizeCategory(label)

	sevLabel := f.str("severity", "level", "risk")
	sev, ok := findings.ParseSeverity(sevLabel)
	if !ok {
		reason := "required"
		if sevLabel != "" {
			reason = "unknown severity " + strconv.Quote(sevLabel)
		}
		return out, &findings.SchemaViolation{Index: index, Field: "severity", Reason: reason}
	}
	out.Severity = sev

	out.Confidence = 1.0
	if rawConf, has := f.raw("confidence", "confidence_score", "certainty"); has {
		c, ok := findings.ParseConfidence(rawConf)
		if !ok {
			return out, &findings.SchemaViolation{Index: index, Field: "confidence", Reason: "unreadable confidence " + string(rawConf)}
		}
		out.Confidence = c
	}

	out.Title = f.str("title", "name", "summary")
	out.Description = f.str("description", "message", "details", "issue")
	out.Remediation = f.str("remediation", "recommendation", "fix", "suggestion")
	out.ExploitScenario = f.str("exploit_scenario", "exploit", "attack_scenario")
	out.Tags = f.list("tags", "labels")
	return out, nil
}
