package parse

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ottosulin/claude-code-security-review/internal/diff"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
)

const bareArray = `[{"file_path":"a.py","line_start":3,"line_end":4,"category":"injection","severity":"high","description":"SQL built from input","confidence":0.9}]`

func TestParse_Strict(t *testing.T) {
	res, err := Parse(bareArray, Options{Unit: "u1"})
	require.NoError(t, err)
	assert.Equal(t, StrategyStrict, res.Strategy)
	require.Len(t, res.Findings, 1)

	f := res.Findings[0]
	assert.Equal(t, "a.py", f.FilePath)
	assert.Equal(t, 3, f.LineStart)
	assert.Equal(t, 4, f.LineEnd)
	assert.Equal(t, findings.CategoryInjection, f.Category)
	assert.Equal(t, findings.SeverityHigh, f.Severity)
	assert.InDelta(t, 0.9, f.Confidence, 1e-9)
	assert.Equal(t, findings.StatusRaw, f.Status)
	assert.Equal(t, "u1", f.Unit)
	assert.Equal(t, findings.ID("a.py", 3, 4, findings.CategoryInjection), f.ID)
}

func TestParse_FencedMatchesBare(t *testing.T) {
	fenced := "Here are results:\n```json\n" + bareArray + "\n```\nThanks"
	want, err := Parse(bareArray, Options{})
	require.NoError(t, err)
	got, err := Parse(fenced, Options{})
	require.NoError(t, err)
	assert.Equal(t, StrategyUnwrap, got.Strategy)
	assert.Equal(t, want.Findings, got.Findings)
}

func TestParse_ProseWithStrayBrackets(t *testing.T) {
	text := "Found [2] issues, see {below}:\n" + bareArray + "\nDone."
	res, err := Parse(text, Options{})
	require.NoError(t, err)
	assert.Equal(t, StrategyUnwrap, res.Strategy)
	assert.Len(t, res.Findings, 1)
}

func TestParse_RepairUnterminated(t *testing.T) {
	text := `[{"file_path":"a.py","line":3,"category":"xss","severity":"medium","description":"reflected"},` +
		`{"file_path":"b.py","line":9,"category":"auth","severity":"high","descr`
	res, err := Parse(text, Options{})
	require.NoError(t, err)
	assert.Equal(t, StrategyRepair, res.Strategy)
	assert.Equal(t, 2, res.Records)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "a.py", res.Findings[0].FilePath)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "description", res.Dropped[0].Field)
	assert.Equal(t, 1, res.Dropped[0].Index)
}

func TestParse_RepairTrailingCommas(t *testing.T) {
	text := `[{"file_path":"a.py","line":1,"category":"crypto","severity":"low","description":"md5 for passwords",},]`
	res, err := Parse(text, Options{})
	require.NoError(t, err)
	assert.Equal(t, StrategyRepair, res.Strategy)
	assert.Len(t, res.Findings, 1)
}

func TestParse_RepairOpenString(t *testing.T) {
	text := "```json\n" + `[{"file_path":"a.py","line":1,"category":"crypto","severity":"low","description":"md5 used for pass`
	res, err := Parse(text, Options{})
	require.NoError(t, err)
	assert.Equal(t, StrategyRepair, res.Strategy)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "md5 used for pass", res.Findings[0].Description)
}

func TestParse_Truncate(t *testing.T) {
	text := `[{"file_path":"a.py","line":3,"category":"xss","severity":"medium","description":"reflected","confidence":tr`
	res, err := Parse(text, Options{})
	require.NoError(t, err)
	assert.Equal(t, StrategyTruncate, res.Strategy)
	require.Len(t, res.Findings, 1)
	assert.InDelta(t, 1.0, res.Findings[0].Confidence, 1e-9, "confidence defaults when cut off")
}

func TestParse_Shapes(t *testing.T) {
	one := `{"file_path":"a.py","line":1,"category":"auth","severity":"high","description":"missing check"}`
	tests := []struct {
		name string
		text string
		want int
	}{
		{"wrapper findings", `{"findings":[` + one + `],"analysis_summary":{"files_reviewed":1}}`, 1},
		{"wrapper vulnerabilities", `{"vulnerabilities":[` + one + `,` + one + `]}`, 2},
		{"single object", one, 1},
		{"empty array", `[]`, 0},
		{"empty wrapper", `{"findings":[]}`, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Parse(tt.text, Options{})
			require.NoError(t, err)
			assert.Len(t, res.Findings, tt.want)
		})
	}
}

func TestParse_FieldAliases(t *testing.T) {
	text := `[{"file":"./src/app.js","line":"10-12","type":"command_injection","severity":"CRITICAL",` +
		`"message":"exec with user input","recommendation":"use execFile","confidence":"high","tags":["RCE"]}]`
	res, err := Parse(text, Options{})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, "src/app.js", f.FilePath)
	assert.Equal(t, 10, f.LineStart)
	assert.Equal(t, 12, f.LineEnd)
	assert.Equal(t, findings.CategoryInjection, f.Category)
	assert.Equal(t, findings.SeverityCritical, f.Severity)
	assert.Equal(t, "exec with user input", f.Description)
	assert.Equal(t, "use execFile", f.Remediation)
	assert.InDelta(t, 0.9, f.Confidence, 1e-9)
	assert.Equal(t, []string{"rce"}, f.Tags)
}

func TestParse_SingleLineSetsEnd(t *testing.T) {
	text := `[{"file_path":"a.go","line":7,"category":"config","severity":"low","description":"debug on"}]`
	res, err := Parse(text, Options{})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, 7, res.Findings[0].LineStart)
	assert.Equal(t, 7, res.Findings[0].LineEnd)
}

func TestParse_DropsInvalidRecords(t *testing.T) {
	text := `[
		{"file_path":"ok.py","line":1,"category":"auth","severity":"high","description":"fine"},
		{"line":1,"category":"auth","severity":"high","description":"no path"},
		{"file_path":"x.py","line_start":9,"line_end":3,"category":"auth","severity":"high","description":"inverted"},
		{"file_path":"x.py","line":1,"category":"auth","severity":"urgent","description":"odd severity"},
		{"file_path":"x.py","line":1,"severity":"low","description":"no category"},
		{"file_path":"x.py","line":"abc","category":"auth","severity":"low","description":"bad line"},
		{"file_path":"x.py","line":1,"category":"auth","severity":"low","description":"bad confidence","confidence":"unsure"}
	]`
	res, err := Parse(text, Options{})
	require.NoError(t, err)
	assert.Equal(t, 7, res.Records)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, "ok.py", res.Findings[0].FilePath)

	fields := make([]string, 0, len(res.Dropped))
	for _, d := range res.Dropped {
		fields = append(fields, d.Field)
	}
	assert.Equal(t, []string{"file_path", "line_end", "severity", "category", "line_start", "confidence"}, fields)

	diag := res.Diagnostic("unit-7")
	assert.Equal(t, "unit-7", diag.Unit)
	assert.Equal(t, 1, diag.Kept)
	assert.Equal(t, 6, diag.Dropped)
	assert.Len(t, diag.Reasons, 6)
}

func TestParse_FileOutsideDiff(t *testing.T) {
	text := `[{"file_path":"a.py","line":1,"category":"auth","severity":"high","description":"x"},` +
		`{"file_path":"b/other.py","line":1,"category":"auth","severity":"high","description":"y"}]`
	res, err := Parse(text, Options{Files: diff.NewFileSet([]string{"a.py"})})
	require.NoError(t, err)
	require.Len(t, res.Findings, 1)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, "file_path", res.Dropped[0].Field)
	assert.Contains(t, res.Dropped[0].Reason, "other.py")
}

func TestParse_Malformed(t *testing.T) {
	for _, text := range []string{"", "   ", "No vulnerabilities were identified.", "[1, 2, 3]", `"just a string"`} {
		_, err := Parse(text, Options{})
		assert.ErrorIs(t, err, ErrMalformedOutput, "input %q", text)
	}
}

func TestParse_Deterministic(t *testing.T) {
	text := "Result:\n```\n" + `{"findings":[{"file_path":"z.go","line":2,"category":"xss","severity":"low","description":"a"},` +
		`{"file_path":"a.go","line":1,"category":"sqli","severity":"high","description":"b"}]}` + "\n```"
	first, err := Parse(text, Options{})
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Parse(text, Options{})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestParse_CustomChain(t *testing.T) {
	fenced := "```json\n" + bareArray + "\n```"
	_, err := Parse(fenced, Options{Chain: []Strategy{{Name: StrategyStrict, Recover: strict}}})
	assert.ErrorIs(t, err, ErrMalformedOutput)
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"no code fence", `{"key": "value"}`, `{"key": "value"}`},
		{"json code fence", "```json\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"JSON uppercase fence", "```JSON\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"generic fence", "```\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"no closing fence", "```json\n{\"key\": \"value\"}", `{"key": "value"}`},
		{"prose around fence", "Sure:\n```json\n[]\n```\nbye", `[]`},
		{"multiple fences (nested not supported)", "```json\n{\"outer\": \"```inner```\"}\n```", `{"outer": "`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripCodeFences(tt.input))
		})
	}
}

func TestBalance(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`[{"a":1`, `[{"a":1}]`},
		{`[{"a":"x`, `[{"a":"x"}]`},
		{`{"a":`, `{"a":null}`},
		{`{"a":1,"b`, `{"a":1}`},
		{`{"a":1, `, `{"a":1}`},
		{`[1,2,]`, `[1,2]`},
		{`{"a":"q\"`, `{"a":"q\""}`},
		{`{"a":[1,{"b":2`, `{"a":[1,{"b":2}]}`},
		{`[{"a":1}] trailing`, `[{"a":1}]`},
		{`{"a":"x\`, `{"a":"x"}`},
	}
	for _, tt := range tests {
		got := balance(tt.in)
		assert.Equal(t, tt.want, got, tt.in)
		assert.True(t, json.Valid([]byte(got)), "balance(%q) = %q is not valid JSON", tt.in, got)
	}
}

func TestParseVerdicts(t *testing.T) {
	text := "```json\n" + `{"verdicts":[
		{"id":"abc","keep_finding":false,"confidence_score":3,"exclusion_reason":"test-only code"},
		{"finding_id":"def","keep_finding":"true","confidence_score":"8","justification":"reachable"},
		{"id":"ghi","verdict":"false_positive"},
		{"id":"jkl"}
	]}` + "\n```"
	res, err := ParseVerdicts(text)
	require.NoError(t, err)
	assert.Equal(t, StrategyUnwrap, res.Strategy)
	assert.Equal(t, 1, res.Dropped)
	require.Len(t, res.Verdicts, 3)

	assert.Equal(t, "abc", res.Verdicts[0].ID)
	assert.False(t, res.Verdicts[0].KeepFinding)
	assert.InDelta(t, 0.3, res.Verdicts[0].Confidence(), 1e-9)
	assert.Contains(t, res.Verdicts[0].String(), "test-only code")

	assert.Equal(t, "def", res.Verdicts[1].ID)
	assert.True(t, res.Verdicts[1].KeepFinding)
	assert.InDelta(t, 0.8, res.Verdicts[1].Confidence(), 1e-9)
	assert.True(t, res.Verdicts[1].Scored)

	assert.False(t, res.Verdicts[2].KeepFinding)
	assert.False(t, res.Verdicts[2].Scored)
	assert.Contains(t, res.Verdicts[2].String(), "no confidence score")
}

func TestParseVerdicts_SingleObjectWithoutID(t *testing.T) {
	res, err := ParseVerdicts(`{"keep_finding": true, "confidence_score": 9, "justification": "exploitable"}`)
	require.NoError(t, err)
	require.Len(t, res.Verdicts, 1)
	assert.Empty(t, res.Verdicts[0].ID)
	assert.True(t, res.Verdicts[0].KeepFinding)
}

func TestParseVerdicts_Malformed(t *testing.T) {
	_, err := ParseVerdicts("I think these are all fine.")
	assert.ErrorIs(t, err, ErrMalformedOutput)
}
