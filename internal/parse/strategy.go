package parse

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Strategy is one recovery attempt. Recover returns a JSON document holding
// records, or false to decline. Strategies are pure: the same text always
// yields the same answer.
type Strategy struct {
	Name    string
	Recover func(text string) (json.RawMessage, bool)
}

// Strategy names reported in diagnostics.
const (
	StrategyStrict   = "strict"
	StrategyUnwrap   = "unwrap"
	StrategyRepair   = "repair"
	StrategyTruncate = "truncate"
)

// DefaultChain is the recovery order, strictest first.
func DefaultChain() []Strategy {
	return []Strategy{
		{Name: StrategyStrict, Recover: strict},
		{Name: StrategyUnwrap, Recover: unwrap},
		{Name: StrategyRepair, Recover: repair},
		{Name: StrategyTruncate, Recover: truncate},
	}
}

// maxCandidates bounds how many opening brackets unwrap tries.
const maxCandidates = 64

func strict(text string) (json.RawMessage, bool) {
	t := strings.TrimSpace(text)
	if !isContainer([]byte(t)) {
		return nil, false
	}
	return json.RawMessage(t), true
}

// unwrap drops code fences and surrounding prose, then looks for the first
// top-level array or object that is valid on its own. An unterminated span
// means the document was cut off, which is left to repair.
func unwrap(text string) (json.RawMessage, bool) {
	for _, body := range []string{stripCodeFences(text), text} {
		for _, sp := range topLevelSpans(body) {
			if !sp.closed {
				break
			}
			cand := []byte(body[sp.start : sp.end+1])
			if isContainer(cand) {
				return json.RawMessage(cand), true
			}
		}
	}
	return nil, false
}

// repair balances an unterminated document: it closes an open string, drops
// dangling commas and keys, and appends the missing closers.
func repair(text string) (json.RawMessage, bool) {
	body := repairTarget(text)
	if body == "" {
		return nil, false
	}
	fixed := balance(body)
	if !isContainer([]byte(fixed)) {
		return nil, false
	}
	return json.RawMessage(fixed), true
}

// truncate walks back from the end over structural cut points and keeps the
// longest prefix that balances into a valid document.
func truncate(text string) (json.RawMessage, bool) {
	body := repairTarget(text)
	if body == "" {
		return nil, false
	}
	cuts := cutPoints(body)
	for i := len(cuts) - 1; i >= 0; i-- {
		c := cuts[i]
		prefix := body[:c.pos]
		if c.inclusive {
			prefix = body[:c.pos+1]
		}
		fixed := balance(prefix)
		if isContainer([]byte(fixed)) {
			return json.RawMessage(fixed), true
		}
	}
	return nil, false
}

// isContainer reports whether data is valid JSON shaped like a record
// container: an object, or an array whose elements are all objects.
func isContainer(data []byte) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || !json.Valid(data) {
		return false
	}
	switch data[0] {
	case '{':
		return true
	case '[':
		var elems []json.RawMessage
		if err := json.Unmarshal(data, &elems); err != nil {
			return false
		}
		for _, e := range elems {
			e = bytes.TrimSpace(e)
			if len(e) == 0 || e[0] != '{' {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// stripCodeFences returns the body of the first fenced block, or text
// unchanged when there is no fence. A missing closing fence keeps everything
// after the opening line.
func stripCodeFences(text string) string {
	open := strings.Index(text, "```")
	if open < 0 {
		return strings.TrimSpace(text)
	}
	rest := text[open+3:]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return strings.TrimSpace(rest)
	}
	rest = rest[nl+1:]
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

// repairTarget picks the region repair and truncate work on: fences are
// stripped and leading prose is skipped up to the first top-level span that
// never closes, or that closes into something balance can turn into a
// container.
func repairTarget(text string) string {
	body := stripCodeFences(text)
	for _, sp := range topLevelSpans(body) {
		if !sp.closed {
			return strings.TrimSpace(body[sp.start:])
		}
		cand := body[sp.start : sp.end+1]
		if isContainer([]byte(cand)) || isContainer([]byte(balance(cand))) {
			return cand
		}
	}
	return ""
}

type span struct {
	start, end int
	closed     bool
}

// topLevelSpans lists bracketed spans that are not nested in an earlier
// span. An unterminated span swallows the rest of s and ends the list.
func topLevelSpans(s string) []span {
	var out []span
	next := 0
	for _, start := range openPositions(s, maxCandidates) {
		if start < next {
			continue
		}
		end, closed := spanEnd(s, start)
		out = append(out, span{start: start, end: end, closed: closed})
		if !closed {
			break
		}
		next = end + 1
	}
	return out
}

// openPositions lists indexes of '[' and '{' that sit outside strings, up to
// limit entries.
func openPositions(s string, limit int) []int {
	var out []int
	inString, escaped := false, false
	for i := 0; i < len(s) && len(out) < limit; i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			// quotes before the first bracket are prose
			inString = len(out) > 0
		case '[', '{':
			out = append(out, i)
		}
	}
	return out
}

// spanEnd finds the index of the bracket that closes the one at start. The
// second result is false when s ends first.
func spanEnd(s string, start int) (int, bool) {
	var stack []byte
	inString, escaped := false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				// mismatched closer ends the span; it will not validate
				return i, true
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i, true
			}
		}
	}
	return len(s) - 1, false
}

type cut struct {
	pos       int
	inclusive bool
}

// cutPoints returns structural positions outside strings where a prefix can
// end: after a closing bracket, or just before a comma.
func cutPoints(s string) []cut {
	var out []cut
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '}', ']':
			out = append(out, cut{pos: i, inclusive: true})
		case ',':
			out = append(out, cut{pos: i})
		}
	}
	return out
}

// balance closes whatever s leaves open. Commas directly before a closer are
// removed, a trailing ':' gets a null value and a dangling object key is
// dropped.
func balance(s string) string {
	var b strings.Builder
	var stack []byte
	inString, escaped := false, false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '[':
			stack = append(stack, ']')
		case '{':
			stack = append(stack, '}')
		case ']', '}':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				// stray closer: stop here and let the stack close the rest
				return closeOut(b.String(), stack)
			}
			trimTrailingComma(&b)
			stack = stack[:len(stack)-1]
		}
		b.WriteByte(c)
		if len(stack) == 0 && (c == ']' || c == '}') {
			return b.String()
		}
	}
	out := b.String()
	if inString {
		if escaped {
			out = out[:len(out)-1]
		}
		out += `"`
	}
	return closeOut(out, stack)
}

func closeOut(out string, stack []byte) string {
	out = strings.TrimRight(out, " \t\r\n")
	for {
		trimmed := strings.TrimRight(strings.TrimSuffix(out, ","), " \t\r\n")
		if trimmed == out {
			break
		}
		out = trimmed
	}
	if len(stack) > 0 && stack[len(stack)-1] == '}' {
		switch {
		case strings.HasSuffix(out, ":"):
			out += "null"
		case endsWithDanglingKey(out):
			out = strings.TrimRight(out[:lastStringStart(out)], " \t\r\n")
			out = strings.TrimSuffix(out, ",")
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		out += string(stack[i])
	}
	return out
}

func trimTrailingComma(b *strings.Builder) {
	s := b.String()
	t := strings.TrimRight(s, " \t\r\n")
	if strings.HasSuffix(t, ",") {
		t = t[:len(t)-1]
		b.Reset()
		b.WriteString(t)
	}
}

// endsWithDanglingKey reports whether s ends with a quoted string that
// directly follows '{' or ',' which makes it an object key with no value.
func endsWithDanglingKey(s string) bool {
	if !strings.HasSuffix(s, `"`) {
		return false
	}
	start := lastStringStart(s)
	if start < 0 {
		return false
	}
	before := strings.TrimRight(s[:start], " \t\r\n")
	return strings.HasSuffix(before, "{") || strings.HasSuffix(before, ",")
}

// lastStringStart returns the index of the opening quote of the string that
// closes s, or -1.
func lastStringStart(s string) int {
	if !strings.HasSuffix(s, `"`) || len(s) < 2 {
		return -1
	}
	for i := len(s) - 2; i >= 0; i-- {
		if s[i] != '"' {
			continue
		}
		backslashes := 0
		for j := i - 1; j >= 0 && s[j] == '\\'; j-- {
			backslashes++
		}
		if backslashes%2 == 0 {
			return i
		}
	}
	return -1
}
