package findings

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ID derives the stable identifier of a finding from its dedup inputs.
func ID(path string, start, end int, category Category) string {
	data := fmt.Sprintf("%s:%d-%d:%s", path, start, end, category)
	h := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", h[:8])
}

// AssignID sets f.ID from its location and category.
func (f *Finding) AssignID() {
	f.ID = ID(f.FilePath, f.LineStart, f.LineEnd, f.Category)
}

// Ordinal confidence labels and the scores they map to.
var confidenceLabels = map[string]float64{
	"very high": 0.95,
	"high":      0.9,
	"medium":    0.6,
	"moderate":  0.6,
	"low":       0.3,
	"very low":  0.1,
}

// ParseConfidence interprets a model-supplied confidence value. Numbers in
// [0,1] are taken as-is, (1,10] are read as a ten-point scale and (10,100]
// as a percentage. Strings may be numeric or ordinal labels. The second
// return value is false when the value cannot be interpreted.
func ParseConfidence(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return scaleConfidence(n)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	return ParseConfidenceString(s)
}

// ParseConfidenceString is ParseConfidence for an already-decoded string.
func ParseConfidenceString(s string) (float64, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if v, ok := confidenceLabels[s]; ok {
		return v, true
	}
	s = strings.TrimSuffix(s, "%")
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return scaleConfidence(n)
}

func scaleConfidence(n float64) (float64, bool) {
	if math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0, false
	}
	switch {
	case n <= 1:
		return n, true
	case n <= 10:
		return n / 10, true
	case n <= 100:
		return n / 100, true
	default:
		return 0, false
	}
}
