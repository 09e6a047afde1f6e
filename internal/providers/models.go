package providers

import (
	"regexp"
	"strings"
)

// modelName splits ids like claude-3-5-sonnet-v2-20241022 into the family,
// an optional revision and the release date.
var modelName = regexp.MustCompile(`^(claude-.+?)(?:-(v\d+))?-(\d{8})$`)

// VertexModel converts an Anthropic model id to Vertex AI form:
// claude-3-5-sonnet-v2-20241022 becomes claude-3-5-sonnet@20241022.
// Ids already in Vertex form, or not recognized, are returned unchanged.
func VertexModel(model string) string {
	if strings.Contains(model, "@") {
		return model
	}
	m := modelName.FindStringSubmatch(model)
	if m == nil {
		return model
	}
	return m[1] + "@" + m[3]
}

// BedrockModel converts an Anthropic model id to Bedrock form:
// claude-3-5-sonnet-v2-20241022 becomes anthropic.claude-3-5-sonnet-20241022-v2:0.
// Ids already carrying the anthropic. prefix (including cross-region
// inference profiles such as us.anthropic.…) are returned unchanged.
func BedrockModel(model string) string {
	if strings.Contains(model, "anthropic.") {
		return model
	}
	m := modelName.FindStringSubmatch(model)
	if m == nil {
		return model
	}
	rev := m[2]
	if rev == "" {
		rev = "v1"
	}
	return "anthropic." + m[1] + "-" + m[3] + "-" + rev + ":0"
}
