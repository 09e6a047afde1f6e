package providers

import (
	"context"
	"net/http"

	"github.com/ottosulin/claude-code-security-review/internal/config"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"
)

func newAnthropic(cfg config.Config, s settings) *messagesClient {
	base := anthropicBaseURL
	if cfg.Anthropic.BaseURL != "" {
		base = cfg.Anthropic.BaseURL
	}
	if s.baseURL != "" {
		base = s.baseURL
	}
	key := cfg.Anthropic.APIKey
	return &messagesClient{
		name:     "anthropic",
		model:    cfg.Model,
		endpoint: base + "/v1/messages",
		client:   s.httpClient,
		sign: func(_ context.Context, req *http.Request, _ []byte) error {
			req.Header.Set("x-api-key", key)
			req.Header.Set("anthropic-version", anthropicAPIVersion)
			return nil
		},
	}
}
