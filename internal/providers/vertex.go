package providers

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ottosulin/claude-code-security-review/internal/config"
)

const (
	vertexAPIVersion = "vertex-2023-10-16"
	vertexScope      = "https://www.googleapis.com/auth/cloud-platform"
)

func newVertex(ctx context.Context, cfg config.Config, s settings) (*messagesClient, error) {
	ts := s.tokenSource
	if ts == nil {
		var err error
		ts, err = google.DefaultTokenSource(ctx, vertexScope)
		if err != nil {
			return nil, fmt.Errorf("%w: loading Google credentials: %v", ErrAuth, err)
		}
	}
	region, project := cfg.Vertex.Region, cfg.Vertex.Project
	base := fmt.Sprintf("https://%s-aiplatform.googleapis.com", region)
	if s.baseURL != "" {
		base = s.baseURL
	}
	model := VertexModel(cfg.Model)

	transport := s.httpClient.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	client := *s.httpClient
	client.Transport = &oauth2.Transport{Source: oauth2.ReuseTokenSource(nil, ts), Base: transport}

	return &messagesClient{
		name:  "vertex",
		model: model,
		endpoint: fmt.Sprintf("%s/v1/projects/%s/locations/%s/publishers/anthropic/models/%s:rawPredict",
			base, project, region, model),
		version: vertexAPIVersion,
		client:  &client,
	}, nil
}
