package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const defaultMaxTokens = 4096

// messagesClient speaks the Anthropic Messages API. The three providers
// differ only in endpoint, where the model id goes, and how requests are
// authenticated.
type messagesClient struct {
	name     string
	model    string
	endpoint string
	// version is sent as anthropic_version in the body; empty means the
	// direct API, which takes model in the body and version as a header.
	version string
	client  *http.Client
	sign    func(ctx context.Context, req *http.Request, payload []byte) error
}

func (c *messagesClient) Name() string  { return c.name }
func (c *messagesClient) Model() string { return c.model }

// Validate sends a one-token request.
func (c *messagesClient) Validate(ctx context.Context) error {
	_, err := c.Complete(ctx, Request{UserPrompt: "ping", MaxTokens: 1})
	if errors.Is(err, ErrInvalidResponse) {
		return nil
	}
	return err
}

// Complete performs one Messages call.
func (c *messagesClient) Complete(ctx context.Context, req Request) (Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}
	body := messagesRequest{
		MaxTokens: maxTokens,
		System:    req.SystemPrompt,
		Messages:  []message{{Role: "user", Content: req.UserPrompt}},
	}
	if c.version == "" {
		body.Model = c.model
	} else {
		body.AnthropicVersion = c.version
	}
	if req.Temperature > 0 {
		t := req.Temperature
		body.Temperature = &t
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return Response{}, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return Response{}, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.sign != nil {
		if err := c.sign(ctx, httpReq, payload); err != nil {
			return Response{}, fmt.Errorf("%w: signing request: %v", ErrAuth, err)
		}
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return Response{}, transportError(ctx, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return Response{}, transportError(ctx, fmt.Errorf("reading response: %w", err))
	}
	if httpResp.StatusCode != http.StatusOK {
		return Response{}, statusError(httpResp, respBody)
	}

	var result messagesResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return Response{}, fmt.Errorf("%w: parsing response: %v", ErrInvalidResponse, err)
	}
	var content strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	resp := Response{
		Content:      content.String(),
		InputTokens:  result.Usage.InputTokens,
		OutputTokens: result.Usage.OutputTokens,
		StopReason:   result.StopReason,
	}
	if resp.Content == "" {
		return resp, fmt.Errorf("%w: no text content (stop reason %q)", ErrInvalidResponse, result.StopReason)
	}
	return resp, nil
}

type messagesRequest struct {
	Model            string    `json:"model,omitempty"`
	AnthropicVersion string    `json:"anthropic_version,omitempty"`
	MaxTokens        int       `json:"max_tokens"`
	System           string    `json:"system,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	Messages         []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	Usage      usage          `json:"usage"`
	StopReason string         `json:"stop_reason"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
