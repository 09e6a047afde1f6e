package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"golang.org/x/oauth2"

	"github.com/ottosulin/claude-code-security-review/internal/config"
)

// Request contains the data sent to the model.
type Request struct {
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int
	Temperature  float64
}

// Response contains the raw reply from the model.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
	StopReason   string
}

// TokensUsed is the sum of input and output tokens.
func (r Response) TokensUsed() int { return r.InputTokens + r.OutputTokens }

// Client is the engine abstraction the semantic filter calls.
type Client interface {
	// Complete performs a single call. Retries belong to the caller.
	Complete(ctx context.Context, req Request) (Response, error)
	// Name returns the provider name for logging.
	Name() string
	// Model returns the provider-specific model identifier in use.
	Model() string
	// Validate makes a minimal call to confirm credentials and connectivity.
	Validate(ctx context.Context) error
}

// settings collects Option values.
type settings struct {
	httpClient  *http.Client
	baseURL     string
	tokenSource oauth2.TokenSource
	credentials aws.CredentialsProvider
}

// Option customizes a client built by New.
type Option func(*settings)

// WithHTTPClient sets the base HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(s *settings) { s.httpClient = c } }

// WithBaseURL overrides the provider endpoint root.
func WithBaseURL(u string) Option { return func(s *settings) { s.baseURL = strings.TrimRight(u, "/") } }

// WithTokenSource supplies Vertex AI credentials instead of Application Default Credentials.
func WithTokenSource(ts oauth2.TokenSource) Option { return func(s *settings) { s.tokenSource = ts } }

// WithCredentials supplies Bedrock credentials instead of the default AWS chain.
func WithCredentials(p aws.CredentialsProvider) Option { return func(s *settings) { s.credentials = p } }

// New creates the client selected by cfg.Provider.
func New(ctx context.Context, cfg config.Config, opts ...Option) (Client, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	s := settings{}
	for _, o := range opts {
		o(&s)
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{Timeout: cfg.Timeout.Std()}
	}
	switch cfg.Provider {
	case "anthropic":
		return newAnthropic(cfg, s), nil
	case "vertex":
		return newVertex(ctx, cfg, s)
	case "bedrock":
		return newBedrock(ctx, cfg, s)
	default:
		return nil, fmt.Errorf("%w: unknown provider: %s", config.ErrInvalidConfiguration, cfg.Provider)
	}
}

// ValidateConfig checks the provider-specific settings New needs.
func ValidateConfig(cfg config.Config) error {
	switch cfg.Provider {
	case "anthropic":
		if cfg.Anthropic.APIKey == "" {
			return fmt.Errorf("%w: Anthropic API key is required (ANTHROPIC_API_KEY)", config.ErrInvalidConfiguration)
		}
	case "vertex":
		if cfg.Vertex.Project == "" {
			return fmt.Errorf("%w: Google Cloud project ID is required (GOOGLE_CLOUD_PROJECT)", config.ErrInvalidConfiguration)
		}
		if cfg.Vertex.Region == "" {
			return fmt.Errorf("%w: Google Cloud region is required (GOOGLE_CLOUD_REGION)", config.ErrInvalidConfiguration)
		}
	case "bedrock":
		if cfg.Bedrock.Region == "" {
			return fmt.Errorf("%w: AWS region is required (AWS_REGION)", config.ErrInvalidConfiguration)
		}
	default:
		return fmt.Errorf("%w: unknown provider: %s (supported: %s)", config.ErrInvalidConfiguration,
			cfg.Provider, strings.Join(config.Providers, ", "))
	}
	if cfg.Model == "" {
		return fmt.Errorf("%w: model is required (CLAUDE_MODEL)", config.ErrInvalidConfiguration)
	}
	return nil
}
