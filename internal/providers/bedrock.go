package providers

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/ottosulin/claude-code-security-review/internal/config"
)

const (
	bedrockAPIVersion = "bedrock-2023-05-31"
	bedrockService    = "bedrock"
)

func newBedrock(ctx context.Context, cfg config.Config, s settings) (*messagesClient, error) {
	region := cfg.Bedrock.Region
	creds := s.credentials
	if creds == nil {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
		if err != nil {
			return nil, fmt.Errorf("%w: loading AWS config: %v", ErrAuth, err)
		}
		creds = awsCfg.Credentials
	}
	base := fmt.Sprintf("https://bedrock-runtime.%s.amazonaws.com", region)
	if s.baseURL != "" {
		base = s.baseURL
	}
	model := BedrockModel(cfg.Model)
	signer := v4.NewSigner()

	return &messagesClient{
		name:     "bedrock",
		model:    model,
		endpoint: base + "/model/" + strings.ReplaceAll(model, ":", "%3A") + "/invoke",
		version:  bedrockAPIVersion,
		client:   s.httpClient,
		sign: func(ctx context.Context, req *http.Request, payload []byte) error {
			c, err := creds.Retrieve(ctx)
			if err != nil {
				return err
			}
			sum := sha256.Sum256(payload)
			return signer.SignHTTP(ctx, c, req, hex.EncodeToString(sum[:]), bedrockService, region, time.Now())
		},
	}, nil
}
