package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3Store keeps an artifact as a single S3 object. Credentials and region
// come from the default AWS chain. SECREVIEW_S3_ENDPOINT points the client
// at an S3-compatible service with path-style addressing.
type S3Store struct {
	client *s3.Client
	bucket string
	key    string
}

// ParseS3Location splits s3://bucket/key.
func ParseS3Location(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parsing %s: %w", location, err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 location %q: want s3://bucket/key", location)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" || strings.HasSuffix(key, "/") {
		return "", "", fmt.Errorf("invalid s3 location %q: missing object key", location)
	}
	return u.Host, key, nil
}

// NewS3 returns a store for an s3:// location.
func NewS3(ctx context.Context, location string) (*S3Store, error) {
	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, err
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	var opts []func(*s3.Options)
	if endpoint := os.Getenv("SECREVIEW_S3_ENDPOINT"); endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	}
	return NewS3WithClient(s3.NewFromConfig(awsCfg, opts...), bucket, key), nil
}

// NewS3WithClient returns a store using an existing client.
func NewS3WithClient(client *s3.Client, bucket, key string) *S3Store {
	return &S3Store{client: client, bucket: bucket, key: key}
}

// Location returns the s3:// URL.
func (s *S3Store) Location() string { return "s3://" + s.bucket + "/" + s.key }

// Save uploads the artifact.
func (s *S3Store) Save(ctx context.Context, a *Artifact) error {
	data, err := marshal(a, s.key)
	if err != nil {
		return err
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(s.key)),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", s.Location(), err)
	}
	return nil
}

// Load downloads the artifact.
func (s *S3Store) Load(ctx context.Context) (*Artifact, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	var missing *types.NoSuchKey
	if errors.As(err, &missing) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Location())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download %s: %w", s.Location(), err)
	}
	defer resp.Body.Close()
	return unmarshal(resp.Body, s.key)
}
