// Package providers implements the Client interface for each engine that
// can serve the semantic filter's classification calls.
//
// Supported providers: Anthropic's direct API, Claude on Google Vertex AI
// (OAuth2 via Application Default Credentials) and Claude on AWS Bedrock
// (SigV4 via the default AWS credential chain). All three speak the
// Messages API and differ only in endpoint and authentication.
//
// A Client performs exactly one HTTP call per Complete. Failures are
// classified into ErrRateLimited, ErrUpstreamUnavailable, ErrUpstreamTimeout
// and ErrAuth so the caller's retry policy can use [IsRetryable].
//
// Use [New] to obtain a Client from a run configuration.
package providers
