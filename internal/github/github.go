package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const defaultAPIURL = "https://api.github.com"

// maxBodyBytes caps how much of a PR description is kept.
const maxBodyBytes = 16 << 10

// ErrUnauthorized is returned when GitHub rejects the token.
var ErrUnauthorized = errors.New("github authentication failed")

// ErrNoPullRequest means the environment names no pull request.
var ErrNoPullRequest = errors.New("no pull request in environment")

// PullRequest is the PR metadata handed to the semantic filter.
type PullRequest struct {
	Repository string `json:"repo_name"`
	Number     int    `json:"number"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

// Client provides read access to the GitHub REST API.
type Client struct {
	apiURL  string
	httpCli *http.Client
}

// NewClient returns a client authenticating with token. An empty apiURL
// means api.github.com.
func NewClient(ctx context.Context, token, apiURL string) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: GITHUB_TOKEN is not set", ErrUnauthorized)
	}
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	httpCli := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	httpCli.Timeout = 30 * time.Second
	return &Client{apiURL: strings.TrimRight(apiURL, "/"), httpCli: httpCli}, nil
}

// GetPullRequest fetches a pull request's title and description.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (PullRequest, error) {
	url := fmt.Sprintf("%s/repos/%s/%s/pulls/%d", c.apiURL, owner, repo, number)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return PullRequest{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return PullRequest{}, fmt.Errorf("fetching PR: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return PullRequest{}, fmt.Errorf("reading response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return PullRequest{}, fmt.Errorf("PR #%d not found in %s/%s", number, owner, repo)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return PullRequest{}, fmt.Errorf("%w: %s", ErrUnauthorized, strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK:
		return PullRequest{}, fmt.Errorf("GitHub API error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var pr struct {
		Number int    `json:"number"`
		Title  string `json:"title"`
		Body   string `json:"body"`
	}
	if err := json.Unmarshal(body, &pr); err != nil {
		return PullRequest{}, fmt.Errorf("parsing response: %w", err)
	}
	return PullRequest{
		Repository: owner + "/" + repo,
		Number:     pr.Number,
		Title:      pr.Title,
		Body:       truncate(pr.Body),
	}, nil
}

// FromEvent reads the pull request out of a GitHub Actions event payload.
func FromEvent(path string) (PullRequest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return PullRequest{}, fmt.Errorf("reading event payload: %w", err)
	}
	var ev struct {
		PullRequest *struct {
			Number int    `json:"number"`
			Title  string `json:"title"`
			Body   string `json:"body"`
		} `json:"pull_request"`
		Repository struct {
			FullName string `json:"full_name"`
		} `json:"repository"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return PullRequest{}, fmt.Errorf("parsing event payload: %w", err)
	}
	if ev.PullRequest == nil {
		return PullRequest{}, ErrNoPullRequest
	}
	return PullRequest{
		Repository: ev.Repository.FullName,
		Number:     ev.PullRequest.Number,
		Title:      ev.PullRequest.Title,
		Body:       truncate(ev.PullRequest.Body),
	}, nil
}

// Resolve finds the current pull request. The Actions event payload is
// preferred; otherwise GITHUB_REPOSITORY and PR_NUMBER select a PR that is
// fetched with GITHUB_TOKEN. getenv is os.Getenv outside tests.
func Resolve(ctx context.Context, getenv func(string) string) (PullRequest, error) {
	if path := getenv("GITHUB_EVENT_PATH"); path != "" {
		pr, err := FromEvent(path)
		if err == nil || !errors.Is(err, ErrNoPullRequest) {
			return pr, err
		}
	}
	n, err := strconv.Atoi(getenv("PR_NUMBER"))
	if err != nil || n <= 0 {
		return PullRequest{}, ErrNoPullRequest
	}
	owner, repo, err := ParseRepository(getenv("GITHUB_REPOSITORY"))
	if err != nil {
		if owner, repo, err = DetectRepo(); err != nil {
			return PullRequest{}, err
		}
	}
	c, err := NewClient(ctx, getenv("GITHUB_TOKEN"), getenv("GITHUB_API_URL"))
	if err != nil {
		return PullRequest{}, err
	}
	return c.GetPullRequest(ctx, owner, repo, n)
}

func truncate(s string) string {
	if len(s) <= maxBodyBytes {
		return s
	}
	return s[:maxBodyBytes] + "\n[truncated]"
}

// ParseRepository splits an "owner/repo" string.
func ParseRepository(s string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(s), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("invalid repository %q: want owner/repo", s)
	}
	return owner, repo, nil
}

var (
	httpsRemoteRe = regexp.MustCompile(`https?://[^/]+/([^/]+)/([^/.\s]+)`)
	sshRemoteRe   = regexp.MustCompile(`[^@]+@[^:]+:([^/]+)/([^/.\s]+)`)
)

// DetectRepo parses owner/repo from the git remote origin URL.
func DetectRepo() (owner, repo string, err error) {
	out, err := exec.Command("git", "remote", "get-url", "origin").Output()
	if err != nil {
		return "", "", fmt.Errorf("cannot detect repo: git remote get-url origin failed: %w", err)
	}
	return ParseRemoteURL(strings.TrimSpace(string(out)))
}

// ParseRemoteURL extracts owner/repo from a git remote URL.
func ParseRemoteURL(url string) (owner, repo string, err error) {
	url = strings.TrimSuffix(url, ".git")

	if m := httpsRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1], m[2], nil
	}
	if m := sshRemoteRe.FindStringSubmatch(url); len(m) == 3 {
		return m[1], m[2], nil
	}
	return "", "", fmt.Errorf("cannot parse owner/repo from remote URL: %s", url)
}
