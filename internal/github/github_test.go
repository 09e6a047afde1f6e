package github

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestGetPullRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Authorization = %q, want %q", r.Header.Get("Authorization"), "Bearer test-token")
		}
		if r.URL.Path != "/repos/owner/repo/pulls/42" {
			t.Errorf("Path = %q, want %q", r.URL.Path, "/repos/owner/repo/pulls/42")
		}
		w.Write([]byte(`{"number":42,"title":"Add login","body":"Adds a login form"}`))
	}))
	defer server.Close()

	c, err := NewClient(context.Background(), "test-token", server.URL+"/")
	if err != nil {
		t.Fatal(err)
	}
	pr, err := c.GetPullRequest(context.Background(), "owner", "repo", 42)
	if err != nil {
		t.Fatalf("GetPullRequest error: %v", err)
	}
	want := PullRequest{Repository: "owner/repo", Number: 42, Title: "Add login", Body: "Adds a login form"}
	if pr != want {
		t.Errorf("pr = %+v, want %+v", pr, want)
	}
}

func TestGetPullRequest_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		auth   bool
	}{
		{"not found", http.StatusNotFound, false},
		{"unauthorized", http.StatusUnauthorized, true},
		{"forbidden", http.StatusForbidden, true},
		{"server error", http.StatusBadGateway, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message":"nope"}`))
			}))
			defer server.Close()

			c, err := NewClient(context.Background(), "t", server.URL)
			if err != nil {
				t.Fatal(err)
			}
			_, err = c.GetPullRequest(context.Background(), "o", "r", 1)
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, ErrUnauthorized) != tt.auth {
				t.Errorf("errors.Is(ErrUnauthorized) = %v, want %v (err: %v)", !tt.auth, tt.auth, err)
			}
		})
	}
}

func TestNewClient_NoToken(t *testing.T) {
	if _, err := NewClient(context.Background(), "", ""); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func writeEvent(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "event.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFromEvent(t *testing.T) {
	long := strings.Repeat("x", maxBodyBytes+10)
	path := writeEvent(t, `{"pull_request":{"number":7,"title":"Fix auth","body":"`+long+`"},"repository":{"full_name":"acme/api"}}`)

	pr, err := FromEvent(path)
	if err != nil {
		t.Fatalf("FromEvent error: %v", err)
	}
	if pr.Number != 7 || pr.Title != "Fix auth" || pr.Repository != "acme/api" {
		t.Errorf("pr = %+v", pr)
	}
	if !strings.HasSuffix(pr.Body, "[truncated]") || len(pr.Body) > maxBodyBytes+20 {
		t.Errorf("body not truncated: %d bytes", len(pr.Body))
	}

	push := writeEvent(t, `{"ref":"refs/heads/main","repository":{"full_name":"acme/api"}}`)
	if _, err := FromEvent(push); !errors.Is(err, ErrNoPullRequest) {
		t.Errorf("push event err = %v, want ErrNoPullRequest", err)
	}
}

func TestResolve(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"number":3,"title":"From API","body":""}`))
	}))
	defer server.Close()

	env := func(m map[string]string) func(string) string {
		return func(k string) string { return m[k] }
	}
	ctx := context.Background()

	event := writeEvent(t, `{"pull_request":{"number":9,"title":"From event"},"repository":{"full_name":"a/b"}}`)
	pr, err := Resolve(ctx, env(map[string]string{"GITHUB_EVENT_PATH": event}))
	if err != nil || pr.Title != "From event" {
		t.Errorf("event: pr = %+v, err = %v", pr, err)
	}

	pr, err = Resolve(ctx, env(map[string]string{
		"PR_NUMBER":         "3",
		"GITHUB_REPOSITORY": "a/b",
		"GITHUB_TOKEN":      "t",
		"GITHUB_API_URL":    server.URL,
	}))
	if err != nil || pr.Title != "From API" || pr.Repository != "a/b" {
		t.Errorf("api: pr = %+v, err = %v", pr, err)
	}

	if _, err := Resolve(ctx, env(nil)); !errors.Is(err, ErrNoPullRequest) {
		t.Errorf("empty env err = %v, want ErrNoPullRequest", err)
	}
}

func TestParseRepository(t *testing.T) {
	owner, repo, err := ParseRepository("acme/api")
	if err != nil || owner != "acme" || repo != "api" {
		t.Errorf("ParseRepository = %q %q %v", owner, repo, err)
	}
	for _, bad := range []string{"", "acme", "/api", "acme/", "a/b/c"} {
		if _, _, err := ParseRepository(bad); err == nil {
			t.Errorf("ParseRepository(%q) should fail", bad)
		}
	}
}

func TestParseRemoteURL(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		wantOwner string
		wantRepo  string
		wantErr   bool
	}{
		{name: "HTTPS", url: "https://github.com/acme/api.git", wantOwner: "acme", wantRepo: "api"},
		{name: "HTTPS no .git", url: "https://github.com/acme/api", wantOwner: "acme", wantRepo: "api"},
		{name: "SSH", url: "git@github.com:acme/api.git", wantOwner: "acme", wantRepo: "api"},
		{name: "invalid", url: "not a url", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			owner, repo, err := ParseRemoteURL(tt.url)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr = %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if owner != tt.wantOwner || repo != tt.wantRepo {
				t.Errorf("got %q/%q, want %q/%q", owner, repo, tt.wantOwner, tt.wantRepo)
			}
		})
	}
}
