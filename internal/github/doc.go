// Package github reads pull-request metadata for the semantic filter.
//
// Inside GitHub Actions the PR title and description come from the event
// payload at GITHUB_EVENT_PATH. Elsewhere GITHUB_REPOSITORY and PR_NUMBER
// name the PR, which is fetched from the REST API with GITHUB_TOKEN.
package github
