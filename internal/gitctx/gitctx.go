package gitctx

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"

	"github.com/ottosulin/claude-code-security-review/internal/diff"
)

// Options controls how a diff is gathered.
type Options struct {
	// Dir is the repository working directory. Empty means the current one.
	Dir          string
	ContextLines int
	// MaxBytes truncates the diff at a section boundary. Zero means no limit.
	MaxBytes int
	// Exclude drops files matching these gitignore-style patterns.
	Exclude []string
}

// Result holds the collected diff and the files it touches.
type Result struct {
	Diff      string
	Files     []string
	Range     string
	Truncated bool
}

// Range returns the diff of a revision range such as origin/main...HEAD.
// A two-dot range is diffed against the merge base when mergeBase is set.
func Range(ctx context.Context, revRange string, mergeBase bool, opts Options) (Result, error) {
	if revRange == "" {
		return Result{}, errors.New("empty revision range")
	}
	r := revRange
	if mergeBase && strings.Contains(r, "..") && !strings.Contains(r, "...") {
		r = strings.Replace(r, "..", "...", 1)
	}
	out, err := gitOutput(ctx, opts.Dir, append([]string{"diff", r}, diffArgs(opts)...)...)
	if err != nil {
		return Result{}, fmt.Errorf("git diff %s: %w", revRange, err)
	}
	res := build(out, opts)
	res.Range = r
	return res, nil
}

// Staged returns the diff of the index against HEAD.
func Staged(ctx context.Context, opts Options) (Result, error) {
	out, err := gitOutput(ctx, opts.Dir, append([]string{"diff", "--cached"}, diffArgs(opts)...)...)
	if err != nil {
		return Result{}, fmt.Errorf("git diff --cached: %w", err)
	}
	return build(out, opts), nil
}

func diffArgs(opts Options) []string {
	args := []string{"--no-color", "--no-ext-diff"}
	if opts.ContextLines > 0 {
		args = append(args, fmt.Sprintf("-U%d", opts.ContextLines))
	}
	return append(args, "--")
}

// build filters excluded sections before truncating so excluded files do
// not consume the byte budget.
func build(text string, opts Options) Result {
	var matcher *ignore.GitIgnore
	if len(opts.Exclude) > 0 {
		matcher = ignore.CompileIgnoreLines(opts.Exclude...)
	}
	var b strings.Builder
	var res Result
	for _, sec := range diff.Sections(text) {
		if matcher != nil && sec.Path != "" && matcher.MatchesPath(sec.Path) {
			continue
		}
		if opts.MaxBytes > 0 && b.Len()+len(sec.Text) > opts.MaxBytes {
			res.Truncated = true
			break
		}
		b.WriteString(sec.Text)
	}
	res.Diff = b.String()
	res.Files = diff.Files(res.Diff)
	return res
}

func gitOutput(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("%s: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", err
	}
	return string(out), nil
}
