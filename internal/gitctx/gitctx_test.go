package gitctx

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

const twoFiles = `diff --git a/main.go b/main.go
--- a/main.go
+++ b/main.go
@@ -1,3 +1,4 @@
+import "fmt"
diff --git a/vendor/lib.go b/vendor/lib.go
--- a/vendor/lib.go
+++ b/vendor/lib.go
@@ -1,3 +1,4 @@
+package lib
`

func TestBuild_Exclude(t *testing.T) {
	res := build(twoFiles, Options{Exclude: []string{"vendor/"}})
	if strings.Contains(res.Diff, "vendor/lib.go") {
		t.Error("vendor/lib.go should be excluded")
	}
	if len(res.Files) != 1 || res.Files[0] != "main.go" {
		t.Errorf("Files = %v, want [main.go]", res.Files)
	}
}

func TestBuild_ExcludeBeforeTruncate(t *testing.T) {
	// main.go alone fits; together they do not
	limit := strings.Index(twoFiles, "diff --git a/vendor") + 1
	res := build(twoFiles, Options{MaxBytes: limit, Exclude: []string{"vendor/**"}})
	if res.Truncated {
		t.Error("excluded section should not count toward the byte budget")
	}

	res = build(twoFiles, Options{MaxBytes: limit})
	if !res.Truncated {
		t.Error("expected truncation")
	}
	if len(res.Files) != 1 {
		t.Errorf("Files = %v, want only the section that fit", res.Files)
	}
}

func TestDiffArgs(t *testing.T) {
	args := diffArgs(Options{ContextLines: 5})
	if args[len(args)-1] != "--" {
		t.Errorf("last arg = %q, want --", args[len(args)-1])
	}
	found := false
	for _, a := range args {
		if a == "-U5" {
			found = true
		}
	}
	if !found {
		t.Errorf("args %v missing -U5", args)
	}

	for _, a := range diffArgs(Options{}) {
		if strings.HasPrefix(a, "-U") {
			t.Errorf("unexpected context flag %q", a)
		}
	}
}

// setupTestRepo creates a temp git repo with one commit and returns its path.
func setupTestRepo(t *testing.T) (string, func(args ...string) string) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	dir := t.TempDir()

	run := func(args ...string) string {
		t.Helper()
		cmd := exec.Command(args[0], args[1:]...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test",
			"GIT_AUTHOR_EMAIL=test@test.com",
			"GIT_COMMITTER_NAME=test",
			"GIT_COMMITTER_EMAIL=test@test.com",
		)
		out, err := cmd.CombinedOutput()
		if err != nil {
			t.Fatalf("command %v failed: %v\n%s", args, err, out)
		}
		return strings.TrimSpace(string(out))
	}

	run("git", "init", "-q")
	run("git", "checkout", "-q", "-b", "main")
	os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() {}\n"), 0o644)
	os.MkdirAll(filepath.Join(dir, "vendor"), 0o755)
	os.WriteFile(filepath.Join(dir, "vendor", "lib.go"), []byte("package vendor\n"), 0o644)
	run("git", "add", "-A")
	run("git", "commit", "-q", "-m", "init")
	return dir, run
}

func TestRange(t *testing.T) {
	dir, run := setupTestRepo(t)
	base := run("git", "rev-parse", "HEAD")

	os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n\nfunc main() { exec(input) }\n"), 0o644)
	os.WriteFile(filepath.Join(dir, "vendor", "lib.go"), []byte("package vendor\n\nvar x = 1\n"), 0o644)
	run("git", "commit", "-q", "-am", "change")

	res, err := Range(context.Background(), base+"..HEAD", true, Options{Dir: dir, Exclude: []string{"vendor/"}})
	if err != nil {
		t.Fatalf("Range error: %v", err)
	}
	if res.Range != base+"...HEAD" {
		t.Errorf("Range = %q, want merge-base form", res.Range)
	}
	if !strings.Contains(res.Diff, "+func main() { exec(input) }") {
		t.Errorf("diff missing change:\n%s", res.Diff)
	}
	if len(res.Files) != 1 || res.Files[0] != "main.go" {
		t.Errorf("Files = %v, want [main.go]", res.Files)
	}
}

func TestRange_BadRevision(t *testing.T) {
	dir, _ := setupTestRepo(t)
	if _, err := Range(context.Background(), "nope..HEAD", false, Options{Dir: dir}); err == nil {
		t.Error("expected error for unknown revision")
	}
	if _, err := Range(context.Background(), "", false, Options{Dir: dir}); err == nil {
		t.Error("expected error for empty range")
	}
}

func TestStaged(t *testing.T) {
	dir, run := setupTestRepo(t)
	os.WriteFile(filepath.Join(dir, "new.go"), []byte("package main\n"), 0o644)
	run("git", "add", "new.go")

	res, err := Staged(context.Background(), Options{Dir: dir})
	if err != nil {
		t.Fatalf("Staged error: %v", err)
	}
	if len(res.Files) != 1 || res.Files[0] != "new.go" {
		t.Errorf("Files = %v, want [new.go]", res.Files)
	}
}
