package artifact

import (
	"fmt"
	"os"
)

// WriteGitHubOutputs appends findings-count and new-findings-count to the
// GitHub Actions output file at path. An empty path is a no-op.
func WriteGitHubOutputs(path string, a *Artifact) error {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening GitHub output file: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintf(f, "findings-count=%d\nnew-findings-count=%d\n", a.FindingsCount, a.NewFindingsCount); err != nil {
		return fmt.Errorf("writing GitHub outputs: %w", err)
	}
	return nil
}
