package output

import (
	"fmt"
	"io"

	"github.com/ottosulin/claude-code-security-review/internal/artifact"
)

// JSONWriter outputs the full artifact as JSON.
type JSONWriter struct{}

func (j *JSONWriter) Write(w io.Writer, a *artifact.Artifact) error {
	data, err := a.Encode()
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing JSON: %w", err)
	}
	return nil
}
