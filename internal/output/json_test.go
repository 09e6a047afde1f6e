package output

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ottosulin/claude-code-security-review/internal/artifact"
)

func TestJSONWriter(t *testing.T) {
	want := sampleArtifact()

	var buf bytes.Buffer
	w := &JSONWriter{}
	if err := w.Write(&buf, want); err != nil {
		t.Fatalf("Write error: %v", err)
	}

	got, err := artifact.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if got.RunID != want.RunID {
		t.Errorf("RunID = %q, want %q", got.RunID, want.RunID)
	}
	if got.FindingsCount != 2 || got.NewFindingsCount != 1 {
		t.Errorf("counts = %d/%d, want 2/1", got.FindingsCount, got.NewFindingsCount)
	}
	if len(got.Excluded) != 1 {
		t.Errorf("Excluded = %d, want 1", len(got.Excluded))
	}
	if len(got.FailedUnits) != 1 {
		t.Errorf("FailedUnits = %d, want 1", len(got.FailedUnits))
	}
}

func TestWriteArtifact_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	if err := WriteArtifact(sampleArtifact(), "json", path, nil); err != nil {
		t.Fatalf("WriteArtifact error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte(`"findings_count": 2`)) {
		t.Errorf("file missing findings_count:\n%s", data)
	}

	if err := WriteArtifact(sampleArtifact(), "nope", path, nil); err == nil {
		t.Error("unknown format should fail")
	}
}
