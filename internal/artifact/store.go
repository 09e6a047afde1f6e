package artifact

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// maxArtifactBytes caps decompressed artifact size.
const maxArtifactBytes = 64 << 20

// ErrNotFound is returned by Load when no artifact exists at the location.
var ErrNotFound = errors.New("artifact not found")

// Store persists and retrieves artifacts.
type Store interface {
	Save(ctx context.Context, a *Artifact) error
	Load(ctx context.Context) (*Artifact, error)
	Location() string
}

// Open returns the store for location: s3://bucket/key for S3, anything
// else is a local path. The compression codec follows the extension
// (.gz, .zst, otherwise plain JSON), for local paths and S3 keys alike.
func Open(ctx context.Context, location string) (Store, error) {
	if location == "" {
		return nil, fmt.Errorf("artifact location is empty")
	}
	if strings.HasPrefix(location, "s3://") {
		return NewS3(ctx, location)
	}
	return &FileStore{path: location}, nil
}

// LoadBaseline returns the kept findings of a prior artifact at location.
func LoadBaseline(ctx context.Context, location string) (*Artifact, error) {
	s, err := Open(ctx, location)
	if err != nil {
		return nil, err
	}
	a, err := s.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading baseline %s: %w", location, err)
	}
	return a, nil
}

// FileStore keeps an artifact on the local filesystem.
type FileStore struct {
	path string
}

// NewFileStore returns a store for path.
func NewFileStore(path string) *FileStore { return &FileStore{path: path} }

// Location returns the file path.
func (s *FileStore) Location() string { return s.path }

// Save writes the artifact atomically.
func (s *FileStore) Save(_ context.Context, a *Artifact) error {
	data, err := marshal(a, s.path)
	if err != nil {
		return err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating artifact directory: %w", err)
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing artifact: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing artifact: %w", err)
	}
	return nil
}

// Load reads the artifact.
func (s *FileStore) Load(_ context.Context) (*Artifact, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("opening artifact: %w", err)
	}
	defer f.Close()
	return unmarshal(f, s.path)
}

// marshal encodes a and compresses it according to name's extension.
func marshal(a *Artifact, name string) ([]byte, error) {
	data, err := a.Encode()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	switch codec(name) {
	case "gzip":
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("compressing artifact: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compressing artifact: %w", err)
		}
	case "zstd":
		zw, err := zstd.NewWriter(&buf)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("compressing artifact: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compressing artifact: %w", err)
		}
	default:
		return data, nil
	}
	return buf.Bytes(), nil
}

// unmarshal decompresses r according to name's extension and decodes it.
func unmarshal(r io.Reader, name string) (*Artifact, error) {
	switch codec(name) {
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("gzip reader error: %w", err)
		}
		defer zr.Close()
		r = zr
	case "zstd":
		zr, err := zstd.NewReader(r, zstd.WithDecoderMaxMemory(maxArtifactBytes), zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd reader error: %w", err)
		}
		defer zr.Close()
		r = zr
	}
	data, err := io.ReadAll(io.LimitReader(r, maxArtifactBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	if len(data) > maxArtifactBytes {
		return nil, fmt.Errorf("artifact exceeds %d bytes", maxArtifactBytes)
	}
	return Decode(data)
}

func codec(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".gz", ".gzip":
		return "gzip"
	case ".zst", ".zstd":
		return "zstd"
	}
	return ""
}

func contentType(name string) string {
	switch codec(name) {
	case "gzip":
		return "application/gzip"
	case "zstd":
		return "application/zstd"
	}
	return "application/json"
}
