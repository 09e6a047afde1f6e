package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/ottosulin/claude-code-security-review/internal/config"
	"github.com/ottosulin/claude-code-security-review/internal/findings"
	"github.com/ottosulin/claude-code-security-review/internal/parse"
)

// Entry is one cached semantic verdict.
type Entry struct {
	Key       string        `json:"key"`
	Verdict   parse.Verdict `json:"verdict"`
	Model     string        `json:"model"`
	CreatedAt time.Time     `json:"createdAt"`
}

// Stats describes the contents of a cache backend.
type Stats struct {
	Backend    string `json:"backend"`
	Location   string `json:"location"`
	Entries    int    `json:"entries"`
	TotalBytes int64  `json:"totalBytes"`
	Expired    int    `json:"expired"`
}

// Cache stores semantic verdicts so an unchanged finding is not sent to the
// provider twice. Get misses on any backend error; callers treat the cache
// as advisory.
type Cache interface {
	Get(ctx context.Context, key string) (parse.Verdict, bool)
	Put(ctx context.Context, key string, e Entry) error
	Clear(ctx context.Context) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Enabled() bool
}

// Open returns the backend selected by cfg: a no-op cache when disabled,
// redis when a URL is set, the file cache otherwise.
func Open(cfg config.CacheConfig) (Cache, error) {
	if !cfg.Enabled {
		return Nop{}, nil
	}
	if cfg.RedisURL != "" {
		return NewRedis(cfg.RedisURL, cfg.TTL.Std())
	}
	return NewFile(cfg.Dir, cfg.TTL.Std())
}

// Key derives the cache key for a verdict on f. Anything that can change the
// provider's answer is part of the key: the model, the filtering
// instructions, the finding's content and the diff context shown with it.
func Key(model, instructions, excerpt string, f findings.Finding) string {
	var b strings.Builder
	for _, part := range []string{
		model,
		instructions,
		f.FilePath,
		strconv.Itoa(f.LineStart),
		strconv.Itoa(f.LineEnd),
		string(f.Category),
		string(f.Severity),
		f.Title,
		f.Description,
		f.ExploitScenario,
		excerpt,
	} {
		b.WriteString(part)
		b.WriteByte(0)
	}
	return HashKey(b.String())
}

// HashKey creates a SHA-256 hash of the given key material.
func HashKey(key string) string {
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])
}

// Nop is the disabled cache.
type Nop struct{}

func (Nop) Get(context.Context, string) (parse.Verdict, bool) { return parse.Verdict{}, false }
func (Nop) Put(context.Context, string, Entry) error          { return nil }
func (Nop) Clear(context.Context) (int, error)                { return 0, nil }
func (Nop) Stats(context.Context) (Stats, error)              { return Stats{Backend: "disabled"}, nil }
func (Nop) Enabled() bool                                     { return false }

// DefaultDir is the per-user cache directory.
func DefaultDir() (string, error) {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "secreview"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Caches", "secreview"), nil
	case "windows":
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return filepath.Join(localAppData, "secreview", "cache"), nil
		}
		return filepath.Join(home, "AppData", "Local", "secreview", "cache"), nil
	default:
		return filepath.Join(home, ".cache", "secreview"), nil
	}
}
