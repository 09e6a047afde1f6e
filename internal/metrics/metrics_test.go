package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New(nil)

	m.Finding("hard-rule", "hard-filtered-out")
	m.Finding("hard-rule", "hard-filtered-out")
	m.Finding("semantic", "kept")
	m.Decisions("semantic", 3)
	m.Parsed("repair")
	m.UnitFailed()
	m.CacheLookup(true)
	m.CacheLookup(false)
	m.CacheLookup(false)
	m.Call("anthropic", 2*time.Second, "")
	m.Call("anthropic", time.Second, "rate_limited")
	m.Tokens("anthropic", 100, 20)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.findings.WithLabelValues("hard-rule", "hard-filtered-out")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.findings.WithLabelValues("semantic", "kept")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.decisions.WithLabelValues("semantic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.parseStrategy.WithLabelValues("repair")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failedUnits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.callErrors.WithLabelValues("anthropic", "rate_limited")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.tokens.WithLabelValues("anthropic", "input")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.callDuration))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Finding("semantic", "kept")
		m.Decisions("semantic", 1)
		m.Parsed("strict")
		m.UnitFailed()
		m.Call("anthropic", time.Second, "")
		m.Tokens("anthropic", 1, 1)
		m.CacheLookup(true)
		m.Run(time.Second)
	})
	assert.Nil(t, m.Registry())
	assert.NoError(t, m.WriteTextfile(filepath.Join(t.TempDir(), "x.prom")))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New(nil)
	m.Finding("aggregate", "kept")
	m.Run(3 * time.Second)

	path := filepath.Join(t.TempDir(), "secreview.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `secreview_findings_total{stage="aggregate",status="kept"} 1`), text)
	assert.Contains(t, text, "secreview_run_duration_seconds_count 1")
}
