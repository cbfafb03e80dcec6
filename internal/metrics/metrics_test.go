package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shouni/go-web-fetch/pkg/www"
)

var _ www.Recorder = (*Metrics)(nil)

func TestMetrics_Observe(t *testing.T) {
	m := New()

	m.ObserveAttempt()
	m.ObserveAttempt()
	m.ObserveAttempt()
	m.ObserveRetry(500 * time.Millisecond)
	m.ObserveRetry(time.Second)
	m.ObserveFailure(www.OpFetch)
	m.ObserveCache(true)
	m.ObserveCache(false)
	m.ObserveCache(false)
	m.ObserveRender(2*time.Second, nil)
	m.ObserveRender(time.Second, errors.New("crash"))
	m.ObserveDownload(2048)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.AttemptsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RetriesTotal))
	assert.Equal(t, 1.5, testutil.ToFloat64(m.BackoffSeconds))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FailuresTotal.WithLabelValues("fetch")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.FailuresTotal.WithLabelValues("render")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheTotal.WithLabelValues("hit")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheTotal.WithLabelValues("miss")))
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.DownloadedBytes))
	assert.Equal(t, 2, testutil.CollectAndCount(m.RenderDuration))
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveAttempt()

	assert.Equal(t, 1.0, testutil.ToFloat64(a.AttemptsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.AttemptsTotal))
}

func TestMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.ObserveAttempt()
	m.ObserveCache(true)

	path := filepath.Join(t.TempDir(), "www.prom")
	require.NoError(t, m.WriteTextfile(path))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(content)
	assert.Contains(t, text, "www_http_attempts_total 1")
	assert.Contains(t, text, `www_cache_lookups_total{result="hit"} 1`)

	err = m.WriteTextfile(filepath.Join(t.TempDir(), "missing", "dir", "www.prom"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "メトリクスの書き出しに失敗しました"))
}
