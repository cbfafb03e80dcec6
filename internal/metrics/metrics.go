package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "www"

// Metrics は Fetcher の動作を Prometheus のメトリクスとして保持します。
// www.Recorder を満たします。
type Metrics struct {
	registry *prometheus.Registry

	AttemptsTotal   prometheus.Counter
	RetriesTotal    prometheus.Counter
	BackoffSeconds  prometheus.Counter
	FailuresTotal   *prometheus.CounterVec
	CacheTotal      *prometheus.CounterVec
	RenderDuration  *prometheus.HistogramVec
	DownloadedBytes prometheus.Counter
}

// New は専用のレジストリにメトリクスを登録して返します。
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		AttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_attempts_total",
			Help:      "The total number of HTTP GET attempts, including retries.",
		}),
		RetriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_retries_total",
			Help:      "The total number of retries scheduled after a failed attempt.",
		}),
		BackoffSeconds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backoff_seconds_total",
			Help:      "The total time spent waiting between attempts.",
		}),
		FailuresTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failures_total",
			Help:      "The total number of operations that failed after all attempts.",
		}, []string{"op"}), // fetch, render, download
		CacheTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "The total number of cache lookups by result.",
		}, []string{"result"}), // hit, miss
		RenderDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Duration of headless browser renders.",
			Buckets:   []float64{1, 2, 5, 10, 30, 60, 120},
		}, []string{"status"}), // success, failure
		DownloadedBytes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "downloaded_bytes_total",
			Help:      "The total number of bytes written by downloads.",
		}),
	}
}

// ObserveAttempt は HTTP の試行を1回数えます。
func (m *Metrics) ObserveAttempt() {
	m.AttemptsTotal.Inc()
}

// ObserveRetry はリトライ回数と、その前の待機時間を記録します。
func (m *Metrics) ObserveRetry(wait time.Duration) {
	m.RetriesTotal.Inc()
	m.BackoffSeconds.Add(wait.Seconds())
}

// ObserveFailure は操作 op の最終的な失敗を数えます。
func (m *Metrics) ObserveFailure(op string) {
	m.FailuresTotal.WithLabelValues(op).Inc()
}

// ObserveCache はキャッシュのヒット/ミスを数えます。
func (m *Metrics) ObserveCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheTotal.WithLabelValues(result).Inc()
}

// ObserveRender は描画にかかった時間を成否別に記録します。
func (m *Metrics) ObserveRender(elapsed time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.RenderDuration.WithLabelValues(status).Observe(elapsed.Seconds())
}

// ObserveDownload はダウンロードで書き込んだバイト数を加算します。
func (m *Metrics) ObserveDownload(bytes int64) {
	m.DownloadedBytes.Add(float64(bytes))
}

// WriteTextfile はメトリクスを node_exporter の textfile collector 形式で書き出します。
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("メトリクスの書き出しに失敗しました (%s): %w", path, err)
	}
	return nil
}
