package www

import "time"

// 操作名 (Recorder.ObserveFailure に渡される値)
const (
	OpFetch    = "fetch"
	OpRender   = "render"
	OpDownload = "download"
)

// Recorder は Fetcher の動作を計測する先です。internal/metrics が Prometheus 実装を提供します。
type Recorder interface {
	ObserveAttempt()
	ObserveRetry(wait time.Duration)
	ObserveFailure(op string)
	ObserveCache(hit bool)
	ObserveRender(elapsed time.Duration, err error)
	ObserveDownload(bytes int64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAttempt() {}
func (nopRecorder) ObserveRetry(time.Duration) {}
func (nopRecorder) ObserveFailure(string) {}
func (nopRecorder) ObserveCache(bool) {}
func (nopRecorder) ObserveRender(time.Duration, error) {}
func (nopRecorder) ObserveDownload(int64) {}
