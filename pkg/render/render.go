package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	// EngineChromedp は chromedp (Chrome DevTools Protocol) を使うエンジン名です。
	EngineChromedp = "chromedp"
	// EngineRod は go-rod を使うエンジン名です。
	EngineRod = "rod"

	// DefaultEngine は既定のエンジンです。
	DefaultEngine = EngineChromedp
)

// Request はヘッドレスレンダリング1回分の設定です。
type Request struct {
	URL     string
	Headers map[string]string
	// Wait はページ読み込み後、HTMLを取得するまでの待機時間です。
	Wait time.Duration
	// Timeout が 0 の場合、呼び出し元の ctx のみで打ち切られます。
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Renderer はページをヘッドレスブラウザで描画し、描画後のHTMLを返します。
// 呼び出しごとにブラウザを起動し、終了時に必ず停止します。
type Renderer interface {
	Render(ctx context.Context, req Request) (string, error)
}

// RenderError はブラウザ自動化の失敗を表します。
type RenderError struct {
	URL    string
	Engine string
	Op     string
	Err    error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("ヘッドレスレンダリングに失敗しました (%s, %s): %s: %v", e.Engine, e.Op, e.URL, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// Option はレンダラーの設定を行うための関数型です。
type Option func(*options)

type options struct {
	logger    *zap.Logger
	execPath  string
	noSandbox bool
}

// WithLogger はブラウザのライフサイクルを記録するロガーを設定します。
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithExecPath はブラウザ実行ファイルのパスを指定します。
func WithExecPath(path string) Option {
	return func(o *options) {
		o.execPath = path
	}
}

// WithNoSandbox はChromeのサンドボックスを無効化します (コンテナ内での実行向け)。
func WithNoSandbox(enable bool) Option {
	return func(o *options) {
		o.noSandbox = enable
	}
}

func newOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New はエンジン名に対応するレンダラーを返します。空文字は DefaultEngine として扱います。
func New(engine string, opts ...Option) (Renderer, error) {
	switch strings.ToLower(strings.TrimSpace(engine)) {
	case "", EngineChromedp:
		return NewChromeRenderer(opts...), nil
	case EngineRod:
		return NewRodRenderer(opts...), nil
	default:
		return nil, fmt.Errorf("未対応のレンダリングエンジンです: %q (%s または %s を指定してください)", engine, EngineChromedp, EngineRod)
	}
}

// userAgentOf は User-Agent ヘッダーを取り出し、残りのヘッダーを返します。
func userAgentOf(headers map[string]string) (string, map[string]string) {
	var ua string
	rest := make(map[string]string, len(headers))
	for k, v := range headers {
		if strings.EqualFold(k, "User-Agent") {
			ua = v
			continue
		}
		rest[k] = v
	}
	return ua, rest
}

// settle は ctx を尊重しつつ d だけ待機します。
func settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
