package render

import (
	"context"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"go.uber.org/zap"
)

// RodRenderer は go-rod でブラウザを起動してページを描画します。
type RodRenderer struct {
	opts options
}

// NewRodRenderer は RodRenderer を初期化します。
func NewRodRenderer(opts ...Option) *RodRenderer {
	return &RodRenderer{opts: newOptions(opts)}
}

func (r *RodRenderer) launcher(ctx context.Context) *launcher.Launcher {
	l := launcher.New().
		Context(ctx).
		Headless(true).
		NoSandbox(r.opts.noSandbox).
		Set("disable-gpu").
		Set("disable-dev-shm-usage")
	if r.opts.execPath != "" {
		l = l.Bin(r.opts.execPath)
	}
	return l
}

// Render はページを開き、読み込み完了と req.Wait の待機後にHTMLを返します。
func (r *RodRenderer) Render(ctx context.Context, req Request) (string, error) {
	logger := r.opts.logger.With(zap.String("engine", EngineRod), zap.String("url", req.URL))

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	renderErr := func(op string, err error) error {
		return &RenderError{URL: req.URL, Engine: EngineRod, Op: op, Err: err}
	}

	// 1. ブラウザを起動
	l := r.launcher(ctx)
	controlURL, err := l.Launch()
	if err != nil {
		l.Kill()
		return "", renderErr("launch", err)
	}
	defer func() {
		l.Kill()
		l.Cleanup()
		logger.Debug("ブラウザを停止しました")
	}()

	// 2. 接続してタブを作成
	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return "", renderErr("connect", err)
	}
	defer func() {
		if err := browser.Close(); err != nil {
			logger.Debug("ブラウザの終了処理でエラーが発生しました", zap.Error(err))
		}
	}()

	if req.InsecureSkipVerify {
		if err := browser.IgnoreCertErrors(true); err != nil {
			return "", renderErr("ignore-cert-errors", err)
		}
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", renderErr("page", err)
	}
	defer func() { _ = page.Close() }()

	// 3. ヘッダーを設定
	userAgent, headers := userAgentOf(req.Headers)
	if userAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: userAgent}); err != nil {
			return "", renderErr("user-agent", err)
		}
	}
	if len(headers) > 0 {
		kv := make([]string, 0, len(headers)*2)
		for k, v := range headers {
			kv = append(kv, k, v)
		}
		cleanup, err := page.SetExtraHeaders(kv)
		if err != nil {
			return "", renderErr("headers", err)
		}
		defer cleanup()
	}

	// 4. 遷移して読み込みを待ち、さらに Wait だけ待ってからHTMLを取得
	logger.Debug("ブラウザでページを描画します", zap.Duration("wait", req.Wait))
	if err := page.Navigate(req.URL); err != nil {
		return "", renderErr("navigate", err)
	}
	if err := page.WaitLoad(); err != nil {
		return "", renderErr("wait-load", err)
	}
	if err := settle(ctx, req.Wait); err != nil {
		return "", renderErr("wait", err)
	}

	html, err := page.HTML()
	if err != nil {
		return "", renderErr("html", err)
	}
	return html, nil
}
