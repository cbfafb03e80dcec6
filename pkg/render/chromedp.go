package render

import (
	"context"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// ChromeRenderer は chromedp でChromeを起動してページを描画します。
type ChromeRenderer struct {
	opts options
}

// NewChromeRenderer は ChromeRenderer を初期化します。
func NewChromeRenderer(opts ...Option) *ChromeRenderer {
	return &ChromeRenderer{opts: newOptions(opts)}
}

// allocatorOptions はリクエストごとのブラウザ起動オプションを組み立てます。
func (r *ChromeRenderer) allocatorOptions(req Request, userAgent string) []chromedp.ExecAllocatorOption {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts,
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if userAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(userAgent))
	}
	if req.InsecureSkipVerify {
		allocOpts = append(allocOpts, chromedp.IgnoreCertErrors)
	}
	if r.opts.noSandbox {
		allocOpts = append(allocOpts, chromedp.NoSandbox)
	}
	if r.opts.execPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(r.opts.execPath))
	}
	return allocOpts
}

// Render はページを開き、req.Wait だけ待ってからドキュメント全体のHTMLを返します。
func (r *ChromeRenderer) Render(ctx context.Context, req Request) (string, error) {
	logger := r.opts.logger.With(zap.String("engine", EngineChromedp), zap.String("url", req.URL))

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	userAgent, headers := userAgentOf(req.Headers)

	// 1. ブラウザプロセスのアロケーターを作成
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions(req, userAgent)...)
	defer cancelAlloc()

	// 2. タブを作成 (最初の Run でブラウザが起動する)
	taskCtx, cancelTask := chromedp.NewContext(allocCtx, chromedp.WithLogf(logger.Sugar().Debugf))
	defer func() {
		// タブとブラウザを確実に終了させる
		if err := chromedp.Cancel(taskCtx); err != nil {
			logger.Debug("ブラウザの終了処理でエラーが発生しました", zap.Error(err))
		}
		cancelTask()
		logger.Debug("ブラウザを停止しました")
	}()

	// 3. ヘッダー付きで遷移し、待機後にHTMLを取得
	extra := make(network.Headers, len(headers))
	for k, v := range headers {
		extra[k] = v
	}

	var html string
	actions := []chromedp.Action{network.Enable()}
	if len(extra) > 0 {
		actions = append(actions, network.SetExtraHTTPHeaders(extra))
	}
	actions = append(actions,
		chromedp.Navigate(req.URL),
		chromedp.Sleep(req.Wait),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)

	logger.Debug("ブラウザでページを描画します", zap.Duration("wait", req.Wait))
	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return "", &RenderError{URL: req.URL, Engine: EngineChromedp, Op: "run", Err: err}
	}
	return html, nil
}
