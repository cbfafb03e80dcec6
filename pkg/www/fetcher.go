package www

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/mmcdole/gofeed"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/net/html/charset"

	"github.com/shouni/go-web-fetch/pkg/cache"
	"github.com/shouni/go-web-fetch/pkg/httpclient"
	"github.com/shouni/go-web-fetch/pkg/parser"
	"github.com/shouni/go-web-fetch/pkg/render"
	"github.com/shouni/go-web-fetch/pkg/retry"
)

const downloadFilePerm = 0o644

// Fetcher はWebコンテンツの取得、キャッシュ、描画、保存、解析をまとめて提供します。
// 状態を持たないため、複数のゴルーチンから同時に使用できます。
type Fetcher struct {
	client   *httpclient.Client
	store    *cache.Store
	fs       afero.Fs
	renderer render.Renderer
	logger   *zap.Logger
	recorder Recorder
	timer    backoff.Timer
}

// Option は Fetcher の設定を行うための関数型です。
type Option func(*Fetcher)

// WithHTTPClient はHTTPクライアントを差し替えます。
func WithHTTPClient(client *httpclient.Client) Option {
	return func(f *Fetcher) {
		if client != nil {
			f.client = client
		}
	}
}

// WithCache はキャッシュストアを差し替えます。
func WithCache(store *cache.Store) Option {
	return func(f *Fetcher) {
		if store != nil {
			f.store = store
		}
	}
}

// WithFs は DownloadToFile の書き込み先ファイルシステムを差し替えます。
func WithFs(fs afero.Fs) Option {
	return func(f *Fetcher) {
		if fs != nil {
			f.fs = fs
		}
	}
}

// WithRenderer はヘッドレスブラウザの実装を差し替えます。
func WithRenderer(r render.Renderer) Option {
	return func(f *Fetcher) {
		if r != nil {
			f.renderer = r
		}
	}
}

// WithLogger はロガーを設定します。
func WithLogger(logger *zap.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithRecorder は計測先を設定します。
func WithRecorder(r Recorder) Option {
	return func(f *Fetcher) {
		if r != nil {
			f.recorder = r
		}
	}
}

// WithRetryTimer はリトライ待機に使うタイマーを差し替えます (主にテスト用)。
func WithRetryTimer(t backoff.Timer) Option {
	return func(f *Fetcher) {
		f.timer = t
	}
}

// New は Fetcher を初期化します。
// 既定では OS のファイルシステム、{一時ディレクトリ}/www のキャッシュ、chromedp のレンダラーを使用します。
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		logger:   zap.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = httpclient.New()
	}
	if f.store == nil {
		f.store = cache.New()
	}
	if f.fs == nil {
		f.fs = afero.NewOsFs()
	}
	if f.renderer == nil {
		f.renderer = render.NewChromeRenderer(render.WithLogger(f.logger))
	}
	return f
}

// shouldRetry は呼び出し元によるキャンセル以外のすべての失敗をリトライ対象とします。
func shouldRetry(err error) bool {
	return !errors.Is(err, context.Canceled)
}

// withRetry は req の試行回数で op を実行します。最終試行のエラーはそのまま返されます。
func (f *Fetcher) withRetry(ctx context.Context, req Request, op retry.Operation) error {
	return retry.Do(ctx, req.retryConfig(), req.URL, func() error {
		f.recorder.ObserveAttempt()
		return op()
	}, shouldRetry,
		retry.WithLogger(f.logger),
		retry.WithTimer(f.timer),
		retry.WithNotify(func(_ int, _ error, wait time.Duration) {
			f.recorder.ObserveRetry(wait)
		}),
	)
}

// FetchRaw はリトライ付きのGETでレスポンスボディを取得します。キャッシュは使用しません。
func (f *Fetcher) FetchRaw(ctx context.Context, req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var body []byte
	err := f.withRetry(ctx, req, func() error {
		b, err := f.client.FetchBytes(ctx, req.httpRequest())
		if err != nil {
			return err
		}
		body = b
		return nil
	})
	if err != nil {
		f.recorder.ObserveFailure(OpFetch)
		return nil, err
	}
	return body, nil
}

// FetchCached はキャッシュファイルがあればその内容を返し、なければ FetchRaw の結果を保存して返します。
// キャッシュの有効期限はありません。最新の内容が必要な場合は CacheBypass を指定します。
func (f *Fetcher) FetchCached(ctx context.Context, req Request) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.CachePolicy == CacheBypass {
		return f.FetchRaw(ctx, req)
	}

	logger := f.logger.With(zap.String("url", req.URL), zap.String("path", f.store.Path(req.URL)))

	// 1. キャッシュを確認
	content, hit, err := f.store.Get(req.URL)
	if err != nil {
		return nil, err
	}
	f.recorder.ObserveCache(hit)
	if hit {
		logger.Debug("キャッシュから読み込みました", zap.Int("bytes", len(content)))
		return content, nil
	}

	// 2. 取得して保存
	content, err = f.FetchRaw(ctx, req)
	if err != nil {
		return nil, err
	}
	if _, err := f.store.Put(req.URL, content); err != nil {
		return nil, err
	}
	logger.Debug("キャッシュに保存しました", zap.Int("bytes", len(content)))
	return content, nil
}

// FetchRendered はヘッドレスブラウザでページを描画し、RenderWait 待機後のHTMLを返します。
// リトライもキャッシュも行いません。
func (f *Fetcher) FetchRendered(ctx context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}

	start := time.Now()
	html, err := f.renderer.Render(ctx, req.renderRequest())
	f.recorder.ObserveRender(time.Since(start), err)
	if err != nil {
		var renderErr *RenderError
		if !errors.As(err, &renderErr) {
			err = &RenderError{URL: req.URL, Engine: "unknown", Op: "render", Err: err}
		}
		f.recorder.ObserveFailure(OpRender)
		f.logger.Error("ページの描画に失敗しました", zap.String("url", req.URL), zap.Error(err))
		return "", err
	}
	f.logger.Info("ページを描画しました",
		zap.String("url", req.URL),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("bytes", len(html)),
	)
	return html, nil
}

// DownloadToFile はリトライ付きのGETの後、ボディを ChunkSize バイトずつ path に書き込み、path を返します。
// 書き込み中の失敗はリトライされず、途中まで書かれたファイルは残ります。
// req.Timeout はヘッダー受信と各チャンクの読み込みに適用され、転送全体の時間には上限を設けません。
func (f *Fetcher) DownloadToFile(ctx context.Context, req Request, path string) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if path == "" {
		return "", fmt.Errorf("%w: %s: 保存先のパスが空です", ErrInvalidRequest, req)
	}

	// 1. ステータス確認までをリトライ
	var resp *http.Response
	err := f.withRetry(ctx, req, func() error {
		r, err := f.client.Get(ctx, req.httpRequest())
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		f.recorder.ObserveFailure(OpDownload)
		return "", err
	}
	defer resp.Body.Close()

	// 2. ファイルへストリーミング
	file, err := f.fs.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, downloadFilePerm)
	if err != nil {
		f.recorder.ObserveFailure(OpDownload)
		return "", &FilesystemError{Op: "create", Path: path, Err: err}
	}

	written, copyErr := httpclient.CopyChunks(file, resp.Body, req.URL)
	closeErr := file.Close()
	if copyErr != nil {
		f.recorder.ObserveFailure(OpDownload)
		if httpclient.IsNetworkError(copyErr) {
			return "", copyErr
		}
		return "", &FilesystemError{Op: "write", Path: path, Err: copyErr}
	}
	if closeErr != nil {
		f.recorder.ObserveFailure(OpDownload)
		return "", &FilesystemError{Op: "close", Path: path, Err: closeErr}
	}

	f.recorder.ObserveDownload(written)
	f.logger.Info("ダウンロードが完了しました",
		zap.String("url", req.URL),
		zap.String("path", path),
		zap.Int64("bytes", written),
	)
	return path, nil
}

// Read は FetchMode に応じて内容を文字列で返します。
// 静的取得ではキャッシュを経由し、ボディの文字コードを判定してUTF-8に変換します。
func (f *Fetcher) Read(ctx context.Context, req Request) (string, error) {
	if req.FetchMode == ModeRendered {
		return f.FetchRendered(ctx, req)
	}
	content, err := f.FetchCached(ctx, req)
	if err != nil {
		return "", err
	}
	return decode(content), nil
}

// ParseDocument は Read の結果を ParserMode に従って解析します。
func (f *Fetcher) ParseDocument(ctx context.Context, req Request) (*goquery.Document, error) {
	content, err := f.Read(ctx, req)
	if err != nil {
		return nil, err
	}
	doc, err := parser.ParseHTML(content, req.ParserMode)
	if err != nil {
		return nil, fmt.Errorf("%s の解析に失敗しました: %w", req, err)
	}
	return doc, nil
}

// ParseFeed は Read の結果を RSS/Atom/JSON Feed として解析します。
func (f *Fetcher) ParseFeed(ctx context.Context, req Request) (*gofeed.Feed, error) {
	content, err := f.Read(ctx, req)
	if err != nil {
		return nil, err
	}
	feed, err := parser.ParseFeed(content)
	if err != nil {
		return nil, fmt.Errorf("%s の解析に失敗しました: %w", req, err)
	}
	return feed, nil
}

// CachePath は req.URL に対応するキャッシュファイルのパスを返します。ファイルは作成しません。
func (f *Fetcher) CachePath(req Request) string {
	return f.store.Path(req.URL)
}

// decode はボディをUTF-8文字列に変換します。
// 全体が有効なUTF-8であればそのまま、そうでなければ BOM と meta 要素から文字コードを判定します。
func decode(content []byte) string {
	if utf8.Valid(content) {
		return string(content)
	}
	enc, _, _ := charset.DetermineEncoding(content, "")
	decoded, err := enc.NewDecoder().Bytes(content)
	if err != nil {
		return string(content)
	}
	return string(decoded)
}
