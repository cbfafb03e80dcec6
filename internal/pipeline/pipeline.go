package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/shouni/go-web-fetch/internal/logging"
	"github.com/shouni/go-web-fetch/internal/metrics"
	"github.com/shouni/go-web-fetch/pkg/cache"
	"github.com/shouni/go-web-fetch/pkg/extract"
	"github.com/shouni/go-web-fetch/pkg/render"
	"github.com/shouni/go-web-fetch/pkg/www"
)

// Pipeline は設定から組み立てた Fetcher と、その周辺 (ロガー、メトリクス) を保持します。
type Pipeline struct {
	Fetcher *www.Fetcher
	Logger  *zap.Logger
	Metrics *metrics.Metrics

	cfg Config
}

// Option は Pipeline の組み立てを調整するための関数型です。
type Option func(*buildOptions)

type buildOptions struct {
	logger     *zap.Logger
	fetcherOps []www.Option
}

// WithLogger は設定から構築する代わりに既存のロガーを使用します。
func WithLogger(logger *zap.Logger) Option {
	return func(o *buildOptions) {
		o.logger = logger
	}
}

// WithFetcherOptions は Fetcher に追加のオプションを渡します。既定の組み立てより後に適用されます。
func WithFetcherOptions(opts ...www.Option) Option {
	return func(o *buildOptions) {
		o.fetcherOps = append(o.fetcherOps, opts...)
	}
}

// New は設定から Pipeline を組み立てます。
func New(cfg Config, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}

	o := buildOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	// 1. ロガー
	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Options{Level: cfg.LogLevel, Verbose: cfg.Verbose})
		if err != nil {
			return nil, err
		}
	}

	// 2. レンダラー
	renderer, err := render.New(cfg.Browser,
		render.WithLogger(logger),
		render.WithExecPath(cfg.BrowserPath),
		render.WithNoSandbox(cfg.NoSandbox),
	)
	if err != nil {
		return nil, err
	}

	// 3. Fetcher
	m := metrics.New()
	fetcherOpts := append([]www.Option{
		www.WithLogger(logger),
		www.WithCache(cache.New(cache.WithDir(cfg.CacheDir))),
		www.WithRenderer(renderer),
		www.WithRecorder(m),
	}, o.fetcherOps...)

	logger.Debug("Fetcherを初期化しました",
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Duration("render_wait", cfg.RenderWait),
		zap.Bool("insecure", cfg.Insecure),
		zap.String("cache_dir", cfg.CacheDir),
		zap.String("browser", cfg.Browser),
	)

	return &Pipeline{
		Fetcher: www.New(fetcherOpts...),
		Logger:  logger,
		Metrics: m,
		cfg:     cfg,
	}, nil
}

// Config は組み立てに使用した設定を返します。
func (p *Pipeline) Config() Config { return p.cfg }

// Request は設定値を既定とした Request を作成します。opts は設定値より優先されます。
func (p *Pipeline) Request(url string, opts ...www.RequestOption) www.Request {
	base := []www.RequestOption{
		www.WithTimeout(p.cfg.Timeout),
		www.WithMaxRetries(p.cfg.MaxRetries),
		www.WithRenderWait(p.cfg.RenderWait),
		www.WithInsecureSkipVerify(p.cfg.Insecure),
	}
	return www.NewRequest(url, append(base, opts...)...)
}

// Documents は extract.DocumentFetcher として振る舞う取得元を返します。
func (p *Pipeline) Documents(opts ...www.RequestOption) extract.DocumentFetcher {
	return documentSource{p: p, opts: opts}
}

type documentSource struct {
	p    *Pipeline
	opts []www.RequestOption
}

func (s documentSource) FetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	return s.p.Fetcher.ParseDocument(ctx, s.p.Request(url, s.opts...))
}

// ExtractURLContent はURLの文書を取得し、整形された本文テキストを返します。
// hasBody はタイトル以外の本文が見つかったかどうかを表します。
func (p *Pipeline) ExtractURLContent(ctx context.Context, url string, opts ...www.RequestOption) (text string, hasBody bool, err error) {
	extractor, err := extract.NewExtractor(p.Documents(opts...))
	if err != nil {
		return "", false, fmt.Errorf("Extractorの初期化エラー: %w", err)
	}

	text, hasBody, err = extractor.FetchAndExtractText(ctx, url)
	if err != nil {
		return "", false, fmt.Errorf("コンテンツ抽出エラー: %w", err)
	}
	return text, hasBody, nil
}

// Close はメトリクスを書き出し、ログをフラッシュします。
func (p *Pipeline) Close() error {
	var errs []error
	if p.cfg.MetricsFile != "" {
		if err := p.Metrics.WriteTextfile(p.cfg.MetricsFile); err != nil {
			errs = append(errs, err)
		} else {
			p.Logger.Debug("メトリクスを書き出しました", zap.String("path", p.cfg.MetricsFile))
		}
	}
	// 標準エラー出力への Sync は環境によって EINVAL を返すため無視する
	_ = p.Logger.Sync()
	return errors.Join(errs...)
}
