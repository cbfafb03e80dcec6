package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	clibase "github.com/shouni/go-cli-base"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shouni/go-web-fetch/internal/pipeline"
	"github.com/shouni/go-web-fetch/pkg/cache"
	"github.com/shouni/go-web-fetch/pkg/render"
	"github.com/shouni/go-web-fetch/pkg/www"
)

const appName = "www"

// AppFlags はこのアプリケーション固有の、viper を経由しない永続フラグを保持します。
type AppFlags struct {
	ConfigFile string // --config-file 設定ファイル (YAML/TOML/JSON)
}

var (
	Flags AppFlags
	v     = pipeline.NewViper()
	app   *pipeline.Pipeline
)

// addAppPersistentFlags は永続フラグをルートコマンドに追加し、viper に関連付けます。
func addAppPersistentFlags(rootCmd *cobra.Command) {
	pf := rootCmd.PersistentFlags()
	pf.Duration(pipeline.KeyTimeout, www.DefaultTimeout, "1回のHTTPリクエスト (またはブラウザ描画) のタイムアウト")
	pf.Int(pipeline.KeyMaxRetries, www.DefaultMaxRetries, "初回を含むHTTPリクエストの最大試行回数")
	pf.Duration(pipeline.KeyRenderWait, www.DefaultRenderWait, "ブラウザ描画時、ページ読み込み後にHTMLを取得するまでの待機時間")
	pf.Bool(pipeline.KeyInsecure, false, "TLS証明書の検証を無効化する")
	pf.String(pipeline.KeyCacheDir, cache.DefaultDir(), "キャッシュディレクトリ")
	pf.String(pipeline.KeyBrowser, render.DefaultEngine, "ヘッドレスブラウザのエンジン (chromedp または rod)")
	pf.String(pipeline.KeyBrowserPath, "", "ブラウザ実行ファイルのパス (空の場合は自動検出)")
	pf.Bool(pipeline.KeyNoSandbox, false, "ブラウザのサンドボックスを無効化する (コンテナ内での実行向け)")
	pf.String(pipeline.KeyLogLevel, "info", "ログレベル (debug, info, warn, error)")
	pf.String(pipeline.KeyMetricsFile, "", "終了時にPrometheus textfile形式でメトリクスを書き出すパス")
	pf.StringVar(&Flags.ConfigFile, "config-file", "", "設定ファイル (YAML/TOML/JSON)")

	for _, key := range []string{
		pipeline.KeyTimeout,
		pipeline.KeyMaxRetries,
		pipeline.KeyRenderWait,
		pipeline.KeyInsecure,
		pipeline.KeyCacheDir,
		pipeline.KeyBrowser,
		pipeline.KeyBrowserPath,
		pipeline.KeyNoSandbox,
		pipeline.KeyLogLevel,
		pipeline.KeyMetricsFile,
	} {
		_ = v.BindPFlag(key, pf.Lookup(key))
	}
}

// initAppPreRunE は clibase 共通処理の後に実行され、設定を読み込んでパイプラインを組み立てます。
// NOTE: clibase.Flags.Verbose はこの関数の実行前に設定済み
func initAppPreRunE(cmd *cobra.Command, args []string) error {
	cfg, err := pipeline.LoadConfig(v, Flags.ConfigFile)
	if err != nil {
		return err
	}
	cfg.Verbose = clibase.Flags.Verbose

	app, err = pipeline.New(cfg)
	if err != nil {
		return fmt.Errorf("パイプラインの初期化に失敗しました: %w", err)
	}
	return nil
}

// runWithPipeline は初期化済みのパイプラインで fn を実行し、終了時にメトリクスを書き出します。
func runWithPipeline(fn func(ctx context.Context, p *pipeline.Pipeline, out io.Writer) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		if app == nil {
			return fmt.Errorf("パイプラインが初期化されていません。rootコマンドのPreRunを確認してください")
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
		defer stop()

		err := fn(ctx, app, cmd.OutOrStdout())
		if closeErr := app.Close(); closeErr != nil {
			app.Logger.Warn("終了処理に失敗しました", zap.Error(closeErr))
		}
		return err
	}
}

// Execute はルートコマンドを実行します。
func Execute() {
	clibase.Execute(
		appName,
		addAppPersistentFlags,
		initAppPreRunE,
		readCmd,
		downloadCmd,
		queryCmd,
		extractCmd,
		feedCmd,
		cachePathCmd,
	)
}
