package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shouni/go-web-fetch/internal/pipeline"
	"github.com/shouni/go-web-fetch/pkg/www"
)

// fetchFlags は取得系コマンドに共通するフラグです。
type fetchFlags struct {
	url     string
	render  bool
	noCache bool
}

func (f *fetchFlags) register(cmd *cobra.Command, usage string) {
	cmd.Flags().StringVarP(&f.url, "url", "u", "", usage)
	cmd.Flags().BoolVar(&f.render, "render", false, "ヘッドレスブラウザで描画したHTMLを使用する")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "キャッシュを読み書きしない")
	_ = cmd.MarkFlagRequired("url")
}

// requestOptions はフラグを www.RequestOption に変換します。
func (f *fetchFlags) requestOptions() []www.RequestOption {
	var opts []www.RequestOption
	if f.render {
		opts = append(opts, www.WithFetchMode(www.ModeRendered))
	}
	if f.noCache {
		opts = append(opts, www.WithCachePolicy(www.CacheBypass))
	}
	return opts
}

var readFlags fetchFlags

func runRead(ctx context.Context, p *pipeline.Pipeline, out io.Writer, flags fetchFlags) error {
	target, err := ensureScheme(flags.url)
	if err != nil {
		return err
	}
	content, err := p.Fetcher.Read(ctx, p.Request(target, flags.requestOptions()...))
	if err != nil {
		return fmt.Errorf("読み込みに失敗しました: %w", err)
	}
	_, err = fmt.Fprintln(out, content)
	return err
}

var readCmd = &cobra.Command{
	Use:   "read",
	Short: "URLの内容を取得して標準出力に書き出します",
	Long:  `URLの内容を取得して標準出力に書き出します。静的取得の結果は一時ディレクトリにキャッシュされ、次回以降はネットワークに接続しません。`,
	Args:  cobra.NoArgs,
	RunE: runWithPipeline(func(ctx context.Context, p *pipeline.Pipeline, out io.Writer) error {
		return runRead(ctx, p, out, readFlags)
	}),
}

func init() {
	readFlags.register(readCmd, "取得対象のURL")
}
