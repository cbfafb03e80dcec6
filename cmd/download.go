package cmd

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"path"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shouni/go-web-fetch/internal/pipeline"
)

const defaultDownloadName = "download.bin"

var (
	downloadURL    string
	downloadOutput string
)

// outputNameFor はURLの最後のパス要素から保存先のファイル名を決めます。
func outputNameFor(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return defaultDownloadName
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return defaultDownloadName
	}
	return name
}

func runDownload(ctx context.Context, p *pipeline.Pipeline, out io.Writer, rawURL, output string) error {
	target, err := ensureScheme(rawURL)
	if err != nil {
		return err
	}
	if output == "" {
		output = outputNameFor(target)
	}

	p.Logger.Info("ダウンロードを開始します", zap.String("url", target), zap.String("path", output))
	saved, err := p.Fetcher.DownloadToFile(ctx, p.Request(target), output)
	if err != nil {
		return fmt.Errorf("ダウンロードに失敗しました: %w", err)
	}
	_, err = fmt.Fprintln(out, saved)
	return err
}

var downloadCmd = &cobra.Command{
	Use:   "download",
	Short: "URLの内容をファイルに保存します",
	Long:  `URLの内容をリトライ付きで取得し、1024バイト単位でファイルに書き込みます。保存先を省略した場合はURLの最後のパス要素を使用します。`,
	Args:  cobra.NoArgs,
	RunE: runWithPipeline(func(ctx context.Context, p *pipeline.Pipeline, out io.Writer) error {
		return runDownload(ctx, p, out, downloadURL, downloadOutput)
	}),
}

func init() {
	downloadCmd.Flags().StringVarP(&downloadURL, "url", "u", "", "ダウンロード対象のURL")
	downloadCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "保存先のパス")
	_ = downloadCmd.MarkFlagRequired("url")
}
