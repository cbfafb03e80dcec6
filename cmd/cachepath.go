package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shouni/go-web-fetch/internal/pipeline"
)

var cachePathURL string

func runCachePath(p *pipeline.Pipeline, out io.Writer, rawURL string) error {
	target, err := ensureScheme(rawURL)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, p.Fetcher.CachePath(p.Request(target)))
	return err
}

var cachePathCmd = &cobra.Command{
	Use:   "cache-path",
	Short: "URLに対応するキャッシュファイルのパスを表示します",
	Args:  cobra.NoArgs,
	RunE: runWithPipeline(func(_ context.Context, p *pipeline.Pipeline, out io.Writer) error {
		return runCachePath(p, out, cachePathURL)
	}),
}

func init() {
	cachePathCmd.Flags().StringVarP(&cachePathURL, "url", "u", "", "対象のURL")
	_ = cachePathCmd.MarkFlagRequired("url")
}
