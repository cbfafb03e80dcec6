package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shouni/go-web-fetch/internal/pipeline"
	"github.com/shouni/go-web-fetch/pkg/feed"
)

var feedFlags fetchFlags

func runFeed(ctx context.Context, p *pipeline.Pipeline, out io.Writer, flags fetchFlags) error {
	target, err := ensureScheme(flags.url)
	if err != nil {
		return err
	}

	parsed, err := p.Fetcher.ParseFeed(ctx, p.Request(target, flags.requestOptions()...))
	if err != nil {
		return fmt.Errorf("フィード解析パイプラインの実行エラー: %w", err)
	}
	entries := feed.NewFeedAdapter(parsed).Entries()

	fmt.Fprintf(out, "--- フィード解析結果 ---\n")
	fmt.Fprintf(out, "フィードタイトル: %s\n", parsed.Title)
	if parsed.Link != "" {
		fmt.Fprintf(out, "リンク: %s\n", parsed.Link)
	}
	fmt.Fprintf(out, "合計記事数: %d\n", len(entries))
	fmt.Fprintln(out, "-----------------------")

	for i, e := range entries {
		fmt.Fprintf(out, "[%d] %s\n", i+1, e.Title)
		fmt.Fprintf(out, "    URL: %s\n", e.Link)
		if e.Published != nil {
			fmt.Fprintf(out, "    公開日: %s\n", e.Published.Local().Format("2006-01-02 15:04:05"))
		}
	}
	_, err = fmt.Fprintln(out)
	return err
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "RSS/Atomフィードを取得・解析し、タイトルと記事を一覧表示します",
	Long:  `指定されたURLからRSSまたはAtomフィードを取得し、その内容（フィードタイトル、記事タイトル、URL）を整形して表示します。`,
	Args:  cobra.NoArgs,
	RunE: runWithPipeline(func(ctx context.Context, p *pipeline.Pipeline, out io.Writer) error {
		return runFeed(ctx, p, out, feedFlags)
	}),
}

func init() {
	feedFlags.register(feedCmd, "解析対象のフィード (RSS/Atom) URL")
}
