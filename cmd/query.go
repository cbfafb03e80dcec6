package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"

	"github.com/shouni/go-web-fetch/internal/pipeline"
	"github.com/shouni/go-web-fetch/pkg/parser"
	"github.com/shouni/go-web-fetch/pkg/www"
)

type queryOptions struct {
	fetch    fetchFlags
	selector string
	attr     string
	// parserMode は parser.ParseMode が解釈する名前 (document / fragment) です。
	parserMode string
}

var queryFlags queryOptions

func runQuery(ctx context.Context, p *pipeline.Pipeline, out io.Writer, opts queryOptions) error {
	if strings.TrimSpace(opts.selector) == "" {
		return errors.New("セレクタが指定されていません")
	}
	target, err := ensureScheme(opts.fetch.url)
	if err != nil {
		return err
	}

	mode, err := parser.ParseMode(opts.parserMode)
	if err != nil {
		return err
	}
	reqOpts := append(opts.fetch.requestOptions(), www.WithParserMode(mode))

	doc, err := p.Fetcher.ParseDocument(ctx, p.Request(target, reqOpts...))
	if err != nil {
		return fmt.Errorf("文書の取得に失敗しました: %w", err)
	}

	var writeErr error
	doc.Find(opts.selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		value := strings.TrimSpace(s.Text())
		if opts.attr != "" {
			var ok bool
			if value, ok = s.Attr(opts.attr); !ok {
				return true
			}
		}
		_, writeErr = fmt.Fprintln(out, value)
		return writeErr == nil
	})
	return writeErr
}

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "URLの文書をCSSセレクタで検索し、一致した要素のテキストを表示します",
	Long:  `URLの文書を解析し、CSSセレクタに一致した要素のテキスト (または --attr で指定した属性値) を1行ずつ表示します。`,
	Args:  cobra.NoArgs,
	RunE: runWithPipeline(func(ctx context.Context, p *pipeline.Pipeline, out io.Writer) error {
		return runQuery(ctx, p, out, queryFlags)
	}),
}

func init() {
	queryFlags.fetch.register(queryCmd, "検索対象のURL")
	queryCmd.Flags().StringVarP(&queryFlags.selector, "selector", "s", "", "CSSセレクタ")
	queryCmd.Flags().StringVar(&queryFlags.attr, "attr", "", "テキストの代わりに表示する属性名 (例: href)")
	queryCmd.Flags().StringVar(&queryFlags.parserMode, "parser-mode", parser.ModeDocument.String(), "解析モード (document: 文書全体 / fragment: HTML断片)")
	_ = queryCmd.MarkFlagRequired("selector")
}
