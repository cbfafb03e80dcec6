package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shouni/go-web-fetch/internal/pipeline"
)

var extractFlags fetchFlags

// readURLFromStdin は標準入力の最初の行をURLとして読み込みます。
func readURLFromStdin(in io.Reader, prompt io.Writer) (string, error) {
	fmt.Fprint(prompt, "処理するURLを入力してください: ")
	scanner := bufio.NewScanner(in)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", fmt.Errorf("標準入力の読み取りエラー: %w", err)
		}
		return "", errors.New("URLが入力されていません")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

func runExtract(ctx context.Context, p *pipeline.Pipeline, out io.Writer, flags fetchFlags) error {
	target, err := ensureScheme(flags.url)
	if err != nil {
		return fmt.Errorf("URLスキームの処理エラー: %w", err)
	}
	p.Logger.Info("処理対象URL", zap.String("url", target))

	text, hasBody, err := p.ExtractURLContent(ctx, target, flags.requestOptions()...)
	if err != nil {
		return fmt.Errorf("コンテンツ抽出パイプラインの実行エラー: %w", err)
	}

	if !hasBody {
		_, err = fmt.Fprintf(out, "本文は見つかりませんでしたが、タイトルを取得しました:\n%s\n", text)
		return err
	}
	_, err = fmt.Fprintf(out, "--- 抽出された本文 ---\n%s\n-----------------------\n", text)
	return err
}

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "URLの文書から本文テキストを抽出します",
	Long:  `URLの文書からタイトル、見出し、段落、表、コードブロックを抽出して整形します。--url を省略した場合は標準入力からURLを読み込みます。`,
	Args:  cobra.NoArgs,
	RunE: runWithPipeline(func(ctx context.Context, p *pipeline.Pipeline, out io.Writer) error {
		flags := extractFlags
		if flags.url == "" {
			u, err := readURLFromStdin(os.Stdin, os.Stderr)
			if err != nil {
				return err
			}
			flags.url = u
		}
		return runExtract(ctx, p, out, flags)
	}),
}

func init() {
	extractCmd.Flags().StringVarP(&extractFlags.url, "url", "u", "", "抽出対象のURL (省略時は標準入力)")
	extractCmd.Flags().BoolVar(&extractFlags.render, "render", false, "ヘッドレスブラウザで描画したHTMLを使用する")
	extractCmd.Flags().BoolVar(&extractFlags.noCache, "no-cache", false, "キャッシュを読み書きしない")
}
