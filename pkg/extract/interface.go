package extract

import (
	"context"

	"github.com/PuerkitoBio/goquery"
)

// DocumentFetcher はURLから解析済みのHTML文書を取得する機能のインターフェースです。
// 取得方法 (静的取得、キャッシュ、ブラウザ描画) は実装側が決めます。
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, url string) (*goquery.Document, error)
}
