package extract_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/shouni/go-web-fetch/pkg/extract"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockFetcher はテスト用の extract.DocumentFetcher の実装です。
type MockFetcher struct {
	htmlContent string
	fetchError  error
}

func (m *MockFetcher) FetchDocument(ctx context.Context, url string) (*goquery.Document, error) {
	if m.fetchError != nil {
		return nil, m.fetchError
	}
	return goquery.NewDocumentFromReader(strings.NewReader(m.htmlContent))
}

func TestNewExtractor(t *testing.T) {
	t.Run("success_with_valid_fetcher", func(t *testing.T) {
		extractor, err := extract.NewExtractor(&MockFetcher{})
		assert.NoError(t, err)
		assert.NotNil(t, extractor)
	})

	t.Run("error_with_nil_fetcher", func(t *testing.T) {
		extractor, err := extract.NewExtractor(nil)
		assert.Error(t, err)
		assert.Nil(t, extractor)
		assert.Contains(t, err.Error(), "DocumentFetcher cannot be nil")
	})
}

// TestFetchAndExtractText は Extractor の主要なメソッドをテストします。
func TestFetchAndExtractText(t *testing.T) {
	const (
		titlePrefix        = "【記事タイトル】 "
		tableCaptionPrefix = "【表題】 "
	)

	// 本文として抽出されるための十分な長さを持つパラグラフ
	longParagraph := "This is a long paragraph with more than twenty characters and it should be extracted as body content."

	testCases := []struct {
		name              string
		html              string
		url               string
		fetchErr          error
		expectedText      string
		expectedBodyFound bool
		expectedError     bool
	}{
		// 1. ネットワークエラーのテスト
		{
			name:          "fetch_error",
			fetchErr:      errors.New("network timeout"),
			expectedError: true,
		},

		// 2. タイトルのみのドキュメントのテスト (短いテキストは無視される)
		{
			name:              "document_with_title_only",
			html:              `<html><head><title>Test Title</title></head><body><p>Short text</p></body></html>`,
			expectedText:      titlePrefix + "Test Title",
			expectedBodyFound: false, // 短い段落は本文と見なされない
			expectedError:     false,
		},

		// 3. メインコンテンツとタイトルのドキュメントのテスト (長い段落を抽出)
		{
			name:              "document_with_main_content_and_title",
			html:              fmt.Sprintf(`<html><head><title>Title</title></head><body><main><p>%s</p></main></body></html>`, longParagraph),
			expectedText:      titlePrefix + "Title" + "\n\n" + longParagraph,
			expectedBodyFound: true,
			expectedError:     false,
		},

		// 4. 見出しと段落のドキュメントのテスト (H1/H2の整形と\n\n区切り)
		{
			name: "document_with_headings_and_paragraphs",
			html: fmt.Sprintf(`<html><head><title>Test Page</title></head><body><article>
                <h1>Heading 1 Long Enough Title</h1>
                <p>Short</p>
                <h2>H2 Long Enough</h2>
                <p>%s</p>
               </article></body></html>`, longParagraph),
			expectedText: titlePrefix + "Test Page" + "\n\n" +
				"## Heading 1 Long Enough Title" + "\n\n" +
				"## H2 Long Enough" + "\n\n" +
				longParagraph,
			expectedBodyFound: true,
			expectedError:     false,
		},

		// 5. テーブルと pre タグのテスト (順序と短い段落の無視を反映)
		{
			name: "document_with_table_and_pre",
			url:  "http://example.com/table-and-pre",
			html: `<html><head><title>Code Table</title></head><body><main>
                   <article>
                      <p>Intro text</p>
                      <table><caption>Data Table</caption><tr><td>Col1</td><td>Val1</td></tr></table>
                      <pre>func hello() {}</pre>
                   </article>
                   </main></body></html>`,
			// "Intro text" (10文字) は MinParagraphLength より短いため無視される
			expectedText:      "【記事タイトル】 Code Table\n\n【表題】 Data Table\nCol1 | Val1\n\n```\nfunc hello() {}\n```",
			expectedBodyFound: true,
			expectedError:     false,
		},

		// 6. リストアイテムのテスト (短いテキストでも抽出される)
		{
			name: "document_with_list_items",
			html: `<html><head><title>List Test</title></head><body><main><ul><li>Item 1</li><li>Item 2</li></ul></main></body></html>`,
			expectedText: titlePrefix + "List Test" + "\n\n" +
				"Item 1" + "\n\n" +
				"Item 2",
			expectedBodyFound: true,
			expectedError:     false,
		},

		// 7. エラーケース: 何も抽出できない場合
		{
			name:              "empty_document_error",
			html:              `<html><head><title></title></head><body></body></html>`,
			expectedText:      "",
			expectedBodyFound: false,
			expectedError:     true,
		},

		// 8. ヘッダーやナビゲーションは本文から除外される
		{
			name: "document_without_main_skips_navigation",
			html: fmt.Sprintf(`<html><head><title>Nav</title></head><body>
                   <nav><ul><li>Home</li><li>About</li></ul></nav>
                   <p>%s</p>
                   <footer><p>Copyright notice that is long enough to pass</p></footer>
                   </body></html>`, longParagraph),
			expectedText:      titlePrefix + "Nav" + "\n\n" + longParagraph,
			expectedBodyFound: true,
		},

		// 9. 空白は1つにまとめられる
		{
			name:              "whitespace_is_normalized",
			html:              "<html><body><main><p>  This   paragraph\n\t has   irregular   spacing  </p></main></body></html>",
			expectedText:      "This paragraph has irregular spacing",
			expectedBodyFound: true,
		},

		// 10. テーブルのセル内の空白 (全角スペースを含む) もまとめられる
		{
			name:              "table_cells_are_normalized",
			html:              "<html><body><main><table><tr><td>  東京　 都 </td><td>\n 1400万\t</td></tr></table></main></body></html>",
			expectedText:      "東京 都 | 1400万",
			expectedBodyFound: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fetcher := &MockFetcher{
				htmlContent: tc.html,
				fetchError:  tc.fetchErr,
			}

			extractor, err := extract.NewExtractor(fetcher)
			require.NoError(t, err)

			ctx := context.Background()
			actualText, actualBodyFound, err := extractor.FetchAndExtractText(ctx, "https://example.com/"+tc.name)

			// 1. エラーチェック
			if tc.expectedError {
				assert.Error(t, err, "エラーが期待されていましたが、エラーがありませんでした")
				return
			}
			assert.NoError(t, err, "予期せぬエラーが発生しました")

			// 2. 本文抽出フラグチェック
			assert.Equal(t, tc.expectedBodyFound, actualBodyFound, "hasBodyFoundが期待値と異なります")

			// 3. 抽出テキストチェック
			assert.Equal(t, tc.expectedText, actualText, "抽出されたテキストが期待値と異なります")
		})
	}
}

func TestFetchAndExtractText_ErrorKinds(t *testing.T) {
	cause := errors.New("network timeout")
	extractor, err := extract.NewExtractor(&MockFetcher{fetchError: cause})
	require.NoError(t, err)

	_, _, err = extractor.FetchAndExtractText(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, cause)

	extractor, err = extract.NewExtractor(&MockFetcher{htmlContent: "<html></html>"})
	require.NoError(t, err)
	_, _, err = extractor.FetchAndExtractText(context.Background(), "https://example.com")
	assert.ErrorIs(t, err, extract.ErrNoContent)
}

func TestExtractText_Fragment(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<h2>Section title</h2><li>one</li>"))
	require.NoError(t, err)

	text, found, err := extract.ExtractText(doc)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "## Section title\n\none", text)
}
