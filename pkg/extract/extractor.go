package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	textUtils "github.com/shouni/go-utils/text"
)

// Extractor は DocumentFetcher で取得した文書から本文テキストを抽出します。
type Extractor struct {
	fetcher DocumentFetcher
}

// NewExtractor は、新しいExtractorのインスタンスを生成します。
func NewExtractor(fetcher DocumentFetcher) (*Extractor, error) {
	if fetcher == nil {
		return nil, errors.New("extract.NewExtractor: DocumentFetcher cannot be nil")
	}
	return &Extractor{fetcher: fetcher}, nil
}

const (
	MinParagraphLength   = 20
	MinHeadingLength     = 3
	mainContentSelectors = "article, main, div[role='main'], #main, #content, .post-content, .article-body, .entry-content, .markdown-body, .readme"
	noiseSelectors       = ".related-posts, .social-share, .comments, .ad-banner, .advertisement"
	chromeSelectors      = "header, footer, nav, aside, .sidebar, script, style, noscript, form"

	// textExtractionTags は本文抽出に使用するHTMLタグです。
	textExtractionTags = "p, h1, h2, h3, h4, h5, h6, li, blockquote"

	titlePrefix        = "【記事タイトル】 "
	tableCaptionPrefix = "【表題】 "
)

// ErrNoContent は文書から何も抽出できなかった場合に返されます。
var ErrNoContent = errors.New("webページから何も抽出できませんでした")

// FetchAndExtractText は指定されたURLの文書を取得し、整形されたテキストを抽出します。
// hasBodyFound はタイトル以外の本文が見つかったかどうかを表します。
func (e *Extractor) FetchAndExtractText(ctx context.Context, url string) (text string, hasBodyFound bool, err error) {
	doc, err := e.fetcher.FetchDocument(ctx, url)
	if err != nil {
		return "", false, fmt.Errorf("文書の取得に失敗しました (URL: %s): %w", url, err)
	}
	return ExtractText(doc)
}

// ExtractText は解析済みの文書から本文とタイトルを抽出し、整形します。
// 文書中のノイズ要素は取り除かれるため、doc は変更されます。
func ExtractText(doc *goquery.Document) (text string, hasBodyFound bool, err error) {
	var parts []string

	// 1. ページタイトル
	pageTitle := strings.TrimSpace(doc.Find("title").First().Text())
	if pageTitle != "" {
		parts = append(parts, titlePrefix+pageTitle)
	}

	// 2. メインコンテンツを特定し、ノイズを除去
	mainContent := findMainContent(doc)
	mainContent.Find(noiseSelectors).Remove()

	// 3. 対象要素を文書順に走査
	mainContent.Find(textExtractionTags + ", table, pre").Each(func(_ int, s *goquery.Selection) {
		var content string
		switch {
		case s.Is("table"):
			content = processTable(s)
		case s.Is("pre"):
			if preText := strings.TrimSpace(s.Text()); preText != "" {
				content = "```\n" + preText + "\n```"
			}
		default:
			content = processGeneralElement(s)
		}
		if content != "" {
			parts = append(parts, content)
		}
	})

	return formatResult(parts)
}

// findMainContent は本文らしい要素を返します。見つからなければ
// ヘッダーやナビゲーションを除いた body 全体を対象にします。
func findMainContent(doc *goquery.Document) *goquery.Selection {
	if main := doc.Find(mainContentSelectors).First(); main.Length() > 0 {
		return main
	}
	root := doc.Find("body").First()
	if root.Length() == 0 {
		// ModeFragment で解析された文書には body がない
		root = doc.Selection
	}
	root.Find(chromeSelectors).Remove()
	return root
}

func processGeneralElement(s *goquery.Selection) string {
	tmp := s.Clone()
	tmp.Find("pre, table").Remove()

	text := textUtils.NormalizeText(tmp.Text())
	if text == "" {
		return ""
	}

	length := utf8.RuneCountInString(text)
	switch {
	case s.Is("h1, h2, h3, h4, h5, h6"):
		if length > MinHeadingLength {
			return "## " + text
		}
	case s.Is("li"), length > MinParagraphLength:
		return text
	}
	return ""
}

// processTable はテーブルを「セル | セル」形式の行に整形します。
func processTable(s *goquery.Selection) string {
	var tableContent []string
	if caption := strings.TrimSpace(s.Find("caption").First().Text()); caption != "" {
		tableContent = append(tableContent, tableCaptionPrefix+caption)
	}
	s.Find("tr").Each(func(_ int, row *goquery.Selection) {
		var cells []string
		row.Find("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, textUtils.NormalizeText(cell.Text()))
		})
		tableContent = append(tableContent, strings.Join(cells, " | "))
	})
	return strings.Join(tableContent, "\n")
}

func formatResult(parts []string) (string, bool, error) {
	if len(parts) == 0 {
		return "", false, ErrNoContent
	}
	if len(parts) == 1 && strings.HasPrefix(parts[0], titlePrefix) {
		return parts[0], false, nil
	}
	return strings.Join(parts, "\n\n"), true, nil
}
