package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Mode はHTMLの解釈方法を表します。
type Mode int

const (
	// ModeDocument は入力を完全なHTML5文書として解釈します (html/head/body が補完されます)。
	ModeDocument Mode = iota
	// ModeFragment は入力を body 内の断片として解釈し、補完要素を加えません。
	ModeFragment
)

func (m Mode) String() string {
	switch m {
	case ModeDocument:
		return "document"
	case ModeFragment:
		return "fragment"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode は文字列からモードを解釈します。空文字は ModeDocument です。
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "document":
		return ModeDocument, nil
	case "fragment":
		return ModeFragment, nil
	default:
		return ModeDocument, fmt.Errorf("未対応のパーサーモードです: %q", s)
	}
}

// ErrEmptyFeed は空のボディをフィードとして解析しようとした場合に返されます。
var ErrEmptyFeed = errors.New("フィードのボディが空です")

// ParseHTML はマークアップを解析し、セレクタで検索可能な文書を返します。
func ParseHTML(content string, mode Mode) (*goquery.Document, error) {
	switch mode {
	case ModeDocument:
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
		if err != nil {
			return nil, fmt.Errorf("HTMLの解析に失敗しました: %w", err)
		}
		return doc, nil
	case ModeFragment:
		body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
		nodes, err := html.ParseFragment(strings.NewReader(content), body)
		if err != nil {
			return nil, fmt.Errorf("HTML断片の解析に失敗しました: %w", err)
		}
		root := &html.Node{Type: html.DocumentNode}
		for _, n := range nodes {
			root.AppendChild(n)
		}
		return goquery.NewDocumentFromNode(root), nil
	default:
		return nil, fmt.Errorf("未対応のパーサーモードです: %s", mode)
	}
}

// ParseFeed は RSS/Atom/JSON Feed を解析します。
func ParseFeed(content string) (*gofeed.Feed, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyFeed
	}
	feed, err := gofeed.NewParser().ParseString(content)
	if err != nil {
		return nil, fmt.Errorf("RSSフィードのパース失敗: %w", err)
	}
	return feed, nil
}
