package feed

import (
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Entry はフィード中の1件を表示用にまとめたものです。
type Entry struct {
	Title     string
	Link      string
	Published *time.Time
}

// FeedAdapter は gofeed.Feed から表示用のエントリーを取り出します。
// 相対リンクはフィード自身のリンクを基準に解決し、重複は最初の1件のみ残します。
type FeedAdapter struct {
	*gofeed.Feed
}

// NewFeedAdapter は gofeed.Feed から新しいアダプターを作成します。
func NewFeedAdapter(feed *gofeed.Feed) *FeedAdapter {
	return &FeedAdapter{Feed: feed}
}

// Entries はリンクを持つアイテムを出現順に返します。
func (a *FeedAdapter) Entries() []Entry {
	if a == nil || a.Feed == nil || len(a.Items) == 0 {
		return []Entry{}
	}

	base, _ := url.Parse(a.Link)
	seen := make(map[string]struct{}, len(a.Items))
	entries := make([]Entry, 0, len(a.Items))
	for _, item := range a.Items {
		if item == nil {
			continue
		}
		link := resolve(base, strings.TrimSpace(item.Link))
		if link == "" {
			continue
		}
		if _, dup := seen[link]; dup {
			continue
		}
		seen[link] = struct{}{}
		entries = append(entries, Entry{
			Title:     strings.TrimSpace(item.Title),
			Link:      link,
			Published: item.PublishedParsed,
		})
	}
	return entries
}

func resolve(base *url.URL, link string) string {
	if link == "" {
		return ""
	}
	ref, err := url.Parse(link)
	if err != nil {
		return link
	}
	if base == nil || ref.IsAbs() || base.Scheme == "" {
		return link
	}
	return base.ResolveReference(ref).String()
}
