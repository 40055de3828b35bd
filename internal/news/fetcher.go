package news

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"pmintel/internal/config"
)

// Fetcher reads a fixed list of feeds and keeps recent entries.
type Fetcher struct {
	sources []string
	limit   int
	window  time.Duration
	parser  *gofeed.Parser
	now     func() time.Time
}

func NewFetcher(cfg config.NewsConfig) *Fetcher {
	parser := gofeed.NewParser()
	if cfg.UserAgent != "" {
		parser.UserAgent = cfg.UserAgent
	}
	parser.Client = &http.Client{Timeout: cfg.Timeout.Duration}

	return &Fetcher{
		sources: cfg.Sources,
		limit:   cfg.LimitPerFeed,
		window:  cfg.RecencyWindow(),
		parser:  parser,
		now:     time.Now,
	}
}

// Fetch reads every source in order. A failing source is skipped and
// reported; it never affects items from other sources. The returned slice
// is never nil.
func (f *Fetcher) Fetch(ctx context.Context) ([]Item, []SourceError) {
	now := f.now()
	cutoff := now.Add(-f.window)

	items := []Item{}
	var failed []SourceError
	for _, src := range f.sources {
		if err := ctx.Err(); err != nil {
			failed = append(failed, SourceError{Source: src, Err: err})
			continue
		}

		feedItems, err := f.fetchSource(ctx, src, now, cutoff)
		if err != nil {
			slog.Warn("skipping feed", "source", src, "error", err)
			failed = append(failed, SourceError{Source: src, Err: err})
			continue
		}
		items = append(items, feedItems...)
	}

	slog.Info("news fetched", "items", len(items), "sources", len(f.sources), "failed", len(failed))
	return items, failed
}

func (f *Fetcher) fetchSource(ctx context.Context, src string, now, cutoff time.Time) ([]Item, error) {
	feed, err := f.parser.ParseURLWithContext(src, ctx)
	if err != nil {
		return nil, fmt.Errorf("parsing feed: %w", err)
	}
	return filterEntries(feed.Items, src, f.limit, now, cutoff), nil
}

// filterEntries truncates entries to limit, then drops anything published
// strictly before cutoff. Entries without a usable publish time get now.
func filterEntries(entries []*gofeed.Item, src string, limit int, now, cutoff time.Time) []Item {
	if limit >= 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	result := make([]Item, 0, len(entries))
	for _, entry := range entries {
		if entry == nil {
			continue
		}

		item := Item{
			Title:  strings.TrimSpace(entry.Title),
			Link:   entry.Link,
			Source: src,
		}

		published, err := PublishedAt(entry)
		if err != nil {
			slog.Debug("using fetch time for entry", "source", src, "title", item.Title, "error", err)
			published = now
			item.Fallback = fallbackReason(err)
		}
		if published.Before(cutoff) {
			continue
		}
		item.Published = published
		result = append(result, item)
	}
	return result
}
