package sources

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmcdole/gofeed"

	"golazo/internal/types"
)

// RSSSource pulls highlight entries from an RSS/Atom feed. Feed entries
// are translated through the same normalization path as the API
// sources.
type RSSSource struct {
	name     string
	feedURL  string
	parser   *gofeed.Parser
	maxItems int
	logger   *slog.Logger
}

func NewRSSSource(name, feedURL string, maxItems int, logger *slog.Logger) (*RSSSource, error) {
	if feedURL == "" {
		return nil, fmt.Errorf("rss: feed_url is required")
	}
	if maxItems <= 0 {
		maxItems = 50
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RSSSource{
		name:     name,
		feedURL:  feedURL,
		parser:   gofeed.NewParser(),
		maxItems: maxItems,
		logger:   logger,
	}, nil
}

func (r *RSSSource) Name() string {
	return r.name
}

func (r *RSSSource) Initialize(ctx context.Context) error {
	r.logger.Info("RSS source initializing", "source", r.name, "feed_url", r.feedURL, "max_items", r.maxItems)
	return nil
}

func (r *RSSSource) Fetch(ctx context.Context) ([]*types.ContentItem, error) {
	feed, err := r.parser.ParseURLWithContext(r.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	limit := r.maxItems
	if limit > len(feed.Items) {
		limit = len(feed.Items)
	}

	items := make([]*types.ContentItem, 0, limit)
	for _, entry := range feed.Items[:limit] {
		items = append(items, r.convert(entry))
	}

	r.logger.Info("RSS source fetched items", "source", r.name, "count", len(items))
	return items, nil
}

func (r *RSSSource) convert(entry *gofeed.Item) *types.ContentItem {
	raw := map[string]any{
		"id":    entry.GUID,
		"title": entry.Title,
		"link":  entry.Link,
	}
	if entry.PublishedParsed != nil {
		raw["date"] = entry.PublishedParsed.Format(time.RFC3339)
	}
	if entry.Image != nil {
		raw["thumbnail"] = entry.Image.URL
	}
	// A video enclosure outranks the article link as the media reference.
	for _, enc := range entry.Enclosures {
		if enc.URL != "" {
			raw["video_url"] = enc.URL
			break
		}
	}

	return Normalize(r.name, raw)
}

func (r *RSSSource) Shutdown(ctx context.Context) error {
	return nil
}
