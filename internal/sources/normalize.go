package sources

import (
	"time"

	"golazo/internal/types"
)

// Normalize maps one raw provider record onto a ContentItem. Providers
// disagree on field names and nesting, so every accepted spelling lives
// here, in one place, instead of scattered lookups downstream.
func Normalize(source string, raw map[string]any) *types.ContentItem {
	item := &types.ContentItem{
		Source:   source,
		Metadata: raw,
	}

	item.ID = stringField(raw, "id", "videoId", "video_id")
	item.Title = stringField(raw, "title", "name")
	item.MediaURL = stringField(raw, "matchviewUrl", "url", "video_url", "link")
	item.Thumbnail = stringField(raw, "thumbnail", "image", "preview")
	item.Competition = competitionField(raw)
	item.PublishedAt = timeField(raw, "date", "published_at", "timestamp")

	if item.MediaURL == "" {
		item.MediaURL = nestedVideoURL(raw)
	}

	return item
}

func stringField(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if val, ok := raw[key].(string); ok && val != "" {
			return val
		}
	}
	return ""
}

// competitionField accepts both a bare string and the nested
// {"competition": {"name": ...}} shape some providers use.
func competitionField(raw map[string]any) string {
	switch comp := raw["competition"].(type) {
	case string:
		return comp
	case map[string]any:
		return stringField(comp, "name")
	}
	return stringField(raw, "league", "tournament")
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func timeField(raw map[string]any, keys ...string) time.Time {
	for _, key := range keys {
		val, ok := raw[key].(string)
		if !ok || val == "" {
			continue
		}
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, val); err == nil {
				return parsed
			}
		}
	}
	return time.Time{}
}

func nestedVideoURL(raw map[string]any) string {
	videos, ok := raw["videos"].([]any)
	if !ok || len(videos) == 0 {
		return ""
	}
	first, ok := videos[0].(map[string]any)
	if !ok {
		return ""
	}
	return stringField(first, "url", "matchviewUrl")
}
