package identity

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"golazo/internal/types"
)

// Resolve derives the deduplication key for an item. Upstream providers
// disagree on which fields exist, so resolution walks a fixed priority
// order: explicit ID, then title plus date, then title alone, then the
// media URL. Two providers reporting the same event under different
// seeds produce near-duplicates; that is accepted.
func Resolve(item *types.ContentItem) (string, error) {
	if id := strings.TrimSpace(item.ID); id != "" {
		return id, nil
	}

	title := normalizeSeed(item.Title)

	if title != "" && item.HasTimestamp() {
		return title + "|" + item.PublishedAt.UTC().Format(time.RFC3339), nil
	}

	if title != "" {
		return title, nil
	}

	if url := strings.TrimSpace(item.MediaURL); url != "" {
		return url, nil
	}

	return "", &types.UnresolvableIdentityError{
		Source: item.Source,
		Reason: "item has neither title nor media URL",
	}
}

// normalizeSeed canonicalizes a title so that cosmetic differences
// (case, unicode forms, stray whitespace) between providers do not
// produce distinct identities.
func normalizeSeed(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}
