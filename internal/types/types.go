package types

import (
	"context"
	"time"
)

// ContentItem is the normalized form of one upstream record. Sources map
// whatever shape their provider returns into this struct once, at the
// fetch boundary; nothing downstream looks at raw provider payloads.
// Items are immutable after normalization.
type ContentItem struct {
	ID          string
	Title       string
	MediaURL    string
	Thumbnail   string
	Source      string
	Competition string
	PublishedAt time.Time
	Metadata    map[string]any
}

// HasTimestamp reports whether the upstream provider supplied a usable
// publication time. Items without one sort last.
func (c *ContentItem) HasTimestamp() bool {
	return !c.PublishedAt.IsZero()
}

type DeliveryResult struct {
	Target    string
	RemoteID  string
	Timestamp time.Time
	Metadata  map[string]any
}

type OutcomeStatus int

const (
	StatusDelivered OutcomeStatus = iota
	StatusSkipped
	StatusFailed
)

func (s OutcomeStatus) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

const (
	MethodPrimary  = "media_upload"
	MethodFallback = "link_post"
)

// Outcome is the terminal result of running one item through the
// delivery pipeline.
type Outcome struct {
	Status   OutcomeStatus
	Identity string
	RemoteID string
	Method   string
	Attempts int
	Reason   string
	Err      error
}

type Source interface {
	Name() string
	Initialize(ctx context.Context) error
	Fetch(ctx context.Context) ([]*ContentItem, error)
	Shutdown(ctx context.Context) error
}

// Deliverer is one downstream platform. UploadMedia is the high-fidelity
// primary method, PostLink the lower-fidelity fallback. Both must report
// failures as *DeliveryError so the pipeline can classify them.
type Deliverer interface {
	Name() string
	Initialize(ctx context.Context) error
	UploadMedia(ctx context.Context, item *ContentItem, caption string) (*DeliveryResult, error)
	PostLink(ctx context.Context, item *ContentItem, caption string) (*DeliveryResult, error)
	Shutdown(ctx context.Context) error
}

// Prefetcher is optionally implemented by deliverers that can warm an
// item's media ahead of time. The orchestrator calls it in a background
// goroutine while the previous delivery is still in flight.
type Prefetcher interface {
	Prefetch(ctx context.Context, item *ContentItem)
}
