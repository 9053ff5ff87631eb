package core

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golazo/internal/caption"
	"golazo/internal/delivery"
	"golazo/internal/identity"
	"golazo/internal/ledger"
	"golazo/internal/types"
)

type OrchestratorConfig struct {
	MaxDeliveries   int
	PostDelay       time.Duration
	ExcludeKeywords []string
	DryRun          bool
}

func (c *OrchestratorConfig) applyDefaults() {
	if c.MaxDeliveries <= 0 {
		c.MaxDeliveries = 3
	}
	if c.PostDelay <= 0 {
		c.PostDelay = 5 * time.Second
	}
}

// Summary is reported for every run, aborted ones included, and
// reflects whatever partial progress was made.
type Summary struct {
	Fetched   int
	Delivered int
	Skipped   int
	Failed    int
}

func (s *Summary) String() string {
	return fmt.Sprintf("fetched=%d delivered=%d skipped=%d failed=%d", s.Fetched, s.Delivered, s.Skipped, s.Failed)
}

// Orchestrator walks candidates newest-first, gates each one on the
// ledger, hands survivors to the delivery pipeline and records confirmed
// deliveries. One delivery is in flight at a time; the platforms rate
// limit per account, so concurrency would only buy duplicate risk.
type Orchestrator struct {
	ledger   ledger.Ledger
	pipeline *delivery.Pipeline
	captions *caption.Builder
	config   OrchestratorConfig
	logger   *slog.Logger
}

func NewOrchestrator(led ledger.Ledger, pipeline *delivery.Pipeline, captions *caption.Builder, config OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}

	return &Orchestrator{
		ledger:   led,
		pipeline: pipeline,
		captions: captions,
		config:   config,
		logger:   logger,
	}
}

// Run processes one batch of candidates. The ledger is flushed exactly
// once on the way out, whatever happened inside the loop; a flush
// failure is logged and swallowed since the deliveries themselves
// already succeeded.
func (o *Orchestrator) Run(ctx context.Context, candidates []*types.ContentItem) (summary *Summary, err error) {
	summary = &Summary{Fetched: len(candidates)}
	sorted := sortNewestFirst(candidates)

	var prefetches sync.WaitGroup
	defer prefetches.Wait()

	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if ferr := o.ledger.Flush(flushCtx); ferr != nil {
			o.logger.Error("Ledger flush failed, future runs may re-deliver", "error", ferr)
		}
	}()

	attempted := make(map[string]bool)
	delivered := 0

	for i, item := range sorted {
		if delivered >= o.config.MaxDeliveries {
			o.logger.Info("Delivery cap reached", "cap", o.config.MaxDeliveries)
			break
		}

		select {
		case <-ctx.Done():
			o.logger.Info("Run cancelled, flushing ledger and exiting")
			return summary, ctx.Err()
		default:
		}

		id, rerr := identity.Resolve(item)
		if rerr != nil {
			o.logger.Warn("Skipping item with unresolvable identity", "source", item.Source, "error", rerr)
			summary.Skipped++
			continue
		}

		if o.excluded(item) {
			o.logger.Debug("Item matches exclusion filter", "identity", id, "title", item.Title)
			summary.Skipped++
			continue
		}

		if o.ledger.IsDelivered(id) {
			o.logger.Debug("Item already delivered, skipping", "identity", id)
			summary.Skipped++
			continue
		}

		if attempted[id] {
			o.logger.Debug("Duplicate identity within run, skipping", "identity", id, "title", item.Title)
			summary.Skipped++
			continue
		}
		attempted[id] = true

		text, cerr := o.captions.Build(item)
		if cerr != nil {
			o.logger.Error("Caption build failed", "identity", id, "error", cerr)
			summary.Failed++
			continue
		}

		if o.config.DryRun {
			o.logger.Info("[dry run] Would deliver item", "identity", id, "title", item.Title, "media_url", item.MediaURL)
			summary.Delivered++
			delivered++
			continue
		}

		o.prefetchNext(ctx, sorted, i+1, &prefetches)

		o.logger.Info("Delivering item", "identity", id, "title", item.Title)
		outcome := o.pipeline.Deliver(ctx, item, id, text)

		switch outcome.Status {
		case types.StatusDelivered:
			o.ledger.MarkDelivered(id, map[string]any{
				"title":     item.Title,
				"source":    item.Source,
				"media_url": item.MediaURL,
				"remote_id": outcome.RemoteID,
				"method":    outcome.Method,
			})
			summary.Delivered++
			delivered++
			o.logger.Info("Item delivered", "identity", id, "remote_id", outcome.RemoteID, "method", outcome.Method, "attempts", outcome.Attempts)

			if delivered < o.config.MaxDeliveries && i < len(sorted)-1 {
				// Platform courtesy: space out consecutive posts.
				select {
				case <-ctx.Done():
					return summary, ctx.Err()
				case <-time.After(o.config.PostDelay):
				}
			}

		case types.StatusSkipped:
			summary.Skipped++

		case types.StatusFailed:
			summary.Failed++
			if types.IsAuth(outcome.Err) {
				// Every later delivery would fail the same way.
				o.logger.Error("Aborting run on credential failure", "error", outcome.Err)
				return summary, fmt.Errorf("run aborted: %w", outcome.Err)
			}
			o.logger.Warn("Item failed, continuing with next candidate", "identity", id, "error", outcome.Err)
		}
	}

	return summary, nil
}

// prefetchNext warms the next candidate's media in the background while
// the current delivery is in flight. A single goroutine, not a pool; the
// point is hiding latency, not parallel delivery.
func (o *Orchestrator) prefetchNext(ctx context.Context, sorted []*types.ContentItem, next int, wg *sync.WaitGroup) {
	prefetcher, ok := o.pipeline.Deliverer().(types.Prefetcher)
	if !ok || next >= len(sorted) {
		return
	}

	item := sorted[next]
	wg.Add(1)
	go func() {
		defer wg.Done()
		pctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		prefetcher.Prefetch(pctx, item)
	}()
}

func (o *Orchestrator) excluded(item *types.ContentItem) bool {
	if len(o.config.ExcludeKeywords) == 0 {
		return false
	}
	title := strings.ToLower(item.Title)
	for _, keyword := range o.config.ExcludeKeywords {
		if keyword != "" && strings.Contains(title, strings.ToLower(keyword)) {
			return true
		}
	}
	return false
}

// sortNewestFirst orders candidates by source-provided timestamp,
// newest first; items without a timestamp sort last, original order
// preserved among them.
func sortNewestFirst(candidates []*types.ContentItem) []*types.ContentItem {
	sorted := make([]*types.ContentItem, len(candidates))
	copy(sorted, candidates)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		switch {
		case a.HasTimestamp() && !b.HasTimestamp():
			return true
		case !a.HasTimestamp():
			return false
		default:
			return a.PublishedAt.After(b.PublishedAt)
		}
	})

	return sorted
}
