package delivery

import (
	"context"
	"log/slog"
	"math"
	"time"

	"golazo/internal/types"
)

type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 60 * time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 90 * time.Second
	}
}

// Pipeline pushes one item through a deliverer: primary media upload
// with classified retries, then a single fallback link post. It never
// touches the ledger; recording a delivery is the orchestrator's job.
type Pipeline struct {
	deliverer types.Deliverer
	config    Config
	logger    *slog.Logger
}

func NewPipeline(deliverer types.Deliverer, config Config, logger *slog.Logger) *Pipeline {
	config.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		deliverer: deliverer,
		config:    config,
		logger:    logger,
	}
}

// Deliver runs the state machine for a single item. Terminal states are
// Delivered, Skipped (no usable media, never attempted) and Failed. An
// auth failure comes back as a Failed outcome whose Err satisfies
// types.IsAuth; the caller must abort the whole run on it, since every
// later delivery would fail the same way.
func (p *Pipeline) Deliver(ctx context.Context, item *types.ContentItem, identity, caption string) *types.Outcome {
	if item.MediaURL == "" {
		p.logger.Warn("Item has no media reference, skipping", "identity", identity, "title", item.Title)
		return &types.Outcome{
			Status:   types.StatusSkipped,
			Identity: identity,
			Reason:   "no usable media reference",
		}
	}

	outcome := &types.Outcome{Identity: identity}
	delay := p.config.InitialBackoff
	var lastErr error

	for attempt := 0; attempt < p.config.MaxAttempts; attempt++ {
		result, err := p.attempt(ctx, types.MethodPrimary, item, caption)
		outcome.Attempts++

		if err == nil {
			if attempt > 0 {
				p.logger.Info("Primary delivery succeeded on retry", "target", p.deliverer.Name(), "identity", identity, "attempt", attempt+1)
			}
			outcome.Status = types.StatusDelivered
			outcome.Method = types.MethodPrimary
			outcome.RemoteID = result.RemoteID
			return outcome
		}

		lastErr = err

		if types.IsAuth(err) {
			p.logger.Error("Credential rejected by platform", "target", p.deliverer.Name(), "error", err)
			outcome.Status = types.StatusFailed
			outcome.Err = err
			outcome.Reason = "auth"
			return outcome
		}

		if !types.IsRetryable(err) {
			p.logger.Warn("Primary delivery failed fatally for this method", "target", p.deliverer.Name(), "identity", identity, "error", err)
			break
		}

		if attempt == p.config.MaxAttempts-1 {
			p.logger.Warn("Primary delivery exhausted retries", "target", p.deliverer.Name(), "identity", identity, "error", err)
			break
		}

		wait := delay
		if retryAfter := types.RetryAfterOf(err); retryAfter > 0 {
			// An explicit server-provided delay overrides the schedule.
			wait = retryAfter
		}

		p.logger.Warn("Primary delivery attempt failed, retrying",
			"target", p.deliverer.Name(), "identity", identity,
			"attempt", attempt+1, "max_attempts", p.config.MaxAttempts,
			"wait", wait, "error", err)

		select {
		case <-ctx.Done():
			outcome.Status = types.StatusFailed
			outcome.Err = ctx.Err()
			outcome.Reason = "cancelled"
			return outcome
		case <-time.After(wait):
		}

		delay = p.nextBackoff(attempt + 1)
	}

	return p.fallback(ctx, item, identity, caption, outcome, lastErr)
}

// fallback tries the lower-fidelity link post exactly once.
func (p *Pipeline) fallback(ctx context.Context, item *types.ContentItem, identity, caption string, outcome *types.Outcome, primaryErr error) *types.Outcome {
	p.logger.Info("Falling back to link post", "target", p.deliverer.Name(), "identity", identity)

	result, err := p.attempt(ctx, types.MethodFallback, item, caption)
	outcome.Attempts++

	if err == nil {
		outcome.Status = types.StatusDelivered
		outcome.Method = types.MethodFallback
		outcome.RemoteID = result.RemoteID
		return outcome
	}

	if types.IsAuth(err) {
		outcome.Status = types.StatusFailed
		outcome.Err = err
		outcome.Reason = "auth"
		return outcome
	}

	p.logger.Error("Both delivery methods exhausted",
		"target", p.deliverer.Name(), "identity", identity,
		"primary_error", primaryErr, "fallback_error", err)

	outcome.Status = types.StatusFailed
	outcome.Err = err
	outcome.Reason = "both methods exhausted"
	return outcome
}

// attempt issues one network call. The call itself is detached from run
// cancellation so a half-sent upload is never abandoned and retried as a
// duplicate later; cancellation is honored between attempts instead.
func (p *Pipeline) attempt(ctx context.Context, method string, item *types.ContentItem, caption string) (*types.DeliveryResult, error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.AttemptTimeout)
	defer cancel()

	if method == types.MethodPrimary {
		return p.deliverer.UploadMedia(callCtx, item, caption)
	}
	return p.deliverer.PostLink(callCtx, item, caption)
}

// Deliverer exposes the wrapped platform client, mainly so callers can
// probe it for optional capabilities like prefetching.
func (p *Pipeline) Deliverer() types.Deliverer {
	return p.deliverer
}

func (p *Pipeline) nextBackoff(attempt int) time.Duration {
	d := time.Duration(math.Pow(2, float64(attempt))) * p.config.InitialBackoff
	if d > p.config.MaxBackoff {
		return p.config.MaxBackoff
	}
	return d
}
