package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golazo/internal/ledger"
	"golazo/internal/types"
)

// Bot ties sources and the orchestrator into a schedulable unit: fetch
// all candidates, run one orchestrated batch, report the summary. It
// runs once or on an interval.
type Bot struct {
	name         string
	sources      []types.Source
	orchestrator *Orchestrator
	ledger       ledger.Ledger
	interval     time.Duration
	runOnce      bool
	logger       *slog.Logger
	mu           sync.RWMutex
	running      bool
	stopped      bool
	stopCh       chan struct{}
}

type BotConfig struct {
	Name     string
	Sources  []types.Source
	Interval time.Duration
	RunOnce  bool
	Logger   *slog.Logger
}

func NewBot(config BotConfig, orchestrator *Orchestrator, led ledger.Ledger) *Bot {
	if config.Interval == 0 {
		config.Interval = 30 * time.Minute
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Bot{
		name:         config.Name,
		sources:      config.Sources,
		orchestrator: orchestrator,
		ledger:       led,
		interval:     config.Interval,
		runOnce:      config.RunOnce,
		logger:       config.Logger,
		stopCh:       make(chan struct{}),
	}
}

func (b *Bot) Name() string {
	return b.name
}

func (b *Bot) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.running {
		b.mu.Unlock()
		return fmt.Errorf("bot already running")
	}
	b.running = true
	b.mu.Unlock()
	defer b.markStopped()

	if err := b.initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize bot: %w", err)
	}

	if b.runOnce {
		err := b.executeRun(ctx)
		if serr := b.Shutdown(context.WithoutCancel(ctx)); serr != nil {
			b.logger.Warn("Shutdown after run reported errors", "error", serr)
		}
		return err
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	if err := b.executeRun(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return nil
		case <-ticker.C:
			if err := b.executeRun(ctx); err != nil {
				return err
			}
		}
	}
}

func (b *Bot) initialize(ctx context.Context) error {
	for _, source := range b.sources {
		b.logger.Info("Initializing source", "source", source.Name())
		if err := source.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize source %s: %w", source.Name(), err)
		}
	}

	deliverer := b.orchestrator.pipeline.Deliverer()
	b.logger.Info("Initializing deliverer", "target", deliverer.Name())
	if err := deliverer.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize deliverer %s: %w", deliverer.Name(), err)
	}

	return nil
}

// executeRun fetches one batch from every source and hands it to the
// orchestrator. A single source failing does not kill the run; the
// other sources still get their candidates considered.
func (b *Bot) executeRun(ctx context.Context) error {
	b.logger.Info("Starting run", "bot", b.name, "sources", len(b.sources))

	var candidates []*types.ContentItem
	for _, source := range b.sources {
		items, err := source.Fetch(ctx)
		if err != nil {
			b.logger.Error("Source fetch failed", "source", source.Name(), "error", err)
			continue
		}
		candidates = append(candidates, items...)
	}

	summary, err := b.orchestrator.Run(ctx, candidates)
	b.logger.Info("Run complete", "bot", b.name, "summary", summary.String())

	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	return nil
}

// Stop is safe to call more than once; only the first call closes the
// stop channel and runs the shutdown sequence.
func (b *Bot) Stop(ctx context.Context) error {
	b.mu.Lock()
	if !b.running || b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	b.mu.Unlock()

	close(b.stopCh)
	return b.Shutdown(ctx)
}

func (b *Bot) Shutdown(ctx context.Context) error {
	var errs []error

	for _, source := range b.sources {
		if err := source.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("source %s shutdown error: %w", source.Name(), err))
		}
	}

	deliverer := b.orchestrator.pipeline.Deliverer()
	if err := deliverer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("deliverer %s shutdown error: %w", deliverer.Name(), err))
	}

	if err := b.ledger.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("ledger close error: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

func (b *Bot) IsRunning() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.running
}

func (b *Bot) markStopped() {
	b.mu.Lock()
	b.running = false
	b.mu.Unlock()
}
