package core

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golazo/internal/types"
)

type fakeSource struct {
	name  string
	items []*types.ContentItem
}

func (s *fakeSource) Name() string                         { return s.name }
func (s *fakeSource) Initialize(ctx context.Context) error { return nil }
func (s *fakeSource) Shutdown(ctx context.Context) error   { return nil }

func (s *fakeSource) Fetch(ctx context.Context) ([]*types.ContentItem, error) {
	return s.items, nil
}

func TestBotRunOnceDeliversAndStops(t *testing.T) {
	target := &fakeTarget{name: "fake"}
	orch, led, _ := newTestOrchestrator(t, target, OrchestratorConfig{MaxDeliveries: 5})
	src := &fakeSource{name: "test", items: []*types.ContentItem{item("one", "One", time.Now())}}

	bot := NewBot(BotConfig{
		Name:    "test",
		Sources: []types.Source{src},
		RunOnce: true,
		Logger:  discardLogger(),
	}, orch, led)

	require.NoError(t, bot.Start(context.Background()))

	assert.Equal(t, []string{"One"}, target.uploaded)
	assert.True(t, led.IsDelivered("one"))
	assert.False(t, bot.IsRunning())
}

func TestBotStopIsIdempotent(t *testing.T) {
	target := &fakeTarget{name: "fake"}
	orch, led, _ := newTestOrchestrator(t, target, OrchestratorConfig{MaxDeliveries: 1})

	bot := NewBot(BotConfig{
		Name:     "test",
		Interval: time.Hour,
		Logger:   discardLogger(),
	}, orch, led)

	errCh := make(chan error, 1)
	go func() { errCh <- bot.Start(context.Background()) }()

	require.Eventually(t, bot.IsRunning, time.Second, 5*time.Millisecond)

	// Concurrent Stops must not double-close the stop channel.
	var wg sync.WaitGroup
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bot.Stop(context.Background())
		}()
	}
	wg.Wait()

	require.NoError(t, <-errCh)
	assert.False(t, bot.IsRunning())
}

func TestBotStartTwiceFails(t *testing.T) {
	target := &fakeTarget{name: "fake"}
	orch, led, _ := newTestOrchestrator(t, target, OrchestratorConfig{MaxDeliveries: 1})

	bot := NewBot(BotConfig{
		Name:     "test",
		Interval: time.Hour,
		Logger:   discardLogger(),
	}, orch, led)

	errCh := make(chan error, 1)
	go func() { errCh <- bot.Start(context.Background()) }()
	require.Eventually(t, bot.IsRunning, time.Second, 5*time.Millisecond)

	require.Error(t, bot.Start(context.Background()))

	require.NoError(t, bot.Stop(context.Background()))
	require.NoError(t, <-errCh)
}
