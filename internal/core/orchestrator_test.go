package core

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golazo/internal/caption"
	"golazo/internal/delivery"
	"golazo/internal/ledger"
	"golazo/internal/ledger/jsonfile"
	"golazo/internal/types"
)

type fakeTarget struct {
	name        string
	uploadErr   error
	uploadCalls int
	uploaded    []string
}

func (f *fakeTarget) Name() string                         { return f.name }
func (f *fakeTarget) Initialize(ctx context.Context) error { return nil }
func (f *fakeTarget) Shutdown(ctx context.Context) error   { return nil }

func (f *fakeTarget) UploadMedia(ctx context.Context, item *types.ContentItem, captionText string) (*types.DeliveryResult, error) {
	f.uploadCalls++
	if f.uploadErr != nil {
		return nil, f.uploadErr
	}
	f.uploaded = append(f.uploaded, item.Title)
	return &types.DeliveryResult{Target: f.name, RemoteID: "post-" + item.Title, Timestamp: time.Now()}, nil
}

func (f *fakeTarget) PostLink(ctx context.Context, item *types.ContentItem, captionText string) (*types.DeliveryResult, error) {
	return nil, f.uploadErr
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestOrchestrator(t *testing.T, target types.Deliverer, cfg OrchestratorConfig) (*Orchestrator, ledger.Ledger, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "delivered.json")
	led, err := jsonfile.New(context.Background(), ledger.Options{Path: path, MaxHistory: 100})
	require.NoError(t, err)

	captions, err := caption.NewBuilder("")
	require.NoError(t, err)

	pipeline := delivery.NewPipeline(target, delivery.Config{
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
	}, discardLogger())

	if cfg.PostDelay == 0 {
		cfg.PostDelay = time.Millisecond
	}

	return NewOrchestrator(led, pipeline, captions, cfg, discardLogger()), led, path
}

func item(id, title string, published time.Time) *types.ContentItem {
	return &types.ContentItem{
		ID:          id,
		Title:       title,
		MediaURL:    "https://example.com/" + id + ".mp4",
		Source:      "test",
		PublishedAt: published,
	}
}

func TestRunNeverRedeliversLedgeredIdentity(t *testing.T) {
	target := &fakeTarget{name: "fake"}
	orch, led, _ := newTestOrchestrator(t, target, OrchestratorConfig{MaxDeliveries: 10})

	led.MarkDelivered("seen-before", nil)

	summary, err := orch.Run(context.Background(), []*types.ContentItem{
		item("seen-before", "Old Clip", time.Now()),
		item("brand-new", "New Clip", time.Now()),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Fetched)
	assert.Equal(t, 1, summary.Delivered)
	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, []string{"New Clip"}, target.uploaded)
}

func TestRunNewestFirstWithDeliveryCap(t *testing.T) {
	target := &fakeTarget{name: "fake"}
	orch, led, _ := newTestOrchestrator(t, target, OrchestratorConfig{MaxDeliveries: 1})

	older := item("b", "B", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	newer := item("a", "A", time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))

	summary, err := orch.Run(context.Background(), []*types.ContentItem{older, newer})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Delivered)
	assert.Equal(t, []string{"A"}, target.uploaded, "only the newer item is attempted")
	assert.True(t, led.IsDelivered("a"))
	assert.False(t, led.IsDelivered("b"), "unattempted item must stay out of the ledger")
}

func TestRunItemsWithoutTimestampSortLast(t *testing.T) {
	target := &fakeTarget{name: "fake"}
	orch, _, _ := newTestOrchestrator(t, target, OrchestratorConfig{MaxDeliveries: 1})

	undated := item("undated", "Undated", time.Time{})
	dated := item("dated", "Dated", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	_, err := orch.Run(context.Background(), []*types.ContentItem{undated, dated})
	require.NoError(t, err)

	assert.Equal(t, []string{"Dated"}, target.uploaded)
}

func TestRunAbortsImmediatelyOnAuthError(t *testing.T) {
	target := &fakeTarget{
		name:      "fake",
		uploadErr: &types.DeliveryError{Platform: "fake", Kind: types.KindAuth, Code: 190, Message: "bad token"},
	}
	orch, _, _ := newTestOrchestrator(t, target, OrchestratorConfig{MaxDeliveries: 10})

	now := time.Now()
	summary, err := orch.Run(context.Background(), []*types.ContentItem{
		item("one", "One", now),
		item("two", "Two", now.Add(-time.Minute)),
		item("three", "Three", now.Add(-2*time.Minute)),
	})

	require.Error(t, err)
	assert.True(t, types.IsAuth(err))
	assert.Equal(t, 1, target.uploadCalls, "no further items after auth failure")
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 3, summary.Fetched, "summary reflects partial progress")
}

func TestRunSkipsDuplicateIdentityWithinRun(t *testing.T) {
	target := &fakeTarget{name: "fake"}
	orch, led, _ := newTestOrchestrator(t, target, OrchestratorConfig{MaxDeliveries: 10})

	now := time.Now()
	first := item("same-event", "Provider One Title", now)
	second := item("same-event", "Provider Two Title", now.Add(-time.Second))

	summary, err := orch.Run(context.Background(), []*types.ContentItem{first, second})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Delivered)
	assert.Equal(t, 1, summary.Skipped)
	assert.Len(t, target.uploaded, 1)
	assert.True(t, led.IsDelivered("same-event"))
}

func TestRunSkipsUnresolvableItems(t *testing.T) {
	target := &fakeTarget{name: "fake"}
	orch, _, _ := newTestOrchestrator(t, target, OrchestratorConfig{MaxDeliveries: 10})

	blank := &types.ContentItem{Source: "test"}
	good := item("good", "Good", time.Now())

	summary, err := orch.Run(context.Background(), []*types.ContentItem{blank, good})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Delivered)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRunHonorsExclusionFilter(t *testing.T) {
	target := &fakeTarget{name: "fake"}
	orch, _, _ := newTestOrchestrator(t, target, OrchestratorConfig{
		MaxDeliveries:   10,
		ExcludeKeywords: []string{"women"},
	})

	summary, err := orch.Run(context.Background(), []*types.ContentItem{
		item("excluded", "Women's Cup Final", time.Now()),
		item("kept", "Cup Final", time.Now()),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"Cup Final"}, target.uploaded)
	assert.Equal(t, 1, summary.Skipped)
}

func TestRunFlushesLedgerOnceAtEnd(t *testing.T) {
	target := &fakeTarget{name: "fake"}
	orch, _, path := newTestOrchestrator(t, target, OrchestratorConfig{MaxDeliveries: 10})

	_, err := orch.Run(context.Background(), []*types.ContentItem{item("one", "One", time.Now())})
	require.NoError(t, err)

	// A fresh ledger built from the same file sees the delivery.
	reloaded, err := jsonfile.New(context.Background(), ledger.Options{Path: path, MaxHistory: 100})
	require.NoError(t, err)
	assert.True(t, reloaded.IsDelivered("one"))
}

func TestRunFlushesLedgerEvenWhenAborted(t *testing.T) {
	target := &fakeTarget{name: "fake"}
	orch, led, path := newTestOrchestrator(t, target, OrchestratorConfig{MaxDeliveries: 10})

	led.MarkDelivered("pre-existing", nil)

	target.uploadErr = &types.DeliveryError{Platform: "fake", Kind: types.KindAuth, Message: "bad token"}
	_, err := orch.Run(context.Background(), []*types.ContentItem{item("one", "One", time.Now())})
	require.Error(t, err)

	reloaded, lerr := jsonfile.New(context.Background(), ledger.Options{Path: path, MaxHistory: 100})
	require.NoError(t, lerr)
	assert.True(t, reloaded.IsDelivered("pre-existing"), "flush must run even on aborted runs")
}

func TestRunDryRunTouchesNothing(t *testing.T) {
	target := &fakeTarget{name: "fake"}
	orch, led, _ := newTestOrchestrator(t, target, OrchestratorConfig{MaxDeliveries: 10, DryRun: true})

	summary, err := orch.Run(context.Background(), []*types.ContentItem{item("one", "One", time.Now())})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Delivered)
	assert.Zero(t, target.uploadCalls)
	assert.False(t, led.IsDelivered("one"), "dry run must not mark the ledger")
}
