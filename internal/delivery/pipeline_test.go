package delivery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golazo/internal/types"
)

type fakeDeliverer struct {
	name          string
	uploadErrs    []error
	uploadCalls   int
	fallbackErr   error
	fallbackCalls int
}

func (f *fakeDeliverer) Name() string                         { return f.name }
func (f *fakeDeliverer) Initialize(ctx context.Context) error { return nil }
func (f *fakeDeliverer) Shutdown(ctx context.Context) error   { return nil }

func (f *fakeDeliverer) UploadMedia(ctx context.Context, item *types.ContentItem, caption string) (*types.DeliveryResult, error) {
	call := f.uploadCalls
	f.uploadCalls++
	if call < len(f.uploadErrs) && f.uploadErrs[call] != nil {
		return nil, f.uploadErrs[call]
	}
	return &types.DeliveryResult{Target: f.name, RemoteID: "remote-123", Timestamp: time.Now()}, nil
}

func (f *fakeDeliverer) PostLink(ctx context.Context, item *types.ContentItem, caption string) (*types.DeliveryResult, error) {
	f.fallbackCalls++
	if f.fallbackErr != nil {
		return nil, f.fallbackErr
	}
	return &types.DeliveryResult{Target: f.name, RemoteID: "fallback-456", Timestamp: time.Now()}, nil
}

func transientErr() error {
	return &types.DeliveryError{Platform: "fake", Kind: types.KindTransientNetwork, Message: "connection reset"}
}

func testItem() *types.ContentItem {
	return &types.ContentItem{Title: "Great Goal", MediaURL: "https://example.com/clip.mp4"}
}

func testConfig() Config {
	return Config{MaxAttempts: 3, InitialBackoff: 20 * time.Millisecond, MaxBackoff: time.Second}
}

func TestDeliverSucceedsFirstAttempt(t *testing.T) {
	fake := &fakeDeliverer{name: "fake"}
	pipeline := NewPipeline(fake, testConfig(), nil)

	outcome := pipeline.Deliver(context.Background(), testItem(), "id-1", "caption")

	require.Equal(t, types.StatusDelivered, outcome.Status)
	assert.Equal(t, types.MethodPrimary, outcome.Method)
	assert.Equal(t, "remote-123", outcome.RemoteID)
	assert.Equal(t, 1, outcome.Attempts)
	assert.Zero(t, fake.fallbackCalls)
}

func TestDeliverRetriesTransientThenSucceeds(t *testing.T) {
	fake := &fakeDeliverer{
		name:       "fake",
		uploadErrs: []error{transientErr(), transientErr()},
	}
	pipeline := NewPipeline(fake, testConfig(), nil)

	start := time.Now()
	outcome := pipeline.Deliver(context.Background(), testItem(), "id-1", "caption")
	elapsed := time.Since(start)

	require.Equal(t, types.StatusDelivered, outcome.Status)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 3, fake.uploadCalls)
	// Backoff schedule is base then 2x base before the cap.
	assert.GreaterOrEqual(t, elapsed, 3*20*time.Millisecond)
}

func TestDeliverRetryAfterOverridesBackoff(t *testing.T) {
	rateErr := &types.DeliveryError{
		Platform:   "fake",
		Kind:       types.KindRateLimited,
		Message:    "slow down",
		RetryAfter: 80 * time.Millisecond,
	}
	fake := &fakeDeliverer{name: "fake", uploadErrs: []error{rateErr}}
	pipeline := NewPipeline(fake, testConfig(), nil)

	start := time.Now()
	outcome := pipeline.Deliver(context.Background(), testItem(), "id-1", "caption")
	elapsed := time.Since(start)

	require.Equal(t, types.StatusDelivered, outcome.Status)
	assert.GreaterOrEqual(t, elapsed, 80*time.Millisecond)
}

func TestDeliverFallsBackAfterFatalPrimary(t *testing.T) {
	rejected := &types.DeliveryError{Platform: "fake", Kind: types.KindContentRejected, Message: "nope"}
	fake := &fakeDeliverer{name: "fake", uploadErrs: []error{rejected}}
	pipeline := NewPipeline(fake, testConfig(), nil)

	outcome := pipeline.Deliver(context.Background(), testItem(), "id-1", "caption")

	require.Equal(t, types.StatusDelivered, outcome.Status)
	assert.Equal(t, types.MethodFallback, outcome.Method)
	assert.Equal(t, "fallback-456", outcome.RemoteID)
	assert.Equal(t, 1, fake.uploadCalls, "fatal primary must not be retried")
	assert.Equal(t, 1, fake.fallbackCalls)
}

func TestDeliverFallsBackAfterExhaustedRetries(t *testing.T) {
	fake := &fakeDeliverer{
		name:       "fake",
		uploadErrs: []error{transientErr(), transientErr(), transientErr()},
	}
	pipeline := NewPipeline(fake, testConfig(), nil)

	outcome := pipeline.Deliver(context.Background(), testItem(), "id-1", "caption")

	require.Equal(t, types.StatusDelivered, outcome.Status)
	assert.Equal(t, types.MethodFallback, outcome.Method)
	assert.Equal(t, 3, fake.uploadCalls)
	assert.Equal(t, 1, fake.fallbackCalls)
}

func TestDeliverFailsWhenBothMethodsExhausted(t *testing.T) {
	rejected := &types.DeliveryError{Platform: "fake", Kind: types.KindContentRejected, Message: "nope"}
	fake := &fakeDeliverer{
		name:        "fake",
		uploadErrs:  []error{rejected},
		fallbackErr: &types.DeliveryError{Platform: "fake", Kind: types.KindUnexpectedResponse, Message: "weird"},
	}
	pipeline := NewPipeline(fake, testConfig(), nil)

	outcome := pipeline.Deliver(context.Background(), testItem(), "id-1", "caption")

	require.Equal(t, types.StatusFailed, outcome.Status)
	assert.Error(t, outcome.Err)
	assert.Equal(t, 1, fake.fallbackCalls, "fallback is attempted exactly once")
}

func TestDeliverAuthErrorShortCircuits(t *testing.T) {
	authErr := &types.DeliveryError{Platform: "fake", Kind: types.KindAuth, Code: 190, Message: "bad token"}
	fake := &fakeDeliverer{name: "fake", uploadErrs: []error{authErr}}
	pipeline := NewPipeline(fake, testConfig(), nil)

	outcome := pipeline.Deliver(context.Background(), testItem(), "id-1", "caption")

	require.Equal(t, types.StatusFailed, outcome.Status)
	assert.True(t, types.IsAuth(outcome.Err))
	assert.Equal(t, 1, fake.uploadCalls, "auth errors must not be retried")
	assert.Zero(t, fake.fallbackCalls, "auth errors must not fall back")
}

func TestDeliverSkipsItemWithoutMedia(t *testing.T) {
	fake := &fakeDeliverer{name: "fake"}
	pipeline := NewPipeline(fake, testConfig(), nil)

	outcome := pipeline.Deliver(context.Background(), &types.ContentItem{Title: "no media"}, "id-1", "caption")

	require.Equal(t, types.StatusSkipped, outcome.Status)
	assert.Zero(t, fake.uploadCalls)
	assert.Zero(t, fake.fallbackCalls)
}
