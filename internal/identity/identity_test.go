package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"golazo/internal/types"
)

func TestResolveExplicitIDWins(t *testing.T) {
	item := &types.ContentItem{
		ID:          "scorebat-123",
		Title:       "Arsenal vs Chelsea",
		MediaURL:    "https://example.com/clip.mp4",
		PublishedAt: time.Now(),
	}

	id, err := Resolve(item)
	require.NoError(t, err)
	assert.Equal(t, "scorebat-123", id)
}

func TestResolveTitleAndDate(t *testing.T) {
	when := time.Date(2024, 1, 2, 19, 30, 0, 0, time.UTC)
	item := &types.ContentItem{Title: "Arsenal vs Chelsea", PublishedAt: when}

	id, err := Resolve(item)
	require.NoError(t, err)
	assert.Equal(t, "arsenal vs chelsea|2024-01-02T19:30:00Z", id)
}

func TestResolveTitleAlone(t *testing.T) {
	item := &types.ContentItem{Title: "Arsenal vs Chelsea"}

	id, err := Resolve(item)
	require.NoError(t, err)
	assert.Equal(t, "arsenal vs chelsea", id)
}

func TestResolveMediaURLAsLastResort(t *testing.T) {
	item := &types.ContentItem{MediaURL: "https://example.com/clip.mp4"}

	id, err := Resolve(item)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/clip.mp4", id)
}

func TestResolveDeterministicAcrossCosmeticDifferences(t *testing.T) {
	when := time.Date(2024, 1, 2, 19, 30, 0, 0, time.UTC)
	a := &types.ContentItem{Title: "Arsenal  vs\tChelsea", PublishedAt: when}
	b := &types.ContentItem{Title: "ARSENAL VS CHELSEA", PublishedAt: when}

	idA, err := Resolve(a)
	require.NoError(t, err)
	idB, err := Resolve(b)
	require.NoError(t, err)
	assert.Equal(t, idA, idB)
}

func TestResolveUnresolvable(t *testing.T) {
	item := &types.ContentItem{Source: "scorebat", PublishedAt: time.Now()}

	_, err := Resolve(item)
	require.Error(t, err)
	assert.True(t, types.IsUnresolvable(err))
}

func TestResolveWhitespaceOnlyIDFallsThrough(t *testing.T) {
	item := &types.ContentItem{ID: "   ", Title: "Late Winner"}

	id, err := Resolve(item)
	require.NoError(t, err)
	assert.Equal(t, "late winner", id)
}
