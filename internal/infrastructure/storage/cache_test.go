package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ContentDigest/internal/domain"
)

func feedItem(id, url string, published time.Time) domain.ContentItem {
	return domain.ContentItem{
		ID:           id,
		SourceType:   domain.SourceFeed,
		SourceKey:    "go-blog",
		Text:         "text " + id,
		URL:          url,
		Author:       "gopher",
		Timestamp:    published,
		QualityScore: 0.8,
		Metadata:     map[string]string{"title": "Title " + id},
	}
}

func TestCacheFreshnessHonoursTTL(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	cache := s.Cache(domain.SourceFeed, time.Hour, map[string]time.Duration{"hot": time.Minute})

	fresh, err := cache.IsFresh(ctx, "go-blog")
	require.NoError(t, err)
	assert.False(t, fresh, "never written keys are stale")

	require.NoError(t, cache.Write(ctx, "go-blog", nil))
	require.NoError(t, cache.Write(ctx, "hot", nil))

	clock.Advance(time.Hour)
	fresh, err = cache.IsFresh(ctx, "go-blog")
	require.NoError(t, err)
	assert.True(t, fresh, "age equal to TTL is still fresh")

	fresh, err = cache.IsFresh(ctx, "hot")
	require.NoError(t, err)
	assert.False(t, fresh, "per-key TTL override applies")

	clock.Advance(time.Nanosecond)
	fresh, err = cache.IsFresh(ctx, "go-blog")
	require.NoError(t, err)
	assert.False(t, fresh)
}

func TestCacheFreshnessIgnoresItemCount(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	cache := s.Cache(domain.SourceChannel, time.Hour, nil)

	require.NoError(t, cache.Write(ctx, "empty", nil))
	fresh, err := cache.IsFresh(ctx, "empty")
	require.NoError(t, err)
	assert.True(t, fresh)

	items, err := cache.Read(ctx, "empty")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCacheReadIsIdempotentAndOrdered(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	cache := s.Cache(domain.SourceFeed, time.Hour, nil)
	base := clock.Now()

	require.NoError(t, cache.Write(ctx, "go-blog", []domain.ContentItem{
		feedItem("old", "https://go.dev/old", base.Add(-3*time.Hour)),
		feedItem("new", "https://go.dev/new", base.Add(-time.Hour)),
		feedItem("mid", "https://go.dev/mid", base.Add(-2*time.Hour)),
	}))

	first, err := cache.Read(ctx, "go-blog")
	require.NoError(t, err)
	second, err := cache.Read(ctx, "go-blog")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	require.Len(t, first, 3)
	assert.Equal(t, []string{"new", "mid", "old"}, []string{first[0].ID, first[1].ID, first[2].ID})
	assert.Equal(t, base.Add(-time.Hour), first[0].Timestamp)
	assert.Equal(t, "Title new", first[0].Metadata["title"])
	assert.Equal(t, domain.SourceFeed, first[0].SourceType)
}

func TestCacheWriteRefreshesKeyWholesale(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	cache := s.Cache(domain.SourceFeed, time.Hour, nil)
	base := clock.Now()

	tests := []struct {
		name  string
		batch []domain.ContentItem
		want  []string
	}{
		{
			name: "initial",
			batch: []domain.ContentItem{
				feedItem("a", "https://go.dev/a", base.Add(-time.Hour)),
				feedItem("b", "https://go.dev/b", base.Add(-2*time.Hour)),
			},
			want: []string{"a", "b"},
		},
		{
			name:  "disjoint batch replaces previous items",
			batch: []domain.ContentItem{feedItem("c", "https://go.dev/c", base.Add(-30*time.Minute))},
			want:  []string{"c"},
		},
		{
			name: "overlap keeps one row per dedup key",
			batch: []domain.ContentItem{
				feedItem("c", "https://go.dev/c", base.Add(-30*time.Minute)),
				feedItem("c", "https://go.dev/c", base.Add(-30*time.Minute)),
				feedItem("d", "https://go.dev/d", base.Add(-3*time.Hour)),
			},
			want: []string{"c", "d"},
		},
		{
			name: "empty batch clears the key",
			want: nil,
		},
	}
	for _, tt := range tests {
		require.NoError(t, cache.Write(ctx, "go-blog", tt.batch), tt.name)

		items, err := cache.Read(ctx, "go-blog")
		require.NoError(t, err, tt.name)
		var ids []string
		for _, it := range items {
			ids = append(ids, it.ID)
		}
		assert.Equal(t, tt.want, ids, tt.name)
	}
}

func TestCacheWriteUpdatesExistingItem(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	cache := s.Cache(domain.SourceFeed, time.Hour, nil)
	base := clock.Now()

	require.NoError(t, cache.Write(ctx, "go-blog", []domain.ContentItem{
		feedItem("a", "https://go.dev/a", base.Add(-time.Hour)),
	}))

	updated := feedItem("a", "https://go.dev/a", base.Add(-time.Hour))
	updated.Text = "edited"
	updated.QualityScore = 0.95
	require.NoError(t, cache.Write(ctx, "go-blog", []domain.ContentItem{updated}))

	items, err := cache.Read(ctx, "go-blog")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "edited", items[0].Text)
	assert.InDelta(t, 0.95, items[0].QualityScore, 1e-9)
}

func TestCacheSharedURLStaysUnderBothKeys(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	cache := s.Cache(domain.SourceFeed, time.Hour, nil)
	shared := feedItem("x", "https://go.dev/shared", clock.Now())

	require.NoError(t, cache.Write(ctx, "go-blog", []domain.ContentItem{shared}))
	require.NoError(t, cache.Write(ctx, "go-news", []domain.ContentItem{shared}))

	for _, key := range []string{"go-blog", "go-news"} {
		items, err := cache.Read(ctx, key)
		require.NoError(t, err)
		require.Len(t, items, 1, key)
		assert.Equal(t, key, items[0].SourceKey)
	}

	// Refreshing one key must not drop the other key's copy.
	require.NoError(t, cache.Write(ctx, "go-news", nil))
	items, err := cache.Read(ctx, "go-blog")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCacheIsScopedBySourceType(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	feed := s.Cache(domain.SourceFeed, time.Hour, nil)
	channel := s.Cache(domain.SourceChannel, time.Hour, nil)

	require.NoError(t, feed.Write(ctx, "shared", []domain.ContentItem{feedItem("x", "", time.Now())}))

	fresh, err := channel.IsFresh(ctx, "shared")
	require.NoError(t, err)
	assert.False(t, fresh)

	items, err := channel.Read(ctx, "shared")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	cache := s.Cache(domain.SourceFeed, time.Hour, nil)
	base := clock.Now()

	require.NoError(t, cache.Write(ctx, "stale", []domain.ContentItem{
		feedItem("s1", "https://go.dev/s1", base),
		feedItem("s2", "https://go.dev/s2", base),
	}))
	clock.Advance(48 * time.Hour)
	require.NoError(t, cache.Write(ctx, "recent", []domain.ContentItem{
		feedItem("r1", "https://go.dev/r1", clock.Now()),
	}))

	removed, err := s.Sweep(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	stale, err := cache.Read(ctx, "stale")
	require.NoError(t, err)
	assert.Empty(t, stale)

	recent, err := cache.Read(ctx, "recent")
	require.NoError(t, err)
	assert.Len(t, recent, 1)

	fresh, err := cache.IsFresh(ctx, "recent")
	require.NoError(t, err)
	assert.True(t, fresh)
}
