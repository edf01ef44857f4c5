package cache

import (
	"os"
	"testing"

	"github.com/agalue/voice-assistant/internal/types"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCache(t *testing.T, dir string) *Cache {
	t.Helper()
	c, err := New(Config{MaxEntries: 40, MaxMemoryMB: 10, PersistDir: dir}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestPutThenGetRoundTrips(t *testing.T) {
	c := newTestCache(t, "")
	c.Put(types.TierInstant, "hello", "Hello! How can I help you?")
	v, ok := c.Get(types.TierInstant, "hello")
	require.True(t, ok)
	require.Equal(t, "Hello! How can I help you?", v)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c := newTestCache(t, "")
	_, ok := c.Get(types.TierResponse, "nonexistent")
	require.False(t, ok)
}

func TestPerTierLimitEvictsLRU(t *testing.T) {
	c := newTestCache(t, "")
	c.maxPerTier = 2
	c.Put(types.TierInstant, "a", "1")
	c.Put(types.TierInstant, "b", "2")
	c.Put(types.TierInstant, "c", "3")

	_, ok := c.Get(types.TierInstant, "a")
	require.False(t, ok, "oldest entry should have been evicted")

	_, ok = c.Get(types.TierInstant, "c")
	require.True(t, ok)
}

func TestResponseKeyTruncatesContextFingerprintTo100(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	k1 := ResponseKey("query", types.ComplexityFact, string(long))
	k2 := ResponseKey("query", types.ComplexityFact, string(long[:100]))
	require.Equal(t, k1, k2)
}

func TestSaveAndLoadRoundTripsNonExpiredEntries(t *testing.T) {
	dir := t.TempDir()
	c := newTestCache(t, dir)
	c.Put(types.TierInstant, "hello", "hi there")
	require.NoError(t, c.Save())

	reloaded := newTestCache(t, dir)
	v, ok := reloaded.Get(types.TierInstant, "hello")
	require.True(t, ok)
	require.Equal(t, "hi there", v)
}

func TestLoadDiscardsExpiredEntries(t *testing.T) {
	dir := t.TempDir()
	c := newTestCache(t, dir)
	c.Put(types.TierResponse, "stale", "old answer")

	// Force the persisted entry to look already expired by giving the live
	// entry a TTL of 1ns before saving; by the time it is reloaded that TTL
	// has long elapsed since its created_at.
	require.NoError(t, os.MkdirAll(dir, 0o755))
	tr := c.tiers[types.TierResponse]
	for _, el := range tr.entries {
		entry := el.Value.(*types.CacheEntry)
		entry.TTL = 1
	}
	require.NoError(t, c.Save())

	reloaded := newTestCache(t, dir)
	_, ok := reloaded.Get(types.TierResponse, "stale")
	require.False(t, ok, "expired entries must be discarded at load time")
}

func TestStatsTrackHitsAndMisses(t *testing.T) {
	c := newTestCache(t, "")
	c.Put(types.TierPrompt, "p1", "system prompt")
	c.Get(types.TierPrompt, "p1")
	c.Get(types.TierPrompt, "missing")

	stats := c.Stats()[types.TierPrompt]
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
}
