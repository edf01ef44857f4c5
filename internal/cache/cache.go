// Package cache implements the ResponseCache component (C8): four
// independent LRU+TTL tiers (Instant, Prompt, Response, Context), with
// global byte-budget eviction and optional JSON-lines snapshot persistence.
package cache

import (
	"bufio"
	"container/list"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/agalue/voice-assistant/internal/types"
	"go.uber.org/zap"
)

var tierTTL = map[types.CacheTier]time.Duration{
	types.TierInstant:  0,
	types.TierPrompt:   24 * time.Hour,
	types.TierResponse: time.Hour,
	types.TierContext:  30 * time.Minute,
}

var allTiers = []types.CacheTier{types.TierInstant, types.TierPrompt, types.TierResponse, types.TierContext}

type tierStats struct {
	requests  int64
	hits      int64
	misses    int64
	evictions int64
}

type tier struct {
	entries map[string]*list.Element // key -> element holding *types.CacheEntry
	order   *list.List               // front = least recently used
	stats   tierStats
}

func newTier() *tier {
	return &tier{entries: make(map[string]*list.Element), order: list.New()}
}

// Cache is the four-tier store. Safe for concurrent use.
type Cache struct {
	mu           sync.Mutex
	tiers        map[types.CacheTier]*tier
	maxPerTier   int
	maxBytes     int64
	persistDir   string
	log          *zap.Logger
}

// Config configures size limits and optional persistence.
type Config struct {
	MaxEntries  int     // total across all tiers; each tier gets MaxEntries/4
	MaxMemoryMB float64 // global byte budget across all tiers
	PersistDir  string  // empty disables persistence
}

// New creates a Cache and, if cfg.PersistDir is non-empty, loads any
// existing snapshots, discarding expired entries at load time.
func New(cfg Config, log *zap.Logger) (*Cache, error) {
	c := &Cache{
		tiers:      make(map[types.CacheTier]*tier),
		maxPerTier: cfg.MaxEntries / 4,
		maxBytes:   int64(cfg.MaxMemoryMB * 1024 * 1024),
		persistDir: cfg.PersistDir,
		log:        log,
	}
	for _, t := range allTiers {
		c.tiers[t] = newTier()
	}
	if c.maxPerTier <= 0 {
		c.maxPerTier = 2500
	}

	if cfg.PersistDir != "" {
		if err := c.load(); err != nil {
			log.Warn("failed to load persistent cache", zap.Error(err))
		}
	}
	return c, nil
}

// InstantKey, PromptKey, ResponseKey and ContextKey build the tier-specific
// keys per §4.8's table.
func InstantKey(normalizedQuery string) string { return normalizedQuery }

func PromptKey(systemPrompt string) string { return md5Hex(systemPrompt) }

func ResponseKey(query string, complexity types.QueryComplexity, contextFingerprint string) string {
	if len(contextFingerprint) > 100 {
		contextFingerprint = contextFingerprint[:100]
	}
	return md5Hex(fmt.Sprintf("%s|%s|%s", query, complexity, contextFingerprint))
}

func ContextKey(sessionID string) string { return sessionID }

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Get retrieves a value, returning ok=false on miss or expiry. Reads update
// recency and remove expired entries.
func (c *Cache) Get(t types.CacheTier, key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr := c.tiers[t]
	tr.stats.requests++

	el, ok := tr.entries[key]
	if !ok {
		tr.stats.misses++
		return "", false
	}

	entry := el.Value.(*types.CacheEntry)
	if entry.Expired(time.Now()) {
		tr.order.Remove(el)
		delete(tr.entries, key)
		tr.stats.misses++
		return "", false
	}

	entry.LastAccess = time.Now()
	entry.HitCount++
	tr.order.MoveToBack(el)
	tr.stats.hits++
	return entry.Value, true
}

// Put stores a value, evicting LRU entries as needed to respect per-tier and
// global byte limits.
func (c *Cache) Put(t types.CacheTier, key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tr := c.tiers[t]
	now := time.Now()

	if el, ok := tr.entries[key]; ok {
		entry := el.Value.(*types.CacheEntry)
		entry.Value = value
		entry.LastAccess = now
		entry.SizeBytes = int64(len(value))
		tr.order.MoveToBack(el)
		return
	}

	entry := &types.CacheEntry{
		Key:        key,
		Value:      value,
		CreatedAt:  now,
		LastAccess: now,
		HitCount:   1,
		Tier:       t,
		TTL:        tierTTL[t],
		SizeBytes:  int64(len(value)),
	}
	el := tr.order.PushBack(entry)
	tr.entries[key] = el

	c.evictIfNecessary(t)
}

func (c *Cache) evictIfNecessary(t types.CacheTier) {
	tr := c.tiers[t]
	for tr.order.Len() > c.maxPerTier {
		c.evictLRU(t)
	}

	if c.maxBytes <= 0 {
		return
	}
	for c.totalBytes() > c.maxBytes {
		largest := c.largestOverBudgetTier()
		if largest == "" || c.tiers[largest].order.Len() == 0 {
			break
		}
		c.evictLRU(largest)
	}
}

func (c *Cache) totalBytes() int64 {
	var total int64
	for _, tr := range c.tiers {
		for el := tr.order.Front(); el != nil; el = el.Next() {
			total += el.Value.(*types.CacheEntry).SizeBytes
		}
	}
	return total
}

// largestOverBudgetTier returns the tier holding the most total bytes,
// used as the eviction target once the global byte budget is exceeded.
func (c *Cache) largestOverBudgetTier() types.CacheTier {
	var best types.CacheTier
	var bestBytes int64
	for _, t := range allTiers {
		tr := c.tiers[t]
		var bytes int64
		for el := tr.order.Front(); el != nil; el = el.Next() {
			bytes += el.Value.(*types.CacheEntry).SizeBytes
		}
		if bytes > bestBytes {
			bestBytes = bytes
			best = t
		}
	}
	return best
}

func (c *Cache) evictLRU(t types.CacheTier) {
	tr := c.tiers[t]
	front := tr.order.Front()
	if front == nil {
		return
	}
	entry := front.Value.(*types.CacheEntry)
	tr.order.Remove(front)
	delete(tr.entries, entry.Key)
	tr.stats.evictions++
}

// TierStats is the exported snapshot of one tier's counters.
type TierStats struct {
	Requests  int64
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
	HitRate   float64
}

// Stats returns a snapshot of every tier's counters.
func (c *Cache) Stats() map[types.CacheTier]TierStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[types.CacheTier]TierStats, len(allTiers))
	for _, t := range allTiers {
		tr := c.tiers[t]
		var hitRate float64
		if tr.stats.requests > 0 {
			hitRate = float64(tr.stats.hits) / float64(tr.stats.requests)
		}
		out[t] = TierStats{
			Requests:  tr.stats.requests,
			Hits:      tr.stats.hits,
			Misses:    tr.stats.misses,
			Evictions: tr.stats.evictions,
			Size:      tr.order.Len(),
			HitRate:   hitRate,
		}
	}
	return out
}

// Clear empties one tier, or all tiers if t is the zero value.
func (c *Cache) Clear(t types.CacheTier) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t == "" {
		for _, tt := range allTiers {
			c.tiers[tt] = newTier()
		}
		return
	}
	c.tiers[t] = newTier()
}

type snapshotLine struct {
	Key       string        `json:"key"`
	Value     string        `json:"value"`
	CreatedAt time.Time     `json:"created_at"`
	TTL       time.Duration `json:"ttl"`
}

func (c *Cache) tierFile(t types.CacheTier) string {
	return filepath.Join(c.persistDir, fmt.Sprintf("%s_cache.jsonl", t))
}

// Save persists every tier as a full JSON-lines snapshot. Each call
// truncates and rewrites the tier's file; earlier snapshots are not kept
// and nothing is appended.
func (c *Cache) Save() error {
	if c.persistDir == "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.persistDir, 0o755); err != nil {
		return err
	}

	for _, t := range allTiers {
		f, err := os.Create(c.tierFile(t))
		if err != nil {
			return err
		}
		w := bufio.NewWriter(f)
		tr := c.tiers[t]
		for el := tr.order.Front(); el != nil; el = el.Next() {
			entry := el.Value.(*types.CacheEntry)
			line := snapshotLine{Key: entry.Key, Value: entry.Value, CreatedAt: entry.CreatedAt, TTL: entry.TTL}
			b, err := json.Marshal(line)
			if err != nil {
				continue
			}
			w.Write(b)
			w.WriteByte('\n')
		}
		if err := w.Flush(); err != nil {
			f.Close()
			return err
		}
		f.Close()
	}
	if c.log != nil {
		c.log.Info("persistent cache saved")
	}
	return nil
}

// load reads any existing snapshots. Expired entries are discarded rather
// than re-inserted, correcting the original's load-time behavior which
// keeps expired rows until their next access.
func (c *Cache) load() error {
	now := time.Now()
	for _, t := range allTiers {
		path := c.tierFile(t)
		f, err := os.Open(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return err
		}

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		loaded := 0
		for scanner.Scan() {
			var line snapshotLine
			if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
				continue
			}
			entry := &types.CacheEntry{
				Key:        line.Key,
				Value:      line.Value,
				CreatedAt:  line.CreatedAt,
				LastAccess: line.CreatedAt,
				HitCount:   0,
				Tier:       t,
				TTL:        line.TTL,
				SizeBytes:  int64(len(line.Value)),
			}
			if entry.Expired(now) {
				continue
			}
			tr := c.tiers[t]
			el := tr.order.PushBack(entry)
			tr.entries[line.Key] = el
			loaded++
		}
		f.Close()
		if c.log != nil && loaded > 0 {
			c.log.Info("loaded persistent cache tier", zap.String("tier", string(t)), zap.Int("entries", loaded))
		}
	}
	return nil
}
