// Package ctxwindow implements the ContextWindow component (C9): a bounded
// ring of ContextEntry with relevance-weighted selection and compression,
// ported from the reference sliding-window memory.
package ctxwindow

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/agalue/voice-assistant/internal/types"
)

const keywordDecayRate = 0.95

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range []string{
		"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
		"of", "with", "by", "is", "are", "was", "were", "be", "been", "have",
		"has", "had", "do", "does", "did", "will", "would", "could", "should",
		"can", "may", "might", "must", "i", "you", "he", "she", "it", "we",
		"they", "me", "him", "her", "us", "them", "my", "your", "his", "its",
		"our", "their", "this", "that", "these", "those",
	} {
		stopWords[w] = struct{}{}
	}
}

var wordPattern = regexp.MustCompile(`\b[a-zA-Z0-9]{3,}\b`)

// Config tunes window size and compression behavior.
type Config struct {
	MaxTokens             int
	MaxEntries            int
	CompressionThreshold  float64
}

// DefaultConfig matches spec §6's defaults.
func DefaultConfig() Config {
	return Config{MaxTokens: 800, MaxEntries: 50, CompressionThreshold: 0.8}
}

// Window holds bounded conversational context with relevance scoring.
type Window struct {
	mu sync.Mutex
	cfg Config

	entries   []types.ContextEntry
	tokens    int
	keywords  map[string]float64
	summaries []string
}

// New creates an empty Window.
func New(cfg Config) *Window {
	return &Window{cfg: cfg, keywords: make(map[string]float64)}
}

// Add appends a new entry, extracting keywords if none are given, updating
// the active-keyword table, and triggering eviction/compression as needed.
func (w *Window) Add(content string, kind types.ContextEntryKind, priority types.ContextPriority, keywords []string) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if keywords == nil {
		keywords = extractKeywords(trimmed)
	}
	tokenCount := estimateTokens(trimmed)
	relevance := w.calculateRelevance(trimmed, keywords)

	entry := types.ContextEntry{
		Content:    trimmed,
		Timestamp:  time.Now(),
		Priority:   priority,
		Relevance:  relevance,
		TokenCount: tokenCount,
		Kind:       kind,
		Keywords:   keywords,
	}

	w.entries = append(w.entries, entry)
	w.tokens += tokenCount
	w.updateKeywords(keywords)

	w.enforceMaxEntries()

	if float64(w.tokens) > float64(w.cfg.MaxTokens)*w.cfg.CompressionThreshold {
		w.compress()
	}
}

// compress only reclaims low-score entries in the oldest third once the
// window holds >=10 entries, matching sliding_window_memory.py's own
// thresholds. That makes "total tokens <= max_tokens" a soft target under
// those thresholds, not an invariant enforced on every Add.

// enforceMaxEntries evicts the oldest entry whenever the ring would exceed
// max_entries, so the entry cap is never exceeded (§4.9). It does not look at
// tokens: the token total is only reduced by compress, and can stay above
// max_tokens.
func (w *Window) enforceMaxEntries() {
	for w.cfg.MaxEntries > 0 && len(w.entries) > w.cfg.MaxEntries {
		oldest := w.entries[0]
		w.tokens -= oldest.TokenCount
		w.entries = w.entries[1:]
	}
}

func (w *Window) calculateRelevance(content string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0.5
	}

	lower := strings.ToLower(content)
	var relevance float64
	for _, kw := range keywords {
		if importance, ok := w.keywords[kw]; ok && strings.Contains(lower, kw) {
			relevance += importance
		}
	}
	relevance = relevance / float64(len(keywords))
	if relevance > 1.0 {
		relevance = 1.0
	}
	if relevance < 0.1 {
		relevance = 0.1
	}
	return relevance
}

func (w *Window) updateKeywords(keywords []string) {
	for kw, score := range w.keywords {
		decayed := score * keywordDecayRate
		if decayed < 0.1 {
			delete(w.keywords, kw)
		} else {
			w.keywords[kw] = decayed
		}
	}
	for _, kw := range keywords {
		if existing, ok := w.keywords[kw]; ok {
			boosted := existing + 0.3
			if boosted > 1.0 {
				boosted = 1.0
			}
			w.keywords[kw] = boosted
		} else {
			w.keywords[kw] = 0.5
		}
	}
}

// GetOptimized returns the selected context as a chronologically ordered
// string within the token budget, per §4.9's selection algorithm.
func (w *Window) GetOptimized(currentQuery string, maxTokens int) string {
	w.mu.Lock()
	defer w.mu.Unlock()

	target := maxTokens
	if target <= 0 {
		target = w.cfg.MaxTokens
	}

	if currentQuery != "" {
		w.boostQueryRelevance(extractKeywords(currentQuery))
	}

	now := time.Now()
	sorted := make([]types.ContextEntry, len(w.entries))
	copy(sorted, w.entries)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].WeightedScore(now) > sorted[j].WeightedScore(now)
	})

	var parts []string
	tokenCount := 0

	if len(w.summaries) > 0 {
		last := w.summaries
		if len(last) > 2 {
			last = last[len(last)-2:]
		}
		summaryText := strings.Join(last, " ")
		summaryTokens := estimateTokens(summaryText)
		if float64(summaryTokens) < float64(target)*0.3 {
			parts = append(parts, fmt.Sprintf("[Previous context: %s]", summaryText))
			tokenCount += summaryTokens
		}
	}

	var selected []types.ContextEntry
	for _, entry := range sorted {
		if tokenCount+entry.TokenCount <= target {
			selected = append(selected, entry)
			tokenCount += entry.TokenCount
			continue
		}
		if entry.Priority == types.PriorityCritical {
			// Include ALL critical entries even over budget, not just the
			// first encountered (corrects the original's early break).
			selected = append(selected, entry)
			tokenCount += entry.TokenCount
		}
	}

	sort.Slice(selected, func(i, j int) bool {
		return selected[i].Timestamp.Before(selected[j].Timestamp)
	})

	for _, entry := range selected {
		switch entry.Kind {
		case types.KindUserUtterance:
			parts = append(parts, fmt.Sprintf("User: %s", entry.Content))
		case types.KindAssistantReply:
			parts = append(parts, fmt.Sprintf("Assistant: %s", entry.Content))
		case types.KindSystemNote:
			parts = append(parts, fmt.Sprintf("[System: %s]", entry.Content))
		case types.KindToolResult:
			parts = append(parts, fmt.Sprintf("[Tool result: %s]", entry.Content))
		default:
			parts = append(parts, entry.Content)
		}
	}

	return strings.Join(parts, "\n")
}

func (w *Window) boostQueryRelevance(queryKeywords []string) {
	for i := range w.entries {
		entry := &w.entries[i]
		var boost float64
		lower := strings.ToLower(entry.Content)
		for _, kw := range queryKeywords {
			if containsKeyword(entry.Keywords, kw) || strings.Contains(lower, kw) {
				boost += 0.2
			}
		}
		if boost > 0 {
			r := entry.Relevance + boost
			if r > 1.0 {
				r = 1.0
			}
			entry.Relevance = r
		}
	}
}

func containsKeyword(keywords []string, kw string) bool {
	for _, k := range keywords {
		if k == kw {
			return true
		}
	}
	return false
}

// compress selects the oldest 1/3 of entries with weighted score < 0.3 and
// replaces them with a summary string.
func (w *Window) compress() {
	if len(w.entries) < 10 {
		return
	}

	sortedByAge := make([]types.ContextEntry, len(w.entries))
	copy(sortedByAge, w.entries)
	sort.Slice(sortedByAge, func(i, j int) bool {
		return sortedByAge[i].Timestamp.Before(sortedByAge[j].Timestamp)
	})

	compressCount := len(sortedByAge) / 3
	if compressCount < 3 {
		compressCount = 3
	}
	if compressCount > len(sortedByAge) {
		compressCount = len(sortedByAge)
	}

	now := time.Now()
	toCompress := make(map[string]struct{})
	var candidates []types.ContextEntry
	for _, entry := range sortedByAge[:compressCount] {
		if entry.WeightedScore(now) < 0.3 {
			candidates = append(candidates, entry)
			toCompress[entryIdentity(entry)] = struct{}{}
		}
	}
	if len(candidates) == 0 {
		return
	}

	var compressedContent []string
	var tokensFreed int
	for _, entry := range candidates {
		top3 := entry.Keywords
		if len(top3) > 3 {
			top3 = top3[:3]
		}
		switch entry.Kind {
		case types.KindUserUtterance:
			compressedContent = append(compressedContent, fmt.Sprintf("User asked about %s", strings.Join(top3, ", ")))
		case types.KindAssistantReply:
			compressedContent = append(compressedContent, fmt.Sprintf("Discussed %s", strings.Join(top3, ", ")))
		}
		tokensFreed += entry.TokenCount
	}

	var remaining []types.ContextEntry
	for _, entry := range w.entries {
		if _, drop := toCompress[entryIdentity(entry)]; drop {
			continue
		}
		remaining = append(remaining, entry)
	}
	w.entries = remaining

	if len(compressedContent) > 0 {
		summary := strings.Join(compressedContent, "; ")
		w.summaries = append(w.summaries, summary)
		if len(w.summaries) > 5 {
			w.summaries = w.summaries[len(w.summaries)-5:]
		}
	}
	w.tokens -= tokensFreed
}

// entryIdentity distinguishes entries that may share content by pairing
// timestamp and content, sufficient since entries are never mutated in
// place except for relevance boosts.
func entryIdentity(e types.ContextEntry) string {
	return fmt.Sprintf("%d|%s", e.Timestamp.UnixNano(), e.Content)
}

func extractKeywords(text string) []string {
	lower := strings.ToLower(text)
	matches := wordPattern.FindAllString(lower, -1)

	seen := make(map[string]struct{})
	var keywords []string
	for _, w := range matches {
		if _, stop := stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		keywords = append(keywords, w)
		if len(keywords) == 10 {
			break
		}
	}
	return keywords
}

func estimateTokens(text string) int {
	n := len(text) / 4
	if n < 1 {
		return 1
	}
	return n
}

// Clear discards all entries, keywords and summaries.
func (w *Window) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = nil
	w.tokens = 0
	w.keywords = make(map[string]float64)
	w.summaries = nil
}

// Stats is a snapshot of window utilization, mirroring the original's
// get_context_stats.
type Stats struct {
	TotalEntries        int
	CurrentTokens        int
	MaxTokens            int
	Utilization          float64
	ActiveKeywords       int
	CompressedSummaries  int
	PriorityDistribution map[types.ContextPriority]int
}

// Stats returns a snapshot of the window's current utilization.
func (w *Window) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	dist := map[types.ContextPriority]int{
		types.PriorityMinimal:  0,
		types.PriorityLow:      0,
		types.PriorityMedium:   0,
		types.PriorityHigh:     0,
		types.PriorityCritical: 0,
	}
	for _, e := range w.entries {
		dist[e.Priority]++
	}

	var utilization float64
	if w.cfg.MaxTokens > 0 {
		utilization = float64(w.tokens) / float64(w.cfg.MaxTokens)
	}

	return Stats{
		TotalEntries:         len(w.entries),
		CurrentTokens:        w.tokens,
		MaxTokens:            w.cfg.MaxTokens,
		Utilization:          utilization,
		ActiveKeywords:       len(w.keywords),
		CompressedSummaries:  len(w.summaries),
		PriorityDistribution: dist,
	}
}
