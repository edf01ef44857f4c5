// Package rag implements query-dependent RAG activation (C11 RAGGate).
//
// It classifies a query into one of four activation levels by pattern and
// keyword tables, applies context-based amplification/attenuation, and
// produces a Query the caller hands to the Memory Service (internal/memory).
package rag

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/agalue/voice-assistant/internal/types"
)

// ActivationLevel is the RAG activation tier for a query.
type ActivationLevel string

const (
	Disabled      ActivationLevel = "disabled"
	Minimal       ActivationLevel = "minimal"
	Standard      ActivationLevel = "standard"
	Comprehensive ActivationLevel = "comprehensive"
)

// activationRank orders levels from most to least specific, matching the
// priority order the original classifier checks them in.
var activationRank = []ActivationLevel{Comprehensive, Standard, Minimal, Disabled}

type activationSpec struct {
	patterns []*regexp.Regexp
	keywords map[string]struct{}
}

func keywordSet(words ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}

var activationPatterns = map[ActivationLevel]activationSpec{
	Disabled: {
		patterns: compile(
			`\b(hi|hello|hey|thanks|bye|yes|no|ok)\b`,
			`\b(what time|current time|date)\b`,
			`\b(what is|define|explain)\b.*\b(general|basic)\b`,
		),
		keywords: keywordSet("greeting", "time", "general", "basic", "simple"),
	},
	Minimal: {
		patterns: compile(
			`\b(what did we|what were we|continue|keep going)\b`,
			`\b(that|it|this)\b.*\b(we discussed|mentioned)\b`,
		),
		keywords: keywordSet("continue", "discussed", "mentioned", "context", "recent"),
	},
	Standard: {
		patterns: compile(
			`\b(remember|recall|what do you remember)\b`,
			`\b(my preferences|my settings|what I like)\b`,
			`\b(last time|previously|before)\b`,
			`\b(search|find|look up)\b.*\b(memory|notes)\b`,
		),
		keywords: keywordSet("remember", "recall", "preferences", "settings", "previously", "search", "memory"),
	},
	Comprehensive: {
		patterns: compile(
			`\b(analyze|research|comprehensive)\b.*\b(documents|files)\b`,
			`\b(everything about|all information)\b`,
			`\b(detailed|thorough|complete)\b.*\b(analysis|report)\b`,
		),
		keywords: keywordSet("analyze", "research", "comprehensive", "documents", "detailed", "thorough"),
	},
}

var maxKeywordsByLevel = map[ActivationLevel]int{
	Minimal:       3,
	Standard:      5,
	Comprehensive: 10,
}

var stripTermPattern = regexp.MustCompile(`(?i)\b(remember|recall|what do you remember about|search for)\b`)
var whitespacePattern = regexp.MustCompile(`\s+`)
var wordPattern = regexp.MustCompile(`\b[a-zA-Z]{3,}\b`)

var extractStopWords = keywordSet(
	"the", "a", "an", "and", "or", "but", "in", "on", "at", "to", "for",
	"of", "with", "by", "is", "are", "was", "were", "be", "been", "have",
	"has", "had", "do", "does", "did", "will", "would", "could", "should",
	"can", "may", "might", "must", "i", "you", "he", "she", "it", "we",
	"they", "me", "him", "her", "us", "them", "what", "when", "where",
	"why", "how", "remember", "recall", "search", "find",
)

// Query is an analyzed query ready for the Memory Service.
type Query struct {
	OriginalQuery   string
	ProcessedQuery  string
	ActivationLevel ActivationLevel
	SearchKeywords  []string
	Confidence      float64
	Reasoning       string
}

// Result is the outcome of retrieving content for a Query.
type Result struct {
	RetrievedContent []string
	RelevanceScores  []float64
	Sources          []string
	ProcessingTime   time.Duration
	CacheHit         bool
	ActivationLevel  ActivationLevel
}

// Context carries signals used to amplify/attenuate activation confidence.
type Context struct {
	HasStoredMemories bool
	MemoryReferences  bool
	Complexity        types.QueryComplexity
}

// Retriever fetches content for an activated query. The Memory Service
// adapter (internal/memory) implements this for real retrieval; Gate uses
// a built-in simulated retriever when none is supplied, matching the
// original's own placeholder `_perform_retrieval`.
type Retriever interface {
	Retrieve(q Query, maxResults int) ([]string, []float64, []string, error)
}

type stats struct {
	totalQueries       int64
	ragActivations     int64
	cacheHits          int64
	totalProcessingNs  int64
	activationCounts   map[ActivationLevel]int64
}

// Gate is the RAG activation classifier plus retrieval cache.
type Gate struct {
	mu             sync.Mutex
	queryCache     map[string]Query
	retrievalCache map[string]Result
	retriever      Retriever
	stats          stats
}

// New creates a Gate. A nil retriever falls back to the built-in simulated
// retrieval the original source used in place of a real vector store.
func New(retriever Retriever) *Gate {
	return &Gate{
		queryCache:     make(map[string]Query),
		retrievalCache: make(map[string]Result),
		retriever:      retriever,
		stats: stats{
			activationCounts: map[ActivationLevel]int64{
				Disabled: 0, Minimal: 0, Standard: 0, Comprehensive: 0,
			},
		},
	}
}

func contextCacheKey(query string, ctx Context) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%v", query, ctx)))
	return hex.EncodeToString(sum[:])
}

// Analyze classifies a query into an activation level and produces a Query.
func (g *Gate) Analyze(query string, ctx Context) Query {
	if strings.TrimSpace(query) == "" {
		return Query{OriginalQuery: query, ActivationLevel: Disabled, Reasoning: "Empty query"}
	}

	queryLower := strings.ToLower(strings.TrimSpace(query))
	key := contextCacheKey(queryLower, ctx)

	g.mu.Lock()
	if cached, ok := g.queryCache[key]; ok {
		g.mu.Unlock()
		return cached
	}
	g.mu.Unlock()

	level, confidence, reasoning := g.determineActivationLevel(queryLower, ctx)
	searchKeywords := extractSearchKeywords(queryLower, level)
	processedQuery := processQueryForRAG(queryLower, level)

	result := Query{
		OriginalQuery:   query,
		ProcessedQuery:  processedQuery,
		ActivationLevel: level,
		SearchKeywords:  searchKeywords,
		Confidence:      confidence,
		Reasoning:       reasoning,
	}

	g.mu.Lock()
	g.queryCache[key] = result
	g.stats.totalQueries++
	g.stats.activationCounts[level]++
	if level != Disabled {
		g.stats.ragActivations++
	}
	g.mu.Unlock()

	return result
}

func (g *Gate) determineActivationLevel(query string, ctx Context) (ActivationLevel, float64, string) {
	queryWords := make(map[string]struct{})
	for _, w := range strings.Fields(query) {
		queryWords[w] = struct{}{}
	}

	for _, level := range activationRank {
		spec := activationPatterns[level]

		patternMatches := 0
		for _, p := range spec.patterns {
			if p.MatchString(query) {
				patternMatches++
			}
		}

		keywordMatches := 0
		for w := range queryWords {
			if _, ok := spec.keywords[w]; ok {
				keywordMatches++
			}
		}

		patternConfidence := minF(1.0, float64(patternMatches)*0.4)
		keywordConfidence := minF(0.6, float64(keywordMatches)*0.2)
		confidence := patternConfidence + keywordConfidence

		confidence = applyContextAdjustments(confidence, level, ctx)

		if confidence >= 0.3 {
			reasoning := fmt.Sprintf("Matched %d patterns, %d keywords", patternMatches, keywordMatches)
			return level, confidence, reasoning
		}
	}

	return Disabled, 0.1, "No strong activation patterns detected"
}

func applyContextAdjustments(confidence float64, level ActivationLevel, ctx Context) float64 {
	if ctx.HasStoredMemories && (level == Standard || level == Comprehensive) {
		confidence *= 1.3
	}
	if ctx.MemoryReferences && level != Disabled {
		confidence *= 1.2
	}
	if ctx.Complexity == types.ComplexityInstant && level != Disabled {
		confidence *= 0.5
	}
	if ctx.Complexity == types.ComplexityMultiStep && (level == Standard || level == Comprehensive) {
		confidence *= 1.2
	}
	return minF(1.0, confidence)
}

func extractSearchKeywords(query string, level ActivationLevel) []string {
	if level == Disabled {
		return nil
	}

	words := wordPattern.FindAllString(strings.ToLower(query), -1)
	keywords := make([]string, 0, len(words))
	for _, w := range words {
		if _, stop := extractStopWords[w]; !stop {
			keywords = append(keywords, w)
		}
	}

	limit, ok := maxKeywordsByLevel[level]
	if !ok {
		limit = 5
	}
	if len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

func processQueryForRAG(query string, level ActivationLevel) string {
	if level == Disabled {
		return ""
	}
	processed := stripTermPattern.ReplaceAllString(query, "")
	processed = whitespacePattern.ReplaceAllString(processed, " ")
	return strings.TrimSpace(processed)
}

// Retrieve fetches content for an analyzed Query, using the configured
// Retriever (or a simulated one if none was supplied), with a result cache
// keyed by (processed_query, level, max_results).
func (g *Gate) Retrieve(q Query, maxResults int) (Result, error) {
	start := time.Now()

	if q.ActivationLevel == Disabled {
		return Result{ActivationLevel: Disabled, ProcessingTime: time.Since(start)}, nil
	}

	key := fmt.Sprintf("%s|%s|%d", q.ProcessedQuery, q.ActivationLevel, maxResults)

	g.mu.Lock()
	if cached, ok := g.retrievalCache[key]; ok {
		cached.ProcessingTime = time.Since(start)
		cached.CacheHit = true
		g.stats.cacheHits++
		g.mu.Unlock()
		return cached, nil
	}
	g.mu.Unlock()

	var content []string
	var scores []float64
	var sources []string
	var err error
	if g.retriever != nil {
		content, scores, sources, err = g.retriever.Retrieve(q, maxResults)
		if err != nil {
			return Result{}, err
		}
	} else {
		content, scores, sources = simulateRetrieval(q, maxResults)
	}

	result := Result{
		RetrievedContent: content,
		RelevanceScores:  scores,
		Sources:          sources,
		ProcessingTime:   time.Since(start),
		ActivationLevel:  q.ActivationLevel,
	}

	g.mu.Lock()
	g.retrievalCache[key] = result
	g.stats.totalProcessingNs += int64(result.ProcessingTime)
	g.mu.Unlock()

	return result, nil
}

// simulateRetrieval mirrors the original's placeholder `_perform_retrieval`
// for use when no real Retriever is wired (tests, or a RAG-only demo build).
func simulateRetrieval(q Query, maxResults int) ([]string, []float64, []string) {
	var content []string
	var scores []float64
	var sources []string

	switch q.ActivationLevel {
	case Minimal:
		content = []string{fmt.Sprintf("Recent context related to: %s", strings.Join(firstN(q.SearchKeywords, 2), ", "))}
		scores = []float64{0.8}
		sources = []string{"conversation_history"}
	case Standard:
		topic := "general"
		if len(q.SearchKeywords) > 0 {
			topic = q.SearchKeywords[0]
		}
		content = []string{
			fmt.Sprintf("User preference: %s", strings.Join(firstN(q.SearchKeywords, 3), ", ")),
			fmt.Sprintf("Stored memory about: %s", topic),
		}
		scores = []float64{0.9, 0.7}
		sources = []string{"user_preferences", "long_term_memory"}
	case Comprehensive:
		topic := "topic"
		if len(q.SearchKeywords) > 0 {
			topic = q.SearchKeywords[0]
		}
		content = []string{
			fmt.Sprintf("Comprehensive analysis of: %s", strings.Join(firstN(q.SearchKeywords, 5), ", ")),
			fmt.Sprintf("Related documents covering: %s", topic),
			fmt.Sprintf("Historical context: %s", strings.Join(sliceRange(q.SearchKeywords, 1, 3), ", ")),
		}
		scores = []float64{0.95, 0.85, 0.75}
		sources = []string{"document_store", "knowledge_base", "conversation_history"}
	}

	if len(content) > maxResults {
		content = content[:maxResults]
	}
	if len(scores) > maxResults {
		scores = scores[:maxResults]
	}
	if len(sources) > maxResults {
		sources = sources[:maxResults]
	}
	return content, scores, sources
}

func firstN(s []string, n int) []string {
	if len(s) < n {
		return s
	}
	return s[:n]
}

func sliceRange(s []string, from, to int) []string {
	if from >= len(s) {
		return nil
	}
	if to > len(s) {
		to = len(s)
	}
	return s[from:to]
}

// ShouldActivate is a quick check for whether RAG should be activated.
func (g *Gate) ShouldActivate(query string, ctx Context) bool {
	return g.Analyze(query, ctx).ActivationLevel != Disabled
}

// Stats summarizes RAG gate performance.
type Stats struct {
	TotalQueries          int64
	RagActivations        int64
	ActivationRate        float64
	CacheHits             int64
	CacheHitRate          float64
	AvgProcessingTime     time.Duration
	ActivationDistribution map[ActivationLevel]int64
	CachedQueries         int
	CachedRetrievals      int
}

// Stats returns a snapshot of RAG gate performance counters.
func (g *Gate) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	activationRate := 0.0
	if g.stats.totalQueries > 0 {
		activationRate = float64(g.stats.ragActivations) / float64(g.stats.totalQueries)
	}
	cacheHitRate := 0.0
	if g.stats.ragActivations > 0 {
		cacheHitRate = float64(g.stats.cacheHits) / float64(g.stats.ragActivations)
	}
	avg := time.Duration(0)
	if g.stats.ragActivations > 0 {
		avg = time.Duration(g.stats.totalProcessingNs / g.stats.ragActivations)
	}

	dist := make(map[ActivationLevel]int64, len(g.stats.activationCounts))
	for k, v := range g.stats.activationCounts {
		dist[k] = v
	}

	return Stats{
		TotalQueries:           g.stats.totalQueries,
		RagActivations:         g.stats.ragActivations,
		ActivationRate:         activationRate,
		CacheHits:              g.stats.cacheHits,
		CacheHitRate:           cacheHitRate,
		AvgProcessingTime:      avg,
		ActivationDistribution: dist,
		CachedQueries:          len(g.queryCache),
		CachedRetrievals:       len(g.retrievalCache),
	}
}

// ClearCache drops both the query-analysis and retrieval caches.
func (g *Gate) ClearCache() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queryCache = make(map[string]Query)
	g.retrievalCache = make(map[string]Result)
}

func minF(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
