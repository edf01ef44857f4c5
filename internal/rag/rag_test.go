package rag

import (
	"testing"

	"github.com/agalue/voice-assistant/internal/types"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeEmptyQuery(t *testing.T) {
	g := New(nil)
	q := g.Analyze("   ", Context{})
	require.Equal(t, Disabled, q.ActivationLevel)
	require.Equal(t, "Empty query", q.Reasoning)
}

func TestAnalyzeGreetingIsDisabled(t *testing.T) {
	g := New(nil)
	q := g.Analyze("hello there", Context{})
	require.Equal(t, Disabled, q.ActivationLevel)
}

func TestAnalyzeRememberIsStandard(t *testing.T) {
	g := New(nil)
	q := g.Analyze("can you remember my favorite color", Context{})
	require.Equal(t, Standard, q.ActivationLevel)
	require.NotContains(t, q.SearchKeywords, "remember")
}

func TestAnalyzeComprehensiveDocumentAnalysis(t *testing.T) {
	g := New(nil)
	q := g.Analyze("please analyze these documents thoroughly", Context{})
	require.Equal(t, Comprehensive, q.ActivationLevel)
}

func TestStoredMemoriesAmplifiesStandardConfidence(t *testing.T) {
	g := New(nil)
	without := g.Analyze("what do you remember about my trip", Context{})
	g.ClearCache()
	with := g.Analyze("what do you remember about my trip", Context{HasStoredMemories: true})
	require.GreaterOrEqual(t, with.Confidence, without.Confidence)
}

func TestInstantComplexityAttenuatesConfidence(t *testing.T) {
	g := New(nil)
	plain := g.Analyze("what do you remember about my trip", Context{})
	g.ClearCache()
	instant := g.Analyze("what do you remember about my trip", Context{Complexity: types.ComplexityInstant})
	if plain.ActivationLevel != Disabled {
		require.LessOrEqual(t, instant.Confidence, plain.Confidence)
	}
}

func TestProcessedQueryStripsMemoryVerbs(t *testing.T) {
	g := New(nil)
	q := g.Analyze("remember my preferences about coffee", Context{})
	require.NotContains(t, q.ProcessedQuery, "remember")
}

func TestRetrieveDisabledReturnsEmptyResult(t *testing.T) {
	g := New(nil)
	q := g.Analyze("hi", Context{})
	res, err := g.Retrieve(q, 5)
	require.NoError(t, err)
	require.Empty(t, res.RetrievedContent)
	require.Equal(t, Disabled, res.ActivationLevel)
}

func TestRetrieveIsCachedBySignature(t *testing.T) {
	g := New(nil)
	q := g.Analyze("what do you remember about my trip", Context{})
	first, err := g.Retrieve(q, 5)
	require.NoError(t, err)
	require.False(t, first.CacheHit)

	second, err := g.Retrieve(q, 5)
	require.NoError(t, err)
	require.True(t, second.CacheHit)
	require.Equal(t, first.RetrievedContent, second.RetrievedContent)
}

func TestShouldActivateMatchesAnalyze(t *testing.T) {
	g := New(nil)
	require.False(t, g.ShouldActivate("hello", Context{}))
	require.True(t, g.ShouldActivate("remember my preferences", Context{}))
}

func TestStatsTracksActivationsAndCacheHits(t *testing.T) {
	g := New(nil)
	q := g.Analyze("remember my preferences", Context{})
	_, _ = g.Retrieve(q, 3)
	_, _ = g.Retrieve(q, 3)

	stats := g.Stats()
	require.Equal(t, int64(1), stats.TotalQueries)
	require.Equal(t, int64(1), stats.RagActivations)
	require.Equal(t, int64(1), stats.CacheHits)
}
