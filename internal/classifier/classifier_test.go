package classifier

import (
	"testing"

	"github.com/agalue/voice-assistant/internal/types"
	"github.com/stretchr/testify/require"
)

func TestConfidenceAlwaysInUnitInterval(t *testing.T) {
	c := New()
	queries := []string{
		"hello there",
		"what time is it",
		"explain how photosynthesis works",
		"create a script and a program to analyze data",
		"gibberish query with no pattern match at all",
	}
	for _, q := range queries {
		result := c.Classify(q)
		require.GreaterOrEqual(t, result.Confidence, 0.0)
		require.LessOrEqual(t, result.Confidence, 1.0)
	}
}

func TestEmptyQueryClassifiesInstantWithZeroConfidence(t *testing.T) {
	c := New()
	result := c.Classify("   ")
	require.Equal(t, types.ComplexityInstant, result.Complexity)
	require.Equal(t, 0.0, result.Confidence)
	require.Equal(t, "Empty query", result.Reasoning)
	require.Empty(t, result.SuggestedTools)
}

func TestInstantGreeting(t *testing.T) {
	c := New()
	result := c.Classify("hello")
	require.Equal(t, types.ComplexityInstant, result.Complexity)
	require.InDelta(t, 0.95, result.Confidence, 1e-9)
}

func TestExplicitFactTime(t *testing.T) {
	c := New()
	result := c.Classify("what time is it")
	require.Equal(t, types.ComplexityFact, result.Complexity)
	require.InDelta(t, 0.95, result.Confidence, 1e-9)
	require.Contains(t, result.SuggestedTools, "get_current_time")
}

func TestSimpleReasoningExplain(t *testing.T) {
	c := New()
	result := c.Classify("explain how the engine works")
	require.Equal(t, types.ComplexityReasoning, result.Complexity)
}

func TestComplexMultiStepBuildScript(t *testing.T) {
	c := New()
	result := c.Classify("create a script to automate my backups")
	require.Equal(t, types.ComplexityMultiStep, result.Complexity)
}

func TestComplexPatternTakesPriorityOverFactWhenAboveThreshold(t *testing.T) {
	// "create a tool" matches complex (0.90, >0.7) and must win outright,
	// even though the text also loosely touches fact-like wording.
	c := New()
	result := c.Classify("create a tool to tell me what time it is")
	require.Equal(t, types.ComplexityMultiStep, result.Complexity)
}

func TestDefaultFallbackIsSimpleReasoningAtPointFive(t *testing.T) {
	c := New()
	result := c.Classify("purple elephants dance quietly")
	require.Equal(t, types.ComplexityReasoning, result.Complexity)
	require.InDelta(t, 0.5, result.Confidence, 1e-9)
	require.Equal(t, "Default classification - no strong pattern match", result.Reasoning)
}

func TestClassificationIsMemoized(t *testing.T) {
	c := New()
	first := c.Classify("What Time Is It")
	second := c.Classify("  what time is it  ")
	require.Equal(t, first, second)
}

func TestSuggestedToolsDeduplicated(t *testing.T) {
	c := New()
	result := c.Classify("remember to save this and store it")
	count := 0
	for _, tool := range result.SuggestedTools {
		if tool == "remember_fact" {
			count++
		}
	}
	require.Equal(t, 1, count)
}
