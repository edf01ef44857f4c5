package ctxwindow

import (
	"strings"
	"testing"

	"github.com/agalue/voice-assistant/internal/types"
	"github.com/stretchr/testify/require"
)

func TestAddIgnoresBlankContent(t *testing.T) {
	w := New(DefaultConfig())
	w.Add("   ", types.KindUserUtterance, types.PriorityMedium, nil)
	require.Equal(t, 0, w.Stats().TotalEntries)
}

func TestGetOptimizedIncludesContentChronologically(t *testing.T) {
	w := New(DefaultConfig())
	w.Add("what is the weather", types.KindUserUtterance, types.PriorityHigh, nil)
	w.Add("it is sunny today", types.KindAssistantReply, types.PriorityHigh, nil)

	out := w.GetOptimized("", 800)
	userIdx := strings.Index(out, "User: what is the weather")
	assistantIdx := strings.Index(out, "Assistant: it is sunny today")
	require.GreaterOrEqual(t, userIdx, 0)
	require.GreaterOrEqual(t, assistantIdx, 0)
	require.Less(t, userIdx, assistantIdx)
}

func TestAllCriticalEntriesIncludedEvenOverBudget(t *testing.T) {
	w := New(Config{MaxTokens: 10, MaxEntries: 50, CompressionThreshold: 0.99})
	for i := 0; i < 5; i++ {
		w.Add(strings.Repeat("critical content padding words here ", 3), types.KindSystemNote, types.PriorityCritical, []string{"alpha", "beta"})
	}
	out := w.GetOptimized("", 10)
	require.Equal(t, 5, strings.Count(out, "[System:"), "every critical entry must survive the budget, not just the first")
}

func TestMaxEntriesHardCapEvictsOldest(t *testing.T) {
	w := New(Config{MaxTokens: 100000, MaxEntries: 3, CompressionThreshold: 0.99})
	w.Add("first entry", types.KindUserUtterance, types.PriorityLow, nil)
	w.Add("second entry", types.KindUserUtterance, types.PriorityLow, nil)
	w.Add("third entry", types.KindUserUtterance, types.PriorityLow, nil)
	w.Add("fourth entry", types.KindUserUtterance, types.PriorityLow, nil)

	require.LessOrEqual(t, w.Stats().TotalEntries, 3)
}

func TestCompressionProducesSummaryAfterEnoughEntries(t *testing.T) {
	w := New(Config{MaxTokens: 50, MaxEntries: 100, CompressionThreshold: 0.5})
	for i := 0; i < 12; i++ {
		w.Add("padding content about topic alpha beta gamma", types.KindUserUtterance, types.PriorityMinimal, nil)
	}
	require.Greater(t, w.Stats().CompressedSummaries, 0)
}

func TestStatsUtilizationWithinBounds(t *testing.T) {
	w := New(DefaultConfig())
	w.Add("hello world this is a test", types.KindUserUtterance, types.PriorityMedium, nil)
	stats := w.Stats()
	require.GreaterOrEqual(t, stats.Utilization, 0.0)
}
