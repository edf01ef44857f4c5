package tools

import (
	"context"
	"testing"

	"github.com/agalue/voice-assistant/internal/types"
	"github.com/stretchr/testify/require"
)

func TestSelectToolsEmptyQuery(t *testing.T) {
	r := NewRegistry()
	sel := r.SelectTools("   ", 3, SelectionContext{})
	require.Empty(t, sel.SelectedTools)
	require.Equal(t, "Empty query", sel.SelectionReasoning)
}

func TestSelectToolsMatchesTimeQuery(t *testing.T) {
	r := NewRegistry()
	sel := r.SelectTools("what time is it right now", 3, SelectionContext{})
	require.Contains(t, sel.SelectedTools, "get_current_time")
}

func TestSelectToolsRespectsMaxTools(t *testing.T) {
	r := NewRegistry()
	sel := r.SelectTools("remember this file and execute this script on the web", 2, SelectionContext{})
	require.LessOrEqual(t, len(sel.SelectedTools), 2)
}

func TestSelectToolsIsCachedOnSecondCall(t *testing.T) {
	r := NewRegistry()
	first := r.SelectTools("what time is it", 3, SelectionContext{})
	require.False(t, first.Cached)
	second := r.SelectTools("what time is it", 3, SelectionContext{})
	require.True(t, second.Cached)
	require.Equal(t, first.SelectedTools, second.SelectedTools)
}

func TestRecordUsageUpdatesSuccessRateAndLatency(t *testing.T) {
	r := NewRegistry()
	r.RecordUsage("get_current_time", true, 10)
	r.RecordUsage("get_current_time", false, 200)

	var found types.ToolDescriptor
	for _, d := range r.Descriptors() {
		if d.ID == "get_current_time" {
			found = d
		}
	}
	require.Equal(t, int64(2), found.UsageCount)
	require.Greater(t, found.AvgLatencyMs, 0.0)
	require.Less(t, found.SuccessRate, 1.0)
}

func TestInvokeUnregisteredToolErrors(t *testing.T) {
	r := NewRegistry()
	_, err := r.Invoke(context.Background(), "does_not_exist", "{}")
	require.Error(t, err)
}

func TestInvokeCallsRegisteredHandler(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", "echoes args", "general", nil, func(ctx context.Context, argsJSON string) (string, error) {
		return argsJSON, nil
	})
	out, err := r.Invoke(context.Background(), "echo", `{"a":1}`)
	require.NoError(t, err)
	require.Equal(t, `{"a":1}`, out)
}

func TestTimeSensitiveContextBoostsTimeCategory(t *testing.T) {
	r := NewRegistry()
	sel := r.SelectTools("what time is it", 1, SelectionContext{TimeSensitive: true})
	require.Equal(t, []string{"get_current_time"}, sel.SelectedTools)
}
