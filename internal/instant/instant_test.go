package instant

import (
	"testing"

	"github.com/agalue/voice-assistant/internal/types"
	"github.com/stretchr/testify/require"
)

func TestHandleReturnsNilForNonInstantQuery(t *testing.T) {
	h := New()
	resp := h.Handle("what is the capital of france", Context{}, nil)
	require.Nil(t, resp)
}

func TestHandleReturnsNilForEmptyQuery(t *testing.T) {
	h := New()
	require.Nil(t, h.Handle("   ", Context{}, nil))
}

func TestGreetingMatches(t *testing.T) {
	h := New()
	resp := h.Handle("hello there", Context{}, nil)
	require.NotNil(t, resp)
	require.Equal(t, Greeting, resp.ResponseType)
	require.Greater(t, resp.Confidence, 0.0)
}

func TestFarewellMatches(t *testing.T) {
	h := New()
	resp := h.Handle("bye", Context{}, nil)
	require.NotNil(t, resp)
	require.Equal(t, Farewell, resp.ResponseType)
}

func TestCacheHitMarksCached(t *testing.T) {
	h := New()
	first := h.Handle("hello", Context{}, nil)
	require.NotNil(t, first)
	require.False(t, first.Cached)

	second := h.Handle("HELLO", Context{}, nil)
	require.NotNil(t, second)
	require.True(t, second.Cached)
}

func TestIsInstantWithoutRendering(t *testing.T) {
	h := New()
	require.True(t, h.IsInstant("thanks a lot"))
	require.False(t, h.IsInstant("tell me a five paragraph essay on rome"))
}

func TestToolListingEnumeratesAllWhenSmall(t *testing.T) {
	h := New()
	lister := func() []types.ToolDescriptor {
		return []types.ToolDescriptor{
			{ID: "get_current_time", Description: "Returns the current time"},
			{ID: "remember_fact", Description: "Stores a fact"},
		}
	}
	resp := h.Handle("what tools do you have", Context{}, lister)
	require.NotNil(t, resp)
	require.Equal(t, ToolListing, resp.ResponseType)
	require.Contains(t, resp.Text, "get_current_time")
	require.Contains(t, resp.Text, "remember_fact")
	require.NotContains(t, resp.Text, "more.")
}

func TestToolListingTruncatesWhenLarge(t *testing.T) {
	h := New()
	lister := func() []types.ToolDescriptor {
		tools := make([]types.ToolDescriptor, 9)
		for i := range tools {
			tools[i] = types.ToolDescriptor{ID: "tool", Description: "desc"}
		}
		return tools
	}
	resp := h.Handle("list all tools", Context{}, lister)
	require.NotNil(t, resp)
	require.Contains(t, resp.Text, "3 more")
}

func TestToolListingEmptyRegistry(t *testing.T) {
	h := New()
	resp := h.Handle("show tools", Context{}, func() []types.ToolDescriptor { return nil })
	require.NotNil(t, resp)
	require.Equal(t, "I don't have any tools available at the moment.", resp.Text)
}
