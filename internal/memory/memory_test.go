package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScriptedServiceStoreAndSearch(t *testing.T) {
	s := NewScriptedService()
	ctx := context.Background()

	require.NoError(t, s.StoreFact(ctx, "I prefer dark roast coffee"))
	require.NoError(t, s.StoreFact(ctx, "My favorite color is blue"))

	results, err := s.Search(ctx, "coffee", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "I prefer dark roast coffee", results[0].Content)
}

func TestScriptedServiceStoreEmptyFactErrors(t *testing.T) {
	s := NewScriptedService()
	err := s.StoreFact(context.Background(), "   ")
	require.Error(t, err)
}

func TestScriptedServiceSearchEmptyQueryReturnsNil(t *testing.T) {
	s := NewScriptedService()
	require.NoError(t, s.StoreFact(context.Background(), "something"))
	results, err := s.Search(context.Background(), "", 5)
	require.NoError(t, err)
	require.Nil(t, results)
}

func TestScriptedServiceForgetRemovesMatches(t *testing.T) {
	s := NewScriptedService()
	ctx := context.Background()
	require.NoError(t, s.StoreFact(ctx, "I prefer dark roast coffee"))
	require.NoError(t, s.StoreFact(ctx, "My favorite color is blue"))

	removed, err := s.Forget(ctx, "coffee")
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	results, err := s.Search(ctx, "coffee", 5)
	require.NoError(t, err)
	require.Empty(t, results)

	results, err = s.Search(ctx, "blue", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestScriptedServiceSearchRespectsLimit(t *testing.T) {
	s := NewScriptedService()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.StoreFact(ctx, "note about topic alpha"))
	}
	results, err := s.Search(ctx, "topic alpha", 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
}
