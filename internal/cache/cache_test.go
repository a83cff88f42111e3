package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/gamerag/types"
)

func newTestCache(t *testing.T) (*ResultCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	cfg := DefaultConfig()
	cfg.Addr = mr.Addr()
	cfg.TTL = time.Minute

	c, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c, mr
}

func sampleResults() []types.RetrievalResult {
	return []types.RetrievalResult{
		{
			Entity: types.EntityRecord{
				ID:            "npc:darklord",
				CanonicalName: "다크로드",
				Category:      types.CategoryNPC,
			},
			FusedScore: 100,
			Sources:    types.NewSourceSet(types.SourceKeyword),
			MatchType:  types.MatchExactName,
		},
	}
}

func TestResultCache_RoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	key := Key(types.StrategyHop, "다크로드 어디?", 5)

	_, hit := c.Get(ctx, key)
	assert.False(t, hit)

	c.Set(ctx, key, sampleResults())

	got, hit := c.Get(ctx, key)
	require.True(t, hit)
	require.Len(t, got, 1)
	assert.Equal(t, "npc:darklord", got[0].Entity.ID)
	assert.True(t, got[0].Sources.Has(types.SourceKeyword))
}

func TestResultCache_ExpiryMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	key := Key(types.StrategyHop, "q", 10)
	c.Set(ctx, key, sampleResults())

	mr.FastForward(2 * time.Minute)

	_, hit := c.Get(ctx, key)
	assert.False(t, hit)
}

func TestResultCache_KeyDistinguishesInputs(t *testing.T) {
	t.Parallel()

	base := Key(types.StrategyHop, "q", 10)
	assert.NotEqual(t, base, Key(types.StrategyPlan, "q", 10))
	assert.NotEqual(t, base, Key(types.StrategyHop, "q2", 10))
	assert.NotEqual(t, base, Key(types.StrategyHop, "q", 5))
}

func TestResultCache_ClosedIsSafe(t *testing.T) {
	c, _ := newTestCache(t)
	require.NoError(t, c.Close())

	_, hit := c.Get(context.Background(), "k")
	assert.False(t, hit)
	c.Set(context.Background(), "k", sampleResults())
	require.NoError(t, c.Close())
}
