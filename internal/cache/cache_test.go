package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/selcuk9494/react-sub001/internal/domain"
)

func TestBranchKey(t *testing.T) {
	assert.Equal(t, "branches:user:42", branchKey(42))
}

func TestNoopBranchCacheAlwaysMisses(t *testing.T) {
	var c BranchCache = NoopBranchCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, 1, []domain.BranchSummary{{ID: 1}}, time.Minute))
	got, ok, err := c.Get(ctx, 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx, 1))
}

func TestRedisBranchCacheRoundTrip(t *testing.T) {
	addr := os.Getenv("REPORTING_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("set REPORTING_TEST_REDIS_ADDR to run redis integration test")
	}
	c := NewRedisBranchCache(addr, "", 0)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()
	require.NoError(t, c.Ping(ctx))

	userID := time.Now().UnixNano()
	want := []domain.BranchSummary{{ID: 7, Name: "Moda", KasaNumbers: []int{1, 2}, ClosingHour: 6}}
	require.NoError(t, c.Set(ctx, userID, want, time.Minute))

	got, ok, err := c.Get(ctx, userID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, want, got)

	require.NoError(t, c.Invalidate(ctx, userID))
	_, ok, err = c.Get(ctx, userID)
	require.NoError(t, err)
	assert.False(t, ok)
}
