package report

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCache(client, nil), mr
}

func TestCacheSaveAndLoad(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	generatedAt := time.Date(2025, 6, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, cache.Save(ctx, CachedReport{
		ConversationID: "conv_1748780000000_abc123def",
		AppointmentID:  "apt-100",
		PatientName:    "Jane Doe",
		Report:         "Chief Complaint: headache",
		GeneratedAt:    generatedAt,
	}))

	cached, err := cache.Load(ctx, "apt-100")
	require.NoError(t, err)
	require.NotNil(t, cached)
	assert.Equal(t, "conv_1748780000000_abc123def", cached.ConversationID)
	assert.Equal(t, "Jane Doe", cached.PatientName)
	assert.Equal(t, "Chief Complaint: headache", cached.Report)
	assert.True(t, cached.GeneratedAt.Equal(generatedAt))
}

func TestCacheMissReturnsNil(t *testing.T) {
	cache, _ := newTestCache(t)

	cached, err := cache.Load(context.Background(), "apt-missing")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestCacheInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, CachedReport{AppointmentID: "apt-300", Report: "r"}))
	require.NoError(t, cache.Invalidate(ctx, "apt-300"))

	cached, err := cache.Load(ctx, "apt-300")
	require.NoError(t, err)
	assert.Nil(t, cached)
}

func TestCacheInvalidateMissingKeyIsNoop(t *testing.T) {
	cache, _ := newTestCache(t)

	assert.NoError(t, cache.Invalidate(context.Background(), "apt-never-seen"))
}

func TestCacheEntriesExpire(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, CachedReport{AppointmentID: "apt-200", Report: "r"}))
	mr.FastForward(25 * time.Hour)

	cached, err := cache.Load(ctx, "apt-200")
	require.NoError(t, err)
	assert.Nil(t, cached)
}
