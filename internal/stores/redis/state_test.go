package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subgraphx/internal/domain"
	"subgraphx/internal/store"
)

func setupTestRedis(t *testing.T) *Client {
	t.Helper()

	mr := miniredis.RunT(t)
	return &Client{goredis.NewClient(&goredis.Options{Addr: mr.Addr()})}
}

func TestWarmState_RoundTrip(t *testing.T) {
	t.Parallel()

	client := setupTestRedis(t)
	defer client.Close()

	ms := store.NewMemStore()
	ms.PutProtocol(&domain.Protocol{ID: "acme-swap", CumulativeVolumeUSD: decimal.NewFromInt(42)})
	ms.PutToken(&domain.Token{ID: "0xaa", Symbol: "ALPHA", Decimals: 18})

	ctx := context.Background()
	err := client.SaveState(ctx, "indexer:state", &WarmState{
		Store:        ms.ExportState(),
		LastBlock:    100,
		LastLogIndex: 7,
	})
	require.NoError(t, err)

	got, err := client.LoadState(ctx, "indexer:state")
	require.NoError(t, err)

	assert.Equal(t, uint64(100), got.LastBlock)
	assert.Equal(t, uint32(7), got.LastLogIndex)
	assert.False(t, got.TakenAt.IsZero())

	restored := store.RestoreMemStore(got.Store)
	p, ok := restored.Protocol()
	require.True(t, ok)
	assert.True(t, p.CumulativeVolumeUSD.Equal(decimal.NewFromInt(42)))

	tok, ok := restored.Token("0xaa")
	require.True(t, ok)
	assert.Equal(t, "ALPHA", tok.Symbol)
}

func TestWarmState_Missing(t *testing.T) {
	t.Parallel()

	client := setupTestRedis(t)
	defer client.Close()

	_, err := client.LoadState(context.Background(), "indexer:missing")
	assert.ErrorIs(t, err, ErrNoState)
}
