package registry

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/chain"
	"subgraphx/internal/pricing"
	"subgraphx/internal/store"
)

func newTestLogger() logger.Logger {
	return logger.New(lgcfg.LoggerCfg{Level: "error", Format: "json"})
}

func newRegistry(sim *chain.SimBackend, stables []common.Address) (*TokenRegistry, *store.MemStore) {
	st := store.NewMemStore()
	resolver := pricing.NewResolver(newTestLogger(), []pricing.Source{pricing.NewStableSource(stables)})
	return NewTokenRegistry(newTestLogger(), st, sim, resolver), st
}

func TestGetOrCreate_FetchesMetadata(t *testing.T) {
	t.Parallel()

	sim := chain.NewSimBackend()
	addr := common.HexToAddress("0x01")
	sim.RegisterToken(addr, chain.SimToken{Name: "USD Coin", Symbol: "USDC", Decimals: 6})

	reg, _ := newRegistry(sim, nil)

	tok := reg.GetOrCreate(context.Background(), addr, 100)
	assert.Equal(t, "USD Coin", tok.Name)
	assert.Equal(t, "USDC", tok.Symbol)
	assert.Equal(t, uint8(6), tok.Decimals)
	assert.Equal(t, uint64(100), tok.CreatedBlock)
}

func TestGetOrCreate_AllCallsRevert(t *testing.T) {
	t.Parallel()

	sim := chain.NewSimBackend() // unregistered token: every metadata call reverts
	reg, _ := newRegistry(sim, nil)

	tok := reg.GetOrCreate(context.Background(), common.HexToAddress("0xdead"), 7)
	assert.Equal(t, "unknown", tok.Name)
	assert.Equal(t, "UNKNOWN", tok.Symbol)
	assert.Equal(t, uint8(0), tok.Decimals)
}

func TestGetOrCreate_CacheHitSkipsCalls(t *testing.T) {
	t.Parallel()

	sim := chain.NewSimBackend()
	addr := common.HexToAddress("0x02")
	sim.RegisterToken(addr, chain.SimToken{Name: "Dai", Symbol: "DAI", Decimals: 18})

	reg, _ := newRegistry(sim, nil)
	first := reg.GetOrCreate(context.Background(), addr, 10)
	require.Equal(t, "DAI", first.Symbol)

	// static fields are immutable after first observation even if the chain
	// would now answer differently
	sim.Break(addr)
	second := reg.GetOrCreate(context.Background(), addr, 11)
	assert.Equal(t, "DAI", second.Symbol)
	assert.Equal(t, uint8(18), second.Decimals)
}

func TestRefreshPrice_OncePerBlock(t *testing.T) {
	t.Parallel()

	sim := chain.NewSimBackend()
	stable := common.HexToAddress("0x03")
	sim.RegisterToken(stable, chain.SimToken{Name: "USD Coin", Symbol: "USDC", Decimals: 6})

	reg, st := newRegistry(sim, []common.Address{stable})

	tok := reg.RefreshPrice(context.Background(), stable, 50)
	assert.True(t, tok.PriceUSD.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, uint64(50), tok.PriceBlock)

	// poison the stored price, refresh at the same block must not touch it
	tok.PriceUSD = decimal.NewFromInt(999)
	st.PutToken(tok)

	same := reg.RefreshPrice(context.Background(), stable, 50)
	assert.True(t, same.PriceUSD.Equal(decimal.NewFromInt(999)))

	// next block refreshes again
	next := reg.RefreshPrice(context.Background(), stable, 51)
	assert.True(t, next.PriceUSD.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, uint64(51), next.PriceBlock)
}

func TestRefreshPrice_RevertKeepsLastObservation(t *testing.T) {
	t.Parallel()

	sim := chain.NewSimBackend()
	addr := common.HexToAddress("0x04")
	sim.RegisterToken(addr, chain.SimToken{Name: "Mystery", Symbol: "MYS", Decimals: 18})

	reg, st := newRegistry(sim, nil) // no price source can price this token

	tok := reg.GetOrCreate(context.Background(), addr, 1)
	tok.PriceUSD = decimal.NewFromInt(5)
	tok.PriceBlock = 1
	st.PutToken(tok)

	got := reg.RefreshPrice(context.Background(), addr, 2)
	assert.True(t, got.PriceUSD.Equal(decimal.NewFromInt(5)), "revert must keep last price")
	assert.Equal(t, uint64(1), got.PriceBlock)
}
