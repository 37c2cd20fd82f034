package handlers

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/chain"
	"subgraphx/internal/config"
	"subgraphx/internal/domain"
	"subgraphx/internal/pricing"
	"subgraphx/internal/protocol"
	"subgraphx/internal/registry"
	"subgraphx/internal/snapshots"
	"subgraphx/internal/store"
)

var (
	tokenA = common.HexToAddress("0xa111111111111111111111111111111111111111")
	tokenB = common.HexToAddress("0xb222222222222222222222222222222222222222")
	feedA  = common.HexToAddress("0xfeed000000000000000000000000000000000001")
	lpTok  = common.HexToAddress("0x1b00000000000000000000000000000000000001")
	poolX  = common.HexToAddress("0x9000000000000000000000000000000000000001")
	alice  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	bob    = common.HexToAddress("0x1000000000000000000000000000000000000002")

	baseTime = time.Unix(1_700_000_000, 0).UTC()
)

func newTestLogger() logger.Logger {
	return logger.New(lgcfg.LoggerCfg{Level: "error", Format: "json"})
}

type fixture struct {
	deps     *Deps
	registry *Registry
	sim      *chain.SimBackend
	store    *store.MemStore
}

// tokenA: 18 decimals @ 2 USD (feed), tokenB: 6 decimals stable @ 1 USD.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := newTestLogger()
	st := store.NewMemStore()

	sim := chain.NewSimBackend()
	sim.RegisterToken(tokenA, chain.SimToken{Name: "Alpha", Symbol: "ALPHA", Decimals: 18})
	sim.RegisterToken(tokenB, chain.SimToken{Name: "USD Coin", Symbol: "USDC", Decimals: 6})
	sim.RegisterToken(lpTok, chain.SimToken{Name: "Alpha LP", Symbol: "ALP", Decimals: 18})
	sim.RegisterFeed(feedA, decimal.NewFromInt(2))

	resolver := pricing.NewResolver(log, []pricing.Source{
		pricing.NewStableSource([]common.Address{tokenB}),
		pricing.NewFeedSource(sim, map[common.Address]common.Address{tokenA: feedA}),
	})
	tokens := registry.NewTokenRegistry(log, st, sim, resolver)

	pm := protocol.NewProtocolManager(log, st, config.ProtocolConfig{
		Name: "Acme Swap", Slug: "acme-swap", Version: "1.2.0",
	}, "mainnet")
	accounts := protocol.NewAccountManager(log, st, pm)

	deps := &Deps{
		Log:       log,
		Store:     st,
		Caller:    sim,
		Tokens:    tokens,
		Protocol:  pm,
		Pools:     protocol.NewPoolManager(log, st, tokens, pm, 0.5),
		Accounts:  accounts,
		Positions: protocol.NewPositionManager(log, st, accounts),
		Roller:    snapshots.NewRoller(log, st, nil, true, true),
	}

	return &fixture{deps: deps, registry: NewRegistry(log), sim: sim, store: st}
}

func (f *fixture) dispatch(t *testing.T, ev *domain.Event) []domain.EntityPatch {
	t.Helper()
	if ev.EventID == "" {
		ev.EventID = domain.MakeEventID(ev.Block, "0xabc", ev.LogIndex)
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = baseTime
	}
	return f.registry.Dispatch(context.Background(), f.deps, ev)
}

func (f *fixture) createPool(t *testing.T) {
	t.Helper()
	patches := f.dispatch(t, &domain.Event{
		Kind:           domain.EventPoolCreated,
		Block:          10,
		Pool:           poolX,
		PoolName:       "Alpha/USDC",
		PoolSymbol:     "ALPHA-USDC",
		InputTokens:    []common.Address{tokenA, tokenB},
		OutputToken:    lpTok,
		FeeBasisPoints: 30,
	})
	require.NotEmpty(t, patches)
}

func units(n int64, decimals int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil)
	return new(big.Int).Mul(big.NewInt(n), scale)
}

func TestPoolCreatedThenDeposit(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createPool(t)

	patches := f.dispatch(t, &domain.Event{
		Kind:    domain.EventDeposit,
		Block:   11,
		Pool:    poolX,
		Account: alice,
		Token:   tokenB,
		Amount:  units(100, 6),
	})
	require.Len(t, patches, 2)
	assert.Equal(t, "pool:"+domain.Addr(poolX), patches[0].Topic)
	assert.Equal(t, "protocol:acme-swap", patches[1].Topic)

	p, ok := f.store.Pool(domain.Addr(poolX))
	require.True(t, ok)
	assert.True(t, p.TotalValueLockedUSD.Equal(decimal.NewFromInt(100)))

	acc, ok := f.store.Account(domain.Addr(alice))
	require.True(t, ok)
	assert.Equal(t, uint64(1), acc.DepositCount)
	assert.Equal(t, uint64(1), acc.OpenPositionCount)

	pos, open := f.deps.Positions.LoadOpen(alice, poolX, domain.SideLender)
	require.True(t, open)
	assert.Equal(t, units(100, 6), pos.Balance)
}

func TestDeposit_MissingPoolSkips(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	patches := f.dispatch(t, &domain.Event{
		Kind:    domain.EventDeposit,
		Block:   11,
		Pool:    poolX,
		Account: alice,
		Token:   tokenB,
		Amount:  units(100, 6),
	})
	assert.Empty(t, patches)

	// the skip happens before any entity is touched
	_, ok := f.store.Account(domain.Addr(alice))
	assert.False(t, ok)
}

func TestWithdraw_ClosesPosition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createPool(t)

	f.dispatch(t, &domain.Event{
		Kind: domain.EventDeposit, Block: 11, Pool: poolX, Account: alice,
		Token: tokenB, Amount: units(100, 6),
	})
	f.dispatch(t, &domain.Event{
		Kind: domain.EventWithdraw, Block: 12, Pool: poolX, Account: alice,
		Token: tokenB, Amount: units(100, 6),
	})

	_, open := f.deps.Positions.LoadOpen(alice, poolX, domain.SideLender)
	assert.False(t, open)

	p, _ := f.store.Pool(domain.Addr(poolX))
	assert.True(t, p.TotalValueLockedUSD.IsZero())

	acc, _ := f.store.Account(domain.Addr(alice))
	assert.Equal(t, uint64(1), acc.WithdrawCount)
	assert.Equal(t, uint64(1), acc.ClosedPositionCount)
}

func TestSwap_VolumeAndRevenue(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createPool(t)

	// seed liquidity: 1000 ALPHA + 2000 USDC
	f.dispatch(t, &domain.Event{
		Kind: domain.EventSync, Block: 11, Pool: poolX,
		Balances: []*big.Int{units(1000, 18), units(2000, 6)},
	})

	// swap 1000 USDC in for 499 ALPHA out
	f.dispatch(t, &domain.Event{
		Kind: domain.EventSwap, Block: 12, Pool: poolX, Account: bob,
		TokenIn: tokenB, TokenOut: tokenA,
		AmountIn: units(1000, 6), AmountOut: units(499, 18),
	})

	p, ok := f.store.Pool(domain.Addr(poolX))
	require.True(t, ok)

	assert.True(t, p.CumulativeVolumeUSD.Equal(decimal.NewFromInt(1000)), "got %s", p.CumulativeVolumeUSD)

	// 30 bps of 1000 USDC = 3 USD, split 50/50
	assert.True(t, p.CumulativeTotalRevenueUSD.Equal(decimal.NewFromInt(3)), "got %s", p.CumulativeTotalRevenueUSD)
	assert.True(t, p.CumulativeSupplyRevenueUSD.Equal(decimal.RequireFromString("1.5")))

	prot, _ := f.store.Protocol()
	assert.True(t, prot.CumulativeVolumeUSD.Equal(decimal.NewFromInt(1000)))
	assert.True(t, prot.CumulativeTotalRevenueUSD.Equal(decimal.NewFromInt(3)))

	acc, _ := f.store.Account(domain.Addr(bob))
	assert.Equal(t, uint64(1), acc.SwapCount)
}

func TestSync_ReplacesBalancesAndSupply(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createPool(t)
	f.sim.RegisterSupply(lpTok, units(5000, 18))

	// no token addresses on the event; supply must resolve via the pool's
	// stored output token
	f.dispatch(t, &domain.Event{
		Kind: domain.EventSync, Block: 11, Pool: poolX,
		Balances: []*big.Int{units(10, 18), units(20, 6)},
	})

	p, ok := f.store.Pool(domain.Addr(poolX))
	require.True(t, ok)

	// 10 ALPHA @ 2 + 20 USDC @ 1 = 40 USD
	assert.True(t, p.TotalValueLockedUSD.Equal(decimal.NewFromInt(40)), "got %s", p.TotalValueLockedUSD)
	assert.Equal(t, units(5000, 18), p.OutputTokenSupply)
}

func TestBorrowRepayLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createPool(t)

	f.dispatch(t, &domain.Event{
		Kind: domain.EventSync, Block: 11, Pool: poolX,
		Balances: []*big.Int{units(0, 18), units(1000, 6)},
	})

	f.dispatch(t, &domain.Event{
		Kind: domain.EventBorrow, Block: 12, Pool: poolX, Account: alice,
		Token: tokenB, Amount: units(400, 6),
	})

	p, _ := f.store.Pool(domain.Addr(poolX))
	assert.True(t, p.TotalValueLockedUSD.Equal(decimal.NewFromInt(600)))

	pos, open := f.deps.Positions.LoadOpen(alice, poolX, domain.SideBorrower)
	require.True(t, open)
	assert.Equal(t, units(400, 6), pos.Balance)

	f.dispatch(t, &domain.Event{
		Kind: domain.EventRepay, Block: 13, Pool: poolX, Account: alice,
		Token: tokenB, Amount: units(400, 6),
	})

	_, open = f.deps.Positions.LoadOpen(alice, poolX, domain.SideBorrower)
	assert.False(t, open)

	p, _ = f.store.Pool(domain.Addr(poolX))
	assert.True(t, p.TotalValueLockedUSD.Equal(decimal.NewFromInt(1000)))

	acc, _ := f.store.Account(domain.Addr(alice))
	assert.Equal(t, uint64(1), acc.BorrowCount)
	assert.Equal(t, uint64(1), acc.RepayCount)
}

func TestLiquidation_ClosesBorrowerPosition(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createPool(t)

	f.dispatch(t, &domain.Event{
		Kind: domain.EventBorrow, Block: 11, Pool: poolX, Account: alice,
		Token: tokenB, Amount: units(400, 6),
	})

	f.dispatch(t, &domain.Event{
		Kind: domain.EventLiquidation, Block: 12, Pool: poolX,
		Account: alice, Liquidator: bob,
		Token: tokenB, Amount: units(400, 6),
	})

	_, open := f.deps.Positions.LoadOpen(alice, poolX, domain.SideBorrower)
	assert.False(t, open)

	liquidated, _ := f.store.Account(domain.Addr(alice))
	assert.Equal(t, uint64(1), liquidated.LiquidatedCount)

	liquidator, _ := f.store.Account(domain.Addr(bob))
	assert.Equal(t, uint64(1), liquidator.LiquidationCount)
}

func TestDispatch_UnknownKindSkipped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	patches := f.dispatch(t, &domain.Event{Kind: domain.EventKind("bogus"), Block: 1})
	assert.Nil(t, patches)
}

func TestHourlySnapshotOnBoundary(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.createPool(t)

	f.dispatch(t, &domain.Event{
		Kind: domain.EventSwap, Block: 11, Pool: poolX, Account: bob,
		TokenIn: tokenB, TokenOut: tokenA,
		AmountIn: units(100, 6), AmountOut: units(49, 18),
		Timestamp: baseTime,
	})

	// crossing the hour materializes fresh snapshots with period deltas
	f.dispatch(t, &domain.Event{
		Kind: domain.EventSwap, Block: 40, Pool: poolX, Account: bob,
		TokenIn: tokenB, TokenOut: tokenA,
		AmountIn: units(300, 6), AmountOut: units(149, 18),
		Timestamp: baseTime.Add(time.Hour),
	})

	prot, _ := f.store.Protocol()
	snaps := f.deps.Roller.RollProtocol(prot, 41, baseTime.Add(time.Hour))
	assert.Empty(t, snaps, "bucket already snapshotted by the handler")
}
