package service

import (
	"context"
	"errors"
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
	"subgraphx/internal/dedupe"
	"subgraphx/internal/domain"
	"subgraphx/internal/handlers"
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
	poolX  = common.HexToAddress("0x9000000000000000000000000000000000000001")
	alice  = common.HexToAddress("0x1000000000000000000000000000000000000001")

	baseTime = time.Unix(1_700_000_000, 0).UTC()
)

func newTestLogger() logger.Logger {
	return logger.New(lgcfg.LoggerCfg{Level: "error", Format: "json"})
}

type capturePatch struct {
	subject string
	data    any
}

type captureBroadcaster struct {
	patches []capturePatch
	err     error
}

func (c *captureBroadcaster) Publish(_ context.Context, subject string, data any) error {
	if c.err != nil {
		return c.err
	}
	c.patches = append(c.patches, capturePatch{subject: subject, data: data})
	return nil
}

func (c *captureBroadcaster) Health(context.Context) error { return nil }

type captureRow struct {
	eventID   string
	amountUSD string
}

type captureArchive struct {
	rows      []captureRow
	healthErr error
}

func (c *captureArchive) EnqueueRawEvent(ev *domain.Event, amountUSD string) error {
	c.rows = append(c.rows, captureRow{eventID: ev.EventID, amountUSD: amountUSD})
	return nil
}

func (c *captureArchive) Health(context.Context) error { return c.healthErr }

type fixture struct {
	svc       *IndexerService
	store     *store.MemStore
	roller    *snapshots.Roller
	broadcast *captureBroadcaster
	archive   *captureArchive
}

// tokenA: 18 decimals @ 2 USD (feed), tokenB: 6 decimals stable @ 1 USD.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureWithStore(t, store.NewMemStore())
}

func newFixtureWithStore(t *testing.T, st *store.MemStore) *fixture {
	t.Helper()

	log := newTestLogger()

	sim := chain.NewSimBackend()
	sim.RegisterToken(tokenA, chain.SimToken{Name: "Alpha", Symbol: "ALPHA", Decimals: 18})
	sim.RegisterToken(tokenB, chain.SimToken{Name: "USD Coin", Symbol: "USDC", Decimals: 6})
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
	roller := snapshots.NewRoller(log, st, nil, true, true)

	deps := &handlers.Deps{
		Log:       log,
		Store:     st,
		Caller:    sim,
		Tokens:    tokens,
		Protocol:  pm,
		Pools:     protocol.NewPoolManager(log, st, tokens, pm, 0.5),
		Accounts:  accounts,
		Positions: protocol.NewPositionManager(log, st, accounts),
		Roller:    roller,
	}

	broadcast := &captureBroadcaster{}
	archive := &captureArchive{}
	deduper := dedupe.NewInMemoryDedupe(log, time.Hour, 0)

	svc := NewIndexerService(log, st, handlers.NewRegistry(log), deps, roller, deduper, broadcast, archive)

	return &fixture{svc: svc, store: st, roller: roller, broadcast: broadcast, archive: archive}
}

func units(n int64, decimals int64) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(decimals), nil)
	return new(big.Int).Mul(big.NewInt(n), scale)
}

func poolCreatedEvent(block uint64, logIndex uint32) *domain.Event {
	return &domain.Event{
		Kind:           domain.EventPoolCreated,
		Block:          block,
		LogIndex:       logIndex,
		TxHash:         "0xabc",
		Timestamp:      baseTime,
		Pool:           poolX,
		PoolName:       "Alpha/USDC",
		PoolSymbol:     "ALPHA-USDC",
		InputTokens:    []common.Address{tokenA, tokenB},
		FeeBasisPoints: 30,
	}
}

func depositEvent(block uint64, logIndex uint32) *domain.Event {
	return &domain.Event{
		Kind:      domain.EventDeposit,
		Block:     block,
		LogIndex:  logIndex,
		TxHash:    "0xdef",
		Timestamp: baseTime,
		Pool:      poolX,
		Account:   alice,
		Token:     tokenB,
		Amount:    units(100, 6),
	}
}

func TestProcessEvent_FullPipeline(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ProcessEvent(ctx, poolCreatedEvent(10, 0)))
	require.NoError(t, f.svc.ProcessEvent(ctx, depositEvent(11, 0)))

	// two patches per event: pool then protocol
	require.Len(t, f.broadcast.patches, 4)
	assert.Equal(t, "pool:"+domain.Addr(poolX), f.broadcast.patches[0].subject)
	assert.Equal(t, "protocol:acme-swap", f.broadcast.patches[1].subject)

	require.Len(t, f.archive.rows, 2)
	assert.Equal(t, "", f.archive.rows[0].amountUSD)
	assert.Equal(t, "100", f.archive.rows[1].amountUSD)

	p, err := f.svc.PoolByAddress(ctx, poolX.Hex())
	require.NoError(t, err)
	assert.True(t, p.TotalValueLockedUSD.Equal(decimal.NewFromInt(100)))
}

func TestProcessEvent_DuplicateDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ProcessEvent(ctx, poolCreatedEvent(10, 0)))
	require.NoError(t, f.svc.ProcessEvent(ctx, depositEvent(11, 0)))
	require.NoError(t, f.svc.ProcessEvent(ctx, depositEvent(11, 0)))

	acc, err := f.svc.AccountByAddress(ctx, alice.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acc.DepositCount)
	assert.Len(t, f.archive.rows, 2)
}

func TestProcessEvent_OutOfOrderDropped(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ProcessEvent(ctx, poolCreatedEvent(10, 0)))
	require.NoError(t, f.svc.ProcessEvent(ctx, depositEvent(12, 0)))

	// same tx replayed at an earlier block must not mutate anything
	late := depositEvent(11, 5)
	require.NoError(t, f.svc.ProcessEvent(ctx, late))

	acc, err := f.svc.AccountByAddress(ctx, alice.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acc.DepositCount)
}

func TestProcessEvent_SameBlockLogIndexOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ProcessEvent(ctx, poolCreatedEvent(10, 3)))

	// lower log index in the same block is behind the cursor
	require.NoError(t, f.svc.ProcessEvent(ctx, depositEvent(10, 2)))
	_, err := f.svc.AccountByAddress(ctx, alice.Hex())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.svc.ProcessEvent(ctx, depositEvent(10, 4)))
	_, err = f.svc.AccountByAddress(ctx, alice.Hex())
	assert.NoError(t, err)
}

func TestReadQueries_NotFound(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ProtocolStats(ctx)
	assert.ErrorIs(t, err, ErrProtocolNotSeeded)

	_, err = f.svc.PoolByAddress(ctx, poolX.Hex())
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = f.svc.TokenByAddress(ctx, tokenA.Hex())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWarmState_RoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.ProcessEvent(ctx, poolCreatedEvent(10, 0)))
	require.NoError(t, f.svc.ProcessEvent(ctx, depositEvent(11, 0)))

	st := f.svc.ExportWarmState()
	assert.Equal(t, uint64(11), st.LastBlock)

	restored := newFixtureWithStore(t, store.RestoreMemStore(st.Store))
	restored.svc.RestoreWarmState(st)

	// working set survives the restart
	p, err := restored.svc.PoolByAddress(ctx, poolX.Hex())
	require.NoError(t, err)
	assert.True(t, p.TotalValueLockedUSD.Equal(decimal.NewFromInt(100)))

	// cursor survives too: the already-applied deposit is dropped
	require.NoError(t, restored.svc.ProcessEvent(ctx, depositEvent(11, 0)))
	acc, err := restored.svc.AccountByAddress(ctx, alice.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(1), acc.DepositCount)

	// but a genuinely new event is applied
	require.NoError(t, restored.svc.ProcessEvent(ctx, depositEvent(12, 0)))
	acc, err = restored.svc.AccountByAddress(ctx, alice.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), acc.DepositCount)
}

func TestCheckDependency(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	assert.NoError(t, f.svc.CheckDependency(context.Background()))

	f.archive.healthErr = errors.New("connection refused")
	err := f.svc.CheckDependency(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ClickHouse")
}
