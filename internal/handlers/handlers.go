package handlers

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/chain"
	"subgraphx/internal/domain"
	"subgraphx/internal/protocol"
	"subgraphx/internal/registry"
	"subgraphx/internal/snapshots"
	"subgraphx/internal/store"
	"subgraphx/pkg/numeric"
)

// Deps bundles the managers a handler works through. Handlers are state-free;
// everything they touch lives in the entity store.
type Deps struct {
	Log       logger.Logger
	Store     store.EntityStore
	Caller    chain.Caller
	Tokens    *registry.TokenRegistry
	Protocol  *protocol.ProtocolManager
	Pools     *protocol.PoolManager
	Accounts  *protocol.AccountManager
	Positions *protocol.PositionManager
	Roller    *snapshots.Roller
}

// HandlerFunc applies one decoded event. Failures inside a handler never
// surface as errors: reverted reads substitute defaults, missing entities
// log and skip. The returned patches fan out to subscribers.
type HandlerFunc func(ctx context.Context, d *Deps, ev *domain.Event) []domain.EntityPatch

// Registry maps event kinds to their handlers.
type Registry struct {
	log logger.Logger
	m   map[domain.EventKind]HandlerFunc
}

func NewRegistry(log logger.Logger) *Registry {
	r := &Registry{log: log, m: make(map[domain.EventKind]HandlerFunc, 8)}

	r.Register(domain.EventPoolCreated, HandlePoolCreated)
	r.Register(domain.EventDeposit, HandleDeposit)
	r.Register(domain.EventWithdraw, HandleWithdraw)
	r.Register(domain.EventSwap, HandleSwap)
	r.Register(domain.EventSync, HandleSync)
	r.Register(domain.EventBorrow, HandleBorrow)
	r.Register(domain.EventRepay, HandleRepay)
	r.Register(domain.EventLiquidation, HandleLiquidation)

	return r
}

func (r *Registry) Register(kind domain.EventKind, fn HandlerFunc) {
	r.m[kind] = fn
}

// Dispatch routes the event to its handler. Unknown kinds log and skip.
func (r *Registry) Dispatch(ctx context.Context, d *Deps, ev *domain.Event) []domain.EntityPatch {
	fn, ok := r.m[ev.Kind]
	if !ok {
		r.log.Warnf("No handler registered for event kind %q, skipping %s", ev.Kind, ev.EventID)
		return nil
	}
	return fn(ctx, d, ev)
}

// requirePool resolves a pool that an earlier creation event should have
// initialized. A miss is a data-consistency warning, not a fatal condition.
func requirePool(d *Deps, ev *domain.Event) (*domain.Pool, bool) {
	p, ok := d.Store.Pool(domain.Addr(ev.Pool))
	if !ok || !p.Initialized {
		d.Log.Warnf("Pool %s not initialized at event %s (%s), skipping", domain.Addr(ev.Pool), ev.EventID, ev.Kind)
		return nil, false
	}
	return p, true
}

// roll refreshes snapshots for the touched pool and the protocol, then builds
// the fan-out patches from the post-event state.
func roll(d *Deps, poolID string, block uint64, ts time.Time) []domain.EntityPatch {
	var patches []domain.EntityPatch

	if poolID != "" {
		if p, ok := d.Store.Pool(poolID); ok {
			d.Roller.RollPool(p, block, ts)
			patches = append(patches, domain.EntityPatch{
				Topic:               "pool:" + p.ID,
				Kind:                "pool",
				ID:                  p.ID,
				GeneratedAt:         ts,
				TotalValueLockedUSD: p.TotalValueLockedUSD,
				CumulativeVolumeUSD: p.CumulativeVolumeUSD,
			})
		}
	}

	if prot, ok := d.Store.Protocol(); ok {
		d.Roller.RollProtocol(prot, block, ts)
		patches = append(patches, domain.EntityPatch{
			Topic:               "protocol:" + prot.Slug,
			Kind:                "protocol",
			ID:                  prot.ID,
			GeneratedAt:         ts,
			TotalValueLockedUSD: prot.TotalValueLockedUSD,
			CumulativeVolumeUSD: prot.CumulativeVolumeUSD,
		})
	}

	return patches
}

func HandlePoolCreated(ctx context.Context, d *Deps, ev *domain.Event) []domain.EntityPatch {
	p := d.Pools.Initialize(ctx, ev.Pool, ev.PoolName, ev.PoolSymbol,
		ev.InputTokens, ev.OutputToken, ev.FeeBasisPoints, ev.Block, ev.Timestamp)
	return roll(d, p.ID, ev.Block, ev.Timestamp)
}

func HandleDeposit(ctx context.Context, d *Deps, ev *domain.Event) []domain.EntityPatch {
	p, ok := requirePool(d, ev)
	if !ok {
		return nil
	}

	d.Accounts.CountAction(ev.Account, domain.EventDeposit, ev.Block, ev.Timestamp)
	d.Accounts.TrackActivity(ev.Account, domain.EventDeposit, ev.Timestamp)

	d.Pools.AddTokenBalance(ctx, ev.Pool, ev.Token, ev.Amount, ev.Block, ev.Timestamp)
	d.Positions.Adjust(ev.Account, ev.Pool, domain.SideLender, ev.Amount, domain.EventDeposit, ev.Block, ev.Timestamp)

	return roll(d, p.ID, ev.Block, ev.Timestamp)
}

func HandleWithdraw(ctx context.Context, d *Deps, ev *domain.Event) []domain.EntityPatch {
	p, ok := requirePool(d, ev)
	if !ok {
		return nil
	}

	d.Accounts.CountAction(ev.Account, domain.EventWithdraw, ev.Block, ev.Timestamp)
	d.Accounts.TrackActivity(ev.Account, domain.EventWithdraw, ev.Timestamp)

	neg := new(big.Int).Neg(ev.Amount)
	d.Pools.AddTokenBalance(ctx, ev.Pool, ev.Token, neg, ev.Block, ev.Timestamp)
	d.Positions.Adjust(ev.Account, ev.Pool, domain.SideLender, neg, domain.EventWithdraw, ev.Block, ev.Timestamp)

	return roll(d, p.ID, ev.Block, ev.Timestamp)
}

func HandleSwap(ctx context.Context, d *Deps, ev *domain.Event) []domain.EntityPatch {
	p, ok := requirePool(d, ev)
	if !ok {
		return nil
	}

	d.Accounts.CountAction(ev.Account, domain.EventSwap, ev.Block, ev.Timestamp)
	d.Accounts.TrackActivity(ev.Account, domain.EventSwap, ev.Timestamp)

	d.Pools.AddTokenBalance(ctx, ev.Pool, ev.TokenIn, ev.AmountIn, ev.Block, ev.Timestamp)
	d.Pools.AddTokenBalance(ctx, ev.Pool, ev.TokenOut, new(big.Int).Neg(ev.AmountOut), ev.Block, ev.Timestamp)

	// volume is the USD value of the inbound leg
	tokIn := d.Tokens.RefreshPrice(ctx, ev.TokenIn, ev.Block)
	volume := numeric.ToDecimal(ev.AmountIn, tokIn.Decimals).Mul(tokIn.PriceUSD)
	d.Pools.AddVolumeUSD(ev.Pool, volume, ev.Block, ev.Timestamp)

	// fee is carved out of the inbound amount per the pool's fee parameter
	if p.FeeBasisPoints > 0 {
		fee := new(big.Int).Mul(ev.AmountIn, big.NewInt(p.FeeBasisPoints))
		fee.Div(fee, big.NewInt(10_000))
		d.Pools.AddRevenueNative(ctx, ev.Pool, ev.TokenIn, fee, ev.Block, ev.Timestamp)
	}

	return roll(d, p.ID, ev.Block, ev.Timestamp)
}

// HandleSync replaces the pool's balances wholesale and refreshes the output
// token supply when the pool has one.
func HandleSync(ctx context.Context, d *Deps, ev *domain.Event) []domain.EntityPatch {
	p, ok := requirePool(d, ev)
	if !ok {
		return nil
	}

	d.Pools.SetInputTokenBalances(ctx, ev.Pool, ev.Balances, ev.Block, ev.Timestamp)

	// the output token lives on the pool; sync events carry no token addresses
	if p.OutputToken != "" {
		if res := d.Caller.OutputTokenSupply(ctx, common.HexToAddress(p.OutputToken), ev.Block); !res.Reverted {
			d.Pools.SetOutputTokenSupply(ev.Pool, res.Value)
		}
	}

	return roll(d, p.ID, ev.Block, ev.Timestamp)
}

func HandleBorrow(ctx context.Context, d *Deps, ev *domain.Event) []domain.EntityPatch {
	p, ok := requirePool(d, ev)
	if !ok {
		return nil
	}

	d.Accounts.CountAction(ev.Account, domain.EventBorrow, ev.Block, ev.Timestamp)
	d.Accounts.TrackActivity(ev.Account, domain.EventBorrow, ev.Timestamp)

	// borrowed funds leave the market's liquidity
	d.Pools.AddTokenBalance(ctx, ev.Pool, ev.Token, new(big.Int).Neg(ev.Amount), ev.Block, ev.Timestamp)
	d.Positions.Adjust(ev.Account, ev.Pool, domain.SideBorrower, ev.Amount, domain.EventBorrow, ev.Block, ev.Timestamp)

	return roll(d, p.ID, ev.Block, ev.Timestamp)
}

func HandleRepay(ctx context.Context, d *Deps, ev *domain.Event) []domain.EntityPatch {
	p, ok := requirePool(d, ev)
	if !ok {
		return nil
	}

	d.Accounts.CountAction(ev.Account, domain.EventRepay, ev.Block, ev.Timestamp)
	d.Accounts.TrackActivity(ev.Account, domain.EventRepay, ev.Timestamp)

	d.Pools.AddTokenBalance(ctx, ev.Pool, ev.Token, ev.Amount, ev.Block, ev.Timestamp)
	d.Positions.Adjust(ev.Account, ev.Pool, domain.SideBorrower, new(big.Int).Neg(ev.Amount), domain.EventRepay, ev.Block, ev.Timestamp)

	return roll(d, p.ID, ev.Block, ev.Timestamp)
}

// HandleLiquidation counts both sides and force-closes the liquidated
// account's borrower position.
func HandleLiquidation(ctx context.Context, d *Deps, ev *domain.Event) []domain.EntityPatch {
	p, ok := requirePool(d, ev)
	if !ok {
		return nil
	}

	d.Accounts.CountAction(ev.Liquidator, domain.EventLiquidation, ev.Block, ev.Timestamp)
	d.Accounts.TrackActivity(ev.Liquidator, domain.EventLiquidation, ev.Timestamp)
	d.Accounts.CountLiquidated(ev.Account, ev.Block, ev.Timestamp)

	if pos, open := d.Positions.LoadOpen(ev.Account, ev.Pool, domain.SideBorrower); open {
		d.Positions.Adjust(ev.Account, ev.Pool, domain.SideBorrower,
			new(big.Int).Neg(pos.Balance), domain.EventLiquidation, ev.Block, ev.Timestamp)
	}

	if ev.Amount != nil && ev.Amount.Sign() > 0 {
		d.Pools.AddTokenBalance(ctx, ev.Pool, ev.Token, ev.Amount, ev.Block, ev.Timestamp)
	}

	return roll(d, p.ID, ev.Block, ev.Timestamp)
}
