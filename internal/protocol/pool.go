package protocol

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/domain"
	"subgraphx/internal/registry"
	"subgraphx/internal/store"
	"subgraphx/pkg/numeric"
)

// PoolManager keeps pool balances, revenue and TVL consistent. Every
// balance-mutating method reprices the input tokens, recomputes TVL as the
// sum of the USD balances and pushes the TVL delta up to the protocol.
// All mutations persist immediately.
type PoolManager struct {
	log      logger.Logger
	store    store.EntityStore
	tokens   *registry.TokenRegistry
	protocol *ProtocolManager

	// supply-side fraction of every fee, 0..1
	supplyShare decimal.Decimal
}

func NewPoolManager(log logger.Logger, st store.EntityStore, tokens *registry.TokenRegistry, pm *ProtocolManager, supplyShare float64) *PoolManager {
	return &PoolManager{
		log:         log,
		store:       st,
		tokens:      tokens,
		protocol:    pm,
		supplyShare: decimal.NewFromFloat(supplyShare),
	}
}

// Load returns the pool, creating an uninitialized shell on miss. Callers
// must Initialize before mutating balances.
func (m *PoolManager) Load(addr common.Address) *domain.Pool {
	id := domain.Addr(addr)
	if p, ok := m.store.Pool(id); ok {
		return p
	}

	p := &domain.Pool{ID: id}
	m.store.PutPool(p)

	return p
}

// Initialize fills in the static pool fields exactly once. A second call is a
// silent no-op, so replayed creation events cannot double-count.
func (m *PoolManager) Initialize(ctx context.Context, addr common.Address, name, symbol string, inputTokens []common.Address, outputToken common.Address, feeBPS int64, block uint64, ts time.Time) *domain.Pool {
	p := m.Load(addr)
	if p.Initialized {
		return p
	}

	p.Name = name
	p.Symbol = symbol
	p.FeeBasisPoints = feeBPS
	p.CreatedBlock = block
	p.CreatedAt = ts

	p.InputTokens = make([]string, len(inputTokens))
	p.InputTokenBalances = make([]*big.Int, len(inputTokens))
	p.InputTokenBalancesUSD = make([]decimal.Decimal, len(inputTokens))
	for i, tok := range inputTokens {
		m.tokens.GetOrCreate(ctx, tok, block)
		p.InputTokens[i] = domain.Addr(tok)
		p.InputTokenBalances[i] = new(big.Int)
	}

	if outputToken != (common.Address{}) {
		m.tokens.GetOrCreate(ctx, outputToken, block)
		p.OutputToken = domain.Addr(outputToken)
		p.OutputTokenSupply = new(big.Int)
	}

	p.Initialized = true
	m.store.PutPool(p)
	m.protocol.CountNewPool(block, ts)
	m.log.Infof("Initialized pool %s (%s) with %d input tokens", p.ID, p.Symbol, len(p.InputTokens))

	return p
}

// SetInputTokenBalances replaces the raw balances positionally, then reprices.
func (m *PoolManager) SetInputTokenBalances(ctx context.Context, addr common.Address, balances []*big.Int, block uint64, ts time.Time) *domain.Pool {
	p := m.Load(addr)
	if len(balances) != len(p.InputTokens) {
		m.log.Warnf("Pool %s: balance refresh has %d entries, pool has %d input tokens, skipping", p.ID, len(balances), len(p.InputTokens))
		return p
	}

	for i, b := range balances {
		p.InputTokenBalances[i] = new(big.Int).Set(b)
	}

	m.reprice(ctx, p, block, ts)
	return p
}

// AddInputTokenBalances applies signed deltas positionally, then reprices.
func (m *PoolManager) AddInputTokenBalances(ctx context.Context, addr common.Address, deltas []*big.Int, block uint64, ts time.Time) *domain.Pool {
	p := m.Load(addr)
	if len(deltas) != len(p.InputTokens) {
		m.log.Warnf("Pool %s: balance delta has %d entries, pool has %d input tokens, skipping", p.ID, len(deltas), len(p.InputTokens))
		return p
	}

	for i, d := range deltas {
		if d == nil || d.Sign() == 0 {
			continue
		}
		p.InputTokenBalances[i] = new(big.Int).Add(p.InputTokenBalances[i], d)
	}

	m.reprice(ctx, p, block, ts)
	return p
}

// AddTokenBalance shifts a single input token's balance by delta. Tokens not
// in the pool's input set are ignored with a warning.
func (m *PoolManager) AddTokenBalance(ctx context.Context, addr, token common.Address, delta *big.Int, block uint64, ts time.Time) *domain.Pool {
	p := m.Load(addr)
	tokenID := domain.Addr(token)

	for i, t := range p.InputTokens {
		if t == tokenID {
			p.InputTokenBalances[i] = new(big.Int).Add(p.InputTokenBalances[i], delta)
			m.reprice(ctx, p, block, ts)
			return p
		}
	}

	m.log.Warnf("Pool %s: token %s is not an input token, ignoring balance delta", p.ID, tokenID)
	return p
}

func (m *PoolManager) SetOutputTokenSupply(addr common.Address, supply *big.Int) *domain.Pool {
	p := m.Load(addr)
	p.OutputTokenSupply = new(big.Int).Set(supply)
	m.store.PutPool(p)
	return p
}

func (m *PoolManager) AddVolumeUSD(addr common.Address, amount decimal.Decimal, block uint64, ts time.Time) {
	p := m.Load(addr)
	p.CumulativeVolumeUSD = p.CumulativeVolumeUSD.Add(amount)
	m.store.PutPool(p)
	m.protocol.AddVolumeUSD(amount, block, ts)
}

// AddRevenueNative prices a raw fee amount and splits it supply-side vs
// protocol-side before accumulating on both the pool and the protocol.
func (m *PoolManager) AddRevenueNative(ctx context.Context, addr, token common.Address, raw *big.Int, block uint64, ts time.Time) {
	tok := m.tokens.GetOrCreate(ctx, token, block)
	usd := m.tokens.RefreshPrice(ctx, token, block).PriceUSD.Mul(numeric.ToDecimal(raw, tok.Decimals))

	supplySide := usd.Mul(m.supplyShare)
	protocolSide := usd.Sub(supplySide)
	m.AddRevenueUSD(addr, supplySide, protocolSide, block, ts)
}

func (m *PoolManager) AddRevenueUSD(addr common.Address, supplySide, protocolSide decimal.Decimal, block uint64, ts time.Time) {
	p := m.Load(addr)
	p.CumulativeSupplyRevenueUSD = p.CumulativeSupplyRevenueUSD.Add(supplySide)
	p.CumulativeProtocolRevenueUSD = p.CumulativeProtocolRevenueUSD.Add(protocolSide)
	p.CumulativeTotalRevenueUSD = p.CumulativeTotalRevenueUSD.Add(supplySide).Add(protocolSide)
	m.store.PutPool(p)
	m.protocol.AddRevenueUSD(supplySide, protocolSide, block, ts)
}

// reprice refreshes every input token's price, recomputes the USD balances and
// TVL, persists the pool and propagates the TVL delta to the protocol.
func (m *PoolManager) reprice(ctx context.Context, p *domain.Pool, block uint64, ts time.Time) {
	prevTVL := p.TotalValueLockedUSD

	tvl := decimal.Zero
	for i, tokenID := range p.InputTokens {
		tok := m.tokens.RefreshPrice(ctx, common.HexToAddress(tokenID), block)
		p.InputTokenBalancesUSD[i] = numeric.ToDecimal(p.InputTokenBalances[i], tok.Decimals).Mul(tok.PriceUSD)
		tvl = tvl.Add(p.InputTokenBalancesUSD[i])
	}

	p.TotalValueLockedUSD = tvl
	m.store.PutPool(p)
	m.protocol.AddTVLDelta(tvl.Sub(prevTVL), block, ts)
}
