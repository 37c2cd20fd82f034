package registry

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/chain"
	"subgraphx/internal/domain"
	"subgraphx/internal/pricing"
	"subgraphx/internal/store"
)

// Defaults substituted when a token's metadata calls revert. The operation
// itself never fails.
const (
	DefaultName     = "unknown"
	DefaultSymbol   = "UNKNOWN"
	DefaultDecimals = uint8(0)
)

type TokenRegistry struct {
	log    logger.Logger
	store  store.EntityStore
	caller chain.Caller
	prices *pricing.Resolver
}

func NewTokenRegistry(log logger.Logger, st store.EntityStore, caller chain.Caller, prices *pricing.Resolver) *TokenRegistry {
	return &TokenRegistry{log: log, store: st, caller: caller, prices: prices}
}

// GetOrCreate returns the cached token or creates it from three independent
// metadata reads, each falling back to its default on revert. The new record
// is persisted before returning. Static fields are never updated afterwards.
func (r *TokenRegistry) GetOrCreate(ctx context.Context, addr common.Address, block uint64) *domain.Token {
	id := domain.Addr(addr)
	if tok, ok := r.store.Token(id); ok {
		return tok
	}

	tok := &domain.Token{
		ID:           id,
		Name:         r.caller.TokenName(ctx, addr, block).OrDefault(DefaultName),
		Symbol:       r.caller.TokenSymbol(ctx, addr, block).OrDefault(DefaultSymbol),
		Decimals:     r.caller.TokenDecimals(ctx, addr, block).OrDefault(DefaultDecimals),
		CreatedBlock: block,
	}

	r.store.PutToken(tok)
	r.log.Debugf("Created token %s (%s, %d decimals)", id, tok.Symbol, tok.Decimals)

	return tok
}

// RefreshPrice re-resolves the token's USD price, at most once per block.
// An unresolvable price keeps the previous observation.
func (r *TokenRegistry) RefreshPrice(ctx context.Context, addr common.Address, block uint64) *domain.Token {
	tok := r.GetOrCreate(ctx, addr, block)

	if tok.PriceBlock == block && block != 0 {
		return tok
	}

	res := r.prices.UsdPricePerToken(ctx, addr, tok.Decimals, block)
	if res.Reverted {
		return tok
	}

	tok.PriceUSD = res.Value
	tok.PriceBlock = block
	r.store.PutToken(tok)

	return tok
}
