package pricing

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/chain"
	"subgraphx/pkg/numeric"
)

// Resolver walks an ordered source chain and returns the first usable quote.
// A reverting or degenerate source never short-circuits the walk; only a
// positive, non-reverted quote wins. When every source misses, the result is
// the reverted sentinel with zero price; pricing is best-effort and never an
// error.
type Resolver struct {
	log     logger.Logger
	sources []Source
}

func NewResolver(log logger.Logger, sources []Source) *Resolver {
	return &Resolver{log: log, sources: sources}
}

// UsdPricePerToken resolves the USD price of one whole token unit.
func (r *Resolver) UsdPricePerToken(ctx context.Context, token common.Address, decimals uint8, block uint64) chain.CallResult[decimal.Decimal] {
	for _, src := range r.sources {
		res := src.Quote(ctx, token, decimals, block)
		if res.Reverted {
			continue
		}
		if res.Value.Sign() <= 0 {
			r.log.Debugf("Price source %s returned degenerate quote for %s, trying next", src.Name(), token.Hex())
			continue
		}
		return res
	}

	r.log.Debugf("All price sources missed for token %s at block %d", token.Hex(), block)
	return chain.Reverted[decimal.Decimal]()
}

// UsdAmount converts a raw token amount to USD. Zero when the price is
// unresolvable.
func (r *Resolver) UsdAmount(ctx context.Context, token common.Address, raw *big.Int, decimals uint8, block uint64) decimal.Decimal {
	price := r.UsdPricePerToken(ctx, token, decimals, block)
	if price.Reverted {
		return decimal.Zero
	}
	return numeric.ToDecimal(raw, decimals).Mul(price.Value)
}
