package pricing

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"subgraphx/internal/chain"
)

// Source is one price-discovery strategy. Quote returns the USD price of one
// whole token unit at the given block, or a reverted result when the source
// cannot price it. Degenerate (zero/negative) quotes are treated as misses by
// the resolver, not by sources.
type Source interface {
	Name() string
	Quote(ctx context.Context, token common.Address, decimals uint8, block uint64) chain.CallResult[decimal.Decimal]
}
