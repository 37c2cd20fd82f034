package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Caller is the host-provided read-only view of chain state. Every call is a
// synchronous point-in-time read at the given block height and may revert.
type Caller interface {
	// ERC-20 metadata
	TokenName(ctx context.Context, token common.Address, block uint64) CallResult[string]
	TokenSymbol(ctx context.Context, token common.Address, block uint64) CallResult[string]
	TokenDecimals(ctx context.Context, token common.Address, block uint64) CallResult[uint8]

	// RouterAmountsOut quotes amountIn swapped along path, before any
	// per-hop fee deduction.
	RouterAmountsOut(ctx context.Context, router common.Address, amountIn *big.Int, path []common.Address, block uint64) CallResult[*big.Int]

	// FeedLatestPrice reads an oracle feed's USD answer for its token.
	FeedLatestPrice(ctx context.Context, feed common.Address, block uint64) CallResult[decimal.Decimal]

	// OutputTokenSupply reads totalSupply of a pool's share token.
	OutputTokenSupply(ctx context.Context, token common.Address, block uint64) CallResult[*big.Int]
}
