package pricing

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"subgraphx/internal/chain"
)

// FeedSource prices tokens through per-token oracle feed contracts. The
// token -> feed mapping comes from network config.
type FeedSource struct {
	caller chain.Caller
	feeds  map[common.Address]common.Address
}

func NewFeedSource(caller chain.Caller, feeds map[common.Address]common.Address) *FeedSource {
	return &FeedSource{caller: caller, feeds: feeds}
}

func (f *FeedSource) Name() string { return "feed" }

func (f *FeedSource) Quote(ctx context.Context, token common.Address, _ uint8, block uint64) chain.CallResult[decimal.Decimal] {
	feed, ok := f.feeds[token]
	if !ok {
		return chain.Reverted[decimal.Decimal]()
	}
	return f.caller.FeedLatestPrice(ctx, feed, block)
}
