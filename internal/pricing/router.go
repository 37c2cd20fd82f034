package pricing

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"subgraphx/internal/chain"
	"subgraphx/pkg/numeric"
)

// RouterSource prices a token by quoting one whole unit along
// token -> hub -> stable on a DEX router and deducting the swap fee per hop,
// approximating the realizable price rather than the mid quote.
type RouterSource struct {
	caller chain.Caller

	router         common.Address
	hub            common.Address
	stable         common.Address
	stableDecimals uint8
	hopFee         decimal.Decimal // e.g. 0.003 per hop
}

func NewRouterSource(caller chain.Caller, router, hub, stable common.Address, stableDecimals uint8, hopFeeBPS int64) *RouterSource {
	if hopFeeBPS <= 0 {
		hopFeeBPS = 30
	}
	return &RouterSource{
		caller:         caller,
		router:         router,
		hub:            hub,
		stable:         stable,
		stableDecimals: stableDecimals,
		hopFee:         numeric.BasisPoints(hopFeeBPS),
	}
}

func (r *RouterSource) Name() string { return "router" }

func (r *RouterSource) Quote(ctx context.Context, token common.Address, decimals uint8, block uint64) chain.CallResult[decimal.Decimal] {
	path := r.pathFor(token)

	amountIn := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	res := r.caller.RouterAmountsOut(ctx, r.router, amountIn, path, block)
	if res.Reverted {
		return chain.Reverted[decimal.Decimal]()
	}

	out := numeric.ToDecimal(res.Value, r.stableDecimals)

	// fee deduction per executed hop
	keep := decimal.NewFromInt(1).Sub(r.hopFee)
	for i := 0; i+1 < len(path); i++ {
		out = out.Mul(keep)
	}

	return chain.Ok(out)
}

func (r *RouterSource) pathFor(token common.Address) []common.Address {
	if token == r.hub {
		return []common.Address{r.hub, r.stable}
	}
	if token == r.stable {
		return []common.Address{r.stable, r.hub, r.stable} // degenerate, stable source should catch first
	}
	return []common.Address{token, r.hub, r.stable}
}
