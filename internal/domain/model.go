package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// Graph entities maintained by the indexer. All IDs are lowercased 0x-hex
// contract/account addresses unless noted otherwise.

// Protocol is the single root entity per deployment. Counters are cumulative
// and never decremented.
type Protocol struct {
	ID      string `json:"id"` // slug
	Name    string `json:"name"`
	Slug    string `json:"slug"`
	Version string `json:"version"` // semantic triple
	Network string `json:"network"`

	TotalValueLockedUSD          decimal.Decimal `json:"tvl_usd"`
	CumulativeVolumeUSD          decimal.Decimal `json:"cumulative_volume_usd"`
	CumulativeSupplyRevenueUSD   decimal.Decimal `json:"cumulative_supply_revenue_usd"`
	CumulativeProtocolRevenueUSD decimal.Decimal `json:"cumulative_protocol_revenue_usd"`
	CumulativeTotalRevenueUSD    decimal.Decimal `json:"cumulative_total_revenue_usd"`

	CumulativeUniqueAccounts uint64 `json:"cumulative_unique_accounts"`
	TotalPoolCount           uint64 `json:"total_pool_count"`
	OpenPositionCount        uint64 `json:"open_position_count"`
	CumulativePositionCount  uint64 `json:"cumulative_position_count"`

	CreatedBlock uint64    `json:"created_block"`
	CreatedAt    time.Time `json:"created_at"`
}

// Token metadata is fixed at creation; only the price fields move, at most
// once per block (PriceBlock guard).
type Token struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Symbol   string `json:"symbol"`
	Decimals uint8  `json:"decimals"`

	PriceUSD   decimal.Decimal `json:"price_usd"`
	PriceBlock uint64          `json:"price_block"`

	CreatedBlock uint64 `json:"created_block"`
}

// Pool is a liquidity pool or lending market. InputTokenBalances and
// InputTokenBalancesUSD are positionally aligned with InputTokens, and
// TotalValueLockedUSD is always the sum of InputTokenBalancesUSD.
type Pool struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Symbol string `json:"symbol"`

	Initialized bool `json:"initialized"`

	InputTokens           []string          `json:"input_tokens"`
	InputTokenBalances    []*big.Int        `json:"input_token_balances"`
	InputTokenBalancesUSD []decimal.Decimal `json:"input_token_balances_usd"`

	OutputToken       string   `json:"output_token,omitempty"`
	OutputTokenSupply *big.Int `json:"output_token_supply,omitempty"`

	FeeBasisPoints int64 `json:"fee_basis_points"`

	TotalValueLockedUSD          decimal.Decimal `json:"tvl_usd"`
	CumulativeVolumeUSD          decimal.Decimal `json:"cumulative_volume_usd"`
	CumulativeSupplyRevenueUSD   decimal.Decimal `json:"cumulative_supply_revenue_usd"`
	CumulativeProtocolRevenueUSD decimal.Decimal `json:"cumulative_protocol_revenue_usd"`
	CumulativeTotalRevenueUSD    decimal.Decimal `json:"cumulative_total_revenue_usd"`

	CreatedBlock uint64    `json:"created_block"`
	CreatedAt    time.Time `json:"created_at"`
}

// Account is one external actor. Created lazily on first interaction.
type Account struct {
	ID string `json:"id"`

	DepositCount     uint64 `json:"deposit_count"`
	WithdrawCount    uint64 `json:"withdraw_count"`
	SwapCount        uint64 `json:"swap_count"`
	BorrowCount      uint64 `json:"borrow_count"`
	RepayCount       uint64 `json:"repay_count"`
	LiquidationCount uint64 `json:"liquidation_count"`
	LiquidatedCount  uint64 `json:"liquidated_count"`

	OpenPositionCount   uint64 `json:"open_position_count"`
	ClosedPositionCount uint64 `json:"closed_position_count"`

	FirstSeenBlock uint64    `json:"first_seen_block"`
	FirstSeenAt    time.Time `json:"first_seen_at"`
	LastSeenAt     time.Time `json:"last_seen_at"`
}

type PositionSide string

const (
	SideLender     PositionSide = "LENDER"
	SideBorrower   PositionSide = "BORROWER"
	SideCollateral PositionSide = "COLLATERAL"
)

// Position tracks one (account, pool, side) exposure. Balance hitting exactly
// zero closes it; the next activity opens a fresh one with Seq+1.
type Position struct {
	ID      string       `json:"id"` // account-pool-side-seq
	Account string       `json:"account"`
	Pool    string       `json:"pool"`
	Side    PositionSide `json:"side"`
	Seq     uint64       `json:"seq"`

	Balance *big.Int `json:"balance"`

	DepositCount  uint64 `json:"deposit_count"`
	WithdrawCount uint64 `json:"withdraw_count"`
	BorrowCount   uint64 `json:"borrow_count"`
	RepayCount    uint64 `json:"repay_count"`

	OpenedBlock uint64     `json:"opened_block"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedBlock uint64     `json:"closed_block,omitempty"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
}

func (p *Position) Open() bool { return p.ClosedAt == nil }

type Granularity string

const (
	GranHourly Granularity = "hourly"
	GranDaily  Granularity = "daily"
)

// BucketLength in seconds.
func (g Granularity) BucketLength() int64 {
	if g == GranDaily {
		return 86400
	}
	return 3600
}

// ProtocolSnapshot is an immutable time-bucketed copy of the protocol
// counters plus this-period deltas vs the previous snapshot.
type ProtocolSnapshot struct {
	Protocol    string      `json:"protocol"`
	Granularity Granularity `json:"granularity"`
	Bucket      int64       `json:"bucket"` // floor(unix ts / bucketLength)
	BucketStart time.Time   `json:"bucket_start"`
	Block       uint64      `json:"block"`

	TotalValueLockedUSD       decimal.Decimal `json:"tvl_usd"`
	CumulativeVolumeUSD       decimal.Decimal `json:"cumulative_volume_usd"`
	CumulativeTotalRevenueUSD decimal.Decimal `json:"cumulative_total_revenue_usd"`
	CumulativeUniqueAccounts  uint64          `json:"cumulative_unique_accounts"`

	PeriodVolumeUSD       decimal.Decimal `json:"period_volume_usd"`
	PeriodTotalRevenueUSD decimal.Decimal `json:"period_total_revenue_usd"`
	PeriodNewAccounts     uint64          `json:"period_new_accounts"`
	PeriodActiveAccounts  uint64          `json:"period_active_accounts"`

	TakenAt time.Time `json:"taken_at"`
}

// PoolSnapshot mirrors ProtocolSnapshot per pool.
type PoolSnapshot struct {
	Pool        string      `json:"pool"`
	Granularity Granularity `json:"granularity"`
	Bucket      int64       `json:"bucket"`
	BucketStart time.Time   `json:"bucket_start"`
	Block       uint64      `json:"block"`

	TotalValueLockedUSD       decimal.Decimal `json:"tvl_usd"`
	CumulativeVolumeUSD       decimal.Decimal `json:"cumulative_volume_usd"`
	CumulativeTotalRevenueUSD decimal.Decimal `json:"cumulative_total_revenue_usd"`

	PeriodVolumeUSD       decimal.Decimal `json:"period_volume_usd"`
	PeriodTotalRevenueUSD decimal.Decimal `json:"period_total_revenue_usd"`

	TakenAt time.Time `json:"taken_at"`
}

// EntityPatch is the fan-out unit for NATS/WS subscribers. Only the counters
// relevant to the touched entity are set.
type EntityPatch struct {
	Topic       string    `json:"topic"` // "pool:<addr>" or "protocol:<slug>"
	Kind        string    `json:"kind"`  // pool|protocol
	ID          string    `json:"id"`
	GeneratedAt time.Time `json:"ts"`

	TotalValueLockedUSD decimal.Decimal `json:"tvl_usd"`
	CumulativeVolumeUSD decimal.Decimal `json:"cumulative_volume_usd"`
}
