package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type EventKind string

const (
	EventPoolCreated EventKind = "pool_created"
	EventDeposit     EventKind = "deposit"
	EventWithdraw    EventKind = "withdraw"
	EventSwap        EventKind = "swap"
	EventSync        EventKind = "sync"
	EventBorrow      EventKind = "borrow"
	EventRepay       EventKind = "repay"
	EventLiquidation EventKind = "liquidation"
)

// Event is one decoded contract log, delivered in blockchain order
// (increasing block number, then log index). Fields beyond the common header
// are set per kind; unused ones stay zero.
type Event struct {
	Kind      EventKind `json:"kind"`
	Block     uint64    `json:"block"`
	Timestamp time.Time `json:"timestamp"` // block timestamp, UTC
	TxHash    string    `json:"tx_hash"`   // 0x-prefixed 66 chars
	LogIndex  uint32    `json:"log_index"`
	EventID   string    `json:"event_id"` // block:tx_hash:log_index(canon)

	Pool    common.Address `json:"pool"`
	Account common.Address `json:"account"`

	// deposit / withdraw / borrow / repay
	Token  common.Address `json:"token,omitempty"`
	Amount *big.Int       `json:"amount,omitempty"`

	// swap
	TokenIn   common.Address `json:"token_in,omitempty"`
	TokenOut  common.Address `json:"token_out,omitempty"`
	AmountIn  *big.Int       `json:"amount_in,omitempty"`
	AmountOut *big.Int       `json:"amount_out,omitempty"`

	// sync: full balance refresh, aligned with the pool's input tokens
	Balances []*big.Int `json:"balances,omitempty"`

	// pool_created
	PoolName       string           `json:"pool_name,omitempty"`
	PoolSymbol     string           `json:"pool_symbol,omitempty"`
	InputTokens    []common.Address `json:"input_tokens,omitempty"`
	OutputToken    common.Address   `json:"output_token,omitempty"`
	FeeBasisPoints int64            `json:"fee_basis_points,omitempty"`

	// liquidation
	Liquidator common.Address `json:"liquidator,omitempty"`

	SchemaVer uint16 `json:"schema_version"`
}
