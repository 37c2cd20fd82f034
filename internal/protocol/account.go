package protocol

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/domain"
	"subgraphx/internal/store"
)

// AccountManager creates accounts lazily and keeps the per-action counters.
// The protocol's unique-account counter moves exactly once per new account.
type AccountManager struct {
	log      logger.Logger
	store    store.EntityStore
	protocol *ProtocolManager
}

func NewAccountManager(log logger.Logger, st store.EntityStore, pm *ProtocolManager) *AccountManager {
	return &AccountManager{log: log, store: st, protocol: pm}
}

func (m *AccountManager) LoadOrCreate(addr common.Address, block uint64, ts time.Time) *domain.Account {
	id := domain.Addr(addr)
	if acc, ok := m.store.Account(id); ok {
		acc.LastSeenAt = ts
		m.store.PutAccount(acc)
		return acc
	}

	acc := &domain.Account{
		ID:             id,
		FirstSeenBlock: block,
		FirstSeenAt:    ts,
		LastSeenAt:     ts,
	}
	m.store.PutAccount(acc)
	m.protocol.CountNewAccount(block, ts)
	m.log.Debugf("Created account %s", id)

	return acc
}

// CountAction bumps the account counter matching the event kind. Liquidations
// count on the liquidator; the liquidated side uses CountLiquidated.
func (m *AccountManager) CountAction(addr common.Address, kind domain.EventKind, block uint64, ts time.Time) {
	acc := m.LoadOrCreate(addr, block, ts)

	switch kind {
	case domain.EventDeposit:
		acc.DepositCount++
	case domain.EventWithdraw:
		acc.WithdrawCount++
	case domain.EventSwap:
		acc.SwapCount++
	case domain.EventBorrow:
		acc.BorrowCount++
	case domain.EventRepay:
		acc.RepayCount++
	case domain.EventLiquidation:
		acc.LiquidationCount++
	default:
		return
	}

	m.store.PutAccount(acc)
}

func (m *AccountManager) CountLiquidated(addr common.Address, block uint64, ts time.Time) {
	acc := m.LoadOrCreate(addr, block, ts)
	acc.LiquidatedCount++
	m.store.PutAccount(acc)
}

// TrackActivity marks hourly and daily bucket membership for the account.
// Re-marking the same (bucket, account, kind) tuple is a no-op, so replayed
// activity within a bucket never inflates the active-account counts.
func (m *AccountManager) TrackActivity(addr common.Address, kind domain.EventKind, ts time.Time) {
	id := domain.Addr(addr)
	for _, g := range []domain.Granularity{domain.GranHourly, domain.GranDaily} {
		bucket := ts.Unix() / g.BucketLength()
		m.store.MarkActivity(g, bucket, id, kind)
	}
}

func (m *AccountManager) CountPositionOpened(addr common.Address, block uint64, ts time.Time) {
	acc := m.LoadOrCreate(addr, block, ts)
	acc.OpenPositionCount++
	m.store.PutAccount(acc)
	m.protocol.CountPositionOpened(block, ts)
}

func (m *AccountManager) CountPositionClosed(addr common.Address, block uint64, ts time.Time) {
	acc := m.LoadOrCreate(addr, block, ts)
	if acc.OpenPositionCount > 0 {
		acc.OpenPositionCount--
	}
	acc.ClosedPositionCount++
	m.store.PutAccount(acc)
	m.protocol.CountPositionClosed(block, ts)
}
