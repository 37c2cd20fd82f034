package protocol

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/domain"
	"subgraphx/internal/store"
)

// PositionManager drives the open-close-reopen lifecycle. At most one open
// position exists per (account, pool, side); a balance hitting exactly zero
// closes it, and the next activity on the same key opens a fresh position
// with the next sequence number.
type PositionManager struct {
	log      logger.Logger
	store    store.EntityStore
	accounts *AccountManager
}

func NewPositionManager(log logger.Logger, st store.EntityStore, accounts *AccountManager) *PositionManager {
	return &PositionManager{log: log, store: st, accounts: accounts}
}

// Adjust applies a signed balance delta to the open position for the key,
// opening one if none exists. The per-action counter matching kind is bumped.
// Returns the position after the change, already persisted. A zero delta on a
// key with no open position is a no-op and returns nil.
func (m *PositionManager) Adjust(account, pool common.Address, side domain.PositionSide, delta *big.Int, kind domain.EventKind, block uint64, ts time.Time) *domain.Position {
	accID := domain.Addr(account)
	poolID := domain.Addr(pool)

	pos, ok := m.store.OpenPosition(accID, poolID, side)
	if !ok {
		if delta == nil || delta.Sign() == 0 {
			return nil
		}
		seq := m.store.NextPositionSeq(accID, poolID, side)
		pos = &domain.Position{
			ID:          domain.MakePositionID(accID, poolID, side, seq),
			Account:     accID,
			Pool:        poolID,
			Side:        side,
			Seq:         seq,
			Balance:     new(big.Int),
			OpenedBlock: block,
			OpenedAt:    ts,
		}
		m.store.SetOpenPosition(accID, poolID, side, pos.ID)
		m.accounts.CountPositionOpened(account, block, ts)
		m.log.Debugf("Opened position %s", pos.ID)
	}

	if delta != nil {
		pos.Balance = new(big.Int).Add(pos.Balance, delta)
	}

	switch kind {
	case domain.EventDeposit:
		pos.DepositCount++
	case domain.EventWithdraw:
		pos.WithdrawCount++
	case domain.EventBorrow:
		pos.BorrowCount++
	case domain.EventRepay:
		pos.RepayCount++
	}

	if pos.Balance.Sign() == 0 {
		closedAt := ts
		pos.ClosedBlock = block
		pos.ClosedAt = &closedAt
		m.store.ClearOpenPosition(accID, poolID, side)
		m.accounts.CountPositionClosed(account, block, ts)
		m.log.Debugf("Closed position %s", pos.ID)
	}

	m.store.PutPosition(pos)
	return pos
}

// LoadOpen returns the currently open position for the key, if any.
func (m *PositionManager) LoadOpen(account, pool common.Address, side domain.PositionSide) (*domain.Position, bool) {
	return m.store.OpenPosition(domain.Addr(account), domain.Addr(pool), side)
}
