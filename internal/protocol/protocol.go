package protocol

import (
	"time"

	"github.com/shopspring/decimal"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/config"
	"subgraphx/internal/domain"
	"subgraphx/internal/store"
)

// ProtocolManager owns the single root entity. Children report their changes
// here; counters only accumulate, TVL is the one field that can move down.
type ProtocolManager struct {
	log   logger.Logger
	store store.EntityStore
	cfg   config.ProtocolConfig
	net   string
}

func NewProtocolManager(log logger.Logger, st store.EntityStore, cfg config.ProtocolConfig, network string) *ProtocolManager {
	return &ProtocolManager{log: log, store: st, cfg: cfg, net: network}
}

// LoadOrCreate materializes the singleton lazily on the first event.
func (m *ProtocolManager) LoadOrCreate(block uint64, ts time.Time) *domain.Protocol {
	if p, ok := m.store.Protocol(); ok {
		return p
	}

	p := &domain.Protocol{
		ID:           m.cfg.Slug,
		Name:         m.cfg.Name,
		Slug:         m.cfg.Slug,
		Version:      m.cfg.Version,
		Network:      m.net,
		CreatedBlock: block,
		CreatedAt:    ts,
	}
	m.store.PutProtocol(p)
	m.log.Infof("Created protocol %s v%s on %s", p.Slug, p.Version, p.Network)

	return p
}

func (m *ProtocolManager) AddVolumeUSD(amount decimal.Decimal, block uint64, ts time.Time) {
	p := m.LoadOrCreate(block, ts)
	p.CumulativeVolumeUSD = p.CumulativeVolumeUSD.Add(amount)
	m.store.PutProtocol(p)
}

// AddRevenueUSD accumulates an already-split fee. Total is always the sum of
// the two sides.
func (m *ProtocolManager) AddRevenueUSD(supplySide, protocolSide decimal.Decimal, block uint64, ts time.Time) {
	p := m.LoadOrCreate(block, ts)
	p.CumulativeSupplyRevenueUSD = p.CumulativeSupplyRevenueUSD.Add(supplySide)
	p.CumulativeProtocolRevenueUSD = p.CumulativeProtocolRevenueUSD.Add(protocolSide)
	p.CumulativeTotalRevenueUSD = p.CumulativeTotalRevenueUSD.Add(supplySide).Add(protocolSide)
	m.store.PutProtocol(p)
}

// AddTVLDelta shifts protocol TVL by a pool's recompute delta. May be negative.
func (m *ProtocolManager) AddTVLDelta(delta decimal.Decimal, block uint64, ts time.Time) {
	p := m.LoadOrCreate(block, ts)
	p.TotalValueLockedUSD = p.TotalValueLockedUSD.Add(delta)
	m.store.PutProtocol(p)
}

func (m *ProtocolManager) CountNewAccount(block uint64, ts time.Time) {
	p := m.LoadOrCreate(block, ts)
	p.CumulativeUniqueAccounts++
	m.store.PutProtocol(p)
}

func (m *ProtocolManager) CountNewPool(block uint64, ts time.Time) {
	p := m.LoadOrCreate(block, ts)
	p.TotalPoolCount++
	m.store.PutProtocol(p)
}

func (m *ProtocolManager) CountPositionOpened(block uint64, ts time.Time) {
	p := m.LoadOrCreate(block, ts)
	p.OpenPositionCount++
	p.CumulativePositionCount++
	m.store.PutProtocol(p)
}

func (m *ProtocolManager) CountPositionClosed(block uint64, ts time.Time) {
	p := m.LoadOrCreate(block, ts)
	if p.OpenPositionCount > 0 {
		p.OpenPositionCount--
	}
	m.store.PutProtocol(p)
}
