package store

import (
	"math/big"
	"sync"

	"github.com/shopspring/decimal"

	"subgraphx/internal/domain"
)

type posKey struct {
	account string
	pool    string
	side    domain.PositionSide
}

// MemStore is the live working set. The host platform the original delegated
// storage to is a plain keyed upsert surface, so a mutex-guarded map is the
// whole implementation; durability comes from the gob warm-start snapshot and
// the ClickHouse history tables.
type MemStore struct {
	mu sync.RWMutex

	protocol  *domain.Protocol
	tokens    map[string]*domain.Token
	pools     map[string]*domain.Pool
	accounts  map[string]*domain.Account
	positions map[string]*domain.Position

	openPositions map[posKey]string
	positionSeq   map[posKey]uint64

	// activity markers, keyed "<gran>:<bucket>:<account>:<kind>"
	activity map[string]struct{}
	// distinct accounts per "<gran>:<bucket>"
	activeAccounts map[string]map[string]struct{}
}

func NewMemStore() *MemStore {
	return &MemStore{
		tokens:         make(map[string]*domain.Token, 256),
		pools:          make(map[string]*domain.Pool, 64),
		accounts:       make(map[string]*domain.Account, 1024),
		positions:      make(map[string]*domain.Position, 1024),
		openPositions:  make(map[posKey]string, 1024),
		positionSeq:    make(map[posKey]uint64, 1024),
		activity:       make(map[string]struct{}, 4096),
		activeAccounts: make(map[string]map[string]struct{}, 64),
	}
}

func (m *MemStore) Protocol() (*domain.Protocol, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.protocol == nil {
		return nil, false
	}
	cp := *m.protocol
	return &cp, true
}

func (m *MemStore) PutProtocol(p *domain.Protocol) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *p
	m.protocol = &cp
}

func (m *MemStore) Token(id string) (*domain.Token, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tokens[id]
	if !ok {
		return nil, false
	}
	cp := *t
	return &cp, true
}

func (m *MemStore) PutToken(t *domain.Token) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *t
	m.tokens[t.ID] = &cp
}

func (m *MemStore) Tokens() []*domain.Token {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Token, 0, len(m.tokens))
	for _, t := range m.tokens {
		cp := *t
		out = append(out, &cp)
	}
	return out
}

func (m *MemStore) Pool(id string) (*domain.Pool, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.pools[id]
	if !ok {
		return nil, false
	}
	return copyPool(p), true
}

func (m *MemStore) PutPool(p *domain.Pool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pools[p.ID] = copyPool(p)
}

func (m *MemStore) Pools() []*domain.Pool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]*domain.Pool, 0, len(m.pools))
	for _, p := range m.pools {
		out = append(out, copyPool(p))
	}
	return out
}

func (m *MemStore) Account(id string) (*domain.Account, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	a, ok := m.accounts[id]
	if !ok {
		return nil, false
	}
	cp := *a
	return &cp, true
}

func (m *MemStore) PutAccount(a *domain.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *a
	m.accounts[a.ID] = &cp
}

func (m *MemStore) Position(id string) (*domain.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.positions[id]
	if !ok {
		return nil, false
	}
	return copyPosition(p), true
}

func (m *MemStore) PutPosition(p *domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.positions[p.ID] = copyPosition(p)
}

func (m *MemStore) OpenPosition(account, pool string, side domain.PositionSide) (*domain.Position, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.openPositions[posKey{account, pool, side}]
	if !ok {
		return nil, false
	}
	p, ok := m.positions[id]
	if !ok {
		return nil, false
	}
	return copyPosition(p), true
}

func (m *MemStore) SetOpenPosition(account, pool string, side domain.PositionSide, id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.openPositions[posKey{account, pool, side}] = id
}

func (m *MemStore) ClearOpenPosition(account, pool string, side domain.PositionSide) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.openPositions, posKey{account, pool, side})
}

func (m *MemStore) NextPositionSeq(account, pool string, side domain.PositionSide) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := posKey{account, pool, side}
	seq := m.positionSeq[k]
	m.positionSeq[k] = seq + 1
	return seq
}

func (m *MemStore) MarkActivity(g domain.Granularity, bucket int64, account string, kind domain.EventKind) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := domain.ActivityID(g, bucket, account, kind)
	if _, seen := m.activity[id]; seen {
		return false
	}
	m.activity[id] = struct{}{}

	bk := bucketKey(g, bucket)
	set, ok := m.activeAccounts[bk]
	if !ok {
		set = make(map[string]struct{}, 16)
		m.activeAccounts[bk] = set
	}
	set[account] = struct{}{}

	return true
}

func (m *MemStore) CountActiveAccounts(g domain.Granularity, bucket int64) uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return uint64(len(m.activeAccounts[bucketKey(g, bucket)]))
}

func bucketKey(g domain.Granularity, bucket int64) string {
	return domain.ActivityID(g, bucket, "", "")
}

func copyPool(p *domain.Pool) *domain.Pool {
	cp := *p

	cp.InputTokens = append([]string(nil), p.InputTokens...)
	cp.InputTokenBalancesUSD = append([]decimal.Decimal(nil), p.InputTokenBalancesUSD...)

	cp.InputTokenBalances = make([]*big.Int, len(p.InputTokenBalances))
	for i, b := range p.InputTokenBalances {
		if b != nil {
			cp.InputTokenBalances[i] = new(big.Int).Set(b)
		}
	}

	if p.OutputTokenSupply != nil {
		cp.OutputTokenSupply = new(big.Int).Set(p.OutputTokenSupply)
	}

	return &cp
}

func copyPosition(p *domain.Position) *domain.Position {
	cp := *p
	if p.Balance != nil {
		cp.Balance = new(big.Int).Set(p.Balance)
	}
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
