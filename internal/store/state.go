package store

import (
	"subgraphx/internal/domain"
)

// State is the gob-serializable image of a MemStore, used for warm starts.
// Unexported composite keys are flattened into exported entries.
type State struct {
	Protocol  *domain.Protocol
	Tokens    map[string]*domain.Token
	Pools     map[string]*domain.Pool
	Accounts  map[string]*domain.Account
	Positions map[string]*domain.Position

	OpenPositions []OpenPositionEntry
	PositionSeqs  []PositionSeqEntry

	Activity       map[string]struct{}
	ActiveAccounts map[string]map[string]struct{}
}

type OpenPositionEntry struct {
	Account    string
	Pool       string
	Side       domain.PositionSide
	PositionID string
}

type PositionSeqEntry struct {
	Account string
	Pool    string
	Side    domain.PositionSide
	Seq     uint64
}

// ExportState copies the working set into a serializable image.
func (m *MemStore) ExportState() *State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st := &State{
		Tokens:         make(map[string]*domain.Token, len(m.tokens)),
		Pools:          make(map[string]*domain.Pool, len(m.pools)),
		Accounts:       make(map[string]*domain.Account, len(m.accounts)),
		Positions:      make(map[string]*domain.Position, len(m.positions)),
		OpenPositions:  make([]OpenPositionEntry, 0, len(m.openPositions)),
		PositionSeqs:   make([]PositionSeqEntry, 0, len(m.positionSeq)),
		Activity:       make(map[string]struct{}, len(m.activity)),
		ActiveAccounts: make(map[string]map[string]struct{}, len(m.activeAccounts)),
	}

	if m.protocol != nil {
		cp := *m.protocol
		st.Protocol = &cp
	}
	for id, t := range m.tokens {
		cp := *t
		st.Tokens[id] = &cp
	}
	for id, p := range m.pools {
		st.Pools[id] = copyPool(p)
	}
	for id, a := range m.accounts {
		cp := *a
		st.Accounts[id] = &cp
	}
	for id, p := range m.positions {
		st.Positions[id] = copyPosition(p)
	}
	for k, id := range m.openPositions {
		st.OpenPositions = append(st.OpenPositions, OpenPositionEntry{
			Account: k.account, Pool: k.pool, Side: k.side, PositionID: id,
		})
	}
	for k, seq := range m.positionSeq {
		st.PositionSeqs = append(st.PositionSeqs, PositionSeqEntry{
			Account: k.account, Pool: k.pool, Side: k.side, Seq: seq,
		})
	}
	for id := range m.activity {
		st.Activity[id] = struct{}{}
	}
	for bk, set := range m.activeAccounts {
		cp := make(map[string]struct{}, len(set))
		for acc := range set {
			cp[acc] = struct{}{}
		}
		st.ActiveAccounts[bk] = cp
	}

	return st
}

// RestoreMemStore rebuilds a MemStore from a serialized image.
func RestoreMemStore(st *State) *MemStore {
	m := NewMemStore()
	if st == nil {
		return m
	}

	m.protocol = st.Protocol
	for id, t := range st.Tokens {
		m.tokens[id] = t
	}
	for id, p := range st.Pools {
		m.pools[id] = p
	}
	for id, a := range st.Accounts {
		m.accounts[id] = a
	}
	for id, p := range st.Positions {
		m.positions[id] = p
	}
	for _, e := range st.OpenPositions {
		m.openPositions[posKey{e.Account, e.Pool, e.Side}] = e.PositionID
	}
	for _, e := range st.PositionSeqs {
		m.positionSeq[posKey{e.Account, e.Pool, e.Side}] = e.Seq
	}
	for id := range st.Activity {
		m.activity[id] = struct{}{}
	}
	for bk, set := range st.ActiveAccounts {
		m.activeAccounts[bk] = set
	}

	return m
}
