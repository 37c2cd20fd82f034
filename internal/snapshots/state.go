package snapshots

import "subgraphx/internal/domain"

// State is the gob-serializable form of the roller's last-snapshot pointers,
// saved alongside the entity store for warm restarts.
type State struct {
	Protocol []*domain.ProtocolSnapshot
	Pools    []*domain.PoolSnapshot
}

func (r *Roller) ExportState() *State {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := &State{}
	for _, snap := range r.lastProtocol {
		cp := *snap
		st.Protocol = append(st.Protocol, &cp)
	}
	for _, snap := range r.lastPool {
		cp := *snap
		st.Pools = append(st.Pools, &cp)
	}

	return st
}

func (r *Roller) RestoreState(st *State) {
	if st == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, snap := range st.Protocol {
		cp := *snap
		r.lastProtocol[snap.Granularity] = &cp
	}
	for _, snap := range st.Pools {
		cp := *snap
		r.lastPool[poolKey{id: snap.Pool, g: snap.Granularity}] = &cp
	}
}
