package snapshots

import (
	"sync"
	"time"

	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/domain"
	"subgraphx/internal/store"
)

// Sink receives materialized snapshots for durable history. Enqueue calls
// must not block the event pipeline.
type Sink interface {
	EnqueueProtocolSnapshot(*domain.ProtocolSnapshot)
	EnqueuePoolSnapshot(*domain.PoolSnapshot)
}

// Roller materializes one immutable snapshot per (entity, granularity,
// bucket). On every event touching an entity it compares the event's bucket
// with the last materialized one; a crossing copies the entity's cumulative
// counters and computes this-period deltas against the previous snapshot. The
// first-ever snapshot diffs against an implicit zero predecessor, so its
// deltas equal the cumulative values. Later events in the same bucket change
// only the live entity.
type Roller struct {
	log   logger.Logger
	store store.EntityStore
	sink  Sink

	grans []domain.Granularity

	mu           sync.Mutex
	lastProtocol map[domain.Granularity]*domain.ProtocolSnapshot
	lastPool     map[poolKey]*domain.PoolSnapshot
}

type poolKey struct {
	id string
	g  domain.Granularity
}

func NewRoller(log logger.Logger, st store.EntityStore, sink Sink, hourly, daily bool) *Roller {
	var grans []domain.Granularity
	if hourly {
		grans = append(grans, domain.GranHourly)
	}
	if daily {
		grans = append(grans, domain.GranDaily)
	}

	return &Roller{
		log:          log,
		store:        st,
		sink:         sink,
		grans:        grans,
		lastProtocol: make(map[domain.Granularity]*domain.ProtocolSnapshot, 2),
		lastPool:     make(map[poolKey]*domain.PoolSnapshot, 128),
	}
}

// RollProtocol evaluates every enabled granularity and returns the snapshots
// materialized by this call, usually none.
func (r *Roller) RollProtocol(p *domain.Protocol, block uint64, ts time.Time) []*domain.ProtocolSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.ProtocolSnapshot
	for _, g := range r.grans {
		bucket := ts.Unix() / g.BucketLength()

		prev := r.lastProtocol[g]
		if prev != nil && prev.Bucket == bucket {
			continue
		}

		snap := &domain.ProtocolSnapshot{
			Protocol:    p.ID,
			Granularity: g,
			Bucket:      bucket,
			BucketStart: time.Unix(bucket*g.BucketLength(), 0).UTC(),
			Block:       block,

			TotalValueLockedUSD:       p.TotalValueLockedUSD,
			CumulativeVolumeUSD:       p.CumulativeVolumeUSD,
			CumulativeTotalRevenueUSD: p.CumulativeTotalRevenueUSD,
			CumulativeUniqueAccounts:  p.CumulativeUniqueAccounts,

			PeriodActiveAccounts: r.store.CountActiveAccounts(g, bucket),
			TakenAt:              ts,
		}
		if prev != nil {
			snap.PeriodVolumeUSD = p.CumulativeVolumeUSD.Sub(prev.CumulativeVolumeUSD)
			snap.PeriodTotalRevenueUSD = p.CumulativeTotalRevenueUSD.Sub(prev.CumulativeTotalRevenueUSD)
			snap.PeriodNewAccounts = p.CumulativeUniqueAccounts - prev.CumulativeUniqueAccounts
		} else {
			snap.PeriodVolumeUSD = p.CumulativeVolumeUSD
			snap.PeriodTotalRevenueUSD = p.CumulativeTotalRevenueUSD
			snap.PeriodNewAccounts = p.CumulativeUniqueAccounts
		}

		r.lastProtocol[g] = snap
		if r.sink != nil {
			r.sink.EnqueueProtocolSnapshot(snap)
		}
		out = append(out, snap)

		r.log.Debugf("Protocol snapshot %s/%s bucket=%d block=%d", p.ID, g, bucket, block)
	}

	return out
}

// RollPool mirrors RollProtocol per pool.
func (r *Roller) RollPool(p *domain.Pool, block uint64, ts time.Time) []*domain.PoolSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*domain.PoolSnapshot
	for _, g := range r.grans {
		bucket := ts.Unix() / g.BucketLength()

		key := poolKey{id: p.ID, g: g}
		prev := r.lastPool[key]
		if prev != nil && prev.Bucket == bucket {
			continue
		}

		snap := &domain.PoolSnapshot{
			Pool:        p.ID,
			Granularity: g,
			Bucket:      bucket,
			BucketStart: time.Unix(bucket*g.BucketLength(), 0).UTC(),
			Block:       block,

			TotalValueLockedUSD:       p.TotalValueLockedUSD,
			CumulativeVolumeUSD:       p.CumulativeVolumeUSD,
			CumulativeTotalRevenueUSD: p.CumulativeTotalRevenueUSD,

			TakenAt: ts,
		}
		if prev != nil {
			snap.PeriodVolumeUSD = p.CumulativeVolumeUSD.Sub(prev.CumulativeVolumeUSD)
			snap.PeriodTotalRevenueUSD = p.CumulativeTotalRevenueUSD.Sub(prev.CumulativeTotalRevenueUSD)
		} else {
			snap.PeriodVolumeUSD = p.CumulativeVolumeUSD
			snap.PeriodTotalRevenueUSD = p.CumulativeTotalRevenueUSD
		}

		r.lastPool[key] = snap
		if r.sink != nil {
			r.sink.EnqueuePoolSnapshot(snap)
		}
		out = append(out, snap)

		r.log.Debugf("Pool snapshot %s/%s bucket=%d block=%d", p.ID, g, bucket, block)
	}

	return out
}
