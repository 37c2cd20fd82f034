package store

import "subgraphx/internal/domain"

// EntityStore is the keyed upsert surface the handlers work against. Reads
// return copies: the pipeline goroutine is the only writer, and the load →
// mutate → put cycle keeps HTTP readers off shared mutable state.
type EntityStore interface {
	Protocol() (*domain.Protocol, bool)
	PutProtocol(p *domain.Protocol)

	Token(id string) (*domain.Token, bool)
	PutToken(t *domain.Token)
	Tokens() []*domain.Token

	Pool(id string) (*domain.Pool, bool)
	PutPool(p *domain.Pool)
	Pools() []*domain.Pool

	Account(id string) (*domain.Account, bool)
	PutAccount(a *domain.Account)

	Position(id string) (*domain.Position, bool)
	PutPosition(p *domain.Position)
	// OpenPosition resolves the currently open position for the key, if any.
	OpenPosition(account, pool string, side domain.PositionSide) (*domain.Position, bool)
	SetOpenPosition(account, pool string, side domain.PositionSide, id string)
	ClearOpenPosition(account, pool string, side domain.PositionSide)
	// NextPositionSeq hands out the monotonic sequence for reopened keys.
	NextPositionSeq(account, pool string, side domain.PositionSide) uint64

	// MarkActivity records (bucket, account, kind) membership; false means the
	// marker already existed and nothing changed.
	MarkActivity(g domain.Granularity, bucket int64, account string, kind domain.EventKind) bool
	// CountActiveAccounts counts distinct accounts marked in the bucket.
	CountActiveAccounts(g domain.Granularity, bucket int64) uint64
}
