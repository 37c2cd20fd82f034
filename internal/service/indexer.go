package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/dedupe"
	"subgraphx/internal/domain"
	"subgraphx/internal/handlers"
	"subgraphx/internal/metrics"
	"subgraphx/internal/pubsub"
	"subgraphx/internal/snapshots"
	"subgraphx/internal/store"
	redisstore "subgraphx/internal/stores/redis"
	"subgraphx/pkg/numeric"
)

var (
	ErrNotFound          = errors.New("entity not found")
	ErrProtocolNotSeeded = errors.New("protocol not created yet")
)

// EventArchive receives every processed event for durable history.
type EventArchive interface {
	EnqueueRawEvent(ev *domain.Event, amountUSD string) error
	Health(ctx context.Context) error
}

// IndexerService is the single orchestration point of the pipeline:
// dedupe → ordering guard → handlers → broadcast → archive. ProcessEvent must
// be called from one goroutine; the entity store has exactly one writer.
type IndexerService struct {
	log         logger.Logger
	store       *store.MemStore
	registry    *handlers.Registry
	deps        *handlers.Deps
	roller      *snapshots.Roller
	deduper     dedupe.Deduper
	broadcaster pubsub.Broadcaster
	archive     EventArchive

	mu           sync.Mutex
	hasCursor    bool
	lastBlock    uint64
	lastLogIndex uint32
}

func NewIndexerService(
	log logger.Logger,
	st *store.MemStore,
	registry *handlers.Registry,
	deps *handlers.Deps,
	roller *snapshots.Roller,
	deduper dedupe.Deduper,
	broadcaster pubsub.Broadcaster,
	archive EventArchive,
) *IndexerService {
	return &IndexerService{
		log:         log,
		store:       st,
		registry:    registry,
		deps:        deps,
		roller:      roller,
		deduper:     deduper,
		broadcaster: broadcaster,
		archive:     archive,
	}
}

// ProcessEvent runs one decoded event through the pipeline. Duplicates and
// late arrivals are dropped silently; handler-level misses are best-effort
// and never surface as errors.
func (s *IndexerService) ProcessEvent(ctx context.Context, ev *domain.Event) error {
	started := time.Now()
	defer func() { metrics.ProcessDuration.Observe(time.Since(started).Seconds()) }()

	if ev.EventID == "" {
		ev.EventID = domain.MakeEventID(ev.Block, ev.TxHash, ev.LogIndex)
	}

	seen, err := s.deduper.Seen(ctx, ev.EventID)
	if err != nil {
		return fmt.Errorf("dedup check failed for %s: %w", ev.EventID, err)
	}
	if seen {
		metrics.EventsDuplicate.Inc()
		s.log.Debugf("Duplicate event ignored: %s", ev.EventID)
		return nil
	}

	if !s.advanceCursor(ev.Block, ev.LogIndex) {
		metrics.EventsOutOfOrder.Inc()
		s.log.Warnf("Event %s behind high-water mark (block=%d log=%d), skipping", ev.EventID, ev.Block, ev.LogIndex)
		return nil
	}

	patches := s.registry.Dispatch(ctx, s.deps, ev)
	metrics.EventsProcessed.WithLabelValues(string(ev.Kind)).Inc()

	// broadcast failures are not fatal, subscribers catch up on the next patch
	if s.broadcaster != nil {
		for _, patch := range patches {
			if err = s.broadcaster.Publish(ctx, patch.Topic, patch); err != nil {
				metrics.HandlerErrors.WithLabelValues("broadcast").Inc()
				s.log.Errorf("Failed to broadcast patch for %s, error=%v", patch.Topic, err)
			}
		}
	}

	if s.archive != nil {
		if err = s.archive.EnqueueRawEvent(ev, s.eventAmountUSD(ev)); err != nil {
			metrics.HandlerErrors.WithLabelValues("archive").Inc()
			s.log.Errorf("Failed to enqueue raw event %s, error=%v", ev.EventID, err)
		}
	}

	s.log.Debugf("Event processed: %s (%s, block=%d)", ev.EventID, ev.Kind, ev.Block)
	return nil
}

// advanceCursor enforces blockchain order (block asc, then log index asc).
// Returns false for an event at or behind the mark.
func (s *IndexerService) advanceCursor(block uint64, logIndex uint32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasCursor {
		if block < s.lastBlock {
			return false
		}
		if block == s.lastBlock && logIndex <= s.lastLogIndex {
			return false
		}
	}

	s.hasCursor = true
	s.lastBlock = block
	s.lastLogIndex = logIndex
	return true
}

// eventAmountUSD prices the event's principal amount with the store's last
// observed token price. Empty when the event carries no amount.
func (s *IndexerService) eventAmountUSD(ev *domain.Event) string {
	token, amount := ev.Token, ev.Amount
	if amount == nil && ev.AmountIn != nil {
		token, amount = ev.TokenIn, ev.AmountIn
	}
	if amount == nil {
		return ""
	}

	tok, ok := s.store.Token(domain.Addr(token))
	if !ok {
		return ""
	}

	return numeric.ToDecimal(amount, tok.Decimals).Mul(tok.PriceUSD).String()
}

// ProtocolStats returns the live protocol entity for the HTTP API.
func (s *IndexerService) ProtocolStats(ctx context.Context) (*domain.Protocol, error) {
	p, ok := s.store.Protocol()
	if !ok {
		return nil, ErrProtocolNotSeeded
	}
	return p, nil
}

func (s *IndexerService) ListPools(ctx context.Context) ([]*domain.Pool, error) {
	return s.store.Pools(), nil
}

func (s *IndexerService) PoolByAddress(ctx context.Context, addr string) (*domain.Pool, error) {
	p, ok := s.store.Pool(domain.Addr(common.HexToAddress(addr)))
	if !ok {
		return nil, ErrNotFound
	}
	return p, nil
}

func (s *IndexerService) AccountByAddress(ctx context.Context, addr string) (*domain.Account, error) {
	a, ok := s.store.Account(domain.Addr(common.HexToAddress(addr)))
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (s *IndexerService) TokenByAddress(ctx context.Context, addr string) (*domain.Token, error) {
	t, ok := s.store.Token(domain.Addr(common.HexToAddress(addr)))
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// ExportWarmState captures the full working set plus the ordering cursor.
func (s *IndexerService) ExportWarmState() *redisstore.WarmState {
	s.mu.Lock()
	block, logIndex := s.lastBlock, s.lastLogIndex
	s.mu.Unlock()

	return &redisstore.WarmState{
		Store:        s.store.ExportState(),
		Roller:       s.roller.ExportState(),
		LastBlock:    block,
		LastLogIndex: logIndex,
	}
}

// RestoreWarmState rehydrates the roller pointers and the ordering cursor.
// The entity store itself is rebuilt before the service is constructed.
func (s *IndexerService) RestoreWarmState(st *redisstore.WarmState) {
	if st == nil {
		return
	}

	s.roller.RestoreState(st.Roller)

	s.mu.Lock()
	s.hasCursor = st.LastBlock > 0 || st.LastLogIndex > 0
	s.lastBlock = st.LastBlock
	s.lastLogIndex = st.LastLogIndex
	s.mu.Unlock()
}

// CheckDependency fans in the health of every external dependency; used by
// the readiness endpoint.
func (s *IndexerService) CheckDependency(ctx context.Context) error {
	errDependency := make([]string, 0, 3)

	if s.deduper != nil {
		if err := s.deduper.Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("Redis connection error: %v", err))
		}
	}

	if s.archive != nil {
		if err := s.archive.Health(ctx); err != nil {
			errDependency = append(errDependency, fmt.Sprintf("ClickHouse connection error: %v", err))
		}
	}

	if s.broadcaster != nil {
		if err := s.broadcaster.Health(ctx); err != nil {
			errDependency = append(errDependency, "NATS: connection not ready")
		}
	}

	if len(errDependency) > 0 {
		return fmt.Errorf("dependency check failed: %s", strings.Join(errDependency, "; "))
	}

	return nil
}
