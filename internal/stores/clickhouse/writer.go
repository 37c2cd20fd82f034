package clickhouse

import (
	"context"
	"errors"
	"sync"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"gitlab.com/nevasik7/alerting/logger"

	"subgraphx/internal/config"
	"subgraphx/internal/domain"
)

// RawEventRow is one decoded contract event, kept forever for replay/audit.
// Decimal columns are sent as strings.
type RawEventRow struct {
	EventTime      time.Time
	ChainID        uint32
	Kind           string
	TxHash         string
	LogIndex       uint32
	EventID        string
	PoolAddress    string
	AccountAddress string
	TokenAddress   string
	AmountRaw      string // Decimal(76,0)
	AmountUSD      string // Decimal(20,6)
	BlockNumber    uint64
	SchemaVersion  uint16
}

type ProtocolSnapshotRow struct {
	Protocol     string
	Granularity  string
	Bucket       int64
	BucketStart  time.Time
	BlockNumber  uint64
	TVLUSD       string
	VolumeUSD    string
	RevenueUSD   string
	UniqueAccts  uint64
	PeriodVolume string
	PeriodRev    string
	PeriodNew    uint64
	PeriodActive uint64
	TakenAt      time.Time
}

type PoolSnapshotRow struct {
	Pool         string
	Granularity  string
	Bucket       int64
	BucketStart  time.Time
	BlockNumber  uint64
	TVLUSD       string
	VolumeUSD    string
	RevenueUSD   string
	PeriodVolume string
	PeriodRev    string
	TakenAt      time.Time
}

type queued struct {
	raw      *RawEventRow
	protocol *ProtocolSnapshotRow
	pool     *PoolSnapshotRow
}

// Writer batches rows into three append-only tables off the hot path. Failed
// batches retry with exponential backoff and are dropped after the last
// attempt; history gaps are recoverable from the warm-state replay, the live
// working set never depends on ClickHouse.
type Writer struct {
	log     logger.Logger
	conn    ch.Conn
	cfg     config.ClickHouseWriterConfig
	chainID uint32

	inCh      chan queued
	closedCh  chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func NewWriter(log logger.Logger, conn ch.Conn, cfg config.ClickHouseConfig, chainID uint32) *Writer {
	wcfg := cfg.Writer
	if wcfg.BatchMaxRows <= 0 {
		wcfg.BatchMaxRows = 1000
	}
	if wcfg.BatchMaxInterval <= 0 {
		wcfg.BatchMaxInterval = 200 * time.Millisecond
	}
	if wcfg.MaxRetries < 0 {
		wcfg.MaxRetries = 0
	}
	if wcfg.RetryBackoff <= 0 {
		wcfg.RetryBackoff = 200 * time.Millisecond
	}

	w := &Writer{
		log:      log,
		conn:     conn,
		cfg:      wcfg,
		chainID:  chainID,
		inCh:     make(chan queued, 8192),
		closedCh: make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w
}

// EnqueueRawEvent converts and queues a processed event.
func (w *Writer) EnqueueRawEvent(ev *domain.Event, amountUSD string) error {
	row := &RawEventRow{
		EventTime:      ev.Timestamp,
		ChainID:        w.chainID,
		Kind:           string(ev.Kind),
		TxHash:         ev.TxHash,
		LogIndex:       ev.LogIndex,
		EventID:        ev.EventID,
		PoolAddress:    domain.Addr(ev.Pool),
		AccountAddress: domain.Addr(ev.Account),
		TokenAddress:   domain.Addr(ev.Token),
		AmountUSD:      amountUSD,
		BlockNumber:    ev.Block,
		SchemaVersion:  ev.SchemaVer,
	}
	if ev.Amount != nil {
		row.AmountRaw = ev.Amount.String()
	} else {
		row.AmountRaw = "0"
	}
	if row.AmountUSD == "" {
		row.AmountUSD = "0"
	}

	return w.enqueue(queued{raw: row})
}

// EnqueueProtocolSnapshot implements the snapshot sink.
func (w *Writer) EnqueueProtocolSnapshot(s *domain.ProtocolSnapshot) {
	_ = w.enqueue(queued{protocol: &ProtocolSnapshotRow{
		Protocol:     s.Protocol,
		Granularity:  string(s.Granularity),
		Bucket:       s.Bucket,
		BucketStart:  s.BucketStart,
		BlockNumber:  s.Block,
		TVLUSD:       s.TotalValueLockedUSD.String(),
		VolumeUSD:    s.CumulativeVolumeUSD.String(),
		RevenueUSD:   s.CumulativeTotalRevenueUSD.String(),
		UniqueAccts:  s.CumulativeUniqueAccounts,
		PeriodVolume: s.PeriodVolumeUSD.String(),
		PeriodRev:    s.PeriodTotalRevenueUSD.String(),
		PeriodNew:    s.PeriodNewAccounts,
		PeriodActive: s.PeriodActiveAccounts,
		TakenAt:      s.TakenAt,
	}})
}

// EnqueuePoolSnapshot implements the snapshot sink.
func (w *Writer) EnqueuePoolSnapshot(s *domain.PoolSnapshot) {
	_ = w.enqueue(queued{pool: &PoolSnapshotRow{
		Pool:         s.Pool,
		Granularity:  string(s.Granularity),
		Bucket:       s.Bucket,
		BucketStart:  s.BucketStart,
		BlockNumber:  s.Block,
		TVLUSD:       s.TotalValueLockedUSD.String(),
		VolumeUSD:    s.CumulativeVolumeUSD.String(),
		RevenueUSD:   s.CumulativeTotalRevenueUSD.String(),
		PeriodVolume: s.PeriodVolumeUSD.String(),
		PeriodRev:    s.PeriodTotalRevenueUSD.String(),
		TakenAt:      s.TakenAt,
	}})
}

func (w *Writer) enqueue(q queued) error {
	select {
	case <-w.closedCh:
		return errors.New("clickhouse writer closed")
	default:
	}

	select {
	case w.inCh <- q:
		return nil
	case <-w.closedCh:
		return errors.New("clickhouse writer closed")
	}
}

func (w *Writer) Health(ctx context.Context) error {
	return w.conn.Ping(ctx)
}

func (w *Writer) Close(ctx context.Context) error {
	w.closeOnce.Do(func() {
		close(w.closedCh)
		close(w.inCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Writer) loop() {
	defer w.wg.Done()

	var (
		raws      []RawEventRow
		protoSnap []ProtocolSnapshotRow
		poolSnap  []PoolSnapshotRow
	)

	ticker := time.NewTicker(w.cfg.BatchMaxInterval)
	defer ticker.Stop()

	flush := func() {
		if len(raws) > 0 {
			if err := w.insertRawEvents(context.Background(), raws); err != nil {
				w.log.Errorf("Failed insert [%d] raw event rows to clickhouse, error=%v", len(raws), err)
			}
			raws = raws[:0]
		}
		if len(protoSnap) > 0 {
			if err := w.insertProtocolSnapshots(context.Background(), protoSnap); err != nil {
				w.log.Errorf("Failed insert [%d] protocol snapshot rows to clickhouse, error=%v", len(protoSnap), err)
			}
			protoSnap = protoSnap[:0]
		}
		if len(poolSnap) > 0 {
			if err := w.insertPoolSnapshots(context.Background(), poolSnap); err != nil {
				w.log.Errorf("Failed insert [%d] pool snapshot rows to clickhouse, error=%v", len(poolSnap), err)
			}
			poolSnap = poolSnap[:0]
		}
	}

	for {
		select {
		case q, ok := <-w.inCh:
			if !ok {
				flush()
				return
			}

			switch {
			case q.raw != nil:
				raws = append(raws, *q.raw)
			case q.protocol != nil:
				protoSnap = append(protoSnap, *q.protocol)
			case q.pool != nil:
				poolSnap = append(poolSnap, *q.pool)
			}

			if len(raws)+len(protoSnap)+len(poolSnap) >= w.cfg.BatchMaxRows {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// withRetry repeats fn with exponential backoff up to MaxRetries.
func (w *Writer) withRetry(fn func() error) error {
	backoff := w.cfg.RetryBackoff

	var lastErr error
	for attempt := 0; attempt <= w.cfg.MaxRetries; attempt++ {
		if lastErr = fn(); lastErr == nil {
			return nil
		}
		if attempt == w.cfg.MaxRetries {
			break
		}
		time.Sleep(backoff)
		backoff *= 2
	}

	return lastErr
}

func (w *Writer) insertRawEvents(ctx context.Context, rows []RawEventRow) error {
	return w.withRetry(func() error {
		batch, err := w.conn.PrepareBatch(ctx, `
			INSERT INTO raw_events (
				event_time, chain_id, kind, tx_hash, log_index, event_id,
				pool_address, account_address, token_address,
				amount_raw, amount_usd, block_number, schema_version
			)
		`)
		if err != nil {
			return err
		}

		for i := range rows {
			r := &rows[i]
			if err = batch.Append(
				r.EventTime, r.ChainID, r.Kind, r.TxHash, r.LogIndex, r.EventID,
				r.PoolAddress, r.AccountAddress, r.TokenAddress,
				r.AmountRaw, r.AmountUSD, r.BlockNumber, r.SchemaVersion,
			); err != nil {
				_ = batch.Abort()
				return err
			}
		}

		return batch.Send()
	})
}

func (w *Writer) insertProtocolSnapshots(ctx context.Context, rows []ProtocolSnapshotRow) error {
	return w.withRetry(func() error {
		batch, err := w.conn.PrepareBatch(ctx, `
			INSERT INTO protocol_snapshots (
				protocol, granularity, bucket, bucket_start, block_number,
				tvl_usd, cumulative_volume_usd, cumulative_revenue_usd,
				unique_accounts, period_volume_usd, period_revenue_usd,
				period_new_accounts, period_active_accounts, taken_at
			)
		`)
		if err != nil {
			return err
		}

		for i := range rows {
			r := &rows[i]
			if err = batch.Append(
				r.Protocol, r.Granularity, r.Bucket, r.BucketStart, r.BlockNumber,
				r.TVLUSD, r.VolumeUSD, r.RevenueUSD,
				r.UniqueAccts, r.PeriodVolume, r.PeriodRev,
				r.PeriodNew, r.PeriodActive, r.TakenAt,
			); err != nil {
				_ = batch.Abort()
				return err
			}
		}

		return batch.Send()
	})
}

func (w *Writer) insertPoolSnapshots(ctx context.Context, rows []PoolSnapshotRow) error {
	return w.withRetry(func() error {
		batch, err := w.conn.PrepareBatch(ctx, `
			INSERT INTO pool_snapshots (
				pool, granularity, bucket, bucket_start, block_number,
				tvl_usd, cumulative_volume_usd, cumulative_revenue_usd,
				period_volume_usd, period_revenue_usd, taken_at
			)
		`)
		if err != nil {
			return err
		}

		for i := range rows {
			r := &rows[i]
			if err = batch.Append(
				r.Pool, r.Granularity, r.Bucket, r.BucketStart, r.BlockNumber,
				r.TVLUSD, r.VolumeUSD, r.RevenueUSD,
				r.PeriodVolume, r.PeriodRev, r.TakenAt,
			); err != nil {
				_ = batch.Abort()
				return err
			}
		}

		return batch.Send()
	})
}
