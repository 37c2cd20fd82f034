package app

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/grafana/pyroscope-go"
	lgcfg "gitlab.com/nevasik7/alerting/config"
	"gitlab.com/nevasik7/alerting/logger"

	httpapi "subgraphx/internal/api/http"
	apihandlers "subgraphx/internal/api/http/handlers"
	"subgraphx/internal/api/http/mw"
	"subgraphx/internal/chain"
	"subgraphx/internal/config"
	dedupredis "subgraphx/internal/dedupe/redis"
	"subgraphx/internal/handlers"
	"subgraphx/internal/ingest"
	"subgraphx/internal/metrics"
	"subgraphx/internal/pricing"
	"subgraphx/internal/protocol"
	natsps "subgraphx/internal/pubsub/nats"
	"subgraphx/internal/registry"
	"subgraphx/internal/security"
	"subgraphx/internal/service"
	"subgraphx/internal/snapshots"
	"subgraphx/internal/store"
	"subgraphx/internal/stores/clickhouse"
	"subgraphx/internal/stores/redis"
)

type Container struct {
	log logger.Logger
	app *App

	// infra
	redis    *redis.Client
	ch       *clickhouse.Conn
	chWriter *clickhouse.Writer
	nc       *natsps.Client

	svc      *service.IndexerService
	stateKey string
	saveTick time.Duration

	profiler *pyroscope.Profiler

	saverStop chan struct{}
	saverWG   sync.WaitGroup
}

func (c *Container) Start(ctx context.Context) error {
	c.saverWG.Add(1)
	go c.stateSaver()

	return c.app.Start(ctx)
}

func (c *Container) Stop(ctx context.Context) error {
	close(c.saverStop)
	c.saverWG.Wait()

	if err := c.app.Shutdown(ctx); err != nil {
		return fmt.Errorf("app shutdown is failed, error=%w", err)
	}

	// final save after the consumer stopped, so the blob matches the cursor
	if err := c.redis.SaveState(ctx, c.stateKey, c.svc.ExportWarmState()); err != nil {
		c.log.Errorf("Failed to save warm state on shutdown, error=%v", err)
	}

	return nil
}

// stateSaver persists the working set on an interval for warm restarts.
func (c *Container) stateSaver() {
	defer c.saverWG.Done()

	ticker := time.NewTicker(c.saveTick)
	defer ticker.Stop()

	for {
		select {
		case <-c.saverStop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := c.redis.SaveState(ctx, c.stateKey, c.svc.ExportWarmState()); err != nil {
				c.log.Errorf("Failed to save warm state, error=%v", err)
			}
			cancel()
		}
	}
}

// Build constructs the full container.
func Build(ctx context.Context, cfg *config.Config) (*Container, func(), error) {
	lg := logger.New(lgcfg.LoggerCfg{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	lg.Infof("Successfully initialize logger")

	profiler, err := metrics.InitPProf(&cfg.Metrics.Pyroscope, cfg.App.InstanceID)
	if err != nil {
		return nil, nil, fmt.Errorf("pyroscope initialize failed: %w", err)
	}
	if profiler != nil {
		lg.Infof("Successfully initialize Pyroscope to %s as %s", cfg.Metrics.Pyroscope.ServerAddr, cfg.Metrics.Pyroscope.AppName)
	}

	// Redis client
	rdb, err := redis.New(ctx, lg, &cfg.Stores.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize redis client: %w", err)
	}

	// Bloom prefilter, optional: requires the RedisBloom module
	var bloom *dedupredis.Bloom
	if cfg.Dedupe.Bloom.Enabled {
		if bloom, err = dedupredis.NewBloom(&cfg.Dedupe.Bloom, rdb); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize bloom: %w", err)
		}
		if err = bloom.Ensure(ctx); err != nil {
			lg.Errorf("Bloom filter unavailable, falling back to plain SETNX, error=%v", err)
			bloom = nil
		} else {
			lg.Infof("Successfully initialize Bloom by key=%s, cap=%d, errRate=%f", bloom.Key, bloom.Capacity, bloom.ErrRate)
		}
	}

	deduper, err := dedupredis.NewRedisDeduper(lg, &cfg.Dedupe, rdb, bloom)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize redis deduper: %w", err)
	}
	lg.Infof("Successfully initialize Deduper redis_client by prefix %s", cfg.Dedupe.Prefix)

	// ClickHouse connection and batched writer
	ch, err := clickhouse.New(ctx, &cfg.Stores.ClickHouse)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize clickhouse client: %w", err)
	}
	url := strings.Split(cfg.Stores.ClickHouse.DSN, "?")
	lg.Infof("Successfully initialize clickhouse client, url=%s", url[0])

	chWriter := clickhouse.NewWriter(lg, ch.Native, cfg.Stores.ClickHouse, cfg.Network.ChainID)
	lg.Infof("Successfully initialize clickhouse writer")

	// NATS: ingest source and patch fan-out
	natsCl, err := natsps.New(lg, &cfg.PubSub.NATS)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize nats client: %w", err)
	}

	// Chain reads: JSON-RPC when configured, otherwise everything reverts into
	// defaults via the sim backend.
	var caller chain.Caller
	var rpc *chain.RPCBackend
	if cfg.Network.RPCURL != "" {
		if rpc, err = chain.NewRPCBackend(ctx, lg, cfg.Network.RPCURL); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize rpc backend: %w", err)
		}
		caller = rpc
		lg.Infof("Successfully initialize RPC backend, url=%s", cfg.Network.RPCURL)
	} else {
		lg.Warnf("No rpc_url configured, chain reads will revert into defaults")
		caller = chain.NewSimBackend()
	}

	// Warm state: resume from the last saved working set when present
	stateKey := cfg.Stores.Redis.Prefix + "state:warm"
	warm, err := rdb.LoadState(ctx, stateKey)
	if err != nil && err != redis.ErrNoState {
		return nil, nil, fmt.Errorf("failed to load warm state: %w", err)
	}

	var memstore *store.MemStore
	if warm != nil {
		memstore = store.RestoreMemStore(warm.Store)
		lg.Infof("Restored warm state taken at %s (block=%d)", warm.TakenAt, warm.LastBlock)
	} else {
		memstore = store.NewMemStore()
		lg.Infof("No warm state found, starting cold")
	}

	// Pricing chain, ordered per config
	resolver := pricing.NewResolver(lg, buildPriceSources(lg, cfg, caller))

	tokens := registry.NewTokenRegistry(lg, memstore, caller, resolver)
	pm := protocol.NewProtocolManager(lg, memstore, cfg.Protocol, cfg.Network.Name)
	accounts := protocol.NewAccountManager(lg, memstore, pm)
	roller := snapshots.NewRoller(lg, memstore, chWriter, cfg.Snapshots.Hourly, cfg.Snapshots.Daily)

	deps := &handlers.Deps{
		Log:       lg,
		Store:     memstore,
		Caller:    caller,
		Tokens:    tokens,
		Protocol:  pm,
		Pools:     protocol.NewPoolManager(lg, memstore, tokens, pm, cfg.Protocol.RevenueSupplyShare),
		Accounts:  accounts,
		Positions: protocol.NewPositionManager(lg, memstore, accounts),
		Roller:    roller,
	}

	svc := service.NewIndexerService(lg, memstore, handlers.NewRegistry(lg), deps, roller, deduper, natsCl, chWriter)
	svc.RestoreWarmState(warm)
	lg.Infof("Successfully initialize indexer service")

	consumer := ingest.NewConsumer(lg, natsCl, svc, cfg.Ingest)

	// Security: verifier gates the API, signer only mints dev tokens
	var jwtMW *mw.JWTMiddleware
	var verifier *security.RS256Verifier
	if cfg.Security.JWT.Enabled {
		if verifier, err = security.NewRS256Verifier(&cfg.Security.JWT); err != nil {
			return nil, nil, fmt.Errorf("failed to initialize jwt verifier: %w", err)
		}
		jwtMW = mw.NewJWTMiddleware(verifier)
		lg.Infof("Successfully initialize JWT-Verifier")
	}

	var corsMW *mw.CORSMiddleware
	if cfg.API.HTTP.CORS.Enabled {
		corsMW = mw.NewCORSConfig(&cfg.API.HTTP.CORS)
	}

	rateLimitMW := mw.NewRateLimit(rdb.Client, mw.RateLimitConfig{
		ByJWT:    cfg.RateLimit.ByJWT,
		ByIP:     cfg.RateLimit.ByIP,
		Verifier: verifier,
	})

	router := httpapi.BuildRouter(
		apihandlers.NewHandler(lg, svc),
		mw.NewLogging(lg),
		mw.NewGzip(0, lg),
		rateLimitMW,
		jwtMW,
		corsMW,
	)
	httpSrv := httpapi.NewServer(lg, cfg.API.HTTP, router)
	lg.Infof("Successfully initialize HTTP server")

	saveTick := cfg.App.SnapshotInterval
	if saveTick <= 0 {
		saveTick = 30 * time.Second
	}

	c := &Container{
		log:       lg,
		app:       NewApp(lg, httpSrv, consumer),
		redis:     rdb,
		ch:        ch,
		chWriter:  chWriter,
		nc:        natsCl,
		svc:       svc,
		stateKey:  stateKey,
		saveTick:  saveTick,
		profiler:  profiler,
		saverStop: make(chan struct{}),
	}

	cleanupF := func() {
		ctxClean, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if c.profiler != nil {
			if perr := c.profiler.Stop(); perr != nil {
				lg.Errorf("Failed to stop profiler: %v", perr)
			}
		}

		if cerr := chWriter.Close(ctxClean); cerr != nil {
			lg.Errorf("Failed to close by cleanupF clickhouse writer: %v", cerr)
		}

		if cerr := ch.Close(); cerr != nil {
			lg.Errorf("Failed to close by cleanupF clickhouse client: %v", cerr)
		}

		if cerr := natsCl.Close(); cerr != nil {
			lg.Errorf("Failed to close by cleanupF nats client: %v", cerr)
		}

		if rpc != nil {
			rpc.Close()
		}

		if cerr := rdb.Close(); cerr != nil {
			lg.Errorf("Failed to close by cleanupF redis client: %v", cerr)
		}

		lg.Infof("Successfully cleaned up dependency")
	}

	lg.Infof("Successfully initialize Wiring")
	return c, cleanupF, nil
}

// buildPriceSources assembles the fallback chain in the configured order.
// Unknown names and sources missing their prerequisites are skipped.
func buildPriceSources(lg logger.Logger, cfg *config.Config, caller chain.Caller) []pricing.Source {
	order := cfg.Pricing.SourceOrder
	if len(order) == 0 {
		order = []string{"stable", "feed", "router"}
	}

	stables := make([]common.Address, 0, len(cfg.Network.StableTokens))
	for _, s := range cfg.Network.StableTokens {
		stables = append(stables, common.HexToAddress(s))
	}

	feeds := make(map[common.Address]common.Address, len(cfg.Network.PriceFeeds))
	for token, feed := range cfg.Network.PriceFeeds {
		feeds[common.HexToAddress(token)] = common.HexToAddress(feed)
	}

	hopFee := cfg.Pricing.RouterHopFeeBPS
	if hopFee <= 0 {
		hopFee = 30
	}
	stableDecimals := cfg.Pricing.RouterStableDecimals
	if stableDecimals == 0 {
		stableDecimals = 6
	}

	var sources []pricing.Source
	for _, name := range order {
		switch name {
		case "stable":
			if len(stables) > 0 {
				sources = append(sources, pricing.NewStableSource(stables))
			}
		case "feed":
			if len(feeds) > 0 {
				sources = append(sources, pricing.NewFeedSource(caller, feeds))
			}
		case "router":
			if cfg.Network.Router == "" || cfg.Network.HubToken == "" || len(stables) == 0 {
				lg.Warnf("Router price source skipped, router/hub/stables not fully configured")
				continue
			}
			sources = append(sources, pricing.NewRouterSource(
				caller,
				common.HexToAddress(cfg.Network.Router),
				common.HexToAddress(cfg.Network.HubToken),
				stables[0],
				stableDecimals,
				hopFee,
			))
		default:
			lg.Warnf("Unknown price source %q skipped", name)
		}
	}

	return sources
}
