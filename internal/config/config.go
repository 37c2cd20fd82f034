package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App       AppConfig       `yaml:"app"`
	Logging   LoggingConfig   `yaml:"logging"`
	Protocol  ProtocolConfig  `yaml:"protocol"`
	Network   NetworkConfig   `yaml:"network"`
	Pricing   PricingConfig   `yaml:"pricing"`
	Snapshots SnapshotsConfig `yaml:"snapshots"`
	Security  SecurityConfig  `yaml:"security"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Dedupe    DedupeConfig    `yaml:"dedupe"`
	Stores    StoresConfig    `yaml:"stores"`
	PubSub    PubSubConfig    `yaml:"pubsub"`
	API       APIConfig       `yaml:"api"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type AppConfig struct {
	InstanceID       string        `yaml:"instance_id"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval"` // warm-start state save period
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug|info|warn|error
	Format string `yaml:"format"` // json|console
}

// ProtocolConfig identifies the one protocol instance this deployment indexes.
type ProtocolConfig struct {
	Name    string `yaml:"name"`
	Slug    string `yaml:"slug"`
	Version string `yaml:"version"`
	// RevenueSupplyShare is the supply-side fraction of every fee, 0..1.
	RevenueSupplyShare float64 `yaml:"revenue_supply_share"`
}

// NetworkConfig carries the per-network address tables that the original
// codebase compiled into source. Everything here is injected, never hardcoded.
type NetworkConfig struct {
	Name         string            `yaml:"name"` // mainnet|arbitrum|...
	ChainID      uint32            `yaml:"chain_id"`
	RPCURL       string            `yaml:"rpc_url"`
	HubToken     string            `yaml:"hub_token"` // routing asset for router quotes, e.g. WETH
	Router       string            `yaml:"router"`
	StableTokens []string          `yaml:"stable_tokens"`
	PriceFeeds   map[string]string `yaml:"price_feeds"` // token address -> feed address
}

type PricingConfig struct {
	// SourceOrder lists price sources by name, tried first to last:
	// stable|feed|router.
	SourceOrder     []string `yaml:"source_order"`
	RouterHopFeeBPS int64    `yaml:"router_hop_fee_bps"` // fee deducted per swap hop, default 30
	// RouterStableDecimals is the decimals of the first stable token, used to
	// read router quotes denominated in it.
	RouterStableDecimals uint8 `yaml:"router_stable_decimals"`
}

type SnapshotsConfig struct {
	Hourly bool `yaml:"hourly"`
	Daily  bool `yaml:"daily"`
}

type JWTConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Alg            string        `yaml:"alg"` // RS256
	PublicKeyPath  string        `yaml:"public_key_path"`
	PrivateKeyPath string        `yaml:"private_key_path"`
	Audience       string        `yaml:"audience"`
	Issuer         string        `yaml:"issuer"`
	Leeway         time.Duration `yaml:"leeway"`
}

type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

type RateBucket struct {
	RefillPerSec int           `yaml:"refill_per_sec"`
	Burst        int           `yaml:"burst"`
	TTL          time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	ByJWT RateBucket `yaml:"by_jwt"`
	ByIP  RateBucket `yaml:"by_ip"`
}

type IngestConfig struct {
	Subject    string `yaml:"subject"` // NATS subject carrying decoded events
	QueueGroup string `yaml:"queue_group"`
	BufferSize int    `yaml:"buffer_size"`
}

type DedupeConfig struct {
	TTL    time.Duration `yaml:"ttl"`
	Prefix string        `yaml:"prefix"`
	Bloom  BloomConfig   `yaml:"bloom"`
}

type BloomConfig struct {
	Enabled  bool    `yaml:"enabled"`
	Key      string  `yaml:"key"`
	Capacity int64   `yaml:"capacity"`
	ErrRate  float64 `yaml:"err_rate"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	Prefix       string        `yaml:"prefix"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ClickHouseWriterConfig struct {
	BatchMaxRows     int           `yaml:"batch_max_rows"`
	BatchMaxInterval time.Duration `yaml:"batch_max_interval"`
	MaxRetries       int           `yaml:"max_retries"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

type ClickHouseConfig struct {
	DSN    string                 `yaml:"dsn"`
	Writer ClickHouseWriterConfig `yaml:"writer"`
}

type StoresConfig struct {
	Redis      RedisConfig      `yaml:"redis"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

type NATSConfig struct {
	URL             string `yaml:"url"`
	BroadcastPrefix string `yaml:"broadcast_prefix"`
}

type PubSubConfig struct {
	NATS NATSConfig `yaml:"nats"`
}

type CORSConfig struct {
	Enabled bool     `yaml:"enabled"`
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
	Headers []string `yaml:"headers"`
}

type HTTPConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	CORS         CORSConfig    `yaml:"cors"`
}

type APIConfig struct {
	HTTP HTTPConfig `yaml:"http"`
}

type PyroscopeConfig struct {
	Enabled    bool              `yaml:"enabled"`
	AppName    string            `yaml:"app_name"`
	ServerAddr string            `yaml:"server_addr"`
	AuthToken  string            `yaml:"auth_token"`
	Tags       map[string]string `yaml:"tags"`
}

type MetricsConfig struct {
	Prometheus string          `yaml:"prometheus"`
	Pyroscope  PyroscopeConfig `yaml:"pyroscope"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err = yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
