package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultSolanaRPCURL public mainnet endpoint used when nothing is configured
	DefaultSolanaRPCURL = "https://api.mainnet-beta.solana.com"
	// DefaultRelayerURL indexer/relayer base path
	DefaultRelayerURL = "https://lightscan.network/backend/api/v1"
	// DefaultProverURL privacy SDK proving service
	DefaultProverURL = "http://localhost:18081"
)

// Config application configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	NATS       NATSConfig       `yaml:"nats"`
	Solana     SolanaConfig     `yaml:"solana"`
	Relayer    RelayerConfig    `yaml:"relayer"`
	Prover     ProverConfig     `yaml:"prover"`
	Settlement SettlementConfig `yaml:"settlement"`
	Tokens     TokensConfig     `yaml:"tokens"`
	Guard      GuardConfig      `yaml:"guard"`
	CORS       CORSConfig       `yaml:"cors"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ServerConfig server configuration
type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	RequestTimeout int      `yaml:"requestTimeout"` // whole private-send pipeline budget (seconds)
	TrustedProxies []string `yaml:"trustedProxies"` // proxies whose X-Forwarded-For is believed
}

// LogConfig logrus configuration
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// DatabaseConfig Database configuration; empty DSN keeps the send ledger in memory
type DatabaseConfig struct {
	DSN    string `yaml:"dsn"`
	Driver string `yaml:"driver"`
}

// NATSConfig NATS event publishing; empty URL disables publishing
type NATSConfig struct {
	URL           string `yaml:"url"`
	Timeout       int    `yaml:"timeout"`
	SubjectPrefix string `yaml:"subjectPrefix"`
}

// SolanaConfig Solana RPC configuration
type SolanaConfig struct {
	RPCURL     string `yaml:"rpcUrl"`
	Commitment string `yaml:"commitment"` // confirmed or finalized
}

// RelayerConfig remote indexer/relayer
type RelayerConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Timeout int    `yaml:"timeout"` // seconds
}

// ProverConfig proving service standing in for the privacy SDK
type ProverConfig struct {
	BaseURL string `yaml:"baseUrl"`
	Timeout int    `yaml:"timeout"` // seconds
}

// SettlementConfig how the pipeline waits between deposit and withdraw
type SettlementConfig struct {
	Mode         string `yaml:"mode"`         // poll (default) or fixed
	FixedDelayMs int    `yaml:"fixedDelayMs"` // fixed mode sleep
	PollInterval int    `yaml:"pollInterval"` // milliseconds between getSignatureStatuses calls
	Timeout      int    `yaml:"timeout"`      // seconds before giving up on confirmation
	IndexerGrace int    `yaml:"indexerGrace"` // milliseconds to wait after confirmation
}

// TokensConfig mint configuration
type TokensConfig struct {
	USDCMint string `yaml:"usdcMint"`
}

// GuardConfig duplicate-submission and per-sender limits
type GuardConfig struct {
	DuplicateTTL      int `yaml:"duplicateTtl"`      // seconds a signed deposit stays blocked
	RateLimitRequests int `yaml:"rateLimitRequests"` // bucket size per sender
	RateLimitPeriod   int `yaml:"rateLimitPeriod"`   // seconds per refill
}

// CORSConfig CORS configuration
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowedOrigins"`
	AllowCredentials bool     `yaml:"allowCredentials"`
	MaxAge           int      `yaml:"maxAge"`
}

// AdminConfig operator API access
type AdminConfig struct {
	Username   string   `yaml:"username"`
	Password   string   `yaml:"password"`
	TOTPSecret string   `yaml:"totpSecret"`
	JWTSecret  string   `yaml:"jwtSecret"`
	AllowedIPs []string `yaml:"allowedIPs"` // besides localhost, may reach /metrics and TOTP setup
}

var AppConfig *Config

// LoadConfig Load configuration file
func LoadConfig(configPath string) error {
	if configPath == "" {
		configPath = "config.yaml"
		if _, err := os.Stat("config.local.yaml"); err == nil {
			configPath = "config.local.yaml"
			log.Printf("🔧 Using local configuration file: config.local.yaml")
		}
	}

	var config Config
	data, err := os.ReadFile(configPath)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
		fmt.Printf("✅ [%s] Loading configuration from config file: %s\n", time.Now().Format("2006-01-02 15:04:05"), configPath)
	case os.IsNotExist(err):
		// Defaults plus environment are enough to run
		fmt.Printf("⚠️ [Config] %s not found, using defaults and environment\n", configPath)
	default:
		return fmt.Errorf("failed to read config file: %w", err)
	}

	overrideFromEnv(&config)
	config.ApplyDefaults()

	fmt.Printf("📋 [Config] Solana RPC: %s\n", config.Solana.RPCURL)
	fmt.Printf("📋 [Config] Relayer: BaseURL=%s, Timeout=%d\n", config.Relayer.BaseURL, config.Relayer.Timeout)
	fmt.Printf("📋 [Config] Prover: BaseURL=%s, Timeout=%d\n", config.Prover.BaseURL, config.Prover.Timeout)
	fmt.Printf("📋 [Config] Settlement mode: %s\n", config.Settlement.Mode)
	if config.Database.DSN == "" {
		fmt.Printf("📋 [Config] Database: not configured (in-memory send ledger)\n")
	}
	if len(config.CORS.AllowedOrigins) > 0 {
		fmt.Printf("📋 [Config] CORS allowed origins loaded: %d origins configured\n", len(config.CORS.AllowedOrigins))
	} else {
		fmt.Printf("📋 [Config] CORS: not configured (will allow all origins *)\n")
	}

	AppConfig = &config
	return nil
}

// ApplyDefaults fills every zero value with its default
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RequestTimeout <= 0 {
		c.Server.RequestTimeout = 60
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.NATS.Timeout <= 0 {
		c.NATS.Timeout = 10
	}
	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "privatesend"
	}
	if c.Solana.RPCURL == "" {
		c.Solana.RPCURL = DefaultSolanaRPCURL
	}
	if c.Solana.Commitment == "" {
		c.Solana.Commitment = "confirmed"
	}
	if c.Relayer.BaseURL == "" {
		c.Relayer.BaseURL = DefaultRelayerURL
	}
	c.Relayer.BaseURL = strings.TrimRight(c.Relayer.BaseURL, "/")
	if c.Relayer.Timeout <= 0 {
		c.Relayer.Timeout = 30
	}
	if c.Prover.BaseURL == "" {
		c.Prover.BaseURL = DefaultProverURL
	}
	c.Prover.BaseURL = strings.TrimRight(c.Prover.BaseURL, "/")
	if c.Prover.Timeout <= 0 {
		c.Prover.Timeout = 120
	}
	if c.Settlement.Mode == "" {
		c.Settlement.Mode = SettlementModePoll
	}
	if c.Settlement.FixedDelayMs <= 0 {
		c.Settlement.FixedDelayMs = 2000
	}
	if c.Settlement.PollInterval <= 0 {
		c.Settlement.PollInterval = 500
	}
	if c.Settlement.Timeout <= 0 {
		c.Settlement.Timeout = 30
	}
	if c.Settlement.IndexerGrace < 0 {
		c.Settlement.IndexerGrace = 0
	}
	if c.Tokens.USDCMint == "" {
		c.Tokens.USDCMint = USDCMintAddress
	}
	if c.Guard.DuplicateTTL <= 0 {
		c.Guard.DuplicateTTL = 600
	}
	if c.Guard.RateLimitRequests <= 0 {
		c.Guard.RateLimitRequests = 5
	}
	if c.Guard.RateLimitPeriod <= 0 {
		c.Guard.RateLimitPeriod = 60
	}
	if c.CORS.MaxAge <= 0 {
		c.CORS.MaxAge = 3600
	}
	if c.Admin.Username == "" {
		c.Admin.Username = "admin"
	}
}

// Settlement modes
const (
	SettlementModePoll  = "poll"
	SettlementModeFixed = "fixed"
)

// RequestTimeout pipeline budget as a duration
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeout) * time.Second
}

// overrideFromEnv Override configuration from environment
func overrideFromEnv(config *Config) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if proxies := os.Getenv("TRUSTED_PROXIES"); proxies != "" {
		config.Server.TrustedProxies = splitList(proxies)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		config.Log.Format = format
	}

	if dsn := os.Getenv("DATABASE_DSN"); dsn != "" {
		config.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		config.NATS.URL = natsURL
	}
	if natsTimeout := os.Getenv("NATS_TIMEOUT"); natsTimeout != "" {
		if t, err := strconv.Atoi(natsTimeout); err == nil {
			config.NATS.Timeout = t
		}
	}

	// The web client exported the RPC under its public name; accept both
	if rpcURL := os.Getenv("SOLANA_RPC_URL"); rpcURL != "" {
		config.Solana.RPCURL = rpcURL
	} else if rpcURL := os.Getenv("NEXT_PUBLIC_SOLANA_RPC_URL"); rpcURL != "" {
		config.Solana.RPCURL = rpcURL
	}

	if relayerURL := os.Getenv("RELAYER_API_URL"); relayerURL != "" {
		config.Relayer.BaseURL = relayerURL
	}
	if proverURL := os.Getenv("PROVER_BASE_URL"); proverURL != "" {
		config.Prover.BaseURL = proverURL
	}
	if mode := os.Getenv("SETTLEMENT_MODE"); mode != "" {
		config.Settlement.Mode = mode
	}

	if corsOrigins := os.Getenv("CORS_ALLOWED_ORIGINS"); corsOrigins != "" {
		config.CORS.AllowedOrigins = splitList(corsOrigins)
	}

	if username := os.Getenv("ADMIN_USERNAME"); username != "" {
		config.Admin.Username = username
	}
	if password := os.Getenv("ADMIN_PASSWORD"); password != "" {
		config.Admin.Password = password
	}
	if totpSecret := os.Getenv("ADMIN_TOTP_SECRET"); totpSecret != "" {
		config.Admin.TOTPSecret = totpSecret
	}
	if jwtSecret := os.Getenv("ADMIN_JWT_SECRET"); jwtSecret != "" {
		config.Admin.JWTSecret = jwtSecret
	}
	if allowedIPs := os.Getenv("ADMIN_ALLOWED_IPS"); allowedIPs != "" {
		config.Admin.AllowedIPs = splitList(allowedIPs)
	}
}

// splitList comma-separated env value -> trimmed non-empty items
func splitList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
