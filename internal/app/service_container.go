package app

import (
	"fmt"
	"time"

	"privatesend-backend/internal/clients"
	"privatesend-backend/internal/config"
	"privatesend-backend/internal/db"
	"privatesend-backend/internal/handlers"
	"privatesend-backend/internal/middleware"
	"privatesend-backend/internal/repository"
	"privatesend-backend/internal/services"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ServiceContainer wires every component of the server
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Database (nil when the ledger is kept in memory)
	DB *gorm.DB

	// Repositories
	PrivateSendRepo repository.PrivateSendRepository

	// Clients
	RelayerClient   *clients.RelayerClient
	ProverClient    *clients.ProverClient
	SolanaRPCClient *clients.SolanaRPCClient
	NATSClient      *clients.NATSClient

	// Core Services
	SettlementWaiter   services.SettlementWaiter
	WithdrawPreparer   *services.WithdrawPreparer
	PrivateSendService *services.PrivateSendService
	DuplicateGuard     *services.DuplicateGuard
	RateLimiter        *services.SenderRateLimiter

	// Push & Monitoring
	WebSocketPushService *services.WebSocketPushService
	MonitoringService    *services.MonitoringService

	// HTTP
	PrivateSendHandler  *handlers.PrivateSendHandler
	AdminAuthHandler    *handlers.AdminAuthHandler
	HealthHandler       *handlers.HealthHandler
	AdminAuthMiddleware *middleware.AdminAuthMiddleware
	LocalhostOnly       *middleware.LocalhostOnly
}

// NewServiceContainer builds the container from a loaded configuration
func NewServiceContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	logger.Info("🚀 Initializing Service Container...")

	c := &ServiceContainer{
		Config: cfg,
		Logger: logger,
	}

	// 1. Storage
	if err := c.initRepositories(); err != nil {
		return nil, fmt.Errorf("failed to initialize repositories: %w", err)
	}

	// 2. Outbound clients
	c.initClients()

	// 3. Event publishing is optional
	if err := c.initEventServices(); err != nil {
		logger.Warnf("⚠️ Event services initialization skipped or failed: %v", err)
	}

	// 4. Pipeline
	c.initCoreServices()

	// 5. HTTP layer
	c.initHandlers()

	logger.Info("✅ Service Container initialized successfully")
	return c, nil
}

// initRepositories postgres when a DSN is configured, memory otherwise
func (c *ServiceContainer) initRepositories() error {
	if c.Config.Database.DSN == "" {
		c.Logger.Warn("⚠️ No database configured, private-send ledger is kept in memory")
		c.PrivateSendRepo = repository.NewMemoryPrivateSendRepository()
		return nil
	}

	database, err := db.InitDB(c.Config.Database, c.Logger)
	if err != nil {
		return err
	}
	c.DB = database
	c.PrivateSendRepo = repository.NewPrivateSendRepository(database)

	c.Logger.Info("✅ Repositories initialized")
	return nil
}

func (c *ServiceContainer) initClients() {
	cfg := c.Config
	c.RelayerClient = clients.NewRelayerClient(cfg.Relayer.BaseURL, time.Duration(cfg.Relayer.Timeout)*time.Second, c.Logger)
	c.ProverClient = clients.NewProverClient(cfg.Prover.BaseURL, time.Duration(cfg.Prover.Timeout)*time.Second, c.Logger)
	c.SolanaRPCClient = clients.NewSolanaRPCClient(cfg.Solana.RPCURL, c.Logger)

	c.Logger.WithFields(logrus.Fields{
		"relayer":    cfg.Relayer.BaseURL,
		"prover":     cfg.Prover.BaseURL,
		"solana_rpc": c.SolanaRPCClient.Endpoint(),
	}).Info("✅ Clients initialized")
}

// initEventServices NATS
func (c *ServiceContainer) initEventServices() error {
	if c.Config.NATS.URL == "" {
		return fmt.Errorf("NATS not configured")
	}

	c.Logger.Info("🔌 Connecting to NATS...")
	natsClient, err := clients.NewNATSClient(
		c.Config.NATS.URL,
		c.Config.NATS.SubjectPrefix,
		time.Duration(c.Config.NATS.Timeout)*time.Second,
		c.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to initialize NATS client: %w", err)
	}
	c.NATSClient = natsClient
	return nil
}

func (c *ServiceContainer) initCoreServices() {
	cfg := c.Config

	c.WebSocketPushService = services.NewWebSocketPushService(c.Logger)

	observers := services.StageObservers{
		services.NewLedgerObserver(c.PrivateSendRepo, c.Logger),
		services.MetricsObserver{},
		c.WebSocketPushService,
	}
	if c.NATSClient != nil {
		observers = append(observers, services.NewPublishObserver(c.NATSClient, c.Logger))
	}

	c.SettlementWaiter = services.NewSettlementWaiter(cfg.Settlement, cfg.Solana.Commitment, c.SolanaRPCClient, c.Logger)
	c.WithdrawPreparer = services.NewWithdrawPreparer(c.ProverClient, cfg.Tokens.USDCMint, c.Logger)
	c.PrivateSendService = services.NewPrivateSendService(
		c.RelayerClient,
		c.SettlementWaiter,
		c.WithdrawPreparer,
		services.NewEphemeralSigner,
		observers,
		cfg.Tokens.USDCMint,
		c.Logger,
	)

	c.DuplicateGuard = services.NewDuplicateGuard(time.Duration(cfg.Guard.DuplicateTTL) * time.Second)
	c.RateLimiter = services.NewSenderRateLimiter(cfg.Guard.RateLimitRequests, time.Duration(cfg.Guard.RateLimitPeriod)*time.Second)

	c.MonitoringService = services.NewMonitoringService(c.DB, c.SolanaRPCClient, c.Logger)
	c.MonitoringService.Start()

	c.Logger.Info("✅ Core Services initialized")
}

func (c *ServiceContainer) initHandlers() {
	c.PrivateSendHandler = handlers.NewPrivateSendHandler(
		c.PrivateSendService,
		c.PrivateSendRepo,
		c.DuplicateGuard,
		c.RateLimiter,
		c.WebSocketPushService,
		c.Config.RequestTimeout(),
		c.Logger,
	)
	c.AdminAuthHandler = handlers.NewAdminAuthHandler(c.Config.Admin, c.Logger)
	c.HealthHandler = handlers.NewHealthHandler(c.DB, c.SolanaRPCClient)
	c.AdminAuthMiddleware = middleware.NewAdminAuthMiddleware(c.AdminAuthHandler.JWTSecret(), c.Logger)
	c.LocalhostOnly = middleware.NewLocalhostOnly(c.Logger, c.Config.Admin.AllowedIPs)
}

// Shutdown stops background work and closes connections
func (c *ServiceContainer) Shutdown() {
	c.Logger.Info("🛑 Shutting down services...")

	if c.MonitoringService != nil {
		c.MonitoringService.Stop()
	}
	if c.WebSocketPushService != nil {
		c.WebSocketPushService.Stop()
	}
	if c.DuplicateGuard != nil {
		c.DuplicateGuard.Close()
	}
	if c.RateLimiter != nil {
		c.RateLimiter.Close()
	}
	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
}
