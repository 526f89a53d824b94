package services

import (
	"context"
	"sync"
	"time"

	"privatesend-backend/internal/metrics"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RPCHealthChecker reports Solana node health
type RPCHealthChecker interface {
	Health(ctx context.Context) (string, error)
}

// MonitoringService periodically refreshes Prometheus gauges
type MonitoringService struct {
	db               *gorm.DB
	rpc              RPCHealthChecker
	logger           *logrus.Logger
	stopCh           chan struct{}
	wg               sync.WaitGroup
	dbCheckInterval  time.Duration
	rpcCheckInterval time.Duration
}

// NewMonitoringService db or rpc may be nil; the matching monitor is skipped
func NewMonitoringService(db *gorm.DB, rpc RPCHealthChecker, logger *logrus.Logger) *MonitoringService {
	return &MonitoringService{
		db:               db,
		rpc:              rpc,
		logger:           logger,
		stopCh:           make(chan struct{}),
		dbCheckInterval:  10 * time.Second,
		rpcCheckInterval: 60 * time.Second,
	}
}

// Start launches the monitors
func (m *MonitoringService) Start() {
	m.logger.Info("🚀 Starting monitoring service...")

	if m.db != nil {
		m.wg.Add(1)
		go m.loop(m.dbCheckInterval, m.updateDatabaseMetrics)
	}
	if m.rpc != nil {
		m.wg.Add(1)
		go m.loop(m.rpcCheckInterval, m.updateRPCHealth)
	}

	m.logger.Info("✅ Monitoring service started")
}

// Stop stops the monitors and waits for them
func (m *MonitoringService) Stop() {
	m.logger.Info("🛑 Stopping monitoring service...")
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("✅ Monitoring service stopped")
}

func (m *MonitoringService) loop(interval time.Duration, update func()) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	update()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			update()
		}
	}
}

func (m *MonitoringService) updateDatabaseMetrics() {
	sqlDB, err := m.db.DB()
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return
	}

	stats := sqlDB.Stats()
	metrics.DBConnectionPoolSize.Set(float64(stats.MaxOpenConnections))
	metrics.DBConnectionActive.Set(float64(stats.InUse))
	metrics.DBConnectionIdle.Set(float64(stats.Idle))

	if err := sqlDB.Ping(); err != nil {
		metrics.DBConnectionStatus.Set(0)
	} else {
		metrics.DBConnectionStatus.Set(1)
	}
}

func (m *MonitoringService) updateRPCHealth() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	health, err := m.rpc.Health(ctx)
	if err != nil || health != "ok" {
		m.logger.WithError(err).WithField("health", health).Warn("⚠️ [Monitor] Solana RPC unhealthy")
		metrics.SolanaRPCStatus.Set(0)
		return
	}
	metrics.SolanaRPCStatus.Set(1)
}
