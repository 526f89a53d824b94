package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"privatesend-backend/internal/app"
	"privatesend-backend/internal/config"
	"privatesend-backend/internal/router"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func newLogger(cfg config.LogConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"})
	}
	return logger
}

func main() {
	configPath := flag.String("config", "", "config file (default config.yaml, config.local.yaml when present)")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}
	cfg := config.AppConfig

	logger := newLogger(cfg.Log)
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	container, err := app.NewServiceContainer(cfg, logger)
	if err != nil {
		logger.Fatalf("❌ Failed to initialize services: %v", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: router.SetupRouter(container),
		// A private send may take the whole pipeline budget
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.RequestTimeout() + 10*time.Second,
	}

	go func() {
		logger.Infof("🌐 Private-send server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("❌ Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutdown signal received")

	// In-flight sends get their full budget; an abandoned deposit would be stranded
	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout()+5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Errorf("❌ Server shutdown error: %v", err)
	}

	container.Shutdown()
	logger.Info("👋 Server stopped")
}
