package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/config"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/identity"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/server"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/session"
	"github.com/jamestaylor0685/wfrp-group-advantage/internal/store"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath     = flag.String("config", "config/config.yaml", "path to configuration file")
	hashPassphrase = flag.String("hash-passphrase", "", "print the bcrypt hash of a passphrase and exit")
	version        = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	if *hashPassphrase != "" {
		hash, err := identity.HashPassphrase(*hashPassphrase)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to hash passphrase: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(hash)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting group advantage server",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("storage_driver", cfg.Storage.Driver),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	backend, err := store.Open(ctx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.Error(err))
	}
	defer func() {
		if closeErr := backend.Close(); closeErr != nil {
			logger.Warn("failed to close store", zap.Error(closeErr))
		}
	}()

	auth, err := identity.NewAuthenticator(cfg.Auth.OwnerPassphraseHash, logger)
	if err != nil {
		logger.Fatal("invalid owner passphrase hash", zap.Error(err))
	}

	catalog := advantage.DefaultCatalog()
	sessionMgr := session.NewManager(backend, catalog, session.Options{
		OwnerLabel:        cfg.Auth.OwnerLabel,
		NotificationLimit: cfg.Session.NotificationLimit,
		BufferSize:        cfg.Session.BroadcastBuffer,
	}, cfg.Session.IdleTTL, logger)
	logger.Info("session manager initialized",
		zap.Duration("idle_ttl", cfg.Session.IdleTTL),
		zap.Int("notification_limit", cfg.Session.NotificationLimit),
	)

	go sessionMgr.CleanupIdle(ctx, cfg.Session.CleanupInterval)

	gin.SetMode(gin.ReleaseMode)
	ws := cfg.Server.WebSocket
	api := server.New(sessionMgr, auth, catalog, server.WebSocketOptions{
		PingPeriod:     ws.PingPeriod,
		PongWait:       ws.PongWait,
		WriteWait:      ws.WriteWait,
		MaxMessageSize: ws.MaxMessageSize,
		SendBuffer:     ws.SendBuffer,
		AllowedOrigins: ws.AllowedOrigins,
	}, logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTP.Address,
		Handler:           api.Router(),
		ReadTimeout:       cfg.Server.HTTP.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.HTTP.ReadTimeout,
		WriteTimeout:      cfg.Server.HTTP.WriteTimeout,
	}

	health := server.NewHealth(logger)
	health.Check(ctx, backend)
	go health.Watch(ctx, backend, 15*time.Second)

	var grpcListener net.Listener
	if cfg.Server.GRPC.Address != "" {
		grpcListener, err = net.Listen("tcp", cfg.Server.GRPC.Address)
		if err != nil {
			logger.Fatal("failed to listen", zap.Error(err))
		}
		go func() {
			logger.Info("starting gRPC health server", zap.String("address", cfg.Server.GRPC.Address))
			if serveErr := health.GRPCServer().Serve(grpcListener); serveErr != nil {
				logger.Error("gRPC server error", zap.Error(serveErr))
			}
		}()
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("address", cfg.Server.HTTP.Address))
		if serveErr := httpServer.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			logger.Error("HTTP server error", zap.Error(serveErr))
			sigChan <- syscall.SIGTERM
		}
	}()

	logger.Info("group advantage server initialized",
		zap.String("version", version),
		zap.String("http_address", cfg.Server.HTTP.Address),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.Bool("owner_configured", auth.OwnerConfigured()),
	)

	sig := <-sigChan
	logger.Info("received shutdown signal", zap.String("signal", sig.String()))

	logger.Info("shutting down gracefully...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}

	sessionMgr.CloseAll()
	health.Shutdown()

	logger.Info("group advantage server stopped")
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
