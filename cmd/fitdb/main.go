package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"fitdb/internal/app"
	"fitdb/pkg/config"
	"fitdb/pkg/logger"
)

// build metadata - set via ldflags during release
var (
	version = "dev"
	commit  = "none"
)

func main() {
	_ = godotenv.Load(".env")
	addrVal, dbVal, cfgVal, setFlags := config.ParseCommandFlags()

	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])
	cfg, envUsed := config.LoadEffective(cfgPath)

	logger.Init(cfg.Logging.Level)
	defer logger.Sync()

	// explicit flags win over config/env
	addr := cfg.Addr()
	if setFlags["addr"] {
		addr = addrVal
	}
	dbPath := dbVal
	if !setFlags["db"] && cfg.Storage.DBPath != "" {
		dbPath = cfg.Storage.DBPath
	}

	logger.Log.Info("starting",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("addr", addr),
		zap.String("db", dbPath),
		zap.Bool("env_overrides", envUsed))

	a, err := app.New(cfg, dbPath, addr)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.Run(ctx); err != nil {
		logger.Log.Error("server_exit", zap.Error(err))
		logger.Sync()
		log.Fatalf("server exit: %v", err)
	}
	logger.Log.Info("stopped")
}
