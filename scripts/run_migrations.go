package main

import (
	"context"
	"database/sql"
	"os"

	_ "github.com/lib/pq"
	"github.com/safar/dropshop/internal/config"
	"github.com/safar/dropshop/internal/logger"
	"github.com/safar/dropshop/migrations"
	"go.uber.org/zap"
)

func main() {
	if len(os.Args) < 2 {
		logger.Fatal("Usage: go run scripts/run_migrations.go [up|down]")
	}

	direction := os.Args[1]

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	if _, err := logger.Init(cfg.Log.Level, cfg.Log.Encoding); err != nil {
		logger.Fatal("init logger", zap.Error(err))
	}
	defer logger.Sync()

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		logger.Fatal("ping database", zap.Error(err))
	}

	files, err := migrations.Run(ctx, db, direction)
	if err != nil {
		logger.Fatal("run migrations", zap.String("direction", direction), zap.Error(err))
	}

	for _, f := range files {
		logger.Info("applied migration", zap.String("file", f))
	}
	logger.Info("migrations complete", zap.Int("count", len(files)), zap.String("direction", direction))
}
