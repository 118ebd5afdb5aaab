package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/yourusername/cardsync/internal/config"
	"github.com/yourusername/cardsync/internal/models"
	"github.com/yourusername/cardsync/internal/repository"
	"github.com/yourusername/cardsync/internal/service"
	"github.com/yourusername/cardsync/internal/syncer"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	logConfig := zap.NewDevelopmentConfig()
	logConfig.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	logConfig.EncoderConfig.TimeKey = "timestamp"
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := logConfig.Build()
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer logger.Sync()

	zap.ReplaceGlobals(logger)

	if err := godotenv.Load(); err != nil {
		zap.S().Debug("load .env file", zap.Error(err))
	}

	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		zap.S().Fatal("parse flags", zap.Error(err))
	}

	cfg, err := config.Load(flags)
	if err != nil {
		zap.S().Fatal("load config", zap.Error(err))
	}

	repo, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		zap.S().Error("open local database", zap.Error(err), zap.String("path", cfg.Database.Path))
		os.Exit(1)
	}
	defer repo.Close()

	if err = repo.Up(); err != nil {
		zap.S().Error("run migrations", zap.Error(err))
		os.Exit(1)
	}

	client := syncer.NewClient(cfg.Server.URL, cfg.Server.Token)
	engine := syncer.NewEngine(repo, client, cfg.Scheduler, syncer.Options{
		BatchSize:       cfg.Sync.BatchSize,
		RetentionDays:   cfg.Sync.RetentionDays,
		CheckpointEvery: cfg.Sync.CheckpointEvery,
		MaxRetries:      cfg.Sync.MaxRetries,
		OnProgress: func(p syncer.Progress) {
			zap.S().Debug("sync progress", zap.String("phase", string(p.Phase)), zap.Int("pending", p.Pending))
		},
	})

	svc := service.NewCardSync(repo, engine, cfg.Scheduler, cfg.Sync.CheckpointEvery)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	engine.Start(ctx)
	engine.RequestSync()

	if counts, err := svc.GetQueueCounts(ctx, models.Scope{}, 0); err != nil {
		zap.S().Warn("compute queue counts", zap.Error(err))
	} else {
		zap.S().Info("study queue",
			zap.Int("new", counts.New), zap.Int("learning", counts.Learning), zap.Int("review", counts.Review))
	}

	ticker := time.NewTicker(cfg.Sync.Interval)
	defer ticker.Stop()

	zap.S().Info("cardsync started",
		zap.String("server", cfg.Server.URL),
		zap.Duration("sync_interval", cfg.Sync.Interval))

	for {
		select {
		case <-ctx.Done():
			zap.S().Info("shutting down")
			return
		case <-ticker.C:
			engine.RequestSync()
		}
	}
}
