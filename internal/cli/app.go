package cli

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/arxiv/relations/internal/config"
	"github.com/arxiv/relations/internal/infra/cache"
	"github.com/arxiv/relations/internal/infra/clock"
	"github.com/arxiv/relations/internal/infra/database"
	"github.com/arxiv/relations/internal/infra/repository"
	"github.com/arxiv/relations/internal/infra/storage"
	"github.com/arxiv/relations/internal/logging"
	"github.com/arxiv/relations/internal/service"
	"github.com/arxiv/relations/internal/usecase"
)

// app holds the long lived dependencies shared by the commands.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	db     *gorm.DB
	uow    *repository.UnitOfWork
	rdb    *redis.Client
}

func newApp(cfg config.Config) (*app, error) {
	logger, err := logging.New(cfg.Log.Development, cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	db, err := database.Open(cfg.Database.Driver, cfg.Database.DSN, logger)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		uow:    repository.NewUnitOfWork(db, clock.New(time.Now)),
	}, nil
}

func (a *app) relationCache() usecase.RelationCache {
	switch a.cfg.Cache.Driver {
	case "memcached":
		return cache.NewMemcachedCache(database.NewMemcached(a.cfg.Cache.MemcachedAddr), a.cfg.Cache.TTL, a.logger)
	case "memory":
		return cache.NewMemoryCache(a.cfg.Cache.TTL)
	default:
		return nil
	}
}

// signal connects to redis when configured. A nil service means events are
// disabled.
func (a *app) signal(ctx context.Context) (*service.SignalService, error) {
	if a.cfg.Redis.Addr == "" {
		return nil, nil
	}
	rdb, err := database.NewRedis(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	a.rdb = rdb
	return service.NewSignalService(rdb, a.logger), nil
}

func (a *app) backupService(ctx context.Context) (*service.BackupService, error) {
	s3cfg := a.cfg.Backup.S3
	if s3cfg.Bucket == "" {
		return nil, errors.New("backup.s3.bucket is not configured")
	}
	store, err := storage.NewS3Store(ctx, storage.S3Options{
		Endpoint:  s3cfg.Endpoint,
		Region:    s3cfg.Region,
		Bucket:    s3cfg.Bucket,
		AccessKey: s3cfg.AccessKey,
		SecretKey: s3cfg.SecretKey,
	})
	if err != nil {
		return nil, err
	}
	return service.NewBackupService(a.uow, store, a.cfg.Backup.Prefix, a.cfg.Backup.Keep, a.logger), nil
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.logger.Sync()
}
