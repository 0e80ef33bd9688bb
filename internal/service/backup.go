package service

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/arxiv/relations"
	"github.com/arxiv/relations/internal/domain"
	"github.com/arxiv/relations/internal/infra/storage"
)

// Snapshot streams every relation together with its activation flag.
type Snapshot interface {
	Each(ctx context.Context, fn func(domain.Relation, bool) error) error
}

// ObjectStore lists objects newest first.
type ObjectStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]storage.Object, error)
	Delete(ctx context.Context, key string) error
}

// BackupRecord is one line of a backup file.
type BackupRecord struct {
	Relation relations.Relation `json:"relation"`
	Active   bool               `json:"active"`
}

type BackupResult struct {
	Key     string
	Records int
	Deleted []string
}

// BackupService writes gzip compressed JSON lines of the whole store to an
// object store and keeps only the newest Keep backups.
type BackupService struct {
	source Snapshot
	store  ObjectStore
	prefix string
	keep   int
	now    func() time.Time
	logger *zap.Logger
}

func NewBackupService(source Snapshot, store ObjectStore, prefix string, keep int, logger *zap.Logger) *BackupService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackupService{
		source: source,
		store:  store,
		prefix: prefix,
		keep:   keep,
		now:    time.Now,
		logger: logger,
	}
}

func (s *BackupService) Run(ctx context.Context) (BackupResult, error) {
	ctx, span := tracer.Start(ctx, "Backup.Service.Run")
	defer span.End()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)

	count := 0
	err := s.source.Each(ctx, func(rel domain.Relation, active bool) error {
		count++
		return enc.Encode(BackupRecord{Relation: rel.ToWire(), Active: active})
	})
	if err != nil {
		err = errors.Wrap(err, "dump relations")
		span.RecordError(err)
		return BackupResult{}, err
	}
	if err := gz.Close(); err != nil {
		return BackupResult{}, errors.Wrap(err, "compress dump")
	}

	key := fmt.Sprintf("%sbackup-%s.jsonl.gz", s.prefix, s.now().UTC().Format("2006-01-02T15-04-05Z"))
	if err := s.store.Put(ctx, key, buf.Bytes(), "application/gzip"); err != nil {
		span.RecordError(err)
		return BackupResult{}, err
	}
	s.logger.Info("backup uploaded", zap.String("key", key), zap.Int("records", count))

	deleted, err := s.rotate(ctx)
	if err != nil {
		span.RecordError(err)
		return BackupResult{Key: key, Records: count}, err
	}
	return BackupResult{Key: key, Records: count, Deleted: deleted}, nil
}

func (s *BackupService) rotate(ctx context.Context) ([]string, error) {
	if s.keep <= 0 {
		return nil, nil
	}
	objects, err := s.store.List(ctx, s.prefix)
	if err != nil {
		return nil, err
	}
	if len(objects) <= s.keep {
		return nil, nil
	}

	var deleted []string
	for _, obj := range objects[s.keep:] {
		if err := s.store.Delete(ctx, obj.Key); err != nil {
			s.logger.Warn("failed to delete old backup", zap.String("key", obj.Key), zap.Error(err))
			continue
		}
		s.logger.Info("deleted old backup", zap.String("key", obj.Key))
		deleted = append(deleted, obj.Key)
	}
	return deleted, nil
}

// Schedule registers Run on c under the given cron spec.
func (s *BackupService) Schedule(c *cron.Cron, spec string) (cron.EntryID, error) {
	return c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
		defer cancel()
		result, err := s.Run(ctx)
		if err != nil {
			s.logger.Error("scheduled backup failed", zap.Error(err))
			return
		}
		s.logger.Info("scheduled backup completed",
			zap.String("key", result.Key),
			zap.Int("records", result.Records),
			zap.Int("rotated", len(result.Deleted)),
		)
	})
}
