package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"sismed/internal/backup"
	"sismed/internal/blob"
	"sismed/internal/domain"
	"sismed/internal/repository"

	"github.com/rs/zerolog"
)

const (
	// DefaultBackupName is used when the backup destination is a directory
	DefaultBackupName = "sismed_backup.db"

	// RestoredMessage is returned by a successful restore
	RestoredMessage = "data restored successfully"
)

// S3Opener returns a blob store for bucket
type S3Opener func(ctx context.Context, bucket string) (blob.Store, error)

// BackupConfig configures where backups can go and how they are sealed
type BackupConfig struct {
	// Local stores filesystem backups; keys are paths
	Local blob.Store
	// OpenS3 enables s3:// locations when set
	OpenS3 S3Opener
	// Sealer encrypts backups when it carries a passphrase
	Sealer *backup.Sealer
}

// BackupService copies the whole store to and from backup locations
type BackupService struct {
	repo     repository.Archiver
	cfg      BackupConfig
	eventBus *EventBus
	log      zerolog.Logger
}

// NewBackupService creates a new backup service
func NewBackupService(repo repository.Archiver, cfg BackupConfig, eventBus *EventBus, log zerolog.Logger) *BackupService {
	return &BackupService{
		repo:     repo,
		cfg:      cfg,
		eventBus: eventBus,
		log:      log.With().Str("component", "backup").Logger(),
	}
}

// Backup snapshots the store into dest and returns the resolved location.
// A directory dest receives DefaultBackupName.
func (s *BackupService) Backup(ctx context.Context, dest string) (string, error) {
	const op = "backup database"
	if dest == "" {
		return "", domain.ErrCancelled
	}

	target, err := blob.ParseTarget(dest)
	if err != nil {
		return "", domain.E(domain.KindInvalid, op, err)
	}
	if target.Driver == blob.DriverFilesystem {
		if st, err := os.Stat(target.Key); err == nil && st.IsDir() {
			target.Key = filepath.Join(target.Key, DefaultBackupName)
		}
		if abs, err := filepath.Abs(target.Key); err == nil {
			target.Key = abs
		}
	}

	store, err := s.storeFor(ctx, target)
	if err != nil {
		return "", domain.E(domain.KindIOFailure, op, err)
	}

	var buf bytes.Buffer
	if _, err := s.repo.Snapshot(ctx, &buf); err != nil {
		return "", s.failed(op, err)
	}

	payload, err := s.cfg.Sealer.Seal(buf.Bytes())
	if err != nil {
		return "", s.failed(op, domain.E(domain.KindIOFailure, op, err))
	}

	if _, err := store.Put(ctx, target.Key, bytes.NewReader(payload)); err != nil {
		return "", s.failed(op, domain.E(domain.KindIOFailure, op, err))
	}

	location := target.String()
	s.log.Info().
		Str("location", location).
		Int("bytes", len(payload)).
		Bool("sealed", s.cfg.Sealer.Enabled()).
		Msg("backup written")
	return location, nil
}

// Restore replaces the store with the backup found at src. Sealed backups
// are opened with the configured passphrase. Content that is not a SQLite
// database is rejected before the store is touched.
func (s *BackupService) Restore(ctx context.Context, src string) (string, error) {
	const op = "restore database"
	if src == "" {
		return "", domain.ErrCancelled
	}

	target, err := blob.ParseTarget(src)
	if err != nil {
		return "", domain.E(domain.KindInvalid, op, err)
	}

	store, err := s.storeFor(ctx, target)
	if err != nil {
		return "", domain.E(domain.KindIOFailure, op, err)
	}

	rc, err := store.Get(ctx, target.Key)
	if err != nil {
		return "", s.failed(op, domain.E(domain.KindIOFailure, op, err))
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return "", s.failed(op, domain.E(domain.KindIOFailure, op, err))
	}

	data, err = s.cfg.Sealer.Open(data)
	if err != nil {
		return "", s.failed(op, domain.E(domain.KindIOFailure, op, err))
	}
	if !backup.IsDatabase(data) {
		return "", s.failed(op, domain.E(domain.KindIOFailure, op, backup.ErrNotDatabase))
	}

	if err := s.repo.Replace(ctx, bytes.NewReader(data)); err != nil {
		return "", s.failed(op, err)
	}

	s.eventBus.Publish(Event{Type: EventStoreRestored, Payload: map[string]string{"source": target.String()}})
	s.log.Info().Str("source", target.String()).Msg("store restored")
	return RestoredMessage, nil
}

func (s *BackupService) storeFor(ctx context.Context, target blob.Target) (blob.Store, error) {
	switch target.Driver {
	case blob.DriverS3:
		if s.cfg.OpenS3 == nil {
			return nil, errors.New("s3 backups are not configured")
		}
		return s.cfg.OpenS3(ctx, target.Bucket)
	case blob.DriverFilesystem:
		if s.cfg.Local == nil {
			return nil, errors.New("local backups are not configured")
		}
		return s.cfg.Local, nil
	}
	return nil, fmt.Errorf("unsupported backup driver %q", target.Driver)
}

func (s *BackupService) failed(op string, err error) error {
	s.log.Warn().Err(err).Str("op", op).Msg("operation failed")
	return err
}
