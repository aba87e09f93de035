package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"salonbook/internal/config"

	"github.com/rs/zerolog"
)

const (
	backupPrefix          = "ledger_"
	defaultBackupInterval = 24 * time.Hour
)

// BackupService snapshots the booking ledger with VACUUM INTO on a schedule
// and applies the retention window to snapshots and finished sync tasks.
type BackupService struct {
	db       *DB
	config   config.BackupConfig
	interval time.Duration
	logger   *zerolog.Logger
}

func NewBackupService(db *DB, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	s := &BackupService{db: db, config: cfg, interval: defaultBackupInterval, logger: logger}
	if cfg.Schedule != "" {
		if d, err := time.ParseDuration(cfg.Schedule); err == nil && d > 0 {
			s.interval = d
		} else {
			logger.Warn().Str("schedule", cfg.Schedule).Msg("Invalid backup schedule, using 24h")
		}
	}
	return s
}

// Start takes a snapshot right away and then every interval until ctx is done.
func (s *BackupService) Start(ctx context.Context) {
	if !s.config.Enabled {
		s.logger.Info().Msg("Backup service is disabled")
		return
	}
	s.logger.Info().Dur("interval", s.interval).Str("dir", s.config.StoragePath).Msg("Backup service started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		if _, err := s.PerformBackup(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error().Err(err).Msg("Ledger backup failed")
		}
		s.Cleanup(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// PerformBackup writes a consistent copy of the ledger and returns its path.
func (s *BackupService) PerformBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.config.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	backupPath := filepath.Join(s.config.StoragePath,
		backupPrefix+time.Now().Format("20060102_150405.000")+".db")

	started := time.Now()
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", backupPath); err != nil {
		return "", fmt.Errorf("vacuum into %s: %w", backupPath, err)
	}

	s.logger.Info().Str("path", backupPath).Dur("took", time.Since(started)).Msg("Ledger backup written")
	return backupPath, nil
}

// Cleanup drops snapshots and completed sync tasks older than RetentionDays.
// Zero retention keeps everything.
func (s *BackupService) Cleanup(ctx context.Context) {
	if s.config.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)

	removed := s.removeSnapshotsBefore(cutoff)

	pruned, err := s.db.PruneSyncTasks(ctx, cutoff)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to prune sync queue")
	}

	if removed > 0 || pruned > 0 {
		s.logger.Info().Int("snapshots", removed).Int64("sync_tasks", pruned).Msg("Retention cleanup done")
	}
}

func (s *BackupService) removeSnapshotsBefore(cutoff time.Time) int {
	entries, err := os.ReadDir(s.config.StoragePath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Error().Err(err).Msg("Failed to read backup directory")
		}
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), backupPrefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.config.StoragePath, entry.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("Failed to delete old backup")
			continue
		}
		removed++
	}
	return removed
}
