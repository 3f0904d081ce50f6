package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"clinicsync/internal/config"
	"clinicsync/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackupService(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	_, err := db.Enqueue(ctx, models.EntityCustomer, "c-1", 1, models.ChangeCreate)
	require.NoError(t, err)

	storagePath := filepath.Join(t.TempDir(), "backups")
	cfg := config.BackupConfig{
		Enabled:       true,
		StoragePath:   storagePath,
		RetentionDays: 1,
	}
	logger := zerolog.Nop()
	s := NewBackupService(db, cfg, &logger)

	var backupPath string
	t.Run("PerformBackup", func(t *testing.T) {
		backupPath, err = s.PerformBackup(ctx)
		require.NoError(t, err)

		files, err := os.ReadDir(storagePath)
		require.NoError(t, err)
		assert.Len(t, files, 1)

		// the snapshot is a usable store with the queue row in it
		snapshot, err := OpenSQLite(backupPath, models.SideLocal, &logger)
		require.NoError(t, err)
		defer snapshot.Close()
		count, err := snapshot.CountUnprocessed(ctx, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("CleanupOldBackups", func(t *testing.T) {
		oldFile := filepath.Join(storagePath, backupPrefix+"old.db")
		require.NoError(t, os.WriteFile(oldFile, []byte("old"), 0o644))
		foreign := filepath.Join(storagePath, "notes.txt")
		require.NoError(t, os.WriteFile(foreign, []byte("keep"), 0o644))

		oldTime := time.Now().AddDate(0, 0, -2)
		require.NoError(t, os.Chtimes(oldFile, oldTime, oldTime))
		require.NoError(t, os.Chtimes(foreign, oldTime, oldTime))

		s.CleanupOldBackups()

		assert.NoFileExists(t, oldFile)
		assert.FileExists(t, foreign)
		assert.FileExists(t, backupPath)
	})
}

func TestBackupService_Disabled(_ *testing.T) {
	logger := zerolog.Nop()
	s := NewBackupService(nil, config.BackupConfig{Enabled: false}, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Stop immediately
	s.Start(ctx)
	// Should just return
}

func TestBackupService_CloudSideRejected(t *testing.T) {
	logger := zerolog.Nop()
	cloud, err := OpenSQLite(filepath.Join(t.TempDir(), "cloud.db"), models.SideCloud, &logger)
	require.NoError(t, err)
	defer cloud.Close()

	s := NewBackupService(cloud, config.BackupConfig{Enabled: true, StoragePath: t.TempDir()}, &logger)
	_, err = s.PerformBackup(context.Background())
	assert.True(t, errors.Is(err, ErrBackupUnsupported))
}
