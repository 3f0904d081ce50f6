package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	yamlContent := `
account:
  id: 7
sync:
  event-based:
    enabled: false
    item-timeout: 10s
  merge:
    enabled: true
    time-threshold-minutes: 15
database:
  local:
    path: "local.db"
  cloud:
    host: "${CLINICSYNC_TEST_CLOUD_HOST}"
    user: sync
    password: "p@ss word"
    dbname: clinics
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	t.Setenv("CLINICSYNC_TEST_CLOUD_HOST", "cloud.example.org")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Account.ID != 7 {
		t.Errorf("expected account id 7, got %d", cfg.Account.ID)
	}
	if cfg.Sync.EventBased.IsEnabled() {
		t.Errorf("expected event based sync to be disabled")
	}
	if cfg.Sync.EventBased.ItemTimeout != 10*time.Second {
		t.Errorf("expected item timeout 10s, got %s", cfg.Sync.EventBased.ItemTimeout)
	}
	if cfg.Sync.EventBased.Interval != DefaultSyncInterval {
		t.Errorf("expected default interval, got %s", cfg.Sync.EventBased.Interval)
	}
	if cfg.Sync.EventBased.Retention() != 7*24*time.Hour {
		t.Errorf("expected 7 day retention, got %s", cfg.Sync.EventBased.Retention())
	}
	if !cfg.Sync.Merge.Enabled || cfg.Sync.Merge.TimeThresholdMinutes != 15 {
		t.Errorf("merge settings not loaded: %+v", cfg.Sync.Merge)
	}
	if cfg.Database.Cloud.Host != "cloud.example.org" {
		t.Errorf("expected env expansion, got %q", cfg.Database.Cloud.Host)
	}
	if cfg.Redis.DeadLetterKey != DefaultDeadLetterKey {
		t.Errorf("expected default dead letter key, got %q", cfg.Redis.DeadLetterKey)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestEventBasedEnabledByDefault(t *testing.T) {
	var cfg EventBasedConfig
	if !cfg.IsEnabled() {
		t.Errorf("expected sync to be enabled when the flag is absent")
	}
}

func TestConnString(t *testing.T) {
	cfg := CloudDBConfig{Host: "db", Port: 5432, User: "sync", Password: "p@ss", DBName: "clinics", SSLMode: "require"}
	want := "postgres://sync:p%40ss@db:5432/clinics?sslmode=require"
	if got := cfg.ConnString(); got != want {
		t.Errorf("expected %s, got %s", want, got)
	}

	cfg.DSN = "host=db user=sync"
	if got := cfg.ConnString(); got != "host=db user=sync" {
		t.Errorf("expected dsn passthrough, got %s", got)
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		return Config{
			Account: AccountConfig{ID: 1},
			Sync: SyncConfig{EventBased: EventBasedConfig{
				Interval:      time.Minute,
				RetentionDays: 7,
			}},
			Database: DatabaseConfig{
				Local: LocalDBConfig{Path: "path"},
				Cloud: CloudDBConfig{DSN: "postgres://localhost/clinics"},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing account id",
			mutate:  func(c *Config) { c.Account.ID = 0 },
			wantErr: true,
		},
		{
			name:    "missing local path",
			mutate:  func(c *Config) { c.Database.Local.Path = "" },
			wantErr: true,
		},
		{
			name:    "missing cloud connection",
			mutate:  func(c *Config) { c.Database.Cloud = CloudDBConfig{} },
			wantErr: true,
		},
		{
			name:    "interval too short",
			mutate:  func(c *Config) { c.Sync.EventBased.Interval = time.Millisecond },
			wantErr: true,
		},
		{
			name:    "zero retention",
			mutate:  func(c *Config) { c.Sync.EventBased.RetentionDays = 0 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBackupDefaults(t *testing.T) {
	var cfg Config
	cfg.Database.Local.Backup.Enabled = true
	cfg.applyDefaults()

	if cfg.Database.Local.Backup.Interval != DefaultBackupInterval {
		t.Errorf("expected default backup interval, got %s", cfg.Database.Local.Backup.Interval)
	}
	if cfg.Database.Local.Backup.StoragePath != DefaultBackupPath {
		t.Errorf("expected default backup path, got %q", cfg.Database.Local.Backup.StoragePath)
	}

	var disabled Config
	disabled.applyDefaults()
	if disabled.Database.Local.Backup.StoragePath != "" {
		t.Errorf("disabled backup should keep empty path, got %q", disabled.Database.Local.Backup.StoragePath)
	}
}
