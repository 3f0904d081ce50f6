package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSyncInterval      = 30 * time.Second
	DefaultRetryInterval     = 5 * time.Minute
	DefaultItemTimeout       = 30 * time.Second
	DefaultShutdownTimeout   = time.Minute
	DefaultRetentionDays     = 7
	DefaultDeadLetterKey     = "sync:deadletter"
	DefaultPrometheusPort    = 9090
	DefaultHTTPPort          = 8080
	DefaultLogMaxSizeMB      = 100
	DefaultLogMaxBackups     = 5
	DefaultPostgresPort      = 5432
	DefaultPostgresSSLMode   = "disable"
	DefaultLocalDatabasePath = "data/clinic.db"
	DefaultBackupInterval    = 24 * time.Hour
	DefaultBackupPath        = "data/backups"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Account    AccountConfig    `yaml:"account"`
	Sync       SyncConfig       `yaml:"sync"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// AccountConfig names the tenant served by this process.
type AccountConfig struct {
	ID int64 `yaml:"id"`
}

type SyncConfig struct {
	EventBased EventBasedConfig `yaml:"event-based"`
	Merge      MergeConfig      `yaml:"merge"`
}

type EventBasedConfig struct {
	Enabled         *bool         `yaml:"enabled"`
	Interval        time.Duration `yaml:"interval"`
	RetryInterval   time.Duration `yaml:"retry-interval"`
	ItemTimeout     time.Duration `yaml:"item-timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown-timeout"`
	RetentionDays   int           `yaml:"retention-days"`
}

// IsEnabled reports the master switch; absent means enabled.
func (c EventBasedConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// Retention is the age after which processed queue items are deleted.
func (c EventBasedConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// MergeConfig is read for compatibility with existing deployments. The
// conflict resolver does not use it.
type MergeConfig struct {
	Enabled              bool `yaml:"enabled"`
	TimeThresholdMinutes int  `yaml:"time-threshold-minutes"`
}

type DatabaseConfig struct {
	Local       LocalDBConfig `yaml:"local"`
	Cloud       CloudDBConfig `yaml:"cloud"`
	AutoMigrate bool          `yaml:"auto_migrate"`
}

type LocalDBConfig struct {
	Path   string       `yaml:"path"`
	Debug  bool         `yaml:"debug"`
	Backup BackupConfig `yaml:"backup"`
}

// BackupConfig controls periodic snapshots of the local sqlite store.
type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type CloudDBConfig struct {
	DSN            string `yaml:"dsn"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MaxConnections int    `yaml:"max_connections"`
	Debug          bool   `yaml:"debug"`
}

// ConnString returns DSN as is or builds a postgres URL from the parts.
func (c CloudDBConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

type RedisConfig struct {
	Address       string `yaml:"address"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	PoolSize      int    `yaml:"pool_size"`
	DeadLetterKey string `yaml:"dead_letter_key"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	HeaderExtra  string         `yaml:"header_extra"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Extra       string   `yaml:"extra"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

func Load(configPath string) (*Config, error) {
	// Загружаем .env файл если существует
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Account.ID <= 0 {
		return errors.New("account.id is required")
	}

	if c.Database.Local.Path == "" {
		return errors.New("database.local.path is required")
	}

	if c.Database.Cloud.DSN == "" && c.Database.Cloud.Host == "" {
		return errors.New("database.cloud.dsn or database.cloud.host is required")
	}

	if c.Sync.EventBased.Interval < time.Second {
		return fmt.Errorf("sync.event-based.interval must be at least 1s, got %s", c.Sync.EventBased.Interval)
	}

	if c.Sync.EventBased.RetentionDays < 1 {
		return fmt.Errorf("sync.event-based.retention-days must be positive, got %d", c.Sync.EventBased.RetentionDays)
	}

	return nil
}

func (c *Config) applyDefaults() {
	eb := &c.Sync.EventBased
	if eb.Interval == 0 {
		eb.Interval = DefaultSyncInterval
	}
	if eb.RetryInterval == 0 {
		eb.RetryInterval = DefaultRetryInterval
	}
	if eb.ItemTimeout == 0 {
		eb.ItemTimeout = DefaultItemTimeout
	}
	if eb.ShutdownTimeout == 0 {
		eb.ShutdownTimeout = DefaultShutdownTimeout
	}
	if eb.RetentionDays == 0 {
		eb.RetentionDays = DefaultRetentionDays
	}

	if c.Database.Local.Path == "" {
		c.Database.Local.Path = DefaultLocalDatabasePath
	}
	if b := &c.Database.Local.Backup; b.Enabled {
		if b.Interval == 0 {
			b.Interval = DefaultBackupInterval
		}
		if b.StoragePath == "" {
			b.StoragePath = DefaultBackupPath
		}
	}
	if c.Database.Cloud.Port == 0 {
		c.Database.Cloud.Port = DefaultPostgresPort
	}
	if c.Database.Cloud.SSLMode == "" {
		c.Database.Cloud.SSLMode = DefaultPostgresSSLMode
	}

	if c.Redis.DeadLetterKey == "" {
		c.Redis.DeadLetterKey = DefaultDeadLetterKey
	}

	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = DefaultPrometheusPort
	}

	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = DefaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = DefaultLogMaxBackups
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = DefaultHTTPPort
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.Auth.HeaderExtra == "" {
		c.API.Auth.HeaderExtra = "x-api-extra"
	}
}
