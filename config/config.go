package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	ServerConfig      ServerConfig      `json:"server"`
	DatabaseConfig    DatabaseConfig    `json:"database"`
	RedisConfig       RedisConfig       `json:"redis"`
	SyncConfig        SyncConfig        `json:"sync"`
	ReplicationConfig ReplicationConfig `json:"replication"`
	LoggingConfig     LoggingConfig     `json:"logging"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int    `json:"port"`
	Host            string `json:"host"`
	AllowedOrigins  string `json:"allowed_origins"` // CORS allowed origins
	ReadTimeout     int    `json:"read_timeout"`    // Seconds
	WriteTimeout    int    `json:"write_timeout"`   // Seconds
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Database string `json:"database"`
	SSLMode  string `json:"ssl_mode"`
}

// RedisConfig holds the shared store connection settings
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// SyncConfig holds order synchronization settings
type SyncConfig struct {
	Namespace    string        `json:"namespace"`
	InstanceMode string        `json:"instance_mode"` // "local" or "cloud"
	Interval     time.Duration `json:"interval"`
}

// IsCloud reports whether this instance runs in cloud mode: it mirrors
// remote state and never watches the local filesystem for changes.
func (c SyncConfig) IsCloud() bool {
	return c.InstanceMode == "cloud"
}

// ReplicationConfig holds file replication settings
type ReplicationConfig struct {
	DataPath           string        `json:"data_path"`
	ReconcileInterval  time.Duration `json:"reconcile_interval"`
	CleanupInterval    time.Duration `json:"cleanup_interval"`
	RetentionDays      int           `json:"retention_days"`
	AuthoritativeLocal bool          `json:"authoritative_local"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // DEBUG, INFO, WARN, ERROR
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

func Load() (*Config, error) {
	// First try to load base config from file
	cfg, err := loadFromFile("config.json")
	if err != nil {
		// If no config file, start with empty config
		cfg = &Config{}
	}

	// Apply environment variable overrides (these take precedence)
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the daemon cannot run with.
func (c *Config) Validate() error {
	if c.SyncConfig.InstanceMode != "local" && c.SyncConfig.InstanceMode != "cloud" {
		return fmt.Errorf("invalid instance mode %q, expected local or cloud", c.SyncConfig.InstanceMode)
	}
	if c.SyncConfig.Namespace == "" {
		return fmt.Errorf("sync namespace must not be empty")
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	// Server config
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", defaultStr(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", defaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", defaultStr(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Database = getEnvOrDefault("DB_NAME", defaultStr(cfg.DatabaseConfig.Database, "orders"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSL_MODE", defaultStr(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis config
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", defaultStr(cfg.RedisConfig.Address, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", defaultInt(cfg.RedisConfig.PoolSize, 10))

	// Sync config
	cfg.SyncConfig.Namespace = getEnvOrDefault("SYNC_NAMESPACE", defaultStr(cfg.SyncConfig.Namespace, "jailbird"))
	cfg.SyncConfig.InstanceMode = getEnvOrDefault("INSTANCE_MODE", defaultStr(cfg.SyncConfig.InstanceMode, "local"))
	cfg.SyncConfig.Interval = getEnvDurationOrDefault("SYNC_INTERVAL", defaultDur(cfg.SyncConfig.Interval, 5*time.Second))

	// Replication config
	cfg.ReplicationConfig.DataPath = getEnvOrDefault("DATA_PATH", defaultStr(cfg.ReplicationConfig.DataPath, "data"))
	cfg.ReplicationConfig.ReconcileInterval = getEnvDurationOrDefault("RECONCILE_INTERVAL", defaultDur(cfg.ReplicationConfig.ReconcileInterval, 5*time.Minute))
	cfg.ReplicationConfig.CleanupInterval = getEnvDurationOrDefault("CLEANUP_INTERVAL", defaultDur(cfg.ReplicationConfig.CleanupInterval, time.Hour))
	cfg.ReplicationConfig.RetentionDays = getEnvIntOrDefault("RETENTION_DAYS", defaultInt(cfg.ReplicationConfig.RetentionDays, 7))
	cfg.ReplicationConfig.AuthoritativeLocal = getEnvOrDefault("AUTHORITATIVE_LOCAL", boolStr(cfg.ReplicationConfig.AuthoritativeLocal)) == "true"

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "INFO")
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", "stdout")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "true") == "true"
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	return &config, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func defaultStr(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func defaultInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func defaultDur(v, fallback time.Duration) time.Duration {
	if v != 0 {
		return v
	}
	return fallback
}

func boolStr(v bool) string {
	if v {
		return "true"
	}
	return "false"
}

// GenerateSampleConfig creates a sample configuration file
func GenerateSampleConfig(filename string) error {
	config := Config{
		ServerConfig: ServerConfig{
			Port:            8080,
			Host:            "0.0.0.0",
			AllowedOrigins:  "*",
			ReadTimeout:     30,
			WriteTimeout:    30,
			ShutdownTimeout: 10,
		},
		DatabaseConfig: DatabaseConfig{
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "",
			Database: "orders",
			SSLMode:  "disable",
		},
		RedisConfig: RedisConfig{
			Address:  "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
		},
		SyncConfig: SyncConfig{
			Namespace:    "jailbird",
			InstanceMode: "local",
			Interval:     5 * time.Second,
		},
		ReplicationConfig: ReplicationConfig{
			DataPath:          "data",
			ReconcileInterval: 5 * time.Minute,
			CleanupInterval:   time.Hour,
			RetentionDays:     7,
		},
		LoggingConfig: LoggingConfig{
			Level:      "INFO",
			Output:     "stdout",
			JSONFormat: true,
		},
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
