package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	ServerConfig      ServerConfig      `json:"server"`
	DatabaseConfig    DatabaseConfig    `json:"database"`
	RedisConfig       RedisConfig       `json:"redis"`
	VaultConfig       VaultConfig       `json:"vault"`
	CredentialsConfig CredentialsConfig `json:"credentials"`
	LoggingConfig     LoggingConfig     `json:"logging"`
	WorkerConfig      WorkerConfig      `json:"worker"`
	ArbConfig         ArbConfig         `json:"arbitrage"`
	MarketConfig      MarketConfig      `json:"market"`
}

type ServerConfig struct {
	Host            string `json:"host"`
	Port            int    `json:"port"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`     // seconds
	WriteTimeout    int    `json:"write_timeout"`    // seconds
	ShutdownTimeout int    `json:"shutdown_timeout"` // seconds
}

type DatabaseConfig struct {
	// URL wins over the discrete fields when set
	URL      string `json:"url"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	SSLMode  string `json:"ssl_mode"`
}

// DSN assembles the pgx connection string
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type VaultConfig struct {
	Enabled   bool   `json:"enabled"`
	Address   string `json:"address"`
	Token     string `json:"token"`
	MountPath string `json:"mount_path"`
}

type CredentialsConfig struct {
	// EncryptionKey protects API secrets at rest; never logged
	EncryptionKey string `json:"-"`
}

type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Pretty bool   `json:"pretty"` // console output instead of JSON
}

type WorkerConfig struct {
	TickSeconds       int    `json:"tick_seconds"`
	RotationThreshold int    `json:"rotation_threshold"`
	RotationWindow    int    `json:"rotation_window"`
	ParallelBatch     int    `json:"parallel_batch"`
	UniversalSource   string `json:"universal_source"` // venue all candle fetches route through
}

// Tick returns the scheduler cadence
func (w WorkerConfig) Tick() time.Duration {
	return time.Duration(w.TickSeconds) * time.Second
}

type ArbConfig struct {
	MaxSlippagePercent float64 `json:"max_slippage_percent"`
	// CooldownOverridesMs replaces the built-in per-venue cooldown,
	// keyed by exchange name
	CooldownOverridesMs map[string]int `json:"cooldown_overrides_ms"`
}

// CooldownOverrides converts the millisecond map to durations
func (a ArbConfig) CooldownOverrides() map[string]time.Duration {
	if len(a.CooldownOverridesMs) == 0 {
		return nil
	}
	out := make(map[string]time.Duration, len(a.CooldownOverridesMs))
	for venue, ms := range a.CooldownOverridesMs {
		out[venue] = time.Duration(ms) * time.Millisecond
	}
	return out
}

type MarketConfig struct {
	// BaseURLOverrides points adapters at mirrors or test endpoints,
	// keyed by exchange name
	BaseURLOverrides map[string]string `json:"base_url_overrides"`
}

func Load() (*Config, error) {
	cfg, err := loadFromFile("config.json")
	if err != nil {
		cfg = &Config{}
	}
	applyEnvOverrides(cfg)

	if cfg.CredentialsConfig.EncryptionKey == "" {
		return nil, fmt.Errorf("CREDENTIALS_ENCRYPTION_KEY is required")
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variables on top of the file config.
// Exchange API keys are never read here: they are per-user and live
// encrypted in the database.
func applyEnvOverrides(cfg *Config) {
	cfg.ServerConfig.Host = getEnvOrDefault("WEB_HOST", "0.0.0.0")
	cfg.ServerConfig.Port = getEnvIntOrDefault("WEB_PORT", 8080)
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", "*")
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", 30)
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", 30)
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10)

	cfg.DatabaseConfig.URL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseConfig.URL)
	cfg.DatabaseConfig.Host = getEnvOrDefault("DATABASE_HOST", "localhost")
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DATABASE_PORT", 5432)
	cfg.DatabaseConfig.User = getEnvOrDefault("DATABASE_USER", "postgres")
	cfg.DatabaseConfig.Password = getEnvOrDefault("DATABASE_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.Name = getEnvOrDefault("DATABASE_NAME", "momentum_arb")
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DATABASE_SSL_MODE", "disable")

	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "false") == "true"
	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", cfg.RedisConfig.Address)
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)
	if !cfg.RedisConfig.Enabled {
		cfg.RedisConfig.Address = ""
	}

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")

	cfg.CredentialsConfig.EncryptionKey = getEnvOrDefault("CREDENTIALS_ENCRYPTION_KEY", cfg.CredentialsConfig.EncryptionKey)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.LoggingConfig.Pretty = getEnvOrDefault("LOG_PRETTY", "false") == "true"

	cfg.WorkerConfig.TickSeconds = getEnvIntOrDefault("WORKER_TICK_SECONDS", 60)
	cfg.WorkerConfig.RotationThreshold = getEnvIntOrDefault("ROTATION_THRESHOLD", 30)
	cfg.WorkerConfig.RotationWindow = getEnvIntOrDefault("ROTATION_BATCH", 25)
	cfg.WorkerConfig.ParallelBatch = getEnvIntOrDefault("PARALLEL_BATCH", 5)
	cfg.WorkerConfig.UniversalSource = getEnvOrDefault("MARKET_DATA_UNIVERSAL_SOURCE", "binance")

	cfg.ArbConfig.MaxSlippagePercent = getEnvFloatOrDefault("ARB_MAX_SLIPPAGE_PERCENT", 0.5)
	applyCooldownEnvOverrides(cfg)
}

// applyCooldownEnvOverrides reads EXEC_COOLDOWN_<EXCHANGE>_MS variables
func applyCooldownEnvOverrides(cfg *Config) {
	const prefix = "EXEC_COOLDOWN_"
	const suffix = "_MS"
	for _, env := range os.Environ() {
		key, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(key, prefix) || !strings.HasSuffix(key, suffix) {
			continue
		}
		venue := strings.ToLower(strings.TrimSuffix(strings.TrimPrefix(key, prefix), suffix))
		ms, err := strconv.Atoi(value)
		if err != nil || venue == "" {
			continue
		}
		if cfg.ArbConfig.CooldownOverridesMs == nil {
			cfg.ArbConfig.CooldownOverridesMs = make(map[string]int)
		}
		cfg.ArbConfig.CooldownOverridesMs[venue] = ms
	}
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

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}
