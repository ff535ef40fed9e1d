package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
	Webhooks   WebhooksConfig   `mapstructure:"webhooks"`
	Workflow   WorkflowConfig   `mapstructure:"workflow"`
	Ingest     IngestConfig     `mapstructure:"ingest"`
	Workers    WorkersConfig    `mapstructure:"workers"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type JWTConfig struct {
	Secret         string        `mapstructure:"secret"`
	AccessTokenTTL time.Duration `mapstructure:"access_token_ttl"`
}

// EncryptionConfig holds the master key set. Keys are hex-encoded 32 byte
// values indexed by key id; ActiveKeyID picks the one new envelopes use.
type EncryptionConfig struct {
	Keys             map[string]string `mapstructure:"keys"`
	ActiveKeyID      string            `mapstructure:"active_key_id"`
	AlgorithmVersion string            `mapstructure:"algorithm_version"`
}

type WebhooksConfig struct {
	MaxBodyBytes       int64 `mapstructure:"max_body_bytes"`
	RateLimitPerMinute int   `mapstructure:"rate_limit_per_minute"`
}

type WorkflowConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type IngestConfig struct {
	CallbackBaseURL string `mapstructure:"callback_base_url"`
}

type WorkersConfig struct {
	RotationInterval time.Duration `mapstructure:"rotation_interval"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("database.url", "file:hivehook.db")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.migrations_path", "migrations")
	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)
	v.SetDefault("encryption.active_key_id", "k1")
	v.SetDefault("encryption.algorithm_version", "1")
	v.SetDefault("webhooks.max_body_bytes", 1<<20)
	v.SetDefault("webhooks.rate_limit_per_minute", 600)
	v.SetDefault("workflow.timeout", 15*time.Second)
	v.SetDefault("workers.rotation_interval", time.Hour)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
}

func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	// A single key may be supplied through ENCRYPTION_MASTER_KEY without a
	// config file entry.
	if key := v.GetString("encryption.master_key"); key != "" {
		if config.Encryption.Keys == nil {
			config.Encryption.Keys = make(map[string]string)
		}
		if _, ok := config.Encryption.Keys[config.Encryption.ActiveKeyID]; !ok {
			config.Encryption.Keys[config.Encryption.ActiveKeyID] = key
		}
	}

	return &config, nil
}
