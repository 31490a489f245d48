package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const envPrefix = "TEAMMATCH"

// DefaultPaths are searched in order; later files override earlier ones.
var DefaultPaths = []string{
	"./config.yaml",
	"./configs/config.yaml",
	"/etc/teammatch/config.yaml",
}

// Load reads YAML files, environment overrides and defaults into a validated Config.
// With no paths, DefaultPaths are used.
func Load(logger *zap.Logger, paths ...string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if len(paths) == 0 {
		paths = DefaultPaths
	}

	var loaded []string
	for _, path := range paths {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			logger.Debug("Config file not found, skipping", zap.String("path", path))
			continue
		}
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
		loaded = append(loaded, path)
	}
	if len(loaded) == 0 {
		logger.Warn("No configuration files found, using defaults and environment variables")
	} else {
		logger.Info("Loaded configuration files", zap.Strings("files", loaded))
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override keys absent from files.
func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log.level", "info")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.issuer", "teammatch")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.max_open_conns", 50)
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.conn_max_lifetime", 3600)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 20)
	v.SetDefault("redis.dial_timeout", 5*time.Second)
	v.SetDefault("redis.read_timeout", 500*time.Millisecond)
	v.SetDefault("redis.write_timeout", 500*time.Millisecond)

	v.SetDefault("queue.backend", "redis")
	v.SetDefault("queue.key_prefix", "match_queue")
	v.SetDefault("queue.badger_path", "./data/queue")

	v.SetDefault("matchmaking.signal_transport", "local")
	v.SetDefault("matchmaking.workers", 4)
	v.SetDefault("matchmaking.signal_buffer", 1024)
	v.SetDefault("matchmaking.max_pairs_per_signal", 16)

	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.consumer_group", "pairing")
	v.SetDefault("kafka.group_prefix", "teammatch")

	v.SetDefault("notifications.transports", []string{"websocket"})
	v.SetDefault("notifications.replay_size", 64)
	v.SetDefault("notifications.replay_ttl", 10*time.Minute)
	v.SetDefault("notifications.hub_shards", 16)

	v.SetDefault("telemetry.tracing", false)
	v.SetDefault("telemetry.metrics", false)
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	if cfg.Queue.Backend == "badger" && cfg.Queue.BadgerPath == "" {
		return fmt.Errorf("queue.badger_path is required for the badger backend")
	}
	if cfg.Queue.Backend == "badger" && cfg.Matchmaking.SignalTransport == "kafka" {
		// badger is process-local; remote instances could never pop what they are signalled about
		return fmt.Errorf("kafka signal transport requires the shared redis queue backend")
	}
	if (cfg.Matchmaking.SignalTransport == "kafka" || cfg.Notifications.HasTransport("kafka")) && len(cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when a kafka transport is enabled")
	}
	if cfg.Environment == "production" && strings.Contains(cfg.Auth.JWTSecret, "change-this") {
		return fmt.Errorf("production environment requires a secure JWT secret")
	}
	return nil
}
