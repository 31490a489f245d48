package config

import "time"

// Config is the full service configuration
type Config struct {
	Environment   string              `mapstructure:"environment" validate:"required,oneof=development staging production test"`
	Log           LogConfig           `mapstructure:"log"`
	Server        ServerConfig        `mapstructure:"server"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Matchmaking   MatchmakingConfig   `mapstructure:"matchmaking"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=16"`
	Issuer    string `mapstructure:"issuer"`
}

type DatabaseConfig struct {
	// Driver is postgres or sqlite.
	Driver          string `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	DSN             string `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool   `mapstructure:"auto_migrate"`
}

type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type QueueConfig struct {
	// Backend is redis (shared across instances) or badger (single node).
	Backend    string `mapstructure:"backend" validate:"required,oneof=redis badger"`
	KeyPrefix  string `mapstructure:"key_prefix" validate:"required"`
	BadgerPath string `mapstructure:"badger_path"`
}

type MatchmakingConfig struct {
	// SignalTransport is local (in-process workers) or kafka (cross-instance).
	SignalTransport   string `mapstructure:"signal_transport" validate:"required,oneof=local kafka"`
	Workers           int    `mapstructure:"workers" validate:"min=1"`
	SignalBuffer      int    `mapstructure:"signal_buffer" validate:"min=1"`
	MaxPairsPerSignal int    `mapstructure:"max_pairs_per_signal" validate:"min=1"`
}

type KafkaConfig struct {
	Brokers       []string `mapstructure:"brokers"`
	ConsumerGroup string   `mapstructure:"consumer_group"`
	GroupPrefix   string   `mapstructure:"group_prefix"`
}

type NotificationsConfig struct {
	// Transports lists enabled push channels: websocket, kafka.
	Transports []string      `mapstructure:"transports" validate:"dive,oneof=websocket kafka"`
	ReplaySize int           `mapstructure:"replay_size" validate:"min=1"`
	HubShards  int           `mapstructure:"hub_shards" validate:"min=1"`
	// ReplayTTL is how long a disconnected user's replay buffer is kept; 0 keeps it forever.
	ReplayTTL  time.Duration `mapstructure:"replay_ttl" validate:"min=0"`
}

type TelemetryConfig struct {
	Tracing bool `mapstructure:"tracing"`
	Metrics bool `mapstructure:"metrics"`
}

// HasTransport reports whether the named notification transport is enabled.
func (n NotificationsConfig) HasTransport(name string) bool {
	for _, t := range n.Transports {
		if t == name {
			return true
		}
	}
	return false
}
