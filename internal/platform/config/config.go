package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

// Config holds all configuration for the engine host process.
type Config struct {
	Service     ServiceConfig     `mapstructure:"service"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Credentials CredentialsConfig `mapstructure:"credentials"`
	Logger      LoggerConfig      `mapstructure:"logger"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Version     string            `mapstructure:"version"`
}

// ServiceConfig holds service-specific configuration.
type ServiceConfig struct {
	Name        string `mapstructure:"name" envconfig:"SERVICE_NAME"`
	Environment string `mapstructure:"environment" envconfig:"ENVIRONMENT" default:"development"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port         int           `mapstructure:"port" envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" envconfig:"HTTP_WRITE_TIMEOUT" default:"10s"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" envconfig:"HTTP_IDLE_TIMEOUT" default:"120s"`
}

// DatabaseConfig holds Postgres connection configuration, used by the
// execution/workflow stores.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" envconfig:"DB_HOST" default:"localhost"`
	Port            int           `mapstructure:"port" envconfig:"DB_PORT" default:"5432"`
	User            string        `mapstructure:"user" envconfig:"DB_USER" default:"postgres"`
	Password        string        `mapstructure:"password" envconfig:"DB_PASSWORD" default:"postgres"`
	Database        string        `mapstructure:"database" envconfig:"DB_NAME" default:"enginecore"`
	SSLMode         string        `mapstructure:"ssl_mode" envconfig:"DB_SSL_MODE" default:"disable"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

// RedisConfig holds Redis configuration, used by the execution-
// progress cache and the Redis execution log sink. Both are optional:
// SinkEnabled/ProgressCacheEnabled gate them independently since a
// deployment may want one without the other.
type RedisConfig struct {
	Host                 string        `mapstructure:"host" envconfig:"REDIS_HOST" default:"localhost"`
	Port                 int           `mapstructure:"port" envconfig:"REDIS_PORT" default:"6379"`
	Password             string        `mapstructure:"password" envconfig:"REDIS_PASSWORD"`
	DB                   int           `mapstructure:"db" envconfig:"REDIS_DB" default:"0"`
	PoolSize             int           `mapstructure:"pool_size" envconfig:"REDIS_POOL_SIZE" default:"10"`
	DialTimeout          time.Duration `mapstructure:"dial_timeout" envconfig:"REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout          time.Duration `mapstructure:"read_timeout" envconfig:"REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout" envconfig:"REDIS_WRITE_TIMEOUT" default:"3s"`
	SinkEnabled          bool          `mapstructure:"sink_enabled" envconfig:"REDIS_SINK_ENABLED" default:"false"`
	SinkListKey          string        `mapstructure:"sink_list_key" envconfig:"REDIS_SINK_LIST_KEY" default:"execution-logs"`
	SinkCapacity         int64         `mapstructure:"sink_capacity" envconfig:"REDIS_SINK_CAPACITY" default:"5000"`
	ProgressCacheEnabled bool          `mapstructure:"progress_cache_enabled" envconfig:"REDIS_PROGRESS_CACHE_ENABLED" default:"false"`
	ProgressCacheTTL     time.Duration `mapstructure:"progress_cache_ttl" envconfig:"REDIS_PROGRESS_CACHE_TTL" default:"5m"`
}

// KafkaConfig holds Kafka configuration, used by the Kafka execution
// log sink.
type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled" envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `mapstructure:"brokers" envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	Topic   string   `mapstructure:"topic" envconfig:"KAFKA_TOPIC" default:"workflow-execution-logs"`
}

// AuthConfig holds the bearer-token check the manual trigger's HTTP
// surface performs.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" envconfig:"JWT_SECRET"`
}

// CredentialsConfig configures the AES credential store's key
// derivation.
type CredentialsConfig struct {
	KeyType    string `mapstructure:"key_type" envconfig:"CREDENTIALS_KEY_TYPE" default:"raw"`
	Key        string `mapstructure:"key" envconfig:"CREDENTIALS_KEY"`
	Salt       string `mapstructure:"salt" envconfig:"CREDENTIALS_SALT"`
	Iterations int    `mapstructure:"iterations" envconfig:"CREDENTIALS_ITERATIONS" default:"100000"`
}

// LoggerConfig holds logger configuration.
type LoggerConfig struct {
	Level      string `mapstructure:"level" envconfig:"LOG_LEVEL" default:"info"`
	Format     string `mapstructure:"format" envconfig:"LOG_FORMAT" default:"json"`
	OutputPath string `mapstructure:"output_path" envconfig:"LOG_OUTPUT_PATH" default:"stdout"`
}

// TelemetryConfig holds telemetry configuration.
type TelemetryConfig struct {
	MetricsEnabled bool   `mapstructure:"metrics_enabled" envconfig:"METRICS_ENABLED" default:"true"`
	TracingEnabled bool   `mapstructure:"tracing_enabled" envconfig:"TRACING_ENABLED" default:"true"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint" envconfig:"JAEGER_ENDPOINT" default:"http://localhost:14268/api/traces"`
	ServiceName    string `mapstructure:"service_name" envconfig:"TELEMETRY_SERVICE_NAME"`
}

// EngineConfig holds execution-engine-specific settings.
type EngineConfig struct {
	StepDebugEnabled bool `mapstructure:"step_debug_enabled" envconfig:"STEP_DEBUG_ENABLED" default:"false"`
}

// Load loads configuration from files and environment, the way every
// service in this codebase does.
func Load(serviceName string) (*Config, error) {
	var cfg Config

	cfg.Service.Name = serviceName
	cfg.Telemetry.ServiceName = serviceName

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	if version := os.Getenv("VERSION"); version != "" {
		cfg.Version = version
	} else {
		cfg.Version = "dev"
	}

	return &cfg, nil
}

// DSN returns the database connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Addr returns the Redis address.
func (c *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
