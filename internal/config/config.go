package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env            string               `mapstructure:"env"`
	Server         ServerConfig         `mapstructure:"server"`
	Database       DatabaseConfig       `mapstructure:"database"`
	TenantDatabase TenantDatabaseConfig `mapstructure:"tenant_database"`
	Redis          RedisConfig          `mapstructure:"redis"`
	Notify         NotifyConfig         `mapstructure:"notify"`
	Auth           AuthConfig           `mapstructure:"auth"`
	Telemetry      TelemetryConfig      `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port         string   `mapstructure:"port"`
	ReadTimeout  int      `mapstructure:"read_timeout_seconds"`
	WriteTimeout int      `mapstructure:"write_timeout_seconds"`
	IdleTimeout  int      `mapstructure:"idle_timeout_seconds"`
	CORSOrigins  []string `mapstructure:"cors_origins"`
}

// DatabaseConfig is the platform-wide store that holds tenant metadata.
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time_seconds"`
}

// TenantDatabaseConfig describes the server hosting per-tenant databases.
// The database name comes from the tenant's store locator.
type TenantDatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            string `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time_seconds"`
	PingTimeout     int    `mapstructure:"ping_timeout_seconds"`
}

// ForLocator returns a DatabaseConfig pointing at one tenant database.
func (c TenantDatabaseConfig) ForLocator(locator string) DatabaseConfig {
	return DatabaseConfig{
		Host:            c.Host,
		Port:            c.Port,
		User:            c.User,
		Password:        c.Password,
		DBName:          locator,
		SSLMode:         c.SSLMode,
		MaxOpenConns:    c.MaxOpenConns,
		MaxIdleConns:    c.MaxIdleConns,
		ConnMaxLifetime: c.ConnMaxLifetime,
		ConnMaxIdleTime: c.ConnMaxIdleTime,
	}
}

type RedisConfig struct {
	Addr          string `mapstructure:"addr"`
	Password      string `mapstructure:"password"`
	DB            int    `mapstructure:"db"`
	CredentialTTL int    `mapstructure:"credential_ttl_seconds"`
}

func (c RedisConfig) CredentialTTLDuration() time.Duration {
	return time.Duration(c.CredentialTTL) * time.Second
}

type NotifyConfig struct {
	// Transport is one of log, nats, kafka.
	Transport         string      `mapstructure:"transport"`
	PortalURLTemplate string      `mapstructure:"portal_url_template"`
	FromAddress       string      `mapstructure:"from_address"`
	NATS              NATSConfig  `mapstructure:"nats"`
	Kafka             KafkaConfig `mapstructure:"kafka"`
}

type NATSConfig struct {
	URL     string `mapstructure:"url"`
	Subject string `mapstructure:"subject"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// IsProduction reports whether outbound side effects (mail events) are real.
func (c *Config) IsProduction() bool {
	switch c.Env {
	case "prod", "production", "gcp-gke":
		return true
	}
	return false
}

// Validate rejects settings that are only safe on a developer machine.
func (c *Config) Validate() error {
	if c.IsProduction() && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required in production")
	}
	return nil
}

func Load() (*Config, error) {
	env := os.Getenv("ENV")
	if env == "" {
		env = "local"
	}

	v := viper.New()
	v.SetConfigName(fmt.Sprintf("config.%s", env))
	v.SetConfigType("yaml")
	v.AddConfigPath("/configs")   // Kubernetes mount
	v.AddConfigPath("./configs")  // repo root
	v.AddConfigPath("../configs") // IDE from cmd/

	setDefaults(v, env)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file is optional - continue with defaults and ENV variables
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("tenant_database.user", "TENANT_DB_USER")
	v.BindEnv("tenant_database.password", "TENANT_DB_PASSWORD")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("telemetry.otlp_endpoint", "OTEL_EXPORTER_OTLP_ENDPOINT")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper, env string) {
	v.SetDefault("env", env)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout_seconds", 15)
	v.SetDefault("server.write_timeout_seconds", 15)
	v.SetDefault("server.idle_timeout_seconds", 60)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "school_platform")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("tenant_database.host", "localhost")
	v.SetDefault("tenant_database.port", "5432")
	v.SetDefault("tenant_database.ssl_mode", "disable")
	v.SetDefault("tenant_database.max_open_conns", 10)
	v.SetDefault("tenant_database.max_idle_conns", 2)
	v.SetDefault("tenant_database.ping_timeout_seconds", 3)

	v.SetDefault("redis.credential_ttl_seconds", 600)

	v.SetDefault("notify.transport", "log")
	v.SetDefault("notify.portal_url_template", "https://{slug}.schools.local/login")
	v.SetDefault("notify.from_address", "no-reply@schools.local")
	v.SetDefault("notify.nats.subject", "notifications.email.welcome")
	v.SetDefault("notify.kafka.topic", "notifications.email.welcome")

	v.SetDefault("auth.jwt_issuer", "school-platform")
}
