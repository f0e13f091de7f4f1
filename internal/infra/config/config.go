package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	Session   SessionSettings   `mapstructure:"session"`
	OTP       OTPSettings       `mapstructure:"otp"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Storage   StorageSettings   `mapstructure:"storage"`
	Mail      MailSettings      `mapstructure:"mail"`
	RBAC      RBACSettings      `mapstructure:"rbac"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	CORS      CORSSettings      `mapstructure:"cors"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// IsDevelopment reports whether the process runs with development conveniences enabled.
func (a AppSettings) IsDevelopment() bool {
	return a.Env == "" || a.Env == "development"
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
	AutoMigrate       bool          `mapstructure:"auto_migrate"`
}

// DSN renders the settings as a postgres:// URL understood by pgx and golang-migrate alike.
func (p PostgresSettings) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User,
		p.Password,
		p.Host,
		p.Port,
		p.Database,
		p.SSLMode,
	)
}

// RedisSettings configures Redis connection and TLS
type RedisSettings struct {
	Host       string `mapstructure:"host"`
	Port       int    `mapstructure:"port"`
	DB         int    `mapstructure:"db"`
	Password   string `mapstructure:"password"`
	TLSEnabled bool   `mapstructure:"tls_enabled"`
	KeyPrefix  string `mapstructure:"key_prefix"`
}

// KafkaSettings configures Kafka producer. Events are only logged when Brokers is empty.
type KafkaSettings struct {
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// SessionSettings configures the signed session token and its cookie.
type SessionSettings struct {
	Secret       string        `mapstructure:"secret"`
	TTL          time.Duration `mapstructure:"ttl"`
	Issuer       string        `mapstructure:"issuer"`
	CookieName   string        `mapstructure:"cookie_name"`
	CookieSecure bool          `mapstructure:"cookie_secure"`
}

type OTPSettings struct {
	TTL        time.Duration `mapstructure:"ttl"`
	CodeLength int           `mapstructure:"code_length"`
}

// Argon2Settings configures Argon2id hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// RateLimitSettings configures the redis sliding window on /auth and the in-process global limiter.
type RateLimitSettings struct {
	AuthWindow        time.Duration `mapstructure:"auth_window"`
	AuthMaxAttempts   int           `mapstructure:"auth_max_attempts"`
	GlobalWindow      time.Duration `mapstructure:"global_window"`
	GlobalMaxRequests int           `mapstructure:"global_max_requests"`
}

type StorageSettings struct {
	Driver         string `mapstructure:"driver"`
	Endpoint       string `mapstructure:"endpoint"`
	AccessKey      string `mapstructure:"access_key"`
	SecretKey      string `mapstructure:"secret_key"`
	UseSSL         bool   `mapstructure:"use_ssl"`
	Bucket         string `mapstructure:"bucket"`
	PublicBaseURL  string `mapstructure:"public_base_url"`
	LocalDirectory string `mapstructure:"local_directory"`
	MaxUploadBytes int64  `mapstructure:"max_upload_bytes"`
}

type MailSettings struct {
	Provider  string        `mapstructure:"provider"`
	APIURL    string        `mapstructure:"api_url"`
	APIToken  string        `mapstructure:"api_token"`
	FromEmail string        `mapstructure:"from_email"`
	FromName  string        `mapstructure:"from_name"`
	Timeout   time.Duration `mapstructure:"timeout"`
	QueueSize int           `mapstructure:"queue_size"`
}

type RBACSettings struct {
	StrictPermissionSlugs bool   `mapstructure:"strict_permission_slugs"`
	BootstrapAdminEmail   string `mapstructure:"bootstrap_admin_email"`
}

type TelemetrySettings struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SamplingRate float64 `mapstructure:"sampling_rate"`
}

type CORSSettings struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("MATCHA")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"postgres.auto_migrate",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.key_prefix",
		"kafka.brokers",
		"kafka.topic_prefix",
		"session.secret",
		"session.ttl",
		"session.issuer",
		"session.cookie_name",
		"session.cookie_secure",
		"otp.ttl",
		"otp.code_length",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"rate_limit.auth_window",
		"rate_limit.auth_max_attempts",
		"rate_limit.global_window",
		"rate_limit.global_max_requests",
		"storage.driver",
		"storage.endpoint",
		"storage.access_key",
		"storage.secret_key",
		"storage.use_ssl",
		"storage.bucket",
		"storage.public_base_url",
		"storage.local_directory",
		"storage.max_upload_bytes",
		"mail.provider",
		"mail.api_url",
		"mail.api_token",
		"mail.from_email",
		"mail.from_name",
		"mail.timeout",
		"mail.queue_size",
		"rbac.strict_permission_slugs",
		"rbac.bootstrap_admin_email",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"cors.allowed_origins",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *AppConfig) validate() error {
	if c.Session.Secret == "" {
		if !c.App.IsDevelopment() {
			return fmt.Errorf("session.secret is required outside development")
		}
		c.Session.Secret = "matcha-development-secret"
	}
	if c.OTP.CodeLength <= 0 {
		return fmt.Errorf("otp.code_length must be positive")
	}
	switch c.Storage.Driver {
	case "minio", "local":
	default:
		return fmt.Errorf("unsupported storage.driver %q", c.Storage.Driver)
	}
	switch c.Mail.Provider {
	case "mailtrap", "log":
	default:
		return fmt.Errorf("unsupported mail.provider %q", c.Mail.Provider)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "matcha")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 5000)

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "matcha")
	v.SetDefault("postgres.password", "matcha_password")
	v.SetDefault("postgres.database", "matcha")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")
	v.SetDefault("postgres.auto_migrate", true)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.key_prefix", "matcha")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic_prefix", "matcha")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", "720h")
	v.SetDefault("session.issuer", "matcha")
	v.SetDefault("session.cookie_name", "jwt")
	v.SetDefault("session.cookie_secure", false)

	v.SetDefault("otp.ttl", "10m")
	v.SetDefault("otp.code_length", 6)

	v.SetDefault("argon2.memory", 19456)
	v.SetDefault("argon2.iterations", 2)
	v.SetDefault("argon2.parallelism", 1)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("rate_limit.auth_window", "10m")
	v.SetDefault("rate_limit.auth_max_attempts", 5)
	v.SetDefault("rate_limit.global_window", "15m")
	v.SetDefault("rate_limit.global_max_requests", 100)

	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "matcha-uploads")
	v.SetDefault("storage.public_base_url", "/uploads")
	v.SetDefault("storage.local_directory", "./uploads")
	v.SetDefault("storage.max_upload_bytes", 10<<20)

	v.SetDefault("mail.provider", "log")
	v.SetDefault("mail.api_url", "https://send.api.mailtrap.io/api/send")
	v.SetDefault("mail.api_token", "")
	v.SetDefault("mail.from_email", "no-reply@matcha.local")
	v.SetDefault("mail.from_name", "Matcha")
	v.SetDefault("mail.timeout", "10s")
	v.SetDefault("mail.queue_size", 256)

	v.SetDefault("rbac.strict_permission_slugs", false)
	v.SetDefault("rbac.bootstrap_admin_email", "")

	v.SetDefault("telemetry.otlp_endpoint", "")
	v.SetDefault("telemetry.service_name", "matcha")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("cors.allowed_origins", []string{"http://localhost:3000"})
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "MATCHA_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
