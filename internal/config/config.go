package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewNotificationCatalog),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool
	DBPoolMetrics     bool

	Redis RedisConfig
	Auth  AuthConfig
	SMTP  SMTPConfig

	Scheduler SchedulerConfig
	Bootstrap BootstrapConfig

	// NotificationsPath overrides the search path of notifications.yml.
	NotificationsPath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a redis address is configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type AuthConfig struct {
	JWTSecret string
	TokenTTL  time.Duration
	// LoginRate is the number of login attempts allowed per email per minute.
	LoginRate int
	// PermissionCacheTTL bounds how long resolved group permissions are cached.
	PermissionCacheTTL time.Duration
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SchedulerConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
	// Jobs restricts which jobs run; empty means all.
	Jobs []string
}

type BootstrapConfig struct {
	SuperuserEmail    string
	SuperuserPassword string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:           getenv("APP_SERVICE", "caseline"),
		AppVersion:        getenv("APP_VERSION", "0.1.0"),
		Environment:       getenv("ENVIRONMENT", "development"),
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		OTLPEndpoint:      getenv("OTLP_ENDPOINT", "localhost:4317"),
		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "caseline"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 1800),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 300),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),
		DBPoolMetrics:     getenvBool("DATABASE_POOL_METRICS", true),
		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			JWTSecret:          strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
			TokenTTL:           getenvDuration("AUTH_TOKEN_TTL", 12*time.Hour),
			LoginRate:          getenvInt("AUTH_LOGIN_RATE", 10),
			PermissionCacheTTL: getenvDuration("AUTH_PERMISSION_CACHE_TTL", 5*time.Minute),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:     getenvInt("SMTP_PORT", 587),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "no-reply@caseline.local"),
		},
		Scheduler: SchedulerConfig{
			Enabled:   getenvBool("SCHEDULER_ENABLED", true),
			Interval:  getenvDuration("SCHEDULER_INTERVAL", 30*time.Second),
			BatchSize: getenvInt("SCHEDULER_BATCH_SIZE", 100),
			Jobs:      getenvList("SCHEDULER_JOBS"),
		},
		Bootstrap: BootstrapConfig{
			SuperuserEmail:    strings.TrimSpace(getenv("BOOTSTRAP_SUPERUSER_EMAIL", "")),
			SuperuserPassword: getenv("BOOTSTRAP_SUPERUSER_PASSWORD", ""),
		},
		NotificationsPath: strings.TrimSpace(getenv("NOTIFICATIONS_CONFIG_PATH", "")),
	}

	return cfg
}

// IsProduction reports whether the service runs with production settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvList(key string) []string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
