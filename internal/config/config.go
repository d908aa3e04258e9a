package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Realtime    RealtimeConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	RTC         RTCConfig
	Stream      StreamConfig
	Scheduler   SchedulerConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// RealtimeConfig covers the websocket listener carrying both socket channels.
type RealtimeConfig struct {
	Host            string
	Port            string
	WriteWait       time.Duration
	PongWait        time.Duration
	SendBufferSize  int
	ReadBufferSize  int
	WriteBufferSize int
	EnableMetrics   bool
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

// RTCConfig describes the external real-time-communication provider used for
// channel credential issuance and recording webhooks.
type RTCConfig struct {
	BaseURL        string
	AppID          string
	AppCertificate string
	TokenTTL       time.Duration
	RequestTimeout time.Duration
	WebhookSecret  string
}

// StreamConfig carries platform policy knobs for the session core.
type StreamConfig struct {
	// SingleActiveSession rejects a start when the owner already runs a live
	// or paused session.
	SingleActiveSession bool
	// CommissionPercent is the platform's cut on gift transfers.
	CommissionPercent int
	MaxChatLength     int
	UpdateRetries     int
}

type SchedulerConfig struct {
	Path         string
	TickInterval time.Duration
	MaxRetry     int
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "featherlive"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Realtime: RealtimeConfig{
			Host:            getString("WS_HOST", "0.0.0.0"),
			Port:            getString("WS_PORT", "8081"),
			WriteWait:       getDuration("WS_WRITE_WAIT", 10*time.Second),
			PongWait:        getDuration("WS_PONG_WAIT", 60*time.Second),
			SendBufferSize:  getInt("WS_SEND_BUFFER", 256),
			ReadBufferSize:  getInt("WS_READ_BUFFER", 1024),
			WriteBufferSize: getInt("WS_WRITE_BUFFER", 1024),
			EnableMetrics:   getBool("WS_ENABLE_METRICS", true),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "featherlive_db"),
			User:            getString("DB_USER", "featherlive_user"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
			Issuer: getString("JWT_ISSUER", "featherlive"),
		},
		RTC: RTCConfig{
			BaseURL:        getString("RTC_BASE_URL", "https://api.rtc-provider.example"),
			AppID:          os.Getenv("RTC_APP_ID"),
			AppCertificate: os.Getenv("RTC_APP_CERTIFICATE"),
			TokenTTL:       getDuration("RTC_TOKEN_TTL", 4*time.Hour),
			RequestTimeout: getDuration("RTC_REQUEST_TIMEOUT", 5*time.Second),
			WebhookSecret:  os.Getenv("RTC_WEBHOOK_SECRET"),
		},
		Stream: StreamConfig{
			SingleActiveSession: getBool("STREAM_SINGLE_ACTIVE", true),
			CommissionPercent:   getInt("GIFT_COMMISSION_PERCENT", 15),
			MaxChatLength:       getInt("CHAT_MAX_LENGTH", 500),
			UpdateRetries:       getInt("STREAM_UPDATE_RETRIES", 3),
		},
		Scheduler: SchedulerConfig{
			Path:         getString("SCHEDULER_PATH", "./data/scheduler.db"),
			TickInterval: getDuration("SCHEDULER_TICK_SECONDS", 5*time.Second),
			MaxRetry:     getInt("SCHEDULER_MAX_RETRY", 3),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./assets/migrations"),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}

	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}

// RealtimeAddress returns the websocket listen address.
func (c *Config) RealtimeAddress() string {
	return fmt.Sprintf("%s:%s", c.Realtime.Host, c.Realtime.Port)
}
