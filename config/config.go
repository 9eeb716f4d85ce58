// Package config provides configuration management and environment variable handling for the application
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the notifier process
type Config struct {
	Database  DatabaseConfig  `json:"database"`
	Server    ServerConfig    `json:"server"`
	Security  SecurityConfig  `json:"security"`
	Logging   LoggingConfig   `json:"logging"`
	Metrics   MetricsConfig   `json:"metrics"`
	Cache     CacheConfig     `json:"cache"`
	Policy    PolicyConfig    `json:"policy"`
	Scheduler SchedulerConfig `json:"scheduler"`
	WhatsApp  WhatsAppConfig  `json:"whatsapp"`
	Sheets    SheetsConfig    `json:"sheets"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver"` // sqlite, postgres
	Path            string        `json:"path"`   // sqlite file path
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	Name            string        `json:"name"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	SSLMode         string        `json:"ssl_mode"`
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `json:"conn_max_idle_time"`
}

type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	ReadTimeout     time.Duration `json:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
	BodyLimit       int           `json:"body_limit"`
}

type SecurityConfig struct {
	RequireAPIKey  bool     `json:"require_api_key"`
	APIKeyHeader   string   `json:"api_key_header"`
	AllowedAPIKeys []string `json:"allowed_api_keys"`
}

type LoggingConfig struct {
	FilePath   string `json:"file_path"`
	MaxSize    int    `json:"max_size"` // MB
	MaxBackups int    `json:"max_backups"`
	MaxAge     int    `json:"max_age"` // days
	Compress   bool   `json:"compress"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type CacheConfig struct {
	Enabled     bool   `json:"enabled"`
	Provider    string `json:"provider"` // redis, memory
	RedisURL    string `json:"redis_url"`
	RedisDB     int    `json:"redis_db"`
	RedisPrefix string `json:"redis_prefix"`
}

// PolicyConfig is loaded once at startup and immutable thereafter.
type PolicyConfig struct {
	MaxMessagesPerWindow int           `json:"max_messages_per_window"`
	Cooldown             time.Duration `json:"cooldown"`
	Lookback             time.Duration `json:"lookback"`
	Retention            time.Duration `json:"retention"`
	DeveloperBypass      []string      `json:"developer_bypass"`

	// Consecutive-failure circuit breaker
	BreakerThreshold  int           `json:"breaker_threshold"`
	BreakerWindow     time.Duration `json:"breaker_window"`
	BreakerSuspension time.Duration `json:"breaker_suspension"`
}

// Bypassed reports whether the customer is exempt from all policy checks.
func (c PolicyConfig) Bypassed(customerID string) bool {
	for _, id := range c.DeveloperBypass {
		if id == customerID {
			return true
		}
	}
	return false
}

type SchedulerConfig struct {
	PollEnabled        bool          `json:"poll_enabled"`
	PollInterval       time.Duration `json:"poll_interval"`
	SendGap            time.Duration `json:"send_gap"`
	SendTimeout        time.Duration `json:"send_timeout"`
	PruneInterval      time.Duration `json:"prune_interval"`
	FallbackEnabled    bool          `json:"fallback_enabled"`
	ReminderOffsetDays []int         `json:"reminder_offset_days"`
}

type WhatsAppConfig struct {
	Provider      string `json:"provider"` // whatsmeow, mock
	SessionDBPath string `json:"session_db_path"`
	ShowQR        bool   `json:"show_qr"`
}

// SheetBinding points one sheet type at its spreadsheet tab.
type SheetBinding struct {
	SpreadsheetID string `json:"spreadsheet_id"`
	ReadRange     string `json:"read_range"`
	SheetName     string `json:"sheet_name"` // excel tab name
}

type SheetsConfig struct {
	Provider        string       `json:"provider"` // google, excel, mock
	CredentialsFile string       `json:"credentials_file"`
	ExcelPath       string       `json:"excel_path"`
	Tailor          SheetBinding `json:"tailor"`
	Fabric          SheetBinding `json:"fabric"`
	Combined        SheetBinding `json:"combined"`
	Worker          SheetBinding `json:"worker"`
}

// Load loads and validates configuration from environment variables,
// reading .env first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env file: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:          getEnvString("DB_DRIVER", "sqlite"),
			Path:            getEnvString("DB_PATH", "data/notifier.db"),
			Host:            getEnvString("DB_HOST", "localhost"),
			Port:            getEnvInt("DB_PORT", 5432),
			Name:            getEnvString("DB_NAME", "darzi_notify"),
			User:            getEnvString("DB_USER", "postgres"),
			Password:        getEnvString("DB_PASSWORD", ""),
			SSLMode:         getEnvString("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 15*time.Minute),
		},
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "0.0.0.0"),
			Port:            getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			BodyLimit:       getEnvInt("SERVER_BODY_LIMIT", 1*1024*1024), // 1MB
		},
		Security: SecurityConfig{
			RequireAPIKey:  getEnvBool("REQUIRE_API_KEY", true),
			APIKeyHeader:   getEnvString("API_KEY_HEADER", "X-API-Key"),
			AllowedAPIKeys: getEnvStringSlice("ALLOWED_API_KEYS", []string{}),
		},
		Logging: LoggingConfig{
			FilePath:   getEnvString("LOG_FILE_PATH", "data/notifier.log"),
			MaxSize:    getEnvInt("LOG_MAX_SIZE", 50),
			MaxBackups: getEnvInt("LOG_MAX_BACKUPS", 5),
			MaxAge:     getEnvInt("LOG_MAX_AGE", 30),
			Compress:   getEnvBool("LOG_COMPRESS", true),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
		Cache: CacheConfig{
			Enabled:     getEnvBool("CACHE_ENABLED", false),
			Provider:    getEnvString("CACHE_PROVIDER", "redis"),
			RedisURL:    getEnvString("CACHE_REDIS_URL", "redis://localhost:6379"),
			RedisDB:     getEnvInt("CACHE_REDIS_DB", 0),
			RedisPrefix: getEnvString("CACHE_REDIS_PREFIX", "darzi:"),
		},
		Policy: PolicyConfig{
			MaxMessagesPerWindow: getEnvInt("POLICY_MAX_MESSAGES_PER_WINDOW", 5),
			Cooldown:             getEnvDuration("POLICY_COOLDOWN", 5*time.Minute),
			Lookback:             getEnvDuration("POLICY_LOOKBACK", 24*time.Hour),
			Retention:            getEnvDuration("POLICY_RETENTION", 7*24*time.Hour),
			DeveloperBypass:      getEnvStringSlice("POLICY_DEVELOPER_BYPASS", []string{}),
			BreakerThreshold:     getEnvInt("POLICY_BREAKER_THRESHOLD", 3),
			BreakerWindow:        getEnvDuration("POLICY_BREAKER_WINDOW", 15*time.Minute),
			BreakerSuspension:    getEnvDuration("POLICY_BREAKER_SUSPENSION", 1*time.Hour),
		},
		Scheduler: SchedulerConfig{
			PollEnabled:        getEnvBool("SCHEDULER_POLL_ENABLED", true),
			PollInterval:       getEnvDuration("SCHEDULER_POLL_INTERVAL", 3*time.Minute),
			SendGap:            getEnvDuration("SCHEDULER_SEND_GAP", 2*time.Second),
			SendTimeout:        getEnvDuration("SCHEDULER_SEND_TIMEOUT", 15*time.Second),
			PruneInterval:      getEnvDuration("SCHEDULER_PRUNE_INTERVAL", 24*time.Hour),
			FallbackEnabled:    getEnvBool("SCHEDULER_FALLBACK_ENABLED", false),
			ReminderOffsetDays: getEnvIntSlice("SCHEDULER_REMINDER_OFFSETS_DAYS", []int{3, 10, 25, 55}),
		},
		WhatsApp: WhatsAppConfig{
			Provider:      getEnvString("WHATSAPP_PROVIDER", "whatsmeow"),
			SessionDBPath: getEnvString("WHATSAPP_SESSION_DB_PATH", "data/whatsapp.db"),
			ShowQR:        getEnvBool("WHATSAPP_SHOW_QR", true),
		},
		Sheets: SheetsConfig{
			Provider:        getEnvString("SHEETS_PROVIDER", "google"),
			CredentialsFile: getEnvString("SHEETS_CREDENTIALS_FILE", "credentials.json"),
			ExcelPath:       getEnvString("SHEETS_EXCEL_PATH", ""),
			Tailor: SheetBinding{
				SpreadsheetID: getEnvString("SHEETS_TAILOR_SPREADSHEET_ID", ""),
				ReadRange:     getEnvString("SHEETS_TAILOR_RANGE", "Orders!A:J"),
				SheetName:     getEnvString("SHEETS_TAILOR_TAB", "Orders"),
			},
			Fabric: SheetBinding{
				SpreadsheetID: getEnvString("SHEETS_FABRIC_SPREADSHEET_ID", ""),
				ReadRange:     getEnvString("SHEETS_FABRIC_RANGE", "Fabric!A:I"),
				SheetName:     getEnvString("SHEETS_FABRIC_TAB", "Fabric"),
			},
			Combined: SheetBinding{
				SpreadsheetID: getEnvString("SHEETS_COMBINED_SPREADSHEET_ID", ""),
				ReadRange:     getEnvString("SHEETS_COMBINED_RANGE", "Combined!A:K"),
				SheetName:     getEnvString("SHEETS_COMBINED_TAB", "Combined"),
			},
			Worker: SheetBinding{
				SpreadsheetID: getEnvString("SHEETS_WORKER_SPREADSHEET_ID", ""),
				ReadRange:     getEnvString("SHEETS_WORKER_RANGE", "Workers!A:F"),
				SheetName:     getEnvString("SHEETS_WORKER_TAB", "Workers"),
			},
		},
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks cross-field constraints that env parsing alone cannot catch.
func Validate(cfg *Config) error {
	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case "postgres":
		if cfg.Database.Name == "" || cfg.Database.Host == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", cfg.Database.Driver)
	}

	if cfg.Policy.MaxMessagesPerWindow <= 0 {
		return fmt.Errorf("POLICY_MAX_MESSAGES_PER_WINDOW must be positive")
	}
	if cfg.Policy.Cooldown < 0 || cfg.Policy.Lookback <= 0 {
		return fmt.Errorf("policy cooldown/lookback durations are invalid")
	}
	if cfg.Policy.Retention < cfg.Policy.Lookback {
		return fmt.Errorf("POLICY_RETENTION must be at least the lookback window")
	}

	if cfg.Scheduler.PollInterval <= 0 {
		return fmt.Errorf("SCHEDULER_POLL_INTERVAL must be positive")
	}
	if cfg.Scheduler.SendTimeout <= 0 {
		return fmt.Errorf("SCHEDULER_SEND_TIMEOUT must be positive")
	}

	switch cfg.WhatsApp.Provider {
	case "whatsmeow", "mock":
	default:
		return fmt.Errorf("unsupported WHATSAPP_PROVIDER %q", cfg.WhatsApp.Provider)
	}

	switch cfg.Sheets.Provider {
	case "google", "excel", "mock":
	default:
		return fmt.Errorf("unsupported SHEETS_PROVIDER %q", cfg.Sheets.Provider)
	}
	if cfg.Sheets.Provider == "excel" && cfg.Sheets.ExcelPath == "" {
		return fmt.Errorf("SHEETS_EXCEL_PATH is required for the excel provider")
	}

	if cfg.Security.RequireAPIKey && len(cfg.Security.AllowedAPIKeys) == 0 {
		return fmt.Errorf("ALLOWED_API_KEYS must be set when REQUIRE_API_KEY is enabled")
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		return out
	}
	return defaultValue
}

func getEnvIntSlice(key string, defaultValue []int) []int {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]int, 0, len(parts))
		for _, p := range parts {
			parsed, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return defaultValue
			}
			out = append(out, parsed)
		}
		return out
	}
	return defaultValue
}
