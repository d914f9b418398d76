// internal/config/config.go
// Configuration management using environment variables and optional config files

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Auth        AuthConfig
	Matchmaking MatchmakingConfig
	Match       MatchConfig
	Features    FeatureFlags
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig contains all database connection settings
type DatabaseConfig struct {
	MySQL   MySQLConfig
	MongoDB MongoDBConfig
	Redis   RedisConfig
}

// MySQLConfig contains MySQL-specific settings
type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// MongoDBConfig contains MongoDB-specific settings
type MongoDBConfig struct {
	URI      string
	Database string
}

// RedisConfig contains Redis-specific settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AuthConfig contains authentication settings for resolving a
// connection's player_id from its bearer token.
type AuthConfig struct {
	JWTSecret string
}

// MatchmakingConfig holds the Matchmaker's tunables.
type MatchmakingConfig struct {
	BucketWidenStep     int
	BucketWidenInterval time.Duration
	BucketWidenMax      int
	ConfirmWindow       time.Duration
	FillDeadline        time.Duration
	TickInterval        time.Duration
}

// MatchConfig holds the MatchRuntime's and core gameplay tunables.
type MatchConfig struct {
	StartingCountdown   time.Duration
	AutoStartTimeout    time.Duration
	GradingBudget       time.Duration
	DisconnectGrace     time.Duration
	RetentionWindow     time.Duration
	MaxConcurrentGrades int
	LanguageWhitelist   []string
	ChatRatePerWindow   int
	ChatRateWindow      time.Duration
	MaxMatchesPerProcess int
	GraderBaseURL       string
	GraderTimeout       time.Duration
}

// FeatureFlags allows toggling features without code changes
type FeatureFlags struct {
	EnableWebSocket bool
	MaintenanceMode bool
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		// It's okay if .env doesn't exist in production
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	cfg := &Config{
		Environment: getEnvOrDefault("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:         getEnvOrDefault("PORT", "8080"),
			ReadTimeout:  getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getDurationOrDefault("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
		},
		Database: DatabaseConfig{
			MySQL: MySQLConfig{
				DSN:             getEnvOrDefault("MYSQL_DSN", ""),
				MaxOpenConns:    getIntOrDefault("MYSQL_MAX_OPEN_CONNS", 25),
				MaxIdleConns:    getIntOrDefault("MYSQL_MAX_IDLE_CONNS", 5),
				ConnMaxLifetime: getDurationOrDefault("MYSQL_CONN_MAX_LIFETIME", 5*time.Minute),
			},
			MongoDB: MongoDBConfig{
				URI:      getEnvOrDefault("MONGO_URI", ""),
				Database: getEnvOrDefault("MONGO_DATABASE", "arena_core"),
			},
			Redis: RedisConfig{
				Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
				Password: getEnvOrDefault("REDIS_PASSWORD", ""),
				DB:       getIntOrDefault("REDIS_DB", 0),
			},
		},
		Auth: AuthConfig{
			JWTSecret: getEnvOrDefault("JWT_SECRET", ""),
		},
		Matchmaking: MatchmakingConfig{
			BucketWidenStep:     getIntOrDefault("MM_BUCKET_WIDEN_STEP", 50),
			BucketWidenInterval: getDurationOrDefault("MM_BUCKET_WIDEN_INTERVAL", 5*time.Second),
			BucketWidenMax:      getIntOrDefault("MM_BUCKET_WIDEN_MAX", 500),
			ConfirmWindow:       getDurationOrDefault("MM_CONFIRM_WINDOW", 10*time.Second),
			FillDeadline:        getDurationOrDefault("MM_FILL_DEADLINE", 30*time.Second),
			TickInterval:        getDurationOrDefault("MM_TICK_INTERVAL", 1*time.Second),
		},
		Match: MatchConfig{
			StartingCountdown:    getDurationOrDefault("MATCH_STARTING_COUNTDOWN", 3*time.Second),
			AutoStartTimeout:     getDurationOrDefault("MATCH_AUTO_START_TIMEOUT", 10*time.Second),
			GradingBudget:        getDurationOrDefault("MATCH_GRADING_BUDGET", 30*time.Second),
			DisconnectGrace:      getDurationOrDefault("MATCH_DISCONNECT_GRACE", 60*time.Second),
			RetentionWindow:      getDurationOrDefault("MATCH_RETENTION_WINDOW", 5*time.Minute),
			MaxConcurrentGrades:  getIntOrDefault("MATCH_MAX_CONCURRENT_GRADES", 16),
			LanguageWhitelist:    getListOrDefault("MATCH_LANGUAGE_WHITELIST", []string{"python", "javascript", "go", "java", "cpp"}),
			ChatRatePerWindow:    getIntOrDefault("CHAT_RATE_PER_WINDOW", 10),
			ChatRateWindow:       getDurationOrDefault("CHAT_RATE_WINDOW", 10*time.Second),
			MaxMatchesPerProcess: getIntOrDefault("MAX_MATCHES_PER_PROCESS", 2000),
			GraderBaseURL:        getEnvOrDefault("GRADER_BASE_URL", "http://localhost:9090"),
			GraderTimeout:        getDurationOrDefault("GRADER_TIMEOUT", 15*time.Second),
		},
		Features: FeatureFlags{
			EnableWebSocket: getBoolOrDefault("ENABLE_WEBSOCKET", true),
			MaintenanceMode: getBoolOrDefault("MAINTENANCE_MODE", false),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.Database.MySQL.DSN == "" {
		return fmt.Errorf("MYSQL_DSN is required")
	}
	if c.Database.MongoDB.URI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.Match.LanguageWhitelist) == 0 {
		return fmt.Errorf("MATCH_LANGUAGE_WHITELIST must not be empty")
	}
	return nil
}

// Helper functions to read environment variables with defaults
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
