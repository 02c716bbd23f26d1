package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// EnvPrefix prefixes every environment variable read by LoadFromEnv
const EnvPrefix = "SIMPLEPAES_"

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Database  *DatabaseConfig  `json:"database"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Lifecycle *LifecycleConfig `json:"lifecycle"`
	Auth      *AuthConfig      `json:"auth"`
	Redis     *RedisConfig     `json:"redis"`
	Log       *LogConfig       `json:"log"`
	RateLimit *RateLimitConfig `json:"rate_limit"`
}

// DatabaseConfig selects and tunes the session store
type DatabaseConfig struct {
	Driver  string        `json:"driver"`
	Path    string        `json:"path"`
	Timeout time.Duration `json:"timeout"`
}

// FUNCTIONAL DISCOVERY: HTTP configuration balances performance and reliability
type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

// WebSocketConfig tunes live session subscriptions
type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// LifecycleConfig holds the status transition rules and listing policy
type LifecycleConfig struct {
	LobbyOpenOffsetMinutes int           `json:"lobby_open_offset_minutes"`
	PlannedDurationMinutes int           `json:"planned_duration_minutes"`
	PollInterval           time.Duration `json:"poll_interval"`
	IncludeEnded           bool          `json:"include_ended"`
	EndedRetention         time.Duration `json:"ended_retention"`
	RequireRegistration    bool          `json:"require_registration"`
}

// AuthConfig enables bearer token verification when JWTSecret is set
type AuthConfig struct {
	JWTSecret string `json:"jwt_secret"`
}

// RedisConfig enables cross-instance event fan-out when Addr is set
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
}

// LogConfig selects the zap preset and level
type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// RateLimitConfig caps requests per user per minute
type RateLimitConfig struct {
	PerMinute int `json:"per_minute"`
}

// FUNCTIONAL DISCOVERY: Production-ready defaults based on classroom requirements
// In-memory store, HTTP on 8080, 3 second status polling, 5 minute lobby window
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Driver:  DriverMemory,
			Path:    "./data/simplepaes.db",
			Timeout: 30 * time.Second,
		},
		HTTP: &HTTPConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Lifecycle: &LifecycleConfig{
			LobbyOpenOffsetMinutes: 5,
			PlannedDurationMinutes: 60,
			PollInterval:           3 * time.Second,
		},
		Auth: &AuthConfig{},
		Redis: &RedisConfig{
			Channel: "simplepaes:sessions",
		},
		Log: &LogConfig{
			Level: "info",
		},
		RateLimit: &RateLimitConfig{
			PerMinute: 100,
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	switch c.Database.Driver {
	case DriverMemory:
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database path cannot be empty")
		}
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	// Port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= 0 {
		return fmt.Errorf("WebSocket read timeout must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Lifecycle == nil {
		return fmt.Errorf("lifecycle configuration is required")
	}
	if c.Lifecycle.LobbyOpenOffsetMinutes < 0 {
		return fmt.Errorf("lobby open offset cannot be negative")
	}
	if c.Lifecycle.PlannedDurationMinutes <= 0 {
		return fmt.Errorf("planned duration must be positive")
	}
	if c.Lifecycle.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Lifecycle.EndedRetention < 0 {
		return fmt.Errorf("ended retention cannot be negative")
	}

	if c.Auth == nil || c.Redis == nil || c.Log == nil || c.RateLimit == nil {
		return fmt.Errorf("auth, redis, log and rate_limit sections are required")
	}
	if c.Redis.Addr != "" && c.Redis.Channel == "" {
		return fmt.Errorf("redis channel cannot be empty when redis is enabled")
	}
	if c.RateLimit.PerMinute <= 0 {
		return fmt.Errorf("rate limit must be positive")
	}

	return nil
}

// LoadFromEnv applies SIMPLEPAES_* environment variables on top of the defaults
// FUNCTIONAL DISCOVERY: Environment variable configuration enables deployment flexibility
func LoadFromEnv() *Config {
	config := DefaultConfig()
	applyEnv(config)
	return config
}

func applyEnv(config *Config) {
	envString("DATABASE_DRIVER", &config.Database.Driver)
	envString("DATABASE_PATH", &config.Database.Path)
	envDuration("DATABASE_TIMEOUT", &config.Database.Timeout)

	envInt("HTTP_PORT", &config.HTTP.Port)
	envString("HTTP_HOST", &config.HTTP.Host)
	envDuration("HTTP_READ_TIMEOUT", &config.HTTP.ReadTimeout)
	envDuration("HTTP_WRITE_TIMEOUT", &config.HTTP.WriteTimeout)

	envDuration("WEBSOCKET_PING_INTERVAL", &config.WebSocket.PingInterval)
	envDuration("WEBSOCKET_READ_TIMEOUT", &config.WebSocket.ReadTimeout)
	envDuration("WEBSOCKET_WRITE_TIMEOUT", &config.WebSocket.WriteTimeout)
	envInt("WEBSOCKET_BUFFER_SIZE", &config.WebSocket.BufferSize)

	envInt("LIFECYCLE_LOBBY_OPEN_OFFSET_MINUTES", &config.Lifecycle.LobbyOpenOffsetMinutes)
	envInt("LIFECYCLE_PLANNED_DURATION_MINUTES", &config.Lifecycle.PlannedDurationMinutes)
	envDuration("LIFECYCLE_POLL_INTERVAL", &config.Lifecycle.PollInterval)
	envBool("LIFECYCLE_INCLUDE_ENDED", &config.Lifecycle.IncludeEnded)
	envDuration("LIFECYCLE_ENDED_RETENTION", &config.Lifecycle.EndedRetention)
	envBool("LIFECYCLE_REQUIRE_REGISTRATION", &config.Lifecycle.RequireRegistration)

	envString("AUTH_JWT_SECRET", &config.Auth.JWTSecret)

	envString("REDIS_ADDR", &config.Redis.Addr)
	envString("REDIS_PASSWORD", &config.Redis.Password)
	envInt("REDIS_DB", &config.Redis.DB)
	envString("REDIS_CHANNEL", &config.Redis.Channel)

	envString("LOG_LEVEL", &config.Log.Level)
	envBool("LOG_DEVELOPMENT", &config.Log.Development)

	envInt("RATE_LIMIT_PER_MINUTE", &config.RateLimit.PerMinute)
}

// Unparseable values are ignored and the previous value kept
func envString(key string, dst *string) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if v := os.Getenv(EnvPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Database  *DatabaseConfigFile  `json:"database"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Lifecycle *LifecycleConfigFile `json:"lifecycle"`
	Auth      *AuthConfig          `json:"auth"`
	Redis     *RedisConfig         `json:"redis"`
	Log       *LogConfigFile       `json:"log"`
	RateLimit *RateLimitConfig     `json:"rate_limit"`
}

type DatabaseConfigFile struct {
	Driver  string `json:"driver"`
	Path    string `json:"path"`
	Timeout string `json:"timeout"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type LifecycleConfigFile struct {
	LobbyOpenOffsetMinutes *int   `json:"lobby_open_offset_minutes"`
	PlannedDurationMinutes int    `json:"planned_duration_minutes"`
	PollInterval           string `json:"poll_interval"`
	IncludeEnded           *bool  `json:"include_ended"`
	EndedRetention         string `json:"ended_retention"`
	RequireRegistration    *bool  `json:"require_registration"`
}

type LogConfigFile struct {
	Level       string `json:"level"`
	Development *bool  `json:"development"`
}

// LoadFromFile reads a JSON config file on top of the defaults
// FUNCTIONAL DISCOVERY: JSON format chosen for readability and tooling support
func LoadFromFile(filepath string) (*Config, error) {
	config := DefaultConfig()
	if err := applyFile(config, filepath); err != nil {
		return nil, err
	}

	// ARCHITECTURAL DISCOVERY: Validate configuration after loading to catch errors early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}
	return config, nil
}

func applyFile(config *Config, filepath string) error {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	var errs []error
	duration := func(field, value string, dst *time.Duration) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field, err))
			return
		}
		*dst = d
	}

	if f := file.Database; f != nil {
		if f.Driver != "" {
			config.Database.Driver = f.Driver
		}
		if f.Path != "" {
			config.Database.Path = f.Path
		}
		duration("database.timeout", f.Timeout, &config.Database.Timeout)
	}

	if f := file.HTTP; f != nil {
		if f.Port > 0 {
			config.HTTP.Port = f.Port
		}
		if f.Host != "" {
			config.HTTP.Host = f.Host
		}
		duration("http.read_timeout", f.ReadTimeout, &config.HTTP.ReadTimeout)
		duration("http.write_timeout", f.WriteTimeout, &config.HTTP.WriteTimeout)
	}

	if f := file.WebSocket; f != nil {
		if f.BufferSize > 0 {
			config.WebSocket.BufferSize = f.BufferSize
		}
		duration("websocket.ping_interval", f.PingInterval, &config.WebSocket.PingInterval)
		duration("websocket.read_timeout", f.ReadTimeout, &config.WebSocket.ReadTimeout)
		duration("websocket.write_timeout", f.WriteTimeout, &config.WebSocket.WriteTimeout)
	}

	if f := file.Lifecycle; f != nil {
		if f.LobbyOpenOffsetMinutes != nil {
			config.Lifecycle.LobbyOpenOffsetMinutes = *f.LobbyOpenOffsetMinutes
		}
		if f.PlannedDurationMinutes > 0 {
			config.Lifecycle.PlannedDurationMinutes = f.PlannedDurationMinutes
		}
		if f.IncludeEnded != nil {
			config.Lifecycle.IncludeEnded = *f.IncludeEnded
		}
		if f.RequireRegistration != nil {
			config.Lifecycle.RequireRegistration = *f.RequireRegistration
		}
		duration("lifecycle.poll_interval", f.PollInterval, &config.Lifecycle.PollInterval)
		duration("lifecycle.ended_retention", f.EndedRetention, &config.Lifecycle.EndedRetention)
	}

	if f := file.Auth; f != nil && f.JWTSecret != "" {
		config.Auth.JWTSecret = f.JWTSecret
	}

	if f := file.Redis; f != nil {
		if f.Addr != "" {
			config.Redis.Addr = f.Addr
		}
		if f.Password != "" {
			config.Redis.Password = f.Password
		}
		if f.DB != 0 {
			config.Redis.DB = f.DB
		}
		if f.Channel != "" {
			config.Redis.Channel = f.Channel
		}
	}

	if f := file.Log; f != nil {
		if f.Level != "" {
			config.Log.Level = strings.ToLower(f.Level)
		}
		if f.Development != nil {
			config.Log.Development = *f.Development
		}
	}

	if f := file.RateLimit; f != nil && f.PerMinute > 0 {
		config.RateLimit.PerMinute = f.PerMinute
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid durations in %s: %w", filepath, errors.Join(errs...))
	}
	return nil
}

// Load builds the runtime configuration.
// FUNCTIONAL DISCOVERY: Precedence is defaults < .env file < environment < JSON file.
// An empty filepath falls back to SIMPLEPAES_CONFIG_FILE.
func Load(filepath string) (*Config, error) {
	// Variables already set in the process environment win over .env entries
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := LoadFromEnv()

	if filepath == "" {
		filepath = os.Getenv(EnvPrefix + "CONFIG_FILE")
	}
	if filepath != "" {
		if err := applyFile(config, filepath); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// LoadConfigWithPrecedence is Load without the error, falling back to defaults
// plus environment when the file cannot be used
func LoadConfigWithPrecedence(filepath string) *Config {
	config, err := Load(filepath)
	if err != nil {
		return LoadFromEnv()
	}
	return config
}
