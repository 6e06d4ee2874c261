// Package server provides configuration helpers that define runtime defaults,
// validation, and the sources (YAML file, .env, environment) the service reads.
package server

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int           `yaml:"burst"`
	RefillInterval time.Duration `yaml:"refill_interval"`
}

// SessionConfig describes the HTTP session cookie shared with the WebSocket layer.
type SessionConfig struct {
	CookieName string        `yaml:"cookie_name"`
	Secret     string        `yaml:"secret"`
	TTL        time.Duration `yaml:"ttl"`
}

// RedisConfig selects the Redis session store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PathsConfig holds the WebSocket endpoint paths.
type PathsConfig struct {
	Messaging string `yaml:"messaging"`
	Room      string `yaml:"room"`
}

// Config holds the server configuration settings including security controls.
type Config struct {
	Port           string          `yaml:"port"`
	Env            string          `yaml:"env"`
	AllowedOrigins []string        `yaml:"allowed_origins"`
	MaxMessageSize int64           `yaml:"max_message_size"`
	RateLimit      RateLimitConfig `yaml:"rate_limit"`
	Session        SessionConfig   `yaml:"session"`
	Redis          RedisConfig     `yaml:"redis"`
	DatabaseURL    string          `yaml:"database_url"`
	Log            LogConfig       `yaml:"log"`
	Paths          PathsConfig     `yaml:"paths"`
	SeedUsers      *bool           `yaml:"seed_users"`
}

func defaultConfig() Config {
	return Config{
		Port: ":8080",
		Env:  "development",
		AllowedOrigins: []string{
			"http://localhost:8080",
		},
		MaxMessageSize: 4096,
		RateLimit: RateLimitConfig{
			Burst:          5,
			RefillInterval: time.Second,
		},
		Session: SessionConfig{
			CookieName: "travel.sid",
			TTL:        24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Paths: PathsConfig{
			Messaging: "/websocket",
			Room:      "/ws/chat",
		},
	}
}

func sanitizeConfig(cfg Config) Config {
	def := defaultConfig()

	if cfg.Port == "" {
		cfg.Port = def.Port
	}
	if !strings.Contains(cfg.Port, ":") {
		cfg.Port = ":" + cfg.Port
	}

	if cfg.Env == "" {
		cfg.Env = def.Env
	}

	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}

	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = def.RateLimit.Burst
	}

	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = def.RateLimit.RefillInterval
	}

	if cfg.Session.CookieName == "" {
		cfg.Session.CookieName = def.Session.CookieName
	}
	if cfg.Session.TTL <= 0 {
		cfg.Session.TTL = def.Session.TTL
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "json", "console":
		cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	default:
		cfg.Log.Format = def.Log.Format
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Log.Level
	}

	if cfg.Paths.Messaging == "" {
		cfg.Paths.Messaging = def.Paths.Messaging
	}
	if cfg.Paths.Room == "" {
		cfg.Paths.Room = def.Paths.Room
	}

	if cfg.SeedUsers == nil {
		seed := !cfg.IsProduction()
		cfg.SeedUsers = &seed
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// IsProduction reports whether the service runs in production mode.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// ShouldSeedUsers reports whether development accounts are created at startup.
func (c Config) ShouldSeedUsers() bool {
	return c.SeedUsers != nil && *c.SeedUsers
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := sanitizeConfig(defaultConfig())
	return &cfg
}

// LoadConfig reads configuration from defaults, an optional YAML file, a .env
// file and the environment, in increasing order of precedence.
func LoadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "load .env")
	}

	cfg := defaultConfig()
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "read config file %s", path)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	applyEnv(&cfg)
	cfg = sanitizeConfig(cfg)
	return &cfg, nil
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() *Config {
	cfg := defaultConfig()
	applyEnv(&cfg)
	cfg = sanitizeConfig(cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}
	if env := os.Getenv("APP_ENV"); env != "" {
		cfg.Env = env
	}
	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}
	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}
	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}
	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}
	if name := os.Getenv("SESSION_COOKIE_NAME"); name != "" {
		cfg.Session.CookieName = name
	}
	if secret := os.Getenv("SESSION_SECRET"); secret != "" {
		cfg.Session.Secret = secret
	}
	if ttl := os.Getenv("SESSION_TTL"); ttl != "" {
		cfg.Session.TTL = parseDuration(ttl, cfg.Session.TTL)
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis.Addr = addr
	}
	if password := os.Getenv("REDIS_PASSWORD"); password != "" {
		cfg.Redis.Password = password
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		if parsed, err := strconv.Atoi(db); err == nil && parsed >= 0 {
			cfg.Redis.DB = parsed
		}
	}
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.DatabaseURL = url
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.Log.Level = level
	}
	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.Log.Format = format
	}
	if path := os.Getenv("MESSAGING_WS_PATH"); path != "" {
		cfg.Paths.Messaging = path
	}
	if path := os.Getenv("ROOM_WS_PATH"); path != "" {
		cfg.Paths.Room = path
	}
	if seed := os.Getenv("SEED_USERS"); seed != "" {
		if parsed, err := strconv.ParseBool(seed); err == nil {
			cfg.SeedUsers = &parsed
		}
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
