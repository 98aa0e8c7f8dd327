package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const devJWTSecret = "dev-secret-change-in-production"

// Origins that are always allowed so the SPA dev servers work out of the box.
var defaultOrigins = []string{"http://localhost:8080", "http://localhost:5173"}

type Config struct {
	Port      string          `yaml:"port"`
	Env       string          `yaml:"env"`
	LogLevel  string          `yaml:"logLevel"`
	Database  DatabaseConfig  `yaml:"database"`
	JWT       JWTConfig       `yaml:"jwt"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Redis     RedisConfig     `yaml:"redis"`
	KeepAlive KeepAliveConfig `yaml:"keepAlive"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	ExpiresIn time.Duration `yaml:"expiresIn"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
}

type KeepAliveConfig struct {
	URL      string `yaml:"url"`
	Schedule string `yaml:"schedule"`
}

// Load builds the configuration from defaults, an optional YAML file named by
// CONFIG_FILE, and environment variables (highest precedence). A .env file in
// the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:     "5000",
		Env:      "development",
		LogLevel: "info",
		Database: DatabaseConfig{
			Driver: "mysql",
			DSN:    "root:password@tcp(127.0.0.1:3306)/voltmap?parseTime=true",
		},
		JWT: JWTConfig{
			Secret:    devJWTSecret,
			ExpiresIn: 30 * 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{RPS: 5, Burst: 10},
		KeepAlive: KeepAliveConfig{Schedule: "@every 14m"},
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.CORS.AllowedOrigins = mergeOrigins(cfg.CORS.AllowedOrigins, defaultOrigins)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: decode yaml: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.Env = getEnv("ENV", cfg.Env)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.Database.Driver = strings.ToLower(getEnv("DB_DRIVER", cfg.Database.Driver))
	cfg.Database.DSN = getEnv("DATABASE_DSN", cfg.Database.DSN)
	cfg.JWT.Secret = getEnv("JWT_SECRET", cfg.JWT.Secret)
	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.KeepAlive.URL = getEnv("KEEP_ALIVE_URL", cfg.KeepAlive.URL)
	cfg.KeepAlive.Schedule = getEnv("KEEP_ALIVE_SCHEDULE", cfg.KeepAlive.Schedule)

	if v := os.Getenv("JWT_EXPIRES_IN"); v != "" {
		d, err := ParseExpiry(v)
		if err != nil {
			return fmt.Errorf("config: parse JWT_EXPIRES_IN: %w", err)
		}
		cfg.JWT.ExpiresIn = d
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: parse RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimit.RPS = rps
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: parse RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimit.Burst = burst
	}

	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, v)
	}
	for _, origin := range strings.Split(os.Getenv("CORS_ALLOWED_ORIGINS"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, origin)
		}
	}
	return nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported DB_DRIVER %q", c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return errors.New("config: database DSN is required")
	}
	if c.JWT.Secret == "" {
		return errors.New("config: jwt secret is required")
	}
	if c.IsProduction() && c.JWT.Secret == devJWTSecret {
		return errors.New("config: JWT_SECRET must be set in production environment")
	}
	if c.JWT.ExpiresIn <= 0 {
		c.JWT.ExpiresIn = 30 * 24 * time.Hour
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return errors.New("config: rate limit values must be positive")
	}
	return nil
}

// IsProduction reports whether the service runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// HTTPAddress returns the listen address in host:port form.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.Port)
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// Window is the sliding window a shared limiter counts Burst requests in, so
// both limiter flavours sustain the same average rate.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(float64(r.Burst) / r.RPS * float64(time.Second))
}

// ParseExpiry accepts Go durations ("720h") and the day shorthand used by
// jsonwebtoken-style settings ("30d").
func ParseExpiry(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("expiry must be positive, got %s", s)
	}
	return d, nil
}

func mergeOrigins(configured, defaults []string) []string {
	seen := make(map[string]bool, len(configured)+len(defaults))
	out := make([]string, 0, len(configured)+len(defaults))
	for _, o := range append(append([]string{}, configured...), defaults...) {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
